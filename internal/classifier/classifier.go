// Package classifier turns chest X-ray images into lung-disease class distributions.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/timmy/lungscan/internal/domain"
)

var (
	// ErrModelUnavailable is returned when no model backend was loaded at startup.
	ErrModelUnavailable = errors.New("model not loaded")
	// ErrInvalidImage is returned when the uploaded bytes cannot be decoded as an image.
	ErrInvalidImage = errors.New("invalid image")
	// ErrInvalidOutput is returned when the model output is not a usable distribution.
	ErrInvalidOutput = errors.New("invalid model output")
)

// Model is a loaded inference backend. Implementations must be safe for concurrent use.
type Model interface {
	// Predict runs one NHWC [1,InputSize,InputSize,3] tensor and returns the class scores.
	Predict(ctx context.Context, input []float32) ([]float32, error)
	// Backend names the implementation, e.g. "onnx" or "remote".
	Backend() string
	Close() error
}

// Result is the outcome of classifying one image.
type Result struct {
	PredictedClass  domain.DiseaseClass
	ConfidenceScore float64
	AllPredictions  domain.Probabilities
	ProcessingTime  float64 // seconds, preprocessing plus inference
	OriginalWidth   int
	OriginalHeight  int
}

// ModelInfo is static metadata about the loaded classifier.
type ModelInfo struct {
	ModelVersion string   `json:"model_version"`
	Classes      []string `json:"classes"`
	InputSize    [2]int   `json:"input_size"`
	TotalClasses int      `json:"total_classes"`
	Loaded       bool     `json:"loaded"`
	Backend      string   `json:"backend,omitempty"`
}

// Classifier wraps a Model with image preprocessing and result decoding.
type Classifier struct {
	model   Model
	version string
}

// New creates a Classifier. A nil model yields a classifier that reports itself unloaded.
func New(model Model, version string) *Classifier {
	if version == "" {
		version = domain.DefaultModelVersion
	}
	return &Classifier{model: model, version: version}
}

// Loaded reports whether a model backend is available.
func (c *Classifier) Loaded() bool {
	return c.model != nil
}

// Version returns the model version tag stored with each prediction.
func (c *Classifier) Version() string {
	return c.version
}

// Predict decodes data, runs the model and returns the class distribution.
func (c *Classifier) Predict(ctx context.Context, data []byte) (*Result, error) {
	if c.model == nil {
		return nil, ErrModelUnavailable
	}

	start := time.Now()

	input, width, height, err := Preprocess(data)
	if err != nil {
		return nil, err
	}

	scores, err := c.model.Predict(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}
	if len(scores) != domain.NumDiseaseClasses {
		return nil, fmt.Errorf("%w: %d scores, expected %d", ErrInvalidOutput, len(scores), domain.NumDiseaseClasses)
	}
	for i, s := range scores {
		if f := float64(s); math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("%w: score %d is %v", ErrInvalidOutput, i, s)
		}
	}

	probs := make(domain.Probabilities, domain.NumDiseaseClasses)
	best := 0
	for i, s := range scores {
		probs[domain.DiseaseClass(i).String()] = float64(s)
		if s > scores[best] {
			best = i
		}
	}

	return &Result{
		PredictedClass:  domain.DiseaseClass(best),
		ConfidenceScore: float64(scores[best]),
		AllPredictions:  probs,
		ProcessingTime:  time.Since(start).Seconds(),
		OriginalWidth:   width,
		OriginalHeight:  height,
	}, nil
}

// Info returns metadata about the classifier and its backend.
func (c *Classifier) Info() ModelInfo {
	info := ModelInfo{
		ModelVersion: c.version,
		Classes:      domain.DiseaseLabels(),
		InputSize:    [2]int{InputSize, InputSize},
		TotalClasses: domain.NumDiseaseClasses,
		Loaded:       c.model != nil,
	}
	if c.model != nil {
		info.Backend = c.model.Backend()
	}
	return info
}

// Close releases the model backend.
func (c *Classifier) Close() error {
	if c.model == nil {
		return nil
	}
	return c.model.Close()
}
