// Package classifiertest provides a deterministic in-memory model and image fixtures.
package classifiertest

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"math"
	"sync/atomic"

	"github.com/disintegration/imaging"
	"github.com/timmy/lungscan/internal/domain"
)

// FakeModel scores an input tensor with a fixed softmax over its channel means.
// Scores, when set, is returned as is.
type FakeModel struct {
	Err    error
	Scores []float32
	Calls  atomic.Int64
	closed atomic.Bool
}

func (m *FakeModel) Backend() string {
	return "fake"
}

func (m *FakeModel) Predict(_ context.Context, input []float32) ([]float32, error) {
	m.Calls.Add(1)
	if m.Err != nil {
		return nil, m.Err
	}
	if m.Scores != nil {
		return append([]float32(nil), m.Scores...), nil
	}
	if len(input) == 0 || len(input)%3 != 0 {
		return nil, errors.New("bad input length")
	}

	var mean [3]float64
	for i, v := range input {
		mean[i%3] += float64(v)
	}
	pixels := float64(len(input) / 3)
	for c := range mean {
		mean[c] /= pixels
	}

	logits := make([]float64, domain.NumDiseaseClasses)
	var maxLogit float64
	for i := range logits {
		logits[i] = mean[i%3]*float64(i+1) + mean[(i+1)%3]*float64(domain.NumDiseaseClasses-i)
		if i == 0 || logits[i] > maxLogit {
			maxLogit = logits[i]
		}
	}
	var sum float64
	for i := range logits {
		logits[i] = math.Exp(logits[i] - maxLogit)
		sum += logits[i]
	}
	scores := make([]float32, len(logits))
	for i := range logits {
		scores[i] = float32(logits[i] / sum)
	}
	return scores, nil
}

func (m *FakeModel) Close() error {
	m.closed.Store(true)
	return nil
}

// Closed reports whether Close was called.
func (m *FakeModel) Closed() bool {
	return m.closed.Load()
}

// JPEG returns a width×height gradient image encoded as JPEG.
func JPEG(width, height int) []byte {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.NRGBA{
				R: uint8(x * 255 / max(width-1, 1)),
				G: uint8(y * 255 / max(height-1, 1)),
				B: 128,
				A: 255,
			})
		}
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// PNG returns a solid width×height image with the given color encoded as PNG.
func PNG(width, height int, c color.Color) []byte {
	img := imaging.New(width, height, c)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		panic(err)
	}
	return buf.Bytes()
}
