package classifier

import (
	"context"
	"errors"
	"image/color"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/lungscan/internal/classifier/classifiertest"
	"github.com/timmy/lungscan/internal/config"
	"github.com/timmy/lungscan/internal/domain"
)

func TestPredictDistribution(t *testing.T) {
	c := New(&classifiertest.FakeModel{}, "")

	res, err := c.Predict(context.Background(), classifiertest.JPEG(256, 256))
	require.NoError(t, err)

	require.Len(t, res.AllPredictions, domain.NumDiseaseClasses)
	var sum float64
	for _, label := range domain.DiseaseLabels() {
		p, ok := res.AllPredictions[label]
		require.True(t, ok, label)
		sum += p
	}
	assert.InDelta(t, 1.0, sum, 1e-5)

	best, prob := res.AllPredictions.Argmax()
	assert.Equal(t, best, res.PredictedClass)
	assert.InDelta(t, prob, res.ConfidenceScore, 1e-9)
	assert.GreaterOrEqual(t, res.ConfidenceScore, 0.0)
	assert.LessOrEqual(t, res.ConfidenceScore, 1.0)
	assert.Greater(t, res.ProcessingTime, 0.0)
	assert.Equal(t, 256, res.OriginalWidth)
	assert.Equal(t, 256, res.OriginalHeight)
}

func TestPredictDeterministic(t *testing.T) {
	c := New(&classifiertest.FakeModel{}, "")
	img := classifiertest.JPEG(300, 200)

	first, err := c.Predict(context.Background(), img)
	require.NoError(t, err)
	second, err := c.Predict(context.Background(), img)
	require.NoError(t, err)

	assert.Equal(t, first.PredictedClass, second.PredictedClass)
	assert.Equal(t, first.AllPredictions, second.AllPredictions)
	assert.Equal(t, 300, first.OriginalWidth)
	assert.Equal(t, 200, first.OriginalHeight)
}

func TestPredictUnavailable(t *testing.T) {
	c := New(nil, "")
	assert.False(t, c.Loaded())

	_, err := c.Predict(context.Background(), classifiertest.JPEG(16, 16))
	assert.ErrorIs(t, err, ErrModelUnavailable)
}

func TestPredictInvalidImage(t *testing.T) {
	model := &classifiertest.FakeModel{}
	c := New(model, "")

	_, err := c.Predict(context.Background(), []byte("definitely not an image"))
	assert.ErrorIs(t, err, ErrInvalidImage)
	assert.Zero(t, model.Calls.Load())
}

func TestPredictModelError(t *testing.T) {
	c := New(&classifiertest.FakeModel{Err: errors.New("boom")}, "")
	_, err := c.Predict(context.Background(), classifiertest.JPEG(16, 16))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidImage)
}

type shortModel struct{ classifiertest.FakeModel }

func (m *shortModel) Predict(context.Context, []float32) ([]float32, error) {
	return []float32{1}, nil
}

func TestPredictWrongOutputLength(t *testing.T) {
	c := New(&shortModel{}, "")
	_, err := c.Predict(context.Background(), classifiertest.JPEG(16, 16))
	assert.ErrorIs(t, err, ErrInvalidOutput)
}

func TestPredictNonFiniteScores(t *testing.T) {
	for name, bad := range map[string]float32{
		"nan":  float32(math.NaN()),
		"+inf": float32(math.Inf(1)),
		"-inf": float32(math.Inf(-1)),
	} {
		t.Run(name, func(t *testing.T) {
			scores := make([]float32, domain.NumDiseaseClasses)
			scores[0] = bad
			scores[3] = 0.9
			c := New(&classifiertest.FakeModel{Scores: scores}, "")

			res, err := c.Predict(context.Background(), classifiertest.JPEG(16, 16))
			assert.ErrorIs(t, err, ErrInvalidOutput)
			assert.Nil(t, res)
		})
	}
}

func TestPredictFixedScores(t *testing.T) {
	scores := make([]float32, domain.NumDiseaseClasses)
	scores[3] = 0.9
	scores[5] = 0.1
	c := New(&classifiertest.FakeModel{Scores: scores}, "")

	res, err := c.Predict(context.Background(), classifiertest.JPEG(16, 16))
	require.NoError(t, err)
	assert.Equal(t, domain.DiseaseClass(3), res.PredictedClass)
	assert.InDelta(t, 0.9, res.ConfidenceScore, 1e-6)
}

func TestPreprocess(t *testing.T) {
	// Semi-transparent red: alpha is dropped, not blended.
	tensor, w, h, err := Preprocess(classifiertest.PNG(40, 20, color.NRGBA{R: 255, A: 128}))
	require.NoError(t, err)
	assert.Equal(t, 40, w)
	assert.Equal(t, 20, h)
	require.Len(t, tensor, InputSize*InputSize*3)
	assert.InDelta(t, 1.0, tensor[0], 1e-6)
	assert.InDelta(t, 0.0, tensor[1], 1e-6)
	assert.InDelta(t, 0.0, tensor[2], 1e-6)
}

func TestPreprocessGrayscale(t *testing.T) {
	tensor, _, _, err := Preprocess(classifiertest.PNG(8, 8, color.Gray{Y: 51}))
	require.NoError(t, err)
	for c := 0; c < 3; c++ {
		assert.InDelta(t, 0.2, tensor[c], 1e-6)
	}
}

func TestInfo(t *testing.T) {
	info := New(&classifiertest.FakeModel{}, "2.0.0").Info()
	assert.Equal(t, "2.0.0", info.ModelVersion)
	assert.Equal(t, domain.DiseaseLabels(), info.Classes)
	assert.Equal(t, [2]int{128, 128}, info.InputSize)
	assert.Equal(t, 9, info.TotalClasses)
	assert.True(t, info.Loaded)
	assert.Equal(t, "fake", info.Backend)

	unloaded := New(nil, "").Info()
	assert.False(t, unloaded.Loaded)
	assert.Equal(t, domain.DefaultModelVersion, unloaded.ModelVersion)
}

func TestClose(t *testing.T) {
	model := &classifiertest.FakeModel{}
	require.NoError(t, New(model, "").Close())
	assert.True(t, model.Closed())
	assert.NoError(t, New(nil, "").Close())
}

func TestLoadMissingModelFile(t *testing.T) {
	c := Load(context.Background(), config.ModelConfig{Backend: "onnx", Path: t.TempDir() + "/missing.onnx"})
	assert.False(t, c.Loaded())
}

func TestLoadRemote(t *testing.T) {
	c := Load(context.Background(), config.ModelConfig{Backend: "remote", RemoteURL: "http://localhost:1", RemoteName: "m"})
	assert.True(t, c.Loaded())
	assert.Equal(t, "remote", c.Info().Backend)

	assert.False(t, Load(context.Background(), config.ModelConfig{Backend: "remote"}).Loaded())
}

func TestRemoteModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/models/lung:predict", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"predictions": [[0.05, 0.6, 0.05, 0.05, 0.05, 0.05, 0.05, 0.05, 0.05]]}`))
	}))
	defer srv.Close()

	c := New(NewRemoteModel(srv.URL+"/", "lung", 0), "")
	res, err := c.Predict(context.Background(), classifiertest.JPEG(64, 64))
	require.NoError(t, err)
	assert.Equal(t, domain.DiseasePneumonia, res.PredictedClass)
	assert.InDelta(t, 0.6, res.ConfidenceScore, 1e-6)
}

func TestRemoteModelError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": "bad instances"}`))
	}))
	defer srv.Close()

	_, err := NewRemoteModel(srv.URL, "lung", 0).Predict(context.Background(), make([]float32, InputSize*InputSize*3))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad instances")

	_, err = NewRemoteModel(srv.URL, "lung", 0).Predict(context.Background(), []float32{1})
	assert.Error(t, err)
}
