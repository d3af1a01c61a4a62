package service

import (
	"context"
	"errors"
	"image/color"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/lungscan/internal/classifier"
	"github.com/timmy/lungscan/internal/classifier/classifiertest"
	"github.com/timmy/lungscan/internal/domain"
)

func jpegInput(email, name string) PredictInput {
	return PredictInput{
		Data:        classifiertest.JPEG(64, 48),
		Filename:    "chest.jpg",
		ContentType: "image/jpeg",
		UserEmail:   email,
		UserName:    name,
	}
}

func TestPredictStoresRecordAndImage(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	record, err := h.predictions.Predict(ctx, jpegInput("a@x.com", "Ana"))
	require.NoError(t, err)

	assert.NotEmpty(t, record.ID)
	assert.Equal(t, 64, record.ImageWidth)
	assert.Equal(t, 48, record.ImageHeight)
	assert.Len(t, record.AllPredictions, domain.NumDiseaseClasses)
	assert.Equal(t, domain.DefaultModelVersion, record.ModelVersion)
	assert.Nil(t, record.ImageURL)
	require.True(t, record.HasImage())
	assert.Contains(t, *record.ImageFilename, "_chest.jpg")
	_, err = os.Stat(filepath.Join(h.uploadDir, *record.ImageFilename))
	assert.NoError(t, err)
	assert.Equal(t, "/predictions/image/"+*record.ImageFilename, h.predictions.ImageURL(record))

	var sum float64
	for _, p := range record.AllPredictions {
		sum += p
	}
	assert.InDelta(t, 1.0, sum, 1e-4)
	class, prob := record.AllPredictions.Argmax()
	assert.Equal(t, record.PredictedClass, class)
	assert.InDelta(t, prob, record.ConfidenceScore, 1e-9)

	got, err := h.predictions.GetPrediction(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, record.PredictedClass, got.PredictedClass)

	user, err := h.users.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, 1, user.TotalPredictions)
	assert.Equal(t, "Ana", user.Name)
}

func TestPredictWithoutFilenameSkipsStorage(t *testing.T) {
	h := newHarness(t)
	in := jpegInput("", "")
	in.Filename = ""

	record, err := h.predictions.Predict(context.Background(), in)
	require.NoError(t, err)
	assert.False(t, record.HasImage())
	assert.Empty(t, h.predictions.ImageURL(record))
	assert.Nil(t, record.UserEmail)
}

func TestPredictRejectsInput(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	in := jpegInput("", "")
	in.ContentType = "text/plain"
	_, err := h.predictions.Predict(ctx, in)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	in = jpegInput("", "")
	in.Data = nil
	_, err = h.predictions.Predict(ctx, in)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	in = jpegInput("", "")
	in.Data = []byte("not an image")
	_, err = h.predictions.Predict(ctx, in)
	assert.ErrorIs(t, err, classifier.ErrInvalidImage)

	assert.EqualValues(t, 0, h.model.Calls.Load())
	total, err := h.predictions.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, total.TotalPredictions)
}

func TestPredictModelFailure(t *testing.T) {
	h := newHarness(t)
	h.model.Err = errors.New("boom")

	_, err := h.predictions.Predict(context.Background(), jpegInput("a@x.com", ""))
	require.Error(t, err)

	user, err := h.users.FindByEmail(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestPredictNonFiniteScores(t *testing.T) {
	h := newHarness(t)
	scores := make([]float32, domain.NumDiseaseClasses)
	scores[0] = float32(math.NaN())
	scores[3] = 0.9
	h.model.Scores = scores

	_, err := h.predictions.Predict(context.Background(), jpegInput("a@x.com", ""))
	assert.ErrorIs(t, err, classifier.ErrInvalidOutput)

	entries, err := os.ReadDir(h.uploadDir)
	if !os.IsNotExist(err) {
		require.NoError(t, err)
		assert.Empty(t, entries)
	}
	total, err := h.predictions.predictions.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestListPredictions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := h.predictions.Predict(ctx, jpegInput("a@x.com", ""))
		require.NoError(t, err)
	}
	_, err := h.predictions.Predict(ctx, jpegInput("b@x.com", ""))
	require.NoError(t, err)

	all, err := h.predictions.ListPredictions(ctx, "", 0, 0)
	require.NoError(t, err)
	assert.Len(t, all, 4)
	for i := 1; i < len(all); i++ {
		assert.False(t, all[i].CreatedAt.After(all[i-1].CreatedAt))
	}

	mine, err := h.predictions.ListPredictions(ctx, "a@x.com", 1, 10)
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	none, err := h.predictions.ListPredictions(ctx, "nobody@x.com", 0, 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestClampPagination(t *testing.T) {
	tests := []struct {
		skip, limit         int
		wantSkip, wantLimit int
	}{
		{0, 0, 0, DefaultListLimit},
		{-5, 10, 0, 10},
		{3, 500, 3, MaxListLimit},
		{2, 100, 2, 100},
	}
	for _, tc := range tests {
		skip, limit := ClampPagination(tc.skip, tc.limit)
		assert.Equal(t, tc.wantSkip, skip)
		assert.Equal(t, tc.wantLimit, limit)
	}
}

func TestGetPredictionErrors(t *testing.T) {
	h := newHarness(t)
	_, err := h.predictions.GetPrediction(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = h.predictions.GetPrediction(context.Background(), "5f0c7f0e-6c1b-4d7e-9a57-1f6f2d0f9d11")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestOpenPredictionImage(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	in := PredictInput{
		Data:        classifiertest.PNG(20, 20, color.Gray{Y: 90}),
		Filename:    "scan.png",
		ContentType: "image/png",
	}
	record, err := h.predictions.Predict(ctx, in)
	require.NoError(t, err)

	img, err := h.predictions.OpenPredictionImage(ctx, record.ID)
	require.NoError(t, err)
	require.NotNil(t, img.Object)
	defer img.Object.Body.Close()
	data, err := io.ReadAll(img.Object.Body)
	require.NoError(t, err)
	assert.Equal(t, in.Data, data)
	assert.Equal(t, "image/png", img.Object.ContentType)

	in.Filename = ""
	bare, err := h.predictions.Predict(ctx, in)
	require.NoError(t, err)
	_, err = h.predictions.OpenPredictionImage(ctx, bare.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	obj, err := h.predictions.OpenUpload(*record.ImageFilename)
	require.NoError(t, err)
	obj.Body.Close()

	_, err = h.predictions.OpenUpload("missing.png")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStats(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for i := 0; i < RecentPredictions+2; i++ {
		_, err := h.predictions.Predict(ctx, jpegInput("", ""))
		require.NoError(t, err)
	}
	_, err := h.predictions.Predict(ctx, jpegInput("a@x.com", ""))
	require.NoError(t, err)
	_, err = h.auth.Register(ctx, "Bo", "b@x.com", "password1")
	require.NoError(t, err)

	stats, err := h.predictions.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, RecentPredictions+3, stats.TotalPredictions)
	assert.EqualValues(t, 2, stats.TotalUsers)
	assert.Len(t, stats.RecentPredictions, RecentPredictions)
	assert.True(t, stats.ModelInfo.Loaded)
	assert.Equal(t, domain.NumDiseaseClasses, stats.ModelInfo.TotalClasses)
}

func TestUserStats(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.predictions.UserStats(ctx, "ghost@x.com")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	first, err := h.predictions.Predict(ctx, jpegInput("a@x.com", ""))
	require.NoError(t, err)
	second, err := h.predictions.Predict(ctx, jpegInput("a@x.com", ""))
	require.NoError(t, err)

	stats, err := h.predictions.UserStats(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalPredictions)
	require.NotNil(t, stats.MostCommonPrediction)
	assert.Equal(t, first.PredictedClass.String(), *stats.MostCommonPrediction)
	assert.InDelta(t, (first.ConfidenceScore+second.ConfidenceScore)/2, stats.AverageConfidence, 1e-9)
}

func TestUserStatsMostCommonTieBreak(t *testing.T) {
	tests := []struct {
		name    string
		classes []domain.DiseaseClass
		want    domain.DiseaseClass
	}{
		{
			name:    "tie goes to the class seen first",
			classes: []domain.DiseaseClass{domain.DiseaseThorax, domain.DiseaseNormal, domain.DiseaseNormal, domain.DiseaseThorax},
			want:    domain.DiseaseThorax,
		},
		{
			name:    "higher count wins over first seen",
			classes: []domain.DiseaseClass{domain.DiseaseThorax, domain.DiseaseNormal, domain.DiseaseNormal},
			want:    domain.DiseaseNormal,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			ctx := context.Background()
			base := time.Now().Add(-time.Hour).UTC()
			for i, class := range tc.classes {
				require.NoError(t, h.predictions.predictions.Create(ctx, &domain.PredictionResult{
					ID:              uuid.NewString(),
					UserEmail:       domain.StringPtr("a@x.com"),
					PredictedClass:  class,
					ConfidenceScore: 0.5,
					AllPredictions:  domain.Probabilities{class.String(): 0.5},
					ProcessingTime:  0.01,
					CreatedAt:       base.Add(time.Duration(i) * time.Minute),
				}))
				require.NoError(t, h.users.RecordPrediction(ctx, "a@x.com", ""))
			}

			stats, err := h.predictions.UserStats(ctx, "a@x.com")
			require.NoError(t, err)
			assert.Equal(t, len(tc.classes), stats.TotalPredictions)
			require.NotNil(t, stats.MostCommonPrediction)
			assert.Equal(t, tc.want.String(), *stats.MostCommonPrediction)
		})
	}
}

func TestUserStatsRegisteredWithoutPredictions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.auth.Register(ctx, "Ana", "a@x.com", "password1")
	require.NoError(t, err)

	stats, err := h.predictions.UserStats(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalPredictions)
	assert.Nil(t, stats.MostCommonPrediction)
	assert.Zero(t, stats.AverageConfidence)
}

func TestUnloadedClassifier(t *testing.T) {
	h := newHarness(t)
	h.predictions.classifier = classifier.New(nil, "")

	_, err := h.predictions.Predict(context.Background(), jpegInput("", ""))
	assert.ErrorIs(t, err, classifier.ErrModelUnavailable)
	assert.False(t, h.predictions.ModelInfo().Loaded)
}
