package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/lungscan/internal/classifier/classifiertest"
	"github.com/timmy/lungscan/internal/domain"
	"github.com/timmy/lungscan/internal/source"
	"github.com/timmy/lungscan/internal/source/localdir"
)

func writeImages(t *testing.T, n int) string {
	t.Helper()
	dir := t.TempDir()
	for i := 0; i < n; i++ {
		name := filepath.Join(dir, "xray_"+strconv.Itoa(i)+".jpg")
		require.NoError(t, os.WriteFile(name, classifiertest.JPEG(16+i, 16), 0o644))
	}
	return dir
}

func TestClassifyFromSource(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	dir := writeImages(t, 7)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.png"), []byte("nope"), 0o644))

	svc := NewBatchService(h.predictions, h.jobs, &BatchConfig{Workers: 3, BatchSize: 2})
	stats, err := svc.ClassifyFromSource(ctx, localdir.NewAdapter(dir), 0, &BatchOptions{UserEmail: "batch@x.com"})
	require.NoError(t, err)

	assert.EqualValues(t, 8, stats.TotalItems)
	assert.EqualValues(t, 8, stats.ProcessedItems)
	assert.EqualValues(t, 1, stats.FailedItems)
	var classified int64
	for _, n := range stats.PerClass {
		classified += n
	}
	assert.EqualValues(t, 7, classified)
	assert.False(t, stats.EndTime.Before(stats.StartTime))

	user, err := h.users.FindByEmail(ctx, "batch@x.com")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, 7, user.TotalPredictions)

	jobs, err := svc.RecentJobs(ctx, 5)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, stats.JobID, jobs[0].ID)
	assert.Equal(t, domain.JobStatusCompleted, jobs[0].Status)
	assert.EqualValues(t, 8, jobs[0].ProcessedItems)
	assert.EqualValues(t, 1, jobs[0].FailedItems)
	assert.NotNil(t, jobs[0].CompletedAt)
}

func TestClassifyFromSourceLimit(t *testing.T) {
	h := newHarness(t)
	svc := NewBatchService(h.predictions, nil, &BatchConfig{Workers: 2, BatchSize: 2})

	stats, err := svc.ClassifyFromSource(context.Background(), localdir.NewAdapter(writeImages(t, 5)), 3, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 3, stats.TotalItems)
	assert.EqualValues(t, 0, stats.FailedItems)
	assert.EqualValues(t, 3, h.model.Calls.Load())
}

type failingSource struct{}

func (failingSource) GetSourceID() string    { return "failing" }
func (failingSource) GetDisplayName() string { return "Failing" }
func (failingSource) FetchBatch(context.Context, string, int) ([]source.ImageItem, string, error) {
	return nil, "", errors.New("unreachable")
}

func TestClassifyFromSourceFetchError(t *testing.T) {
	h := newHarness(t)
	svc := NewBatchService(h.predictions, h.jobs, nil)
	stats, err := svc.ClassifyFromSource(context.Background(), failingSource{}, 0, nil)
	require.Error(t, err)
	assert.EqualValues(t, 0, stats.TotalItems)

	jobs, err := svc.RecentJobs(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, domain.JobStatusFailed, jobs[0].Status)
	assert.Equal(t, "failing", jobs[0].SourceID)
	assert.Contains(t, jobs[0].ErrorLog, "unreachable")
}

func TestClassifyFromSourceCanceled(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stats, err := NewBatchService(h.predictions, nil, nil).ClassifyFromSource(ctx, localdir.NewAdapter(writeImages(t, 3)), 0, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.EqualValues(t, 0, stats.ProcessedItems)
}
