package service

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/lungscan/internal/domain"
	"github.com/timmy/lungscan/internal/logger"
	"github.com/timmy/lungscan/internal/repository"
	"github.com/timmy/lungscan/internal/source"
)

// BatchService classifies every image of a source through the prediction pipeline.
type BatchService struct {
	predictions *PredictionService
	jobs        *repository.JobRepository
	workers     int
	batchSize   int
}

// BatchConfig holds configuration for the batch service
type BatchConfig struct {
	Workers   int
	BatchSize int
}

// NewBatchService creates a new batch service. jobs may be nil to skip recording runs.
func NewBatchService(predictions *PredictionService, jobs *repository.JobRepository, cfg *BatchConfig) *BatchService {
	workers, batchSize := 1, 16
	if cfg != nil {
		if cfg.Workers > 0 {
			workers = cfg.Workers
		}
		if cfg.BatchSize > 0 {
			batchSize = cfg.BatchSize
		}
	}
	return &BatchService{
		predictions: predictions,
		jobs:        jobs,
		workers:     workers,
		batchSize:   batchSize,
	}
}

// BatchStats holds statistics for a classification run
type BatchStats struct {
	JobID          string           `json:"job_id,omitempty"`
	TotalItems     int64            `json:"total_items"`
	ProcessedItems int64            `json:"processed_items"`
	FailedItems    int64            `json:"failed_items"`
	PerClass       map[string]int64 `json:"per_class"` // keyed by disease label
	StartTime      time.Time        `json:"start_time"`
	EndTime        time.Time        `json:"end_time"`
}

// BatchOptions holds the submitter recorded for items the source does not attribute.
type BatchOptions struct {
	UserEmail string
	UserName  string
}

type classifyResult struct {
	sourceID string
	class    domain.DiseaseClass
	err      error
}

// ClassifyFromSource classifies up to limit items of src. A limit of 0 or less means all.
// Per-item failures are counted, not returned.
func (s *BatchService) ClassifyFromSource(ctx context.Context, src source.Source, limit int, opts *BatchOptions) (*BatchStats, error) {
	if opts == nil {
		opts = &BatchOptions{}
	}
	ctx = logger.SetSource(ctx, src.GetSourceID())

	stats := &BatchStats{
		PerClass:  make(map[string]int64),
		StartTime: time.Now(),
	}

	job := s.startJob(ctx, src.GetSourceID(), stats.StartTime)
	if job != nil {
		stats.JobID = job.ID
	}

	logger.FromContext(ctx).WithFields(logger.Fields{
		"limit":   limit,
		"workers": s.workers,
	}).Info("Starting batch classification")

	itemsChan := make(chan source.ImageItem, s.workers*2)
	resultsChan := make(chan *classifyResult, s.workers*2)

	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.worker(ctx, itemsChan, resultsChan, opts)
		}()
	}

	// Single collector owns PerClass.
	done := make(chan struct{})
	go func() {
		for result := range resultsChan {
			atomic.AddInt64(&stats.ProcessedItems, 1)
			if result.err != nil {
				atomic.AddInt64(&stats.FailedItems, 1)
				logger.FromContext(ctx).WithField("source_id", result.sourceID).
					WithError(result.err).Error("Failed to classify item")
				continue
			}
			stats.PerClass[result.class.String()]++
		}
		close(done)
	}()

	var fetchErr error
	cursor := ""
	totalFetched := 0
fetch:
	for ctx.Err() == nil {
		batchLimit := s.batchSize
		if limit > 0 {
			remaining := limit - totalFetched
			if remaining <= 0 {
				break
			}
			if batchLimit > remaining {
				batchLimit = remaining
			}
		}

		items, nextCursor, err := src.FetchBatch(ctx, cursor, batchLimit)
		if err != nil {
			fetchErr = fmt.Errorf("failed to fetch batch: %w", err)
			break
		}
		if len(items) == 0 {
			break
		}

		for _, item := range items {
			select {
			case itemsChan <- item:
				atomic.AddInt64(&stats.TotalItems, 1)
				totalFetched++
			case <-ctx.Done():
				break fetch
			}
		}

		if nextCursor == "" {
			break
		}
		cursor = nextCursor
	}

	close(itemsChan)
	wg.Wait()
	close(resultsChan)
	<-done

	stats.EndTime = time.Now()

	logger.FromContext(ctx).WithFields(logger.Fields{
		"total":     stats.TotalItems,
		"processed": stats.ProcessedItems,
		"failed":    stats.FailedItems,
		"duration":  stats.EndTime.Sub(stats.StartTime).String(),
	}).Info("Batch classification completed")

	runErr := fetchErr
	if runErr == nil {
		runErr = ctx.Err()
	}
	s.finishJob(ctx, job, stats, runErr)
	return stats, runErr
}

// RecentJobs returns the n newest recorded runs, or nil when runs are not recorded.
func (s *BatchService) RecentJobs(ctx context.Context, n int) ([]domain.BatchJob, error) {
	if s.jobs == nil {
		return nil, nil
	}
	return s.jobs.Recent(ctx, n)
}

func (s *BatchService) startJob(ctx context.Context, sourceID string, start time.Time) *domain.BatchJob {
	if s.jobs == nil {
		return nil
	}
	job := &domain.BatchJob{
		ID:        uuid.NewString(),
		SourceID:  sourceID,
		Status:    domain.JobStatusRunning,
		StartedAt: &start,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		logger.FromContext(ctx).WithError(err).Warn("Failed to record batch job")
		return nil
	}
	return job
}

func (s *BatchService) finishJob(ctx context.Context, job *domain.BatchJob, stats *BatchStats, runErr error) {
	if job == nil {
		return
	}
	job.TotalItems = stats.TotalItems
	job.ProcessedItems = stats.ProcessedItems
	job.FailedItems = stats.FailedItems
	job.CompletedAt = &stats.EndTime
	job.Status = domain.JobStatusCompleted
	if runErr != nil {
		job.Status = domain.JobStatusFailed
		job.ErrorLog = runErr.Error()
	}
	// The run context may already be canceled.
	if err := s.jobs.Update(context.WithoutCancel(ctx), job); err != nil {
		logger.FromContext(ctx).WithError(err).Warn("Failed to update batch job")
	}
}

func (s *BatchService) worker(ctx context.Context, items <-chan source.ImageItem, results chan<- *classifyResult, opts *BatchOptions) {
	for item := range items {
		result := &classifyResult{sourceID: item.SourceID}
		if ctx.Err() != nil {
			result.err = ctx.Err()
			results <- result
			continue
		}

		record, err := s.classifyItem(ctx, item, opts)
		if err != nil {
			result.err = err
		} else {
			result.class = record.PredictedClass
		}
		results <- result
	}
}

func (s *BatchService) classifyItem(ctx context.Context, item source.ImageItem, opts *BatchOptions) (*domain.PredictionResult, error) {
	data, err := os.ReadFile(item.LocalPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}

	email, name := item.UserEmail, item.UserName
	if email == "" {
		email, name = opts.UserEmail, opts.UserName
	}

	return s.predictions.Predict(ctx, PredictInput{
		Data:        data,
		Filename:    item.Filename,
		ContentType: item.ContentType,
		UserName:    name,
		UserEmail:   email,
	})
}
