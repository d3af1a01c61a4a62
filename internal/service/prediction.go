package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/lungscan/internal/classifier"
	"github.com/timmy/lungscan/internal/domain"
	"github.com/timmy/lungscan/internal/logger"
	"github.com/timmy/lungscan/internal/metrics"
	"github.com/timmy/lungscan/internal/repository"
	"github.com/timmy/lungscan/internal/storage"
)

const (
	DefaultListLimit  = 50
	MaxListLimit      = 100
	RecentPredictions = 10
)

// PredictionService runs the classify, store, persist pipeline and serves prediction queries.
type PredictionService struct {
	classifier  *classifier.Classifier
	images      *storage.ImageStore
	predictions *repository.PredictionRepository
	users       *repository.UserRepository
	metrics     *metrics.Metrics
}

// NewPredictionService creates a new PredictionService. m may be nil.
func NewPredictionService(
	clf *classifier.Classifier,
	images *storage.ImageStore,
	predictions *repository.PredictionRepository,
	users *repository.UserRepository,
	m *metrics.Metrics,
) *PredictionService {
	return &PredictionService{
		classifier:  clf,
		images:      images,
		predictions: predictions,
		users:       users,
		metrics:     m,
	}
}

// PredictInput is one uploaded image and its optional submitter.
type PredictInput struct {
	Data        []byte
	Filename    string
	ContentType string
	UserName    string
	UserEmail   string
}

// Stats is the aggregate view served on /stats.
type Stats struct {
	TotalPredictions  int64                     `json:"total_predictions"`
	TotalUsers        int64                     `json:"total_users"`
	RecentPredictions []domain.PredictionResult `json:"recent_predictions"`
	ModelInfo         classifier.ModelInfo      `json:"model_info"`
}

// Predict classifies the image, stores it and records the prediction.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - in: uploaded bytes plus optional filename and submitter.
//
// Returns:
//   - *domain.PredictionResult: the persisted record.
//   - error: domain.ErrInvalidInput for non-image content types, classifier
//     errors for undecodable images or a missing model, otherwise internal errors.
func (s *PredictionService) Predict(ctx context.Context, in PredictInput) (*domain.PredictionResult, error) {
	if !strings.HasPrefix(strings.ToLower(in.ContentType), "image/") {
		return nil, fmt.Errorf("file must be an image, got %q: %w", in.ContentType, domain.ErrInvalidInput)
	}
	if len(in.Data) == 0 {
		return nil, fmt.Errorf("empty file: %w", domain.ErrInvalidInput)
	}
	email := strings.TrimSpace(in.UserEmail)
	name := strings.TrimSpace(in.UserName)

	res, err := s.classifier.Predict(ctx, in.Data)
	if err != nil {
		s.metrics.RecordPredictionError(predictionErrorType(err))
		return nil, err
	}

	id := uuid.NewString()
	ctx = logger.WithField(ctx, logger.FieldPredictionID, id)

	record := &domain.PredictionResult{
		ID:              id,
		UserName:        domain.StringPtr(name),
		UserEmail:       domain.StringPtr(email),
		ImageWidth:      res.OriginalWidth,
		ImageHeight:     res.OriginalHeight,
		PredictedClass:  res.PredictedClass,
		ConfidenceScore: res.ConfidenceScore,
		AllPredictions:  res.AllPredictions,
		ProcessingTime:  res.ProcessingTime,
		ModelVersion:    s.classifier.Version(),
		CreatedAt:       time.Now().UTC(),
	}

	if in.Filename != "" {
		upload, err := s.images.Upload(ctx, in.Data, in.Filename, in.ContentType)
		if err != nil {
			// Keep the prediction without its image.
			logger.FromContext(ctx).WithError(err).Warn("Failed to store uploaded image")
		} else {
			record.ImageFilename = domain.StringPtr(upload.Reference)
			record.ImageURL = domain.StringPtr(upload.URL)
		}
	}

	if err := s.predictions.Create(ctx, record); err != nil {
		s.metrics.RecordPredictionError("persistence")
		return nil, fmt.Errorf("failed to save prediction: %w", err)
	}

	if email != "" {
		if err := s.users.RecordPrediction(ctx, email, name); err != nil {
			return nil, fmt.Errorf("failed to update user %s: %w", email, err)
		}
	}

	s.metrics.RecordPrediction(res.PredictedClass.String(), res.ProcessingTime)
	logger.With(logger.Fields{
		logger.FieldDurationMs: int64(res.ProcessingTime * 1000),
	}).Info(ctx, "Prediction stored: class=%s, confidence=%.4f", res.PredictedClass, res.ConfidenceScore)

	return record, nil
}

func predictionErrorType(err error) string {
	switch {
	case errors.Is(err, classifier.ErrInvalidImage):
		return "invalid_image"
	case errors.Is(err, classifier.ErrModelUnavailable):
		return "model_unavailable"
	case errors.Is(err, classifier.ErrInvalidOutput):
		return "invalid_output"
	default:
		return "inference"
	}
}

// ImageURL returns the retrieval URL for a prediction's stored image, or "" when none was stored.
func (s *PredictionService) ImageURL(p *domain.PredictionResult) string {
	if !p.HasImage() {
		return ""
	}
	return s.images.ImageURL(*p.ImageFilename, domain.Deref(p.ImageURL))
}

// ClampPagination applies the listing defaults: limit 50 when unset, at most 100, skip never negative.
func ClampPagination(skip, limit int) (int, int) {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	return skip, limit
}

// ListPredictions returns predictions newest-first, optionally restricted to one email.
func (s *PredictionService) ListPredictions(ctx context.Context, email string, skip, limit int) ([]domain.PredictionResult, error) {
	skip, limit = ClampPagination(skip, limit)
	items, err := s.predictions.List(ctx, domain.PredictionFilter{UserEmail: email}, skip, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list predictions: %w", err)
	}
	return items, nil
}

// GetPrediction looks a prediction up by id. Malformed ids yield domain.ErrInvalidInput.
func (s *PredictionService) GetPrediction(ctx context.Context, id string) (*domain.PredictionResult, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("invalid prediction id %q: %w", id, domain.ErrInvalidInput)
	}
	p, err := s.predictions.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get prediction: %w", err)
	}
	if p == nil {
		return nil, fmt.Errorf("prediction %s: %w", id, domain.ErrNotFound)
	}
	return p, nil
}

// PredictionImage is either an open stored object or a URL the client should be sent to.
type PredictionImage struct {
	Object      *storage.Object
	RedirectURL string
}

// OpenPredictionImage resolves the stored image of a prediction.
func (s *PredictionService) OpenPredictionImage(ctx context.Context, id string) (*PredictionImage, error) {
	p, err := s.GetPrediction(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.HasImage() {
		return nil, fmt.Errorf("prediction %s has no stored image: %w", id, domain.ErrNotFound)
	}

	url := domain.Deref(p.ImageURL)
	if url != "" && !s.images.RemoteEnabled() {
		return &PredictionImage{RedirectURL: url}, nil
	}

	obj, err := s.images.Open(ctx, *p.ImageFilename, url)
	if err != nil {
		return nil, err
	}
	return &PredictionImage{Object: obj}, nil
}

// OpenUpload opens a locally stored upload by filename.
func (s *PredictionService) OpenUpload(filename string) (*storage.Object, error) {
	return s.images.OpenLocal(filename)
}

// Stats returns the total count, the newest predictions and classifier metadata.
func (s *PredictionService) Stats(ctx context.Context) (*Stats, error) {
	total, err := s.predictions.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count predictions: %w", err)
	}
	users, err := s.users.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count users: %w", err)
	}
	recent, err := s.predictions.Recent(ctx, RecentPredictions)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent predictions: %w", err)
	}
	return &Stats{
		TotalPredictions:  total,
		TotalUsers:        users,
		RecentPredictions: recent,
		ModelInfo:         s.classifier.Info(),
	}, nil
}

// UserStats summarises one user's predictions. Unknown users yield domain.ErrNotFound.
// The most common class has the highest count; ties go to the class seen first, scanning oldest first.
func (s *PredictionService) UserStats(ctx context.Context, email string) (*domain.UserStats, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("user %s: %w", email, domain.ErrNotFound)
	}

	predictions, err := s.predictions.ListByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to list user predictions: %w", err)
	}

	stats := &domain.UserStats{TotalPredictions: len(predictions)}
	if len(predictions) == 0 {
		return stats, nil
	}

	counts := make(map[domain.DiseaseClass]int, domain.NumDiseaseClasses)
	var order []domain.DiseaseClass
	var confidence float64
	for _, p := range predictions {
		if counts[p.PredictedClass] == 0 {
			order = append(order, p.PredictedClass)
		}
		counts[p.PredictedClass]++
		confidence += p.ConfidenceScore
	}

	best := order[0]
	for _, c := range order[1:] {
		if counts[c] > counts[best] {
			best = c
		}
	}
	label := best.String()
	stats.MostCommonPrediction = &label
	stats.AverageConfidence = confidence / float64(len(predictions))
	return stats, nil
}

// ModelInfo returns classifier metadata.
func (s *PredictionService) ModelInfo() classifier.ModelInfo {
	return s.classifier.Info()
}
