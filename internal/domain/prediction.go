package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// DefaultModelVersion tags predictions made by the bundled classifier.
const DefaultModelVersion = "1.0.0"

// Probabilities maps every disease label to the probability assigned by the model.
// Stored as a JSON document column.
type Probabilities map[string]float64

// Value implements the driver.Valuer interface for database serialization.
func (p Probabilities) Value() (driver.Value, error) {
	if p == nil {
		return "{}", nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
func (p *Probabilities) Scan(value interface{}) error {
	if value == nil {
		*p = Probabilities{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan Probabilities")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, p)
}

// Argmax returns the label with the highest probability.
// Ties resolve to the class that comes first in model output order.
func (p Probabilities) Argmax() (DiseaseClass, float64) {
	best, bestProb := DiseaseNormal, -1.0
	for _, c := range AllDiseaseClasses() {
		prob, ok := p[c.String()]
		if ok && prob > bestProb {
			best, bestProb = c, prob
		}
	}
	return best, bestProb
}

// PredictionResult is one inference run over one submitted image.
// Records are created once and never modified or deleted.
type PredictionResult struct {
	ID              string        `gorm:"type:text;primaryKey" json:"id"`
	UserName        *string       `gorm:"type:text" json:"user_name,omitempty"`
	UserEmail       *string       `gorm:"type:text;index:idx_predictions_user_email" json:"user_email,omitempty"`
	ImageFilename   *string       `gorm:"type:text" json:"image_filename,omitempty"`
	ImageURL        *string       `gorm:"type:text" json:"image_url,omitempty"`
	ImageWidth      int           `json:"image_width"`
	ImageHeight     int           `json:"image_height"`
	PredictedClass  DiseaseClass  `gorm:"type:text;not null;index:idx_predictions_class" json:"predicted_class"`
	ConfidenceScore float64       `gorm:"not null" json:"confidence_score"`
	AllPredictions  Probabilities `gorm:"type:text;not null" json:"all_predictions"`
	ProcessingTime  float64       `gorm:"not null" json:"processing_time"`
	ModelVersion    string        `gorm:"type:text" json:"model_version"`
	CreatedAt       time.Time     `gorm:"index:idx_predictions_created_at" json:"created_at"`
}

// TableName returns the database table name for PredictionResult.
func (PredictionResult) TableName() string {
	return "predictions"
}

// HasImage reports whether the raw upload was persisted for this prediction.
func (p *PredictionResult) HasImage() bool {
	return p.ImageFilename != nil && *p.ImageFilename != ""
}

// PredictionFilter narrows prediction listings.
type PredictionFilter struct {
	UserEmail string
}

// StringPtr returns nil for empty strings so optional columns stay NULL.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns the pointed-to string or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
