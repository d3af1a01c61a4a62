package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/timmy/lungscan/internal/domain"
	"github.com/timmy/lungscan/internal/service"
	"github.com/timmy/lungscan/internal/storage"
)

// PredictionHandler handles upload, listing and image retrieval.
type PredictionHandler struct {
	predictions *service.PredictionService
	maxUpload   int64
}

// NewPredictionHandler creates a new prediction handler. maxUploadBytes <= 0 disables the size check.
func NewPredictionHandler(predictions *service.PredictionService, maxUploadBytes int64) *PredictionHandler {
	return &PredictionHandler{predictions: predictions, maxUpload: maxUploadBytes}
}

// PredictionResponse is the prediction DTO returned by /predict and the listings.
type PredictionResponse struct {
	PredictionID    string               `json:"prediction_id"`
	PredictedClass  domain.DiseaseClass  `json:"predicted_class"`
	ConfidenceScore float64              `json:"confidence_score"`
	AllPredictions  domain.Probabilities `json:"all_predictions"`
	ProcessingTime  float64              `json:"processing_time"`
	CreatedAt       time.Time            `json:"created_at"`
	ImageURL        *string              `json:"image_url"`
}

func (h *PredictionHandler) toResponse(p *domain.PredictionResult) PredictionResponse {
	return PredictionResponse{
		PredictionID:    p.ID,
		PredictedClass:  p.PredictedClass,
		ConfidenceScore: p.ConfidenceScore,
		AllPredictions:  p.AllPredictions,
		ProcessingTime:  p.ProcessingTime,
		CreatedAt:       p.CreatedAt,
		ImageURL:        domain.StringPtr(h.predictions.ImageURL(p)),
	}
}

// Predict handles POST /predict.
func (h *PredictionHandler) Predict(c *gin.Context) {
	if h.maxUpload > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		if tooLarge(err) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"error": "File too large: limit is " + strconv.FormatInt(h.maxUpload, 10) + " bytes",
			})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Field 'file' is required: " + err.Error(),
		})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		respondError(c, "Prediction error", err)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respondError(c, "Prediction error", err)
		return
	}

	record, err := h.predictions.Predict(c.Request.Context(), service.PredictInput{
		Data:        data,
		Filename:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		UserName:    c.PostForm("user_name"),
		UserEmail:   c.PostForm("user_email"),
	})
	if err != nil {
		respondError(c, "Prediction error", err)
		return
	}

	c.JSON(http.StatusOK, h.toResponse(record))
}

// ListPredictions handles GET /predictions.
func (h *PredictionHandler) ListPredictions(c *gin.Context) {
	h.list(c, c.Query("email"))
}

// ListUserPredictions handles GET /user/:email/predictions.
func (h *PredictionHandler) ListUserPredictions(c *gin.Context) {
	h.list(c, c.Param("email"))
}

func (h *PredictionHandler) list(c *gin.Context, email string) {
	skip, err := queryInt(c, "skip", 0)
	if err != nil {
		respondError(c, "List predictions", err)
		return
	}
	limit, err := queryInt(c, "limit", service.DefaultListLimit)
	if err != nil {
		respondError(c, "List predictions", err)
		return
	}

	items, err := h.predictions.ListPredictions(c.Request.Context(), email, skip, limit)
	if err != nil {
		respondError(c, "List predictions", err)
		return
	}

	resp := make([]PredictionResponse, 0, len(items))
	for i := range items {
		resp = append(resp, h.toResponse(&items[i]))
	}
	c.JSON(http.StatusOK, resp)
}

// GetPredictionImage handles GET /predictions/:id/image.
func (h *PredictionHandler) GetPredictionImage(c *gin.Context) {
	img, err := h.predictions.OpenPredictionImage(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "Get image", err)
		return
	}
	if img.RedirectURL != "" {
		c.Redirect(http.StatusFound, img.RedirectURL)
		return
	}
	serveObject(c, img.Object)
}

// GetUploadedImage handles GET /predictions/image/:filename.
func (h *PredictionHandler) GetUploadedImage(c *gin.Context) {
	obj, err := h.predictions.OpenUpload(c.Param("filename"))
	if err != nil {
		respondError(c, "Get image", err)
		return
	}
	serveObject(c, obj)
}

func serveObject(c *gin.Context, obj *storage.Object) {
	defer obj.Body.Close()
	contentType := obj.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.DataFromReader(http.StatusOK, obj.Size, contentType, obj.Body, nil)
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &queryError{key: key, value: raw}
	}
	return v, nil
}

type queryError struct {
	key, value string
}

func (e *queryError) Error() string {
	return "invalid " + e.key + " " + strconv.Quote(e.value)
}

func (e *queryError) Unwrap() error {
	return domain.ErrInvalidInput
}

func tooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}
