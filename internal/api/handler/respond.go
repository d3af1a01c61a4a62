package handler

import (
	"errors"
	"net/http"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/timmy/lungscan/internal/api/middleware"
	"github.com/timmy/lungscan/internal/classifier"
	"github.com/timmy/lungscan/internal/domain"
	"github.com/timmy/lungscan/internal/logger"
)

// statusFor maps error categories to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, classifier.ErrInvalidImage):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, classifier.ErrModelUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes {"error": msg} with the status implied by err.
// Unclassified errors are prefixed with action, logged and sent to Sentry.
func respondError(c *gin.Context, action string, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = action + ": " + msg
		middleware.GetLogger(c).WithError(err).Errorf("%s failed", action)
		captureError(c, err)
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

// captureError reports err to Sentry. It is a no-op when Sentry was never initialized.
func captureError(c *gin.Context, err error) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("route", c.FullPath())
		scope.SetTag("method", c.Request.Method)
		if id := c.Writer.Header().Get(middleware.RequestIDHeader); id != "" {
			scope.SetTag(logger.FieldRequestID, id)
		}
		sentry.CaptureException(err)
	})
}
