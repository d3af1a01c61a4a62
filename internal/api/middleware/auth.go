package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/timmy/lungscan/internal/domain"
	"github.com/timmy/lungscan/internal/logger"
)

const currentUserKey = "current_user"

// Authenticator resolves a bearer token to its account.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*domain.User, error)
}

// RequireAuth rejects requests without a valid bearer token and stores the user for handlers.
func RequireAuth(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
			unauthorized(c, "Missing or malformed Authorization header")
			return
		}

		user, err := auth.Authenticate(c.Request.Context(), strings.TrimSpace(parts[1]))
		if err != nil {
			if !errors.Is(err, domain.ErrUnauthorized) {
				GetLogger(c).WithError(err).Error("Authentication failed")
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Authentication failed"})
				return
			}
			GetLogger(c).WithError(err).Debug("Token rejected")
			unauthorized(c, "Invalid or expired token")
			return
		}

		c.Request = c.Request.WithContext(logger.WithField(c.Request.Context(), logger.FieldUserEmail, user.Email))
		c.Set(currentUserKey, user)
		c.Next()
	}
}

// CurrentUser returns the account set by RequireAuth.
func CurrentUser(c *gin.Context) (*domain.User, bool) {
	v, ok := c.Get(currentUserKey)
	if !ok {
		return nil, false
	}
	user, ok := v.(*domain.User)
	return user, ok
}

func unauthorized(c *gin.Context, msg string) {
	c.Header("WWW-Authenticate", `Bearer realm="api"`)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
}

// RequireAdmin must run after RequireAuth.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			unauthorized(c, "Not authenticated")
			return
		}
		if !user.IsAdmin || !user.IsActive {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Administrator access required"})
			return
		}
		c.Next()
	}
}
