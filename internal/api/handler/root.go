package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ServiceName is reported by the root endpoint.
const ServiceName = "Medical AI - Lung Disease Classification API"

// Root lists the service name, version and public endpoints.
func Root(version string) gin.HandlerFunc {
	body := gin.H{
		"name":    ServiceName,
		"version": version,
		"endpoints": []string{
			"/predict",
			"/predictions",
			"/predictions/{id}/image",
			"/user/{email}/predictions",
			"/health",
			"/stats",
			"/user/{email}/stats",
			"/auth/register",
			"/auth/login",
			"/auth/me",
			"/metrics",
		},
	}
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, body)
	}
}
