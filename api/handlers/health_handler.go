package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/velocity-go/internal/app"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	service *app.Service
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(service *app.Service) *HealthHandler {
	return &HealthHandler{service: service}
}

// Health handles GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	stats := h.service.Stats()
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"stats":  stats,
	})
}
