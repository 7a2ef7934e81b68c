package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/velocity-go/api/middleware"
	"github.com/yourusername/velocity-go/internal/app"
	"github.com/yourusername/velocity-go/internal/domain"
)

// JobHandler handles download job HTTP requests
type JobHandler struct {
	service *app.Service
	logger  *zap.Logger
}

// NewJobHandler creates a new job handler
func NewJobHandler(service *app.Service, logger *zap.Logger) *JobHandler {
	return &JobHandler{service: service, logger: logger}
}

// DownloadHTTPRequest represents a request to start a download job
type DownloadHTTPRequest struct {
	URL           string `json:"url" binding:"required"`
	Cookies       string `json:"cookies,omitempty"`
	FormatID      string `json:"format_id,omitempty"`
	AudioFormatID string `json:"audio_format_id,omitempty"`
	MaxHeight     int    `json:"max_height,omitempty"`
	PreferredExt  string `json:"preferred_ext,omitempty"`
	Container     string `json:"container,omitempty"`
	Merge         bool   `json:"merge,omitempty"`
}

// StartDownload handles POST /download
func (h *JobHandler) StartDownload(c *gin.Context) {
	var req DownloadHTTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job, err := h.service.StartDownload(c.Request.Context(), middleware.ClientID(c), domain.DownloadRequest{
		URL:           req.URL,
		Cookies:       req.Cookies,
		FormatID:      req.FormatID,
		AudioFormatID: req.AudioFormatID,
		MaxHeight:     req.MaxHeight,
		PreferredExt:  req.PreferredExt,
		Container:     req.Container,
		Merge:         req.Merge,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, job)
}

// GetJob handles GET /download/:id
func (h *JobHandler) GetJob(c *gin.Context) {
	job, err := h.service.GetJob(middleware.ClientID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// CancelJob handles POST /download/:id/cancel
func (h *JobHandler) CancelJob(c *gin.Context) {
	job, err := h.service.CancelJob(middleware.ClientID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// ListJobs handles GET /jobs
func (h *JobHandler) ListJobs(c *gin.Context) {
	jobs, err := h.service.ListJobs(middleware.ClientID(c), domain.JobState(c.Query("state")))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, jobs)
}

// JobStats handles GET /jobs/stats
func (h *JobHandler) JobStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.Stats().Jobs)
}
