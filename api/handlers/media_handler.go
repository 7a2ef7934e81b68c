package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/velocity-go/api/middleware"
	"github.com/yourusername/velocity-go/internal/app"
	"github.com/yourusername/velocity-go/internal/domain"
)

// MediaHandler handles metadata, format, stream and playlist requests
type MediaHandler struct {
	service *app.Service
	logger  *zap.Logger
}

// NewMediaHandler creates a new media handler
func NewMediaHandler(service *app.Service, logger *zap.Logger) *MediaHandler {
	return &MediaHandler{service: service, logger: logger}
}

// LookupRequest represents a metadata or raw-info request
type LookupRequest struct {
	URL     string `json:"url" binding:"required"`
	Cookies string `json:"cookies,omitempty"`
}

// StreamRequest represents a stream-resolution request
type StreamRequest struct {
	URL           string `json:"url" binding:"required"`
	Mode          string `json:"mode,omitempty"`
	Cookies       string `json:"cookies,omitempty"`
	FormatID      string `json:"format_id,omitempty"`
	AudioFormatID string `json:"audio_format_id,omitempty"`
	VideoFormatID string `json:"video_format_id,omitempty"`
	MaxHeight     int    `json:"max_height,omitempty"`
	PreferredExt  string `json:"preferred_ext,omitempty"`
}

// PageRequest represents a playlist or library listing request
type PageRequest struct {
	URL     string `json:"url,omitempty"`
	Cookies string `json:"cookies,omitempty"`
	Limit   int    `json:"limit,omitempty"`
	Offset  int    `json:"offset,omitempty"`
}

// Info handles POST /info
func (h *MediaHandler) Info(c *gin.Context) {
	var req LookupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	meta, err := h.service.LookupMetadata(c.Request.Context(), middleware.ClientID(c), req.URL, domain.LookupOptions{Cookies: req.Cookies})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, meta)
}

// RawInfo handles POST /info/raw
func (h *MediaHandler) RawInfo(c *gin.Context) {
	var req LookupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	raw, err := h.service.LookupRaw(c.Request.Context(), middleware.ClientID(c), req.URL, domain.LookupOptions{Cookies: req.Cookies})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, raw)
}

// Formats handles POST /formats
func (h *MediaHandler) Formats(c *gin.Context) {
	var req LookupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.formats(c, req.URL, req.Cookies)
}

// FormatsQuery handles GET /formats?url=
func (h *MediaHandler) FormatsQuery(c *gin.Context) {
	h.formats(c, c.Query("url"), "")
}

func (h *MediaHandler) formats(c *gin.Context, url, cookies string) {
	list, err := h.service.LookupFormats(c.Request.Context(), middleware.ClientID(c), url, domain.LookupOptions{Cookies: cookies})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// Stream handles POST /stream
func (h *MediaHandler) Stream(c *gin.Context) {
	var req StreamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	stream, err := h.service.ResolveStream(c.Request.Context(), middleware.ClientID(c), req.URL, domain.StreamOptions{
		Mode:          domain.StreamMode(req.Mode),
		Cookies:       req.Cookies,
		FormatID:      req.FormatID,
		AudioFormatID: req.AudioFormatID,
		VideoFormatID: req.VideoFormatID,
		MaxHeight:     req.MaxHeight,
		PreferredExt:  req.PreferredExt,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stream)
}

// Playlist handles POST /playlist
func (h *MediaHandler) Playlist(c *gin.Context) {
	var req PageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.URL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url is required"})
		return
	}

	page, err := h.service.Playlist(c.Request.Context(), middleware.ClientID(c), req.URL, domain.PageOptions{
		Cookies: req.Cookies,
		Limit:   req.Limit,
		Offset:  req.Offset,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// Library handles POST /library/:kind
func (h *MediaHandler) Library(c *gin.Context) {
	var req PageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	page, err := h.service.Library(c.Request.Context(), middleware.ClientID(c), c.Param("kind"), domain.PageOptions{
		Cookies: req.Cookies,
		Limit:   req.Limit,
		Offset:  req.Offset,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// ClearCache handles POST /cache/clear
func (h *MediaHandler) ClearCache(c *gin.Context) {
	h.service.ClearCache()
	h.logger.Info("Cache cleared", zap.String("client_ip", c.ClientIP()))
	c.JSON(http.StatusOK, gin.H{"status": "cleared"})
}
