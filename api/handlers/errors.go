package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/velocity-go/internal/domain"
)

// statusFor maps the structured error taxonomy onto HTTP status codes
func statusFor(err error) int {
	switch domain.KindOf(err) {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindRateLimited:
		return http.StatusTooManyRequests
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindTimeout:
		return http.StatusGatewayTimeout
	case domain.KindExternal:
		return http.StatusBadGateway
	case domain.KindCancelled:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes the structured error payload for err
func respondError(c *gin.Context, err error) {
	var de *domain.Error
	if errors.As(err, &de) {
		body := gin.H{"error": de.Message, "kind": de.Kind}
		if de.Subkind != "" {
			body["subkind"] = de.Subkind
		}
		c.JSON(statusFor(err), body)
		return
	}
	c.JSON(statusFor(err), gin.H{"error": err.Error(), "kind": domain.KindInternal})
}
