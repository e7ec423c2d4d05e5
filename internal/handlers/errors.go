package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/muandane/ziria/internal/avatar"
)

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func sendError(c *gin.Context, logger *slog.Logger, code int, message string, err error) {
	attrs := []any{
		"error", err,
		"code", code,
		"path", c.Request.URL.Path,
	}
	if code >= http.StatusInternalServerError {
		logger.Error(message, attrs...)
	} else {
		logger.Info(message, attrs...)
	}

	c.AbortWithStatusJSON(code, ErrorResponse{
		Error:   err.Error(),
		Code:    code,
		Message: message,
	})
}

// statusFor maps pipeline errors onto response codes.
func statusFor(err error) (int, string) {
	var (
		validation *avatar.ValidationError
		notFound   *avatar.NotFoundError
		upstream   *avatar.UpstreamError
	)
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest, "validation error"
	case errors.As(err, &notFound):
		return http.StatusNotFound, "resource not found"
	case errors.As(err, &upstream):
		if upstream.Stage == avatar.StageDecode {
			return http.StatusInternalServerError, "texture could not be decoded"
		}
		return http.StatusNotFound, "upstream lookup failed"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func handleError(c *gin.Context, logger *slog.Logger, err error) {
	code, message := statusFor(err)
	sendError(c, logger, code, message, err)
}
