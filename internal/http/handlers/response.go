// Package handlers provides HTTP handler implementations for the public API.
//
// This file holds the response helpers shared by every endpoint: the error
// envelope, success writers, and the mapping from record store failures to
// status codes.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-mess-offline/internal/http/middleware"
	"github.com/tbourn/go-mess-offline/internal/store"
)

// ErrorResponse is the standard error envelope returned by all endpoints.
type ErrorResponse struct {
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code (see errors.go constants)
	Code string `json:"code" example:"not_found"`
	// Human-readable message (safe to show to users)
	Message string `json:"message" example:"record not found"`
}

// fail aborts with the error envelope. 5xx responses are logged through the
// request-scoped logger.
func fail(c *gin.Context, status int, code, msg string) {
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      code,
		Message:   msg,
	})
}

// Fail is the exported variant of fail for the router's NoMethod handler.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// storageFail translates a record store error. Driver details go to the log,
// never to the client.
func storageFail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrInvalidRecord):
		fail(c, http.StatusBadRequest, ErrCodeInvalidRecord, err.Error())
	case errors.Is(err, store.ErrStorageUnavailable):
		middleware.LoggerFrom(c).Error().Err(err).Msg("record store unavailable")
		fail(c, http.StatusServiceUnavailable, ErrCodeStorageUnavailable, "record storage is unavailable")
	case errors.Is(err, store.ErrStorageWriteFailed):
		middleware.LoggerFrom(c).Error().Err(err).Msg("record store write failed")
		fail(c, http.StatusInternalServerError, ErrCodeStorageWriteFailed, "record storage write failed")
	case errors.Is(err, store.ErrStorageReadFailed):
		middleware.LoggerFrom(c).Error().Err(err).Msg("record store read failed")
		fail(c, http.StatusInternalServerError, ErrCodeStorageReadFailed, "record storage read failed")
	default:
		middleware.LoggerFrom(c).Error().Err(err).Msg("record store error")
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal error")
	}
}

func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
