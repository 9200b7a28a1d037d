// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file provides correlation and failure handling:
//
//   - RequestID() reuses or mints an X-Request-ID per request.
//   - ClientID() identifies the calling device from X-Client-ID; it keys rate
//     limiting and idempotency records.
//   - Recovery() turns panics into the JSON error envelope.
//   - LoggerFrom() returns the request-scoped logger attached by
//     RedactingLogger.
//
// Order: RequestID, ClientID, RedactingLogger, Recovery.
package middleware

import (
	"net/http"
	"regexp"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	requestIDKey    = "requestID"
	requestIDHeader = "X-Request-ID"

	clientIDKey    = "clientID"
	clientIDHeader = "X-Client-ID"

	// AnonymousClient is used when a request carries no usable X-Client-ID.
	AnonymousClient = "anonymous"

	loggerKey         = "logger"
	maxQueryLogLength = 2048
)

var clientIDRE = regexp.MustCompile(`^[A-Za-z0-9._:\-]{1,128}$`)

// RequestID attaches (or propagates) a correlation identifier per request and
// echoes it in the X-Request-ID response header.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(requestIDHeader)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Writer.Header().Set(requestIDHeader, rid)
		c.Next()
	}
}

// ClientID stores the X-Client-ID header under the "clientID" context key.
// Missing or malformed values fall back to AnonymousClient.
func ClientID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(clientIDHeader)
		if !clientIDRE.MatchString(id) {
			id = AnonymousClient
		}
		c.Set(clientIDKey, id)
		c.Next()
	}
}

// ClientFrom returns the client identity set by ClientID.
func ClientFrom(c *gin.Context) string {
	if s := asString(c.Value(clientIDKey)); s != "" {
		return s
	}
	return AnonymousClient
}

// Recovery intercepts panics, logs the stack with the request id, and replies
// 500 with the standard error envelope when nothing was written yet.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			rid := asString(c.Value(requestIDKey))
			log.Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Str("request_id", rid).
				Msg("panic recovered")

			if c.Writer.Written() {
				c.AbortWithStatus(http.StatusInternalServerError)
				return
			}
			c.Header(requestIDHeader, rid)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"request_id": rid,
				"code":       "internal_error",
				"message":    "internal server error",
			})
		}()
		c.Next()
	}
}

// LoggerFrom returns the request-scoped zerolog.Logger, or the global logger
// when none was attached. The result is never nil.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if lg, ok := c.Value(loggerKey).(*zerolog.Logger); ok {
		return lg
	}
	l := log.With().Logger()
	return &l
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

// truncate caps s at max bytes and marks the cut. max <= 0 disables it.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
