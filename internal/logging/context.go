package logging

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const traceHeader = "X-Trace-ID"

// GenerateTraceID generates a new trace ID
func GenerateTraceID() string {
	return uuid.NewString()
}

// FromContext retrieves the request logger, falling back to fallback
func FromContext(ctx context.Context, fallback zerolog.Logger) zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return *l
	}
	return fallback
}

// NewContext creates a new context with the logger
func NewContext(ctx context.Context, l zerolog.Logger) context.Context {
	return l.WithContext(ctx)
}

// SignalContext creates a logger for one inbound signal
func SignalContext(l zerolog.Logger, symbol, action string) zerolog.Logger {
	return l.With().
		Str("component", "signal").
		Str("symbol", symbol).
		Str("action", action).
		Logger()
}

// PositionContext creates a logger for position operations
func PositionContext(l zerolog.Logger, symbol, side, positionID string) zerolog.Logger {
	return l.With().
		Str("component", "position").
		Str("symbol", symbol).
		Str("side", side).
		Str("position_id", positionID).
		Logger()
}

// GinMiddleware attaches a trace-scoped logger to every request and logs
// its completion
func GinMiddleware(base zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		traceID := c.GetHeader(traceHeader)
		if traceID == "" {
			traceID = GenerateTraceID()
		}
		c.Header(traceHeader, traceID)

		l := base.With().
			Str("component", "http").
			Str("trace_id", traceID).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Logger()
		c.Request = c.Request.WithContext(NewContext(c.Request.Context(), l))

		c.Next()

		status := c.Writer.Status()
		ev := l.Info()
		if status >= 500 {
			ev = l.Error()
		} else if status >= 400 {
			ev = l.Warn()
		}
		ev.Int("status_code", status).
			Dur("duration", time.Since(start)).
			Str("remote_addr", c.ClientIP()).
			Msg("Request completed")
	}
}
