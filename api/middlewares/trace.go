package middlewares

import (
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// TraceIDHeader carries the request trace id back to the caller.
const TraceIDHeader = "X-Trace-ID"

// traceIDKey is the echo context key of the trace id.
const traceIDKey = "trace_id"

// NewTraceID returns an id of the form req-xxxxxxxx.
func NewTraceID() string {
	return "req-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// MakeTraceID assigns every request a trace id, stores it in the context and
// returns it in the X-Trace-ID response header.
func MakeTraceID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			id := NewTraceID()
			ctx.Set(traceIDKey, id)
			ctx.Response().Header().Set(TraceIDHeader, id)
			return next(ctx)
		}
	}
}

// TraceID returns the trace id of the request, empty outside MakeTraceID.
func TraceID(ctx echo.Context) string {
	id, _ := ctx.Get(traceIDKey).(string)
	return id
}
