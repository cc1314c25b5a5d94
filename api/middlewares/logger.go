package middlewares

import (
	"net"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
)

// LoggerMiddleware writes one log entry per request.
type LoggerMiddleware struct {
	log *log.Logger
}

// MakeLogger constructs the request logging middleware. It must run after
// MakeTraceID to pick up the trace id.
func MakeLogger(log *log.Logger) echo.MiddlewareFunc {
	logger := LoggerMiddleware{
		log: log,
	}

	return logger.handler
}

func (logger *LoggerMiddleware) handler(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) (err error) {
		start := time.Now()

		res := ctx.Response()
		req := ctx.Request()

		// Propagate the error so the status is final before logging.
		if err = next(ctx); err != nil {
			ctx.Error(err)
		}

		entry := logger.log.WithFields(log.Fields{
			"trace_id":    TraceID(ctx),
			"client":      clientIP(ctx),
			"method":      req.Method,
			"uri":         req.RequestURI,
			"status":      res.Status,
			"bytes_out":   res.Size,
			"duration_ms": float64(time.Since(start).Microseconds()) / 1000,
			"user_agent":  req.UserAgent(),
		})
		if res.Status >= 500 {
			entry.Warn("request completed")
		} else {
			entry.Info("request completed")
		}

		return
	}
}

// clientIP prefers the first X-Forwarded-For hop.
func clientIP(ctx echo.Context) string {
	if fwd := ctx.Request().Header.Get(echo.HeaderXForwardedFor); fwd != "" {
		if ip := strings.TrimSpace(strings.Split(fwd, ",")[0]); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(ctx.Request().RemoteAddr)
	if err != nil {
		return ctx.Request().RemoteAddr
	}
	return host
}
