package middlewares

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// AvailabilityMiddleware rejects requests until a data source is reachable.
type AvailabilityMiddleware struct {
	name      string
	available <-chan struct{}
}

// MakeAvailabilityMiddleware constructs the middleware. available is closed
// once the data source has been reached for the first time.
func MakeAvailabilityMiddleware(name string, available <-chan struct{}) echo.MiddlewareFunc {
	mw := AvailabilityMiddleware{
		name:      name,
		available: available,
	}

	return mw.handler
}

// handler returns a 503 while the data source is unavailable.
func (am *AvailabilityMiddleware) handler(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		if am.available != nil {
			select {
			case <-am.available:
			default:
				return echo.NewHTTPError(http.StatusServiceUnavailable, UnavailableError(am.name))
			}
		}
		return next(ctx)
	}
}

// UnavailableError is the message returned while a data source is down.
func UnavailableError(name string) string {
	return fmt.Sprintf("%s is not available, try again later.", name)
}
