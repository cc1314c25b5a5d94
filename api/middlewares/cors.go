package middlewares

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// MakeCORS allows the dashboard origins, all of them when origins is empty.
// Private Network Access preflights from the dashboard are accepted as well.
func MakeCORS(origins []string) echo.MiddlewareFunc {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	cors := middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:  origins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		ExposeHeaders: []string{TraceIDHeader},
	})

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		h := cors(next)
		return func(ctx echo.Context) error {
			req := ctx.Request()
			if req.Method == http.MethodOptions && req.Header.Get("Access-Control-Request-Private-Network") == "true" {
				ctx.Response().Header().Set("Access-Control-Allow-Private-Network", "true")
			}
			return h(ctx)
		}
	}
}
