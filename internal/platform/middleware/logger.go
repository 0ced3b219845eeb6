package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinic/carecore/internal/platform/auth"
)

// Logger writes one access line per request. The level follows the final
// status: Error for 5xx, Warn for 4xx, Info otherwise. Successful requests
// to quiet routes (probes, scrapes) drop to Debug.
func Logger(logger zerolog.Logger, quiet auth.Routes) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				// Rendering here makes the logged status the one the client sees.
				c.Error(err)
			}

			res := c.Response()
			route := c.Path()
			var evt *zerolog.Event
			switch {
			case res.Status >= 500:
				evt = logger.Error().Err(err)
			case res.Status >= 400:
				evt = logger.Warn().Err(err)
			case quiet.Match(route):
				evt = logger.Debug()
			default:
				evt = logger.Info()
			}
			if !evt.Enabled() {
				return nil
			}

			req := c.Request()
			rid, _ := c.Get("request_id").(string)
			user := auth.UserFromContext(req.Context())
			evt.Str("request_id", rid).
				Str("method", req.Method).
				Str("route", route).
				Str("path", req.URL.Path).
				Int("status", res.Status).
				Int64("bytes_out", res.Size).
				Dur("latency", time.Since(start)).
				Str("remote_ip", c.RealIP())
			if !user.Anonymous() {
				evt.Str("actor", user.ID).Str("role", string(user.Role))
			}
			evt.Msg("request")
			return nil
		}
	}
}
