package middleware

import (
	"fmt"
	"net/http"
	"runtime"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// PanicHook is told the matched route of every recovered panic.
type PanicHook func(route string)

// Recovery turns a handler panic into an opaque internal error. The stack
// goes to the log, never to the client.
func Recovery(logger zerolog.Logger, hooks ...PanicHook) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				if r == http.ErrAbortHandler {
					panic(r)
				}
				buf := make([]byte, 8<<10)
				buf = buf[:runtime.Stack(buf, false)]
				route := c.Path()
				rid, _ := c.Get("request_id").(string)

				logger.Error().
					Str("request_id", rid).
					Str("method", c.Request().Method).
					Str("route", route).
					Str("panic", fmt.Sprint(r)).
					Bytes("stack", buf).
					Msg("panic recovered")
				for _, h := range hooks {
					h(route)
				}
				err = echo.NewHTTPError(http.StatusInternalServerError, map[string]string{
					"kind":    "internal",
					"message": "internal server error",
				})
			}()
			return next(c)
		}
	}
}
