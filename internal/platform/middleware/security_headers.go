package middleware

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
)

// SecurityConfig controls the response headers added to every reply.
// HSTSMaxAge of zero leaves Strict-Transport-Security off, which keeps
// local development over plain HTTP usable.
type SecurityConfig struct {
	HSTSMaxAge time.Duration
}

// TLSSecurity is the configuration used when the server terminates TLS.
func TLSSecurity() SecurityConfig {
	return SecurityConfig{HSTSMaxAge: 365 * 24 * time.Hour}
}

func (sc SecurityConfig) headers() [][2]string {
	h := [][2]string{
		{"X-Content-Type-Options", "nosniff"},
		{"X-Frame-Options", "DENY"},
		{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
		{"Referrer-Policy", "no-referrer"},
		{"Cache-Control", "no-store"},
	}
	if sc.HSTSMaxAge > 0 {
		age := strconv.FormatInt(int64(sc.HSTSMaxAge/time.Second), 10)
		h = append(h, [2]string{"Strict-Transport-Security", "max-age=" + age + "; includeSubDomains"})
	}
	return h
}

// SecurityHeaders sets the headers before the handler runs so error
// responses carry them too.
func SecurityHeaders(sc SecurityConfig) echo.MiddlewareFunc {
	fixed := sc.headers()
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			for _, kv := range fixed {
				h.Set(kv[0], kv[1])
			}
			return next(c)
		}
	}
}
