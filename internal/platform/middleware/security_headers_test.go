package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func serveWithHeaders(t *testing.T, sc SecurityConfig, handler echo.HandlerFunc) (*httptest.ResponseRecorder, error) {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/patients", nil), rec)
	return rec, SecurityHeaders(sc)(handler)(c)
}

func TestSecurityHeaders(t *testing.T) {
	ok := func(c echo.Context) error { return c.String(http.StatusOK, "ok") }

	tests := []struct {
		name string
		sc   SecurityConfig
		hsts string
	}{
		{"plain http", SecurityConfig{}, ""},
		{"tls", TLSSecurity(), "max-age=31536000; includeSubDomains"},
		{"short hsts", SecurityConfig{HSTSMaxAge: 10 * time.Minute}, "max-age=600; includeSubDomains"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := serveWithHeaders(t, tt.sc, ok)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := rec.Header().Get("Strict-Transport-Security"); got != tt.hsts {
				t.Errorf("HSTS: got %q, want %q", got, tt.hsts)
			}
			if got := rec.Header().Get("Cache-Control"); got != "no-store" {
				t.Errorf("Cache-Control: got %q", got)
			}
			if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
				t.Errorf("X-Frame-Options: got %q", got)
			}
		})
	}
}

func TestSecurityHeaders_OnErrorResponses(t *testing.T) {
	rec, err := serveWithHeaders(t, SecurityConfig{}, func(echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "patient not found")
	})
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusNotFound {
		t.Fatalf("expected 404 HTTPError, got %v", err)
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected nosniff on error responses")
	}
}
