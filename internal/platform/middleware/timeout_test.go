package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitForCancel(c echo.Context) error {
	select {
	case <-time.After(5 * time.Second):
		return c.String(http.StatusOK, "late")
	case <-c.Request().Context().Done():
		return c.Request().Context().Err()
	}
}

func TestRequestTimeout(t *testing.T) {
	tests := []struct {
		name     string
		timeout  time.Duration
		upgrade  bool
		handler  echo.HandlerFunc
		wantCode int
		wantErr  int
	}{
		{
			name:     "completes in time",
			timeout:  5 * time.Second,
			handler:  func(c echo.Context) error { return c.String(http.StatusOK, "ok") },
			wantCode: http.StatusOK,
		},
		{
			name:     "deadline passes",
			timeout:  30 * time.Millisecond,
			handler:  waitForCancel,
			wantCode: http.StatusGatewayTimeout,
		},
		{
			name:    "handler error kept",
			timeout: 5 * time.Second,
			handler: func(echo.Context) error {
				return echo.NewHTTPError(http.StatusNotFound, "appointment not found")
			},
			wantCode: http.StatusOK,
			wantErr:  http.StatusNotFound,
		},
		{
			name:    "already written response kept",
			timeout: 30 * time.Millisecond,
			handler: func(c echo.Context) error {
				_ = c.String(http.StatusAccepted, "partial")
				return waitForCancel(c)
			},
			wantCode: http.StatusAccepted,
			wantErr:  -1,
		},
		{
			name:    "websocket upgrade has no deadline",
			timeout: time.Millisecond,
			upgrade: true,
			handler: func(c echo.Context) error {
				if _, ok := c.Request().Context().Deadline(); ok {
					return echo.NewHTTPError(http.StatusInternalServerError, "unexpected deadline")
				}
				return c.NoContent(http.StatusNoContent)
			},
			wantCode: http.StatusNoContent,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/api/v1/analytics/report", nil)
			if tt.upgrade {
				req.Header.Set(echo.HeaderUpgrade, "WebSocket")
			}
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			err := RequestTimeout(tt.timeout)(tt.handler)(c)
			switch tt.wantErr {
			case 0:
				require.NoError(t, err)
			case -1:
				require.Error(t, err)
			default:
				he, ok := err.(*echo.HTTPError)
				require.True(t, ok, "expected *echo.HTTPError, got %T", err)
				assert.Equal(t, tt.wantErr, he.Code)
			}
			assert.Equal(t, tt.wantCode, rec.Code)
		})
	}
}

func TestRequestTimeout_Body(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	require.NoError(t, RequestTimeout(20*time.Millisecond)(waitForCancel)(c))
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "timeout", body["kind"])
	assert.Equal(t, "request exceeded 20ms", body["message"])
}
