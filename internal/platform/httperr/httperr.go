// Package httperr translates care core errors into echo HTTP errors.
package httperr

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/clinic/carecore/internal/domain/store"
)

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind store.Kind) int {
	switch kind {
	case store.KindValidation, store.KindInvalidSchedule:
		return http.StatusBadRequest
	case store.KindNotFound:
		return http.StatusNotFound
	case store.KindConflict, store.KindInvalidState:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// From converts err into an *echo.HTTPError. Typed errors keep their
// message and carry the kind as the response code field; anything else
// becomes an opaque 500.
func From(err error) error {
	if err == nil {
		return nil
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return echo.NewHTTPError(http.StatusGatewayTimeout, "request timed out")
	}
	var se *store.Error
	if errors.As(err, &se) {
		return echo.NewHTTPError(StatusFor(se.Kind), map[string]string{
			"kind":    string(se.Kind),
			"message": se.Message,
		})
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
}

// BadRequest is shorthand for malformed path or query parameters.
func BadRequest(msg string) error {
	return echo.NewHTTPError(http.StatusBadRequest, map[string]string{
		"kind":    string(store.KindValidation),
		"message": msg,
	})
}
