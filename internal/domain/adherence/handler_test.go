package adherence

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestHandler_RecordIntake_DefaultsToToday(t *testing.T) {
	svc, p := newTestService(t, "Lisinopril")
	h := NewHandler(svc)
	e := echo.New()

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"medication":"Lisinopril","taken":true}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(p.ID.String())

	if err := h.RecordIntake(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	recs := recordsFor(t, svc, p.ID)
	if len(recs) != 1 || !recs[0].Date.Equal(day(10)) {
		t.Errorf("expected one record dated today, got %+v", recs)
	}
}

func TestHandler_RecordIntake_UnknownMedication(t *testing.T) {
	svc, p := newTestService(t, "Lisinopril")
	h := NewHandler(svc)
	e := echo.New()

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"medication":"Aspirin","date":"2025-01-09","taken":true}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(p.ID.String())

	err := h.RecordIntake(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestHandler_RollingRate(t *testing.T) {
	svc, p := newTestService(t, "Lisinopril")
	h := NewHandler(svc)
	e := echo.New()

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/?window=30", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues(p.ID.String())

	if err := h.RollingRate(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got Rate
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.WindowDays != 30 || got.Expected != 30 {
		t.Errorf("unexpected rate %+v", got)
	}
}

func TestHandler_RollingRate_BadWindow(t *testing.T) {
	svc, p := newTestService(t, "Lisinopril")
	h := NewHandler(svc)
	e := echo.New()

	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/?window=abc", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(p.ID.String())

	he, ok := h.RollingRate(c).(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", he)
	}
}
