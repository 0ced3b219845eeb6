package notification

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinic/carecore/internal/domain/policy"
	"github.com/clinic/carecore/internal/platform/httperr"
)

// Handler exposes the outbox and reminder triggers over HTTP.
type Handler struct {
	mgr        *Manager
	dispatcher *Dispatcher
	pol        policy.Policy
	now        func() time.Time
}

func NewHandler(mgr *Manager, dispatcher *Dispatcher, pol policy.Policy, now func() time.Time) *Handler {
	if now == nil {
		now = time.Now
	}
	return &Handler{mgr: mgr, dispatcher: dispatcher, pol: pol, now: now}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/notifications", h.HandleList)
	g.GET("/notifications/stats", h.HandleStats)
	g.GET("/notifications/:id", h.HandleGet)
	g.POST("/notifications/:id/retry", h.HandleRetry)
	g.POST("/patients/:id/reminders", h.HandleMedicationReminders)
	g.POST("/appointments/reminders", h.HandleAppointmentReminders)
}

// HandleList handles GET /notifications?recipient=&patient_id=&limit=
func (h *Handler) HandleList(c echo.Context) error {
	limit := 100
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return httperr.BadRequest("limit must be a positive integer")
		}
		limit = n
	}
	list := h.mgr.List(c.Request().Context(), c.QueryParam("recipient"), c.QueryParam("patient_id"), limit)
	return c.JSON(http.StatusOK, list)
}

func (h *Handler) HandleGet(c echo.Context) error {
	n, err := h.mgr.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, map[string]string{"kind": "not_found", "message": err.Error()})
	}
	return c.JSON(http.StatusOK, n)
}

// HandleRetry answers 502 when the retry itself fails.
func (h *Handler) HandleRetry(c echo.Context) error {
	n, err := h.mgr.Retry(c.Request().Context(), c.Param("id"))
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, map[string]string{"kind": "not_found", "message": err.Error()})
	case errors.Is(err, ErrNotRetryable):
		return echo.NewHTTPError(http.StatusConflict, map[string]string{"kind": "invalid_state", "message": err.Error()})
	case err != nil:
		return c.JSON(http.StatusBadGateway, n)
	}
	return c.JSON(http.StatusOK, n)
}

func (h *Handler) HandleStats(c echo.Context) error {
	return c.JSON(http.StatusOK, h.mgr.Stats(c.Request().Context()))
}

// dateParam reads an optional YYYY-MM-DD query date.
func dateParam(c echo.Context, def time.Time) (time.Time, error) {
	raw := c.QueryParam("date")
	if raw == "" {
		return def, nil
	}
	d, err := policy.ParseDate(raw)
	if err != nil {
		return time.Time{}, httperr.BadRequest("date must be YYYY-MM-DD")
	}
	return d, nil
}

// HandleMedicationReminders defaults to today.
func (h *Handler) HandleMedicationReminders(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httperr.BadRequest("invalid id")
	}
	day, err := dateParam(c, h.pol.Today(h.now()))
	if err != nil {
		return err
	}
	sent, err := h.dispatcher.MedicationReminders(c.Request().Context(), id, day)
	if err != nil {
		return httperr.From(err)
	}
	return c.JSON(http.StatusOK, sent)
}

// HandleAppointmentReminders defaults to tomorrow.
func (h *Handler) HandleAppointmentReminders(c echo.Context) error {
	day, err := dateParam(c, h.pol.Today(h.now()).AddDate(0, 0, 1))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, h.dispatcher.AppointmentReminders(c.Request().Context(), day))
}
