package adherence

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinic/carecore/internal/domain/policy"
	"github.com/clinic/carecore/internal/platform/httperr"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/patients/:id/adherence", h.RecordIntake)
	api.GET("/patients/:id/adherence", h.DayStatus)
	api.GET("/patients/:id/adherence/rate", h.RollingRate)
	api.GET("/patients/:id/adherence/summary", h.Summary)
}

type intakeRequest struct {
	Medication string `json:"medication"`
	Date       string `json:"date"`
	Taken      bool   `json:"taken"`
}

// RecordIntake defaults the date to today when omitted.
func (h *Handler) RecordIntake(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httperr.BadRequest("invalid id")
	}
	var req intakeRequest
	if err := c.Bind(&req); err != nil {
		return httperr.BadRequest(err.Error())
	}
	date := h.svc.policy.Today(h.svc.store.Now())
	if req.Date != "" {
		if date, err = policy.ParseDate(req.Date); err != nil {
			return httperr.BadRequest("date must be YYYY-MM-DD")
		}
	}
	rec, err := h.svc.RecordIntake(c.Request().Context(), id, req.Medication, date, req.Taken)
	if err != nil {
		return httperr.From(err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) DayStatus(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httperr.BadRequest("invalid id")
	}
	date := h.svc.policy.Today(h.svc.store.Now())
	if d := c.QueryParam("date"); d != "" {
		if date, err = policy.ParseDate(d); err != nil {
			return httperr.BadRequest("date must be YYYY-MM-DD")
		}
	}
	items, err := h.svc.DayStatus(c.Request().Context(), id, date)
	if err != nil {
		return httperr.From(err)
	}
	return c.JSON(http.StatusOK, items)
}

// RollingRate reads the window from ?window=, defaulting to the short
// window.
func (h *Handler) RollingRate(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httperr.BadRequest("invalid id")
	}
	window := h.svc.policy.ShortWindowDays
	if w := c.QueryParam("window"); w != "" {
		if window, err = strconv.Atoi(w); err != nil {
			return httperr.BadRequest("window must be an integer")
		}
	}
	rate, err := h.svc.RollingAdherenceRate(c.Request().Context(), id, window)
	if err != nil {
		return httperr.From(err)
	}
	return c.JSON(http.StatusOK, rate)
}

func (h *Handler) Summary(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httperr.BadRequest("invalid id")
	}
	sum, err := h.svc.Summary(c.Request().Context(), id)
	if err != nil {
		return httperr.From(err)
	}
	return c.JSON(http.StatusOK, sum)
}
