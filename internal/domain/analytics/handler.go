package analytics

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinic/carecore/internal/platform/httperr"
)

type Handler struct {
	engine *Engine
}

func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/analytics")
	g.GET("/overview", h.Overview)
	g.GET("/report", h.Report)
	g.GET("/ages", h.AgeDistribution)
	g.GET("/conditions", h.ConditionFrequency)
	g.GET("/completion-rate", h.CompletionRate)
	g.GET("/appointments/daily", h.DailyAppointments)
	g.GET("/appointments/weekly", h.WeeklyAppointments)
	g.GET("/risk", h.RiskDistribution)
	g.GET("/risk/patients/:id", h.RiskForPatient)
	g.GET("/adherence", h.ClinicAdherence)
	g.GET("/lifestyle", h.Lifestyle)
	g.GET("/insights", h.PatientInsights)
	g.GET("/clinicians/:id/dashboard", h.ClinicianDashboard)
}

// intParam reads an optional positive integer query parameter.
func intParam(c echo.Context, name string, def int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, httperr.BadRequest(name + " must be an integer")
	}
	return v, nil
}

func (h *Handler) Overview(c echo.Context) error {
	return c.JSON(http.StatusOK, h.engine.Overview(c.Request().Context()))
}

func (h *Handler) Report(c echo.Context) error {
	return c.JSON(http.StatusOK, h.engine.Report(c.Request().Context()))
}

func (h *Handler) AgeDistribution(c echo.Context) error {
	return c.JSON(http.StatusOK, h.engine.AgeDistribution(c.Request().Context()))
}

func (h *Handler) ConditionFrequency(c echo.Context) error {
	top, err := intParam(c, "top", 0)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, h.engine.ConditionFrequency(c.Request().Context(), top))
}

func (h *Handler) CompletionRate(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]int{"completion_rate": h.engine.CompletionRate(c.Request().Context())})
}

// DailyAppointments accepts ?days= (default 30) and ?clinician_id=.
func (h *Handler) DailyAppointments(c echo.Context) error {
	days, err := intParam(c, "days", ReportDays)
	if err != nil {
		return err
	}
	var clinician *uuid.UUID
	if raw := c.QueryParam("clinician_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return httperr.BadRequest("invalid clinician_id")
		}
		clinician = &id
	}
	buckets, err := h.engine.DailyAppointments(c.Request().Context(), days, clinician)
	if err != nil {
		return httperr.From(err)
	}
	return c.JSON(http.StatusOK, buckets)
}

func (h *Handler) WeeklyAppointments(c echo.Context) error {
	weeks, err := intParam(c, "weeks", 4)
	if err != nil {
		return err
	}
	buckets, err := h.engine.WeeklyAppointments(c.Request().Context(), weeks)
	if err != nil {
		return httperr.From(err)
	}
	return c.JSON(http.StatusOK, buckets)
}

func (h *Handler) RiskDistribution(c echo.Context) error {
	return c.JSON(http.StatusOK, h.engine.RiskDistribution(c.Request().Context()))
}

func (h *Handler) RiskForPatient(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httperr.BadRequest("invalid id")
	}
	risk, err := h.engine.RiskForPatient(c.Request().Context(), id)
	if err != nil {
		return httperr.From(err)
	}
	return c.JSON(http.StatusOK, risk)
}

func (h *Handler) ClinicAdherence(c echo.Context) error {
	return c.JSON(http.StatusOK, h.engine.ClinicAdherence(c.Request().Context()))
}

func (h *Handler) Lifestyle(c echo.Context) error {
	return c.JSON(http.StatusOK, h.engine.Lifestyle(c.Request().Context()))
}

func (h *Handler) PatientInsights(c echo.Context) error {
	return c.JSON(http.StatusOK, h.engine.PatientInsights(c.Request().Context()))
}

func (h *Handler) ClinicianDashboard(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httperr.BadRequest("invalid id")
	}
	d, err := h.engine.ClinicianDashboard(c.Request().Context(), id)
	if err != nil {
		return httperr.From(err)
	}
	return c.JSON(http.StatusOK, d)
}
