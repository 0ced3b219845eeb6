package scheduling

import (
	"net/http"

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
	api.POST("/appointments", h.BookAppointment)
	api.GET("/appointments/:id", h.GetAppointment)
	api.POST("/appointments/:id/complete", h.CompleteAppointment)
	api.POST("/appointments/:id/cancel", h.CancelAppointment)
	api.PUT("/appointments/:id/notes", h.AttachNotes)
	api.GET("/clinicians/:id/appointments", h.ListForClinician)
	api.GET("/clinicians/:id/slots", h.AvailableSlots)
	api.GET("/patients/:id/appointments", h.ListForPatient)
}

type bookRequest struct {
	PatientID   uuid.UUID `json:"patient_id"`
	ClinicianID uuid.UUID `json:"clinician_id"`
	Date        string    `json:"date"`
	Time        string    `json:"time"`
	Reason      string    `json:"reason"`
}

type notesRequest struct {
	Notes string `json:"notes"`
}

func (h *Handler) BookAppointment(c echo.Context) error {
	var req bookRequest
	if err := c.Bind(&req); err != nil {
		return httperr.BadRequest(err.Error())
	}
	if req.PatientID == uuid.Nil || req.ClinicianID == uuid.Nil {
		return httperr.BadRequest("patient_id and clinician_id are required")
	}
	date, err := policy.ParseDate(req.Date)
	if err != nil {
		return httperr.BadRequest("date must be YYYY-MM-DD")
	}
	a, err := h.svc.BookAppointment(c.Request().Context(), BookRequest{
		PatientID:   req.PatientID,
		ClinicianID: req.ClinicianID,
		Date:        date,
		Time:        req.Time,
		Reason:      req.Reason,
	})
	if err != nil {
		return httperr.From(err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) GetAppointment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httperr.BadRequest("invalid id")
	}
	a, err := h.svc.GetAppointment(c.Request().Context(), id)
	if err != nil {
		return httperr.From(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) CompleteAppointment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httperr.BadRequest("invalid id")
	}
	var req notesRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return httperr.BadRequest(err.Error())
		}
	}
	a, err := h.svc.CompleteAppointment(c.Request().Context(), id, req.Notes)
	if err != nil {
		return httperr.From(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) CancelAppointment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httperr.BadRequest("invalid id")
	}
	a, err := h.svc.CancelAppointment(c.Request().Context(), id)
	if err != nil {
		return httperr.From(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) AttachNotes(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httperr.BadRequest("invalid id")
	}
	var req notesRequest
	if err := c.Bind(&req); err != nil {
		return httperr.BadRequest(err.Error())
	}
	a, err := h.svc.AttachNotes(c.Request().Context(), id, req.Notes)
	if err != nil {
		return httperr.From(err)
	}
	return c.JSON(http.StatusOK, a)
}

// ListForClinician accepts optional from/to query dates, both inclusive.
func (h *Handler) ListForClinician(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httperr.BadRequest("invalid id")
	}
	var r DateRange
	if from := c.QueryParam("from"); from != "" {
		if r.From, err = policy.ParseDate(from); err != nil {
			return httperr.BadRequest("from must be YYYY-MM-DD")
		}
	}
	if to := c.QueryParam("to"); to != "" {
		if r.To, err = policy.ParseDate(to); err != nil {
			return httperr.BadRequest("to must be YYYY-MM-DD")
		}
	}
	items, err := h.svc.ListForClinician(c.Request().Context(), id, r)
	if err != nil {
		return httperr.From(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) ListForPatient(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httperr.BadRequest("invalid id")
	}
	items, err := h.svc.ListForPatient(c.Request().Context(), id)
	if err != nil {
		return httperr.From(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) AvailableSlots(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httperr.BadRequest("invalid id")
	}
	date, err := policy.ParseDate(c.QueryParam("date"))
	if err != nil {
		return httperr.BadRequest("date query parameter must be YYYY-MM-DD")
	}
	slots, err := h.svc.AvailableSlots(c.Request().Context(), id, date)
	if err != nil {
		return httperr.From(err)
	}
	return c.JSON(http.StatusOK, slots)
}
