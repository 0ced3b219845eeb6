package registry

import (
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinic/carecore/internal/domain/store"
	"github.com/clinic/carecore/internal/platform/blobstore"
	"github.com/clinic/carecore/internal/platform/httperr"
	"github.com/clinic/carecore/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/patients", h.RegisterPatient)
	api.GET("/patients", h.ListPatients)
	api.GET("/patients/:id", h.GetPatient)
	api.PATCH("/patients/:id", h.UpdatePatient)
	api.PUT("/patients/:id/intake", h.SubmitIntake)
	api.POST("/patients/:id/labs", h.UploadLab)
	api.GET("/patients/:id/labs", h.ListLabResults)

	api.POST("/clinicians", h.CreateClinician)
	api.GET("/clinicians", h.ListClinicians)
	api.GET("/clinicians/:id", h.GetClinician)
}

func (h *Handler) RegisterPatient(c echo.Context) error {
	var in store.PatientInput
	if err := c.Bind(&in); err != nil {
		return httperr.BadRequest(err.Error())
	}
	p, err := h.svc.RegisterPatient(c.Request().Context(), in)
	if err != nil {
		return httperr.From(err)
	}
	return c.JSON(http.StatusCreated, p)
}

// ListPatients narrows by ?q= (name or email) and ?filter= (with-conditions,
// on-medications, with-allergies) when present.
func (h *Handler) ListPatients(c echo.Context) error {
	pg, err := pagination.Parse(c)
	if err != nil {
		return httperr.BadRequest(err.Error())
	}
	filter, err := ParsePatientFilter(c.QueryParam("filter"))
	if err != nil {
		return httperr.From(err)
	}
	var page PatientPage
	if q := c.QueryParam("q"); q != "" || filter != FilterAll {
		page = h.svc.SearchPatients(c.Request().Context(), q, filter, pg)
	} else {
		page = h.svc.ListPatients(c.Request().Context(), pg)
	}
	return c.JSON(http.StatusOK, page)
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httperr.BadRequest("invalid id")
	}
	p, err := h.svc.GetPatient(c.Request().Context(), id)
	if err != nil {
		return httperr.From(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httperr.BadRequest("invalid id")
	}
	var upd store.PatientUpdate
	if err := c.Bind(&upd); err != nil {
		return httperr.BadRequest(err.Error())
	}
	p, err := h.svc.UpdatePatient(c.Request().Context(), id, upd)
	if err != nil {
		return httperr.From(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) SubmitIntake(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httperr.BadRequest("invalid id")
	}
	var in Intake
	if err := c.Bind(&in); err != nil {
		return httperr.BadRequest(err.Error())
	}
	p, err := h.svc.SubmitIntake(c.Request().Context(), id, in)
	if err != nil {
		return httperr.From(err)
	}
	return c.JSON(http.StatusOK, p)
}

// UploadLab expects a multipart form with the document in the "file" field.
func (h *Handler) UploadLab(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httperr.BadRequest("invalid id")
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return httperr.BadRequest("multipart field \"file\" is required")
	}
	if fh.Size > blobstore.MaxFileSize {
		return httperr.BadRequest(blobstore.ErrFileTooLarge.Error())
	}
	f, err := fh.Open()
	if err != nil {
		return httperr.BadRequest("cannot open uploaded file")
	}
	defer f.Close()
	content, err := io.ReadAll(io.LimitReader(f, blobstore.MaxFileSize+1))
	if err != nil {
		return httperr.BadRequest("cannot read uploaded file")
	}

	res, err := h.svc.UploadLab(c.Request().Context(), id, fh.Filename, content)
	if err != nil {
		return httperr.From(err)
	}
	return c.JSON(http.StatusCreated, res)
}

func (h *Handler) ListLabResults(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httperr.BadRequest("invalid id")
	}
	items, err := h.svc.LabResults(c.Request().Context(), id)
	if err != nil {
		return httperr.From(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) CreateClinician(c echo.Context) error {
	var in store.ClinicianInput
	if err := c.Bind(&in); err != nil {
		return httperr.BadRequest(err.Error())
	}
	cl, err := h.svc.CreateClinician(c.Request().Context(), in)
	if err != nil {
		return httperr.From(err)
	}
	return c.JSON(http.StatusCreated, cl)
}

func (h *Handler) ListClinicians(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.ListClinicians(c.Request().Context()))
}

func (h *Handler) GetClinician(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httperr.BadRequest("invalid id")
	}
	cl, err := h.svc.GetClinician(c.Request().Context(), id)
	if err != nil {
		return httperr.From(err)
	}
	return c.JSON(http.StatusOK, cl)
}
