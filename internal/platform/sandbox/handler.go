package sandbox

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/clinic/carecore/internal/domain/policy"
	"github.com/clinic/carecore/internal/platform/httperr"
)

// maxPreviewPatients bounds one generated preview.
const maxPreviewPatients = 1000

// SeedHandler serves generated demo data without touching the live store.
type SeedHandler struct {
	policy policy.Policy
	now    func() time.Time
}

func NewSeedHandler(pol policy.Policy, now func() time.Time) *SeedHandler {
	if now == nil {
		now = time.Now
	}
	return &SeedHandler{policy: pol, now: now}
}

// RegisterRoutes registers sandbox routes on the given Echo group.
func (h *SeedHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/seed", h.handleSeed)
	g.GET("/export/ndjson", h.handleExportNDJSON)
}

func (h *SeedHandler) handleSeed(c echo.Context) error {
	cfg := DefaultSeedConfig()
	if err := c.Bind(&cfg); err != nil {
		return httperr.BadRequest(err.Error())
	}
	if cfg.PatientCount < 0 || cfg.PatientCount > maxPreviewPatients {
		return httperr.BadRequest("patientCount must be between 0 and " + strconv.Itoa(maxPreviewPatients))
	}

	snap, result := NewSeeder(cfg, h.policy).Generate(h.now())
	return c.JSON(http.StatusOK, map[string]interface{}{
		"result":   result,
		"snapshot": snap,
	})
}

func (h *SeedHandler) handleExportNDJSON(c echo.Context) error {
	cfg := DefaultSeedConfig()
	if raw := c.QueryParam("patients"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 || n > maxPreviewPatients {
			return httperr.BadRequest("patients must be between 0 and " + strconv.Itoa(maxPreviewPatients))
		}
		cfg.PatientCount = n
	}
	if raw := c.QueryParam("seed"); raw != "" {
		seed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return httperr.BadRequest("seed must be an integer")
		}
		cfg.Seed = seed
	}

	snap, _ := NewSeeder(cfg, h.policy).Generate(h.now())
	c.Response().Header().Set(echo.HeaderContentType, "application/x-ndjson")
	c.Response().WriteHeader(http.StatusOK)
	return ExportNDJSON(c.Response().Writer, snap.Patients)
}
