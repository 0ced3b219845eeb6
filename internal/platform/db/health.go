package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// PoolStats is the connection pool section of the health report.
type PoolStats struct {
	Total           int32  `json:"total"`
	Idle            int32  `json:"idle"`
	Acquired        int32  `json:"acquired"`
	Max             int32  `json:"max"`
	Acquires        int64  `json:"acquires"`
	AcquireDuration string `json:"acquire_duration"`
}

func statsOf(pool *pgxpool.Pool) PoolStats {
	s := pool.Stat()
	return PoolStats{
		Total:           s.TotalConns(),
		Idle:            s.IdleConns(),
		Acquired:        s.AcquiredConns(),
		Max:             s.MaxConns(),
		Acquires:        s.AcquireCount(),
		AcquireDuration: s.AcquireDuration().String(),
	}
}

// HealthReport is the /health/db body.
type HealthReport struct {
	Status       string        `json:"status"`
	Mode         string        `json:"mode"`
	Error        string        `json:"error,omitempty"`
	Pool         *PoolStats    `json:"pool,omitempty"`
	LastSnapshot *SnapshotInfo `json:"last_snapshot,omitempty"`
}

type snapshotInfoReader interface {
	Info(ctx context.Context) (SnapshotInfo, bool, error)
}

// HealthCheck probes the persistence layer. A check without a ping func
// reports in-memory mode, which is always healthy.
type HealthCheck struct {
	ping      func(context.Context) error
	stats     func() PoolStats
	snapshots snapshotInfoReader
	timeout   time.Duration
}

// NewHealthCheck builds the check for pool; pool may be nil.
func NewHealthCheck(pool *pgxpool.Pool) *HealthCheck {
	h := &HealthCheck{timeout: 5 * time.Second}
	if pool != nil {
		h.ping = pool.Ping
		h.stats = func() PoolStats { return statsOf(pool) }
		h.snapshots = NewSnapshotRepoPG(pool)
	}
	return h
}

// Check runs the probe. The returned status code is 200 or 503.
func (h *HealthCheck) Check(ctx context.Context) (int, HealthReport) {
	if h.ping == nil {
		return http.StatusOK, HealthReport{Status: "healthy", Mode: "in-memory"}
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	report := HealthReport{Status: "healthy", Mode: "postgres"}
	if h.stats != nil {
		stats := h.stats()
		report.Pool = &stats
	}
	if err := h.ping(ctx); err != nil {
		report.Status = "unhealthy"
		report.Error = err.Error()
		return http.StatusServiceUnavailable, report
	}
	if h.snapshots != nil {
		info, ok, err := h.snapshots.Info(ctx)
		switch {
		case err != nil:
			report.Status = "unhealthy"
			report.Error = err.Error()
			return http.StatusServiceUnavailable, report
		case ok:
			report.LastSnapshot = &info
		}
	}
	return http.StatusOK, report
}

func (h *HealthCheck) Handle(c echo.Context) error {
	code, report := h.Check(c.Request().Context())
	return c.JSON(code, report)
}

// HealthHandler is NewHealthCheck(pool).Handle.
func HealthHandler(pool *pgxpool.Pool) echo.HandlerFunc {
	return NewHealthCheck(pool).Handle
}
