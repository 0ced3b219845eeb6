package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/clinic/carecore/internal/domain/store"
)

type queryable interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// snapshotRowID is the single row holding the current care snapshot.
const snapshotRowID = 1

// SnapshotRepoPG keeps the latest store snapshot as one JSONB row. It
// implements store.Persister.
type SnapshotRepoPG struct {
	conn queryable
	now  func() time.Time
}

// NewSnapshotRepoPG accepts a *pgxpool.Pool or any connection with the same
// QueryRow and Exec methods.
func NewSnapshotRepoPG(conn queryable) *SnapshotRepoPG {
	return &SnapshotRepoPG{conn: conn, now: time.Now}
}

const upsertSnapshot = `INSERT INTO care_snapshots (id, body, patients, clinicians, appointments, saved_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE SET
    body = EXCLUDED.body,
    patients = EXCLUDED.patients,
    clinicians = EXCLUDED.clinicians,
    appointments = EXCLUDED.appointments,
    saved_at = EXCLUDED.saved_at`

// Save replaces the stored snapshot.
func (r *SnapshotRepoPG) Save(ctx context.Context, snap store.Snapshot) error {
	body, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	_, err = r.conn.Exec(ctx, upsertSnapshot,
		snapshotRowID, body,
		len(snap.Patients), len(snap.Clinicians), len(snap.Appointments),
		r.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// Load returns the stored snapshot. The bool is false when nothing has been
// saved yet.
func (r *SnapshotRepoPG) Load(ctx context.Context) (store.Snapshot, bool, error) {
	var body []byte
	err := r.conn.QueryRow(ctx, `SELECT body FROM care_snapshots WHERE id = $1`, snapshotRowID).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Snapshot{}, false, nil
	}
	if err != nil {
		return store.Snapshot{}, false, fmt.Errorf("load snapshot: %w", err)
	}
	var snap store.Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return store.Snapshot{}, false, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, true, nil
}

// SnapshotInfo describes the stored snapshot without decoding its body.
type SnapshotInfo struct {
	SavedAt      time.Time `json:"saved_at"`
	Patients     int       `json:"patients"`
	Clinicians   int       `json:"clinicians"`
	Appointments int       `json:"appointments"`
}

// Info reads the bookkeeping columns of the stored snapshot. The bool is
// false when nothing has been saved yet.
func (r *SnapshotRepoPG) Info(ctx context.Context) (SnapshotInfo, bool, error) {
	var info SnapshotInfo
	err := r.conn.QueryRow(ctx,
		`SELECT saved_at, patients, clinicians, appointments FROM care_snapshots WHERE id = $1`,
		snapshotRowID,
	).Scan(&info.SavedAt, &info.Patients, &info.Clinicians, &info.Appointments)
	if errors.Is(err, pgx.ErrNoRows) {
		return SnapshotInfo{}, false, nil
	}
	if err != nil {
		return SnapshotInfo{}, false, fmt.Errorf("read snapshot info: %w", err)
	}
	return info, true, nil
}
