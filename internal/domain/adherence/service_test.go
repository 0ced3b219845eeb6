package adherence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/clinic/carecore/internal/domain/policy"
	"github.com/clinic/carecore/internal/domain/store"
)

var now = time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC)

func day(d int) time.Time { return time.Date(2025, 1, d, 0, 0, 0, 0, time.UTC) }

func newTestService(t *testing.T, meds ...string) (*Service, store.Patient) {
	t.Helper()
	st, err := store.New(store.WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	p, err := st.CreatePatient(context.Background(), store.PatientInput{Name: "John Smith", Medications: meds})
	if err != nil {
		t.Fatalf("CreatePatient: %v", err)
	}
	return NewService(st, policy.Default(), nil, zerolog.Nop()), p
}

func recordsFor(t *testing.T, svc *Service, id uuid.UUID) []store.AdherenceRecord {
	t.Helper()
	p, err := svc.store.Patient(id)
	if err != nil {
		t.Fatalf("Patient: %v", err)
	}
	return p.Adherence
}

func TestRecordIntake_Idempotent(t *testing.T) {
	svc, p := newTestService(t, "Lisinopril")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := svc.RecordIntake(ctx, p.ID, "Lisinopril", day(10), true); err != nil {
			t.Fatalf("RecordIntake: %v", err)
		}
	}
	recs := recordsFor(t, svc, p.ID)
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	if !recs[0].Taken {
		t.Error("expected taken=true")
	}
}

func TestRecordIntake_OverwritesTaken(t *testing.T) {
	svc, p := newTestService(t, "X")
	ctx := context.Background()

	first, err := svc.RecordIntake(ctx, p.ID, "X", day(1), false)
	if err != nil {
		t.Fatalf("RecordIntake: %v", err)
	}
	second, err := svc.RecordIntake(ctx, p.ID, "X", day(1), true)
	if err != nil {
		t.Fatalf("RecordIntake: %v", err)
	}
	if first.ID != second.ID {
		t.Error("expected the overwrite to keep the record id")
	}
	recs := recordsFor(t, svc, p.ID)
	if len(recs) != 1 || !recs[0].Taken {
		t.Fatalf("expected one taken record, got %+v", recs)
	}
}

func TestRecordIntake_Rejections(t *testing.T) {
	svc, p := newTestService(t, "Metformin 500mg")
	ctx := context.Background()

	tests := []struct {
		name       string
		patientID  uuid.UUID
		medication string
		date       time.Time
		want       error
	}{
		{"unknown medication", p.ID, "Aspirin", day(9), store.ErrValidation},
		{"case mismatch", p.ID, "metformin 500mg", day(9), store.ErrValidation},
		{"blank medication", p.ID, "  ", day(9), store.ErrValidation},
		{"future date", p.ID, "Metformin 500mg", day(11), store.ErrValidation},
		{"unknown patient", uuid.New(), "Metformin 500mg", day(9), store.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.RecordIntake(ctx, tt.patientID, tt.medication, tt.date, true)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
	if n := len(recordsFor(t, svc, p.ID)); n != 0 {
		t.Errorf("expected no records after rejections, got %d", n)
	}
}

func TestRecordIntake_ConcurrentSameKey(t *testing.T) {
	svc, p := newTestService(t, "Lisinopril")
	var g errgroup.Group
	for i := 0; i < 10; i++ {
		taken := i%3 == 0
		g.Go(func() error {
			_, err := svc.RecordIntake(context.Background(), p.ID, "Lisinopril", day(10), taken)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := len(recordsFor(t, svc, p.ID)); n != 1 {
		t.Errorf("expected 1 record, got %d", n)
	}
}

func TestRollingAdherenceRate(t *testing.T) {
	svc, p := newTestService(t, "A", "B")
	ctx := context.Background()

	// Window of 7 days ending the 10th covers the 4th through the 10th.
	svc.RecordIntake(ctx, p.ID, "A", day(10), true)
	svc.RecordIntake(ctx, p.ID, "B", day(10), true)
	svc.RecordIntake(ctx, p.ID, "A", day(4), true)
	svc.RecordIntake(ctx, p.ID, "A", day(3), true)  // outside
	svc.RecordIntake(ctx, p.ID, "B", day(8), false) // not taken

	rate, err := svc.RollingAdherenceRate(ctx, p.ID, 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rate.Taken != 3 || rate.Expected != 14 {
		t.Errorf("expected 3/14, got %d/%d", rate.Taken, rate.Expected)
	}
	if rate.Percent != 21 {
		t.Errorf("expected 21%%, got %d", rate.Percent)
	}
}

func TestRollingAdherenceRate_NoMedications(t *testing.T) {
	svc, p := newTestService(t)
	rate, err := svc.RollingAdherenceRate(context.Background(), p.ID, 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rate.Ratio != 0 || rate.Expected != 0 {
		t.Errorf("expected zero rate, got %+v", rate)
	}
}

func TestRollingAdherenceRate_IgnoresRemovedMedication(t *testing.T) {
	svc, p := newTestService(t, "A", "B")
	ctx := context.Background()
	svc.RecordIntake(ctx, p.ID, "A", day(10), true)
	svc.RecordIntake(ctx, p.ID, "B", day(10), true)

	if _, err := svc.store.UpdatePatient(ctx, p.ID, store.PatientUpdate{Medications: []string{"A"}}); err != nil {
		t.Fatalf("UpdatePatient: %v", err)
	}
	rate, _ := svc.RollingAdherenceRate(ctx, p.ID, 1)
	if rate.Taken != 1 || rate.Expected != 1 {
		t.Errorf("expected 1/1 after removing B, got %d/%d", rate.Taken, rate.Expected)
	}
	if n := len(recordsFor(t, svc, p.ID)); n != 2 {
		t.Errorf("expected historical records kept, got %d", n)
	}
}

func TestRollingAdherenceRate_InvalidWindow(t *testing.T) {
	svc, p := newTestService(t, "A")
	if _, err := svc.RollingAdherenceRate(context.Background(), p.ID, 0); !errors.Is(err, store.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestSummary_UsesConfiguredWindows(t *testing.T) {
	svc, p := newTestService(t, "A")
	ctx := context.Background()
	svc.RecordIntake(ctx, p.ID, "A", day(10), true)

	sum, err := svc.Summary(ctx, p.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sum.Short.WindowDays != 7 || sum.Long.WindowDays != 30 {
		t.Errorf("expected 7 and 30 day windows, got %d and %d", sum.Short.WindowDays, sum.Long.WindowDays)
	}
	if sum.Short.Expected != 7 || sum.Long.Expected != 30 {
		t.Errorf("unexpected expectations %+v", sum)
	}
}

func TestDayStatus(t *testing.T) {
	svc, p := newTestService(t, "Lisinopril 10mg", "Metformin 500mg")
	ctx := context.Background()
	svc.RecordIntake(ctx, p.ID, "Metformin 500mg", day(9), true)

	items, err := svc.DayStatus(ctx, p.ID, day(9))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 medications, got %d", len(items))
	}
	if items[0].Medication != "Lisinopril 10mg" || items[0].Recorded || items[0].Taken {
		t.Errorf("unexpected first row %+v", items[0])
	}
	if !items[1].Taken || !items[1].Recorded {
		t.Errorf("unexpected second row %+v", items[1])
	}
}
