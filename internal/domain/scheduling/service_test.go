package scheduling

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/clinic/carecore/internal/domain/policy"
	"github.com/clinic/carecore/internal/domain/store"
	"github.com/clinic/carecore/internal/platform/telemetry"
)

// now is Friday 2025-01-10 14:30 UTC; the earliest bookable date is the 11th.
var now = time.Date(2025, 1, 10, 14, 30, 0, 0, time.UTC)

type fixture struct {
	svc       *Service
	store     *store.Store
	patient   store.Patient
	clinician store.Clinician
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.New(store.WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	ctx := context.Background()
	p, err := st.CreatePatient(ctx, store.PatientInput{Name: "John Smith"})
	if err != nil {
		t.Fatalf("CreatePatient: %v", err)
	}
	c, err := st.CreateClinician(ctx, store.ClinicianInput{Name: "Dr. Sarah Johnson", Specialization: "Internal Medicine"})
	if err != nil {
		t.Fatalf("CreateClinician: %v", err)
	}
	svc := NewService(st, policy.Default(), telemetry.NewProvider(telemetry.Config{}), zerolog.Nop())
	return &fixture{svc: svc, store: st, patient: p, clinician: c}
}

func day(d int) time.Time { return time.Date(2025, 1, d, 0, 0, 0, 0, time.UTC) }

func (f *fixture) book(t *testing.T, date time.Time, hhmm string) store.Appointment {
	t.Helper()
	a, err := f.svc.BookAppointment(context.Background(), BookRequest{
		PatientID: f.patient.ID, ClinicianID: f.clinician.ID, Date: date, Time: hhmm, Reason: "Follow-up",
	})
	if err != nil {
		t.Fatalf("BookAppointment: %v", err)
	}
	return a
}

func TestBookAppointment(t *testing.T) {
	f := newFixture(t)
	a := f.book(t, day(11), "09:00")

	if a.ID == uuid.Nil {
		t.Error("expected generated id")
	}
	if a.Status != store.StatusScheduled {
		t.Errorf("expected scheduled, got %s", a.Status)
	}
	if a.Reason != "Follow-up" {
		t.Errorf("expected reason to be kept, got %q", a.Reason)
	}
}

func TestBookAppointment_ThenListForPatient(t *testing.T) {
	f := newFixture(t)
	a := f.book(t, day(14), "10:30")

	items, err := f.svc.ListForPatient(context.Background(), f.patient.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	count := 0
	for _, it := range items {
		if it.ID == a.ID {
			count++
			if it.Status != store.StatusScheduled {
				t.Errorf("expected scheduled, got %s", it.Status)
			}
		}
	}
	if count != 1 {
		t.Errorf("expected the new appointment exactly once, got %d", count)
	}
}

func TestBookAppointment_InvalidSchedule(t *testing.T) {
	tests := []struct {
		name string
		date time.Time
		time string
	}{
		{"same day", day(10), "16:00"},
		{"past", day(2), "09:00"},
		{"off grid", day(12), "09:15"},
		{"before opening", day(12), "08:30"},
		{"at closing", day(12), "17:00"},
		{"garbage time", day(12), "nine"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.BookAppointment(context.Background(), BookRequest{
				PatientID: f.patient.ID, ClinicianID: f.clinician.ID, Date: tt.date, Time: tt.time,
			})
			if !errors.Is(err, store.ErrInvalidSchedule) {
				t.Fatalf("expected invalid schedule error, got %v", err)
			}
			if n := len(f.store.Appointments(nil)); n != 0 {
				t.Errorf("expected no appointments, got %d", n)
			}
		})
	}
}

func TestBookAppointment_SameDayRejectedWithoutAdvance(t *testing.T) {
	f := newFixture(t)
	pol := policy.Default()
	pol.MinAdvanceDays = 0
	svc := NewService(f.store, pol, nil, zerolog.Nop())

	_, err := svc.BookAppointment(context.Background(), BookRequest{
		PatientID: f.patient.ID, ClinicianID: f.clinician.ID, Date: day(10), Time: "16:00",
	})
	if !errors.Is(err, store.ErrInvalidSchedule) {
		t.Fatalf("expected ErrInvalidSchedule for a same-day booking, got %v", err)
	}
	if _, err := svc.BookAppointment(context.Background(), BookRequest{
		PatientID: f.patient.ID, ClinicianID: f.clinician.ID, Date: day(11), Time: "16:00",
	}); err != nil {
		t.Fatalf("expected next-day booking to succeed, got %v", err)
	}
}

func TestBookAppointment_UnknownReferences(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.BookAppointment(context.Background(), BookRequest{
		PatientID: uuid.New(), ClinicianID: f.clinician.ID, Date: day(12), Time: "09:00",
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found for patient, got %v", err)
	}
	_, err = f.svc.BookAppointment(context.Background(), BookRequest{
		PatientID: f.patient.ID, ClinicianID: uuid.New(), Date: day(12), Time: "09:00",
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found for clinician, got %v", err)
	}
}

func TestBookAppointment_Conflict(t *testing.T) {
	f := newFixture(t)
	f.book(t, day(13), "11:00")

	other, _ := f.store.CreatePatient(context.Background(), store.PatientInput{Name: "Jane Roe"})
	_, err := f.svc.BookAppointment(context.Background(), BookRequest{
		PatientID: other.ID, ClinicianID: f.clinician.ID, Date: day(13), Time: "11:00",
	})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	// A different clinician may take the same slot.
	c2, _ := f.store.CreateClinician(context.Background(), store.ClinicianInput{Name: "Dr. Michael Chen", Specialization: "Cardiology"})
	if _, err := f.svc.BookAppointment(context.Background(), BookRequest{
		PatientID: other.ID, ClinicianID: c2.ID, Date: day(13), Time: "11:00",
	}); err != nil {
		t.Fatalf("expected second clinician to be free, got %v", err)
	}
}

func TestBookAppointment_ConcurrentSameSlot(t *testing.T) {
	f := newFixture(t)
	var (
		g       errgroup.Group
		mu      sync.Mutex
		success int
	)
	for i := 0; i < 20; i++ {
		g.Go(func() error {
			_, err := f.svc.BookAppointment(context.Background(), BookRequest{
				PatientID: f.patient.ID, ClinicianID: f.clinician.ID, Date: day(15), Time: "15:30",
			})
			if err != nil && !errors.Is(err, store.ErrConflict) {
				return err
			}
			if err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if success != 1 {
		t.Fatalf("expected exactly one booking to win, got %d", success)
	}
	scheduled := f.store.Appointments(func(a *store.Appointment) bool {
		return a.Status == store.StatusScheduled && a.Time == "15:30"
	})
	if len(scheduled) != 1 {
		t.Errorf("expected one scheduled appointment in the slot, got %d", len(scheduled))
	}
}

func TestCompleteAppointment(t *testing.T) {
	f := newFixture(t)
	a := f.book(t, day(11), "09:00")

	done, err := f.svc.CompleteAppointment(context.Background(), a.ID, "Blood pressure controlled.")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if done.Status != store.StatusCompleted {
		t.Errorf("expected completed, got %s", done.Status)
	}
	if done.Notes != "Blood pressure controlled." {
		t.Errorf("expected notes attached, got %q", done.Notes)
	}
}

func TestCompleteAppointment_KeepsStagedNotes(t *testing.T) {
	f := newFixture(t)
	a := f.book(t, day(11), "09:00")
	if _, err := f.svc.AttachNotes(context.Background(), a.ID, "Check HbA1c"); err != nil {
		t.Fatalf("AttachNotes: %v", err)
	}
	done, err := f.svc.CompleteAppointment(context.Background(), a.ID, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if done.Notes != "Check HbA1c" {
		t.Errorf("expected staged notes kept, got %q", done.Notes)
	}
}

func TestTransitions_FromTerminalAreRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	completed := f.book(t, day(11), "09:00")
	if _, err := f.svc.CompleteAppointment(ctx, completed.ID, "done"); err != nil {
		t.Fatalf("complete: %v", err)
	}
	cancelled := f.book(t, day(11), "09:30")
	if _, err := f.svc.CancelAppointment(ctx, cancelled.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	for _, id := range []uuid.UUID{completed.ID, cancelled.ID} {
		before, _ := f.svc.GetAppointment(ctx, id)

		if _, err := f.svc.CompleteAppointment(ctx, id, "again"); !errors.Is(err, store.ErrInvalidState) {
			t.Errorf("complete %s: expected invalid state, got %v", before.Status, err)
		}
		if _, err := f.svc.CancelAppointment(ctx, id); !errors.Is(err, store.ErrInvalidState) {
			t.Errorf("cancel %s: expected invalid state, got %v", before.Status, err)
		}

		after, _ := f.svc.GetAppointment(ctx, id)
		if after != before {
			t.Errorf("expected %s appointment untouched, got %+v", before.Status, after)
		}
	}
}

func TestCancelAppointment_FreesSlot(t *testing.T) {
	f := newFixture(t)
	a := f.book(t, day(16), "13:00")
	if _, err := f.svc.CancelAppointment(context.Background(), a.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	f.book(t, day(16), "13:00")
}

func TestAttachNotes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	done := f.book(t, day(11), "10:00")
	f.svc.CompleteAppointment(ctx, done.ID, "initial")
	got, err := f.svc.AttachNotes(ctx, done.ID, "amended")
	if err != nil {
		t.Fatalf("expected notes on completed appointment to be editable: %v", err)
	}
	if got.Notes != "amended" || got.Status != store.StatusCompleted {
		t.Errorf("unexpected appointment %+v", got)
	}

	cancelled := f.book(t, day(11), "10:30")
	f.svc.CancelAppointment(ctx, cancelled.ID)
	if _, err := f.svc.AttachNotes(ctx, cancelled.ID, "x"); !errors.Is(err, store.ErrInvalidState) {
		t.Errorf("expected invalid state on cancelled appointment, got %v", err)
	}

	if _, err := f.svc.AttachNotes(ctx, uuid.New(), "x"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestListForClinician_OrderAndRange(t *testing.T) {
	f := newFixture(t)
	f.book(t, day(20), "09:00")
	f.book(t, day(13), "14:00")
	f.book(t, day(13), "09:30")
	f.book(t, day(17), "11:00")

	all, err := f.svc.ListForClinician(context.Background(), f.clinician.ID, DateRange{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"2025-01-13 09:30", "2025-01-13 14:00", "2025-01-17 11:00", "2025-01-20 09:00"}
	if len(all) != len(want) {
		t.Fatalf("expected %d appointments, got %d", len(want), len(all))
	}
	for i, a := range all {
		if got := a.Date.Format("2006-01-02") + " " + a.Time; got != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], got)
		}
	}

	ranged, _ := f.svc.ListForClinician(context.Background(), f.clinician.ID, DateRange{From: day(13), To: day(17)})
	if len(ranged) != 3 {
		t.Errorf("expected inclusive range to hold 3, got %d", len(ranged))
	}

	if _, err := f.svc.ListForClinician(context.Background(), uuid.New(), DateRange{}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestAvailableSlots(t *testing.T) {
	f := newFixture(t)
	f.book(t, day(14), "09:30")

	slots, err := f.svc.AvailableSlots(context.Background(), f.clinician.ID, day(14))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(slots) != 16 {
		t.Fatalf("expected 16 slots between 09:00 and 17:00, got %d", len(slots))
	}
	for _, s := range slots {
		if s.Time == "09:30" && s.Available {
			t.Error("expected 09:30 to be taken")
		}
		if s.Time == "10:00" && !s.Available {
			t.Error("expected 10:00 to be free")
		}
	}

	today, _ := f.svc.AvailableSlots(context.Background(), f.clinician.ID, day(10))
	for _, s := range today {
		if s.Available {
			t.Fatalf("expected no availability today, got %s", s.Time)
		}
	}
}

func TestDateRange_Contains(t *testing.T) {
	r := DateRange{From: day(5), To: day(7)}
	if !r.Contains(day(5)) || !r.Contains(day(7)) {
		t.Error("expected bounds to be inclusive")
	}
	if r.Contains(day(4)) || r.Contains(day(8)) {
		t.Error("expected dates outside the range to be excluded")
	}
	if !(DateRange{}).Contains(day(1)) {
		t.Error("expected open range to contain everything")
	}
}

type recordingNotifier struct {
	booked    []uuid.UUID
	cancelled []uuid.UUID
	fail      bool
}

func (r *recordingNotifier) AppointmentBooked(_ context.Context, a store.Appointment) error {
	r.booked = append(r.booked, a.ID)
	if r.fail {
		return errors.New("smtp unavailable")
	}
	return nil
}

func (r *recordingNotifier) AppointmentCancelled(_ context.Context, a store.Appointment) error {
	r.cancelled = append(r.cancelled, a.ID)
	return nil
}

func TestNotifier_BookAndCancel(t *testing.T) {
	f := newFixture(t)
	rec := &recordingNotifier{}
	f.svc.WithNotifier(rec)

	a := f.book(t, day(14), "09:00")
	b := f.book(t, day(14), "09:30")
	if _, err := f.svc.CancelAppointment(context.Background(), a.ID); err != nil {
		t.Fatalf("CancelAppointment: %v", err)
	}
	if _, err := f.svc.CompleteAppointment(context.Background(), b.ID, ""); err != nil {
		t.Fatalf("CompleteAppointment: %v", err)
	}

	if len(rec.booked) != 2 || rec.booked[0] != a.ID || rec.booked[1] != b.ID {
		t.Errorf("unexpected booked events %v", rec.booked)
	}
	if len(rec.cancelled) != 1 || rec.cancelled[0] != a.ID {
		t.Errorf("unexpected cancelled events %v", rec.cancelled)
	}
}

func TestNotifier_RejectedBookingIsSilent(t *testing.T) {
	f := newFixture(t)
	rec := &recordingNotifier{}
	f.svc.WithNotifier(rec)

	_, err := f.svc.BookAppointment(context.Background(), BookRequest{
		PatientID: f.patient.ID, ClinicianID: f.clinician.ID, Date: day(10), Time: "09:00",
	})
	if err == nil {
		t.Fatal("expected same-day booking to fail")
	}
	if len(rec.booked) != 0 {
		t.Errorf("rejected booking should not notify, got %v", rec.booked)
	}
}

func TestNotifier_FailureKeepsBooking(t *testing.T) {
	f := newFixture(t)
	next := &recordingNotifier{}
	f.svc.WithNotifier(&recordingNotifier{fail: true}).WithNotifier(next)

	a := f.book(t, day(15), "10:00")
	if len(next.booked) != 1 {
		t.Errorf("a failing notifier should not block the next one, got %v", next.booked)
	}
	got, err := f.svc.GetAppointment(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("GetAppointment: %v", err)
	}
	if got.Status != store.StatusScheduled {
		t.Errorf("expected scheduled, got %s", got.Status)
	}
}
