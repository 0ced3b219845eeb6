// Package scheduling owns the appointment state machine. Every appointment
// write goes through this service so slot and transition rules are enforced
// in one place.
package scheduling

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/carecore/internal/domain/policy"
	"github.com/clinic/carecore/internal/domain/store"
	"github.com/clinic/carecore/internal/platform/auth"
	"github.com/clinic/carecore/internal/platform/telemetry"
)

// Notifier hears about committed appointment changes. A delivery failure
// never undoes the change.
type Notifier interface {
	AppointmentBooked(ctx context.Context, a store.Appointment) error
	AppointmentCancelled(ctx context.Context, a store.Appointment) error
}

type Service struct {
	store     *store.Store
	policy    policy.Policy
	metrics   *telemetry.Provider
	logger    zerolog.Logger
	notifiers []Notifier
}

func NewService(st *store.Store, pol policy.Policy, metrics *telemetry.Provider, logger zerolog.Logger) *Service {
	return &Service{
		store:   st,
		policy:  pol,
		metrics: metrics,
		logger:  logger.With().Str("component", "scheduling").Logger(),
	}
}

// WithNotifier adds a receiver of booking and cancellation events.
// Notifiers run in the order they were added.
func (s *Service) WithNotifier(n Notifier) *Service {
	s.notifiers = append(s.notifiers, n)
	return s
}

func (s *Service) notify(ctx context.Context, a store.Appointment) {
	for _, n := range s.notifiers {
		var err error
		switch a.Status {
		case store.StatusScheduled:
			err = n.AppointmentBooked(ctx, a)
		case store.StatusCancelled:
			err = n.AppointmentCancelled(ctx, a)
		default:
			return
		}
		if err != nil {
			s.logger.Warn().Err(err).
				Str("appointment_id", a.ID.String()).
				Str("status", string(a.Status)).
				Msg("appointment notification failed")
		}
	}
}

// BookAppointment creates a scheduled appointment. The date must be at
// least MinAdvanceDays after today and the time one of the slot grid
// values. The free-slot check and the insert run in one store transaction.
func (s *Service) BookAppointment(ctx context.Context, req BookRequest) (store.Appointment, error) {
	var out store.Appointment
	err := s.store.Update(ctx, func(tx *store.Tx) error {
		if !s.policy.IsSlot(req.Time) {
			return store.InvalidSchedulef("time %q is not a %d minute slot between %s and %s",
				req.Time, s.policy.SlotMinutes, s.policy.DayStart, s.policy.DayEnd)
		}
		date := policy.Date(req.Date)
		earliest := s.policy.EarliestBookable(tx.Now())
		if date.Before(earliest) {
			return store.InvalidSchedulef("date %s is too soon, earliest bookable date is %s",
				date.Format(policy.DateLayout), earliest.Format(policy.DateLayout))
		}

		var err error
		out, err = tx.InsertAppointment(store.Appointment{
			PatientID:   req.PatientID,
			ClinicianID: req.ClinicianID,
			Date:        date,
			Time:        req.Time,
			Status:      store.StatusScheduled,
			Reason:      strings.TrimSpace(req.Reason),
		})
		return err
	})

	if err != nil {
		outcome := telemetry.OutcomeRejected
		if store.KindOf(err) == store.KindConflict {
			outcome = telemetry.OutcomeConflict
		}
		s.metrics.RecordBooking(outcome)
		s.logger.Warn().Err(err).
			Str("actor", auth.UserFromContext(ctx).ID).
			Str("patient_id", req.PatientID.String()).
			Str("clinician_id", req.ClinicianID.String()).
			Str("date", req.Date.Format(policy.DateLayout)).
			Str("time", req.Time).
			Msg("booking rejected")
		return store.Appointment{}, err
	}

	s.metrics.RecordBooking(telemetry.OutcomeOK)
	s.logger.Info().
		Str("actor", auth.UserFromContext(ctx).ID).
		Str("appointment_id", out.ID.String()).
		Str("patient_id", out.PatientID.String()).
		Str("clinician_id", out.ClinicianID.String()).
		Msg("appointment booked")
	s.notify(ctx, out)
	return out, nil
}

// CompleteAppointment moves a scheduled appointment to completed. Non-empty
// notes replace any notes staged while it was scheduled.
func (s *Service) CompleteAppointment(ctx context.Context, id uuid.UUID, notes string) (store.Appointment, error) {
	return s.transition(ctx, id, store.StatusCompleted, func(a *store.Appointment) {
		if n := strings.TrimSpace(notes); n != "" {
			a.Notes = n
		}
	})
}

// CancelAppointment moves a scheduled appointment to cancelled, freeing its
// slot.
func (s *Service) CancelAppointment(ctx context.Context, id uuid.UUID) (store.Appointment, error) {
	return s.transition(ctx, id, store.StatusCancelled, nil)
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, to store.AppointmentStatus, mutate func(*store.Appointment)) (store.Appointment, error) {
	var out store.Appointment
	err := s.store.Update(ctx, func(tx *store.Tx) error {
		cur, err := tx.Appointment(id)
		if err != nil {
			return err
		}
		if cur.Status != store.StatusScheduled {
			return store.InvalidStatef("appointment %s is %s, only scheduled appointments can become %s", id, cur.Status, to)
		}
		cur.Status = to
		if mutate != nil {
			mutate(&cur)
		}
		out, err = tx.ReplaceAppointment(cur)
		return err
	})

	if err != nil {
		s.metrics.RecordTransition(string(to), telemetry.OutcomeRejected)
		s.logger.Warn().Err(err).
			Str("actor", auth.UserFromContext(ctx).ID).
			Str("appointment_id", id.String()).
			Str("target_status", string(to)).
			Msg("appointment transition rejected")
		return store.Appointment{}, err
	}

	s.metrics.RecordTransition(string(to), telemetry.OutcomeOK)
	s.logger.Info().
		Str("actor", auth.UserFromContext(ctx).ID).
		Str("appointment_id", id.String()).
		Str("status", string(to)).
		Msg("appointment " + string(to))
	s.notify(ctx, out)
	return out, nil
}

// AttachNotes sets the visit notes. Notes may be staged on a scheduled
// appointment or edited on a completed one; cancelled appointments reject
// them.
func (s *Service) AttachNotes(ctx context.Context, id uuid.UUID, notes string) (store.Appointment, error) {
	var out store.Appointment
	err := s.store.Update(ctx, func(tx *store.Tx) error {
		cur, err := tx.Appointment(id)
		if err != nil {
			return err
		}
		if cur.Status == store.StatusCancelled {
			return store.InvalidStatef("appointment %s is cancelled, notes cannot be attached", id)
		}
		cur.Notes = strings.TrimSpace(notes)
		out, err = tx.ReplaceAppointment(cur)
		return err
	})
	if err != nil {
		return store.Appointment{}, err
	}
	s.logger.Info().
		Str("actor", auth.UserFromContext(ctx).ID).
		Str("appointment_id", id.String()).
		Msg("appointment notes updated")
	return out, nil
}

func (s *Service) GetAppointment(_ context.Context, id uuid.UUID) (store.Appointment, error) {
	return s.store.Appointment(id)
}

// ListForClinician returns the clinician's appointments within r ordered by
// (date, time).
func (s *Service) ListForClinician(_ context.Context, clinicianID uuid.UUID, r DateRange) ([]store.Appointment, error) {
	if _, err := s.store.Clinician(clinicianID); err != nil {
		return nil, err
	}
	out := s.store.Appointments(func(a *store.Appointment) bool {
		return a.ClinicianID == clinicianID && r.Contains(a.Date)
	})
	sortByDateTime(out)
	return out, nil
}

// ListForPatient returns the patient's appointments ordered by (date, time).
func (s *Service) ListForPatient(_ context.Context, patientID uuid.UUID) ([]store.Appointment, error) {
	if _, err := s.store.Patient(patientID); err != nil {
		return nil, err
	}
	out := s.store.Appointments(func(a *store.Appointment) bool {
		return a.PatientID == patientID
	})
	sortByDateTime(out)
	return out, nil
}

// AvailableSlots lists the slot grid for one clinician day. A slot is
// available when the date is bookable and no scheduled appointment holds
// it.
func (s *Service) AvailableSlots(_ context.Context, clinicianID uuid.UUID, date time.Time) ([]Slot, error) {
	if _, err := s.store.Clinician(clinicianID); err != nil {
		return nil, err
	}
	date = policy.Date(date)
	bookable := !date.Before(s.policy.EarliestBookable(s.store.Now()))

	taken := make(map[string]bool)
	for _, a := range s.store.Appointments(func(a *store.Appointment) bool {
		return a.ClinicianID == clinicianID && a.Status == store.StatusScheduled && a.Date.Equal(date)
	}) {
		taken[a.Time] = true
	}

	day := date.Format(policy.DateLayout)
	times := s.policy.SlotTimes()
	slots := make([]Slot, 0, len(times))
	for _, t := range times {
		slots = append(slots, Slot{Date: day, Time: t, Available: bookable && !taken[t]})
	}
	return slots, nil
}

func sortByDateTime(appts []store.Appointment) {
	sort.SliceStable(appts, func(i, j int) bool {
		return appts[i].Before(&appts[j])
	})
}
