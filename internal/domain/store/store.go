// Package store is the single source of truth for patients, clinicians,
// appointments, lab results and adherence records.
//
// Writes run as serialized transactions against a private fork of the
// current state and become visible all at once on commit, so readers only
// ever observe whole transactions. Every read returns a copy.
package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/carecore/internal/domain/policy"
)

// Persister receives the full post-transaction snapshot before a commit
// becomes visible. A Save error aborts the commit.
type Persister interface {
	Save(ctx context.Context, snap Snapshot) error
}

// Store holds the canonical in-memory collections.
type Store struct {
	mu        sync.RWMutex
	st        *state
	persister Persister
	now       func() time.Time
	loc       *time.Location
	logger    zerolog.Logger
	initial   *Snapshot
}

// Option configures a Store.
type Option func(*Store)

// WithInitial seeds the store. The snapshot is validated like any write.
func WithInitial(snap Snapshot) Option {
	return func(s *Store) { s.initial = &snap }
}

// WithPersister delegates durability of each commit to p.
func WithPersister(p Persister) Option {
	return func(s *Store) { s.persister = p }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLocation sets the timezone that defines "today".
func WithLocation(loc *time.Location) Option {
	return func(s *Store) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithLogger sets the logger used for commit diagnostics.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New builds a store, loading the initial snapshot when one is given.
func New(opts ...Option) (*Store, error) {
	s := &Store{
		st:     newState(),
		now:    time.Now,
		loc:    time.UTC,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.initial != nil {
		st, err := s.load(*s.initial)
		if err != nil {
			return nil, fmt.Errorf("load initial snapshot: %w", err)
		}
		s.st = st
		s.initial = nil
	}
	return s, nil
}

func (s *Store) today(now time.Time) time.Time {
	return policy.Date(now.In(s.loc))
}

// Now returns the store clock reading. Services share it so "today" agrees
// everywhere.
func (s *Store) Now() time.Time { return s.now() }

// Update runs fn as one transaction. Either every write made through tx
// becomes visible, or none does.
func (s *Store) Update(ctx context.Context, fn func(tx *Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	tx := &Tx{st: s.st.fork(), now: now, today: s.today(now), owned: make(map[uuid.UUID]bool)}
	if err := fn(tx); err != nil {
		return err
	}
	if !tx.dirty {
		return nil
	}
	if s.persister != nil {
		if err := s.persister.Save(ctx, tx.st.snapshot()); err != nil {
			s.logger.Error().Err(err).Msg("snapshot persist failed, transaction discarded")
			return fmt.Errorf("persist snapshot: %w", err)
		}
	}
	s.st = tx.st
	return nil
}

// current returns the committed state. Committed states are immutable, so
// the pointer may be read from after the lock is released.
func (s *Store) current() *state {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st
}

// Snapshot returns a deep copy of the whole store.
func (s *Store) Snapshot() Snapshot {
	return s.current().snapshot()
}

// Patient returns a copy of one patient.
func (s *Store) Patient(id uuid.UUID) (Patient, error) {
	p, ok := s.current().patients[id]
	if !ok {
		return Patient{}, NotFoundf("patient %s not found", id)
	}
	return clonePatient(p), nil
}

// Patients returns copies of all patients in registration order.
func (s *Store) Patients() []Patient {
	st := s.current()
	out := make([]Patient, 0, len(st.patientOrder))
	for _, id := range st.patientOrder {
		out = append(out, clonePatient(st.patients[id]))
	}
	return out
}

// Clinician returns a copy of one clinician.
func (s *Store) Clinician(id uuid.UUID) (Clinician, error) {
	c, ok := s.current().clinicians[id]
	if !ok {
		return Clinician{}, NotFoundf("clinician %s not found", id)
	}
	return cloneClinician(c), nil
}

// Clinicians returns copies of all clinicians in registration order.
func (s *Store) Clinicians() []Clinician {
	st := s.current()
	out := make([]Clinician, 0, len(st.clinicianOrder))
	for _, id := range st.clinicianOrder {
		out = append(out, cloneClinician(st.clinicians[id]))
	}
	return out
}

// Appointment returns a copy of one appointment.
func (s *Store) Appointment(id uuid.UUID) (Appointment, error) {
	a, ok := s.current().appointments[id]
	if !ok {
		return Appointment{}, NotFoundf("appointment %s not found", id)
	}
	return cloneAppointment(a), nil
}

// Appointments returns copies of the appointments accepted by keep, in
// booking order. A nil keep returns all of them.
func (s *Store) Appointments(keep func(*Appointment) bool) []Appointment {
	st := s.current()
	out := []Appointment{}
	for _, id := range st.appointmentOrder {
		a := st.appointments[id]
		if keep == nil || keep(a) {
			out = append(out, cloneAppointment(a))
		}
	}
	return out
}

// CreatePatient registers a patient with a generated id.
func (s *Store) CreatePatient(ctx context.Context, in PatientInput) (Patient, error) {
	var out Patient
	err := s.Update(ctx, func(tx *Tx) error {
		var err error
		out, err = tx.CreatePatient(in)
		return err
	})
	return out, err
}

// UpdatePatient merges the non-nil fields of upd into the patient and
// re-validates the result.
func (s *Store) UpdatePatient(ctx context.Context, id uuid.UUID, upd PatientUpdate) (Patient, error) {
	var out Patient
	err := s.Update(ctx, func(tx *Tx) error {
		var err error
		out, err = tx.UpdatePatient(id, upd)
		return err
	})
	return out, err
}

// RecordLabResult appends a lab result to the patient's collection.
func (s *Store) RecordLabResult(ctx context.Context, patientID uuid.UUID, result LabResult) (LabResult, error) {
	var out LabResult
	err := s.Update(ctx, func(tx *Tx) error {
		var err error
		out, err = tx.AppendLabResult(patientID, result)
		return err
	})
	return out, err
}

// CreateClinician registers a clinician with a generated id.
func (s *Store) CreateClinician(ctx context.Context, in ClinicianInput) (Clinician, error) {
	var out Clinician
	err := s.Update(ctx, func(tx *Tx) error {
		var err error
		out, err = tx.CreateClinician(in)
		return err
	})
	return out, err
}

// load validates an initial snapshot and indexes it.
func (s *Store) load(snap Snapshot) (*state, error) {
	today := s.today(s.now())
	st := newState()

	for i := range snap.Clinicians {
		c := snap.Clinicians[i]
		if c.ID == uuid.Nil {
			c.ID = uuid.New()
		}
		if err := validateClinician(&c); err != nil {
			return nil, err
		}
		if _, dup := st.clinicians[c.ID]; dup {
			return nil, Validationf("duplicate clinician id %s", c.ID)
		}
		st.clinicians[c.ID] = &c
		st.clinicianOrder = append(st.clinicianOrder, c.ID)
	}

	for i := range snap.Patients {
		p := clonePatient(&snap.Patients[i])
		if p.ID == uuid.Nil {
			p.ID = uuid.New()
		}
		if err := validatePatient(&p, today); err != nil {
			return nil, err
		}
		if _, dup := st.patients[p.ID]; dup {
			return nil, Validationf("duplicate patient id %s", p.ID)
		}
		// Records may name medications no longer on the list; history outlives
		// a removed prescription.
		seen := make(map[adherenceKey]bool, len(p.Adherence))
		for j := range p.Adherence {
			rec := &p.Adherence[j]
			rec.PatientID = p.ID
			rec.Date = policy.Date(rec.Date)
			k := adherenceKey{medication: rec.Medication, date: dateKey(rec.Date)}
			if seen[k] {
				return nil, Validationf("patient %s has two adherence records for %s on %s", p.ID, rec.Medication, k.date)
			}
			seen[k] = true
			if rec.ID == uuid.Nil {
				rec.ID = uuid.New()
			}
		}
		for j := range p.LabResults {
			p.LabResults[j].PatientID = p.ID
			if p.LabResults[j].ID == uuid.Nil {
				p.LabResults[j].ID = uuid.New()
			}
		}
		st.patients[p.ID] = &p
		st.patientOrder = append(st.patientOrder, p.ID)
	}

	for i := range snap.Appointments {
		a := snap.Appointments[i]
		if a.ID == uuid.Nil {
			a.ID = uuid.New()
		}
		a.Date = policy.Date(a.Date)
		if !validAppointmentStatuses[a.Status] {
			return nil, Validationf("invalid appointment status %q", a.Status)
		}
		if _, ok := st.patients[a.PatientID]; !ok {
			return nil, NotFoundf("appointment %s references unknown patient %s", a.ID, a.PatientID)
		}
		if _, ok := st.clinicians[a.ClinicianID]; !ok {
			return nil, NotFoundf("appointment %s references unknown clinician %s", a.ID, a.ClinicianID)
		}
		if _, dup := st.appointments[a.ID]; dup {
			return nil, Validationf("duplicate appointment id %s", a.ID)
		}
		if a.Status == StatusScheduled {
			k := keyOf(&a)
			if other, taken := st.scheduled[k]; taken {
				return nil, Conflictf("appointments %s and %s share clinician %s at %s %s", other, a.ID, a.ClinicianID, k.date, a.Time)
			}
			st.scheduled[k] = a.ID
		}
		st.appointments[a.ID] = &a
		st.appointmentOrder = append(st.appointmentOrder, a.ID)
	}
	return st, nil
}
