// Package adherence records daily medication intake and computes rolling
// adherence rates over a patient's active medications.
package adherence

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/carecore/internal/domain/policy"
	"github.com/clinic/carecore/internal/domain/store"
	"github.com/clinic/carecore/internal/platform/auth"
	"github.com/clinic/carecore/internal/platform/telemetry"
)

type Service struct {
	store   *store.Store
	policy  policy.Policy
	metrics *telemetry.Provider
	logger  zerolog.Logger
}

func NewService(st *store.Store, pol policy.Policy, metrics *telemetry.Provider, logger zerolog.Logger) *Service {
	return &Service{
		store:   st,
		policy:  pol,
		metrics: metrics,
		logger:  logger.With().Str("component", "adherence").Logger(),
	}
}

// RecordIntake upserts the record for (patient, medication, date). The
// medication must be on the active list and the date must not be in the
// future. Recording the same key again overwrites taken in place.
func (s *Service) RecordIntake(ctx context.Context, patientID uuid.UUID, medication string, date time.Time, taken bool) (store.AdherenceRecord, error) {
	medication = strings.TrimSpace(medication)
	date = policy.Date(date)

	var (
		rec     store.AdherenceRecord
		created bool
	)
	err := s.store.Update(ctx, func(tx *store.Tx) error {
		if medication == "" {
			return store.Validationf("medication is required")
		}
		if date.After(tx.Today()) {
			return store.Validationf("intake date %s is in the future", date.Format(policy.DateLayout))
		}
		var err error
		rec, created, err = tx.UpsertAdherence(patientID, medication, date, taken)
		return err
	})
	if err != nil {
		s.logger.Warn().Err(err).
			Str("actor", auth.UserFromContext(ctx).ID).
			Str("patient_id", patientID.String()).
			Str("medication", medication).
			Msg("intake rejected")
		return store.AdherenceRecord{}, err
	}

	s.metrics.RecordIntake(taken, created)
	s.logger.Info().
		Str("actor", auth.UserFromContext(ctx).ID).
		Str("patient_id", patientID.String()).
		Str("medication", medication).
		Str("date", date.Format(policy.DateLayout)).
		Bool("taken", taken).
		Bool("created", created).
		Msg("intake recorded")
	return rec, nil
}

// RollingAdherenceRate computes taken / (active medications x windowDays)
// over the windowDays days ending today, inclusive. Missing records count as
// not taken. Records for medications no longer on the active list are
// ignored.
func (s *Service) RollingAdherenceRate(_ context.Context, patientID uuid.UUID, windowDays int) (Rate, error) {
	if windowDays <= 0 {
		return Rate{}, store.Validationf("window must be at least one day, got %d", windowDays)
	}
	p, err := s.store.Patient(patientID)
	if err != nil {
		return Rate{}, err
	}
	return RollingRate(p, s.policy.Today(s.store.Now()), windowDays), nil
}

// RollingRate is the expectation-based rate for one patient snapshot.
func RollingRate(p store.Patient, today time.Time, windowDays int) Rate {
	r := Rate{WindowDays: windowDays, Medications: len(p.Medications)}
	if r.Medications == 0 {
		return r
	}
	active := make(map[string]bool, len(p.Medications))
	for _, m := range p.Medications {
		active[m] = true
	}
	start := today.AddDate(0, 0, -(windowDays - 1))
	for _, rec := range p.Adherence {
		if !rec.Taken || !active[rec.Medication] {
			continue
		}
		if rec.Date.Before(start) || rec.Date.After(today) {
			continue
		}
		r.Taken++
	}
	r.Expected = r.Medications * windowDays
	r.Ratio = float64(r.Taken) / float64(r.Expected)
	r.Percent = int(math.Round(r.Ratio * 100))
	return r
}

// Summary returns the rates over the configured short and long windows.
func (s *Service) Summary(_ context.Context, patientID uuid.UUID) (Summary, error) {
	p, err := s.store.Patient(patientID)
	if err != nil {
		return Summary{}, err
	}
	today := s.policy.Today(s.store.Now())
	return Summary{
		Short: RollingRate(p, today, s.policy.ShortWindowDays),
		Long:  RollingRate(p, today, s.policy.LongWindowDays),
	}, nil
}

// DayStatus lists every active medication with its recorded taken flag for
// date. Medications without a record report taken=false, recorded=false.
func (s *Service) DayStatus(_ context.Context, patientID uuid.UUID, date time.Time) ([]MedicationStatus, error) {
	p, err := s.store.Patient(patientID)
	if err != nil {
		return nil, err
	}
	date = policy.Date(date)
	byMed := make(map[string]bool)
	for _, rec := range p.Adherence {
		if rec.Date.Equal(date) {
			byMed[rec.Medication] = rec.Taken
		}
	}
	out := make([]MedicationStatus, 0, len(p.Medications))
	for _, m := range p.Medications {
		taken, recorded := byMed[m]
		out = append(out, MedicationStatus{Medication: m, Taken: taken, Recorded: recorded})
	}
	return out, nil
}
