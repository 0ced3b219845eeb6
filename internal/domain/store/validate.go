package store

import (
	"strings"
	"time"

	"github.com/clinic/carecore/internal/domain/policy"
)

// normalizeLabels trims entries, drops blanks and keeps the first occurrence
// of each exact text, preserving order.
func normalizeLabels(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

func parseDateOfBirth(raw string, today time.Time) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	dob, err := policy.ParseDate(raw)
	if err != nil {
		return nil, Validationf("date_of_birth %q is not a YYYY-MM-DD date", raw)
	}
	if dob.After(today) {
		return nil, Validationf("date_of_birth %s is in the future", raw)
	}
	return &dob, nil
}

// validatePatient checks a fully merged patient before it is written.
func validatePatient(p *Patient, today time.Time) error {
	if strings.TrimSpace(p.Name) == "" {
		return Validationf("name is required")
	}
	if p.Email != "" && !strings.Contains(p.Email, "@") {
		return Validationf("email %q is malformed", p.Email)
	}
	if p.DateOfBirth != nil && p.DateOfBirth.After(today) {
		return Validationf("date_of_birth %s is in the future", p.DateOfBirth.Format(policy.DateLayout))
	}
	if p.Lifestyle.Exercise == "" {
		p.Lifestyle.Exercise = ExerciseNone
	}
	if !validExercise[p.Lifestyle.Exercise] {
		return Validationf("exercise level %q is not one of None, Light, Moderate, Heavy", p.Lifestyle.Exercise)
	}
	p.MedicalHistory = normalizeLabels(p.MedicalHistory)
	p.Medications = normalizeLabels(p.Medications)
	p.Allergies = normalizeLabels(p.Allergies)
	return nil
}

func validateClinician(c *Clinician) error {
	if strings.TrimSpace(c.Name) == "" {
		return Validationf("name is required")
	}
	if strings.TrimSpace(c.Specialization) == "" {
		return Validationf("specialization is required")
	}
	if c.Email != "" && !strings.Contains(c.Email, "@") {
		return Validationf("email %q is malformed", c.Email)
	}
	return nil
}

// checkAppointmentWrite enforces the appointment invariants that do not
// depend on other appointments: known status, and immutability once
// terminal (notes on a completed appointment excepted).
func checkAppointmentWrite(prev, next *Appointment) error {
	if !validAppointmentStatuses[next.Status] {
		return Validationf("invalid appointment status %q", next.Status)
	}
	if prev == nil {
		if next.Status != StatusScheduled {
			return InvalidStatef("new appointments must be %s, got %s", StatusScheduled, next.Status)
		}
		return nil
	}
	if prev.PatientID != next.PatientID || prev.ClinicianID != next.ClinicianID ||
		!prev.Date.Equal(next.Date) || prev.Time != next.Time || prev.Reason != next.Reason {
		if prev.Status.Terminal() {
			return InvalidStatef("appointment %s is %s and cannot be modified", prev.ID, prev.Status)
		}
	}
	switch prev.Status {
	case StatusCancelled:
		if next.Status != StatusCancelled || next.Notes != prev.Notes {
			return InvalidStatef("appointment %s is cancelled and cannot be modified", prev.ID)
		}
	case StatusCompleted:
		if next.Status != StatusCompleted {
			return InvalidStatef("appointment %s is completed and cannot transition to %s", prev.ID, next.Status)
		}
	}
	return nil
}
