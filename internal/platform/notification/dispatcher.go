package notification

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/carecore/internal/domain/policy"
	"github.com/clinic/carecore/internal/domain/store"
)

// Directory is the read side of the care store the dispatcher needs.
// *store.Store satisfies it.
type Directory interface {
	Patient(id uuid.UUID) (store.Patient, error)
	Clinician(id uuid.UUID) (store.Clinician, error)
	Appointments(keep func(*store.Appointment) bool) []store.Appointment
}

// Dispatcher turns care events into patient notifications.
type Dispatcher struct {
	mgr    *Manager
	dir    Directory
	logger zerolog.Logger
}

func NewDispatcher(mgr *Manager, dir Directory, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{mgr: mgr, dir: dir, logger: logger.With().Str("component", "notification").Logger()}
}

// contact prefers email over phone.
func contact(p store.Patient) (NotificationType, string, bool) {
	switch {
	case p.Email != "":
		return TypeEmail, p.Email, true
	case p.Phone != "":
		return TypeSMS, p.Phone, true
	}
	return "", "", false
}

func (d *Dispatcher) AppointmentBooked(ctx context.Context, a store.Appointment) error {
	_, err := d.appointment(ctx, TemplateAppointmentBooked, a)
	return err
}

func (d *Dispatcher) AppointmentCancelled(ctx context.Context, a store.Appointment) error {
	_, err := d.appointment(ctx, TemplateAppointmentCancelled, a)
	return err
}

// appointment returns a nil notification when the patient has no contact
// details on file.
func (d *Dispatcher) appointment(ctx context.Context, templateID string, a store.Appointment) (*Notification, error) {
	p, err := d.dir.Patient(a.PatientID)
	if err != nil {
		return nil, err
	}
	c, err := d.dir.Clinician(a.ClinicianID)
	if err != nil {
		return nil, err
	}
	typ, to, ok := contact(p)
	if !ok {
		d.logger.Debug().Str("patient_id", p.ID.String()).Msg("no contact details, notification skipped")
		return nil, nil
	}
	return d.mgr.SendFromTemplate(ctx, typ, templateID, map[string]string{
		"patient_id":     p.ID.String(),
		"patient_name":   p.Name,
		"clinician":      c.Name,
		"date":           a.Date.Format(policy.DateLayout),
		"time":           a.Time,
		"appointment_id": a.ID.String(),
	}, to)
}

// AppointmentReminders notifies every patient with a scheduled appointment
// on day. Failed sends stay in the outbox with status failed.
func (d *Dispatcher) AppointmentReminders(ctx context.Context, day time.Time) []Notification {
	day = policy.Date(day)
	appts := d.dir.Appointments(func(a *store.Appointment) bool {
		return a.Status == store.StatusScheduled && a.Date.Equal(day)
	})

	out := []Notification{}
	for _, a := range appts {
		if ctx.Err() != nil {
			break
		}
		n, err := d.appointment(ctx, TemplateAppointmentReminder, a)
		if err != nil {
			d.logger.Warn().Err(err).Str("appointment_id", a.ID.String()).Msg("appointment reminder failed")
		}
		if n != nil {
			out = append(out, *n)
		}
	}
	return out
}

// MedicationReminders sends one reminder per active medication not yet
// marked taken on day.
func (d *Dispatcher) MedicationReminders(ctx context.Context, patientID uuid.UUID, day time.Time) ([]Notification, error) {
	p, err := d.dir.Patient(patientID)
	if err != nil {
		return nil, err
	}
	typ, to, ok := contact(p)
	if !ok {
		return nil, store.Validationf("patient %s has no email or phone on file", patientID)
	}

	day = policy.Date(day)
	out := []Notification{}
	for _, med := range PendingMedications(p, day) {
		n, err := d.mgr.SendFromTemplate(ctx, typ, TemplateMedicationReminder, map[string]string{
			"patient_id":   p.ID.String(),
			"patient_name": p.Name,
			"medication":   med,
			"date":         day.Format(policy.DateLayout),
		}, to)
		if err != nil {
			d.logger.Warn().Err(err).Str("patient_id", p.ID.String()).Str("medication", med).Msg("medication reminder failed")
		}
		if n != nil {
			out = append(out, *n)
		}
	}
	return out, nil
}

// PendingMedications lists active medications without a taken record on day,
// in list order.
func PendingMedications(p store.Patient, day time.Time) []string {
	taken := make(map[string]bool)
	for _, r := range p.Adherence {
		if r.Taken && r.Date.Equal(day) {
			taken[r.Medication] = true
		}
	}
	var out []string
	for _, m := range p.Medications {
		if !taken[m] {
			out = append(out, m)
		}
	}
	return out
}
