package store

import (
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
)

func clonePatient(p *Patient) Patient {
	out := *p
	if p.DateOfBirth != nil {
		dob := *p.DateOfBirth
		out.DateOfBirth = &dob
	}
	out.MedicalHistory = cloneStrings(p.MedicalHistory)
	out.Medications = cloneStrings(p.Medications)
	out.Allergies = cloneStrings(p.Allergies)
	out.LabResults = append(make([]LabResult, 0, len(p.LabResults)), p.LabResults...)
	out.Adherence = append(make([]AdherenceRecord, 0, len(p.Adherence)), p.Adherence...)
	return out
}

// cloneStrings never returns nil so JSON renders [] rather than null.
func cloneStrings(in []string) []string {
	return append(make([]string, 0, len(in)), in...)
}

func cloneClinician(c *Clinician) Clinician { return *c }

func cloneAppointment(a *Appointment) Appointment { return *a }

// state is one committed version of the store. A committed state is never
// mutated: transactions fork it and replace whole entities they touch.
type state struct {
	patients         map[uuid.UUID]*Patient
	patientOrder     []uuid.UUID
	clinicians       map[uuid.UUID]*Clinician
	clinicianOrder   []uuid.UUID
	appointments     map[uuid.UUID]*Appointment
	appointmentOrder []uuid.UUID
	// scheduled maps an occupied slot to the appointment holding it.
	scheduled map[slotKey]uuid.UUID
}

type slotKey struct {
	clinician uuid.UUID
	date      string
	time      string
}

func keyOf(a *Appointment) slotKey {
	return slotKey{clinician: a.ClinicianID, date: a.Date.Format(dateKeyLayout), time: a.Time}
}

const dateKeyLayout = "2006-01-02"

func dateKey(t time.Time) string { return t.Format(dateKeyLayout) }

func newState() *state {
	return &state{
		patients:     make(map[uuid.UUID]*Patient),
		clinicians:   make(map[uuid.UUID]*Clinician),
		appointments: make(map[uuid.UUID]*Appointment),
		scheduled:    make(map[slotKey]uuid.UUID),
	}
}

// fork copies the indexes but shares entity pointers with s.
func (s *state) fork() *state {
	return &state{
		patients:         maps.Clone(s.patients),
		patientOrder:     slices.Clone(s.patientOrder),
		clinicians:       maps.Clone(s.clinicians),
		clinicianOrder:   slices.Clone(s.clinicianOrder),
		appointments:     maps.Clone(s.appointments),
		appointmentOrder: slices.Clone(s.appointmentOrder),
		scheduled:        maps.Clone(s.scheduled),
	}
}

func (s *state) snapshot() Snapshot {
	snap := Snapshot{
		Patients:     make([]Patient, 0, len(s.patientOrder)),
		Clinicians:   make([]Clinician, 0, len(s.clinicianOrder)),
		Appointments: make([]Appointment, 0, len(s.appointmentOrder)),
	}
	for _, id := range s.patientOrder {
		snap.Patients = append(snap.Patients, clonePatient(s.patients[id]))
	}
	for _, id := range s.clinicianOrder {
		snap.Clinicians = append(snap.Clinicians, cloneClinician(s.clinicians[id]))
	}
	for _, id := range s.appointmentOrder {
		snap.Appointments = append(snap.Appointments, cloneAppointment(s.appointments[id]))
	}
	return snap
}
