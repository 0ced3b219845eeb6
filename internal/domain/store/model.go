package store

import (
	"time"

	"github.com/google/uuid"
)

// Exercise is the self-reported exercise level collected at intake.
type Exercise string

const (
	ExerciseNone     Exercise = "None"
	ExerciseLight    Exercise = "Light"
	ExerciseModerate Exercise = "Moderate"
	ExerciseHeavy    Exercise = "Heavy"
)

var validExercise = map[Exercise]bool{
	ExerciseNone: true, ExerciseLight: true, ExerciseModerate: true, ExerciseHeavy: true,
}

// Lifestyle carries the lifestyle flags used by risk scoring and analytics.
type Lifestyle struct {
	Smoking  bool     `json:"smoking"`
	Alcohol  bool     `json:"alcohol"`
	Exercise Exercise `json:"exercise"`
}

// Patient is the canonical patient record. It exclusively owns its lab
// results and adherence records.
type Patient struct {
	ID               uuid.UUID         `json:"id"`
	Name             string            `json:"name"`
	Email            string            `json:"email,omitempty"`
	Phone            string            `json:"phone,omitempty"`
	DateOfBirth      *time.Time        `json:"date_of_birth,omitempty"`
	Gender           string            `json:"gender,omitempty"`
	Address          string            `json:"address,omitempty"`
	EmergencyContact string            `json:"emergency_contact,omitempty"`
	MedicalHistory   []string          `json:"medical_history"`
	Medications      []string          `json:"medications"`
	Allergies        []string          `json:"allergies"`
	Lifestyle        Lifestyle         `json:"lifestyle"`
	Summary          string            `json:"summary,omitempty"`
	LabResults       []LabResult       `json:"lab_results"`
	Adherence        []AdherenceRecord `json:"adherence"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// HasMedication reports whether medication is on the active list, matched by
// exact text.
func (p *Patient) HasMedication(medication string) bool {
	for _, m := range p.Medications {
		if m == medication {
			return true
		}
	}
	return false
}

// Clinician is immutable once registered.
type Clinician struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Email          string    `json:"email,omitempty"`
	Phone          string    `json:"phone,omitempty"`
	Specialization string    `json:"specialization"`
	CreatedAt      time.Time `json:"created_at"`
}

// AppointmentStatus is the appointment state machine position.
type AppointmentStatus string

const (
	StatusScheduled AppointmentStatus = "scheduled"
	StatusCompleted AppointmentStatus = "completed"
	StatusCancelled AppointmentStatus = "cancelled"
)

// Terminal reports whether no further transition is allowed.
func (s AppointmentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

var validAppointmentStatuses = map[AppointmentStatus]bool{
	StatusScheduled: true, StatusCompleted: true, StatusCancelled: true,
}

// Appointment references a patient and a clinician by id; neither owns it.
type Appointment struct {
	ID          uuid.UUID         `json:"id"`
	PatientID   uuid.UUID         `json:"patient_id"`
	ClinicianID uuid.UUID         `json:"clinician_id"`
	Date        time.Time         `json:"date"`
	Time        string            `json:"time"`
	Status      AppointmentStatus `json:"status"`
	Reason      string            `json:"reason,omitempty"`
	Notes       string            `json:"notes,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// Before orders appointments by (date, time) ascending.
func (a *Appointment) Before(b *Appointment) bool {
	if !a.Date.Equal(b.Date) {
		return a.Date.Before(b.Date)
	}
	return a.Time < b.Time
}

// LabResult is appended once by upload processing and never mutated.
type LabResult struct {
	ID         uuid.UUID `json:"id"`
	PatientID  uuid.UUID `json:"patient_id"`
	FileName   string    `json:"file_name"`
	UploadedAt time.Time `json:"uploaded_at"`
	Summary    string    `json:"summary"`
	ImageRef   string    `json:"image_ref,omitempty"`
}

// AdherenceRecord is the single intake record for (patient, medication,
// date).
type AdherenceRecord struct {
	ID         uuid.UUID `json:"id"`
	PatientID  uuid.UUID `json:"patient_id"`
	Medication string    `json:"medication"`
	Date       time.Time `json:"date"`
	Taken      bool      `json:"taken"`
	Snoozed    bool      `json:"snoozed"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Snapshot is a deep copy of the whole store in insertion order. It is also
// the unit handed to a Persister and accepted as initial state.
type Snapshot struct {
	Patients     []Patient     `json:"patients"`
	Clinicians   []Clinician   `json:"clinicians"`
	Appointments []Appointment `json:"appointments"`
}

// PatientInput is the registration payload. DateOfBirth is YYYY-MM-DD and
// may be empty.
type PatientInput struct {
	Name             string    `json:"name"`
	Email            string    `json:"email"`
	Phone            string    `json:"phone"`
	DateOfBirth      string    `json:"date_of_birth"`
	Gender           string    `json:"gender"`
	Address          string    `json:"address"`
	EmergencyContact string    `json:"emergency_contact"`
	MedicalHistory   []string  `json:"medical_history"`
	Medications      []string  `json:"medications"`
	Allergies        []string  `json:"allergies"`
	Lifestyle        Lifestyle `json:"lifestyle"`
	Summary          string    `json:"summary"`
}

// PatientUpdate carries the fields to merge; nil means unchanged.
type PatientUpdate struct {
	Name             *string    `json:"name,omitempty"`
	Email            *string    `json:"email,omitempty"`
	Phone            *string    `json:"phone,omitempty"`
	DateOfBirth      *string    `json:"date_of_birth,omitempty"`
	Gender           *string    `json:"gender,omitempty"`
	Address          *string    `json:"address,omitempty"`
	EmergencyContact *string    `json:"emergency_contact,omitempty"`
	MedicalHistory   []string   `json:"medical_history,omitempty"`
	Medications      []string   `json:"medications,omitempty"`
	Allergies        []string   `json:"allergies,omitempty"`
	Lifestyle        *Lifestyle `json:"lifestyle,omitempty"`
	Summary          *string    `json:"summary,omitempty"`
}

// ClinicianInput is the registration payload for a clinician.
type ClinicianInput struct {
	Name           string `json:"name"`
	Email          string `json:"email"`
	Phone          string `json:"phone"`
	Specialization string `json:"specialization"`
}
