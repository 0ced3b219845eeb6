package analytics

import (
	"github.com/google/uuid"

	"github.com/clinic/carecore/internal/domain/adherence"
	"github.com/clinic/carecore/internal/domain/store"
)

// Age band labels in display order.
const (
	BandChild      = "0-18"
	BandYoungAdult = "19-35"
	BandAdult      = "36-50"
	BandMidlife    = "51-65"
	BandSenior     = "65+"
)

// AgeBand is one bucket of the age distribution. Percent is relative to
// patients with a known date of birth.
type AgeBand struct {
	Label   string `json:"label"`
	Count   int    `json:"count"`
	Percent int    `json:"percent"`
}

type AgeDistribution struct {
	Bands []AgeBand `json:"bands"`
	// Total counts patients with a date of birth only.
	Total int `json:"total"`
}

// Count returns the count for label, or 0 if there is no such band.
func (d AgeDistribution) Count(label string) int {
	for _, b := range d.Bands {
		if b.Label == label {
			return b.Count
		}
	}
	return 0
}

// ConditionCount is one medical-history label with the number of patients
// listing it. Percent is relative to the whole patient count.
type ConditionCount struct {
	Condition string `json:"condition"`
	Count     int    `json:"count"`
	Percent   int    `json:"percent"`
}

// DayBucket is the number of appointments on one calendar day.
type DayBucket struct {
	Date    string `json:"date"`
	Weekday string `json:"weekday"`
	Count   int    `json:"count"`
}

// WeekBucket covers seven days, Start and End inclusive.
type WeekBucket struct {
	Start string `json:"start"`
	End   string `json:"end"`
	Count int    `json:"count"`
}

type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// RiskThresholds are the strict lower bounds above which history length and
// medication count each contribute one risk factor.
type RiskThresholds struct {
	History     int
	Medications int
}

// Risk factor names reported with a classification.
const (
	FactorHistory     = "medical_history"
	FactorAllergies   = "allergies"
	FactorSmoking     = "smoking"
	FactorMedications = "polypharmacy"
)

type PatientRisk struct {
	PatientID uuid.UUID `json:"patient_id"`
	Name      string    `json:"name"`
	Level     RiskLevel `json:"level"`
	Factors   []string  `json:"factors"`
	// RollingAdherence is the expectation-based rate over the short window.
	RollingAdherence adherence.Rate `json:"rolling_adherence_rate"`
}

type RiskDistribution struct {
	Low    int `json:"low"`
	Medium int `json:"medium"`
	High   int `json:"high"`
}

// AdherenceStats is the records-based clinic rate: taken records over all
// records. Days without a record are not counted.
type AdherenceStats struct {
	Records int `json:"records"`
	Taken   int `json:"taken"`
	Percent int `json:"clinic_adherence_rate"`
}

type LifestyleStats struct {
	Patients        int `json:"patients"`
	Smokers         int `json:"smokers"`
	AlcoholUsers    int `json:"alcohol_consumers"`
	RegularExercise int `json:"regular_exercise"`
}

// PatientInsights is the per-patient roll-up shown beside a clinician's
// dashboard. AverageAge is over patients with a date of birth only and is 0
// when there are none.
type PatientInsights struct {
	Patients      int `json:"patients"`
	WithBirthDate int `json:"with_date_of_birth"`
	AverageAge    int `json:"average_age"`
	WithAllergies int `json:"with_allergies"`
	OnMedications int `json:"on_medications"`
}

type Overview struct {
	Date              string              `json:"date"`
	TotalPatients     int                 `json:"total_patients"`
	TotalClinicians   int                 `json:"total_clinicians"`
	TotalAppointments int                 `json:"total_appointments"`
	Scheduled         int                 `json:"scheduled"`
	Completed         int                 `json:"completed"`
	Cancelled         int                 `json:"cancelled"`
	CompletionRate    int                 `json:"completion_rate"`
	Adherence         AdherenceStats      `json:"adherence"`
	Today             []store.Appointment `json:"today"`
	Recent            []store.Appointment `json:"recent"`
}

type ClinicianDashboard struct {
	ClinicianID   uuid.UUID           `json:"clinician_id"`
	Name          string              `json:"name"`
	TotalPatients int                 `json:"total_patients"`
	Scheduled     int                 `json:"scheduled"`
	Completed     int                 `json:"completed"`
	Today         []store.Appointment `json:"today"`
	Daily         []DayBucket         `json:"daily"`
	TopConditions []ConditionCount    `json:"top_conditions"`
	Adherence     AdherenceStats      `json:"adherence"`
	Insights      PatientInsights     `json:"insights"`
}

// ClinicReport gathers every clinic-wide view computed from one snapshot.
type ClinicReport struct {
	Overview   Overview         `json:"overview"`
	Ages       AgeDistribution  `json:"ages"`
	Conditions []ConditionCount `json:"conditions"`
	Risk       RiskDistribution `json:"risk"`
	Lifestyle  LifestyleStats   `json:"lifestyle"`
	Insights   PatientInsights  `json:"insights"`
	Daily      []DayBucket      `json:"daily"`
	Weekly     []WeekBucket     `json:"weekly"`
}
