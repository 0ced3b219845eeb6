package registry

import (
	"strings"

	"github.com/clinic/carecore/internal/domain/store"
	"github.com/clinic/carecore/pkg/pagination"
)

// Intake is the clinical questionnaire a patient submits. Nil lists leave
// the stored values unchanged.
type Intake struct {
	MedicalHistory []string        `json:"medical_history"`
	Allergies      []string        `json:"allergies"`
	Medications    []string        `json:"medications"`
	Lifestyle      store.Lifestyle `json:"lifestyle"`
}

// PatientPage is one page of a patient listing.
type PatientPage = pagination.Page[store.Patient]

// Narrative renders the intake summary for p. Sentences appear in a fixed
// order: history, allergies, medications, lifestyle risks, exercise level,
// follow-up.
func Narrative(p store.Patient) string {
	var parts []string
	if len(p.MedicalHistory) > 0 {
		parts = append(parts, "Patient has a history of "+strings.Join(p.MedicalHistory, ", ")+".")
	}
	if len(p.Allergies) > 0 {
		parts = append(parts, "Known allergies: "+strings.Join(p.Allergies, ", ")+".")
	}
	if len(p.Medications) > 0 {
		parts = append(parts, "Current medications: "+strings.Join(p.Medications, ", ")+".")
	}

	var factors []string
	if p.Lifestyle.Smoking {
		factors = append(factors, "smoking")
	}
	if p.Lifestyle.Alcohol {
		factors = append(factors, "alcohol consumption")
	}
	if len(factors) > 0 {
		parts = append(parts, "Lifestyle factors include "+strings.Join(factors, " and ")+".")
	}

	exercise := p.Lifestyle.Exercise
	if exercise == "" {
		exercise = store.ExerciseNone
	}
	parts = append(parts, "Exercise level: "+strings.ToLower(string(exercise))+".")
	parts = append(parts, "Regular monitoring and follow-up recommended.")
	return strings.Join(parts, " ")
}

// PatientFilter narrows a patient listing to one clinical group.
type PatientFilter string

const (
	FilterAll            PatientFilter = ""
	FilterWithConditions PatientFilter = "with-conditions"
	FilterOnMedications  PatientFilter = "on-medications"
	FilterWithAllergies  PatientFilter = "with-allergies"
)

// ParsePatientFilter accepts "", "all" or one of the named groups.
func ParsePatientFilter(s string) (PatientFilter, error) {
	switch f := PatientFilter(strings.ToLower(strings.TrimSpace(s))); f {
	case FilterAll, "all":
		return FilterAll, nil
	case FilterWithConditions, FilterOnMedications, FilterWithAllergies:
		return f, nil
	}
	return FilterAll, store.Validationf("filter must be one of all, %s, %s, %s, got %q",
		FilterWithConditions, FilterOnMedications, FilterWithAllergies, s)
}

func (f PatientFilter) keep(p *store.Patient) bool {
	switch f {
	case FilterWithConditions:
		return len(p.MedicalHistory) > 0
	case FilterOnMedications:
		return len(p.Medications) > 0
	case FilterWithAllergies:
		return len(p.Allergies) > 0
	}
	return true
}

// matches reports whether term occurs in the patient's name or email,
// ignoring case.
func matches(p *store.Patient, term string) bool {
	return strings.Contains(strings.ToLower(p.Name), term) ||
		strings.Contains(strings.ToLower(p.Email), term)
}
