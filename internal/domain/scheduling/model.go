package scheduling

import (
	"time"

	"github.com/google/uuid"
)

// BookRequest is the input to BookAppointment. Date is a calendar date; any
// time-of-day component is ignored.
type BookRequest struct {
	PatientID   uuid.UUID
	ClinicianID uuid.UUID
	Date        time.Time
	Time        string
	Reason      string
}

// DateRange is an inclusive calendar range. A zero bound is open.
type DateRange struct {
	From time.Time
	To   time.Time
}

// Contains reports whether d falls within the range.
func (r DateRange) Contains(d time.Time) bool {
	if !r.From.IsZero() && d.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && d.After(r.To) {
		return false
	}
	return true
}

// Slot is one bookable time on a clinician's day.
type Slot struct {
	Date      string `json:"date"`
	Time      string `json:"time"`
	Available bool   `json:"available"`
}
