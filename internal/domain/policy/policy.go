// Package policy holds the clinic's tunable scheduling, adherence and risk
// constants. Config loads them from the environment; domain services only
// ever read them from a Policy value.
package policy

import (
	"fmt"
	"time"
)

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

// TimeLayout is the wire format for slot times of day.
const TimeLayout = "15:04"

// Policy is the set of clinical constants shared by scheduling, adherence
// tracking and analytics.
type Policy struct {
	SlotMinutes    int
	DayStart       string
	DayEnd         string
	MinAdvanceDays int

	ShortWindowDays int
	LongWindowDays  int

	RiskHistoryThreshold    int
	RiskMedicationThreshold int
	TopConditions           int

	Location *time.Location
}

// Default returns the clinic defaults: 30 minute slots between 09:00 and
// 17:00, one day minimum notice, 7 and 30 day adherence windows.
func Default() Policy {
	return Policy{
		SlotMinutes:             30,
		DayStart:                "09:00",
		DayEnd:                  "17:00",
		MinAdvanceDays:          1,
		ShortWindowDays:         7,
		LongWindowDays:          30,
		RiskHistoryThreshold:    2,
		RiskMedicationThreshold: 3,
		TopConditions:           6,
		Location:                time.UTC,
	}
}

// Validate reports the first constant that cannot produce a usable slot grid
// or window.
func (p Policy) Validate() error {
	if p.SlotMinutes <= 0 || p.SlotMinutes > 24*60 {
		return fmt.Errorf("slot minutes must be between 1 and 1440, got %d", p.SlotMinutes)
	}
	start, err := time.Parse(TimeLayout, p.DayStart)
	if err != nil {
		return fmt.Errorf("invalid day start %q: %w", p.DayStart, err)
	}
	end, err := time.Parse(TimeLayout, p.DayEnd)
	if err != nil {
		return fmt.Errorf("invalid day end %q: %w", p.DayEnd, err)
	}
	if !start.Before(end) {
		return fmt.Errorf("day start %s must be before day end %s", p.DayStart, p.DayEnd)
	}
	if p.MinAdvanceDays < 1 {
		return fmt.Errorf("min advance days must be at least 1, got %d", p.MinAdvanceDays)
	}
	if p.ShortWindowDays <= 0 || p.LongWindowDays <= 0 {
		return fmt.Errorf("adherence windows must be positive, got %d and %d", p.ShortWindowDays, p.LongWindowDays)
	}
	if p.RiskHistoryThreshold < 0 || p.RiskMedicationThreshold < 0 {
		return fmt.Errorf("risk thresholds must not be negative")
	}
	return nil
}

// SlotTimes lists every bookable time of day, DayStart inclusive to DayEnd
// exclusive, stepping SlotMinutes.
func (p Policy) SlotTimes() []string {
	start, err := time.Parse(TimeLayout, p.DayStart)
	if err != nil {
		return nil
	}
	end, err := time.Parse(TimeLayout, p.DayEnd)
	if err != nil || p.SlotMinutes <= 0 {
		return nil
	}
	step := time.Duration(p.SlotMinutes) * time.Minute

	var times []string
	for t := start; t.Before(end); t = t.Add(step) {
		times = append(times, t.Format(TimeLayout))
	}
	return times
}

// IsSlot reports whether hhmm is one of the fixed slot values.
func (p Policy) IsSlot(hhmm string) bool {
	for _, t := range p.SlotTimes() {
		if t == hhmm {
			return true
		}
	}
	return false
}

func (p Policy) loc() *time.Location {
	if p.Location == nil {
		return time.UTC
	}
	return p.Location
}

// Today returns the calendar date of now in the clinic's timezone.
func (p Policy) Today(now time.Time) time.Time {
	return Date(now.In(p.loc()))
}

// EarliestBookable is the first calendar date a booking made at now may
// target. It is never earlier than tomorrow, whatever MinAdvanceDays says.
func (p Policy) EarliestBookable(now time.Time) time.Time {
	return p.Today(now).AddDate(0, 0, max(1, p.MinAdvanceDays))
}

// Date strips the time of day, keeping the calendar date as UTC midnight.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, err
	}
	return Date(t), nil
}
