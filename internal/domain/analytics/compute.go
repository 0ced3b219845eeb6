package analytics

import (
	"math"
	"sort"
	"time"

	"github.com/clinic/carecore/internal/domain/policy"
	"github.com/clinic/carecore/internal/domain/store"
)

// percent returns part/whole as a rounded percentage, 0 when whole is 0.
func percent(part, whole int) int {
	if whole == 0 {
		return 0
	}
	return int(math.Round(float64(part) / float64(whole) * 100))
}

// AgeOn returns the whole years elapsed between dob and today.
func AgeOn(dob, today time.Time) int {
	years := today.Year() - dob.Year()
	if today.Month() < dob.Month() || (today.Month() == dob.Month() && today.Day() < dob.Day()) {
		years--
	}
	return years
}

func bandFor(age int) int {
	switch {
	case age <= 18:
		return 0
	case age <= 35:
		return 1
	case age <= 50:
		return 2
	case age <= 65:
		return 3
	}
	return 4
}

// AgeBands buckets patients by age on today. Patients without a date of
// birth are left out entirely.
func AgeBands(patients []store.Patient, today time.Time) AgeDistribution {
	d := AgeDistribution{Bands: []AgeBand{
		{Label: BandChild}, {Label: BandYoungAdult}, {Label: BandAdult}, {Label: BandMidlife}, {Label: BandSenior},
	}}
	for i := range patients {
		if patients[i].DateOfBirth == nil {
			continue
		}
		d.Bands[bandFor(AgeOn(*patients[i].DateOfBirth, today))].Count++
		d.Total++
	}
	for i := range d.Bands {
		d.Bands[i].Percent = percent(d.Bands[i].Count, d.Total)
	}
	return d
}

// ConditionFrequency ranks medical-history labels by how many patients list
// them. Equal counts keep the order in which labels were first seen. A
// non-positive topN returns every label.
func ConditionFrequency(patients []store.Patient, topN int) []ConditionCount {
	index := make(map[string]int)
	out := []ConditionCount{}
	for i := range patients {
		for _, c := range patients[i].MedicalHistory {
			if j, ok := index[c]; ok {
				out[j].Count++
				continue
			}
			index[c] = len(out)
			out = append(out, ConditionCount{Condition: c, Count: 1})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	if topN > 0 && len(out) > topN {
		out = out[:topN]
	}
	for i := range out {
		out[i].Percent = percent(out[i].Count, len(patients))
	}
	return out
}

// CompletionRate is completed over all appointments as a rounded
// percentage.
func CompletionRate(appts []store.Appointment) int {
	completed := 0
	for i := range appts {
		if appts[i].Status == store.StatusCompleted {
			completed++
		}
	}
	return percent(completed, len(appts))
}

// DailyBuckets returns one bucket per day for the days ending today, oldest
// first, zero-count days included.
func DailyBuckets(appts []store.Appointment, today time.Time, days int) []DayBucket {
	if days <= 0 {
		return []DayBucket{}
	}
	counts := countByDate(appts)
	out := make([]DayBucket, 0, days)
	for i := days - 1; i >= 0; i-- {
		d := today.AddDate(0, 0, -i)
		key := d.Format(policy.DateLayout)
		out = append(out, DayBucket{Date: key, Weekday: d.Format("Mon"), Count: counts[key]})
	}
	return out
}

// WeeklyBuckets returns weeks consecutive seven-day buckets, the last one
// ending today.
func WeeklyBuckets(appts []store.Appointment, today time.Time, weeks int) []WeekBucket {
	if weeks <= 0 {
		return []WeekBucket{}
	}
	counts := countByDate(appts)
	out := make([]WeekBucket, 0, weeks)
	for w := weeks - 1; w >= 0; w-- {
		end := today.AddDate(0, 0, -7*w)
		start := end.AddDate(0, 0, -6)
		b := WeekBucket{Start: start.Format(policy.DateLayout), End: end.Format(policy.DateLayout)}
		for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
			b.Count += counts[d.Format(policy.DateLayout)]
		}
		out = append(out, b)
	}
	return out
}

func countByDate(appts []store.Appointment) map[string]int {
	counts := make(map[string]int)
	for i := range appts {
		counts[appts[i].Date.Format(policy.DateLayout)]++
	}
	return counts
}

// ClassifyRisk counts the risk factors present and maps the count to a
// level: three or more is high, one or two medium, none low.
func ClassifyRisk(historyLen, allergyCount int, smoking bool, medicationCount int, th RiskThresholds) (RiskLevel, []string) {
	factors := []string{}
	if historyLen > th.History {
		factors = append(factors, FactorHistory)
	}
	if allergyCount > 0 {
		factors = append(factors, FactorAllergies)
	}
	if smoking {
		factors = append(factors, FactorSmoking)
	}
	if medicationCount > th.Medications {
		factors = append(factors, FactorMedications)
	}
	switch n := len(factors); {
	case n >= 3:
		return RiskHigh, factors
	case n >= 1:
		return RiskMedium, factors
	}
	return RiskLow, factors
}

func classifyPatient(p *store.Patient, th RiskThresholds) (RiskLevel, []string) {
	return ClassifyRisk(len(p.MedicalHistory), len(p.Allergies), p.Lifestyle.Smoking, len(p.Medications), th)
}

// Risks counts patients per risk level.
func Risks(patients []store.Patient, th RiskThresholds) RiskDistribution {
	var d RiskDistribution
	for i := range patients {
		switch level, _ := classifyPatient(&patients[i], th); level {
		case RiskHigh:
			d.High++
		case RiskMedium:
			d.Medium++
		default:
			d.Low++
		}
	}
	return d
}

// ClinicAdherence sums adherence records across all patients.
func ClinicAdherence(patients []store.Patient) AdherenceStats {
	var s AdherenceStats
	for i := range patients {
		for _, r := range patients[i].Adherence {
			s.Records++
			if r.Taken {
				s.Taken++
			}
		}
	}
	s.Percent = percent(s.Taken, s.Records)
	return s
}

// Lifestyle counts lifestyle flags. Regular exercise is any level other
// than None.
func Lifestyle(patients []store.Patient) LifestyleStats {
	s := LifestyleStats{Patients: len(patients)}
	for i := range patients {
		l := patients[i].Lifestyle
		if l.Smoking {
			s.Smokers++
		}
		if l.Alcohol {
			s.AlcoholUsers++
		}
		if l.Exercise != "" && l.Exercise != store.ExerciseNone {
			s.RegularExercise++
		}
	}
	return s
}

// Insights counts patients with allergies and on medication and averages
// the ages of those with a date of birth, rounded to whole years.
func Insights(patients []store.Patient, today time.Time) PatientInsights {
	in := PatientInsights{Patients: len(patients)}
	years := 0
	for i := range patients {
		p := &patients[i]
		if len(p.Allergies) > 0 {
			in.WithAllergies++
		}
		if len(p.Medications) > 0 {
			in.OnMedications++
		}
		if p.DateOfBirth != nil {
			years += AgeOn(*p.DateOfBirth, today)
			in.WithBirthDate++
		}
	}
	if in.WithBirthDate > 0 {
		in.AverageAge = int(math.Round(float64(years) / float64(in.WithBirthDate)))
	}
	return in
}

// recent returns up to n appointments, latest date first. Appointments on
// the same date keep booking order.
func recent(appts []store.Appointment, n int) []store.Appointment {
	sorted := make([]store.Appointment, len(appts))
	copy(sorted, appts)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.After(sorted[j].Date) })
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

func onDate(appts []store.Appointment, day time.Time) []store.Appointment {
	out := []store.Appointment{}
	for i := range appts {
		if appts[i].Date.Equal(day) {
			out = append(out, appts[i])
		}
	}
	return out
}
