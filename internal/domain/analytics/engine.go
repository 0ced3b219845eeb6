// Package analytics derives clinic dashboards and patient risk levels from
// the entity store. Every call reads one fresh snapshot; nothing is cached
// between calls.
package analytics

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/clinic/carecore/internal/domain/adherence"
	"github.com/clinic/carecore/internal/domain/policy"
	"github.com/clinic/carecore/internal/domain/store"
)

// RecentLimit is the number of appointments shown in the overview's recent
// list.
const RecentLimit = 5

// DashboardDays is the length of the daily series on a clinician dashboard.
const DashboardDays = 7

// ReportDays is the length of the daily series in the clinic report.
const ReportDays = 30

// Source is the read side of the entity store.
type Source interface {
	Snapshot() store.Snapshot
	Now() time.Time
}

type Engine struct {
	src    Source
	policy policy.Policy
}

func NewEngine(src Source, pol policy.Policy) *Engine {
	return &Engine{src: src, policy: pol}
}

func (e *Engine) thresholds() RiskThresholds {
	return RiskThresholds{History: e.policy.RiskHistoryThreshold, Medications: e.policy.RiskMedicationThreshold}
}

func (e *Engine) view() (store.Snapshot, time.Time) {
	return e.src.Snapshot(), e.policy.Today(e.src.Now())
}

func (e *Engine) AgeDistribution(_ context.Context) AgeDistribution {
	snap, today := e.view()
	return AgeBands(snap.Patients, today)
}

// ConditionFrequency returns the topN most common conditions; topN <= 0
// uses the configured default.
func (e *Engine) ConditionFrequency(_ context.Context, topN int) []ConditionCount {
	if topN <= 0 {
		topN = e.policy.TopConditions
	}
	return ConditionFrequency(e.src.Snapshot().Patients, topN)
}

func (e *Engine) CompletionRate(_ context.Context) int {
	return CompletionRate(e.src.Snapshot().Appointments)
}

// DailyAppointments buckets appointments over the trailing days, optionally
// limited to one clinician.
func (e *Engine) DailyAppointments(_ context.Context, days int, clinicianID *uuid.UUID) ([]DayBucket, error) {
	if days <= 0 {
		return nil, store.Validationf("days must be positive, got %d", days)
	}
	snap, today := e.view()
	appts := snap.Appointments
	if clinicianID != nil {
		if !hasClinician(snap, *clinicianID) {
			return nil, store.NotFoundf("clinician %s not found", *clinicianID)
		}
		appts = forClinician(appts, *clinicianID)
	}
	return DailyBuckets(appts, today, days), nil
}

func (e *Engine) WeeklyAppointments(_ context.Context, weeks int) ([]WeekBucket, error) {
	if weeks <= 0 {
		return nil, store.Validationf("weeks must be positive, got %d", weeks)
	}
	snap, today := e.view()
	return WeeklyBuckets(snap.Appointments, today, weeks), nil
}

// RiskForPatient classifies one patient and attaches their short-window
// rolling adherence rate.
func (e *Engine) RiskForPatient(_ context.Context, id uuid.UUID) (PatientRisk, error) {
	snap, today := e.view()
	for i := range snap.Patients {
		p := &snap.Patients[i]
		if p.ID != id {
			continue
		}
		level, factors := classifyPatient(p, e.thresholds())
		return PatientRisk{
			PatientID:        p.ID,
			Name:             p.Name,
			Level:            level,
			Factors:          factors,
			RollingAdherence: adherence.RollingRate(*p, today, e.policy.ShortWindowDays),
		}, nil
	}
	return PatientRisk{}, store.NotFoundf("patient %s not found", id)
}

func (e *Engine) RiskDistribution(_ context.Context) RiskDistribution {
	return Risks(e.src.Snapshot().Patients, e.thresholds())
}

func (e *Engine) ClinicAdherence(_ context.Context) AdherenceStats {
	return ClinicAdherence(e.src.Snapshot().Patients)
}

func (e *Engine) Lifestyle(_ context.Context) LifestyleStats {
	return Lifestyle(e.src.Snapshot().Patients)
}

func (e *Engine) Overview(_ context.Context) Overview {
	snap, today := e.view()
	return overview(snap, today)
}

func overview(snap store.Snapshot, today time.Time) Overview {
	o := Overview{
		Date:              today.Format(policy.DateLayout),
		TotalPatients:     len(snap.Patients),
		TotalClinicians:   len(snap.Clinicians),
		TotalAppointments: len(snap.Appointments),
		CompletionRate:    CompletionRate(snap.Appointments),
		Adherence:         ClinicAdherence(snap.Patients),
		Today:             onDate(snap.Appointments, today),
		Recent:            recent(snap.Appointments, RecentLimit),
	}
	for i := range snap.Appointments {
		switch snap.Appointments[i].Status {
		case store.StatusScheduled:
			o.Scheduled++
		case store.StatusCompleted:
			o.Completed++
		case store.StatusCancelled:
			o.Cancelled++
		}
	}
	return o
}

func (e *Engine) PatientInsights(_ context.Context) PatientInsights {
	snap, today := e.view()
	return Insights(snap.Patients, today)
}

// ClinicianDashboard summarizes one clinician's workload over the last
// DashboardDays days.
func (e *Engine) ClinicianDashboard(_ context.Context, clinicianID uuid.UUID) (ClinicianDashboard, error) {
	snap, today := e.view()
	var name string
	found := false
	for _, c := range snap.Clinicians {
		if c.ID == clinicianID {
			name, found = c.Name, true
			break
		}
	}
	if !found {
		return ClinicianDashboard{}, store.NotFoundf("clinician %s not found", clinicianID)
	}

	appts := forClinician(snap.Appointments, clinicianID)
	d := ClinicianDashboard{
		ClinicianID:   clinicianID,
		Name:          name,
		TotalPatients: len(snap.Patients),
		Today:         onDate(appts, today),
		Daily:         DailyBuckets(appts, today, DashboardDays),
		TopConditions: ConditionFrequency(snap.Patients, e.policy.TopConditions),
		Adherence:     ClinicAdherence(snap.Patients),
		Insights:      Insights(snap.Patients, today),
	}
	for i := range appts {
		switch appts[i].Status {
		case store.StatusScheduled:
			d.Scheduled++
		case store.StatusCompleted:
			d.Completed++
		}
	}
	return d, nil
}

// Report computes every clinic-wide view from a single snapshot.
func (e *Engine) Report(_ context.Context) ClinicReport {
	snap, today := e.view()
	return ClinicReport{
		Overview:   overview(snap, today),
		Ages:       AgeBands(snap.Patients, today),
		Conditions: ConditionFrequency(snap.Patients, e.policy.TopConditions),
		Risk:       Risks(snap.Patients, e.thresholds()),
		Lifestyle:  Lifestyle(snap.Patients),
		Insights:   Insights(snap.Patients, today),
		Daily:      DailyBuckets(snap.Appointments, today, ReportDays),
		Weekly:     WeeklyBuckets(snap.Appointments, today, 4),
	}
}

func hasClinician(snap store.Snapshot, id uuid.UUID) bool {
	for _, c := range snap.Clinicians {
		if c.ID == id {
			return true
		}
	}
	return false
}

func forClinician(appts []store.Appointment, id uuid.UUID) []store.Appointment {
	out := []store.Appointment{}
	for i := range appts {
		if appts[i].ClinicianID == id {
			out = append(out, appts[i])
		}
	}
	return out
}
