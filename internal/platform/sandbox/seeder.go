// Package sandbox generates reproducible demo data for the care store: the
// clinic's demo patient and clinicians plus any number of synthetic
// patients with appointments and adherence history.
package sandbox

import (
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/clinic/carecore/internal/domain/policy"
	"github.com/clinic/carecore/internal/domain/store"
)

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------

// SeedConfig controls the volume and shape of generated data.
type SeedConfig struct {
	IncludeDemo            bool  `json:"includeDemo"`
	PatientCount           int   `json:"patientCount"`
	AppointmentsPerPatient int   `json:"appointmentsPerPatient"`
	AdherenceDays          int   `json:"adherenceDays"`
	Seed                   int64 `json:"seed"`
}

// DefaultSeedConfig returns the demo records only.
func DefaultSeedConfig() SeedConfig {
	return SeedConfig{
		IncludeDemo:            true,
		AppointmentsPerPatient: 2,
		AdherenceDays:          7,
	}
}

// SeedResult summarizes the output of a seed operation.
type SeedResult struct {
	Patients     int           `json:"patients"`
	Clinicians   int           `json:"clinicians"`
	Appointments int           `json:"appointments"`
	Adherence    int           `json:"adherence"`
	Seed         int64         `json:"seed"`
	Duration     time.Duration `json:"duration"`
}

var (
	firstNamesMale = []string{
		"James", "Robert", "John", "Michael", "David", "William", "Richard",
		"Joseph", "Thomas", "Christopher", "Charles", "Daniel", "Matthew",
		"Anthony", "Mark", "Steven", "Paul", "Andrew", "Kevin", "Brian",
	}
	firstNamesFemale = []string{
		"Mary", "Patricia", "Jennifer", "Linda", "Barbara", "Elizabeth",
		"Susan", "Jessica", "Sarah", "Karen", "Lisa", "Nancy", "Emily",
		"Michelle", "Amanda", "Melissa", "Rebecca", "Laura", "Anna", "Emma",
	}
	lastNames = []string{
		"Smith", "Johnson", "Williams", "Brown", "Jones", "Garcia",
		"Miller", "Davis", "Rodriguez", "Martinez", "Wilson", "Anderson",
		"Taylor", "Moore", "Jackson", "Martin", "Lee", "Thompson", "White",
		"Harris", "Clark", "Lewis", "Walker", "Young", "Nguyen", "Hill",
	}
	streets = []string{
		"123 Main St", "456 Oak Ave", "789 Elm St", "321 Pine Rd",
		"654 Maple Dr", "987 Cedar Ln", "147 Birch Blvd", "258 Walnut Way",
	}
	cities = []string{
		"Springfield", "Riverside", "Fairview", "Madison", "Georgetown",
		"Clinton", "Salem", "Franklin",
	}

	conditions = []string{
		"Hypertension", "Type 2 Diabetes", "Asthma", "Hyperlipidemia",
		"Hypothyroidism", "Depression", "GERD", "Migraine", "Osteoarthritis",
		"Chronic Kidney Disease", "Atrial Fibrillation", "COPD",
	}
	medications = []string{
		"Lisinopril 10mg", "Metformin 500mg", "Atorvastatin 20mg",
		"Levothyroxine 50mcg", "Amlodipine 5mg", "Omeprazole 20mg",
		"Sertraline 50mg", "Albuterol inhaler", "Losartan 50mg",
		"Apixaban 5mg",
	}
	allergies = []string{
		"Penicillin", "Shellfish", "Peanuts", "Latex", "Sulfa drugs",
		"Aspirin", "Codeine", "Eggs",
	}
	exerciseLevels = []store.Exercise{
		store.ExerciseNone, store.ExerciseLight, store.ExerciseModerate, store.ExerciseHeavy,
	}
	visitReasons = []string{
		"Routine checkup", "Follow-up", "Medication review", "Lab review",
		"Blood pressure check", "Annual physical",
	}
)

// ---------------------------------------------------------------------------
// DataGenerator
// ---------------------------------------------------------------------------

// DataGenerator produces deterministic synthetic records.
type DataGenerator struct {
	rng  *rand.Rand
	seed int64
}

// NewDataGenerator returns a generator seeded for reproducibility. If seed is
// 0 a time-based seed is chosen.
func NewDataGenerator(seed int64) *DataGenerator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &DataGenerator{rng: rand.New(rand.NewSource(seed)), seed: seed}
}

// Seed reports the seed in use, so a random run can be reproduced.
func (g *DataGenerator) Seed() int64 { return g.seed }

func (g *DataGenerator) id() uuid.UUID {
	return uuid.Must(uuid.NewRandomFromReader(g.rng))
}

func (g *DataGenerator) pick(pool []string) string {
	return pool[g.rng.Intn(len(pool))]
}

// sample picks up to n distinct entries, preserving pool order.
func (g *DataGenerator) sample(pool []string, n int) []string {
	if n > len(pool) {
		n = len(pool)
	}
	out := make([]string, 0, n)
	for _, i := range g.rng.Perm(len(pool))[:n] {
		out = append(out, pool[i])
	}
	return out
}

func (g *DataGenerator) randomBirthDate(minYear, maxYear int) time.Time {
	y := minYear + g.rng.Intn(maxYear-minYear+1)
	m := time.Month(1 + g.rng.Intn(12))
	d := 1 + g.rng.Intn(28) // safe for all months
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (g *DataGenerator) randomPhone() string {
	return fmt.Sprintf("+1%03d%03d%04d",
		200+g.rng.Intn(800),
		200+g.rng.Intn(800),
		g.rng.Intn(10000),
	)
}

// GeneratePatient produces a synthetic patient born no later than today.
func (g *DataGenerator) GeneratePatient(now time.Time) store.Patient {
	first, gender := g.pick(firstNamesMale), "Male"
	if g.rng.Intn(2) == 0 {
		first, gender = g.pick(firstNamesFemale), "Female"
	}
	last := g.pick(lastNames)
	dob := g.randomBirthDate(1940, now.Year()-1)

	return store.Patient{
		ID:             g.id(),
		Name:           first + " " + last,
		Email:          fmt.Sprintf("%s.%s.%04d@example.com", first, last, g.rng.Intn(10000)),
		Phone:          g.randomPhone(),
		DateOfBirth:    &dob,
		Gender:         gender,
		Address:        fmt.Sprintf("%s, %s", g.pick(streets), g.pick(cities)),
		MedicalHistory: g.sample(conditions, g.rng.Intn(4)),
		Medications:    g.sample(medications, g.rng.Intn(5)),
		Allergies:      g.sample(allergies, g.rng.Intn(3)),
		Lifestyle: store.Lifestyle{
			Smoking:  g.rng.Intn(5) == 0,
			Alcohol:  g.rng.Intn(3) == 0,
			Exercise: exerciseLevels[g.rng.Intn(len(exerciseLevels))],
		},
		LabResults: []store.LabResult{},
		Adherence:  []store.AdherenceRecord{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// GenerateAdherence records one entry per active medication for each of the
// days ending today. Roughly four in five doses are taken.
func (g *DataGenerator) GenerateAdherence(p *store.Patient, today time.Time, days int, now time.Time) {
	for d := days - 1; d >= 0; d-- {
		date := today.AddDate(0, 0, -d)
		for _, med := range p.Medications {
			p.Adherence = append(p.Adherence, store.AdherenceRecord{
				ID:         g.id(),
				PatientID:  p.ID,
				Medication: med,
				Date:       date,
				Taken:      g.rng.Intn(5) != 0,
				RecordedAt: now,
			})
		}
	}
}

// ---------------------------------------------------------------------------
// Seeder
// ---------------------------------------------------------------------------

// Seeder builds a store snapshot from a SeedConfig.
type Seeder struct {
	config SeedConfig
	policy policy.Policy
	gen    *DataGenerator
}

func NewSeeder(config SeedConfig, pol policy.Policy) *Seeder {
	return &Seeder{config: config, policy: pol, gen: NewDataGenerator(config.Seed)}
}

// Generate builds the snapshot as of now. Synthetic appointments fall within
// two weeks either side of today: past ones are completed or cancelled,
// future ones scheduled, and no two scheduled appointments share a slot.
func (s *Seeder) Generate(now time.Time) (store.Snapshot, *SeedResult) {
	start := time.Now()
	today := s.policy.Today(now)
	snap := store.Snapshot{
		Patients:     []store.Patient{},
		Clinicians:   []store.Clinician{},
		Appointments: []store.Appointment{},
	}

	if s.config.IncludeDemo {
		patient, clinicians := DemoRecords(now)
		snap.Patients = append(snap.Patients, patient)
		snap.Clinicians = append(snap.Clinicians, clinicians...)
	}

	for i := 0; i < s.config.PatientCount; i++ {
		p := s.gen.GeneratePatient(now)
		if s.config.AdherenceDays > 0 {
			s.gen.GenerateAdherence(&p, today, s.config.AdherenceDays, now)
		}
		snap.Patients = append(snap.Patients, p)
	}

	if len(snap.Clinicians) > 0 {
		snap.Appointments = s.appointments(snap, today, now)
	}

	result := &SeedResult{
		Patients:     len(snap.Patients),
		Clinicians:   len(snap.Clinicians),
		Appointments: len(snap.Appointments),
		Seed:         s.gen.Seed(),
		Duration:     time.Since(start),
	}
	for _, p := range snap.Patients {
		result.Adherence += len(p.Adherence)
	}
	return snap, result
}

func (s *Seeder) appointments(snap store.Snapshot, today, now time.Time) []store.Appointment {
	slots := s.policy.SlotTimes()
	if len(slots) == 0 || s.config.AppointmentsPerPatient <= 0 {
		return []store.Appointment{}
	}

	type slotKey struct {
		clinician uuid.UUID
		date      string
		time      string
	}
	taken := make(map[slotKey]bool)
	out := []store.Appointment{}

	start := 0
	if s.config.IncludeDemo {
		start = 1 // the demo patient starts with an empty schedule
	}
	for _, p := range snap.Patients[start:] {
		for i := 0; i < s.config.AppointmentsPerPatient; i++ {
			c := snap.Clinicians[s.gen.rng.Intn(len(snap.Clinicians))]
			offset := s.gen.rng.Intn(29) - 14
			date := today.AddDate(0, 0, offset)
			a := store.Appointment{
				ID:          s.gen.id(),
				PatientID:   p.ID,
				ClinicianID: c.ID,
				Date:        date,
				Time:        slots[s.gen.rng.Intn(len(slots))],
				Reason:      s.gen.pick(visitReasons),
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			switch {
			case offset >= 0:
				a.Status = store.StatusScheduled
			case s.gen.rng.Intn(5) == 0:
				a.Status = store.StatusCancelled
			default:
				a.Status = store.StatusCompleted
				a.Notes = "Seen, no changes to plan."
			}

			if a.Status == store.StatusScheduled {
				k := slotKey{c.ID, date.Format(policy.DateLayout), a.Time}
				if taken[k] {
					continue
				}
				taken[k] = true
			}
			out = append(out, a)
		}
	}
	return out
}

// DemoRecords returns the clinic's fixed demo patient and clinicians.
func DemoRecords(now time.Time) (store.Patient, []store.Clinician) {
	dob := time.Date(1985, 6, 15, 0, 0, 0, 0, time.UTC)
	patient := store.Patient{
		ID:               uuid.MustParse("4f1c8e2a-6b0d-4a57-9a8e-1d2c3b4a5f60"),
		Name:             "John Smith",
		Email:            "patient@demo.com",
		Phone:            "+1234567890",
		DateOfBirth:      &dob,
		Gender:           "Male",
		Address:          "123 Main St, City, State 12345",
		EmergencyContact: "Jane Smith - +1234567891",
		Allergies:        []string{"Penicillin", "Shellfish"},
		Medications:      []string{"Lisinopril 10mg", "Metformin 500mg"},
		MedicalHistory:   []string{"Hypertension", "Type 2 Diabetes"},
		Lifestyle: store.Lifestyle{
			Alcohol:  true,
			Exercise: store.ExerciseModerate,
		},
		Summary:    "Patient with well-controlled hypertension and diabetes. Good medication adherence. Regular exercise routine recommended.",
		LabResults: []store.LabResult{},
		Adherence:  []store.AdherenceRecord{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	clinicians := []store.Clinician{
		{
			ID:             uuid.MustParse("8a3e5d71-2c4b-4f09-b6d1-7e9f0a1b2c3d"),
			Name:           "Dr. Sarah Johnson",
			Email:          "doctor@demo.com",
			Phone:          "+1234567892",
			Specialization: "Internal Medicine",
			CreatedAt:      now,
		},
		{
			ID:             uuid.MustParse("c5b7a9e3-1d2f-4e6a-8b0c-9d8e7f6a5b4c"),
			Name:           "Dr. Michael Chen",
			Email:          "doctor2@demo.com",
			Phone:          "+1234567893",
			Specialization: "Cardiology",
			CreatedAt:      now,
		},
	}
	return patient, clinicians
}

// ExportNDJSON writes one patient per line.
func ExportNDJSON(w io.Writer, patients []store.Patient) error {
	enc := json.NewEncoder(w)
	for i := range patients {
		if err := enc.Encode(&patients[i]); err != nil {
			return fmt.Errorf("encode patient %s: %w", patients[i].ID, err)
		}
	}
	return nil
}
