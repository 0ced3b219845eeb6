package store

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinic/carecore/internal/domain/policy"
)

// Tx is a write transaction. It is only valid inside the Update callback
// that received it.
type Tx struct {
	st    *state
	now   time.Time
	today time.Time
	dirty bool
	// owned marks entities already copied into this transaction's fork.
	owned map[uuid.UUID]bool
}

type adherenceKey struct {
	medication string
	date       string
}

// Now is the instant the transaction started.
func (tx *Tx) Now() time.Time { return tx.now }

// Today is the calendar date the transaction started on.
func (tx *Tx) Today() time.Time { return tx.today }

func (tx *Tx) patientForWrite(id uuid.UUID) (*Patient, error) {
	p, ok := tx.st.patients[id]
	if !ok {
		return nil, NotFoundf("patient %s not found", id)
	}
	if !tx.owned[id] {
		cp := clonePatient(p)
		p = &cp
		tx.st.patients[id] = p
		tx.owned[id] = true
	}
	return p, nil
}

// Patient returns a copy of a patient as seen by this transaction.
func (tx *Tx) Patient(id uuid.UUID) (Patient, error) {
	p, ok := tx.st.patients[id]
	if !ok {
		return Patient{}, NotFoundf("patient %s not found", id)
	}
	return clonePatient(p), nil
}

// Clinician returns a copy of a clinician as seen by this transaction.
func (tx *Tx) Clinician(id uuid.UUID) (Clinician, error) {
	c, ok := tx.st.clinicians[id]
	if !ok {
		return Clinician{}, NotFoundf("clinician %s not found", id)
	}
	return cloneClinician(c), nil
}

// Appointment returns a copy of an appointment as seen by this transaction.
func (tx *Tx) Appointment(id uuid.UUID) (Appointment, error) {
	a, ok := tx.st.appointments[id]
	if !ok {
		return Appointment{}, NotFoundf("appointment %s not found", id)
	}
	return cloneAppointment(a), nil
}

// ScheduledAt returns the scheduled appointment occupying the clinician's
// slot, if any.
func (tx *Tx) ScheduledAt(clinicianID uuid.UUID, date time.Time, hhmm string) (Appointment, bool) {
	id, ok := tx.st.scheduled[slotKey{clinician: clinicianID, date: dateKey(date), time: hhmm}]
	if !ok {
		return Appointment{}, false
	}
	return cloneAppointment(tx.st.appointments[id]), true
}

// CreatePatient validates and inserts a new patient.
func (tx *Tx) CreatePatient(in PatientInput) (Patient, error) {
	dob, err := parseDateOfBirth(in.DateOfBirth, tx.today)
	if err != nil {
		return Patient{}, err
	}
	p := &Patient{
		ID:               uuid.New(),
		Name:             strings.TrimSpace(in.Name),
		Email:            strings.TrimSpace(in.Email),
		Phone:            strings.TrimSpace(in.Phone),
		DateOfBirth:      dob,
		Gender:           in.Gender,
		Address:          in.Address,
		EmergencyContact: in.EmergencyContact,
		MedicalHistory:   in.MedicalHistory,
		Medications:      in.Medications,
		Allergies:        in.Allergies,
		Lifestyle:        in.Lifestyle,
		Summary:          in.Summary,
		LabResults:       []LabResult{},
		Adherence:        []AdherenceRecord{},
		CreatedAt:        tx.now,
		UpdatedAt:        tx.now,
	}
	if err := validatePatient(p, tx.today); err != nil {
		return Patient{}, err
	}
	tx.st.patients[p.ID] = p
	tx.st.patientOrder = append(tx.st.patientOrder, p.ID)
	tx.owned[p.ID] = true
	tx.dirty = true
	return clonePatient(p), nil
}

// UpdatePatient merges upd into the patient. The merged record is validated
// as a whole; on failure the patient is left untouched.
func (tx *Tx) UpdatePatient(id uuid.UUID, upd PatientUpdate) (Patient, error) {
	cur, ok := tx.st.patients[id]
	if !ok {
		return Patient{}, NotFoundf("patient %s not found", id)
	}
	merged := clonePatient(cur)
	if upd.Name != nil {
		merged.Name = strings.TrimSpace(*upd.Name)
	}
	if upd.Email != nil {
		merged.Email = strings.TrimSpace(*upd.Email)
	}
	if upd.Phone != nil {
		merged.Phone = strings.TrimSpace(*upd.Phone)
	}
	if upd.DateOfBirth != nil {
		dob, err := parseDateOfBirth(*upd.DateOfBirth, tx.today)
		if err != nil {
			return Patient{}, err
		}
		merged.DateOfBirth = dob
	}
	if upd.Gender != nil {
		merged.Gender = *upd.Gender
	}
	if upd.Address != nil {
		merged.Address = *upd.Address
	}
	if upd.EmergencyContact != nil {
		merged.EmergencyContact = *upd.EmergencyContact
	}
	if upd.MedicalHistory != nil {
		merged.MedicalHistory = cloneStrings(upd.MedicalHistory)
	}
	if upd.Medications != nil {
		merged.Medications = cloneStrings(upd.Medications)
	}
	if upd.Allergies != nil {
		merged.Allergies = cloneStrings(upd.Allergies)
	}
	if upd.Lifestyle != nil {
		merged.Lifestyle = *upd.Lifestyle
	}
	if upd.Summary != nil {
		merged.Summary = *upd.Summary
	}
	if err := validatePatient(&merged, tx.today); err != nil {
		return Patient{}, err
	}
	merged.UpdatedAt = tx.now

	tx.st.patients[id] = &merged
	tx.owned[id] = true
	tx.dirty = true
	return clonePatient(&merged), nil
}

// AppendLabResult adds a lab result to the patient. Lab results are never
// modified afterwards.
func (tx *Tx) AppendLabResult(patientID uuid.UUID, r LabResult) (LabResult, error) {
	if strings.TrimSpace(r.FileName) == "" {
		return LabResult{}, Validationf("file_name is required")
	}
	p, err := tx.patientForWrite(patientID)
	if err != nil {
		return LabResult{}, err
	}
	r.ID = uuid.New()
	r.PatientID = patientID
	if r.UploadedAt.IsZero() {
		r.UploadedAt = tx.now
	}
	p.LabResults = append(p.LabResults, r)
	p.UpdatedAt = tx.now
	tx.dirty = true
	return r, nil
}

// UpsertAdherence writes the single record for (patient, medication, date),
// overwriting the taken flag in place when one already exists. The
// medication must be on the patient's active list. created reports whether
// a new record was inserted.
func (tx *Tx) UpsertAdherence(patientID uuid.UUID, medication string, date time.Time, taken bool) (rec AdherenceRecord, created bool, err error) {
	cur, ok := tx.st.patients[patientID]
	if !ok {
		return AdherenceRecord{}, false, NotFoundf("patient %s not found", patientID)
	}
	if !cur.HasMedication(medication) {
		return AdherenceRecord{}, false, Validationf("medication %q is not on the active list of patient %s", medication, patientID)
	}
	p, err := tx.patientForWrite(patientID)
	if err != nil {
		return AdherenceRecord{}, false, err
	}

	date = policy.Date(date)
	want := dateKey(date)
	for i := range p.Adherence {
		r := &p.Adherence[i]
		if r.Medication == medication && dateKey(r.Date) == want {
			r.Taken = taken
			r.Snoozed = false
			r.RecordedAt = tx.now
			p.UpdatedAt = tx.now
			tx.dirty = true
			return *r, false, nil
		}
	}

	r := AdherenceRecord{
		ID:         uuid.New(),
		PatientID:  patientID,
		Medication: medication,
		Date:       date,
		Taken:      taken,
		RecordedAt: tx.now,
	}
	p.Adherence = append(p.Adherence, r)
	p.UpdatedAt = tx.now
	tx.dirty = true
	return r, true, nil
}

// CreateClinician validates and inserts a new clinician.
func (tx *Tx) CreateClinician(in ClinicianInput) (Clinician, error) {
	c := &Clinician{
		ID:             uuid.New(),
		Name:           strings.TrimSpace(in.Name),
		Email:          strings.TrimSpace(in.Email),
		Phone:          strings.TrimSpace(in.Phone),
		Specialization: strings.TrimSpace(in.Specialization),
		CreatedAt:      tx.now,
	}
	if err := validateClinician(c); err != nil {
		return Clinician{}, err
	}
	tx.st.clinicians[c.ID] = c
	tx.st.clinicianOrder = append(tx.st.clinicianOrder, c.ID)
	tx.dirty = true
	return *c, nil
}

// InsertAppointment stores a new scheduled appointment. The slot check and
// the insert happen under the same transaction, so two callers can never
// both claim one slot.
func (tx *Tx) InsertAppointment(a Appointment) (Appointment, error) {
	if _, ok := tx.st.patients[a.PatientID]; !ok {
		return Appointment{}, NotFoundf("patient %s not found", a.PatientID)
	}
	if _, ok := tx.st.clinicians[a.ClinicianID]; !ok {
		return Appointment{}, NotFoundf("clinician %s not found", a.ClinicianID)
	}
	a.Date = policy.Date(a.Date)
	if err := checkAppointmentWrite(nil, &a); err != nil {
		return Appointment{}, err
	}
	k := keyOf(&a)
	if other, taken := tx.st.scheduled[k]; taken {
		return Appointment{}, Conflictf("clinician %s already has appointment %s at %s %s", a.ClinicianID, other, k.date, a.Time)
	}

	a.ID = uuid.New()
	a.CreatedAt = tx.now
	a.UpdatedAt = tx.now
	stored := a
	tx.st.appointments[a.ID] = &stored
	tx.st.appointmentOrder = append(tx.st.appointmentOrder, a.ID)
	tx.st.scheduled[k] = a.ID
	tx.dirty = true
	return a, nil
}

// ReplaceAppointment writes a new version of an existing appointment. It
// rejects edits to terminal appointments (notes on a completed one
// excepted) and releases the slot once the appointment leaves scheduled.
func (tx *Tx) ReplaceAppointment(a Appointment) (Appointment, error) {
	prev, ok := tx.st.appointments[a.ID]
	if !ok {
		return Appointment{}, NotFoundf("appointment %s not found", a.ID)
	}
	a.Date = policy.Date(a.Date)
	if err := checkAppointmentWrite(prev, &a); err != nil {
		return Appointment{}, err
	}

	oldKey, newKey := keyOf(prev), keyOf(&a)
	if a.Status == StatusScheduled {
		if holder, taken := tx.st.scheduled[newKey]; taken && holder != a.ID {
			return Appointment{}, Conflictf("clinician %s already has appointment %s at %s %s", a.ClinicianID, holder, newKey.date, a.Time)
		}
	}
	if prev.Status == StatusScheduled && tx.st.scheduled[oldKey] == a.ID {
		delete(tx.st.scheduled, oldKey)
	}
	if a.Status == StatusScheduled {
		tx.st.scheduled[newKey] = a.ID
	}

	a.CreatedAt = prev.CreatedAt
	a.UpdatedAt = tx.now
	stored := a
	tx.st.appointments[a.ID] = &stored
	tx.dirty = true
	return a, nil
}
