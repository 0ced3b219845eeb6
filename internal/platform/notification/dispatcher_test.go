package notification

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinic/carecore/internal/domain/policy"
	"github.com/clinic/carecore/internal/domain/store"
)

var dispatchNow = time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)

type careFixture struct {
	st         *store.Store
	sender     *recordingSender
	mgr        *Manager
	dispatcher *Dispatcher
	patient    store.Patient
	noContact  store.Patient
	clinician  store.Clinician
}

func newCareFixture(t *testing.T) *careFixture {
	t.Helper()
	st, err := store.New(store.WithClock(func() time.Time { return dispatchNow }))
	require.NoError(t, err)
	ctx := context.Background()

	p, err := st.CreatePatient(ctx, store.PatientInput{
		Name:        "John Smith",
		Email:       "patient@demo.com",
		Medications: []string{"Lisinopril 10mg", "Metformin 500mg"},
	})
	require.NoError(t, err)
	quiet, err := st.CreatePatient(ctx, store.PatientInput{Name: "No Contact", Medications: []string{"Aspirin 81mg"}})
	require.NoError(t, err)
	c, err := st.CreateClinician(ctx, store.ClinicianInput{Name: "Dr. Sarah Johnson", Specialization: "Internal Medicine"})
	require.NoError(t, err)

	sender := &recordingSender{}
	mgr := newManager(sender)
	return &careFixture{
		st: st, sender: sender, mgr: mgr,
		dispatcher: NewDispatcher(mgr, st, zerolog.Nop()),
		patient:    p, noContact: quiet, clinician: c,
	}
}

func (f *careFixture) insert(t *testing.T, patientID uuid.UUID, date time.Time, hhmm string) store.Appointment {
	t.Helper()
	var out store.Appointment
	err := f.st.Update(context.Background(), func(tx *store.Tx) error {
		var err error
		out, err = tx.InsertAppointment(store.Appointment{
			PatientID: patientID, ClinicianID: f.clinician.ID,
			Date: date, Time: hhmm, Status: store.StatusScheduled,
		})
		return err
	})
	require.NoError(t, err)
	return out
}

func TestDispatcher_AppointmentBooked(t *testing.T) {
	f := newCareFixture(t)
	a := f.insert(t, f.patient.ID, time.Date(2025, 1, 14, 0, 0, 0, 0, time.UTC), "09:00")

	require.NoError(t, f.dispatcher.AppointmentBooked(context.Background(), a))
	calls := f.sender.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, TypeEmail, calls[0].Channel)
	assert.Equal(t, "patient@demo.com", calls[0].To)
	assert.Equal(t, "Appointment confirmed for 2025-01-14", calls[0].Subject)
	assert.Contains(t, calls[0].Body, "Dr. Sarah Johnson")
	assert.Contains(t, calls[0].Body, "09:00")

	list := f.mgr.List(context.Background(), "", f.patient.ID.String(), 0)
	require.Len(t, list, 1)
	assert.Equal(t, TemplateAppointmentBooked, list[0].TemplateID)
}

func TestDispatcher_NoContactSkips(t *testing.T) {
	f := newCareFixture(t)
	a := f.insert(t, f.noContact.ID, time.Date(2025, 1, 14, 0, 0, 0, 0, time.UTC), "10:00")

	require.NoError(t, f.dispatcher.AppointmentCancelled(context.Background(), a))
	assert.Empty(t, f.sender.Calls())

	_, err := f.dispatcher.MedicationReminders(context.Background(), f.noContact.ID, dispatchNow)
	assert.True(t, errors.Is(err, store.ErrValidation))
}

func TestDispatcher_MedicationReminders(t *testing.T) {
	f := newCareFixture(t)
	today := policy.Date(dispatchNow)
	err := f.st.Update(context.Background(), func(tx *store.Tx) error {
		_, _, err := tx.UpsertAdherence(f.patient.ID, "Lisinopril 10mg", today, true)
		return err
	})
	require.NoError(t, err)

	sent, err := f.dispatcher.MedicationReminders(context.Background(), f.patient.ID, today)
	require.NoError(t, err)
	require.Len(t, sent, 1)
	assert.Equal(t, "Medication reminder: Metformin 500mg", sent[0].Subject)

	_, err = f.dispatcher.MedicationReminders(context.Background(), uuid.New(), today)
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestDispatcher_AppointmentReminders(t *testing.T) {
	f := newCareFixture(t)
	tomorrow := time.Date(2025, 1, 11, 0, 0, 0, 0, time.UTC)
	f.insert(t, f.patient.ID, tomorrow, "09:00")
	f.insert(t, f.noContact.ID, tomorrow, "09:30")
	f.insert(t, f.patient.ID, time.Date(2025, 1, 12, 0, 0, 0, 0, time.UTC), "09:00")

	sent := f.dispatcher.AppointmentReminders(context.Background(), tomorrow)
	require.Len(t, sent, 1)
	assert.Equal(t, TemplateAppointmentReminder, sent[0].TemplateID)
	assert.Equal(t, "patient@demo.com", sent[0].Recipient)
}

func TestPendingMedications(t *testing.T) {
	day := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	p := store.Patient{
		Medications: []string{"A", "B", "C"},
		Adherence: []store.AdherenceRecord{
			{Medication: "A", Date: day, Taken: true},
			{Medication: "B", Date: day, Taken: false},
			{Medication: "C", Date: day.AddDate(0, 0, -1), Taken: true},
		},
	}
	assert.Equal(t, []string{"B", "C"}, PendingMedications(p, day))
}

func TestHandler_Routes(t *testing.T) {
	f := newCareFixture(t)
	f.insert(t, f.patient.ID, time.Date(2025, 1, 11, 0, 0, 0, 0, time.UTC), "09:00")

	e := echo.New()
	NewHandler(f.mgr, f.dispatcher, policy.Default(), func() time.Time { return dispatchNow }).RegisterRoutes(e.Group("/api/v1"))

	serve := func(method, path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
		return rec
	}

	rec := serve(http.MethodPost, "/api/v1/patients/"+f.patient.ID.String()+"/reminders")
	require.Equal(t, http.StatusOK, rec.Code)
	var meds []Notification
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &meds))
	assert.Len(t, meds, 2)

	rec = serve(http.MethodPost, "/api/v1/appointments/reminders")
	require.Equal(t, http.StatusOK, rec.Code)
	var appts []Notification
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &appts))
	assert.Len(t, appts, 1)

	rec = serve(http.MethodGet, "/api/v1/notifications?patient_id="+f.patient.ID.String())
	require.Equal(t, http.StatusOK, rec.Code)
	var all []Notification
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	assert.Len(t, all, 3)

	rec = serve(http.MethodGet, "/api/v1/notifications/"+all[0].ID)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(http.MethodPost, "/api/v1/notifications/"+all[0].ID+"/retry")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = serve(http.MethodGet, "/api/v1/notifications/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `"sent":3`))

	tests := []struct {
		method, path string
		want         int
	}{
		{http.MethodGet, "/api/v1/notifications/missing", http.StatusNotFound},
		{http.MethodPost, "/api/v1/notifications/missing/retry", http.StatusNotFound},
		{http.MethodGet, "/api/v1/notifications?limit=0", http.StatusBadRequest},
		{http.MethodPost, "/api/v1/patients/not-a-uuid/reminders", http.StatusBadRequest},
		{http.MethodPost, "/api/v1/patients/" + uuid.New().String() + "/reminders", http.StatusNotFound},
		{http.MethodPost, "/api/v1/appointments/reminders?date=11-01-2025", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, serve(tt.method, tt.path).Code)
		})
	}
}
