package registry

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/carecore/internal/domain/store"
	"github.com/clinic/carecore/internal/platform/blobstore"
	"github.com/clinic/carecore/internal/platform/docanalysis"
	"github.com/clinic/carecore/pkg/pagination"
)

var now = time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)

type togglePersister struct {
	fail atomic.Bool
}

func (p *togglePersister) Save(context.Context, store.Snapshot) error {
	if p.fail.Load() {
		return errors.New("disk full")
	}
	return nil
}

type fixture struct {
	svc       *Service
	st        *store.Store
	blobs     *blobstore.InMemoryStore
	persister *togglePersister
}

func newFixture(t *testing.T, summarizer docanalysis.Summarizer) *fixture {
	t.Helper()
	pers := &togglePersister{}
	st, err := store.New(store.WithClock(func() time.Time { return now }), store.WithPersister(pers))
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	blobs := blobstore.NewInMemoryStore()
	return &fixture{
		svc:       NewService(st, blobs, summarizer, nil, zerolog.Nop()),
		st:        st,
		blobs:     blobs,
		persister: pers,
	}
}

func (f *fixture) patient(t *testing.T, name, email string) store.Patient {
	t.Helper()
	p, err := f.svc.RegisterPatient(context.Background(), store.PatientInput{Name: name, Email: email})
	if err != nil {
		t.Fatalf("RegisterPatient: %v", err)
	}
	return p
}

func TestNarrative(t *testing.T) {
	p := store.Patient{
		MedicalHistory: []string{"Hypertension", "Type 2 Diabetes"},
		Allergies:      []string{"Penicillin"},
		Medications:    []string{"Lisinopril 10mg"},
		Lifestyle:      store.Lifestyle{Smoking: true, Alcohol: true, Exercise: store.ExerciseModerate},
	}
	want := "Patient has a history of Hypertension, Type 2 Diabetes. " +
		"Known allergies: Penicillin. " +
		"Current medications: Lisinopril 10mg. " +
		"Lifestyle factors include smoking and alcohol consumption. " +
		"Exercise level: moderate. " +
		"Regular monitoring and follow-up recommended."
	if got := Narrative(p); got != want {
		t.Errorf("Narrative mismatch\n got: %s\nwant: %s", got, want)
	}
}

func TestNarrative_Minimal(t *testing.T) {
	want := "Exercise level: none. Regular monitoring and follow-up recommended."
	if got := Narrative(store.Patient{}); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestSubmitIntake(t *testing.T) {
	f := newFixture(t, nil)
	p := f.patient(t, "John Smith", "patient@demo.com")

	got, err := f.svc.SubmitIntake(context.Background(), p.ID, Intake{
		MedicalHistory: []string{"Asthma", "Asthma"},
		Medications:    []string{"Albuterol"},
		Lifestyle:      store.Lifestyle{Alcohol: true, Exercise: store.ExerciseLight},
	})
	if err != nil {
		t.Fatalf("SubmitIntake: %v", err)
	}
	if len(got.MedicalHistory) != 1 {
		t.Errorf("expected deduplicated history, got %v", got.MedicalHistory)
	}
	want := "Patient has a history of Asthma. Current medications: Albuterol. " +
		"Lifestyle factors include alcohol consumption. Exercise level: light. " +
		"Regular monitoring and follow-up recommended."
	if got.Summary != want {
		t.Errorf("summary\n got: %s\nwant: %s", got.Summary, want)
	}

	stored, _ := f.svc.GetPatient(context.Background(), p.ID)
	if stored.Summary != want {
		t.Error("expected summary to be persisted")
	}
}

func TestSubmitIntake_Errors(t *testing.T) {
	f := newFixture(t, nil)
	p := f.patient(t, "John Smith", "")

	_, err := f.svc.SubmitIntake(context.Background(), uuid.New(), Intake{})
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	_, err = f.svc.SubmitIntake(context.Background(), p.ID, Intake{Lifestyle: store.Lifestyle{Exercise: "Extreme"}})
	if !errors.Is(err, store.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
	stored, _ := f.svc.GetPatient(context.Background(), p.ID)
	if stored.Summary != "" {
		t.Error("rejected intake must not write a summary")
	}
}

func TestSearchPatients(t *testing.T) {
	f := newFixture(t, nil)
	f.patient(t, "John Smith", "patient@demo.com")
	f.patient(t, "Mary Jones", "mary@example.com")
	f.patient(t, "Johnny Cash", "")

	all := pagination.Params{Limit: 10}
	tests := []struct {
		term string
		want int
	}{
		{"john", 2},
		{"DEMO.COM", 1},
		{"  mary ", 1},
		{"nobody", 0},
		{"", 3},
	}
	for _, tt := range tests {
		page := f.svc.SearchPatients(context.Background(), tt.term, FilterAll, all)
		if page.Total != tt.want || len(page.Items) != tt.want {
			t.Errorf("term %q: expected %d hits, got total=%d items=%d", tt.term, tt.want, page.Total, len(page.Items))
		}
	}
}

func TestSearchPatients_Filter(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	for _, in := range []store.PatientInput{
		{Name: "John Smith", MedicalHistory: []string{"Hypertension"}, Medications: []string{"Lisinopril 10mg"}},
		{Name: "Mary Jones", Allergies: []string{"Penicillin"}},
		{Name: "Johnny Cash", MedicalHistory: []string{"Asthma"}, Allergies: []string{"Peanuts"}},
		{Name: "Ana Ruiz"},
	} {
		if _, err := f.svc.RegisterPatient(ctx, in); err != nil {
			t.Fatalf("RegisterPatient: %v", err)
		}
	}

	all := pagination.Params{Limit: 10}
	tests := []struct {
		term   string
		filter PatientFilter
		want   []string
	}{
		{"", FilterWithConditions, []string{"John Smith", "Johnny Cash"}},
		{"", FilterOnMedications, []string{"John Smith"}},
		{"", FilterWithAllergies, []string{"Mary Jones", "Johnny Cash"}},
		{"john", FilterWithAllergies, []string{"Johnny Cash"}},
		{"ana", FilterWithConditions, nil},
		{"", FilterAll, []string{"John Smith", "Mary Jones", "Johnny Cash", "Ana Ruiz"}},
	}
	for _, tt := range tests {
		page := f.svc.SearchPatients(ctx, tt.term, tt.filter, all)
		var names []string
		for _, p := range page.Items {
			names = append(names, p.Name)
		}
		if page.Total != len(tt.want) || strings.Join(names, ",") != strings.Join(tt.want, ",") {
			t.Errorf("term %q filter %q: expected %v, got %v (total %d)", tt.term, tt.filter, tt.want, names, page.Total)
		}
	}
}

func TestParsePatientFilter(t *testing.T) {
	for in, want := range map[string]PatientFilter{
		"":                 FilterAll,
		"all":              FilterAll,
		" On-Medications ": FilterOnMedications,
		"with-allergies":   FilterWithAllergies,
		"with-conditions":  FilterWithConditions,
	} {
		got, err := ParsePatientFilter(in)
		if err != nil || got != want {
			t.Errorf("ParsePatientFilter(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParsePatientFilter("smokers"); !errors.Is(err, store.ErrValidation) {
		t.Errorf("expected ErrValidation for unknown filter, got %v", err)
	}
}

func TestListPatients_Paginates(t *testing.T) {
	f := newFixture(t, nil)
	for _, n := range []string{"A", "B", "C", "D", "E"} {
		f.patient(t, n, "")
	}
	page := f.svc.ListPatients(context.Background(), pagination.Params{Limit: 2, Offset: 2})
	if page.Total != 5 {
		t.Errorf("expected total 5, got %d", page.Total)
	}
	if len(page.Items) != 2 || page.Items[0].Name != "C" || page.Items[1].Name != "D" {
		t.Errorf("unexpected page %+v", page.Items)
	}
}

func TestUploadLab(t *testing.T) {
	f := newFixture(t, nil)
	p := f.patient(t, "John Smith", "")
	ctx := context.Background()

	res, err := f.svc.UploadLab(ctx, p.ID, "cbc.txt", []byte("WBC 6.1 RBC 4.8"))
	if err != nil {
		t.Fatalf("UploadLab: %v", err)
	}
	if res.ImageRef == "" || res.Summary == "" || res.FileName != "cbc.txt" {
		t.Errorf("unexpected lab result %+v", res)
	}
	if !res.UploadedAt.Equal(now) {
		t.Errorf("expected upload time %v, got %v", now, res.UploadedAt)
	}

	rc, meta, err := f.blobs.Download(ctx, res.ImageRef)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	rc.Close()
	if meta.PatientID != p.ID.String() {
		t.Errorf("expected blob owned by %s, got %s", p.ID, meta.PatientID)
	}

	labs, err := f.svc.LabResults(ctx, p.ID)
	if err != nil {
		t.Fatalf("LabResults: %v", err)
	}
	if len(labs) != 1 || labs[0].ID != res.ID {
		t.Errorf("expected the uploaded result, got %+v", labs)
	}
}

func TestUploadLab_UnknownPatientStoresNothing(t *testing.T) {
	f := newFixture(t, nil)
	id := uuid.New()
	_, err := f.svc.UploadLab(context.Background(), id, "cbc.txt", []byte("data"))
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	blobs, _ := f.blobs.ListByPatient(context.Background(), id.String())
	if len(blobs) != 0 {
		t.Errorf("expected no blobs, got %d", len(blobs))
	}
}

func TestUploadLab_RejectsBadFiles(t *testing.T) {
	f := newFixture(t, nil)
	p := f.patient(t, "John Smith", "")

	tests := []struct {
		name     string
		fileName string
		content  []byte
	}{
		{"blank name", " ", []byte("x")},
		{"empty", "a.txt", nil},
		{"zip archive", "a.zip", []byte("PK\x03\x04\x14\x00\x00\x00\x08\x00")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.UploadLab(context.Background(), p.ID, tt.fileName, tt.content)
			if !errors.Is(err, store.ErrValidation) {
				t.Errorf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestUploadLab_SummarizerFailureDiscardsBlob(t *testing.T) {
	f := newFixture(t, docanalysis.SummarizerFunc(func(context.Context, string, []byte) (string, error) {
		return "", errors.New("analysis service unavailable")
	}))
	p := f.patient(t, "John Smith", "")

	if _, err := f.svc.UploadLab(context.Background(), p.ID, "cbc.txt", []byte("data")); err == nil {
		t.Fatal("expected error")
	}
	blobs, _ := f.blobs.ListByPatient(context.Background(), p.ID.String())
	if len(blobs) != 0 {
		t.Errorf("expected blob to be discarded, got %d", len(blobs))
	}
	labs, _ := f.svc.LabResults(context.Background(), p.ID)
	if len(labs) != 0 {
		t.Errorf("expected no lab results, got %d", len(labs))
	}
}

func TestUploadLab_RecordFailureDiscardsBlob(t *testing.T) {
	f := newFixture(t, nil)
	p := f.patient(t, "John Smith", "")
	f.persister.fail.Store(true)

	if _, err := f.svc.UploadLab(context.Background(), p.ID, "cbc.txt", []byte("data")); err == nil {
		t.Fatal("expected error")
	}
	blobs, _ := f.blobs.ListByPatient(context.Background(), p.ID.String())
	if len(blobs) != 0 {
		t.Errorf("expected blob to be discarded, got %d", len(blobs))
	}
}

func TestClinicians(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	c, err := f.svc.CreateClinician(ctx, store.ClinicianInput{Name: "Dr. Sarah Johnson", Specialization: "Internal Medicine"})
	if err != nil {
		t.Fatalf("CreateClinician: %v", err)
	}
	got, err := f.svc.GetClinician(ctx, c.ID)
	if err != nil || got.Name != "Dr. Sarah Johnson" {
		t.Errorf("GetClinician: %+v, %v", got, err)
	}
	if _, err := f.svc.CreateClinician(ctx, store.ClinicianInput{Name: "Dr. Nobody"}); !errors.Is(err, store.ErrValidation) {
		t.Errorf("expected ErrValidation without specialization, got %v", err)
	}
	if n := len(f.svc.ListClinicians(ctx)); n != 1 {
		t.Errorf("expected 1 clinician, got %d", n)
	}
	if _, err := f.svc.GetClinician(ctx, uuid.New()); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
