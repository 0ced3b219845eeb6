// Package registry manages patient and clinician records: registration,
// intake questionnaires, search, and lab document uploads.
package registry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/carecore/internal/domain/store"
	"github.com/clinic/carecore/internal/platform/auth"
	"github.com/clinic/carecore/internal/platform/blobstore"
	"github.com/clinic/carecore/internal/platform/docanalysis"
	"github.com/clinic/carecore/internal/platform/telemetry"
	"github.com/clinic/carecore/pkg/pagination"
)

type Service struct {
	store      *store.Store
	blobs      blobstore.Store
	summarizer docanalysis.Summarizer
	metrics    *telemetry.Provider
	logger     zerolog.Logger
}

func NewService(st *store.Store, blobs blobstore.Store, summarizer docanalysis.Summarizer, metrics *telemetry.Provider, logger zerolog.Logger) *Service {
	if summarizer == nil {
		summarizer = docanalysis.NewCanned()
	}
	return &Service{
		store:      st,
		blobs:      blobs,
		summarizer: summarizer,
		metrics:    metrics,
		logger:     logger.With().Str("component", "registry").Logger(),
	}
}

// -- Patients --

func (s *Service) RegisterPatient(ctx context.Context, in store.PatientInput) (store.Patient, error) {
	p, err := s.store.CreatePatient(ctx, in)
	if err != nil {
		return store.Patient{}, err
	}
	s.logger.Info().
		Str("actor", auth.UserFromContext(ctx).ID).
		Str("patient_id", p.ID.String()).
		Msg("patient registered")
	return p, nil
}

func (s *Service) GetPatient(_ context.Context, id uuid.UUID) (store.Patient, error) {
	return s.store.Patient(id)
}

// ListPatients returns one page of patients in registration order.
func (s *Service) ListPatients(_ context.Context, p pagination.Params) PatientPage {
	all := s.store.Patients()
	return pagination.Paginate(all, p)
}

// SearchPatients matches term against name and email, case-insensitively,
// and keeps only patients in the filter's group. A blank term and FilterAll
// match everyone.
func (s *Service) SearchPatients(_ context.Context, term string, filter PatientFilter, p pagination.Params) PatientPage {
	term = strings.ToLower(strings.TrimSpace(term))
	all := s.store.Patients()
	if term == "" && filter == FilterAll {
		return pagination.Paginate(all, p)
	}
	hits := make([]store.Patient, 0)
	for i := range all {
		if filter.keep(&all[i]) && (term == "" || matches(&all[i], term)) {
			hits = append(hits, all[i])
		}
	}
	return pagination.Paginate(hits, p)
}

func (s *Service) UpdatePatient(ctx context.Context, id uuid.UUID, upd store.PatientUpdate) (store.Patient, error) {
	p, err := s.store.UpdatePatient(ctx, id, upd)
	if err != nil {
		return store.Patient{}, err
	}
	s.logger.Info().
		Str("actor", auth.UserFromContext(ctx).ID).
		Str("patient_id", id.String()).
		Msg("patient updated")
	return p, nil
}

// SubmitIntake merges the questionnaire into the patient and regenerates
// the narrative summary from the merged record. Both writes commit
// together.
func (s *Service) SubmitIntake(ctx context.Context, id uuid.UUID, in Intake) (store.Patient, error) {
	var out store.Patient
	err := s.store.Update(ctx, func(tx *store.Tx) error {
		lifestyle := in.Lifestyle
		merged, err := tx.UpdatePatient(id, store.PatientUpdate{
			MedicalHistory: in.MedicalHistory,
			Allergies:      in.Allergies,
			Medications:    in.Medications,
			Lifestyle:      &lifestyle,
		})
		if err != nil {
			return err
		}
		summary := Narrative(merged)
		out, err = tx.UpdatePatient(id, store.PatientUpdate{Summary: &summary})
		return err
	})
	if err != nil {
		return store.Patient{}, err
	}
	s.logger.Info().
		Str("actor", auth.UserFromContext(ctx).ID).
		Str("patient_id", id.String()).
		Int("medications", len(out.Medications)).
		Msg("intake submitted")
	return out, nil
}

// UploadLab stores the document, asks the summarizer for a narrative and
// appends the lab result. The blob is removed again if the result cannot be
// recorded.
func (s *Service) UploadLab(ctx context.Context, patientID uuid.UUID, fileName string, content []byte) (store.LabResult, error) {
	if strings.TrimSpace(fileName) == "" {
		return store.LabResult{}, store.Validationf("file_name is required")
	}
	if _, err := s.store.Patient(patientID); err != nil {
		return store.LabResult{}, err
	}

	meta, err := s.blobs.Upload(ctx, blobstore.Metadata{
		FileName:  fileName,
		PatientID: patientID.String(),
		CreatedBy: auth.UserFromContext(ctx).ID,
	}, bytes.NewReader(content))
	if err != nil {
		if errors.Is(err, blobstore.ErrFileTooLarge) || errors.Is(err, blobstore.ErrInvalidContentType) ||
			errors.Is(err, blobstore.ErrEmptyFile) || errors.Is(err, blobstore.ErrMissingFileName) {
			return store.LabResult{}, store.Validationf("%v", err)
		}
		return store.LabResult{}, fmt.Errorf("storing lab file: %w", err)
	}

	summary, err := s.summarizer.Summarize(ctx, fileName, content)
	if err != nil {
		s.discardBlob(meta.ID)
		return store.LabResult{}, fmt.Errorf("summarizing lab file: %w", err)
	}

	res, err := s.store.RecordLabResult(ctx, patientID, store.LabResult{
		FileName: fileName,
		Summary:  summary,
		ImageRef: meta.ID,
	})
	if err != nil {
		s.discardBlob(meta.ID)
		return store.LabResult{}, err
	}

	s.metrics.RecordLabUpload()
	s.logger.Info().
		Str("actor", auth.UserFromContext(ctx).ID).
		Str("patient_id", patientID.String()).
		Str("lab_result_id", res.ID.String()).
		Str("content_type", meta.ContentType).
		Int64("size", meta.Size).
		Msg("lab result uploaded")
	return res, nil
}

func (s *Service) discardBlob(id string) {
	if err := s.blobs.Delete(context.Background(), id); err != nil {
		s.logger.Error().Err(err).Str("blob_id", id).Msg("failed to discard lab file")
	}
}

// LabResults returns the patient's lab results in upload order.
func (s *Service) LabResults(_ context.Context, patientID uuid.UUID) ([]store.LabResult, error) {
	p, err := s.store.Patient(patientID)
	if err != nil {
		return nil, err
	}
	return p.LabResults, nil
}

// -- Clinicians --

func (s *Service) CreateClinician(ctx context.Context, in store.ClinicianInput) (store.Clinician, error) {
	c, err := s.store.CreateClinician(ctx, in)
	if err != nil {
		return store.Clinician{}, err
	}
	s.logger.Info().
		Str("actor", auth.UserFromContext(ctx).ID).
		Str("clinician_id", c.ID.String()).
		Str("specialization", c.Specialization).
		Msg("clinician registered")
	return c, nil
}

func (s *Service) GetClinician(_ context.Context, id uuid.UUID) (store.Clinician, error) {
	return s.store.Clinician(id)
}

func (s *Service) ListClinicians(_ context.Context) []store.Clinician {
	return s.store.Clinicians()
}
