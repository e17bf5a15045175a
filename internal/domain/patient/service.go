package patient

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/comitetoraxvm/comite-torax/internal/platform/audit"
	"github.com/comitetoraxvm/comite-torax/internal/platform/errs"
)

type Service struct {
	repo Repository
	log  *audit.Log
}

func NewService(repo Repository, log *audit.Log) *Service {
	return &Service{repo: repo, log: log}
}

func (s *Service) Create(ctx context.Context, p *Patient) error {
	if strings.TrimSpace(p.FullName) == "" {
		return errs.Validationf("full_name is required")
	}
	return s.repo.Create(ctx, p)
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	return s.repo.List(ctx, limit, offset)
}

// Delete removes the patient and all owned sub-entities, and records the
// deletion in the audit trail.
func (s *Service) Delete(ctx context.Context, id uuid.UUID, actor string) error {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	if _, err := s.log.Append(ctx, actor, audit.ActionPatientDeleted, "patient/"+id.String(), p.FullName); err != nil {
		return err
	}
	return nil
}

func (s *Service) AddConsultation(ctx context.Context, c *Consultation) error {
	if _, err := s.repo.GetByID(ctx, c.PatientID); err != nil {
		return err
	}
	return s.repo.CreateConsultation(ctx, c)
}

func (s *Service) GetConsultation(ctx context.Context, id uuid.UUID) (*Consultation, error) {
	return s.repo.GetConsultation(ctx, id)
}

func (s *Service) AddStudy(ctx context.Context, st *Study) error {
	if _, err := s.repo.GetByID(ctx, st.PatientID); err != nil {
		return err
	}
	if st.ConsultationID != nil {
		c, err := s.repo.GetConsultation(ctx, *st.ConsultationID)
		if err != nil {
			return err
		}
		if c.PatientID != st.PatientID {
			return errs.NotFoundf("consultation does not belong to patient")
		}
	}
	return s.repo.CreateStudy(ctx, st)
}

func (s *Service) GetStudy(ctx context.Context, id uuid.UUID) (*Study, error) {
	return s.repo.GetStudy(ctx, id)
}

func (s *Service) AddScreening(ctx context.Context, sc *Screening) error {
	if _, err := s.repo.GetByID(ctx, sc.PatientID); err != nil {
		return err
	}
	return s.repo.CreateScreening(ctx, sc)
}

func (s *Service) GetScreening(ctx context.Context, id uuid.UUID) (*Screening, error) {
	return s.repo.GetScreening(ctx, id)
}
