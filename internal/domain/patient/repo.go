package patient

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	List(ctx context.Context, limit, offset int) ([]*Patient, int, error)
	// Delete removes the patient and, by cascade, every owned sub-entity.
	Delete(ctx context.Context, id uuid.UUID) error

	CreateConsultation(ctx context.Context, c *Consultation) error
	GetConsultation(ctx context.Context, id uuid.UUID) (*Consultation, error)

	CreateStudy(ctx context.Context, s *Study) error
	GetStudy(ctx context.Context, id uuid.UUID) (*Study, error)

	CreateScreening(ctx context.Context, s *Screening) error
	GetScreening(ctx context.Context, id uuid.UUID) (*Screening, error)
}
