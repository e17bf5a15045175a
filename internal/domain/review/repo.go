package review

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, rr *ReviewRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*ReviewRequest, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*ReviewRequest, int, error)
	CountPending(ctx context.Context) (int, error)

	// Resolve atomically transitions a pending review to resolved. Exactly
	// one of two concurrent callers succeeds; the loser gets ErrInvalidState.
	Resolve(ctx context.Context, id uuid.UUID, at time.Time) error

	AddComment(ctx context.Context, c *ReviewComment) error
	ListComments(ctx context.Context, reviewID uuid.UUID) ([]*ReviewComment, error)
}
