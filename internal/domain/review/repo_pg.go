package review

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/comitetoraxvm/comite-torax/internal/platform/db"
	"github.com/comitetoraxvm/comite-torax/internal/platform/errs"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const reviewCols = `id, patient_id, consultation_id, study_id, created_by, recipients,
	message, status, created_at, resolved_at`

func scanReview(row pgx.Row) (*ReviewRequest, error) {
	var rr ReviewRequest
	err := row.Scan(&rr.ID, &rr.PatientID, &rr.ConsultationID, &rr.StudyID, &rr.CreatedBy,
		&rr.Recipients, &rr.Message, &rr.Status, &rr.CreatedAt, &rr.ResolvedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.NotFoundf("review request")
	}
	return &rr, err
}

func (r *repoPG) Create(ctx context.Context, rr *ReviewRequest) error {
	rr.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO review_requests (id, patient_id, consultation_id, study_id, created_by, recipients, message)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING status, created_at`,
		rr.ID, rr.PatientID, rr.ConsultationID, rr.StudyID, rr.CreatedBy, rr.Recipients, rr.Message).
		Scan(&rr.Status, &rr.CreatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*ReviewRequest, error) {
	return scanReview(r.conn(ctx).QueryRow(ctx, `SELECT `+reviewCols+` FROM review_requests WHERE id = $1`, id))
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*ReviewRequest, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM review_requests WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+reviewCols+` FROM review_requests
		WHERE patient_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*ReviewRequest
	for rows.Next() {
		rr, err := scanReview(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, rr)
	}
	return items, total, rows.Err()
}

func (r *repoPG) CountPending(ctx context.Context) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM review_requests WHERE status = 'pending'`).Scan(&n)
	return n, err
}

// Resolve is a compare-and-set: the WHERE guard makes two concurrent
// resolutions race on the row, and the loser affects zero rows.
func (r *repoPG) Resolve(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE review_requests SET status = 'resolved', resolved_at = $2
		WHERE id = $1 AND status = 'pending'`, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	// Distinguish missing from already-resolved.
	if _, err := r.GetByID(ctx, id); err != nil {
		return err
	}
	return errs.InvalidStatef("review request already resolved")
}

func (r *repoPG) AddComment(ctx context.Context, c *ReviewComment) error {
	c.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO review_comments (id, review_id, author, message)
		VALUES ($1,$2,$3,$4)
		RETURNING seq, created_at`,
		c.ID, c.ReviewID, c.Author, c.Message).
		Scan(&c.Seq, &c.CreatedAt)
}

func (r *repoPG) ListComments(ctx context.Context, reviewID uuid.UUID) ([]*ReviewComment, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, review_id, author, message, seq, created_at FROM review_comments
		WHERE review_id = $1 ORDER BY created_at ASC, seq ASC`, reviewID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*ReviewComment
	for rows.Next() {
		var c ReviewComment
		if err := rows.Scan(&c.ID, &c.ReviewID, &c.Author, &c.Message, &c.Seq, &c.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &c)
	}
	return items, rows.Err()
}
