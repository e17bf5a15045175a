package reminder

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

// Dates are stored as DATE columns and carried as YYYY-MM-DD strings in the
// model, so the scan compares calendar dates, not instants.

const reminderCols = `id, patient_id, consultation_id, control_date::text, extra_emails,
	created_by, creator_email, status, completed_at, last_notified_date::text, created_at`

func scanReminder(row pgx.Row) (*ControlReminder, error) {
	var cr ControlReminder
	err := row.Scan(&cr.ID, &cr.PatientID, &cr.ConsultationID, &cr.ControlDate, &cr.ExtraEmails,
		&cr.CreatedBy, &cr.CreatorEmail, &cr.Status, &cr.CompletedAt, &cr.LastNotifiedDate, &cr.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.NotFoundf("control reminder")
	}
	return &cr, err
}

func (r *repoPG) CreateReminder(ctx context.Context, cr *ControlReminder) error {
	cr.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO control_reminders (id, patient_id, consultation_id, control_date, extra_emails, created_by, creator_email)
		VALUES ($1,$2,$3,$4::date,$5,$6,$7)
		RETURNING status, created_at`,
		cr.ID, cr.PatientID, cr.ConsultationID, cr.ControlDate, cr.ExtraEmails, cr.CreatedBy, cr.CreatorEmail).
		Scan(&cr.Status, &cr.CreatedAt)
}

func (r *repoPG) GetReminder(ctx context.Context, id uuid.UUID) (*ControlReminder, error) {
	return scanReminder(r.conn(ctx).QueryRow(ctx,
		`SELECT `+reminderCols+` FROM control_reminders WHERE id = $1`, id))
}

func (r *repoPG) ListRemindersByPatient(ctx context.Context, patientID uuid.UUID) ([]*ControlReminder, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+reminderCols+` FROM control_reminders
		WHERE patient_id = $1
		ORDER BY status ASC, control_date DESC, created_at DESC`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*ControlReminder
	for rows.Next() {
		cr, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, cr)
	}
	return items, rows.Err()
}

func (r *repoPG) CompleteReminder(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE control_reminders SET status = 'completed', completed_at = $2
		WHERE id = $1 AND status = 'pending'`, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if _, err := r.GetReminder(ctx, id); err != nil {
		return err
	}
	return errs.InvalidStatef("control reminder already completed")
}

func (r *repoPG) DueReminders(ctx context.Context, today string) ([]*ControlReminder, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+reminderCols+` FROM control_reminders
		WHERE status = 'pending'
		  AND control_date <= $1::date
		  AND (last_notified_date IS NULL OR last_notified_date < $1::date)
		ORDER BY patient_id ASC, id ASC`, today)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*ControlReminder
	for rows.Next() {
		cr, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, cr)
	}
	return items, rows.Err()
}

func (r *repoPG) SetReminderNotified(ctx context.Context, id uuid.UUID, date string) error {
	_, err := r.conn(ctx).Exec(ctx,
		`UPDATE control_reminders SET last_notified_date = $2::date WHERE id = $1`, id, date)
	return err
}

const followupCols = `f.id, f.screening_id, f.study_type, f.control_date::text, f.created_by,
	f.creator_email, f.status, f.completed_at, f.last_notified_date::text, f.created_at`

func scanFollowup(row pgx.Row) (*ScreeningFollowup, error) {
	var fu ScreeningFollowup
	err := row.Scan(&fu.ID, &fu.ScreeningID, &fu.StudyType, &fu.ControlDate, &fu.CreatedBy,
		&fu.CreatorEmail, &fu.Status, &fu.CompletedAt, &fu.LastNotifiedDate, &fu.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.NotFoundf("screening followup")
	}
	return &fu, err
}

func (r *repoPG) CreateFollowup(ctx context.Context, fu *ScreeningFollowup) error {
	fu.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO screening_followups (id, screening_id, study_type, control_date, created_by, creator_email)
		VALUES ($1,$2,$3,$4::date,$5,$6)
		RETURNING status, created_at`,
		fu.ID, fu.ScreeningID, fu.StudyType, fu.ControlDate, fu.CreatedBy, fu.CreatorEmail).
		Scan(&fu.Status, &fu.CreatedAt)
}

func (r *repoPG) GetFollowup(ctx context.Context, id uuid.UUID) (*ScreeningFollowup, error) {
	return scanFollowup(r.conn(ctx).QueryRow(ctx,
		`SELECT `+followupCols+` FROM screening_followups f WHERE f.id = $1`, id))
}

func (r *repoPG) ListFollowupsByScreening(ctx context.Context, screeningID uuid.UUID) ([]*ScreeningFollowup, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+followupCols+` FROM screening_followups f
		WHERE f.screening_id = $1
		ORDER BY f.status ASC, f.control_date DESC, f.created_at DESC`, screeningID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*ScreeningFollowup
	for rows.Next() {
		fu, err := scanFollowup(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, fu)
	}
	return items, rows.Err()
}

func (r *repoPG) CompleteFollowup(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE screening_followups SET status = 'completed', completed_at = $2
		WHERE id = $1 AND status = 'pending'`, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if _, err := r.GetFollowup(ctx, id); err != nil {
		return err
	}
	return errs.InvalidStatef("screening followup already completed")
}

func (r *repoPG) DeleteFollowup(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM screening_followups WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.NotFoundf("screening followup")
	}
	return nil
}

func (r *repoPG) DueFollowups(ctx context.Context, today string) ([]*ScreeningFollowup, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+followupCols+`
		FROM screening_followups f
		JOIN screenings s ON s.id = f.screening_id
		WHERE f.status = 'pending'
		  AND f.control_date <= $1::date
		  AND (f.last_notified_date IS NULL OR f.last_notified_date < $1::date)
		ORDER BY s.patient_id ASC, f.id ASC`, today)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*ScreeningFollowup
	for rows.Next() {
		fu, err := scanFollowup(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, fu)
	}
	return items, rows.Err()
}

func (r *repoPG) SetFollowupNotified(ctx context.Context, id uuid.UUID, date string) error {
	_, err := r.conn(ctx).Exec(ctx,
		`UPDATE screening_followups SET last_notified_date = $2::date WHERE id = $1`, id, date)
	return err
}
