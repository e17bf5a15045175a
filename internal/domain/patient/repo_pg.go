package patient

import (
	"context"
	"errors"

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

const patientCols = `id, full_name, dni, email, doctor_name, notes, created_at, updated_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.FullName, &p.DNI, &p.Email, &p.DoctorName, &p.Notes, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.NotFoundf("patient")
	}
	return &p, err
}

func (r *repoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO patients (id, full_name, dni, email, doctor_name, notes)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		p.ID, p.FullName, p.DNI, p.Email, p.DoctorName, p.Notes)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE id = $1`, id))
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patients`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+patientCols+` FROM patients ORDER BY full_name ASC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

// Delete relies on the schema's ON DELETE CASCADE rules to remove owned
// consultations, studies, screenings, reminders, and reviews in one statement.
func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM patients WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.NotFoundf("patient")
	}
	return nil
}

func (r *repoPG) CreateConsultation(ctx context.Context, c *Consultation) error {
	c.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO consultations (id, patient_id, date, summary)
		VALUES ($1,$2,$3,$4)`,
		c.ID, c.PatientID, c.Date, c.Summary)
	return err
}

func (r *repoPG) GetConsultation(ctx context.Context, id uuid.UUID) (*Consultation, error) {
	var c Consultation
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT id, patient_id, date, summary, created_at FROM consultations WHERE id = $1`, id).
		Scan(&c.ID, &c.PatientID, &c.Date, &c.Summary, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.NotFoundf("consultation")
	}
	return &c, err
}

func (r *repoPG) CreateStudy(ctx context.Context, s *Study) error {
	s.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO studies (id, patient_id, consultation_id, study_type, study_date, findings)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		s.ID, s.PatientID, s.ConsultationID, s.StudyType, s.StudyDate, s.Findings)
	return err
}

func (r *repoPG) GetStudy(ctx context.Context, id uuid.UUID) (*Study, error) {
	var s Study
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT id, patient_id, consultation_id, study_type, study_date, findings, created_at
		FROM studies WHERE id = $1`, id).
		Scan(&s.ID, &s.PatientID, &s.ConsultationID, &s.StudyType, &s.StudyDate, &s.Findings, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.NotFoundf("study")
	}
	return &s, err
}

func (r *repoPG) CreateScreening(ctx context.Context, s *Screening) error {
	s.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO screenings (id, patient_id, lung_rads, conclusion, extra_email)
		VALUES ($1,$2,$3,$4,$5)`,
		s.ID, s.PatientID, s.LungRADS, s.Conclusion, s.ExtraEmail)
	return err
}

func (r *repoPG) GetScreening(ctx context.Context, id uuid.UUID) (*Screening, error) {
	var s Screening
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT id, patient_id, lung_rads, conclusion, extra_email, created_at
		FROM screenings WHERE id = $1`, id).
		Scan(&s.ID, &s.PatientID, &s.LungRADS, &s.Conclusion, &s.ExtraEmail, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.NotFoundf("screening")
	}
	return &s, err
}
