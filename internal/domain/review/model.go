package review

import (
	"time"

	"github.com/google/uuid"
)

// Status is the closed set of review request states. Transitions happen only
// through Service.Resolve; nothing else assigns the field.
type Status string

const (
	StatusPending  Status = "pending"
	StatusResolved Status = "resolved"
)

// ReviewRequest asks named colleagues to weigh in on a patient's case,
// optionally anchored to one consultation or study.
//
// Invariant: ResolvedAt is set if and only if Status is resolved, and once
// set it never changes.
type ReviewRequest struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	PatientID      uuid.UUID  `db:"patient_id" json:"patient_id"`
	ConsultationID *uuid.UUID `db:"consultation_id" json:"consultation_id,omitempty"`
	StudyID        *uuid.UUID `db:"study_id" json:"study_id,omitempty"`
	CreatedBy      string     `db:"created_by" json:"created_by"`
	Recipients     []string   `db:"recipients" json:"recipients"`
	Message        *string    `db:"message" json:"message,omitempty"`
	Status         Status     `db:"status" json:"status"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	ResolvedAt     *time.Time `db:"resolved_at" json:"resolved_at,omitempty"`
}

// ReviewComment belongs to exactly one review request. Comments are
// append-only and always returned in creation order, ties broken by
// insertion sequence.
type ReviewComment struct {
	ID        uuid.UUID `db:"id" json:"id"`
	ReviewID  uuid.UUID `db:"review_id" json:"review_id"`
	Author    string    `db:"author" json:"author"`
	Message   string    `db:"message" json:"message"`
	Seq       int64     `db:"seq" json:"seq"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
