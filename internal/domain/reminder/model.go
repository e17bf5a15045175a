package reminder

import (
	"time"

	"github.com/google/uuid"
)

// Status is the closed set of reminder states. Transitions happen only
// through the scheduler's completion operations.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// DateLayout is the calendar-date format used for control and notification
// dates throughout the scheduler.
const DateLayout = "2006-01-02"

// ControlReminder schedules a clinical control for a patient, optionally tied
// to the consultation that requested it.
//
// Invariant: CompletedAt is set if and only if Status is completed; once
// completed, a reminder never reverts to pending.
type ControlReminder struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	PatientID      uuid.UUID  `db:"patient_id" json:"patient_id"`
	ConsultationID *uuid.UUID `db:"consultation_id" json:"consultation_id,omitempty"`
	ControlDate    string     `db:"control_date" json:"control_date"` // YYYY-MM-DD
	ExtraEmails    []string   `db:"extra_emails" json:"extra_emails,omitempty"`
	CreatedBy      string     `db:"created_by" json:"created_by"`
	CreatorEmail   *string    `db:"creator_email" json:"creator_email,omitempty"`
	Status         Status     `db:"status" json:"status"`
	CompletedAt    *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	// LastNotifiedDate guards against duplicate same-day notification; it is
	// stamped by the scan, never by completion.
	LastNotifiedDate *string   `db:"last_notified_date" json:"last_notified_date,omitempty"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

// ScreeningFollowup has the same shape and lifecycle as a ControlReminder but
// is scoped to a screening instead of a consultation.
type ScreeningFollowup struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	ScreeningID      uuid.UUID  `db:"screening_id" json:"screening_id"`
	StudyType        *string    `db:"study_type" json:"study_type,omitempty"`
	ControlDate      string     `db:"control_date" json:"control_date"`
	CreatedBy        string     `db:"created_by" json:"created_by"`
	CreatorEmail     *string    `db:"creator_email" json:"creator_email,omitempty"`
	Status           Status     `db:"status" json:"status"`
	CompletedAt      *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	LastNotifiedDate *string    `db:"last_notified_date" json:"last_notified_date,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
}
