package reminder

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	CreateReminder(ctx context.Context, cr *ControlReminder) error
	GetReminder(ctx context.Context, id uuid.UUID) (*ControlReminder, error)
	ListRemindersByPatient(ctx context.Context, patientID uuid.UUID) ([]*ControlReminder, error)
	// CompleteReminder atomically transitions pending -> completed; a second
	// completion affects zero rows and yields ErrInvalidState.
	CompleteReminder(ctx context.Context, id uuid.UUID, at time.Time) error
	// DueReminders returns pending reminders with control_date <= today that
	// have not been notified today, ordered by (patient_id, id) ascending.
	DueReminders(ctx context.Context, today string) ([]*ControlReminder, error)
	SetReminderNotified(ctx context.Context, id uuid.UUID, date string) error

	CreateFollowup(ctx context.Context, fu *ScreeningFollowup) error
	GetFollowup(ctx context.Context, id uuid.UUID) (*ScreeningFollowup, error)
	ListFollowupsByScreening(ctx context.Context, screeningID uuid.UUID) ([]*ScreeningFollowup, error)
	CompleteFollowup(ctx context.Context, id uuid.UUID, at time.Time) error
	DeleteFollowup(ctx context.Context, id uuid.UUID) error
	// DueFollowups orders by the owning screening's patient, then followup id.
	DueFollowups(ctx context.Context, today string) ([]*ScreeningFollowup, error)
	SetFollowupNotified(ctx context.Context, id uuid.UUID, date string) error
}
