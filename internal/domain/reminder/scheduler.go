package reminder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/comitetoraxvm/comite-torax/internal/domain/patient"
	"github.com/comitetoraxvm/comite-torax/internal/platform/audit"
	"github.com/comitetoraxvm/comite-torax/internal/platform/errs"
	"github.com/comitetoraxvm/comite-torax/internal/platform/notify"
)

// ErrScanInProgress is returned when a due scan is requested while another one
// is still running. The caller retries on the next tick.
var ErrScanInProgress = errors.New("reminder: scan already in progress")

// Directory resolves the clinical entities a reminder points at. Satisfied by
// the patient service.
type Directory interface {
	GetPatient(ctx context.Context, id uuid.UUID) (*patient.Patient, error)
	GetConsultation(ctx context.Context, id uuid.UUID) (*patient.Consultation, error)
	GetScreening(ctx context.Context, id uuid.UUID) (*patient.Screening, error)
}

// Scheduler owns the reminder lifecycle and the daily due scan. The scan
// itself is driven externally (cron or the remind CLI command); the scheduler
// only guarantees that concurrent triggers cannot overlap.
type Scheduler struct {
	repo       Repository
	dir        Directory
	log        *audit.Log
	dispatcher *notify.Dispatcher
	templates  *notify.TemplateEngine
	logger     zerolog.Logger

	// extraRecipients is appended to every scan notification, on top of the
	// per-item addresses. Configured via EXTRA_RECIPIENTS.
	extraRecipients []string

	scanning atomic.Bool
	now      func() time.Time
}

func NewScheduler(repo Repository, dir Directory, log *audit.Log,
	dispatcher *notify.Dispatcher, templates *notify.TemplateEngine, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		repo:       repo,
		dir:        dir,
		log:        log,
		dispatcher: dispatcher,
		templates:  templates,
		logger:     logger,
		now:        time.Now,
	}
}

// SetExtraRecipients configures addresses copied on every scan notification,
// such as a shared committee inbox.
func (s *Scheduler) SetExtraRecipients(addrs []string) {
	s.extraRecipients = notify.CollectRecipients(addrs)
}

// ---------------------------------------------------------------------------
// Reminder lifecycle
// ---------------------------------------------------------------------------

// CreateReminderParams are the inputs for CreateReminder.
type CreateReminderParams struct {
	PatientID      uuid.UUID
	ConsultationID *uuid.UUID
	ControlDate    string
	ExtraEmails    []string
	CreatedBy      string
	CreatorEmail   string
}

func (s *Scheduler) CreateReminder(ctx context.Context, p CreateReminderParams) (*ControlReminder, error) {
	if err := validDate(p.ControlDate); err != nil {
		return nil, err
	}
	if _, err := s.dir.GetPatient(ctx, p.PatientID); err != nil {
		if errs.IsNotFound(err) {
			return nil, errs.Validationf("patient %s does not exist", p.PatientID)
		}
		return nil, asStorage(err)
	}
	if p.ConsultationID != nil {
		c, err := s.dir.GetConsultation(ctx, *p.ConsultationID)
		if err != nil {
			return nil, asStorage(err)
		}
		if c.PatientID != p.PatientID {
			return nil, errs.NotFoundf("consultation does not belong to patient")
		}
	}

	cr := &ControlReminder{
		PatientID:      p.PatientID,
		ConsultationID: p.ConsultationID,
		ControlDate:    p.ControlDate,
		ExtraEmails:    notify.CollectRecipients(p.ExtraEmails),
		CreatedBy:      p.CreatedBy,
	}
	if addr := strings.TrimSpace(p.CreatorEmail); addr != "" {
		cr.CreatorEmail = &addr
	}
	if err := s.repo.CreateReminder(ctx, cr); err != nil {
		return nil, asStorage(err)
	}

	if _, err := s.log.Append(ctx, p.CreatedBy, audit.ActionReminderCreated,
		"reminder/"+cr.ID.String(), "control "+cr.ControlDate); err != nil {
		return nil, err
	}
	return cr, nil
}

// MarkCompleted transitions a reminder to completed. A reminder completes
// exactly once: a second call fails with ErrInvalidState and never resends a
// notification or rewrites CompletedAt.
func (s *Scheduler) MarkCompleted(ctx context.Context, id uuid.UUID, actor string) error {
	if err := s.repo.CompleteReminder(ctx, id, s.now().UTC()); err != nil {
		return asStorage(err)
	}
	if _, err := s.log.Append(ctx, actor, audit.ActionReminderCompleted,
		"reminder/"+id.String(), ""); err != nil {
		return err
	}
	return nil
}

func (s *Scheduler) GetReminder(ctx context.Context, id uuid.UUID) (*ControlReminder, error) {
	cr, err := s.repo.GetReminder(ctx, id)
	return cr, asStorage(err)
}

func (s *Scheduler) ListRemindersByPatient(ctx context.Context, patientID uuid.UUID) ([]*ControlReminder, error) {
	items, err := s.repo.ListRemindersByPatient(ctx, patientID)
	return items, asStorage(err)
}

// ---------------------------------------------------------------------------
// Followup lifecycle
// ---------------------------------------------------------------------------

// CreateFollowupParams are the inputs for CreateFollowup.
type CreateFollowupParams struct {
	ScreeningID  uuid.UUID
	StudyType    string
	ControlDate  string
	CreatedBy    string
	CreatorEmail string
}

func (s *Scheduler) CreateFollowup(ctx context.Context, p CreateFollowupParams) (*ScreeningFollowup, error) {
	if err := validDate(p.ControlDate); err != nil {
		return nil, err
	}
	if _, err := s.dir.GetScreening(ctx, p.ScreeningID); err != nil {
		if errs.IsNotFound(err) {
			return nil, errs.Validationf("screening %s does not exist", p.ScreeningID)
		}
		return nil, asStorage(err)
	}

	fu := &ScreeningFollowup{
		ScreeningID: p.ScreeningID,
		ControlDate: p.ControlDate,
		CreatedBy:   p.CreatedBy,
	}
	if st := strings.TrimSpace(p.StudyType); st != "" {
		fu.StudyType = &st
	}
	if addr := strings.TrimSpace(p.CreatorEmail); addr != "" {
		fu.CreatorEmail = &addr
	}
	if err := s.repo.CreateFollowup(ctx, fu); err != nil {
		return nil, asStorage(err)
	}

	if _, err := s.log.Append(ctx, p.CreatedBy, audit.ActionFollowupCreated,
		"followup/"+fu.ID.String(), "control "+fu.ControlDate); err != nil {
		return nil, err
	}
	return fu, nil
}

func (s *Scheduler) MarkFollowupCompleted(ctx context.Context, id uuid.UUID, actor string) error {
	if err := s.repo.CompleteFollowup(ctx, id, s.now().UTC()); err != nil {
		return asStorage(err)
	}
	if _, err := s.log.Append(ctx, actor, audit.ActionFollowupCompleted,
		"followup/"+id.String(), ""); err != nil {
		return err
	}
	return nil
}

func (s *Scheduler) DeleteFollowup(ctx context.Context, id uuid.UUID, actor string) error {
	if err := s.repo.DeleteFollowup(ctx, id); err != nil {
		return asStorage(err)
	}
	if _, err := s.log.Append(ctx, actor, audit.ActionFollowupDeleted,
		"followup/"+id.String(), ""); err != nil {
		return err
	}
	return nil
}

func (s *Scheduler) GetFollowup(ctx context.Context, id uuid.UUID) (*ScreeningFollowup, error) {
	fu, err := s.repo.GetFollowup(ctx, id)
	return fu, asStorage(err)
}

func (s *Scheduler) ListFollowupsByScreening(ctx context.Context, screeningID uuid.UUID) ([]*ScreeningFollowup, error) {
	items, err := s.repo.ListFollowupsByScreening(ctx, screeningID)
	return items, asStorage(err)
}

// ---------------------------------------------------------------------------
// Due scan
// ---------------------------------------------------------------------------

// ScanReport summarizes one due scan for the caller that triggered it.
type ScanReport struct {
	Date     string `json:"date"`
	Scanned  int    `json:"scanned"`
	Notified int    `json:"notified"`
	Skipped  int    `json:"skipped"`
	Failures int    `json:"failures"`
}

// ScanDue runs the daily due scan for the given date ("" means today).
// Overdue items stay due: anything pending with a control date on or before
// the scan date is picked up until completed. Items already stamped for the
// scan date are excluded at the query, so re-running the scan the same day is
// a no-op. Only one scan runs at a time; overlapping triggers get
// ErrScanInProgress.
func (s *Scheduler) ScanDue(ctx context.Context, date string) (*ScanReport, error) {
	if date == "" {
		date = s.now().UTC().Format(DateLayout)
	} else if err := validDate(date); err != nil {
		return nil, err
	}

	if !s.scanning.CompareAndSwap(false, true) {
		return nil, ErrScanInProgress
	}
	defer s.scanning.Store(false)

	report := &ScanReport{Date: date}

	reminders, err := s.repo.DueReminders(ctx, date)
	if err != nil {
		return nil, asStorage(err)
	}
	for _, cr := range reminders {
		report.Scanned++
		s.scanReminder(ctx, cr, date, report)
	}

	followups, err := s.repo.DueFollowups(ctx, date)
	if err != nil {
		return nil, asStorage(err)
	}
	for _, fu := range followups {
		report.Scanned++
		s.scanFollowup(ctx, fu, date, report)
	}

	s.logger.Info().
		Str("date", report.Date).
		Int("scanned", report.Scanned).
		Int("notified", report.Notified).
		Int("skipped", report.Skipped).
		Int("failures", report.Failures).
		Msg("due scan finished")
	return report, nil
}

func (s *Scheduler) scanReminder(ctx context.Context, cr *ControlReminder, date string, report *ScanReport) {
	pat, err := s.dir.GetPatient(ctx, cr.PatientID)
	if err != nil {
		report.Failures++
		s.logger.Error().Err(err).Str("reminder_id", cr.ID.String()).Msg("due scan: patient lookup failed")
		return
	}

	recipients := notify.CollectRecipients(
		optional(pat.Email), cr.ExtraEmails, optional(cr.CreatorEmail), s.extraRecipients)

	if len(recipients) == 0 {
		// No address anywhere: the item is still stamped so the scan does not
		// reconsider it until the next day.
		report.Skipped++
		s.stampReminder(ctx, cr.ID, date, report)
		return
	}

	subject, body, err := s.templates.Render(notify.TemplateControlReminder, map[string]string{
		"patient_name": pat.FullName,
		"dni":          deref(pat.DNI),
		"doctor_name":  deref(pat.DoctorName),
	})
	if err != nil {
		report.Failures++
		return
	}
	outcomes := s.dispatcher.Send(ctx, recipients, subject, body)
	if s.recordOutcomes(ctx, "reminder/"+cr.ID.String(), outcomes, report) == 0 {
		// Nobody was reached. The item stays unstamped so a same-day rerun
		// retries delivery.
		s.logger.Warn().Str("reminder_id", cr.ID.String()).Msg("due scan: all sends failed, left for retry")
		return
	}
	report.Notified++
	s.stampReminder(ctx, cr.ID, date, report)
}

func (s *Scheduler) stampReminder(ctx context.Context, id uuid.UUID, date string, report *ScanReport) {
	if err := s.repo.SetReminderNotified(ctx, id, date); err != nil {
		report.Failures++
		s.logger.Error().Err(err).Str("reminder_id", id.String()).Msg("due scan: stamp failed")
	}
}

func (s *Scheduler) scanFollowup(ctx context.Context, fu *ScreeningFollowup, date string, report *ScanReport) {
	scr, err := s.dir.GetScreening(ctx, fu.ScreeningID)
	if err != nil {
		report.Failures++
		s.logger.Error().Err(err).Str("followup_id", fu.ID.String()).Msg("due scan: screening lookup failed")
		return
	}
	pat, err := s.dir.GetPatient(ctx, scr.PatientID)
	if err != nil {
		report.Failures++
		s.logger.Error().Err(err).Str("followup_id", fu.ID.String()).Msg("due scan: patient lookup failed")
		return
	}

	recipients := notify.CollectRecipients(
		optional(pat.Email), optional(scr.ExtraEmail), optional(fu.CreatorEmail), s.extraRecipients)

	if len(recipients) == 0 {
		report.Skipped++
		s.stampFollowup(ctx, fu.ID, date, report)
		return
	}

	subject, body, err := s.templates.Render(notify.TemplateFollowupReminder, map[string]string{
		"patient_name": pat.FullName,
		"dni":          deref(pat.DNI),
		"doctor_name":  deref(pat.DoctorName),
	})
	if err != nil {
		report.Failures++
		return
	}
	outcomes := s.dispatcher.Send(ctx, recipients, subject, body)
	if s.recordOutcomes(ctx, "followup/"+fu.ID.String(), outcomes, report) == 0 {
		s.logger.Warn().Str("followup_id", fu.ID.String()).Msg("due scan: all sends failed, left for retry")
		return
	}
	report.Notified++
	s.stampFollowup(ctx, fu.ID, date, report)
}

func (s *Scheduler) stampFollowup(ctx context.Context, id uuid.UUID, date string, report *ScanReport) {
	if err := s.repo.SetFollowupNotified(ctx, id, date); err != nil {
		report.Failures++
		s.logger.Error().Err(err).Str("followup_id", id.String()).Msg("due scan: stamp failed")
	}
}

// recordOutcomes audits failed sends and returns how many recipients were
// reached. A failed recipient never blocks the rest of the scan; an item is
// stamped as notified only when at least one send went through.
func (s *Scheduler) recordOutcomes(ctx context.Context, target string, outcomes []notify.Outcome, report *ScanReport) int {
	delivered := 0
	for _, o := range outcomes {
		if o.Err == nil {
			delivered++
			continue
		}
		report.Failures++
		detail := fmt.Sprintf("%s: %v", o.Recipient, o.Err)
		_, _ = s.log.Append(ctx, "system", audit.ActionNotificationError, target, detail)
	}
	return delivered
}

func validDate(d string) error {
	if _, err := time.Parse(DateLayout, d); err != nil {
		return errs.Validationf("control_date must be YYYY-MM-DD")
	}
	return nil
}

func optional(s *string) []string {
	if s == nil {
		return nil
	}
	return []string{*s}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func asStorage(err error) error {
	if err == nil ||
		errs.IsValidation(err) || errs.IsNotFound(err) ||
		errs.IsInvalidState(err) || errs.IsStorage(err) {
		return err
	}
	return errs.Storagef(err, "reminder store")
}
