package review

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/comitetoraxvm/comite-torax/internal/domain/patient"
	"github.com/comitetoraxvm/comite-torax/internal/platform/audit"
	"github.com/comitetoraxvm/comite-torax/internal/platform/errs"
	"github.com/comitetoraxvm/comite-torax/internal/platform/notify"
)

// Directory resolves the clinical entities a review request points at.
// Satisfied by the patient service.
type Directory interface {
	GetPatient(ctx context.Context, id uuid.UUID) (*patient.Patient, error)
	GetConsultation(ctx context.Context, id uuid.UUID) (*patient.Consultation, error)
	GetStudy(ctx context.Context, id uuid.UUID) (*patient.Study, error)
}

// Service is the peer-review workflow engine.
type Service struct {
	repo Repository
	dir  Directory
	log  *audit.Log

	// Notification collaborators are optional; when nil, creation and
	// commenting skip the best-effort emails.
	dispatcher *notify.Dispatcher
	templates  *notify.TemplateEngine
	baseURL    string
}

func NewService(repo Repository, dir Directory, log *audit.Log) *Service {
	return &Service{repo: repo, dir: dir, log: log}
}

// SetNotifier attaches the outbound notification collaborators and the deep
// link base used in message bodies.
func (s *Service) SetNotifier(d *notify.Dispatcher, t *notify.TemplateEngine, baseURL string) {
	s.dispatcher = d
	s.templates = t
	s.baseURL = baseURL
}

// CreateParams are the inputs for Create.
type CreateParams struct {
	PatientID      uuid.UUID
	ConsultationID *uuid.UUID
	StudyID        *uuid.UUID
	CreatedBy      string
	Recipients     []string
	Message        string
}

// Create opens a new pending review request.
func (s *Service) Create(ctx context.Context, p CreateParams) (*ReviewRequest, error) {
	recipients := notify.CollectRecipients(p.Recipients)
	if len(recipients) == 0 {
		return nil, errs.Validationf("recipients must not be empty")
	}
	for _, addr := range recipients {
		if !strings.Contains(addr, "@") {
			return nil, errs.Validationf("invalid recipient address %q", addr)
		}
	}

	pat, err := s.dir.GetPatient(ctx, p.PatientID)
	if errs.IsNotFound(err) {
		return nil, errs.Validationf("patient %s does not exist", p.PatientID)
	}
	if err != nil {
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
	if p.StudyID != nil {
		st, err := s.dir.GetStudy(ctx, *p.StudyID)
		if err != nil {
			return nil, asStorage(err)
		}
		if st.PatientID != p.PatientID {
			return nil, errs.NotFoundf("study does not belong to patient")
		}
	}

	rr := &ReviewRequest{
		PatientID:      p.PatientID,
		ConsultationID: p.ConsultationID,
		StudyID:        p.StudyID,
		CreatedBy:      p.CreatedBy,
		Recipients:     recipients,
	}
	if msg := strings.TrimSpace(p.Message); msg != "" {
		rr.Message = &msg
	}
	if err := s.repo.Create(ctx, rr); err != nil {
		return nil, asStorage(err)
	}

	if _, err := s.log.Append(ctx, p.CreatedBy, audit.ActionReviewCreated,
		"review/"+rr.ID.String(), "patient "+p.PatientID.String()); err != nil {
		return nil, err
	}

	s.notifyCreated(ctx, rr, pat.FullName)
	return rr, nil
}

// AddComment appends to the review's thread. Resolution does not lock the
// thread: comments stay allowed on resolved reviews.
func (s *Service) AddComment(ctx context.Context, reviewID uuid.UUID, author, message string) (*ReviewComment, error) {
	text := strings.TrimSpace(message)
	if text == "" {
		return nil, errs.Validationf("comment message must not be empty")
	}

	rr, err := s.repo.GetByID(ctx, reviewID)
	if err != nil {
		return nil, asStorage(err)
	}

	c := &ReviewComment{
		ReviewID: reviewID,
		Author:   author,
		Message:  text,
	}
	if err := s.repo.AddComment(ctx, c); err != nil {
		return nil, asStorage(err)
	}

	if _, err := s.log.Append(ctx, author, audit.ActionReviewCommented,
		"review/"+reviewID.String(), ""); err != nil {
		return nil, err
	}

	s.notifyCommented(ctx, rr, c)
	return c, nil
}

// Resolve marks the review resolved. A review resolves exactly once: a second
// call fails with ErrInvalidState and ResolvedAt keeps its first value.
func (s *Service) Resolve(ctx context.Context, reviewID uuid.UUID, actor string) error {
	if err := s.repo.Resolve(ctx, reviewID, time.Now().UTC()); err != nil {
		return asStorage(err)
	}
	if _, err := s.log.Append(ctx, actor, audit.ActionReviewResolved,
		"review/"+reviewID.String(), ""); err != nil {
		return err
	}
	return nil
}

// ListComments returns the thread in creation order. It has no side effects
// and can be re-called freely.
func (s *Service) ListComments(ctx context.Context, reviewID uuid.UUID) ([]*ReviewComment, error) {
	if _, err := s.repo.GetByID(ctx, reviewID); err != nil {
		return nil, asStorage(err)
	}
	comments, err := s.repo.ListComments(ctx, reviewID)
	if err != nil {
		return nil, asStorage(err)
	}
	return comments, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*ReviewRequest, error) {
	rr, err := s.repo.GetByID(ctx, id)
	return rr, asStorage(err)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*ReviewRequest, int, error) {
	items, total, err := s.repo.ListByPatient(ctx, patientID, limit, offset)
	return items, total, asStorage(err)
}

// CountPending feeds the committee dashboard badge.
func (s *Service) CountPending(ctx context.Context) (int, error) {
	n, err := s.repo.CountPending(ctx)
	return n, asStorage(err)
}

func (s *Service) notifyCreated(ctx context.Context, rr *ReviewRequest, patientName string) {
	if s.dispatcher == nil {
		return
	}
	msg := ""
	if rr.Message != nil {
		msg = *rr.Message
	}
	subject, body, err := s.templates.Render(notify.TemplateReviewRequest, map[string]string{
		"requester":    rr.CreatedBy,
		"patient_name": patientName,
		"review_id":    rr.ID.String(),
		"message":      msg,
		"link":         s.baseURL,
	})
	if err != nil {
		return
	}
	s.recordOutcomes(ctx, rr.ID, s.dispatcher.Send(ctx, rr.Recipients, subject, body))
}

func (s *Service) notifyCommented(ctx context.Context, rr *ReviewRequest, c *ReviewComment) {
	if s.dispatcher == nil {
		return
	}
	patientName := rr.PatientID.String()
	if pat, err := s.dir.GetPatient(ctx, rr.PatientID); err == nil {
		patientName = pat.FullName
	}
	subject, body, err := s.templates.Render(notify.TemplateReviewComment, map[string]string{
		"patient_name": patientName,
		"author":       c.Author,
		"comment":      c.Message,
		"link":         s.baseURL,
	})
	if err != nil {
		return
	}
	s.recordOutcomes(ctx, rr.ID, s.dispatcher.Send(ctx, rr.Recipients, subject, body))
}

// recordOutcomes audits failed sends. Notification failures never propagate.
func (s *Service) recordOutcomes(ctx context.Context, reviewID uuid.UUID, outcomes []notify.Outcome) {
	for _, o := range outcomes {
		if o.Err == nil {
			continue
		}
		detail := fmt.Sprintf("%s: %v", o.Recipient, o.Err)
		_, _ = s.log.Append(ctx, "system", audit.ActionNotificationError,
			"review/"+reviewID.String(), detail)
	}
}

func asStorage(err error) error {
	if err == nil ||
		errs.IsValidation(err) || errs.IsNotFound(err) ||
		errs.IsInvalidState(err) || errs.IsStorage(err) {
		return err
	}
	return errs.Storagef(err, "record store")
}
