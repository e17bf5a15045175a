package review

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/comitetoraxvm/comite-torax/internal/domain/patient"
	"github.com/comitetoraxvm/comite-torax/internal/platform/audit"
	"github.com/comitetoraxvm/comite-torax/internal/platform/errs"
	"github.com/comitetoraxvm/comite-torax/internal/platform/notify"
)

// mockRepo is an in-memory Repository with the same CAS semantics as the
// Postgres implementation.
type mockRepo struct {
	mu       sync.Mutex
	reviews  map[uuid.UUID]*ReviewRequest
	comments []*ReviewComment
	seq      int64
}

func newMockRepo() *mockRepo {
	return &mockRepo{reviews: make(map[uuid.UUID]*ReviewRequest)}
}

func (m *mockRepo) Create(_ context.Context, rr *ReviewRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rr.ID = uuid.New()
	rr.Status = StatusPending
	rr.CreatedAt = time.Now().UTC()
	cp := *rr
	m.reviews[rr.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*ReviewRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rr, ok := m.reviews[id]
	if !ok {
		return nil, errs.NotFoundf("review request")
	}
	cp := *rr
	return &cp, nil
}

func (m *mockRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]*ReviewRequest, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*ReviewRequest
	for _, rr := range m.reviews {
		if rr.PatientID == patientID {
			cp := *rr
			out = append(out, &cp)
		}
	}
	return out, len(out), nil
}

func (m *mockRepo) CountPending(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, rr := range m.reviews {
		if rr.Status == StatusPending {
			n++
		}
	}
	return n, nil
}

func (m *mockRepo) Resolve(_ context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rr, ok := m.reviews[id]
	if !ok {
		return errs.NotFoundf("review request")
	}
	if rr.Status != StatusPending {
		return errs.InvalidStatef("review request already resolved")
	}
	rr.Status = StatusResolved
	rr.ResolvedAt = &at
	return nil
}

func (m *mockRepo) AddComment(_ context.Context, c *ReviewComment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.ID = uuid.New()
	m.seq++
	c.Seq = m.seq
	c.CreatedAt = time.Now().UTC()
	cp := *c
	m.comments = append(m.comments, &cp)
	return nil
}

func (m *mockRepo) ListComments(_ context.Context, reviewID uuid.UUID) ([]*ReviewComment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*ReviewComment
	for _, c := range m.comments {
		if c.ReviewID == reviewID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

// mockDirectory resolves patients and their sub-entities from maps.
type mockDirectory struct {
	patients      map[uuid.UUID]*patient.Patient
	consultations map[uuid.UUID]*patient.Consultation
	studies       map[uuid.UUID]*patient.Study
}

func newMockDirectory() *mockDirectory {
	return &mockDirectory{
		patients:      make(map[uuid.UUID]*patient.Patient),
		consultations: make(map[uuid.UUID]*patient.Consultation),
		studies:       make(map[uuid.UUID]*patient.Study),
	}
}

func (d *mockDirectory) GetPatient(_ context.Context, id uuid.UUID) (*patient.Patient, error) {
	p, ok := d.patients[id]
	if !ok {
		return nil, errs.NotFoundf("patient")
	}
	return p, nil
}

func (d *mockDirectory) GetConsultation(_ context.Context, id uuid.UUID) (*patient.Consultation, error) {
	c, ok := d.consultations[id]
	if !ok {
		return nil, errs.NotFoundf("consultation")
	}
	return c, nil
}

func (d *mockDirectory) GetStudy(_ context.Context, id uuid.UUID) (*patient.Study, error) {
	s, ok := d.studies[id]
	if !ok {
		return nil, errs.NotFoundf("study")
	}
	return s, nil
}

func setupService(t *testing.T) (*Service, *mockRepo, *mockDirectory, *audit.Log, *notify.MockEmailSender) {
	t.Helper()
	repo := newMockRepo()
	dir := newMockDirectory()
	log := audit.NewLog(audit.NewMemStore())
	svc := NewService(repo, dir, log)
	sender := &notify.MockEmailSender{}
	svc.SetNotifier(notify.NewDispatcher(sender), notify.NewTemplateEngine(), "http://comite.local/reviews")
	return svc, repo, dir, log, sender
}

func addPatient(dir *mockDirectory, name string) uuid.UUID {
	id := uuid.New()
	dir.patients[id] = &patient.Patient{ID: id, FullName: name}
	return id
}

func TestCreateReview(t *testing.T) {
	svc, _, dir, log, sender := setupService(t)
	pid := addPatient(dir, "Maria Lopez")

	rr, err := svc.Create(context.Background(), CreateParams{
		PatientID:  pid,
		CreatedBy:  "dr.perez",
		Recipients: []string{"a@hospital.org", "b@hospital.org"},
		Message:    "please review nodule",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if rr.Status != StatusPending {
		t.Errorf("status = %s, want pending", rr.Status)
	}
	if len(rr.Recipients) != 2 {
		t.Errorf("recipients = %d, want 2", len(rr.Recipients))
	}

	entries, err := log.Query(context.Background(), audit.Filter{Action: audit.ActionReviewCreated})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(entries))
	}
	if entries[0].Actor != "dr.perez" {
		t.Errorf("actor = %s, want dr.perez", entries[0].Actor)
	}

	if calls := sender.Calls(); len(calls) != 2 {
		t.Errorf("notification calls = %d, want 2", len(calls))
	}
}

func TestCreateReviewValidation(t *testing.T) {
	svc, _, dir, _, _ := setupService(t)
	pid := addPatient(dir, "Maria Lopez")

	cases := []struct {
		name   string
		params CreateParams
	}{
		{"empty recipients", CreateParams{PatientID: pid, CreatedBy: "dr", Recipients: nil}},
		{"blank recipients", CreateParams{PatientID: pid, CreatedBy: "dr", Recipients: []string{"  ", ""}}},
		{"malformed address", CreateParams{PatientID: pid, CreatedBy: "dr", Recipients: []string{"not-an-email"}}},
		{"unknown patient", CreateParams{PatientID: uuid.New(), CreatedBy: "dr", Recipients: []string{"a@b.org"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Create(context.Background(), tc.params); !errs.IsValidation(err) {
				t.Errorf("err = %v, want validation error", err)
			}
		})
	}
}

func TestCreateReviewDeduplicatesRecipients(t *testing.T) {
	svc, _, dir, _, sender := setupService(t)
	pid := addPatient(dir, "Maria Lopez")

	rr, err := svc.Create(context.Background(), CreateParams{
		PatientID:  pid,
		CreatedBy:  "dr",
		Recipients: []string{"a@b.org", " a@b.org ", "c@d.org"},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(rr.Recipients) != 2 {
		t.Fatalf("recipients = %v, want 2 after dedupe", rr.Recipients)
	}
	if calls := sender.Calls(); len(calls) != 2 {
		t.Errorf("notification calls = %d, want 2", len(calls))
	}
}

func TestCreateReviewWrongParent(t *testing.T) {
	svc, _, dir, _, _ := setupService(t)
	pid := addPatient(dir, "Maria Lopez")
	other := addPatient(dir, "Juan Gomez")

	consID := uuid.New()
	dir.consultations[consID] = &patient.Consultation{ID: consID, PatientID: other}

	_, err := svc.Create(context.Background(), CreateParams{
		PatientID:      pid,
		ConsultationID: &consID,
		CreatedBy:      "dr",
		Recipients:     []string{"a@b.org"},
	})
	if !errs.IsNotFound(err) {
		t.Errorf("err = %v, want not found", err)
	}
}

func TestResolveOnce(t *testing.T) {
	svc, repo, dir, log, _ := setupService(t)
	pid := addPatient(dir, "Maria Lopez")

	rr, err := svc.Create(context.Background(), CreateParams{
		PatientID: pid, CreatedBy: "dr", Recipients: []string{"a@b.org"},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := svc.Resolve(context.Background(), rr.ID, "dr.gomez"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	got, _ := repo.GetByID(context.Background(), rr.ID)
	if got.Status != StatusResolved || got.ResolvedAt == nil {
		t.Fatalf("status = %s resolvedAt = %v, want resolved with timestamp", got.Status, got.ResolvedAt)
	}
	first := *got.ResolvedAt

	err = svc.Resolve(context.Background(), rr.ID, "dr.perez")
	if !errs.IsInvalidState(err) {
		t.Errorf("second resolve err = %v, want invalid state", err)
	}
	got, _ = repo.GetByID(context.Background(), rr.ID)
	if !got.ResolvedAt.Equal(first) {
		t.Errorf("resolvedAt changed on failed resolve")
	}

	entries, _ := log.Query(context.Background(), audit.Filter{Action: audit.ActionReviewResolved})
	if len(entries) != 1 {
		t.Errorf("resolve audit entries = %d, want 1", len(entries))
	}
}

func TestResolveConcurrent(t *testing.T) {
	svc, _, dir, _, _ := setupService(t)
	pid := addPatient(dir, "Maria Lopez")

	rr, err := svc.Create(context.Background(), CreateParams{
		PatientID: pid, CreatedBy: "dr", Recipients: []string{"a@b.org"},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	const callers = 8
	errCh := make(chan error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errCh <- svc.Resolve(context.Background(), rr.ID, "dr")
		}()
	}
	wg.Wait()
	close(errCh)

	ok, conflicts := 0, 0
	for err := range errCh {
		switch {
		case err == nil:
			ok++
		case errs.IsInvalidState(err):
			conflicts++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 || conflicts != callers-1 {
		t.Errorf("ok = %d conflicts = %d, want exactly one winner", ok, conflicts)
	}
}

func TestAddComment(t *testing.T) {
	svc, _, dir, log, _ := setupService(t)
	pid := addPatient(dir, "Maria Lopez")

	rr, err := svc.Create(context.Background(), CreateParams{
		PatientID: pid, CreatedBy: "dr", Recipients: []string{"a@b.org"},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := svc.AddComment(context.Background(), rr.ID, "dr.gomez", "  "); !errs.IsValidation(err) {
		t.Errorf("blank comment err = %v, want validation", err)
	}
	if _, err := svc.AddComment(context.Background(), uuid.New(), "dr.gomez", "hola"); !errs.IsNotFound(err) {
		t.Errorf("unknown review err = %v, want not found", err)
	}

	for _, msg := range []string{"first", "second", "third"} {
		if _, err := svc.AddComment(context.Background(), rr.ID, "dr.gomez", msg); err != nil {
			t.Fatalf("AddComment(%s): %v", msg, err)
		}
	}

	comments, err := svc.ListComments(context.Background(), rr.ID)
	if err != nil {
		t.Fatalf("ListComments: %v", err)
	}
	if len(comments) != 3 {
		t.Fatalf("comments = %d, want 3", len(comments))
	}
	for i, want := range []string{"first", "second", "third"} {
		if comments[i].Message != want {
			t.Errorf("comment[%d] = %s, want %s", i, comments[i].Message, want)
		}
	}

	entries, _ := log.Query(context.Background(), audit.Filter{Action: audit.ActionReviewCommented})
	if len(entries) != 3 {
		t.Errorf("comment audit entries = %d, want 3", len(entries))
	}
}

func TestCommentOnResolvedReview(t *testing.T) {
	svc, _, dir, _, _ := setupService(t)
	pid := addPatient(dir, "Maria Lopez")

	rr, err := svc.Create(context.Background(), CreateParams{
		PatientID: pid, CreatedBy: "dr", Recipients: []string{"a@b.org"},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := svc.Resolve(context.Background(), rr.ID, "dr"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	// Resolution does not lock the thread.
	if _, err := svc.AddComment(context.Background(), rr.ID, "dr.gomez", "post-resolution note"); err != nil {
		t.Errorf("comment on resolved review: %v", err)
	}
}

func TestNotificationFailureIsAuditedNotFatal(t *testing.T) {
	repo := newMockRepo()
	dir := newMockDirectory()
	log := audit.NewLog(audit.NewMemStore())
	svc := NewService(repo, dir, log)
	sender := &notify.MockEmailSender{FailFor: map[string]bool{"down@b.org": true}}
	svc.SetNotifier(notify.NewDispatcher(sender), notify.NewTemplateEngine(), "http://comite.local")

	pid := addPatient(dir, "Maria Lopez")
	rr, err := svc.Create(context.Background(), CreateParams{
		PatientID:  pid,
		CreatedBy:  "dr",
		Recipients: []string{"up@b.org", "down@b.org", "also-up@b.org"},
	})
	if err != nil {
		t.Fatalf("Create should succeed despite send failure: %v", err)
	}

	// Every recipient was attempted.
	if calls := sender.Calls(); len(calls) != 3 {
		t.Errorf("calls = %d, want 3", len(calls))
	}

	entries, _ := log.Query(context.Background(), audit.Filter{Action: audit.ActionNotificationError})
	if len(entries) != 1 {
		t.Fatalf("notification error entries = %d, want 1", len(entries))
	}
	if entries[0].Actor != "system" {
		t.Errorf("actor = %s, want system", entries[0].Actor)
	}
	if entries[0].Target != "review/"+rr.ID.String() {
		t.Errorf("target = %s", entries[0].Target)
	}
}

func TestCountPending(t *testing.T) {
	svc, _, dir, _, _ := setupService(t)
	pid := addPatient(dir, "Maria Lopez")

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		rr, err := svc.Create(context.Background(), CreateParams{
			PatientID: pid, CreatedBy: "dr", Recipients: []string{"a@b.org"},
		})
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		ids = append(ids, rr.ID)
	}

	n, err := svc.CountPending(context.Background())
	if err != nil || n != 3 {
		t.Fatalf("CountPending = %d, %v; want 3", n, err)
	}

	if err := svc.Resolve(context.Background(), ids[0], "dr"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	n, _ = svc.CountPending(context.Background())
	if n != 2 {
		t.Errorf("CountPending after resolve = %d, want 2", n)
	}
}
