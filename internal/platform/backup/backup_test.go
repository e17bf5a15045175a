package backup

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/comitetoraxvm/comite-torax/internal/platform/audit"
)

// mutableState is a StateFunc whose payload tests can swap.
type mutableState struct {
	mu    sync.Mutex
	data  []byte
	calls int
}

func (s *mutableState) fn(context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	out := make([]byte, len(s.data))
	copy(out, s.data)
	return out, nil
}

func (s *mutableState) set(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = data
}

func newTestManager(t *testing.T, retention int, state *mutableState) (*Manager, *audit.Log) {
	t.Helper()
	log := audit.NewLog(audit.NewMemStore())
	m, err := NewManager(t.TempDir(), retention, state.fn, log, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m, log
}

func TestFirstCommitPublishesSnapshot(t *testing.T) {
	state := &mutableState{data: []byte(`{"patients":[]}`)}
	m, log := newTestManager(t, 5, state)

	if err := m.OnCommit(context.Background()); err != nil {
		t.Fatalf("OnCommit: %v", err)
	}

	latest, err := m.Latest()
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if latest == nil {
		t.Fatal("no snapshot published")
	}
	wantFP := fmt.Sprintf("%x", sha256.Sum256(state.data))
	if latest.Fingerprint != wantFP {
		t.Errorf("fingerprint = %s, want %s", latest.Fingerprint, wantFP)
	}

	content, err := os.ReadFile(latest.Path)
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if string(content) != `{"patients":[]}` {
		t.Errorf("snapshot content = %q", content)
	}

	entries, _ := log.Query(context.Background(), audit.Filter{Action: audit.ActionBackupCreated})
	if len(entries) != 1 {
		t.Errorf("backup audit entries = %d, want 1", len(entries))
	}
}

func TestUnchangedStateSkipsSnapshot(t *testing.T) {
	state := &mutableState{data: []byte("v1")}
	m, _ := newTestManager(t, 5, state)

	for i := 0; i < 3; i++ {
		if err := m.OnCommit(context.Background()); err != nil {
			t.Fatalf("OnCommit: %v", err)
		}
	}

	snaps, err := m.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(snaps) != 1 {
		t.Errorf("snapshots = %d, want 1: identical state must not re-snapshot", len(snaps))
	}
}

func TestChangedStatePublishesNewSnapshot(t *testing.T) {
	state := &mutableState{data: []byte("v1")}
	m, _ := newTestManager(t, 5, state)

	if err := m.OnCommit(context.Background()); err != nil {
		t.Fatalf("OnCommit v1: %v", err)
	}
	state.set([]byte("v2"))
	if err := m.OnCommit(context.Background()); err != nil {
		t.Fatalf("OnCommit v2: %v", err)
	}

	snaps, _ := m.List()
	if len(snaps) != 2 {
		t.Fatalf("snapshots = %d, want 2", len(snaps))
	}
	// Newest first.
	latest, _ := m.Latest()
	wantFP := fmt.Sprintf("%x", sha256.Sum256([]byte("v2")))
	if latest.Fingerprint != wantFP {
		t.Errorf("latest fingerprint = %s, want v2", latest.Fingerprint)
	}
}

func TestRetentionPrunesOldest(t *testing.T) {
	state := &mutableState{}
	m, _ := newTestManager(t, 2, state)

	for i := 0; i < 4; i++ {
		state.set([]byte(fmt.Sprintf("v%d", i)))
		if err := m.OnCommit(context.Background()); err != nil {
			t.Fatalf("OnCommit: %v", err)
		}
	}

	snaps, err := m.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(snaps) != 2 {
		t.Fatalf("snapshots = %d, want retention 2", len(snaps))
	}
	wantFP := fmt.Sprintf("%x", sha256.Sum256([]byte("v3")))
	if snaps[0].Fingerprint != wantFP {
		t.Errorf("newest snapshot is not the latest state")
	}
}

func TestListIgnoresTempAndForeignFiles(t *testing.T) {
	state := &mutableState{data: []byte("v1")}
	log := audit.NewLog(audit.NewMemStore())
	dir := t.TempDir()
	m, err := NewManager(dir, 5, state.fn, log, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	if err := m.OnCommit(context.Background()); err != nil {
		t.Fatalf("OnCommit: %v", err)
	}

	// A crash mid-write leaves a temp file; foreign files may also appear.
	for _, name := range []string{
		tempPrefix + "123456",
		"README.txt",
		"comite_garbage.snap",
		"comite_20260828_120000.000000000_deadbeef.snap", // short fingerprint
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	snaps, err := m.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(snaps) != 1 {
		t.Errorf("snapshots = %d, want 1: non-snapshot files must be ignored", len(snaps))
	}
}

func TestParseSnapshotName(t *testing.T) {
	fp := fmt.Sprintf("%x", sha256.Sum256([]byte("x")))
	name := snapshotPrefix + "20260828_120000.000000001_" + fp + snapshotSuffix

	s, ok := parseSnapshotName(name)
	if !ok {
		t.Fatalf("parseSnapshotName(%q) failed", name)
	}
	if s.Fingerprint != fp {
		t.Errorf("fingerprint = %s", s.Fingerprint)
	}
	want := time.Date(2026, 8, 28, 12, 0, 0, 1, time.UTC)
	if !s.CreatedAt.Equal(want) {
		t.Errorf("createdAt = %v, want %v", s.CreatedAt, want)
	}
}

func TestOnCommitCoalescesConcurrentTriggers(t *testing.T) {
	state := &mutableState{data: []byte("v1")}
	m, _ := newTestManager(t, 5, state)

	const triggers = 10
	var wg sync.WaitGroup
	for i := 0; i < triggers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := m.OnCommit(context.Background()); err != nil {
				t.Errorf("OnCommit: %v", err)
			}
		}()
	}
	wg.Wait()

	snaps, _ := m.List()
	if len(snaps) != 1 {
		t.Errorf("snapshots = %d, want 1 for identical state", len(snaps))
	}
}

func TestNewManagerRejectsBadRetention(t *testing.T) {
	state := &mutableState{}
	if _, err := NewManager(t.TempDir(), 0, state.fn, nil, zerolog.Nop()); err == nil {
		t.Error("retention 0 must be rejected")
	}
}
