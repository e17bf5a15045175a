// Package backup produces point-in-time snapshots of the clinical record
// store. A snapshot is created only when the content fingerprint of the live
// state differs from the most recent snapshot, and is fully materialized
// before it becomes visible to restore logic (write-then-publish).
package backup

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/comitetoraxvm/comite-torax/internal/platform/audit"
)

const (
	snapshotPrefix = "comite_"
	snapshotSuffix = ".snap"
	tempPrefix     = ".tmp-"
	timeLayout     = "20060102_150405.000000000"
)

// StateFunc serializes the relevant persisted state of the record store for
// fingerprinting and archiving.
type StateFunc func(ctx context.Context) ([]byte, error)

// Snapshot describes one published backup artifact.
type Snapshot struct {
	Name        string    `json:"name"`
	Path        string    `json:"path"`
	Fingerprint string    `json:"fingerprint"`
	CreatedAt   time.Time `json:"created_at"`
}

// Manager observes record-store commits and maintains the snapshot directory.
// OnCommit invocations are single-flight: a trigger arriving while a snapshot
// operation is in progress is coalesced into one follow-up check.
type Manager struct {
	dir       string
	retention int
	source    StateFunc
	log       *audit.Log // optional
	logger    zerolog.Logger

	mu       sync.Mutex
	inflight bool
	pending  bool
}

func NewManager(dir string, retention int, source StateFunc, log *audit.Log, logger zerolog.Logger) (*Manager, error) {
	if retention < 1 {
		return nil, fmt.Errorf("backup retention must be at least 1, got %d", retention)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create backup dir %s: %w", dir, err)
	}
	return &Manager{
		dir:       dir,
		retention: retention,
		source:    source,
		log:       log,
		logger:    logger,
	}, nil
}

// OnCommit is the record store's commit hook. It fingerprints the live state
// and publishes a new snapshot when the state changed. Concurrent triggers
// coalesce: at most one snapshot operation runs at a time, followed by a
// single recheck for triggers that arrived meanwhile.
func (m *Manager) OnCommit(ctx context.Context) error {
	m.mu.Lock()
	if m.inflight {
		m.pending = true
		m.mu.Unlock()
		return nil
	}
	m.inflight = true
	m.mu.Unlock()

	var err error
	for {
		err = m.check(ctx)

		m.mu.Lock()
		if m.pending {
			m.pending = false
			m.mu.Unlock()
			continue
		}
		m.inflight = false
		m.mu.Unlock()
		return err
	}
}

func (m *Manager) check(ctx context.Context) error {
	state, err := m.source(ctx)
	if err != nil {
		return fmt.Errorf("read store state: %w", err)
	}
	fp := fmt.Sprintf("%x", sha256.Sum256(state))

	latest, err := m.Latest()
	if err != nil {
		return err
	}
	if latest != nil && latest.Fingerprint == fp {
		return nil
	}

	snap, err := m.publish(state, fp)
	if err != nil {
		return err
	}
	m.logger.Info().Str("snapshot", snap.Name).Msg("backup created")
	if m.log != nil {
		if _, aerr := m.log.Append(ctx, "system", audit.ActionBackupCreated, snap.Name, "fingerprint "+fp[:12]); aerr != nil {
			m.logger.Warn().Err(aerr).Msg("backup audit entry failed")
		}
	}

	m.prune()
	return nil
}

// publish writes the snapshot to a temporary file, syncs it, and renames it
// into place. A crash mid-write never leaves a partial snapshot reachable:
// temp files do not match the snapshot name pattern and are ignored by List.
func (m *Manager) publish(state []byte, fp string) (*Snapshot, error) {
	now := time.Now().UTC()
	name := snapshotPrefix + now.Format(timeLayout) + "_" + fp + snapshotSuffix

	tmp, err := os.CreateTemp(m.dir, tempPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(state); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("close snapshot: %w", err)
	}

	final := filepath.Join(m.dir, name)
	if err := os.Rename(tmpName, final); err != nil {
		return nil, fmt.Errorf("publish snapshot: %w", err)
	}

	return &Snapshot{Name: name, Path: final, Fingerprint: fp, CreatedAt: now}, nil
}

// prune removes snapshots beyond the retention count, oldest first. Pruning
// failures are logged, not fatal.
func (m *Manager) prune() {
	snaps, err := m.List()
	if err != nil {
		m.logger.Warn().Err(err).Msg("backup prune: list failed")
		return
	}
	if len(snaps) <= m.retention {
		return
	}
	// List returns newest first; everything past retention goes.
	for _, s := range snaps[m.retention:] {
		if err := os.Remove(s.Path); err != nil {
			m.logger.Warn().Err(err).Str("snapshot", s.Name).Msg("backup prune failed")
		}
	}
}

// List returns published snapshots, newest first. Temp files and foreign
// files in the directory are ignored.
func (m *Manager) List() ([]*Snapshot, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("read backup dir: %w", err)
	}

	var snaps []*Snapshot
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		s, ok := parseSnapshotName(e.Name())
		if !ok {
			continue
		}
		s.Path = filepath.Join(m.dir, e.Name())
		snaps = append(snaps, s)
	}

	sort.Slice(snaps, func(i, j int) bool {
		return snaps[i].Name > snaps[j].Name
	})
	return snaps, nil
}

// Latest returns the most recent published snapshot, or nil when none exists.
func (m *Manager) Latest() (*Snapshot, error) {
	snaps, err := m.List()
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return nil, nil
	}
	return snaps[0], nil
}

func parseSnapshotName(name string) (*Snapshot, bool) {
	if !strings.HasPrefix(name, snapshotPrefix) || !strings.HasSuffix(name, snapshotSuffix) {
		return nil, false
	}
	core := strings.TrimSuffix(strings.TrimPrefix(name, snapshotPrefix), snapshotSuffix)
	// <timestamp>_<fingerprint>; the timestamp itself contains one underscore.
	idx := strings.LastIndex(core, "_")
	if idx < 0 {
		return nil, false
	}
	ts, fp := core[:idx], core[idx+1:]
	if len(fp) != sha256.Size*2 {
		return nil, false
	}
	at, err := time.Parse(timeLayout, ts)
	if err != nil {
		return nil, false
	}
	return &Snapshot{Name: name, Fingerprint: fp, CreatedAt: at}, true
}
