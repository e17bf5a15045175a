// Package audit provides the append-only audit trail of sensitive actions.
// Entries carry a strictly increasing, gap-free sequence number assigned by a
// single serialized writer; the log is never updated or truncated during
// normal operation.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/comitetoraxvm/comite-torax/internal/platform/errs"
)

// Action kinds recorded by the workflow engine.
const (
	ActionReviewCreated     = "review_created"
	ActionReviewCommented   = "review_commented"
	ActionReviewResolved    = "review_resolved"
	ActionReminderCreated   = "reminder_created"
	ActionReminderCompleted = "reminder_completed"
	ActionFollowupCreated   = "followup_created"
	ActionFollowupCompleted = "followup_completed"
	ActionFollowupDeleted   = "followup_deleted"
	ActionPatientDeleted    = "patient_deleted"
	ActionNotificationError = "notification_error"
	ActionBackupCreated     = "backup_created"
)

// Entry is one immutable audit record.
type Entry struct {
	Seq    int64     `json:"seq"`
	At     time.Time `json:"at"`
	Actor  string    `json:"actor"`
	Action string    `json:"action"`
	Target string    `json:"target"`
	Detail string    `json:"detail,omitempty"`
}

// Filter selects entries for Query. Zero fields match everything.
type Filter struct {
	Actor    string
	Action   string
	Target   string
	SinceSeq int64 // entries with Seq > SinceSeq
	Limit    int   // 0 = no limit
}

// Store persists entries. Insert is only ever called by the Log's serialized
// writer, so implementations do not need their own sequencing.
type Store interface {
	Insert(ctx context.Context, e *Entry) error
	LastSeq(ctx context.Context) (int64, error)
	Query(ctx context.Context, f Filter) ([]*Entry, error)
}

// Log is the append-only audit log. Construct one per process and inject it;
// there is no ambient global instance.
type Log struct {
	mu     sync.Mutex
	store  Store
	last   int64
	seeded bool
}

func NewLog(store Store) *Log {
	return &Log{store: store}
}

// Append records an action with the next sequence number and the current
// timestamp. Calls are fully serialized: concurrent callers never observe or
// produce duplicate sequence numbers, and timestamps of entries appended here
// are non-decreasing in sequence order.
func (l *Log) Append(ctx context.Context, actor, action, target, detail string) (*Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.seeded {
		last, err := l.store.LastSeq(ctx)
		if err != nil {
			return nil, errs.Storagef(err, "seed audit sequence")
		}
		l.last = last
		l.seeded = true
	}

	e := &Entry{
		Seq:    l.last + 1,
		At:     time.Now().UTC(),
		Actor:  actor,
		Action: action,
		Target: target,
		Detail: detail,
	}
	if err := l.store.Insert(ctx, e); err != nil {
		// The sequence number is not advanced, so the next append reuses it
		// and the log stays gap-free.
		return nil, errs.Storagef(err, "append audit entry")
	}
	l.last = e.Seq
	return e, nil
}

// Query returns matching entries in sequence order. It never mutates state
// and can be re-called freely.
func (l *Log) Query(ctx context.Context, f Filter) ([]*Entry, error) {
	entries, err := l.store.Query(ctx, f)
	if err != nil {
		return nil, errs.Storagef(err, "query audit entries")
	}
	return entries, nil
}
