// Package notify provides recipient fan-out for reminder and review
// notifications. The concrete mail transport stays behind the EmailSender
// interface; the engine only depends on per-recipient outcomes.
package notify

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// EmailSender is the interface for sending a plain-text message to a single
// address.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// Outcome records the result of one recipient send.
type Outcome struct {
	Recipient string
	Err       error
}

// Dispatcher fans a message out to a set of recipients. Each send is
// independent: one slow or failing recipient never blocks the rest, and the
// outcomes are aggregated rather than short-circuited.
type Dispatcher struct {
	sender EmailSender
}

func NewDispatcher(sender EmailSender) *Dispatcher {
	return &Dispatcher{sender: sender}
}

// Send delivers subject/body to every recipient and returns one Outcome per
// recipient, in input order. An empty recipient set returns no outcomes and
// no error.
func (d *Dispatcher) Send(ctx context.Context, recipients []string, subject, body string) []Outcome {
	outcomes := make([]Outcome, len(recipients))
	for i, to := range recipients {
		outcomes[i] = Outcome{
			Recipient: to,
			Err:       d.sender.SendEmail(ctx, to, subject, body),
		}
	}
	return outcomes
}

// CollectRecipients deduplicates the given addresses preserving first-seen
// order and dropping blanks. Mirrors how the committee resolves a reminder's
// recipient set: patient address, then extra addresses, then the creating
// physician.
func CollectRecipients(groups ...[]string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, group := range groups {
		for _, addr := range group {
			cleaned := strings.TrimSpace(addr)
			if cleaned == "" || seen[cleaned] {
				continue
			}
			seen[cleaned] = true
			out = append(out, cleaned)
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Senders
// ---------------------------------------------------------------------------

// LogSender discards messages after logging them. Used when mail delivery is
// disabled; the original system behaves the same way without MAIL_SERVER set.
type LogSender struct {
	Logger zerolog.Logger
}

func (s *LogSender) SendEmail(_ context.Context, to, subject, _ string) error {
	s.Logger.Info().Str("to", to).Str("subject", subject).Msg("mail disabled, notification dropped")
	return nil
}

// EmailCall records a single call to SendEmail.
type EmailCall struct {
	To      string
	Subject string
	Body    string
}

// MockEmailSender is a test double for EmailSender.
type MockEmailSender struct {
	mu         sync.Mutex
	calls      []EmailCall
	ShouldFail bool
	FailError  string
	// FailFor lists recipients whose sends fail while the rest succeed.
	FailFor map[string]bool
}

// SendEmail records the call and optionally returns an error.
func (m *MockEmailSender) SendEmail(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, EmailCall{To: to, Subject: subject, Body: body})
	if m.ShouldFail || m.FailFor[to] {
		msg := m.FailError
		if msg == "" {
			msg = "send failed"
		}
		return errors.New(msg)
	}
	return nil
}

// Calls returns a copy of recorded email calls.
func (m *MockEmailSender) Calls() []EmailCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EmailCall, len(m.calls))
	copy(out, m.calls)
	return out
}
