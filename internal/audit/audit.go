// Package audit reports security-relevant events.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/jrsteele09/go-identity-server/internal/metrics"
	"github.com/rs/zerolog"
)

type EventType string

const (
	EventRefreshTokenReuse   EventType = "refresh_token_reuse"
	EventLoginFailed         EventType = "login_failed"
	EventImpersonation       EventType = "impersonation"
	EventIdentityUnlinked    EventType = "identity_unlinked"
	EventEmailChanged        EventType = "email_changed"
	EventPartialConsumption  EventType = "partial_code_consumption"
	EventSessionFamilyRevoke EventType = "session_family_revoked"
)

// Event is a single security event.
type Event struct {
	Type      EventType
	TenantID  string
	UserID    string
	ClientID  string
	SessionID string
	TokenID   string
	Detail    string
	At        time.Time
}

// Reporter receives security events. Implementations must not block callers
// for long; reporting failures are never surfaced to the caller.
type Reporter interface {
	Report(ctx context.Context, event Event)
}

// LogReporter writes events to a zerolog logger and counts them.
type LogReporter struct {
	logger zerolog.Logger
}

func NewLogReporter(logger zerolog.Logger) *LogReporter {
	return &LogReporter{logger: logger}
}

func (r *LogReporter) Report(_ context.Context, e Event) {
	metrics.RecordSecurityEvent(string(e.Type))
	r.logger.Warn().
		Str("event", string(e.Type)).
		Str("tenant_id", e.TenantID).
		Str("user_id", e.UserID).
		Str("client_id", e.ClientID).
		Str("session_id", e.SessionID).
		Str("token_id", e.TokenID).
		Time("at", e.At).
		Msg(e.Detail)
}

// Recorder keeps events in memory. Used by tests.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Report(_ context.Context, e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfType returns the recorded events of type t.
func (r *Recorder) OfType(t EventType) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// Nop discards events.
type Nop struct{}

func (Nop) Report(context.Context, Event) {}
