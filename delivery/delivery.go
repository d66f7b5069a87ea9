// Package delivery hands one-time codes to whatever transport reaches the
// user. Transports themselves live outside this module.
package delivery

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

type Purpose string

const (
	PurposeLogin             Purpose = "login"
	PurposeEmailVerification Purpose = "email_verification"
	PurposeEmailChange       Purpose = "email_change"
)

// Message is a code addressed to a single recipient.
type Message struct {
	TenantID  string
	Channel   Channel
	To        string
	Code      string
	Purpose   Purpose
	ExpiresAt time.Time
}

type Sender interface {
	SendCode(ctx context.Context, msg Message) error
}

// LogSender writes codes to a logger instead of sending them. Development only.
type LogSender struct {
	logger zerolog.Logger
}

func NewLogSender(logger zerolog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) SendCode(_ context.Context, msg Message) error {
	s.logger.Info().
		Str("tenant_id", msg.TenantID).
		Str("channel", string(msg.Channel)).
		Str("to", msg.To).
		Str("purpose", string(msg.Purpose)).
		Str("code", msg.Code).
		Time("expires_at", msg.ExpiresAt).
		Msg("code delivery")
	return nil
}

// Recorder keeps every message it is asked to send. Err, when set, is
// returned instead and nothing is recorded.
type Recorder struct {
	Err error

	mu       sync.Mutex
	messages []Message
}

func (r *Recorder) SendCode(_ context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.messages = append(r.messages, msg)
	return nil
}

func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.messages))
	copy(out, r.messages)
	return out
}

// Last returns the most recent message, or false when none was sent.
func (r *Recorder) Last() (Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.messages) == 0 {
		return Message{}, false
	}
	return r.messages[len(r.messages)-1], true
}

func (r *Recorder) SetErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Err = err
}
