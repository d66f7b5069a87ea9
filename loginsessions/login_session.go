// Package loginsessions holds the state of an in-progress authentication
// conversation for one authorization request.
package loginsessions

import (
	"time"

	apperrors "github.com/jrsteele09/go-identity-server/internal/errors"
	"github.com/jrsteele09/go-identity-server/oauth2"
	"github.com/jrsteele09/go-identity-server/users"
)

// State is the top-level lifecycle of a LoginSession. Only StatePending may
// transition; the other three are terminal.
type State string

const (
	StatePending   State = "pending"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateExpired   State = "expired"
)

func (s State) Terminal() bool {
	return s != StatePending
}

// Step names the point the conversation has reached while still pending.
type Step string

const (
	StepIdentifier               Step = "identifier"
	StepAwaitingPassword         Step = "awaiting_password"
	StepAwaitingCode             Step = "awaiting_code"
	StepAwaitingLinkConfirmation Step = "awaiting_link_confirmation"
	StepDone                     Step = "done"
)

// Failure reasons recorded when a session transitions to failed.
const (
	FailureTooManyAttempts   = "too_many_attempts"
	FailureUnlinkableAccount = "unlinkable_account"
	FailureUserBlocked       = "user_blocked"
)

var (
	ErrNotFound = apperrors.New(apperrors.KindNotFound, "login session not found")
	ErrTerminal = apperrors.New(apperrors.KindInvalidState, "login session is no longer pending")
	ErrConflict = apperrors.New(apperrors.KindInvalidState, "login session was modified concurrently")
	ErrExpired  = apperrors.New(apperrors.KindExpired, "login session expired")
)

// AuthParams are the authorization request parameters the session was
// created for.
type AuthParams struct {
	ClientID            string                  `json:"client_id"`
	RedirectURI         string                  `json:"redirect_uri"`
	ResponseType        oauth2.ResponseType     `json:"response_type"`
	ResponseMode        oauth2.ResponseModeType `json:"response_mode,omitempty"`
	Scope               string                  `json:"scope,omitempty"`
	Nonce               string                  `json:"nonce,omitempty"`
	State               string                  `json:"state,omitempty"`
	CodeChallenge       string                  `json:"code_challenge,omitempty"`
	CodeChallengeMethod oauth2.CodeMethodType   `json:"code_challenge_method,omitempty"`
	Organization        string                  `json:"organization,omitempty"`
	Prompt              string                  `json:"prompt,omitempty"`
	MaxAge              *time.Duration          `json:"max_age,omitempty"`
	ACRValues           string                  `json:"acr_values,omitempty"`
	LoginHint           string                  `json:"login_hint,omitempty"`
}

// LinkCandidate is an external identity waiting to be linked to an existing
// account whose verified email matched.
type LinkCandidate struct {
	UserID   string         `json:"user_id"`
	Identity users.Identity `json:"identity"`
}

// StateData is step-local progress. It never adds top-level states.
type StateData struct {
	Step           Step              `json:"step"`
	ConnectionID   string            `json:"connection_id,omitempty"`
	Identifier     string            `json:"identifier,omitempty"`
	UserID         string            `json:"user_id,omitempty"`
	Attempts       int               `json:"attempts,omitempty"`
	CodeID         string            `json:"code_id,omitempty"`
	CodeExpiresAt  *time.Time        `json:"code_expires_at,omitempty"`
	LinkCandidate  *LinkCandidate    `json:"link_candidate,omitempty"`
	ImpersonatorID string            `json:"impersonator_id,omitempty"`
	SSOSessionID   string            `json:"sso_session_id,omitempty"`
	AuthMethod     string            `json:"auth_method,omitempty"`
	Identity       users.IdentityRef `json:"identity,omitempty"`
}

type LoginSession struct {
	ID            string
	TenantID      string
	AuthParams    AuthParams
	State         State
	StateData     StateData
	FailureReason string
	CSRFToken     string
	SessionID     string
	UserID        string
	Version       int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
	ExpiresAt     time.Time
}

// EffectiveState is the state as of now: a pending session past its expiry
// is expired even if no write has recorded it yet.
func (ls *LoginSession) EffectiveState(now time.Time) State {
	if ls.State == StatePending && !now.Before(ls.ExpiresAt) {
		return StateExpired
	}
	return ls.State
}

// Transition moves a pending session to a terminal state.
func (ls *LoginSession) Transition(to State, reason string, now time.Time) error {
	if ls.State.Terminal() {
		return ErrTerminal
	}
	ls.State = to
	ls.FailureReason = reason
	ls.UpdatedAt = now
	return nil
}

// ErrorForState maps a terminal state to the error reported to the caller.
func ErrorForState(s State) error {
	switch s {
	case StatePending:
		return nil
	case StateExpired:
		return ErrExpired
	}
	return ErrTerminal
}
