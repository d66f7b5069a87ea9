// Package sessions manages long-lived authenticated sessions created when a
// login session completes.
package sessions

import (
	"time"

	apperrors "github.com/jrsteele09/go-identity-server/internal/errors"
	"github.com/jrsteele09/go-identity-server/users"
)

var (
	ErrNotFound = apperrors.New(apperrors.KindNotFound, "session not found")
	ErrInactive = apperrors.New(apperrors.KindInvalidState, "session is not active")
	ErrExists   = apperrors.New(apperrors.KindInvalidState, "session already exists")
)

// Device describes where a session was established.
type Device struct {
	UserAgent string
	IP        string
}

// Session is an authenticated user session. LoginSessionID is a weak
// reference: the login session may be deleted independently.
type Session struct {
	ID                string
	TenantID          string
	UserID            string
	LoginSessionID    string
	Clients           []string // clients that have joined through SSO, in join order
	Device            Device
	AuthMethods       []string
	Identity          users.IdentityRef // the identity that authenticated the session
	ImpersonatorID    string
	AuthenticatedAt   time.Time
	LastInteractionAt time.Time
	ExpiresAt         time.Time
	IdleExpiresAt     time.Time
	RevokedAt         *time.Time
}

// Active reports whether the session may still be used at now.
func (s *Session) Active(now time.Time) bool {
	if s.RevokedAt != nil {
		return false
	}
	if !now.Before(s.ExpiresAt) {
		return false
	}
	return s.IdleExpiresAt.IsZero() || now.Before(s.IdleExpiresAt)
}

func (s *Session) HasClient(clientID string) bool {
	for _, c := range s.Clients {
		if c == clientID {
			return true
		}
	}
	return false
}
