package users

import (
	"strings"
	"time"

	apperrors "github.com/jrsteele09/go-identity-server/internal/errors"
)

// Identity is one way of proving who the user is: a connection plus the
// subject id that connection knows the user by.
type Identity struct {
	ConnectionID string         `json:"connection_id,omitempty"`
	Provider     string         `json:"provider"` // strategy name, e.g. "password", "email", "google-oauth2"
	SubjectID    string         `json:"subject_id"`
	Primary      bool           `json:"primary,omitempty"`
	Social       bool           `json:"social,omitempty"`
	ProfileData  map[string]any `json:"profile_data,omitempty"`
	LinkedAt     time.Time      `json:"linked_at,omitempty"`
}

// Ref returns the identifying pair of the identity.
func (i Identity) Ref() IdentityRef {
	return IdentityRef{Provider: i.Provider, SubjectID: i.SubjectID}
}

// IdentityRef identifies an identity without its profile data.
type IdentityRef struct {
	Provider  string `json:"provider"`
	SubjectID string `json:"subject_id"`
}

func (r IdentityRef) Empty() bool {
	return r.Provider == "" && r.SubjectID == ""
}

type User struct {
	ID            string     `json:"id,omitempty"`
	TenantID      string     `json:"tenant_id,omitempty"`
	Email         string     `json:"email,omitempty"`
	EmailVerified bool       `json:"email_verified,omitempty"`
	PhoneNumber   string     `json:"phone_number,omitempty"`
	PhoneVerified bool       `json:"phone_verified,omitempty"`
	Username      string     `json:"username,omitempty"`
	FirstName     string     `json:"first_name,omitempty"`
	LastName      string     `json:"last_name,omitempty"`
	Picture       string     `json:"picture,omitempty"`
	Identities    []Identity `json:"identities,omitempty"`
	Blocked       bool       `json:"blocked,omitempty"`
	CreatedAt     time.Time  `json:"created_at,omitempty"`
	LastLogin     time.Time  `json:"last_login,omitempty"`
	LoginCount    int        `json:"login_count,omitempty"`
}

var (
	ErrPrimaryIdentity     = apperrors.New(apperrors.KindInvalidState, "the primary identity cannot be unlinked")
	ErrCurrentIdentity     = apperrors.New(apperrors.KindInvalidState, "the identity used for the current session cannot be unlinked")
	ErrIdentityNotLinked   = apperrors.New(apperrors.KindNotFound, "identity is not linked to the user")
	ErrIdentityAlreadyUsed = apperrors.New(apperrors.KindMismatch, "identity is linked to another user")
)

// NormaliseEmail lower-cases and trims an email address.
func NormaliseEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Name returns the display name of the user.
func (u *User) Name() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// PrimaryIdentity returns the user's primary identity, if any.
func (u *User) PrimaryIdentity() (Identity, bool) {
	for _, i := range u.Identities {
		if i.Primary {
			return i, true
		}
	}
	return Identity{}, false
}

// FindIdentity returns the linked identity matching ref.
func (u *User) FindIdentity(ref IdentityRef) (Identity, bool) {
	for _, i := range u.Identities {
		if i.Ref() == ref {
			return i, true
		}
	}
	return Identity{}, false
}

// HasProvider reports whether the user has any identity from provider.
func (u *User) HasProvider(provider string) bool {
	for _, i := range u.Identities {
		if i.Provider == provider {
			return true
		}
	}
	return false
}

// AddIdentity links an identity. The first identity becomes primary; any
// later one is secondary regardless of the Primary flag passed in.
func (u *User) AddIdentity(identity Identity) {
	if _, ok := u.FindIdentity(identity.Ref()); ok {
		return
	}
	_, hasPrimary := u.PrimaryIdentity()
	identity.Primary = !hasPrimary
	u.Identities = append(u.Identities, identity)
}

// Unlink removes a secondary identity. The primary identity and the identity
// that authenticated the current session are never removed.
func (u *User) Unlink(ref, current IdentityRef) error {
	idx := -1
	for i, id := range u.Identities {
		if id.Ref() == ref {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrIdentityNotLinked
	}
	if u.Identities[idx].Primary {
		return ErrPrimaryIdentity
	}
	if !current.Empty() && current == ref {
		return ErrCurrentIdentity
	}
	u.Identities = append(u.Identities[:idx:idx], u.Identities[idx+1:]...)
	return nil
}

// RecordLogin updates the login counters.
func (u *User) RecordLogin(at time.Time) {
	u.LastLogin = at
	u.LoginCount++
}
