// Package refresh issues refresh tokens and redeems them, rotating the ones
// whose client asks for rotation.
package refresh

import (
	"strings"
	"time"

	apperrors "github.com/jrsteele09/go-identity-server/internal/errors"
)

var (
	ErrInvalidToken = apperrors.New(apperrors.KindInvalid, "invalid refresh token")
	ErrRevoked      = apperrors.New(apperrors.KindInvalid, "refresh token revoked")
	ErrExpired      = apperrors.New(apperrors.KindExpired, "refresh token expired")
	ErrSuperseded   = apperrors.New(apperrors.KindSuperseded, "refresh token was already rotated")
	ErrTokenExists  = apperrors.New(apperrors.KindInvalidState, "refresh token id already exists")
)

// ReuseError is returned when a rotated-away token is presented. It names
// the session whose tokens were revoked and matches ErrSuperseded.
type ReuseError struct {
	SessionID string
}

func (e *ReuseError) Error() string {
	return ErrSuperseded.Error()
}

func (e *ReuseError) Unwrap() error {
	return ErrSuperseded
}

// Token is the stored form of a refresh token. Only the hash of the secret
// half is kept.
type Token struct {
	ID            string
	TenantID      string
	SessionID     string
	ClientID      string
	UserID        string
	SecretHash    string
	Rotating      bool
	Scope         string
	Audience      string
	Organization  string
	CreatedAt     time.Time
	ExpiresAt     time.Time
	IdleExpiresAt time.Time // zero when there is no idle limit
	LastUsedAt    time.Time
	SupersededBy  string
	RevokedAt     *time.Time
}

func (t *Token) Superseded() bool {
	return t.SupersededBy != ""
}

func (t *Token) Revoked() bool {
	return t.RevokedAt != nil
}

// Expired applies both the absolute and the idle expiry.
func (t *Token) Expired(now time.Time) bool {
	if !now.Before(t.ExpiresAt) {
		return true
	}
	return !t.IdleExpiresAt.IsZero() && !now.Before(t.IdleExpiresAt)
}

// Check evaluates redemption preconditions in the order superseded, revoked,
// expired. A rotated-away token stays superseded after its family is revoked,
// so every replay of it is reported as reuse. It does not look at the secret.
func (t *Token) Check(now time.Time) error {
	switch {
	case t.Superseded():
		return ErrSuperseded
	case t.Revoked():
		return ErrRevoked
	case t.Expired(now):
		return ErrExpired
	}
	return nil
}

// FormatValue builds the wire value handed to the client.
func FormatValue(id, secret string) string {
	return id + "." + secret
}

// ParseValue splits a wire value into id and secret.
func ParseValue(value string) (id, secret string, err error) {
	id, secret, ok := strings.Cut(value, ".")
	if !ok || id == "" || secret == "" {
		return "", "", ErrInvalidToken
	}
	return id, secret, nil
}
