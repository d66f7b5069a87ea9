// Package codes issues and redeems single-use, expiring codes.
package codes

import (
	"time"

	apperrors "github.com/jrsteele09/go-identity-server/internal/errors"
)

type Type string

const (
	TypeEmailVerification       Type = "email_verification"
	TypeOTP                     Type = "otp"
	TypeAuthorization           Type = "authorization_code"
	TypeEmailChangeRequest      Type = "email_change_request"
	TypeEmailChangeVerification Type = "email_change_verification"
)

// Numeric reports whether values of this type are short digit codes a user
// types in, rather than long opaque tokens.
func (t Type) Numeric() bool {
	return t == TypeOTP || t == TypeEmailVerification || t == TypeEmailChangeVerification
}

// Code is the stored form of an issued code. ID is the SHA-256 of the value;
// the value itself is never stored.
type Code struct {
	TenantID      string
	ID            string
	Type          Type
	Subject       string
	CorrelationID string
	Payload       map[string]string
	CreatedAt     time.Time
	ExpiresAt     time.Time
	UsedAt        *time.Time
}

func (c *Code) Used() bool {
	return c.UsedAt != nil
}

func (c *Code) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// Check evaluates redemption preconditions without changing anything.
func (c *Code) Check(expectedSubject string, now time.Time) error {
	if c.Used() {
		return ErrAlreadyUsed
	}
	if c.Expired(now) {
		return ErrExpired
	}
	if expectedSubject != "" && c.Subject != expectedSubject {
		return ErrSubjectMismatch
	}
	return nil
}

// CheckPair evaluates an email-change request and its verification code.
// The request must exist and both must belong to the same subject; a pair
// where only one code was used is reported as a broken state.
func CheckPair(request, verification *Code, now time.Time) error {
	if request == nil {
		return ErrUnresolvedRequest
	}
	if verification.CorrelationID != request.ID || verification.Subject != request.Subject {
		return ErrSubjectMismatch
	}
	switch {
	case request.Used() && verification.Used():
		return ErrAlreadyUsed
	case request.Used() != verification.Used():
		return ErrPartiallyConsumed
	}
	if request.Expired(now) || verification.Expired(now) {
		return ErrExpired
	}
	return nil
}

var (
	ErrInvalidCode       = apperrors.New(apperrors.KindInvalid, "invalid code")
	ErrAlreadyUsed       = apperrors.New(apperrors.KindAlreadyUsed, "code already used")
	ErrExpired           = apperrors.New(apperrors.KindExpired, "code expired")
	ErrSubjectMismatch   = apperrors.New(apperrors.KindMismatch, "code does not belong to the subject")
	ErrUnresolvedRequest = apperrors.New(apperrors.KindMismatch, "change request could not be resolved")
	ErrPartiallyConsumed = apperrors.New(apperrors.KindInvalidState, "correlated codes are partially consumed")
	ErrCodeExists        = apperrors.New(apperrors.KindInvalidState, "code collision")
)

// Ref addresses a stored code.
type Ref struct {
	Type Type
	ID   string
}
