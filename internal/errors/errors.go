package errors

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can decide how to react without
// matching on message text.
type Kind string

const (
	KindNotFound          Kind = "not_found"
	KindInvalid           Kind = "invalid"
	KindInvalidState      Kind = "invalid_state"
	KindExpired           Kind = "expired"
	KindAlreadyUsed       Kind = "already_used"
	KindMismatch          Kind = "mismatch"
	KindInvalidCredential Kind = "invalid_credential"
	KindSuperseded        Kind = "superseded"
	KindDeliveryFailed    Kind = "delivery_failed"
	KindPasswordReused    Kind = "password_reused"
	KindStorage           Kind = "storage" // anything unclassified; the only fatal kind
)

// Error carries a Kind alongside a message and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error with the same Kind, so errors.Is(err, ErrExpired)
// holds for every expiry failure regardless of message.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels, one per kind.
var (
	ErrNotFound          = &Error{Kind: KindNotFound, Message: "not found"}
	ErrInvalid           = &Error{Kind: KindInvalid, Message: "invalid request"}
	ErrInvalidState      = &Error{Kind: KindInvalidState, Message: "invalid state"}
	ErrExpired           = &Error{Kind: KindExpired, Message: "expired"}
	ErrAlreadyUsed       = &Error{Kind: KindAlreadyUsed, Message: "already used"}
	ErrMismatch          = &Error{Kind: KindMismatch, Message: "mismatch"}
	ErrInvalidCredential = &Error{Kind: KindInvalidCredential, Message: "invalid credential"}
	ErrSuperseded        = &Error{Kind: KindSuperseded, Message: "superseded"}
	ErrDeliveryFailed    = &Error{Kind: KindDeliveryFailed, Message: "delivery failed"}
	ErrPasswordReused    = &Error{Kind: KindPasswordReused, Message: "password previously used"}
)

// New returns an *Error of the given kind.
func New(kind Kind, message string) error {
	return &Error{Kind: kind, Message: message}
}

// Newf returns an *Error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WithKind attaches a kind to an underlying cause.
func WithKind(kind Kind, cause error, message string) error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf reports the kind of the first *Error in err's chain. Errors without
// a kind are storage failures.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindStorage
}

// Retryable reports whether the caller may safely repeat the operation.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindInvalidCredential, KindMismatch, KindDeliveryFailed, KindInvalid, KindPasswordReused:
		return true
	}
	return false
}

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
