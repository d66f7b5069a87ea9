package auth

import apperrors "github.com/jrsteele09/go-identity-server/internal/errors"

var (
	ErrCSRFMismatch         = apperrors.New(apperrors.KindMismatch, "csrf token does not match the login session")
	ErrUnknownStep          = apperrors.New(apperrors.KindInvalidState, "unsupported login step")
	ErrUnexpectedStep       = apperrors.New(apperrors.KindInvalidState, "step not valid at this point of the login")
	ErrUnsupportedStrategy  = apperrors.New(apperrors.KindInvalidState, "connection strategy is not supported")
	ErrNoConnection         = apperrors.New(apperrors.KindInvalid, "no enabled connection accepts this identifier")
	ErrConnectionNotEnabled = apperrors.New(apperrors.KindInvalid, "connection is not enabled for the client")
	ErrUserBlocked          = apperrors.New(apperrors.KindInvalidState, "user is blocked")
	ErrUnlinkableAccount    = apperrors.New(apperrors.KindInvalidState, "existing account has no password to confirm the link")
	ErrImpersonationDenied  = apperrors.New(apperrors.KindInvalidCredential, "caller may not impersonate users")
	ErrLoginRequired        = apperrors.New(apperrors.KindInvalidState, "an interactive login is required")
	ErrRedirectMismatch     = apperrors.New(apperrors.KindMismatch, "redirect uri does not match the authorization request")
	ErrPKCEMismatch         = apperrors.New(apperrors.KindMismatch, "code verifier does not match the code challenge")
	ErrNonceRequired        = apperrors.New(apperrors.KindInvalid, "nonce is required when an id_token is returned directly")
	ErrInvalidPrompt        = apperrors.New(apperrors.KindInvalid, "unsupported prompt value")
)
