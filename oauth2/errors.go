package oauth2

import apperrors "github.com/jrsteele09/go-identity-server/internal/errors"

var (
	ErrInvalidCodeChallenge       = apperrors.New(apperrors.KindMismatch, "invalid code challenge")
	ErrClientTenantsMismatch      = apperrors.New(apperrors.KindNotFound, "client does not match tenant")
	ErrInvalidCodeChallengeMethod = apperrors.New(apperrors.KindInvalid, "invalid code challenge method")
	ErrInvalidRedirectURI         = apperrors.New(apperrors.KindInvalid, "invalid or no redirect uri")
	ErrInvalidResponseMode        = apperrors.New(apperrors.KindInvalid, "invalid response mode")
	ErrInvalidResponseType        = apperrors.New(apperrors.KindInvalid, "unsupported response type")
	ErrInvalidScope               = apperrors.New(apperrors.KindInvalid, "invalid scope")
	ErrUnauthorizedGrant          = apperrors.New(apperrors.KindInvalid, "grant type not allowed for client")
	ErrPKCERequired               = apperrors.New(apperrors.KindInvalid, "PKCE required for public clients")
	ErrInvalidClientSecret        = apperrors.New(apperrors.KindInvalidCredential, "invalid client secret")
)
