package auth

import (
	"crypto/subtle"
	"strings"

	"github.com/jrsteele09/go-identity-server/clients"
	apperrors "github.com/jrsteele09/go-identity-server/internal/errors"
	"github.com/jrsteele09/go-identity-server/oauth2"
)

// Validator holds the request validation rules shared by the authorization
// and token endpoints.
type Validator struct{}

func NewValidator() *Validator {
	return &Validator{}
}

// ValidatePKCE validates PKCE (Proof Key for Code Exchange) parameters
func (v *Validator) ValidatePKCE(codeChallenge string, codeChallengeMethod oauth2.CodeMethodType, required bool) error {
	if codeChallenge == "" && codeChallengeMethod == "" {
		if required {
			return oauth2.ErrPKCERequired
		}
		return nil
	}
	if codeChallenge == "" {
		return apperrors.New(apperrors.KindInvalid, "code_challenge_method given without code_challenge")
	}
	// RFC 7636: 43-128 characters
	if len(codeChallenge) < 43 || len(codeChallenge) > 128 {
		return apperrors.New(apperrors.KindInvalid, "code_challenge length must be between 43 and 128 characters")
	}
	if !codeChallengeMethod.Valid() {
		return oauth2.ErrInvalidCodeChallengeMethod
	}
	return nil
}

// ValidateClientCredentials authenticates the client at the token endpoint.
// Public clients must not send a secret; confidential clients must send theirs.
func (v *Validator) ValidateClientCredentials(clientID, clientSecret string, client *clients.Client) error {
	if clientID == "" || client == nil || clientID != client.ID {
		return apperrors.New(apperrors.KindInvalidCredential, "unknown client")
	}
	if client.IsPublic() {
		if clientSecret != "" {
			return apperrors.New(apperrors.KindInvalid, "public clients must not provide client_secret")
		}
		return nil
	}
	if clientSecret == "" || subtle.ConstantTimeCompare([]byte(clientSecret), []byte(client.Secret)) != 1 {
		return oauth2.ErrInvalidClientSecret
	}
	return nil
}

// ValidateCodeVerifier checks the verifier shape before it is compared.
func (v *Validator) ValidateCodeVerifier(verifier string) error {
	if verifier != "" && (len(verifier) < 43 || len(verifier) > 128) {
		return apperrors.New(apperrors.KindInvalid, "code_verifier must be between 43 and 128 characters")
	}
	return nil
}

// ValidateScope validates individual scope strings
func ValidateScope(scope string) error {
	if strings.TrimSpace(scope) == "" {
		return nil
	}
	if strings.ContainsAny(scope, "\n\r\t") {
		return apperrors.New(apperrors.KindInvalid, "scope contains invalid characters")
	}
	for _, s := range strings.Split(scope, " ") {
		if s == "" {
			return apperrors.New(apperrors.KindInvalid, "scope tokens must be separated by single spaces")
		}
	}
	return nil
}

// ValidateRedirectURI validates redirect URI format
func ValidateRedirectURI(uri string) error {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return oauth2.ErrInvalidRedirectURI
	}
	if !strings.HasPrefix(uri, "http://") && !strings.HasPrefix(uri, "https://") {
		return apperrors.New(apperrors.KindInvalid, "redirect_uri must use http or https scheme")
	}
	if strings.Contains(uri, "#") {
		return apperrors.New(apperrors.KindInvalid, "redirect_uri must not contain fragments")
	}
	return nil
}

// ValidateState validates OAuth state parameter
func ValidateState(state string) error {
	if state == "" {
		return nil
	}
	if len(state) < 8 {
		return apperrors.New(apperrors.KindInvalid, "state parameter should be at least 8 characters")
	}
	if strings.TrimSpace(state) != state {
		return apperrors.New(apperrors.KindInvalid, "state parameter must not contain leading or trailing whitespace")
	}
	return nil
}
