package oauth2

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"strings"
)

// ResponseType represents the OAuth 2.0 response type.
// Determines what is returned once a login session completes.
type ResponseType string

const (
	// CodeResponseType returns a short-lived authorization code that the client
	// exchanges at the token endpoint.
	CodeResponseType ResponseType = "code"

	// TokenResponseType returns an access token directly.
	TokenResponseType ResponseType = "token"

	// IDTokenResponseType returns an ID token directly.
	IDTokenResponseType ResponseType = "id_token"

	// IDTokenTokenResponseType returns both an ID token and an access token.
	IDTokenTokenResponseType ResponseType = "id_token token"
)

// Valid reports whether r is a supported response type.
func (r ResponseType) Valid() bool {
	switch r {
	case CodeResponseType, TokenResponseType, IDTokenResponseType, IDTokenTokenResponseType:
		return true
	}
	return false
}

// IsDirect reports whether tokens are returned without a code exchange.
func (r ResponseType) IsDirect() bool {
	return r.Valid() && r != CodeResponseType
}

// ResponseModeType denotes how the authorization response parameters are returned to the client.
type ResponseModeType string

const (
	// QueryResponseMode returns parameters in the URL query string.
	// Example: https://client.example.com/callback?code=ABC123&state=xyz
	QueryResponseMode ResponseModeType = "query"

	// FragmentResponseMode returns parameters in the URL fragment (after #).
	// Example: https://client.example.com/callback#access_token=ABC123&state=xyz
	FragmentResponseMode ResponseModeType = "fragment"

	// FormPostResponseMode returns parameters via an auto-submitting HTML form.
	FormPostResponseMode ResponseModeType = "form_post"
)

// Valid reports whether m is empty or a supported response mode.
func (m ResponseModeType) Valid() bool {
	switch m {
	case "", QueryResponseMode, FragmentResponseMode, FormPostResponseMode:
		return true
	}
	return false
}

// CodeMethodType represents the PKCE (Proof Key for Code Exchange) challenge method.
type CodeMethodType string

const (
	// CodeMethodTypeS256: code_challenge = BASE64URL(SHA256(code_verifier))
	CodeMethodTypeS256 CodeMethodType = "S256"

	// CodeMethodTypeNone (labeled "plain"): code_challenge = code_verifier
	CodeMethodTypeNone CodeMethodType = "plain"
)

// Valid reports whether m is empty or a supported challenge method.
func (m CodeMethodType) Valid() bool {
	switch m {
	case "", CodeMethodTypeS256, CodeMethodTypeNone:
		return true
	}
	return false
}

// CheckCodeChallenge verifies a PKCE verifier against the stored challenge.
// No challenge and no verifier means PKCE was not used.
func CheckCodeChallenge(storedChallenge, verifier string, method CodeMethodType) bool {
	if storedChallenge == "" && verifier == "" {
		return true
	}
	if storedChallenge == "" || verifier == "" {
		return false
	}
	var computed string
	switch method {
	case CodeMethodTypeS256:
		hash := sha256.Sum256([]byte(verifier))
		computed = base64.RawURLEncoding.EncodeToString(hash[:])
	case CodeMethodTypeNone, "":
		computed = verifier
	default:
		return false
	}
	return subtle.ConstantTimeCompare([]byte(computed), []byte(storedChallenge)) == 1
}

// GrantType represents the OAuth 2.0 grant type used at the token endpoint.
type GrantType string

const (
	// AuthorizationCodeGrant exchanges an authorization code for tokens.
	AuthorizationCodeGrant GrantType = "authorization_code"

	// ClientCredentialsCodeGrant allows machine-to-machine authentication.
	ClientCredentialsCodeGrant GrantType = "client_credentials"

	// RefreshTokenCodeGrant exchanges a refresh token for new tokens.
	RefreshTokenCodeGrant GrantType = "refresh_token"

	// ImplicitGrant returns tokens straight from a completed login session.
	ImplicitGrant GrantType = "implicit"
)

// Well known scopes.
const (
	ScopeOpenID        = "openid"
	ScopeProfile       = "profile"
	ScopeEmail         = "email"
	ScopeOfflineAccess = "offline_access"
)

// SplitScopes splits a space separated scope string, dropping empty entries.
func SplitScopes(scope string) []string {
	return strings.Fields(scope)
}

// HasScope reports whether the space separated scope string contains s.
func HasScope(scope, s string) bool {
	for _, v := range strings.Fields(scope) {
		if v == s {
			return true
		}
	}
	return false
}
