package oauth2

// TokenResponse is the token endpoint response body (RFC 6749 §5.1).
type TokenResponse struct {
	// AccessToken is the JWT used to access protected resources.
	AccessToken *string `json:"access_token,omitempty"`

	// IdToken is the OpenID Connect ID token. Only present when "openid" was requested.
	IdToken *string `json:"id_token,omitempty"`

	// TokenType is always "Bearer".
	TokenType string `json:"token_type,omitempty"`

	// ExpiresIn is the lifetime in seconds of the access token.
	ExpiresIn int `json:"expires_in,omitempty"`

	// RefreshToken is an opaque token used to obtain new access tokens.
	// Only present when the client may use the refresh_token grant and
	// "offline_access" was granted.
	RefreshToken *string `json:"refresh_token,omitempty"`

	// Scope is the space separated list of granted scopes.
	Scope string `json:"scope,omitempty"`
}
