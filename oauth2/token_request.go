package oauth2

// TokenRequest holds parameters for the token endpoint.
// Supports the authorization_code, refresh_token and client_credentials grants.
type TokenRequest struct {
	GrantType GrantType

	// ClientID identifies the client making the request.
	ClientID string

	// ClientSecret is required for confidential clients. Never log it.
	ClientSecret string

	// Code is the authorization code (authorization_code grant only).
	Code string

	// RedirectURI must match the one used when the login session began.
	RedirectURI string

	// CodeVerifier is the PKCE verifier matching the stored code_challenge.
	CodeVerifier string

	// RefreshToken is the presented refresh token (refresh_token grant only).
	RefreshToken string

	// Scope is requested by the client_credentials grant.
	Scope string
}
