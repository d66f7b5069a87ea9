package clients

import (
	"time"

	"github.com/jrsteele09/go-identity-server/oauth2"
)

type ClientType string

const (
	ClientTypeConfidential ClientType = "confidential" // Can keep secrets (server-side apps)
	ClientTypePublic       ClientType = "public"       // Cannot keep secrets (SPAs, mobile apps)
)

// RefreshTokenPolicy controls how refresh tokens issued to the client behave.
type RefreshTokenPolicy struct {
	Rotating     bool          `json:"rotating"`
	Lifetime     time.Duration `json:"lifetime"`      // zero uses the server default
	IdleLifetime time.Duration `json:"idle_lifetime"` // zero uses the server default
}

type Client struct {
	ID            string             `json:"id"`
	TenantID      string             `json:"tenantId"`
	Type          ClientType         `json:"type"` // public or confidential
	Description   string             `json:"description"`
	Secret        string             `json:"secret"`
	RedirectURIs  []string           `json:"redirectURIs"`
	LogoutURLs    []string           `json:"logoutURLs"`
	GrantTypes    []oauth2.GrantType `json:"grantTypes"`
	Scopes        []string           `json:"scopes"`        // Allowed scopes for this client
	ConnectionIDs []string           `json:"connectionIds"` // Explicitly enabled connections, empty enables all tenant connections
	RefreshToken  RefreshTokenPolicy `json:"refreshToken"`
}

// IsPublic returns true if the client is a public client
func (c *Client) IsPublic() bool {
	return c.Type == ClientTypePublic
}

// HasScope checks if the client has permission for a specific scope
func (c *Client) HasScope(scope string) bool {
	return contains(c.Scopes, scope)
}

// ValidateScopes checks if all requested scopes are allowed for this client
func (c *Client) ValidateScopes(requestedScopes string) error {
	for _, scope := range oauth2.SplitScopes(requestedScopes) {
		if !c.HasScope(scope) {
			return oauth2.ErrInvalidScope
		}
	}
	return nil
}

// AllowsGrant reports whether the client may use the grant type.
func (c *Client) AllowsGrant(grant oauth2.GrantType) bool {
	for _, g := range c.GrantTypes {
		if g == grant {
			return true
		}
	}
	return false
}

// AllowsRedirectURI reports whether uri exactly matches a registered callback.
func (c *Client) AllowsRedirectURI(uri string) bool {
	return uri != "" && contains(c.RedirectURIs, uri)
}

// AllowsLogoutURL reports whether url exactly matches a registered logout URL.
func (c *Client) AllowsLogoutURL(url string) bool {
	return url != "" && contains(c.LogoutURLs, url)
}

// RefreshEligible reports whether a refresh token may be issued for scope.
func (c *Client) RefreshEligible(scope string) bool {
	return c.AllowsGrant(oauth2.RefreshTokenCodeGrant) && oauth2.HasScope(scope, oauth2.ScopeOfflineAccess)
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
