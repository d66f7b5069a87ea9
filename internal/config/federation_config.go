package config

import "strings"

// FederationConfig describes one optional upstream OpenID Connect provider
// for the system tenant. An empty issuer disables it.
type FederationConfig interface {
	GetFederationConnectionID() string
	GetFederationIssuerURL() string
	GetFederationClientID() string
	GetFederationClientSecret() string
	GetFederationRedirectURL() string
	GetFederationScopes() []string
}

type Federation struct {
	ConnectionID string   `env:"FEDERATION_CONNECTION_ID" envDefault:"oidc"`
	IssuerURL    string   `env:"FEDERATION_ISSUER_URL"`
	ClientID     string   `env:"FEDERATION_CLIENT_ID"`
	ClientSecret string   `env:"FEDERATION_CLIENT_SECRET"`
	RedirectURL  string   `env:"FEDERATION_REDIRECT_URL"`
	Scopes       []string `env:"FEDERATION_SCOPES" envSeparator:"," envDefault:"openid,email,profile"`
}

var _ FederationConfig = Federation{}

func (f Federation) GetFederationConnectionID() string {
	return f.ConnectionID
}

func (f Federation) GetFederationIssuerURL() string {
	return f.IssuerURL
}

func (f Federation) GetFederationClientID() string {
	return f.ClientID
}

func (f Federation) GetFederationClientSecret() string {
	return f.ClientSecret
}

func (f Federation) GetFederationRedirectURL() string {
	return f.RedirectURL
}

func (f Federation) GetFederationScopes() []string {
	scopes := make([]string, 0, len(f.Scopes))
	for _, s := range f.Scopes {
		if s = strings.TrimSpace(s); s != "" {
			scopes = append(scopes, s)
		}
	}
	return scopes
}
