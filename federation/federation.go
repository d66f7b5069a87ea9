// Package federation verifies identities asserted by upstream OpenID
// Connect providers.
package federation

import (
	"context"
	"crypto/subtle"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	apperrors "github.com/jrsteele09/go-identity-server/internal/errors"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
)

var (
	ErrMissingIDToken = apperrors.New(apperrors.KindInvalid, "upstream response carried no id_token")
	ErrNonceMismatch  = apperrors.New(apperrors.KindMismatch, "id_token nonce does not match")
	ErrUnverified     = apperrors.New(apperrors.KindInvalidCredential, "upstream id_token failed verification")
)

// Profile is the subset of upstream claims the login flow uses.
type Profile struct {
	Email         string `json:"email,omitempty"`
	EmailVerified bool   `json:"email_verified,omitempty"`
	Name          string `json:"name,omitempty"`
	GivenName     string `json:"given_name,omitempty"`
	FamilyName    string `json:"family_name,omitempty"`
	Picture       string `json:"picture,omitempty"`
}

// Result is a verified upstream identity.
type Result struct {
	Provider  string
	SubjectID string
	Profile   Profile
}

type ProviderConfig struct {
	Name         string
	IssuerURL    string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
}

// OIDCProvider drives the authorization code flow against one upstream
// issuer and verifies the ID tokens it returns.
type OIDCProvider struct {
	name     string
	config   *oauth2.Config
	verifier *oidc.IDTokenVerifier
}

// NewOIDCProvider discovers the issuer's endpoints and keys.
func NewOIDCProvider(ctx context.Context, cfg ProviderConfig) (*OIDCProvider, error) {
	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, errors.Wrap(err, "[federation.NewOIDCProvider] discovery")
	}
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "profile", "email"}
	}
	oauthConfig := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     provider.Endpoint(),
		RedirectURL:  cfg.RedirectURL,
		Scopes:       scopes,
	}
	return NewOIDCProviderWithVerifier(cfg.Name, oauthConfig, provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}))
}

// NewOIDCProviderWithVerifier builds a provider from an explicit oauth2
// configuration and verifier, skipping discovery.
func NewOIDCProviderWithVerifier(name string, config *oauth2.Config, verifier *oidc.IDTokenVerifier) (*OIDCProvider, error) {
	if name == "" {
		return nil, errors.New("[federation.NewOIDCProvider] name is required")
	}
	if config == nil || verifier == nil {
		return nil, errors.New("[federation.NewOIDCProvider] oauth2 config and verifier are required")
	}
	return &OIDCProvider{name: name, config: config, verifier: verifier}, nil
}

func (p *OIDCProvider) Name() string {
	return p.name
}

// AuthCodeURL returns the upstream authorization URL. codeVerifier should
// come from oauth2.GenerateVerifier and be kept for Exchange.
func (p *OIDCProvider) AuthCodeURL(state, nonce, codeVerifier string) string {
	return p.config.AuthCodeURL(state, oidc.Nonce(nonce), oauth2.S256ChallengeOption(codeVerifier))
}

// Exchange redeems an upstream authorization code and verifies the ID
// token that comes back.
func (p *OIDCProvider) Exchange(ctx context.Context, code, codeVerifier, nonce string) (*Result, error) {
	token, err := p.config.Exchange(ctx, code, oauth2.VerifierOption(codeVerifier))
	if err != nil {
		return nil, apperrors.WithKind(apperrors.KindInvalidCredential, err, "upstream code exchange failed")
	}
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, ErrMissingIDToken
	}
	return p.VerifyIDToken(ctx, rawIDToken, nonce)
}

// VerifyIDToken checks signature, issuer, audience, expiry and nonce.
func (p *OIDCProvider) VerifyIDToken(ctx context.Context, rawIDToken, nonce string) (*Result, error) {
	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, apperrors.WithKind(apperrors.KindInvalidCredential, err, ErrUnverified.Error())
	}
	if nonce != "" && subtle.ConstantTimeCompare([]byte(idToken.Nonce), []byte(nonce)) != 1 {
		return nil, ErrNonceMismatch
	}
	var profile Profile
	if err := idToken.Claims(&profile); err != nil {
		return nil, apperrors.WithKind(apperrors.KindInvalid, err, "decode id_token claims")
	}
	profile.Email = strings.TrimSpace(profile.Email)
	return &Result{Provider: p.name, SubjectID: idToken.Subject, Profile: profile}, nil
}
