package auth

import (
	"strings"

	"github.com/jrsteele09/go-identity-server/clients"
	apperrors "github.com/jrsteele09/go-identity-server/internal/errors"
	"github.com/jrsteele09/go-identity-server/loginsessions"
	"github.com/jrsteele09/go-identity-server/oauth2"
)

// Prompt values accepted on the authorization request.
const (
	PromptNone          = "none"
	PromptLogin         = "login"
	PromptConsent       = "consent"
	PromptSelectAccount = "select_account"
)

// normaliseParameters fills defaults the authorization request may omit.
func normaliseParameters(p *loginsessions.AuthParams) {
	if strings.TrimSpace(string(p.ResponseType)) == "" {
		p.ResponseType = oauth2.CodeResponseType
	}
	if p.ResponseMode == "" {
		if p.ResponseType.IsDirect() {
			p.ResponseMode = oauth2.FragmentResponseMode
		} else {
			p.ResponseMode = oauth2.QueryResponseMode
		}
	}
	if p.CodeChallenge != "" && p.CodeChallengeMethod == "" {
		p.CodeChallengeMethod = oauth2.CodeMethodTypeNone
	}
	p.Scope = strings.Join(oauth2.SplitScopes(p.Scope), " ")
}

// validateParametersWithClient checks the authorization request against
// the client it names.
func (v *Validator) validateParametersWithClient(p *loginsessions.AuthParams, client *clients.Client, requirePKCE bool) error {
	if p.ClientID != client.ID {
		return oauth2.ErrClientTenantsMismatch
	}
	if !client.AllowsRedirectURI(p.RedirectURI) {
		return oauth2.ErrInvalidRedirectURI
	}
	if !p.ResponseType.Valid() {
		return oauth2.ErrInvalidResponseType
	}
	if !p.ResponseMode.Valid() {
		return oauth2.ErrInvalidResponseMode
	}
	if p.ResponseType.IsDirect() {
		if !client.AllowsGrant(oauth2.ImplicitGrant) {
			return oauth2.ErrUnauthorizedGrant
		}
		if p.ResponseMode == oauth2.QueryResponseMode {
			return oauth2.ErrInvalidResponseMode
		}
		if strings.Contains(string(p.ResponseType), "id_token") && p.Nonce == "" {
			return ErrNonceRequired
		}
	} else {
		if !client.AllowsGrant(oauth2.AuthorizationCodeGrant) {
			return oauth2.ErrUnauthorizedGrant
		}
		if err := v.ValidatePKCE(p.CodeChallenge, p.CodeChallengeMethod, requirePKCE || client.IsPublic()); err != nil {
			return err
		}
	}
	if err := ValidateScope(p.Scope); err != nil {
		return err
	}
	if err := client.ValidateScopes(p.Scope); err != nil {
		return err
	}
	if err := ValidateState(p.State); err != nil {
		return err
	}
	for _, prompt := range strings.Fields(p.Prompt) {
		switch prompt {
		case PromptNone, PromptLogin, PromptConsent, PromptSelectAccount:
		default:
			return ErrInvalidPrompt
		}
	}
	if p.MaxAge != nil && *p.MaxAge < 0 {
		return apperrors.New(apperrors.KindInvalid, "max_age must not be negative")
	}
	return nil
}

func promptsLogin(p loginsessions.AuthParams) bool {
	for _, prompt := range strings.Fields(p.Prompt) {
		if prompt == PromptLogin {
			return true
		}
	}
	return false
}
