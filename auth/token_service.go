package auth

import (
	"context"
	"strings"

	"github.com/jrsteele09/go-identity-server/clients"
	"github.com/jrsteele09/go-identity-server/codes"
	apperrors "github.com/jrsteele09/go-identity-server/internal/errors"
	"github.com/jrsteele09/go-identity-server/oauth2"
	"github.com/jrsteele09/go-identity-server/rbac"
	"github.com/jrsteele09/go-identity-server/resolver"
	"github.com/jrsteele09/go-identity-server/sessions"
	"github.com/jrsteele09/go-identity-server/token"
	"github.com/jrsteele09/go-identity-server/users"
	"github.com/pkg/errors"
)

const tokenTypeBearer = "Bearer"

// tokenGrant is everything needed to mint one token response.
type tokenGrant struct {
	tenantID     string
	client       *clients.Client
	user         *users.User
	session      *sessions.Session
	scope        string
	audience     string
	organization string
	permissions  rbac.PermissionSet // resolved on demand when nil
	nonce        string
	accessToken  bool
	idToken      bool
	refreshToken string
}

func (s *Service) issueTokens(ctx context.Context, g tokenGrant) (*oauth2.TokenResponse, error) {
	resp := &oauth2.TokenResponse{TokenType: tokenTypeBearer, Scope: g.scope}
	sessionID, impersonatorID := "", ""
	if g.session != nil {
		sessionID = g.session.ID
		impersonatorID = g.session.ImpersonatorID
	}

	if g.accessToken {
		claims := token.AccessClaims{
			TenantID:       g.tenantID,
			ClientID:       g.client.ID,
			Scope:          g.scope,
			Audience:       g.audience,
			Organization:   g.organization,
			SessionID:      sessionID,
			ImpersonatorID: impersonatorID,
		}
		if g.user != nil {
			if err := s.resolvePermissions(ctx, &g); err != nil {
				return nil, errors.Wrap(err, "[Service.issueTokens]")
			}
			claims.UserID = g.user.ID
			claims.Permissions = g.permissions.Sorted()
		}
		access, err := s.Tokens.CreateAccessToken(ctx, claims)
		if err != nil {
			return nil, errors.Wrap(err, "[Service.issueTokens] CreateAccessToken")
		}
		resp.AccessToken = &access
		resp.ExpiresIn = int(s.Tokens.AccessTokenExpiry().Seconds())
	}

	if g.idToken && g.user != nil {
		claims := token.IDClaims{
			TenantID:  g.tenantID,
			ClientID:  g.client.ID,
			User:      g.user,
			Nonce:     g.nonce,
			SessionID: sessionID,
		}
		if g.session != nil {
			claims.AuthTime = g.session.AuthenticatedAt
		}
		id, err := s.Tokens.CreateIDToken(ctx, claims)
		if err != nil {
			return nil, errors.Wrap(err, "[Service.issueTokens] CreateIDToken")
		}
		resp.IdToken = &id
	}

	if g.refreshToken != "" {
		refresh := g.refreshToken
		resp.RefreshToken = &refresh
	}
	return resp, nil
}

func (s *Service) resolvePermissions(ctx context.Context, g *tokenGrant) error {
	if g.permissions != nil {
		return nil
	}
	perms, err := s.Permissions.Resolve(ctx, g.tenantID, g.user.ID, rbac.ScopeFromOrganization(g.organization))
	if err != nil {
		return errors.Wrap(err, "permissions")
	}
	g.permissions = perms
	return nil
}

// Token is the token endpoint. It dispatches on the grant type.
func (s *Service) Token(ctx context.Context, tenantID string, req oauth2.TokenRequest) (*oauth2.TokenResponse, error) {
	switch req.GrantType {
	case oauth2.AuthorizationCodeGrant:
		return s.Exchange(ctx, ExchangeRequest{
			TenantID:     tenantID,
			ClientID:     req.ClientID,
			ClientSecret: req.ClientSecret,
			Code:         req.Code,
			RedirectURI:  req.RedirectURI,
			CodeVerifier: req.CodeVerifier,
		})
	case oauth2.RefreshTokenCodeGrant:
		return s.Refresh(ctx, RefreshRequest{
			TenantID:     tenantID,
			ClientID:     req.ClientID,
			ClientSecret: req.ClientSecret,
			RefreshToken: req.RefreshToken,
		})
	case oauth2.ClientCredentialsCodeGrant:
		return s.clientCredentials(ctx, tenantID, req)
	}
	return nil, apperrors.Newf(apperrors.KindInvalid, "unsupported grant type %q", req.GrantType)
}

type ExchangeRequest struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	Code         string
	RedirectURI  string
	CodeVerifier string
}

// Exchange redeems an authorization code for tokens. The code is consumed
// before the remaining checks, so a failed exchange cannot be retried with
// the same code.
func (s *Service) Exchange(ctx context.Context, req ExchangeRequest) (*oauth2.TokenResponse, error) {
	cc, err := s.authenticateClient(ctx, req.TenantID, req.ClientID, req.ClientSecret)
	if err != nil {
		return nil, err
	}
	client := cc.Client
	if !client.AllowsGrant(oauth2.AuthorizationCodeGrant) {
		return nil, oauth2.ErrUnauthorizedGrant
	}
	if err := s.validator.ValidateCodeVerifier(req.CodeVerifier); err != nil {
		return nil, err
	}

	code, err := s.Codes.Redeem(ctx, codes.RedeemRequest{
		TenantID: cc.Tenant.ID,
		Type:     codes.TypeAuthorization,
		Value:    req.Code,
		Subject:  client.ID,
	})
	if err != nil {
		return nil, errors.Wrap(err, "[Service.Exchange] redeem code")
	}
	ls, err := s.Repos.LoginSessions.Get(ctx, cc.Tenant.ID, code.Payload[payloadLoginSessionID])
	if err != nil {
		return nil, errors.Wrap(err, "[Service.Exchange] login session")
	}
	params := ls.AuthParams
	if req.RedirectURI != params.RedirectURI {
		return nil, ErrRedirectMismatch
	}
	if !oauth2.CheckCodeChallenge(params.CodeChallenge, req.CodeVerifier, params.CodeChallengeMethod) {
		return nil, ErrPKCEMismatch
	}

	session, err := s.Sessions.GetActive(ctx, cc.Tenant.ID, code.Payload[payloadSessionID])
	if err != nil {
		return nil, errors.Wrap(err, "[Service.Exchange] session")
	}
	user, err := s.activeUser(ctx, cc.Tenant.ID, session.UserID)
	if err != nil {
		return nil, err
	}
	grant := tokenGrant{
		tenantID:     cc.Tenant.ID,
		client:       client,
		user:         user,
		session:      session,
		scope:        params.Scope,
		organization: params.Organization,
		nonce:        params.Nonce,
		accessToken:  true,
		idToken:      oauth2.HasScope(params.Scope, oauth2.ScopeOpenID),
	}
	// nothing is minted unless the access token can be
	if err := s.resolvePermissions(ctx, &grant); err != nil {
		return nil, errors.Wrap(err, "[Service.Exchange]")
	}
	issued, err := s.Sessions.IssueRefreshToken(ctx, session, client, params.Scope, "", params.Organization)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.Exchange]")
	}
	if issued != nil {
		grant.refreshToken = issued.Value
	}
	return s.issueTokens(ctx, grant)
}

type RefreshRequest struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	RefreshToken string
}

// Refresh redeems a refresh token. Permissions are resolved again, so role
// changes show up in the new access token.
func (s *Service) Refresh(ctx context.Context, req RefreshRequest) (*oauth2.TokenResponse, error) {
	if strings.TrimSpace(req.RefreshToken) == "" {
		return nil, apperrors.New(apperrors.KindInvalid, "refresh_token is required")
	}
	cc, err := s.authenticateClient(ctx, req.TenantID, req.ClientID, req.ClientSecret)
	if err != nil {
		return nil, err
	}
	redeemed, session, err := s.Sessions.Refresh(ctx, cc.Tenant.ID, cc.Client, req.RefreshToken)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.Refresh]")
	}
	user, err := s.activeUser(ctx, cc.Tenant.ID, session.UserID)
	if err != nil {
		return nil, err
	}
	t := redeemed.Token
	return s.issueTokens(ctx, tokenGrant{
		tenantID:     cc.Tenant.ID,
		client:       cc.Client,
		user:         user,
		session:      session,
		scope:        t.Scope,
		audience:     t.Audience,
		organization: t.Organization,
		accessToken:  true,
		idToken:      oauth2.HasScope(t.Scope, oauth2.ScopeOpenID),
		refreshToken: redeemed.Value,
	})
}

// clientCredentials mints an access token whose subject is the client.
func (s *Service) clientCredentials(ctx context.Context, tenantID string, req oauth2.TokenRequest) (*oauth2.TokenResponse, error) {
	cc, err := s.authenticateClient(ctx, tenantID, req.ClientID, req.ClientSecret)
	if err != nil {
		return nil, err
	}
	if cc.Client.IsPublic() || !cc.Client.AllowsGrant(oauth2.ClientCredentialsCodeGrant) {
		return nil, oauth2.ErrUnauthorizedGrant
	}
	if err := cc.Client.ValidateScopes(req.Scope); err != nil {
		return nil, err
	}
	return s.issueTokens(ctx, tokenGrant{
		tenantID:    cc.Tenant.ID,
		client:      cc.Client,
		scope:       req.Scope,
		accessToken: true,
	})
}

// UserInfo returns the standard claims of the user an access token was
// issued to.
func (s *Service) UserInfo(ctx context.Context, rawToken string) (map[string]any, error) {
	verified, err := s.Tokens.Verify(ctx, rawToken)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.UserInfo]")
	}
	if verified.Subject == verified.ClientID {
		return nil, apperrors.New(apperrors.KindInvalid, "token was not issued to a user")
	}
	user, err := s.activeUser(ctx, verified.TenantID, verified.Subject)
	if err != nil {
		return nil, err
	}
	info := map[string]any{
		"sub":            user.ID,
		"email":          user.Email,
		"email_verified": user.EmailVerified,
		"name":           user.Name(),
		"given_name":     user.FirstName,
		"family_name":    user.LastName,
	}
	if user.Username != "" {
		info["preferred_username"] = user.Username
	}
	if user.PhoneNumber != "" {
		info["phone_number"] = user.PhoneNumber
		info["phone_number_verified"] = user.PhoneVerified
	}
	return info, nil
}

// Logout ends a session and revokes its refresh tokens.
func (s *Service) Logout(ctx context.Context, tenantID, sessionID string) error {
	if err := s.Sessions.Revoke(ctx, tenantID, sessionID); err != nil {
		return errors.Wrap(err, "[Service.Logout]")
	}
	return nil
}

func (s *Service) authenticateClient(ctx context.Context, tenantID, clientID, secret string) (*resolver.ClientContext, error) {
	cc, err := s.Resolver.Resolve(ctx, clientID, tenantID)
	if apperrors.Is(err, apperrors.ErrNotFound) {
		return nil, apperrors.New(apperrors.KindInvalidCredential, "unknown client")
	}
	if err != nil {
		return nil, errors.Wrap(err, "[Service.authenticateClient]")
	}
	if err := s.validator.ValidateClientCredentials(clientID, secret, cc.Client); err != nil {
		return nil, err
	}
	return cc, nil
}

func (s *Service) activeUser(ctx context.Context, tenantID, userID string) (*users.User, error) {
	user, err := s.Repos.Users.GetByID(ctx, tenantID, userID)
	if err != nil {
		return nil, errors.Wrap(err, "[Service] GetByID")
	}
	if user.Blocked {
		return nil, ErrUserBlocked
	}
	return user, nil
}
