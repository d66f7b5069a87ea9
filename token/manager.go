// Package token mints and verifies the JWT access and ID tokens handed to
// clients.
package token

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/go-identity-server/internal/errors"
	"github.com/jrsteele09/go-identity-server/tenants"
	"github.com/jrsteele09/go-identity-server/users"
	"github.com/pkg/errors"
)

var ErrInvalidToken = apperrors.New(apperrors.KindInvalid, "invalid token")

// AccessClaims describe an access token to mint.
type AccessClaims struct {
	TenantID       string
	ClientID       string
	UserID         string // empty for client credentials
	Scope          string
	Audience       string // empty uses the tenant audience
	Organization   string
	SessionID      string
	ImpersonatorID string
	Permissions    []string
}

// IDClaims describe an ID token to mint.
type IDClaims struct {
	TenantID  string
	ClientID  string
	User      *users.User
	Nonce     string
	SessionID string
	AuthTime  time.Time
}

// Verified is the content of a token that passed verification.
type Verified struct {
	ID             string
	TenantID       string
	Subject        string
	ClientID       string
	Scope          string
	Organization   string
	SessionID      string
	ImpersonatorID string
	Permissions    []string
	ExpiresAt      time.Time
}

type Manager struct {
	tenantRepo        tenants.Repo
	accessTokenExpiry time.Duration
	idTokenExpiry     time.Duration
	nowFunc           func() time.Time
}

type ManagerOption func(*Manager)

func WithTokenExpiry(accessTokenExpiry, idTokenExpiry time.Duration) ManagerOption {
	return func(m *Manager) {
		m.accessTokenExpiry = accessTokenExpiry
		m.idTokenExpiry = idTokenExpiry
	}
}

func WithNowFunc(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

func New(tenantRepo tenants.Repo, options ...ManagerOption) (*Manager, error) {
	if tenantRepo == nil {
		return nil, errors.New("[token.New] tenantRepo is required")
	}
	m := &Manager{
		tenantRepo: tenantRepo,
		nowFunc:    time.Now,
	}
	for _, opt := range options {
		opt(m)
	}
	if m.accessTokenExpiry == 0 {
		m.accessTokenExpiry = time.Hour
	}
	if m.idTokenExpiry == 0 {
		m.idTokenExpiry = time.Hour
	}
	return m, nil
}

// AccessTokenExpiry is the lifetime of minted access tokens.
func (m *Manager) AccessTokenExpiry() time.Duration {
	return m.accessTokenExpiry
}

func (m *Manager) CreateAccessToken(ctx context.Context, c AccessClaims) (string, error) {
	tenant, signer, err := m.tenantSigner(ctx, c.TenantID)
	if err != nil {
		return "", errors.Wrap(err, "[Manager.CreateAccessToken]")
	}
	now := m.nowFunc()
	audience := c.Audience
	if audience == "" {
		audience = tenant.Audience
	}
	subject := c.UserID
	if subject == "" {
		subject = c.ClientID
	}

	claims := jwt.MapClaims{
		"iss":       tenant.Issuer,
		"sub":       subject,
		"aud":       audience,
		"client_id": c.ClientID,
		"tenant":    c.TenantID,
		"iat":       now.Unix(),
		"exp":       now.Add(m.accessTokenExpiry).Unix(),
		"jti":       uuid.New().String(),
	}
	if c.Scope != "" {
		claims["scope"] = c.Scope
	}
	if c.Organization != "" {
		claims["org_id"] = c.Organization
	}
	if c.SessionID != "" {
		claims["sid"] = c.SessionID
	}
	if len(c.Permissions) > 0 {
		claims["permissions"] = c.Permissions
	}
	// RFC 8693 actor claim: who is acting on behalf of sub.
	if c.ImpersonatorID != "" {
		claims["act"] = map[string]any{"sub": c.ImpersonatorID}
	}
	return signer.Sign(claims)
}

func (m *Manager) CreateIDToken(ctx context.Context, c IDClaims) (string, error) {
	if c.User == nil {
		return "", apperrors.New(apperrors.KindInvalid, "id token requires a user")
	}
	tenant, signer, err := m.tenantSigner(ctx, c.TenantID)
	if err != nil {
		return "", errors.Wrap(err, "[Manager.CreateIDToken]")
	}
	now := m.nowFunc()
	claims := jwt.MapClaims{
		"iss":            tenant.Issuer,
		"sub":            c.User.ID,
		"aud":            c.ClientID,
		"email":          c.User.Email,
		"email_verified": c.User.EmailVerified,
		"name":           c.User.Name(),
		"tenant":         c.TenantID,
		"iat":            now.Unix(),
		"exp":            now.Add(m.idTokenExpiry).Unix(),
		"jti":            uuid.New().String(),
	}
	if c.Nonce != "" {
		claims["nonce"] = c.Nonce
	}
	if c.SessionID != "" {
		claims["sid"] = c.SessionID
	}
	if !c.AuthTime.IsZero() {
		claims["auth_time"] = c.AuthTime.Unix()
	}
	return signer.Sign(claims)
}

// Verify checks signature, issuer and expiry of an access token.
func (m *Manager) Verify(ctx context.Context, rawToken string) (*Verified, error) {
	unverified, _, err := jwt.NewParser().ParseUnverified(rawToken, jwt.MapClaims{})
	if err != nil {
		return nil, ErrInvalidToken
	}
	unverifiedClaims, _ := unverified.Claims.(jwt.MapClaims)
	tenantID, _ := unverifiedClaims["tenant"].(string)
	if tenantID == "" {
		return nil, ErrInvalidToken
	}
	tenant, signer, err := m.tenantSigner(ctx, tenantID)
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.Verify]")
	}

	parsed, err := jwt.Parse(rawToken, signer.GetVerificationKey,
		jwt.WithTimeFunc(m.nowFunc),
		jwt.WithIssuer(tenant.Issuer),
		jwt.WithValidMethods([]string{signer.GetSigningMethod().Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperrors.WithKind(apperrors.KindExpired, err, "token expired")
		}
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	v := &Verified{TenantID: tenantID}
	v.ID, _ = claims["jti"].(string)
	v.Subject, _ = claims["sub"].(string)
	v.ClientID, _ = claims["client_id"].(string)
	v.Scope, _ = claims["scope"].(string)
	v.Organization, _ = claims["org_id"].(string)
	v.SessionID, _ = claims["sid"].(string)
	if act, ok := claims["act"].(map[string]any); ok {
		v.ImpersonatorID, _ = act["sub"].(string)
	}
	if perms, ok := claims["permissions"].([]any); ok {
		v.Permissions = toStrings(perms)
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		v.ExpiresAt = exp.Time
	}
	return v, nil
}

func (m *Manager) tenantSigner(ctx context.Context, tenantID string) (*tenants.Tenant, Signer, error) {
	tenant, err := m.tenantRepo.Get(ctx, tenantID)
	if err != nil {
		return nil, nil, errors.Wrap(err, "tenantRepo.Get")
	}
	signer, err := SignerForTenant(tenant)
	if err != nil {
		return nil, nil, err
	}
	return tenant, signer, nil
}

func toStrings(values []any) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
