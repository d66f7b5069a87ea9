package sessions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-identity-server/clients"
	"github.com/jrsteele09/go-identity-server/internal/audit"
	apperrors "github.com/jrsteele09/go-identity-server/internal/errors"
	"github.com/jrsteele09/go-identity-server/loginsessions"
	"github.com/jrsteele09/go-identity-server/oauth2"
	"github.com/jrsteele09/go-identity-server/token/refresh"
	"github.com/pkg/errors"
)

// Manager turns completed login sessions into sessions and refresh tokens.
type Manager struct {
	repo     Repo
	refresh  *refresh.Manager
	reporter audit.Reporter
	nowTime  func() time.Time
	lifetime time.Duration
	idle     time.Duration
}

type ManagerOption func(*Manager)

func WithNowTime(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowTime = now
	}
}

// WithLifetimes sets the absolute and idle session lifetimes. An idle
// lifetime of zero disables idle expiry.
func WithLifetimes(lifetime, idle time.Duration) ManagerOption {
	return func(m *Manager) {
		m.lifetime = lifetime
		m.idle = idle
	}
}

func NewManager(repo Repo, refreshManager *refresh.Manager, reporter audit.Reporter, options ...ManagerOption) (*Manager, error) {
	if repo == nil {
		return nil, errors.New("[sessions.NewManager] repo is required")
	}
	if refreshManager == nil {
		return nil, errors.New("[sessions.NewManager] refresh manager is required")
	}
	if reporter == nil {
		return nil, errors.New("[sessions.NewManager] reporter is required")
	}
	m := &Manager{
		repo:     repo,
		refresh:  refreshManager,
		reporter: reporter,
		nowTime:  time.Now,
		lifetime: 7 * 24 * time.Hour,
		idle:     3 * 24 * time.Hour,
	}
	for _, opt := range options {
		opt(m)
	}
	return m, nil
}

// Completion is the result of completing a login session. Refresh is nil
// when no refresh token was minted.
type Completion struct {
	Session *Session
	Refresh *refresh.Issued
}

// Complete creates a session for a completed login session, or joins the
// SSO session the login continued. For response types that return tokens
// directly the refresh token is minted here; for the code flow it is minted
// at the token endpoint through IssueRefreshToken.
func (m *Manager) Complete(ctx context.Context, ls *loginsessions.LoginSession, client *clients.Client, device Device) (*Completion, error) {
	if ls == nil || ls.State != loginsessions.StateCompleted || ls.UserID == "" {
		return nil, apperrors.New(apperrors.KindInvalidState, "login session is not completed")
	}
	if client == nil || client.ID != ls.AuthParams.ClientID {
		return nil, apperrors.New(apperrors.KindMismatch, "client does not match the login session")
	}
	now := m.nowTime()

	var (
		session *Session
		err     error
	)
	if ls.StateData.SSOSessionID != "" {
		session, err = m.join(ctx, ls, client.ID, now)
	} else {
		session, err = m.create(ctx, ls, client.ID, device, now)
	}
	if err != nil {
		return nil, err
	}

	completion := &Completion{Session: session}
	if ls.AuthParams.ResponseType.IsDirect() {
		completion.Refresh, err = m.IssueRefreshToken(ctx, session, client, ls.AuthParams.Scope, "", ls.AuthParams.Organization)
		if err != nil {
			return nil, errors.Wrap(err, "[Manager.Complete]")
		}
	}
	return completion, nil
}

func (m *Manager) create(ctx context.Context, ls *loginsessions.LoginSession, clientID string, device Device, now time.Time) (*Session, error) {
	s := &Session{
		ID:                uuid.New().String(),
		TenantID:          ls.TenantID,
		UserID:            ls.UserID,
		LoginSessionID:    ls.ID,
		Clients:           []string{clientID},
		Device:            device,
		Identity:          ls.StateData.Identity,
		ImpersonatorID:    ls.StateData.ImpersonatorID,
		AuthenticatedAt:   now,
		LastInteractionAt: now,
		ExpiresAt:         now.Add(m.lifetime),
	}
	if ls.StateData.AuthMethod != "" {
		s.AuthMethods = []string{ls.StateData.AuthMethod}
	}
	if m.idle > 0 {
		s.IdleExpiresAt = now.Add(m.idle)
	}
	if err := m.repo.Create(ctx, s); err != nil {
		return nil, errors.Wrap(err, "[Manager.Complete] Create")
	}
	if s.ImpersonatorID != "" {
		m.reporter.Report(ctx, audit.Event{
			Type:      audit.EventImpersonation,
			TenantID:  s.TenantID,
			UserID:    s.UserID,
			ClientID:  clientID,
			SessionID: s.ID,
			Detail:    "session opened by " + s.ImpersonatorID,
			At:        now,
		})
	}
	return s, nil
}

func (m *Manager) join(ctx context.Context, ls *loginsessions.LoginSession, clientID string, now time.Time) (*Session, error) {
	existing, err := m.GetActive(ctx, ls.TenantID, ls.StateData.SSOSessionID)
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.Complete]")
	}
	if existing.UserID != ls.UserID {
		return nil, apperrors.New(apperrors.KindMismatch, "sso session belongs to another user")
	}
	var idleExpiresAt time.Time
	if m.idle > 0 {
		idleExpiresAt = now.Add(m.idle)
	}
	s, err := m.repo.Join(ctx, ls.TenantID, existing.ID, clientID, now, idleExpiresAt)
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.Complete] Join")
	}
	return s, nil
}

// IssueRefreshToken mints a refresh token bound to the session and client
// when the client may use the refresh grant and scope asks for
// offline_access. It returns nil otherwise.
func (m *Manager) IssueRefreshToken(ctx context.Context, s *Session, client *clients.Client, scope, audience, organization string) (*refresh.Issued, error) {
	if !client.RefreshEligible(scope) {
		return nil, nil
	}
	issued, err := m.refresh.Mint(ctx, refresh.MintRequest{
		TenantID:     s.TenantID,
		SessionID:    s.ID,
		ClientID:     client.ID,
		UserID:       s.UserID,
		Scope:        scope,
		Audience:     audience,
		Organization: organization,
		Policy:       client.RefreshToken,
	})
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.IssueRefreshToken]")
	}
	return issued, nil
}

// GetActive returns a session that is neither revoked nor expired.
func (m *Manager) GetActive(ctx context.Context, tenantID, id string) (*Session, error) {
	s, err := m.repo.Get(ctx, tenantID, id)
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.GetActive]")
	}
	if !s.Active(m.nowTime()) {
		return nil, ErrInactive
	}
	return s, nil
}

// Refresh redeems a refresh token for client. Reuse of a rotated token
// revokes the session it belongs to as well as its tokens.
func (m *Manager) Refresh(ctx context.Context, tenantID string, client *clients.Client, value string) (*refresh.Redeemed, *Session, error) {
	if !client.AllowsGrant(oauth2.RefreshTokenCodeGrant) {
		return nil, nil, oauth2.ErrUnauthorizedGrant
	}
	redeemed, err := m.refresh.Redeem(ctx, refresh.RedeemRequest{TenantID: tenantID, ClientID: client.ID, Value: value})
	var reuse *refresh.ReuseError
	if apperrors.As(err, &reuse) {
		if rerr := m.repo.Revoke(ctx, tenantID, reuse.SessionID, m.nowTime()); rerr != nil && !apperrors.Is(rerr, ErrNotFound) {
			return nil, nil, errors.Wrap(rerr, "[Manager.Refresh] Revoke")
		}
		return nil, nil, err
	}
	if err != nil {
		return nil, nil, errors.Wrap(err, "[Manager.Refresh]")
	}
	s, err := m.GetActive(ctx, tenantID, redeemed.Token.SessionID)
	if err != nil {
		return nil, nil, errors.Wrap(err, "[Manager.Refresh]")
	}
	return redeemed, s, nil
}

// Revoke ends a session and every refresh token bound to it.
func (m *Manager) Revoke(ctx context.Context, tenantID, id string) error {
	if err := m.repo.Revoke(ctx, tenantID, id, m.nowTime()); err != nil {
		return errors.Wrap(err, "[Manager.Revoke]")
	}
	if _, err := m.refresh.RevokeSession(ctx, tenantID, id); err != nil {
		return errors.Wrap(err, "[Manager.Revoke]")
	}
	return nil
}
