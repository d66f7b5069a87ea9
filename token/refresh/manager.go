package refresh

import (
	"context"
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-identity-server/clients"
	"github.com/jrsteele09/go-identity-server/internal/audit"
	apperrors "github.com/jrsteele09/go-identity-server/internal/errors"
	"github.com/jrsteele09/go-identity-server/internal/metrics"
	"github.com/jrsteele09/go-identity-server/internal/utils"
	"github.com/pkg/errors"
)

const secretBytes = 32

// Manager mints refresh tokens and redeems them.
type Manager struct {
	repo            Repo
	reporter        audit.Reporter
	nowTime         func() time.Time
	defaultLifetime time.Duration
	defaultIdle     time.Duration
}

type ManagerOption func(*Manager)

func WithNowTime(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowTime = now
	}
}

// WithDefaultLifetimes sets the lifetimes used when a client policy leaves
// them at zero. An idle lifetime of zero disables idle expiry.
func WithDefaultLifetimes(lifetime, idle time.Duration) ManagerOption {
	return func(m *Manager) {
		m.defaultLifetime = lifetime
		m.defaultIdle = idle
	}
}

func NewManager(repo Repo, reporter audit.Reporter, options ...ManagerOption) (*Manager, error) {
	if repo == nil {
		return nil, errors.New("[refresh.NewManager] repo is required")
	}
	if reporter == nil {
		return nil, errors.New("[refresh.NewManager] reporter is required")
	}
	m := &Manager{
		repo:            repo,
		reporter:        reporter,
		nowTime:         time.Now,
		defaultLifetime: 30 * 24 * time.Hour,
		defaultIdle:     7 * 24 * time.Hour,
	}
	for _, opt := range options {
		opt(m)
	}
	return m, nil
}

type MintRequest struct {
	TenantID     string
	SessionID    string
	ClientID     string
	UserID       string
	Scope        string
	Audience     string
	Organization string
	Policy       clients.RefreshTokenPolicy
}

// Issued carries the raw value, which is only available when minted.
type Issued struct {
	Value string
	Token Token
}

func (m *Manager) Mint(ctx context.Context, req MintRequest) (*Issued, error) {
	if req.TenantID == "" || req.SessionID == "" || req.ClientID == "" || req.UserID == "" {
		return nil, apperrors.New(apperrors.KindInvalid, "tenant, session, client and user are required")
	}
	lifetime := req.Policy.Lifetime
	if lifetime == 0 {
		lifetime = m.defaultLifetime
	}
	idle := req.Policy.IdleLifetime
	if idle == 0 {
		idle = m.defaultIdle
	}
	now := m.nowTime()
	issued, err := m.newToken(Token{
		TenantID:     req.TenantID,
		SessionID:    req.SessionID,
		ClientID:     req.ClientID,
		UserID:       req.UserID,
		Rotating:     req.Policy.Rotating,
		Scope:        req.Scope,
		Audience:     req.Audience,
		Organization: req.Organization,
	}, now, lifetime, idle)
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.Mint]")
	}
	if err := m.repo.Create(ctx, issued.Token); err != nil {
		return nil, errors.Wrap(err, "[Manager.Mint] Create")
	}
	return issued, nil
}

type RedeemRequest struct {
	TenantID string
	ClientID string
	Value    string
}

// Redeemed is the outcome of a successful redemption. Value is the token the
// client must use from now on: a new one after rotation, otherwise the one
// presented.
type Redeemed struct {
	Token   Token
	Value   string
	Rotated bool
}

// Redeem validates a presented refresh token. Rotating tokens are replaced
// by a new token bound to the same session and client. Presenting a token
// that was already rotated away revokes every token of its session and
// returns ErrSuperseded.
func (m *Manager) Redeem(ctx context.Context, req RedeemRequest) (*Redeemed, error) {
	redeemed, err := m.redeem(ctx, req)
	metrics.RecordRefresh(resultLabel(err))
	return redeemed, err
}

func (m *Manager) redeem(ctx context.Context, req RedeemRequest) (*Redeemed, error) {
	id, secret, err := ParseValue(req.Value)
	if err != nil {
		return nil, err
	}
	current, err := m.repo.Get(ctx, req.TenantID, id)
	if apperrors.Is(err, apperrors.ErrNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.Redeem] Get")
	}
	secretHash := utils.SHA256Hex(secret)
	if subtle.ConstantTimeCompare([]byte(secretHash), []byte(current.SecretHash)) != 1 || current.ClientID != req.ClientID {
		return nil, ErrInvalidToken
	}

	now := m.nowTime()
	if err := current.Check(now); err != nil {
		if apperrors.Is(err, ErrSuperseded) {
			m.revokeFamily(ctx, current, now)
			return nil, &ReuseError{SessionID: current.SessionID}
		}
		return nil, err
	}

	lifetime, idle := current.lifetimes()
	if !current.Rotating {
		next := *current
		next.LastUsedAt = now
		if idle > 0 {
			next.IdleExpiresAt = now.Add(idle)
		}
		if err := m.repo.Touch(ctx, req.TenantID, id, secretHash, now, next.IdleExpiresAt); err != nil {
			return nil, m.storeFailure(ctx, current, now, err, "[Manager.Redeem] Touch")
		}
		return &Redeemed{Token: next, Value: req.Value}, nil
	}

	issued, err := m.newToken(Token{
		TenantID:     current.TenantID,
		SessionID:    current.SessionID,
		ClientID:     current.ClientID,
		UserID:       current.UserID,
		Rotating:     true,
		Scope:        current.Scope,
		Audience:     current.Audience,
		Organization: current.Organization,
	}, now, lifetime, idle)
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.Redeem]")
	}
	if err := m.repo.Rotate(ctx, req.TenantID, id, secretHash, issued.Token, now); err != nil {
		return nil, m.storeFailure(ctx, current, now, err, "[Manager.Redeem] Rotate")
	}
	return &Redeemed{Token: issued.Token, Value: issued.Value, Rotated: true}, nil
}

// RevokeSession revokes every refresh token of a session.
func (m *Manager) RevokeSession(ctx context.Context, tenantID, sessionID string) (int, error) {
	n, err := m.repo.RevokeSession(ctx, tenantID, sessionID, m.nowTime())
	return n, errors.Wrap(err, "[Manager.RevokeSession]")
}

// storeFailure handles a Rotate/Touch failure. Losing the race to a
// concurrent rotation is reuse like any other.
func (m *Manager) storeFailure(ctx context.Context, t *Token, now time.Time, err error, op string) error {
	if apperrors.Is(err, ErrSuperseded) {
		m.revokeFamily(ctx, t, now)
		return &ReuseError{SessionID: t.SessionID}
	}
	if apperrors.KindOf(err) != apperrors.KindStorage {
		return err
	}
	return errors.Wrap(err, op)
}

func (m *Manager) revokeFamily(ctx context.Context, t *Token, now time.Time) {
	m.reporter.Report(ctx, audit.Event{
		Type:      audit.EventRefreshTokenReuse,
		TenantID:  t.TenantID,
		UserID:    t.UserID,
		ClientID:  t.ClientID,
		SessionID: t.SessionID,
		TokenID:   t.ID,
		Detail:    "superseded refresh token presented",
		At:        now,
	})
	n, err := m.repo.RevokeSession(ctx, t.TenantID, t.SessionID, now)
	detail := fmt.Sprintf("revoked %d refresh tokens", n)
	if err != nil {
		detail = "revoking refresh tokens failed: " + err.Error()
	}
	m.reporter.Report(ctx, audit.Event{
		Type:      audit.EventSessionFamilyRevoke,
		TenantID:  t.TenantID,
		UserID:    t.UserID,
		ClientID:  t.ClientID,
		SessionID: t.SessionID,
		Detail:    detail,
		At:        now,
	})
}

func (m *Manager) newToken(t Token, now time.Time, lifetime, idle time.Duration) (*Issued, error) {
	secret, err := utils.RandomURLToken(secretBytes)
	if err != nil {
		return nil, err
	}
	t.ID = uuid.New().String()
	t.SecretHash = utils.SHA256Hex(secret)
	t.CreatedAt = now
	t.LastUsedAt = now
	t.ExpiresAt = now.Add(lifetime)
	if idle > 0 {
		t.IdleExpiresAt = now.Add(idle)
	}
	return &Issued{Value: FormatValue(t.ID, secret), Token: t}, nil
}

// lifetimes recovers the policy a token was minted with.
func (t *Token) lifetimes() (lifetime, idle time.Duration) {
	lifetime = t.ExpiresAt.Sub(t.CreatedAt)
	if !t.IdleExpiresAt.IsZero() {
		idle = t.IdleExpiresAt.Sub(t.LastUsedAt)
	}
	return lifetime, idle
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	return string(apperrors.KindOf(err))
}
