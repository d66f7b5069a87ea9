package refreshrepofake

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/jrsteele09/go-identity-server/internal/errors"
	"github.com/jrsteele09/go-identity-server/token/refresh"
)

var _ refresh.Repo = (*FakeRefreshTokenRepo)(nil)

var errNotFound = apperrors.New(apperrors.KindNotFound, "refresh token not found")

type key struct {
	tenantID string
	id       string
}

type FakeRefreshTokenRepo struct {
	tokens map[key]refresh.Token
	lock   sync.Mutex
}

func NewFakeRefreshTokenRepo() *FakeRefreshTokenRepo {
	return &FakeRefreshTokenRepo{
		tokens: make(map[key]refresh.Token),
	}
}

func (r *FakeRefreshTokenRepo) Create(_ context.Context, t refresh.Token) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	k := key{tenantID: t.TenantID, id: t.ID}
	if _, exists := r.tokens[k]; exists {
		return refresh.ErrTokenExists
	}
	r.tokens[k] = clone(t)
	return nil
}

func (r *FakeRefreshTokenRepo) Get(_ context.Context, tenantID, id string) (*refresh.Token, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	t, ok := r.tokens[key{tenantID: tenantID, id: id}]
	if !ok {
		return nil, errNotFound
	}
	t = clone(t)
	return &t, nil
}

func (r *FakeRefreshTokenRepo) Rotate(_ context.Context, tenantID, oldID, secretHash string, next refresh.Token, now time.Time) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	k := key{tenantID: tenantID, id: oldID}
	old, err := r.checked(k, secretHash, now)
	if err != nil {
		return err
	}
	nk := key{tenantID: next.TenantID, id: next.ID}
	if _, exists := r.tokens[nk]; exists {
		return refresh.ErrTokenExists
	}
	old.SupersededBy = next.ID
	old.LastUsedAt = now
	r.tokens[k] = old
	r.tokens[nk] = clone(next)
	return nil
}

func (r *FakeRefreshTokenRepo) Touch(_ context.Context, tenantID, id, secretHash string, now, idleExpiresAt time.Time) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	k := key{tenantID: tenantID, id: id}
	t, err := r.checked(k, secretHash, now)
	if err != nil {
		return err
	}
	t.LastUsedAt = now
	t.IdleExpiresAt = idleExpiresAt
	r.tokens[k] = t
	return nil
}

func (r *FakeRefreshTokenRepo) RevokeSession(_ context.Context, tenantID, sessionID string, now time.Time) (int, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	n := 0
	for k, t := range r.tokens {
		if k.tenantID != tenantID || t.SessionID != sessionID || t.Revoked() {
			continue
		}
		revokedAt := now
		t.RevokedAt = &revokedAt
		r.tokens[k] = t
		n++
	}
	return n, nil
}

func (r *FakeRefreshTokenRepo) checked(k key, secretHash string, now time.Time) (refresh.Token, error) {
	t, ok := r.tokens[k]
	if !ok || t.SecretHash != secretHash {
		return refresh.Token{}, refresh.ErrInvalidToken
	}
	if err := t.Check(now); err != nil {
		return refresh.Token{}, err
	}
	return t, nil
}

func clone(t refresh.Token) refresh.Token {
	if t.RevokedAt != nil {
		v := *t.RevokedAt
		t.RevokedAt = &v
	}
	return t
}
