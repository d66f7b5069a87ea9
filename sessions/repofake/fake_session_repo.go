package fakesessionrepo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jrsteele09/go-identity-server/sessions"
)

var _ sessions.Repo = (*FakeSessionRepo)(nil)

type key struct {
	tenantID string
	id       string
}

type FakeSessionRepo struct {
	sessions map[key]sessions.Session
	lock     sync.RWMutex
}

func NewFakeSessionRepo() *FakeSessionRepo {
	return &FakeSessionRepo{
		sessions: make(map[key]sessions.Session),
	}
}

func (r *FakeSessionRepo) Create(_ context.Context, s *sessions.Session) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	k := key{tenantID: s.TenantID, id: s.ID}
	if _, exists := r.sessions[k]; exists {
		return sessions.ErrExists
	}
	r.sessions[k] = clone(*s)
	return nil
}

func (r *FakeSessionRepo) Get(_ context.Context, tenantID, id string) (*sessions.Session, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	s, ok := r.sessions[key{tenantID: tenantID, id: id}]
	if !ok {
		return nil, sessions.ErrNotFound
	}
	s = clone(s)
	return &s, nil
}

func (r *FakeSessionRepo) Join(_ context.Context, tenantID, id, clientID string, now, idleExpiresAt time.Time) (*sessions.Session, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	k := key{tenantID: tenantID, id: id}
	s, ok := r.sessions[k]
	if !ok {
		return nil, sessions.ErrNotFound
	}
	if !s.Active(now) {
		return nil, sessions.ErrInactive
	}
	if !s.HasClient(clientID) {
		s.Clients = append(s.Clients, clientID)
	}
	s.LastInteractionAt = now
	s.IdleExpiresAt = idleExpiresAt
	r.sessions[k] = s
	out := clone(s)
	return &out, nil
}

func (r *FakeSessionRepo) Revoke(_ context.Context, tenantID, id string, now time.Time) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	k := key{tenantID: tenantID, id: id}
	s, ok := r.sessions[k]
	if !ok {
		return sessions.ErrNotFound
	}
	if s.RevokedAt == nil {
		revokedAt := now
		s.RevokedAt = &revokedAt
		r.sessions[k] = s
	}
	return nil
}

func (r *FakeSessionRepo) ListByUser(_ context.Context, tenantID, userID string) ([]*sessions.Session, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	var out []*sessions.Session
	for k, s := range r.sessions {
		if k.tenantID == tenantID && s.UserID == userID {
			c := clone(s)
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func clone(s sessions.Session) sessions.Session {
	s.Clients = append([]string(nil), s.Clients...)
	s.AuthMethods = append([]string(nil), s.AuthMethods...)
	if s.RevokedAt != nil {
		v := *s.RevokedAt
		s.RevokedAt = &v
	}
	return s
}
