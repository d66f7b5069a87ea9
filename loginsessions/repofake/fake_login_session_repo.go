package fakeloginsessionrepo

import (
	"context"
	"sync"
	"time"

	"github.com/jrsteele09/go-identity-server/loginsessions"
)

var _ loginsessions.Repo = (*FakeLoginSessionRepo)(nil)

type key struct {
	tenantID string
	id       string
}

type FakeLoginSessionRepo struct {
	sessions map[key]loginsessions.LoginSession
	lock     sync.RWMutex
}

func NewFakeLoginSessionRepo() *FakeLoginSessionRepo {
	return &FakeLoginSessionRepo{
		sessions: make(map[key]loginsessions.LoginSession),
	}
}

func (r *FakeLoginSessionRepo) Create(_ context.Context, ls *loginsessions.LoginSession) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	k := key{tenantID: ls.TenantID, id: ls.ID}
	if _, exists := r.sessions[k]; exists {
		return loginsessions.ErrConflict
	}
	r.sessions[k] = clone(*ls)
	return nil
}

func (r *FakeLoginSessionRepo) Get(_ context.Context, tenantID, id string) (*loginsessions.LoginSession, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	ls, ok := r.sessions[key{tenantID: tenantID, id: id}]
	if !ok {
		return nil, loginsessions.ErrNotFound
	}
	ls = clone(ls)
	return &ls, nil
}

func (r *FakeLoginSessionRepo) Update(_ context.Context, ls *loginsessions.LoginSession) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	k := key{tenantID: ls.TenantID, id: ls.ID}
	stored, ok := r.sessions[k]
	if !ok {
		return loginsessions.ErrNotFound
	}
	if stored.State != loginsessions.StatePending || stored.Version != ls.Version {
		return loginsessions.ErrConflict
	}
	ls.Version++
	r.sessions[k] = clone(*ls)
	return nil
}

func (r *FakeLoginSessionRepo) AttachSession(_ context.Context, tenantID, id, sessionID string) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	k := key{tenantID: tenantID, id: id}
	stored, ok := r.sessions[k]
	if !ok {
		return loginsessions.ErrNotFound
	}
	if stored.State != loginsessions.StateCompleted {
		return loginsessions.ErrTerminal
	}
	stored.SessionID = sessionID
	stored.Version++
	r.sessions[k] = stored
	return nil
}

func (r *FakeLoginSessionRepo) ExpirePending(_ context.Context, now time.Time) (int, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	n := 0
	for k, ls := range r.sessions {
		if ls.State == loginsessions.StatePending && !now.Before(ls.ExpiresAt) {
			ls.State = loginsessions.StateExpired
			ls.UpdatedAt = now
			ls.Version++
			r.sessions[k] = ls
			n++
		}
	}
	return n, nil
}

func (r *FakeLoginSessionRepo) Delete(_ context.Context, tenantID, id string) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	delete(r.sessions, key{tenantID: tenantID, id: id})
	return nil
}

func clone(ls loginsessions.LoginSession) loginsessions.LoginSession {
	if ls.AuthParams.MaxAge != nil {
		v := *ls.AuthParams.MaxAge
		ls.AuthParams.MaxAge = &v
	}
	if ls.StateData.CodeExpiresAt != nil {
		v := *ls.StateData.CodeExpiresAt
		ls.StateData.CodeExpiresAt = &v
	}
	if ls.StateData.LinkCandidate != nil {
		v := *ls.StateData.LinkCandidate
		ls.StateData.LinkCandidate = &v
	}
	return ls
}
