package fakeclientrepo

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-identity-server/clients"
	apperrors "github.com/jrsteele09/go-identity-server/internal/errors"
)

var _ clients.Repo = (*FakeClientRepo)(nil)

type FakeClientRepo struct {
	clients map[string]clients.Client // keyed by client id
	lock    sync.RWMutex
}

func NewFakeClientRepo() *FakeClientRepo {
	return &FakeClientRepo{
		clients: make(map[string]clients.Client),
	}
}

func (r *FakeClientRepo) Upsert(_ context.Context, client *clients.Client) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if client.ID == "" {
		client.ID = uuid.New().String()
	}
	if existing, ok := r.clients[client.ID]; ok && existing.TenantID != client.TenantID {
		return apperrors.Newf(apperrors.KindInvalid, "client %q belongs to another tenant", client.ID)
	}
	r.clients[client.ID] = *client
	return nil
}

func (r *FakeClientRepo) Delete(_ context.Context, tenantID, clientID string) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if c, ok := r.clients[clientID]; ok && c.TenantID == tenantID {
		delete(r.clients, clientID)
	}
	return nil
}

func (r *FakeClientRepo) Get(_ context.Context, tenantID, clientID string) (*clients.Client, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	c, ok := r.clients[clientID]
	if !ok || c.TenantID != tenantID {
		return nil, apperrors.Newf(apperrors.KindNotFound, "client %q not found in tenant %q", clientID, tenantID)
	}
	return &c, nil
}

func (r *FakeClientRepo) Find(_ context.Context, clientID string) (*clients.Client, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	c, ok := r.clients[clientID]
	if !ok {
		return nil, apperrors.Newf(apperrors.KindNotFound, "client %q not found", clientID)
	}
	return &c, nil
}

func (r *FakeClientRepo) List(_ context.Context, tenantID string, offset, limit int) ([]*clients.Client, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	list := make([]*clients.Client, 0)
	for _, v := range r.clients {
		if v.TenantID != tenantID {
			continue
		}
		v := v
		list = append(list, &v)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].ID < list[j].ID
	})
	if offset >= len(list) {
		return nil, nil
	}
	end := len(list)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return list[offset:end], nil
}
