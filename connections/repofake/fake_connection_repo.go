package fakeconnectionrepo

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-identity-server/connections"
	apperrors "github.com/jrsteele09/go-identity-server/internal/errors"
)

var _ connections.Repo = (*FakeConnectionRepo)(nil)

type FakeConnectionRepo struct {
	connections map[string]map[string]connections.Connection // tenant -> id -> connection
	lock        sync.RWMutex
}

func NewFakeConnectionRepo() *FakeConnectionRepo {
	return &FakeConnectionRepo{
		connections: make(map[string]map[string]connections.Connection),
	}
}

func (r *FakeConnectionRepo) Upsert(_ context.Context, c *connections.Connection) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if c.ID == "" {
		c.ID = "con_" + uuid.New().String()
	}
	if _, ok := r.connections[c.TenantID]; !ok {
		r.connections[c.TenantID] = make(map[string]connections.Connection)
	}
	r.connections[c.TenantID][c.ID] = *c
	return nil
}

func (r *FakeConnectionRepo) Delete(_ context.Context, tenantID, connectionID string) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	delete(r.connections[tenantID], connectionID)
	return nil
}

func (r *FakeConnectionRepo) Get(_ context.Context, tenantID, connectionID string) (*connections.Connection, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	c, ok := r.connections[tenantID][connectionID]
	if !ok {
		return nil, apperrors.Newf(apperrors.KindNotFound, "connection %q not found", connectionID)
	}
	return &c, nil
}

func (r *FakeConnectionRepo) ListByTenant(_ context.Context, tenantID string) ([]connections.Connection, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	list := make([]connections.Connection, 0, len(r.connections[tenantID]))
	for _, c := range r.connections[tenantID] {
		list = append(list, c)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].ID < list[j].ID
	})
	return list, nil
}
