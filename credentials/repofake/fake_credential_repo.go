package fakecredentialrepo

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-identity-server/credentials"
)

var _ credentials.Repo = (*FakeCredentialRepo)(nil)

type FakeCredentialRepo struct {
	records map[string][]credentials.PasswordRecord // tenant/user -> oldest first
	lock    sync.RWMutex
}

func NewFakeCredentialRepo() *FakeCredentialRepo {
	return &FakeCredentialRepo{
		records: make(map[string][]credentials.PasswordRecord),
	}
}

func key(tenantID, userID string) string {
	return tenantID + "/" + userID
}

func (r *FakeCredentialRepo) Add(_ context.Context, record credentials.PasswordRecord) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	k := key(record.TenantID, record.UserID)
	r.records[k] = append(r.records[k], record)
	return nil
}

func (r *FakeCredentialRepo) History(_ context.Context, tenantID, userID string, limit int) ([]credentials.PasswordRecord, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	all := r.records[key(tenantID, userID)]
	out := make([]credentials.PasswordRecord, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, all[i])
	}
	return out, nil
}

func (r *FakeCredentialRepo) DeleteAll(_ context.Context, tenantID, userID string) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	delete(r.records, key(tenantID, userID))
	return nil
}
