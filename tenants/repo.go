package tenants

import "context"

// Repo stores tenants. Get returns an error matching errors.ErrNotFound when
// the tenant does not exist.
type Repo interface {
	Upsert(ctx context.Context, tenant *Tenant) error
	Delete(ctx context.Context, tenantID string) error
	Get(ctx context.Context, tenantID string) (*Tenant, error)
	List(ctx context.Context, offset, limit int) ([]*Tenant, error)
}
