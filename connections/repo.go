package connections

import "context"

type Repo interface {
	Upsert(ctx context.Context, connection *Connection) error
	Delete(ctx context.Context, tenantID, connectionID string) error
	Get(ctx context.Context, tenantID, connectionID string) (*Connection, error)
	// ListByTenant returns every connection of the tenant ordered by id.
	ListByTenant(ctx context.Context, tenantID string) ([]Connection, error)
}
