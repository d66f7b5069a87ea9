package clients

import "context"

// Repo stores clients. Client ids are unique across tenants so Find can
// locate a client before its tenant is known.
type Repo interface {
	Upsert(ctx context.Context, client *Client) error
	Delete(ctx context.Context, tenantID, clientID string) error
	Get(ctx context.Context, tenantID, clientID string) (*Client, error)
	Find(ctx context.Context, clientID string) (*Client, error)
	List(ctx context.Context, tenantID string, offset, limit int) ([]*Client, error)
}
