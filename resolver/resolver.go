// Package resolver turns a client identifier into the client, its tenant and
// the connections a login may use.
package resolver

import (
	"context"

	"github.com/jrsteele09/go-identity-server/clients"
	"github.com/jrsteele09/go-identity-server/connections"
	apperrors "github.com/jrsteele09/go-identity-server/internal/errors"
	"github.com/jrsteele09/go-identity-server/tenants"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// ClientContext is everything a login needs to know about the requesting client.
type ClientContext struct {
	Client      *clients.Client
	Tenant      *tenants.Tenant
	Connections []connections.Connection // enabled for the client, in precedence order
}

// Connection returns the enabled connection with the given id.
func (cc *ClientContext) Connection(id string) (connections.Connection, bool) {
	for _, c := range cc.Connections {
		if c.ID == id {
			return c, true
		}
	}
	return connections.Connection{}, false
}

// Options lists the enabled connections as login options.
func (cc *ClientContext) Options() []connections.Option {
	opts := make([]connections.Option, 0, len(cc.Connections))
	for _, c := range cc.Connections {
		opts = append(opts, c.AsOption())
	}
	return opts
}

type Resolver struct {
	clients     clients.Repo
	tenants     tenants.Repo
	connections connections.Repo
}

func New(clientRepo clients.Repo, tenantRepo tenants.Repo, connectionRepo connections.Repo) (*Resolver, error) {
	if clientRepo == nil {
		return nil, errors.New("[resolver.New] clients repo is required")
	}
	if tenantRepo == nil {
		return nil, errors.New("[resolver.New] tenants repo is required")
	}
	if connectionRepo == nil {
		return nil, errors.New("[resolver.New] connections repo is required")
	}
	return &Resolver{clients: clientRepo, tenants: tenantRepo, connections: connectionRepo}, nil
}

// Resolve loads the client, tenant and enabled connections. When tenantID is
// empty the client is looked up first and the tenant and connections are then
// fetched concurrently; with a known tenant all three are fetched concurrently.
func (r *Resolver) Resolve(ctx context.Context, clientID, tenantID string) (*ClientContext, error) {
	if clientID == "" {
		return nil, apperrors.New(apperrors.KindInvalid, "client id is required")
	}

	var (
		client      *clients.Client
		tenant      *tenants.Tenant
		tenantConns []connections.Connection
	)

	g, gctx := errgroup.WithContext(ctx)
	if tenantID == "" {
		c, err := r.clients.Find(ctx, clientID)
		if err != nil {
			return nil, errors.Wrap(err, "[Resolver.Resolve] clients.Find")
		}
		client = c
		tenantID = c.TenantID
	} else {
		g.Go(func() error {
			c, err := r.clients.Get(gctx, tenantID, clientID)
			if err != nil {
				return errors.Wrap(err, "[Resolver.Resolve] clients.Get")
			}
			client = c
			return nil
		})
	}
	g.Go(func() error {
		t, err := r.tenants.Get(gctx, tenantID)
		if err != nil {
			return errors.Wrap(err, "[Resolver.Resolve] tenants.Get")
		}
		tenant = t
		return nil
	})
	g.Go(func() error {
		list, err := r.connections.ListByTenant(gctx, tenantID)
		if err != nil {
			return errors.Wrap(err, "[Resolver.Resolve] connections.ListByTenant")
		}
		tenantConns = list
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &ClientContext{
		Client:      client,
		Tenant:      tenant,
		Connections: EnabledConnections(client, tenantConns),
	}, nil
}

// EnabledConnections applies connection precedence: a client with an explicit
// list gets exactly those connections, in its own order, skipping ids the
// tenant does not have. A client with no list gets every tenant connection.
func EnabledConnections(client *clients.Client, tenantConnections []connections.Connection) []connections.Connection {
	if client == nil || len(client.ConnectionIDs) == 0 {
		out := make([]connections.Connection, len(tenantConnections))
		copy(out, tenantConnections)
		return out
	}
	byID := make(map[string]connections.Connection, len(tenantConnections))
	for _, c := range tenantConnections {
		byID[c.ID] = c
	}
	out := make([]connections.Connection, 0, len(client.ConnectionIDs))
	seen := make(map[string]struct{}, len(client.ConnectionIDs))
	for _, id := range client.ConnectionIDs {
		c, ok := byID[id]
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, c)
	}
	return out
}
