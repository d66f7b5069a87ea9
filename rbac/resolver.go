package rbac

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/jrsteele09/go-identity-server/internal/metrics"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// PermissionResolver returns the permissions a user holds in a scope.
type PermissionResolver interface {
	Resolve(ctx context.Context, tenantID, userID string, scope Scope) (PermissionSet, error)
}

var (
	_ PermissionResolver = (*Resolver)(nil)
	_ PermissionResolver = (*CachedResolver)(nil)
)

// Resolver loads a user's assignments and grants and applies Effective.
type Resolver struct {
	repo Repo
}

func NewResolver(repo Repo) (*Resolver, error) {
	if repo == nil {
		return nil, errors.New("[rbac.NewResolver] repo is required")
	}
	return &Resolver{repo: repo}, nil
}

func (r *Resolver) Resolve(ctx context.Context, tenantID, userID string, scope Scope) (PermissionSet, error) {
	var (
		assignments []RoleAssignment
		grants      []PermissionGrant
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		assignments, err = r.repo.RoleAssignments(gctx, tenantID, userID)
		return errors.Wrap(err, "RoleAssignments")
	})
	g.Go(func() error {
		var err error
		grants, err = r.repo.PermissionGrants(gctx, tenantID, userID)
		return errors.Wrap(err, "PermissionGrants")
	})
	if orgID, ok := scope.Organization(); ok {
		g.Go(func() error {
			_, err := r.repo.GetOrganization(gctx, tenantID, orgID)
			return errors.Wrap(err, "GetOrganization")
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errors.Wrap(err, "[Resolver.Resolve]")
	}

	roleIDs := make([]string, 0, len(assignments))
	for _, a := range assignments {
		if a.Scope.AppliesTo(scope) {
			roleIDs = append(roleIDs, a.RoleID)
		}
	}
	roles := map[string]Role{}
	if len(roleIDs) > 0 {
		var err error
		roles, err = r.repo.GetRoles(ctx, tenantID, roleIDs)
		if err != nil {
			return nil, errors.Wrap(err, "[Resolver.Resolve] GetRoles")
		}
	}
	return Effective(assignments, grants, roles, scope), nil
}

type cacheKey struct {
	tenantID string
	userID   string
	scope    Scope
}

// CachedResolver memoises another resolver per (tenant, user, scope) for a
// short TTL. Entries never cross tenants; invalidation is per tenant or user.
type CachedResolver struct {
	next  PermissionResolver
	cache *expirable.LRU[cacheKey, PermissionSet]
}

func NewCachedResolver(next PermissionResolver, size int, ttl time.Duration) (*CachedResolver, error) {
	if next == nil {
		return nil, errors.New("[rbac.NewCachedResolver] resolver is required")
	}
	if size <= 0 {
		return nil, errors.New("[rbac.NewCachedResolver] size must be positive")
	}
	return &CachedResolver{
		next:  next,
		cache: expirable.NewLRU[cacheKey, PermissionSet](size, nil, ttl),
	}, nil
}

func (c *CachedResolver) Resolve(ctx context.Context, tenantID, userID string, scope Scope) (PermissionSet, error) {
	key := cacheKey{tenantID: tenantID, userID: userID, scope: scope}
	if perms, ok := c.cache.Get(key); ok {
		metrics.RecordPermissionCache(true)
		return perms.Clone(), nil
	}
	metrics.RecordPermissionCache(false)
	perms, err := c.next.Resolve(ctx, tenantID, userID, scope)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, perms.Clone())
	return perms, nil
}

// InvalidateTenant drops every cached entry of a tenant.
func (c *CachedResolver) InvalidateTenant(tenantID string) {
	for _, k := range c.cache.Keys() {
		if k.tenantID == tenantID {
			c.cache.Remove(k)
		}
	}
}

// InvalidateUser drops the cached entries of one user in every scope.
func (c *CachedResolver) InvalidateUser(tenantID, userID string) {
	for _, k := range c.cache.Keys() {
		if k.tenantID == tenantID && k.userID == userID {
			c.cache.Remove(k)
		}
	}
}
