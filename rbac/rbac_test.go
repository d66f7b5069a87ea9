package rbac_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	apperrors "github.com/jrsteele09/go-identity-server/internal/errors"
	"github.com/jrsteele09/go-identity-server/rbac"
	fakerbacrepo "github.com/jrsteele09/go-identity-server/rbac/repofake"
	"github.com/stretchr/testify/require"
)

const (
	tenantID = "tenant-1"
	userID   = "user-1"
)

func seed(t *testing.T) *fakerbacrepo.FakeRBACRepo {
	t.Helper()
	ctx := context.Background()
	repo := fakerbacrepo.NewFakeRBACRepo()
	require.NoError(t, repo.UpsertOrganization(ctx, rbac.Organization{ID: "org-a", TenantID: tenantID, Name: "a"}))
	require.NoError(t, repo.UpsertOrganization(ctx, rbac.Organization{ID: "org-b", TenantID: tenantID, Name: "b"}))
	require.NoError(t, repo.UpsertRole(ctx, rbac.Role{ID: "viewer", TenantID: tenantID, Permissions: []rbac.Permission{"reports:read"}}))
	require.NoError(t, repo.UpsertRole(ctx, rbac.Role{ID: "editor", TenantID: tenantID, Permissions: []rbac.Permission{"reports:write", "reports:read"}}))
	require.NoError(t, repo.UpsertRole(ctx, rbac.Role{ID: "billing", TenantID: tenantID, Permissions: []rbac.Permission{"invoices:read"}}))

	require.NoError(t, repo.Grant(ctx, rbac.PermissionGrant{TenantID: tenantID, UserID: userID, Permission: "profile:read", Scope: rbac.Global()}))
	require.NoError(t, repo.Grant(ctx, rbac.PermissionGrant{TenantID: tenantID, UserID: userID, Permission: "members:invite", Scope: rbac.InOrganization("org-a")}))
	require.NoError(t, repo.Grant(ctx, rbac.PermissionGrant{TenantID: tenantID, UserID: userID, Permission: "members:remove", Scope: rbac.InOrganization("org-b")}))
	require.NoError(t, repo.Assign(ctx, rbac.RoleAssignment{TenantID: tenantID, UserID: userID, RoleID: "viewer", Scope: rbac.Global()}))
	require.NoError(t, repo.Assign(ctx, rbac.RoleAssignment{TenantID: tenantID, UserID: userID, RoleID: "editor", Scope: rbac.InOrganization("org-a")}))
	require.NoError(t, repo.Assign(ctx, rbac.RoleAssignment{TenantID: tenantID, UserID: userID, RoleID: "billing", Scope: rbac.InOrganization("org-b")}))
	return repo
}

func TestScope(t *testing.T) {
	require.True(t, rbac.Global().IsGlobal())
	require.Equal(t, rbac.Global(), rbac.ScopeFromOrganization(""))
	require.Equal(t, rbac.InOrganization("org-a"), rbac.ScopeFromOrganization("org-a"))

	org, ok := rbac.InOrganization("org-a").Organization()
	require.True(t, ok)
	require.Equal(t, "org-a", org)
	_, ok = rbac.Global().Organization()
	require.False(t, ok)

	require.True(t, rbac.Global().AppliesTo(rbac.InOrganization("org-a")))
	require.True(t, rbac.InOrganization("org-a").AppliesTo(rbac.InOrganization("org-a")))
	require.False(t, rbac.InOrganization("org-a").AppliesTo(rbac.InOrganization("org-b")))
	require.False(t, rbac.InOrganization("org-a").AppliesTo(rbac.Global()))
	// An organization literally named "" is still distinct from global.
	require.False(t, rbac.InOrganization("").IsGlobal())
}

func TestResolveGlobal(t *testing.T) {
	resolver, err := rbac.NewResolver(seed(t))
	require.NoError(t, err)

	perms, err := resolver.Resolve(context.Background(), tenantID, userID, rbac.Global())
	require.NoError(t, err)
	require.Equal(t, []string{"profile:read", "reports:read"}, perms.Sorted())
}

func TestResolveOrganizationIsGlobalPlusThatOrganization(t *testing.T) {
	ctx := context.Background()
	resolver, err := rbac.NewResolver(seed(t))
	require.NoError(t, err)

	global, err := resolver.Resolve(ctx, tenantID, userID, rbac.Global())
	require.NoError(t, err)
	inA, err := resolver.Resolve(ctx, tenantID, userID, rbac.InOrganization("org-a"))
	require.NoError(t, err)

	require.Equal(t, []string{"members:invite", "profile:read", "reports:read", "reports:write"}, inA.Sorted())
	for p := range global {
		require.True(t, inA.Has(p))
	}
	require.False(t, inA.Has("members:remove"))
	require.False(t, inA.Has("invoices:read"))
}

func TestResolveUnknownOrganization(t *testing.T) {
	resolver, err := rbac.NewResolver(seed(t))
	require.NoError(t, err)
	_, err = resolver.Resolve(context.Background(), tenantID, userID, rbac.InOrganization("org-x"))
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestResolveIsTenantScoped(t *testing.T) {
	resolver, err := rbac.NewResolver(seed(t))
	require.NoError(t, err)
	perms, err := resolver.Resolve(context.Background(), "tenant-2", userID, rbac.Global())
	require.NoError(t, err)
	require.Empty(t, perms)
}

func TestEffectiveIsPure(t *testing.T) {
	roles := map[string]rbac.Role{"r": {ID: "r", Permissions: []rbac.Permission{"a", "b"}}}
	assignments := []rbac.RoleAssignment{{RoleID: "r", Scope: rbac.InOrganization("o1")}, {RoleID: "missing", Scope: rbac.Global()}}
	grants := []rbac.PermissionGrant{{Permission: "c", Scope: rbac.Global()}, {Permission: "d", Scope: rbac.InOrganization("o2")}}

	first := rbac.Effective(assignments, grants, roles, rbac.InOrganization("o1"))
	second := rbac.Effective(assignments, grants, roles, rbac.InOrganization("o1"))
	require.Equal(t, first, second)
	require.Equal(t, []string{"a", "b", "c"}, first.Sorted())
	require.Len(t, roles["r"].Permissions, 2)
	require.Equal(t, []string{"c", "d"}, rbac.Effective(assignments, grants, roles, rbac.InOrganization("o2")).Sorted())
}

type countingResolver struct {
	calls atomic.Int32
	next  rbac.PermissionResolver
}

func (c *countingResolver) Resolve(ctx context.Context, tenantID, userID string, scope rbac.Scope) (rbac.PermissionSet, error) {
	c.calls.Add(1)
	return c.next.Resolve(ctx, tenantID, userID, scope)
}

func TestCachedResolver(t *testing.T) {
	ctx := context.Background()
	repo := seed(t)
	inner, err := rbac.NewResolver(repo)
	require.NoError(t, err)
	counting := &countingResolver{next: inner}
	cached, err := rbac.NewCachedResolver(counting, 100, time.Minute)
	require.NoError(t, err)

	perms, err := cached.Resolve(ctx, tenantID, userID, rbac.Global())
	require.NoError(t, err)
	perms["tampered"] = struct{}{}

	again, err := cached.Resolve(ctx, tenantID, userID, rbac.Global())
	require.NoError(t, err)
	require.False(t, again.Has("tampered"))
	require.Equal(t, int32(1), counting.calls.Load())

	// A different scope is a different entry.
	_, err = cached.Resolve(ctx, tenantID, userID, rbac.InOrganization("org-a"))
	require.NoError(t, err)
	require.Equal(t, int32(2), counting.calls.Load())

	require.NoError(t, repo.Grant(ctx, rbac.PermissionGrant{TenantID: tenantID, UserID: userID, Permission: "new:perm", Scope: rbac.Global()}))
	stale, err := cached.Resolve(ctx, tenantID, userID, rbac.Global())
	require.NoError(t, err)
	require.False(t, stale.Has("new:perm"))

	cached.InvalidateUser(tenantID, userID)
	fresh, err := cached.Resolve(ctx, tenantID, userID, rbac.Global())
	require.NoError(t, err)
	require.True(t, fresh.Has("new:perm"))
}

func TestCachedResolverTenantInvalidation(t *testing.T) {
	ctx := context.Background()
	inner, err := rbac.NewResolver(seed(t))
	require.NoError(t, err)
	counting := &countingResolver{next: inner}
	cached, err := rbac.NewCachedResolver(counting, 100, time.Minute)
	require.NoError(t, err)

	_, err = cached.Resolve(ctx, tenantID, userID, rbac.Global())
	require.NoError(t, err)
	_, err = cached.Resolve(ctx, "tenant-2", userID, rbac.Global())
	require.NoError(t, err)
	require.Equal(t, int32(2), counting.calls.Load())

	cached.InvalidateTenant("tenant-2")
	_, err = cached.Resolve(ctx, tenantID, userID, rbac.Global())
	require.NoError(t, err)
	require.Equal(t, int32(2), counting.calls.Load())
	_, err = cached.Resolve(ctx, "tenant-2", userID, rbac.Global())
	require.NoError(t, err)
	require.Equal(t, int32(3), counting.calls.Load())
}

func TestInvalidatingRepoRefreshesCachedPermissions(t *testing.T) {
	ctx := context.Background()
	repo := seed(t)
	inner, err := rbac.NewResolver(repo)
	require.NoError(t, err)
	cached, err := rbac.NewCachedResolver(inner, 100, time.Hour)
	require.NoError(t, err)
	store := rbac.NewInvalidatingRepo(repo, cached)

	perms, err := cached.Resolve(ctx, tenantID, userID, rbac.Global())
	require.NoError(t, err)
	require.False(t, perms.Has("new:perm"))

	grant := rbac.PermissionGrant{TenantID: tenantID, UserID: userID, Permission: "new:perm", Scope: rbac.Global()}
	require.NoError(t, store.Grant(ctx, grant))
	perms, err = cached.Resolve(ctx, tenantID, userID, rbac.Global())
	require.NoError(t, err)
	require.True(t, perms.Has("new:perm"))

	require.NoError(t, store.Revoke(ctx, grant))
	perms, err = cached.Resolve(ctx, tenantID, userID, rbac.Global())
	require.NoError(t, err)
	require.False(t, perms.Has("new:perm"))

	// a role edit reaches everyone holding the role
	require.NoError(t, store.UpsertRole(ctx, rbac.Role{ID: "viewer", TenantID: tenantID, Permissions: []rbac.Permission{"reports:read", "reports:export"}}))
	perms, err = cached.Resolve(ctx, tenantID, userID, rbac.Global())
	require.NoError(t, err)
	require.True(t, perms.Has("reports:export"))

	require.NoError(t, store.Unassign(ctx, rbac.RoleAssignment{TenantID: tenantID, UserID: userID, RoleID: "viewer", Scope: rbac.Global()}))
	perms, err = cached.Resolve(ctx, tenantID, userID, rbac.Global())
	require.NoError(t, err)
	require.False(t, perms.Has("reports:read"))
}
