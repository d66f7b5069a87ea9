package rbac

import "context"

var _ Repo = (*InvalidatingRepo)(nil)

// InvalidatingRepo drops the cached permissions a write can change. Role
// edits reach every holder of the role, so they clear the whole tenant;
// assignment and grant edits clear one user.
type InvalidatingRepo struct {
	Repo
	cache *CachedResolver
}

func NewInvalidatingRepo(repo Repo, cache *CachedResolver) *InvalidatingRepo {
	return &InvalidatingRepo{Repo: repo, cache: cache}
}

func (r *InvalidatingRepo) UpsertRole(ctx context.Context, role Role) error {
	if err := r.Repo.UpsertRole(ctx, role); err != nil {
		return err
	}
	r.cache.InvalidateTenant(role.TenantID)
	return nil
}

func (r *InvalidatingRepo) Assign(ctx context.Context, a RoleAssignment) error {
	if err := r.Repo.Assign(ctx, a); err != nil {
		return err
	}
	r.cache.InvalidateUser(a.TenantID, a.UserID)
	return nil
}

func (r *InvalidatingRepo) Unassign(ctx context.Context, a RoleAssignment) error {
	if err := r.Repo.Unassign(ctx, a); err != nil {
		return err
	}
	r.cache.InvalidateUser(a.TenantID, a.UserID)
	return nil
}

func (r *InvalidatingRepo) Grant(ctx context.Context, g PermissionGrant) error {
	if err := r.Repo.Grant(ctx, g); err != nil {
		return err
	}
	r.cache.InvalidateUser(g.TenantID, g.UserID)
	return nil
}

func (r *InvalidatingRepo) Revoke(ctx context.Context, g PermissionGrant) error {
	if err := r.Repo.Revoke(ctx, g); err != nil {
		return err
	}
	r.cache.InvalidateUser(g.TenantID, g.UserID)
	return nil
}
