package rbac

import "context"

// Repo stores RBAC entities. Every method is scoped to a tenant.
type Repo interface {
	UpsertOrganization(ctx context.Context, org Organization) error
	GetOrganization(ctx context.Context, tenantID, id string) (*Organization, error)

	UpsertRole(ctx context.Context, role Role) error
	// GetRoles returns the roles among ids that exist, keyed by id.
	GetRoles(ctx context.Context, tenantID string, ids []string) (map[string]Role, error)

	Assign(ctx context.Context, a RoleAssignment) error
	Unassign(ctx context.Context, a RoleAssignment) error
	Grant(ctx context.Context, g PermissionGrant) error
	Revoke(ctx context.Context, g PermissionGrant) error

	RoleAssignments(ctx context.Context, tenantID, userID string) ([]RoleAssignment, error)
	PermissionGrants(ctx context.Context, tenantID, userID string) ([]PermissionGrant, error)
}
