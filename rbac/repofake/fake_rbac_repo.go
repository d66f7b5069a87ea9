package fakerbacrepo

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-identity-server/rbac"
)

var _ rbac.Repo = (*FakeRBACRepo)(nil)

type entityKey struct {
	tenantID string
	id       string
}

type userKey struct {
	tenantID string
	userID   string
}

type FakeRBACRepo struct {
	organizations map[entityKey]rbac.Organization
	roles         map[entityKey]rbac.Role
	assignments   map[userKey][]rbac.RoleAssignment
	grants        map[userKey][]rbac.PermissionGrant
	lock          sync.RWMutex
}

func NewFakeRBACRepo() *FakeRBACRepo {
	return &FakeRBACRepo{
		organizations: make(map[entityKey]rbac.Organization),
		roles:         make(map[entityKey]rbac.Role),
		assignments:   make(map[userKey][]rbac.RoleAssignment),
		grants:        make(map[userKey][]rbac.PermissionGrant),
	}
}

func (r *FakeRBACRepo) UpsertOrganization(_ context.Context, org rbac.Organization) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.organizations[entityKey{tenantID: org.TenantID, id: org.ID}] = org
	return nil
}

func (r *FakeRBACRepo) GetOrganization(_ context.Context, tenantID, id string) (*rbac.Organization, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	org, ok := r.organizations[entityKey{tenantID: tenantID, id: id}]
	if !ok {
		return nil, rbac.ErrOrganizationNotFound
	}
	return &org, nil
}

func (r *FakeRBACRepo) UpsertRole(_ context.Context, role rbac.Role) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	role.Permissions = append([]rbac.Permission(nil), role.Permissions...)
	r.roles[entityKey{tenantID: role.TenantID, id: role.ID}] = role
	return nil
}

func (r *FakeRBACRepo) GetRoles(_ context.Context, tenantID string, ids []string) (map[string]rbac.Role, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	out := make(map[string]rbac.Role, len(ids))
	for _, id := range ids {
		if role, ok := r.roles[entityKey{tenantID: tenantID, id: id}]; ok {
			role.Permissions = append([]rbac.Permission(nil), role.Permissions...)
			out[id] = role
		}
	}
	return out, nil
}

func (r *FakeRBACRepo) Assign(_ context.Context, a rbac.RoleAssignment) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	k := userKey{tenantID: a.TenantID, userID: a.UserID}
	for _, existing := range r.assignments[k] {
		if existing == a {
			return nil
		}
	}
	r.assignments[k] = append(r.assignments[k], a)
	return nil
}

func (r *FakeRBACRepo) Unassign(_ context.Context, a rbac.RoleAssignment) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	k := userKey{tenantID: a.TenantID, userID: a.UserID}
	kept := r.assignments[k][:0]
	for _, existing := range r.assignments[k] {
		if existing != a {
			kept = append(kept, existing)
		}
	}
	r.assignments[k] = kept
	return nil
}

func (r *FakeRBACRepo) Grant(_ context.Context, g rbac.PermissionGrant) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	k := userKey{tenantID: g.TenantID, userID: g.UserID}
	for _, existing := range r.grants[k] {
		if existing == g {
			return nil
		}
	}
	r.grants[k] = append(r.grants[k], g)
	return nil
}

func (r *FakeRBACRepo) Revoke(_ context.Context, g rbac.PermissionGrant) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	k := userKey{tenantID: g.TenantID, userID: g.UserID}
	kept := r.grants[k][:0]
	for _, existing := range r.grants[k] {
		if existing != g {
			kept = append(kept, existing)
		}
	}
	r.grants[k] = kept
	return nil
}

func (r *FakeRBACRepo) RoleAssignments(_ context.Context, tenantID, userID string) ([]rbac.RoleAssignment, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return append([]rbac.RoleAssignment(nil), r.assignments[userKey{tenantID: tenantID, userID: userID}]...), nil
}

func (r *FakeRBACRepo) PermissionGrants(_ context.Context, tenantID, userID string) ([]rbac.PermissionGrant, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return append([]rbac.PermissionGrant(nil), r.grants[userKey{tenantID: tenantID, userID: userID}]...), nil
}
