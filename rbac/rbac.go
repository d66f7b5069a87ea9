// Package rbac resolves effective permissions from roles and direct grants,
// optionally narrowed to an organization.
package rbac

import (
	"sort"

	apperrors "github.com/jrsteele09/go-identity-server/internal/errors"
)

type Permission string

const (
	PermissionImpersonate Permission = "users:impersonate"
	PermissionReadUsers   Permission = "users:read"
	PermissionManageUsers Permission = "users:manage"
)

var (
	ErrRoleNotFound         = apperrors.New(apperrors.KindNotFound, "role not found")
	ErrOrganizationNotFound = apperrors.New(apperrors.KindNotFound, "organization not found")
)

type Organization struct {
	ID          string
	TenantID    string
	Name        string
	DisplayName string
}

type Role struct {
	ID          string
	TenantID    string
	Name        string
	Description string
	Permissions []Permission
}

// RoleAssignment gives a user a role within a scope.
type RoleAssignment struct {
	TenantID string
	UserID   string
	RoleID   string
	Scope    Scope
}

// PermissionGrant gives a user a single permission within a scope.
type PermissionGrant struct {
	TenantID   string
	UserID     string
	Permission Permission
	Scope      Scope
}

// PermissionSet is an unordered set of permissions.
type PermissionSet map[Permission]struct{}

func NewPermissionSet(perms ...Permission) PermissionSet {
	s := make(PermissionSet, len(perms))
	for _, p := range perms {
		s[p] = struct{}{}
	}
	return s
}

func (s PermissionSet) Has(p Permission) bool {
	_, ok := s[p]
	return ok
}

// Sorted returns the permissions as sorted strings, the form carried in tokens.
func (s PermissionSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for p := range s {
		out = append(out, string(p))
	}
	sort.Strings(out)
	return out
}

func (s PermissionSet) Clone() PermissionSet {
	out := make(PermissionSet, len(s))
	for p := range s {
		out[p] = struct{}{}
	}
	return out
}

// Effective computes the permissions in force for a request made in scope:
// direct grants plus the permissions of assigned roles, keeping only those
// whose own scope applies. Role ids missing from roles contribute nothing.
// It has no side effects and depends only on its arguments.
func Effective(assignments []RoleAssignment, grants []PermissionGrant, roles map[string]Role, scope Scope) PermissionSet {
	out := make(PermissionSet)
	for _, g := range grants {
		if g.Scope.AppliesTo(scope) {
			out[g.Permission] = struct{}{}
		}
	}
	for _, a := range assignments {
		if !a.Scope.AppliesTo(scope) {
			continue
		}
		role, ok := roles[a.RoleID]
		if !ok {
			continue
		}
		for _, p := range role.Permissions {
			out[p] = struct{}{}
		}
	}
	return out
}
