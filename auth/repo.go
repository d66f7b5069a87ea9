package auth

import (
	"context"

	"github.com/jrsteele09/go-identity-server/loginsessions"
	"github.com/jrsteele09/go-identity-server/rbac"
	"github.com/jrsteele09/go-identity-server/users"
)

// OrganizationRepo looks up the organizations an authorization request may
// name.
type OrganizationRepo interface {
	GetOrganization(ctx context.Context, tenantID, id string) (*rbac.Organization, error)
}

// Repos holds the stores the Service reads and writes directly.
type Repos struct {
	Users         users.UserRepo
	LoginSessions loginsessions.Repo
	Organizations OrganizationRepo
}
