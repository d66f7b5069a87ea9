package server

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-identity-server/clients"
	"github.com/jrsteele09/go-identity-server/connections"
	"github.com/jrsteele09/go-identity-server/credentials"
	"github.com/jrsteele09/go-identity-server/internal/config"
	apperrors "github.com/jrsteele09/go-identity-server/internal/errors"
	"github.com/jrsteele09/go-identity-server/internal/utils"
	"github.com/jrsteele09/go-identity-server/oauth2"
	"github.com/jrsteele09/go-identity-server/rbac"
	"github.com/jrsteele09/go-identity-server/tenants"
	"github.com/jrsteele09/go-identity-server/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	SystemPasswordConnectionID = "db"
	SystemEmailConnectionID    = "email"
	SystemAdminRoleID          = "admin"
	DefaultSuperAdminUsername  = "admin"
)

// SystemRepos are the stores the system tenant is seeded into.
type SystemRepos struct {
	Tenants     tenants.Repo
	Clients     clients.Repo
	Connections connections.Repo
	Users       users.UserRepo
	RBAC        rbac.Repo
	Credentials *credentials.Store
}

// SystemSummary describes what InitialiseSystem found or created.
// GeneratedPassword is set only when the administrator was created with a
// random password.
type SystemSummary struct {
	Tenant            *tenants.Tenant
	AdminClient       *clients.Client
	Admin             *users.User
	GeneratedPassword string
}

// InitialiseSystem creates the system tenant with its password and email
// connections, the admin dashboard client and a super admin holding every
// permission. Existing entities are left as they are.
func InitialiseSystem(ctx context.Context, cfg config.Config, repos SystemRepos) (*SystemSummary, error) {
	tenant, err := initialiseSystemTenant(ctx, cfg, repos.Tenants)
	if err != nil {
		return nil, errors.Wrap(err, "[server.InitialiseSystem] system tenant")
	}
	if err := initialiseConnections(ctx, tenant.ID, repos.Connections); err != nil {
		return nil, errors.Wrap(err, "[server.InitialiseSystem] connections")
	}
	adminClient, err := createAdminClient(ctx, cfg, tenant.ID, repos.Clients)
	if err != nil {
		return nil, errors.Wrap(err, "[server.InitialiseSystem] admin client")
	}
	admin, generated, err := createSuperAdmin(ctx, cfg, tenant.ID, repos)
	if err != nil {
		return nil, errors.Wrap(err, "[server.InitialiseSystem] super admin")
	}

	summary := &SystemSummary{Tenant: tenant, AdminClient: adminClient, Admin: admin, GeneratedPassword: generated}
	if generated != "" {
		logSystemSummary(cfg, summary)
	}
	return summary, nil
}

func initialiseSystemTenant(ctx context.Context, cfg config.Config, repo tenants.Repo) (*tenants.Tenant, error) {
	existing, err := repo.Get(ctx, cfg.GetSystemTenantID())
	if err == nil {
		log.Debug().Str("tenant_id", existing.ID).Msg("system tenant already exists")
		return existing, nil
	}
	if !apperrors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}

	secret := cfg.GetSigningSecret()
	if secret == "" {
		if secret, err = utils.RandomURLToken(32); err != nil {
			return nil, err
		}
		log.Warn().Msg("SIGNING_SECRET not set, tokens will not survive a restart")
	}
	tenant := &tenants.Tenant{
		ID:            cfg.GetSystemTenantID(),
		Name:          cfg.GetSystemTenantName(),
		Domain:        hostOf(cfg.GetBaseURL()),
		Issuer:        cfg.GetBaseURL(),
		Audience:      cfg.GetBaseURL(),
		SigningSecret: secret,
	}
	if err := repo.Upsert(ctx, tenant); err != nil {
		return nil, err
	}
	return tenant, nil
}

func initialiseConnections(ctx context.Context, tenantID string, repo connections.Repo) error {
	wanted := []connections.Connection{
		{ID: SystemPasswordConnectionID, TenantID: tenantID, Name: "Username-Password-Authentication", DisplayName: "Email and password", Kind: connections.KindPassword},
		{ID: SystemEmailConnectionID, TenantID: tenantID, Name: "email", DisplayName: "Email code", Kind: connections.KindEmail},
	}
	for i := range wanted {
		_, err := repo.Get(ctx, tenantID, wanted[i].ID)
		if err == nil {
			continue
		}
		if !apperrors.Is(err, apperrors.ErrNotFound) {
			return err
		}
		if err := repo.Upsert(ctx, &wanted[i]); err != nil {
			return err
		}
	}
	return nil
}

// createAdminClient creates a public client for the admin dashboard. It
// authenticates with PKCE and never holds a secret.
func createAdminClient(ctx context.Context, cfg config.Config, tenantID string, repo clients.Repo) (*clients.Client, error) {
	existing, err := repo.Get(ctx, tenantID, cfg.GetAdminClientID())
	if err == nil {
		return existing, nil
	}
	if !apperrors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}

	client := &clients.Client{
		ID:           cfg.GetAdminClientID(),
		TenantID:     tenantID,
		Type:         clients.ClientTypePublic,
		Description:  "Admin Dashboard",
		RedirectURIs: []string{strings.TrimSuffix(cfg.GetBaseURL(), "/") + "/callback"},
		GrantTypes:   []oauth2.GrantType{oauth2.AuthorizationCodeGrant, oauth2.RefreshTokenCodeGrant},
		Scopes: []string{
			oauth2.ScopeOpenID,
			oauth2.ScopeProfile,
			oauth2.ScopeEmail,
			oauth2.ScopeOfflineAccess,
		},
		RefreshToken: clients.RefreshTokenPolicy{Rotating: true},
	}
	if err := repo.Upsert(ctx, client); err != nil {
		return nil, err
	}
	return client, nil
}

// createSuperAdmin creates the administrator and gives it the admin role
// across the tenant.
func createSuperAdmin(ctx context.Context, cfg config.Config, tenantID string, repos SystemRepos) (*users.User, string, error) {
	email := users.NormaliseEmail(cfg.GetSystemAdminEmail())
	existing, err := repos.Users.GetByEmail(ctx, tenantID, email)
	if err == nil {
		return existing, "", nil
	}
	if !apperrors.Is(err, apperrors.ErrNotFound) {
		return nil, "", err
	}

	password, generated := cfg.GetSystemAdminPassword(), ""
	if password == "" {
		token, err := utils.RandomURLToken(16)
		if err != nil {
			return nil, "", err
		}
		// suffix satisfies credentials.ValidatePasswordStrength
		password = token + "-Aa1"
		generated = password
	}

	admin := &users.User{
		ID:            uuid.New().String(),
		TenantID:      tenantID,
		Email:         email,
		EmailVerified: true,
		Username:      DefaultSuperAdminUsername,
		FirstName:     "System",
		LastName:      "Administrator",
	}
	admin.AddIdentity(users.Identity{
		ConnectionID: SystemPasswordConnectionID,
		Provider:     connections.KindPassword,
		SubjectID:    email,
		Primary:      true,
	})
	if err := repos.Users.Upsert(ctx, admin); err != nil {
		return nil, "", err
	}
	if err := repos.Credentials.SetPassword(ctx, tenantID, admin.ID, password); err != nil {
		return nil, "", err
	}

	role := rbac.Role{
		ID:          SystemAdminRoleID,
		TenantID:    tenantID,
		Name:        "Administrator",
		Description: "Manages and impersonates users of the tenant",
		Permissions: []rbac.Permission{rbac.PermissionImpersonate, rbac.PermissionReadUsers, rbac.PermissionManageUsers},
	}
	if err := repos.RBAC.UpsertRole(ctx, role); err != nil {
		return nil, "", err
	}
	if err := repos.RBAC.Assign(ctx, rbac.RoleAssignment{TenantID: tenantID, UserID: admin.ID, RoleID: role.ID, Scope: rbac.Global()}); err != nil {
		return nil, "", err
	}
	return admin, generated, nil
}

func logSystemSummary(cfg config.Config, summary *SystemSummary) {
	baseURL := cfg.GetBaseURL()
	log.Info().
		Str("base_url", baseURL).
		Str("tenant_id", summary.Tenant.ID).
		Str("issuer", summary.Tenant.Issuer).
		Msg("system tenant created")
	log.Info().
		Str("email", summary.Admin.Email).
		Str("password", summary.GeneratedPassword).
		Msg("super admin created, change the password after first login")
	log.Info().
		Str("client_id", summary.AdminClient.ID).
		Str("login_sessions", baseURL+RouteLoginSessions).
		Str("token", baseURL+RouteOAuth2Token).
		Strs("redirect_uris", summary.AdminClient.RedirectURIs).
		Msg("admin dashboard client configured")
}

// hostOf extracts the host of a base URL.
// Example: "https://auth.example.com:8443/path" -> "auth.example.com"
func hostOf(baseURL string) string {
	domain := strings.TrimPrefix(strings.TrimPrefix(baseURL, "https://"), "http://")
	domain = strings.SplitN(domain, "/", 2)[0]
	return strings.SplitN(domain, ":", 2)[0]
}
