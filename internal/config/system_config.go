package config

// SystemConfig describes the tenant, client and administrator seeded on
// first start.
type SystemConfig interface {
	GetSystemTenantID() string
	GetSystemTenantName() string
	GetSystemAdminEmail() string
	GetSystemAdminPassword() string
	GetSigningSecret() string
	GetAdminClientID() string
}

type System struct {
	TenantID      string `env:"SYSTEM_TENANT_ID" envDefault:"system"`
	TenantName    string `env:"SYSTEM_TENANT_NAME" envDefault:"System"`
	AdminEmail    string `env:"SYSTEM_ADMIN_EMAIL" envDefault:"admin@localhost"`
	AdminPassword string `env:"SYSTEM_ADMIN_PASSWORD"`
	SigningSecret string `env:"SIGNING_SECRET"`
	AdminClientID string `env:"ADMIN_CLIENT_ID" envDefault:"admin-dashboard"`
}

var _ SystemConfig = System{}

func (s System) GetSystemTenantID() string {
	return s.TenantID
}

func (s System) GetSystemTenantName() string {
	return s.TenantName
}

func (s System) GetSystemAdminEmail() string {
	return s.AdminEmail
}

// GetSystemAdminPassword is empty unless set; a random password is then
// generated and printed once.
func (s System) GetSystemAdminPassword() string {
	return s.AdminPassword
}

// GetSigningSecret is the HMAC secret of the system tenant. Empty generates
// a random one, which invalidates issued tokens on restart.
func (s System) GetSigningSecret() string {
	return s.SigningSecret
}

func (s System) GetAdminClientID() string {
	return s.AdminClientID
}
