package config

import "time"

type SecurityConfig interface {
	GetRequirePKCE() bool
	GetLoginSessionTimeout() time.Duration
	GetSessionLifetime() time.Duration
	GetSessionIdleTimeout() time.Duration
	GetMaxStepAttempts() int
	GetPasswordHistoryDepth() int
	GetPermissionCacheTTL() time.Duration
	GetPermissionCacheSize() int
}

type Security struct {
	RequirePKCE          bool          `env:"REQUIRE_PKCE" envDefault:"false"`
	LoginSessionTimeout  time.Duration `env:"LOGIN_SESSION_TIMEOUT" envDefault:"30m"`
	SessionLifetime      time.Duration `env:"SESSION_LIFETIME" envDefault:"168h"`
	SessionIdleTimeout   time.Duration `env:"SESSION_IDLE_TIMEOUT" envDefault:"72h"`
	MaxStepAttempts      int           `env:"MAX_STEP_ATTEMPTS" envDefault:"5"`
	PasswordHistoryDepth int           `env:"PASSWORD_HISTORY_DEPTH" envDefault:"5"`
	PermissionCacheTTL   time.Duration `env:"PERMISSION_CACHE_TTL" envDefault:"30s"`
	PermissionCacheSize  int           `env:"PERMISSION_CACHE_SIZE" envDefault:"10000"`
}

var _ SecurityConfig = Security{}

func (s Security) GetRequirePKCE() bool {
	return s.RequirePKCE
}

// GetLoginSessionTimeout is how long a login session may stay pending.
func (s Security) GetLoginSessionTimeout() time.Duration {
	return s.LoginSessionTimeout
}

func (s Security) GetSessionLifetime() time.Duration {
	return s.SessionLifetime
}

func (s Security) GetSessionIdleTimeout() time.Duration {
	return s.SessionIdleTimeout
}

func (s Security) GetMaxStepAttempts() int {
	return s.MaxStepAttempts
}

func (s Security) GetPasswordHistoryDepth() int {
	return s.PasswordHistoryDepth
}

func (s Security) GetPermissionCacheTTL() time.Duration {
	return s.PermissionCacheTTL
}

func (s Security) GetPermissionCacheSize() int {
	return s.PermissionCacheSize
}
