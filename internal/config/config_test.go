package config_test

import (
	"testing"
	"time"

	"github.com/jrsteele09/go-identity-server/internal/config"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	c := config.Default()
	require.Equal(t, ":8080", c.GetPort())
	require.Equal(t, "DEV", c.GetEnv())
	require.Equal(t, 15*time.Minute, c.GetAuthCodeTimeout())
	require.Equal(t, 30*time.Minute, c.GetLoginSessionTimeout())
	require.Equal(t, 5, c.GetMaxStepAttempts())
	require.Equal(t, 5, c.GetPasswordHistoryDepth())
	require.Empty(t, c.GetRedisAddr())
	require.True(t, c.GetAllowedOrigins().IsAllowedOrigin("tbd.com"))
	require.Equal(t, "system", c.GetSystemTenantID())
	require.Empty(t, c.GetSigningSecret())
	require.Empty(t, c.GetFederationIssuerURL())
	require.Equal(t, []string{"openid", "email", "profile"}, c.GetFederationScopes())
}

func TestNewReadsEnvironment(t *testing.T) {
	t.Setenv("PORT", ":9000")
	t.Setenv("LOGIN_SESSION_TIMEOUT", "10m")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")
	t.Setenv("FEDERATION_SCOPES", "openid, email")

	c, err := config.New()
	require.NoError(t, err)
	require.Equal(t, ":9000", c.GetPort())
	require.Equal(t, 10*time.Minute, c.GetLoginSessionTimeout())
	require.Equal(t, "localhost:6379", c.GetRedisAddr())
	require.True(t, c.GetAllowedOrigins().IsAllowedOrigin("https://b.example.com"))
	require.Equal(t, []string{"openid", "email"}, c.GetFederationScopes())
}

func TestNewRejectsMalformedDuration(t *testing.T) {
	t.Setenv("OTP_TIMEOUT", "soon")
	_, err := config.New()
	require.Error(t, err)
}
