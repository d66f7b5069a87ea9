package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

type Config interface {
	EnvConfig
	CorsConfig
	OAuthConfig
	SecurityConfig
	StoreConfig
	SystemConfig
	FederationConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetBaseURL() string
	GetEnv() string
	GetLogLevel() string
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type mainConfig struct {
	EnvVars
	Cors
	OAuth
	Security
	Stores
	System
	Federation
}

// New reads the configuration from the environment, applying defaults for
// anything unset.
func New() (Config, error) {
	var c mainConfig
	if err := env.Parse(&c); err != nil {
		return nil, fmt.Errorf("[config.New] env.Parse: %w", err)
	}
	return c, nil
}

// Default returns the configuration with every value at its default.
func Default() Config {
	var c mainConfig
	_ = env.ParseWithOptions(&c, env.Options{Environment: map[string]string{}})
	return c
}
