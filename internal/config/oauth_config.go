package config

import "time"

type OAuthConfig interface {
	GetAuthCodeTimeout() time.Duration
	GetOTPTimeout() time.Duration
	GetEmailVerificationTimeout() time.Duration
	GetEmailChangeTimeout() time.Duration
	GetDefaultAccessTokenExpiry() time.Duration
	GetDefaultIDTokenExpiry() time.Duration
	GetDefaultRefreshTokenExpiry() time.Duration
	GetDefaultRefreshTokenIdleExpiry() time.Duration
}

type OAuth struct {
	AuthCodeTimeout          time.Duration `env:"AUTH_CODE_TIMEOUT" envDefault:"15m"`
	OTPTimeout               time.Duration `env:"OTP_TIMEOUT" envDefault:"5m"`
	EmailVerificationTimeout time.Duration `env:"EMAIL_VERIFICATION_TIMEOUT" envDefault:"24h"`
	EmailChangeTimeout       time.Duration `env:"EMAIL_CHANGE_TIMEOUT" envDefault:"1h"`
	AccessTokenExpiry        time.Duration `env:"ACCESS_TOKEN_EXPIRY" envDefault:"1h"`
	IDTokenExpiry            time.Duration `env:"ID_TOKEN_EXPIRY" envDefault:"1h"`
	RefreshTokenExpiry       time.Duration `env:"REFRESH_TOKEN_EXPIRY" envDefault:"720h"`
	RefreshTokenIdleExpiry   time.Duration `env:"REFRESH_TOKEN_IDLE_EXPIRY" envDefault:"168h"`
}

var _ OAuthConfig = OAuth{}

func (o OAuth) GetAuthCodeTimeout() time.Duration {
	return o.AuthCodeTimeout
}

func (o OAuth) GetOTPTimeout() time.Duration {
	return o.OTPTimeout
}

func (o OAuth) GetEmailVerificationTimeout() time.Duration {
	return o.EmailVerificationTimeout
}

func (o OAuth) GetEmailChangeTimeout() time.Duration {
	return o.EmailChangeTimeout
}

func (o OAuth) GetDefaultAccessTokenExpiry() time.Duration {
	return o.AccessTokenExpiry
}

func (o OAuth) GetDefaultIDTokenExpiry() time.Duration {
	return o.IDTokenExpiry
}

func (o OAuth) GetDefaultRefreshTokenExpiry() time.Duration {
	return o.RefreshTokenExpiry
}

func (o OAuth) GetDefaultRefreshTokenIdleExpiry() time.Duration {
	return o.RefreshTokenIdleExpiry
}
