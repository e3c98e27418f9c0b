package config

import "time"

type AuthConfig interface {
	GetAccessTokenSecret() string
	GetRefreshTokenSecret() string
	GetAccessTokenExpiry() time.Duration
	GetRefreshTokenExpiry() time.Duration
	GetLoginRateLimit() int
	GetLoginRateWindow() time.Duration
}

type Auth struct{}

var _ AuthConfig = Auth{}

func (Auth) GetAccessTokenSecret() string {
	return GetEnv("JWT_SECRET", "dev-access-secret")
}

func (Auth) GetRefreshTokenSecret() string {
	return GetEnv("JWT_REFRESH_SECRET", "dev-refresh-secret")
}

func (Auth) GetAccessTokenExpiry() time.Duration {
	return 15 * time.Minute
}

func (Auth) GetRefreshTokenExpiry() time.Duration {
	return 7 * 24 * time.Hour // 7 days
}

func (Auth) GetLoginRateLimit() int {
	return 20 // attempts per window per source address
}

func (Auth) GetLoginRateWindow() time.Duration {
	return 15 * time.Minute
}
