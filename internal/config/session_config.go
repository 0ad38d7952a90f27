package config

import "time"

type SessionConfig interface {
	GetAuthCookieName() string
	GetAuthCookieLifetime() time.Duration
	GetAuthFlowTimeout() time.Duration
	GetRefreshEnabled() bool
	GetLogoutOnRefreshFailure() bool
}

type Session struct{}

var _ SessionConfig = Session{}

func (Session) GetAuthCookieName() string {
	return "auth_token"
}

// GetAuthCookieLifetime is a coarse upper bound on the cookie, independent of expires_in
func (Session) GetAuthCookieLifetime() time.Duration {
	return 7 * 24 * time.Hour
}

func (Session) GetAuthFlowTimeout() time.Duration {
	return GetDurationEnv("AUTH_FLOW_TIMEOUT", 15*time.Minute)
}

func (Session) GetRefreshEnabled() bool {
	return GetBoolEnv("AUTH_REFRESH_ENABLED", false) // Refresh is a no-op unless enabled
}

func (Session) GetLogoutOnRefreshFailure() bool {
	return GetBoolEnv("AUTH_LOGOUT_ON_REFRESH_FAILURE", true)
}
