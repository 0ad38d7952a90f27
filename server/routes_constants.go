package server

import "strings"

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	// Auth Routes - Login & Logout
	RouteLogin    = "/login"
	RouteCallback = "/auth/callback/{provider}"
	RouteLogout   = "/logout"

	// First-run setup
	RouteSetup = "/setup"

	// Session Routes
	RouteIndex   = "/"
	RouteSession = "/session"

	RouteMetrics = "/metrics"
)

// callbackPrefix is RouteCallback without its wildcard
const callbackPrefix = "/auth/callback/"

// isPublicRoute reports whether path is reachable without a session
func isPublicRoute(path string) bool {
	switch {
	case path == RouteLogin, path == RouteSetup, path == RouteMetrics:
		return true
	case strings.HasPrefix(path, callbackPrefix):
		return true
	}
	return false
}

// isSetupRoute reports whether path is reachable before a backend is configured
func isSetupRoute(path string) bool {
	return path == RouteSetup || path == RouteMetrics
}
