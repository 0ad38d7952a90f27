package server

import (
	"net/http"
	"net/url"
)

// RequireBackend sends every request except setup to the setup page until a backend endpoint is
// configured. It runs before the session check.
func (s *Server) RequireBackend(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.backend.Configured() && !isSetupRoute(r.URL.Path) {
			redirectSuccess(w, r, RouteSetup)
			return
		}
		next(w, r)
	}
}

// RequireSessionCookie sends requests for non-public routes to the login page when the auth cookie is
// missing. Only presence is checked; the backend rejects a stale token.
func (s *Server) RequireSessionCookie(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if isPublicRoute(r.URL.Path) {
			next(w, r)
			return
		}

		cookie, err := r.Cookie(s.config.GetAuthCookieName())
		if err != nil || cookie.Value == "" {
			redirectSuccess(w, r, RouteLogin+"?next="+url.QueryEscape(r.URL.RequestURI()))
			return
		}
		next(w, r)
	}
}
