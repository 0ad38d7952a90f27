package server

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
)

// nextCookieName remembers where to go after the login handshake
const nextCookieName = "auth_next"

func (s *Server) SetAuthCookie(w http.ResponseWriter, r *http.Request, accessToken string) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.config.GetAuthCookieName(),
		Value:    accessToken,
		Path:     "/",
		HttpOnly: true,
		Secure:   getScheme(r) == "https",
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(s.config.GetAuthCookieLifetime().Seconds()),
	})
}

func (s *Server) ClearAuthCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.config.GetAuthCookieName(),
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   getScheme(r) == "https",
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

func setNextCookie(w http.ResponseWriter, r *http.Request, next string) {
	http.SetCookie(w, &http.Cookie{
		Name:     nextCookieName,
		Value:    url.QueryEscape(next),
		Path:     "/",
		HttpOnly: true,
		Secure:   getScheme(r) == "https",
		SameSite: http.SameSiteLaxMode,
		MaxAge:   600, // long enough for the provider round trip
	})
}

// popNextCookie returns the remembered destination, or RouteSession, and clears it
func popNextCookie(w http.ResponseWriter, r *http.Request) string {
	next := RouteSession
	if cookie, err := r.Cookie(nextCookieName); err == nil {
		if value, err := url.QueryUnescape(cookie.Value); err == nil && isLocalPath(value) {
			next = value
		}
		http.SetCookie(w, &http.Cookie{Name: nextCookieName, Path: "/", MaxAge: -1})
	}
	return next
}

// isLocalPath rejects absolute and protocol-relative URLs so redirects stay on this host
func isLocalPath(path string) bool {
	return strings.HasPrefix(path, "/") && !strings.HasPrefix(path, "//") && !strings.HasPrefix(path, "/\\")
}

// redirectSuccess helper for htmx-aware success redirects
func redirectSuccess(w http.ResponseWriter, r *http.Request, path string) {
	if isHTMXRequest(r) {
		w.Header().Set("HX-Redirect", path)
		w.WriteHeader(http.StatusNoContent) // 204 - no content, just redirect instruction
		return
	}
	http.Redirect(w, r, path, http.StatusSeeOther)
}

// redirectWithError helper for htmx-aware error redirects
func redirectWithError(w http.ResponseWriter, r *http.Request, path, errorMsg string) {
	fullPath := path + "?error=" + url.QueryEscape(errorMsg)

	if isHTMXRequest(r) {
		w.Header().Set("HX-Redirect", fullPath)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, fullPath, http.StatusSeeOther)
}

// isHTMXRequest checks if the request was initiated by HTMX
func isHTMXRequest(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, code, description string) {
	writeJSON(w, status, map[string]string{"error": code, "error_description": description})
}
