package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/jrsteele09/go-auth-session/session"
)

// IndexHandler sends the user to their session
func (s *Server) IndexHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		redirectSuccess(w, r, RouteSession)
	}
}

// LoginHandler starts a login handshake: GET /login?provider=google redirects to the provider
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if next := r.URL.Query().Get("next"); next != "" && isLocalPath(next) {
			setNextCookie(w, r, next)
		}

		provider := strings.TrimSpace(r.URL.Query().Get("provider"))
		if provider == "" {
			writeJSONError(w, http.StatusBadRequest, "invalid_request", "provider query parameter is required")
			return
		}

		flow, err := s.sessions.InitiateAuth(r.Context(), provider)
		if err != nil {
			s.logger.Error().Err(err).Str("provider", provider).Msg("initiate auth failed")
			writeJSONError(w, http.StatusBadGateway, "initiate_failed", "could not start login with "+provider)
			return
		}
		http.Redirect(w, r, flow.AuthRedirectURL, http.StatusFound)
	}
}

// CallbackHandler completes the handshake when the provider redirects back
func (s *Server) CallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		provider := r.PathValue("provider")

		// Check for authorization errors
		if errorParam := r.FormValue("error"); errorParam != "" {
			description := r.FormValue("error_description")
			if description == "" {
				description = errorParam
			}
			redirectWithError(w, r, RouteLogin, description)
			return
		}

		err := s.sessions.HandleCallback(r.Context(), provider, r.FormValue("code"), r.FormValue("state"))
		switch {
		case errors.Is(err, session.ErrMissingAuthCode),
			errors.Is(err, session.ErrStateMismatch),
			errors.Is(err, session.ErrAuthFlowExpired):
			s.logger.Warn().Err(err).Str("provider", provider).Msg("callback rejected")
			redirectWithError(w, r, RouteLogin, "Login expired or invalid, please try again")
			return
		case err != nil:
			s.logger.Error().Err(err).Str("provider", provider).Msg("callback failed")
			writeJSONError(w, http.StatusBadGateway, "callback_failed", "could not complete login")
			return
		}

		accessToken, ok := s.sessions.AccessToken(r.Context())
		if !ok {
			writeJSONError(w, http.StatusInternalServerError, "server_error", "session not stored")
			return
		}
		s.SetAuthCookie(w, r, accessToken)
		redirectSuccess(w, r, popNextCookie(w, r))
	}
}

func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.sessions.Logout(r.Context()); err != nil {
			s.logger.Error().Err(err).Msg("logout failed")
		}
		s.ClearAuthCookie(w, r)
		redirectSuccess(w, r, RouteLogin)
	}
}

// SessionResponse is the body of GET /session
type SessionResponse struct {
	State         string     `json:"state"`
	Authenticated bool       `json:"authenticated"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	Subject       string     `json:"subject,omitempty"`
	Email         string     `json:"email,omitempty"`
}

func (s *Server) SessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state := s.sessions.State(r.Context())
		resp := SessionResponse{
			State:         state.String(),
			Authenticated: state != session.LoggedOut,
		}
		if expiration, ok := s.sessions.ExpirationTime(); ok {
			resp.ExpiresAt = &expiration
		}
		if identity, err := s.sessions.Identity(r.Context()); err == nil {
			resp.Subject = identity.Subject
			resp.Email = identity.Email
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
