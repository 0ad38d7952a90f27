package server

import (
	"encoding/json"
	"mime"
	"net/http"
	"strings"
)

// SetupRequest is the body of POST /setup
type SetupRequest struct {
	BackendURL string `json:"backend_url" validate:"required,url"`
}

// SetupResponse reports whether a backend endpoint is configured
type SetupResponse struct {
	Configured bool   `json:"configured"`
	BackendURL string `json:"backend_url,omitempty"`
}

func (s *Server) SetupStatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.setupStatus())
	}
}

// SetupHandler records the backend URL, from a JSON body or a form, and keeps it for the next start.
// It only runs on first start: once a backend is configured it answers 409 and changing the backend
// takes BACKEND_URL.
func (s *Server) SetupHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.backend.Configured() {
			s.logger.Warn().Str("remote_addr", r.RemoteAddr).Msg("setup rejected, backend already configured")
			writeJSONError(w, http.StatusConflict, "already_configured", "backend is already configured")
			return
		}

		var req SetupRequest
		mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if mediaType == "application/json" {
			if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
				writeJSONError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
				return
			}
		} else {
			req.BackendURL = r.FormValue("backend_url")
		}
		req.BackendURL = strings.TrimRight(strings.TrimSpace(req.BackendURL), "/")

		if err := s.validate.Struct(req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid_request", "backend_url must be an absolute URL")
			return
		}

		if err := s.durable.Set(r.Context(), BackendURLKey, req.BackendURL); err != nil {
			s.logger.Error().Err(err).Msg("failed to persist backend url")
			writeJSONError(w, http.StatusInternalServerError, "server_error", "could not save backend url")
			return
		}
		s.backend.SetBaseURL(req.BackendURL)
		s.logger.Info().Str("backend_url", req.BackendURL).Msg("backend configured")

		writeJSON(w, http.StatusOK, s.setupStatus())
	}
}

func (s *Server) setupStatus() SetupResponse {
	return SetupResponse{Configured: s.backend.Configured(), BackendURL: s.backend.BaseURL()}
}
