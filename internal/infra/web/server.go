// File: internal/infra/web/server.go
package web

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"telegram-ai-storyteller/internal/application"
	"telegram-ai-storyteller/internal/config"
	"telegram-ai-storyteller/internal/domain/ports/adapter"
)

// StatusProvider is the read side the API serves; the bot facade implements
// it.
type StatusProvider interface {
	Status() application.Status
}

// Server exposes the operational API: health, metrics, a read-only view of
// the bot's runtime state, and out-of-band sends through the transport.
type Server struct {
	status    StatusProvider
	messenger adapter.MessengerAdapter
	auth      *AuthManager
	apiKey    string
	log       *zerolog.Logger
}

func NewServer(status StatusProvider, messenger adapter.MessengerAdapter, cfg *config.AdminConfig, log *zerolog.Logger) *Server {
	return &Server{
		status:    status,
		messenger: messenger,
		auth:      NewAuthManager(cfg.SessionSecret, 30*time.Minute),
		apiKey:    cfg.APIKey,
		log:       log,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/api/v1/login", s.handleLogin)
	r.Post("/api/v1/logout", s.handleLogout)

	r.Group(func(r chi.Router) {
		r.Use(s.requireSession)
		r.Get("/api/v1/status", s.handleStatus)
		r.Post("/api/v1/send", s.handleSend)
	})

	return r
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.apiKey == "" {
		s.log.Error().Msg("admin api key is not configured")
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	var body struct {
		APIKey string `json:"api_key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	if subtle.ConstantTimeCompare([]byte(body.APIKey), []byte(s.apiKey)) != 1 {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	token, err := s.auth.Mint(w)
	if err != nil {
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) handleLogout(w http.ResponseWriter, _ *http.Request) {
	s.auth.Clear(w)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.status.Status())
}

// handleSend pushes an operator-authored message to a chat, bypassing the
// dialogue pipeline.
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ChatID string `json:"chat_id"`
		Text   string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ChatID == "" || body.Text == "" {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	if err := s.messenger.SendText(r.Context(), body.ChatID, body.Text); err != nil {
		s.log.Error().Err(err).Str("chat_id", body.ChatID).Msg("out-of-band send failed")
		http.Error(w, "Send failed", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := s.auth.ParseFromRequest(r); err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
