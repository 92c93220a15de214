package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/lukekeith/makeready/internal/domain/services"
	"github.com/lukekeith/makeready/internal/oauth"
	"github.com/lukekeith/makeready/server/internal/middleware"
	"github.com/lukekeith/makeready/server/internal/session"
)

// Handler holds dependencies for all auth handlers
type Handler struct {
	auth           *services.AuthService
	sessions       *session.Manager
	provider       *oauth.GoogleProvider
	clientURL      string        // web client base URL for post-login redirects
	nativeRedirect string        // deep link (or loopback URL) native clients listen on
	codeTTL        time.Duration // lifetime of one-time auth codes
	log            *slog.Logger
}

// New creates a new handler with dependencies
func New(auth *services.AuthService, sessions *session.Manager, provider *oauth.GoogleProvider, clientURL, nativeRedirect string, codeTTL time.Duration, logger *slog.Logger) *Handler {
	return &Handler{
		auth:           auth,
		sessions:       sessions,
		provider:       provider,
		clientURL:      clientURL,
		nativeRedirect: nativeRedirect,
		codeTTL:        codeTTL,
		log:            logger.With(slog.String("component", "auth_handler")),
	}
}

// RegisterRoutes wires the auth endpoints onto the router
func (h *Handler) RegisterRoutes(r *mux.Router, authMW *middleware.AuthMiddleware) {
	r.HandleFunc("/auth/google", h.Login).Methods(http.MethodGet)
	r.HandleFunc("/auth/google/callback", h.Callback).Methods(http.MethodGet)
	r.HandleFunc("/auth/exchange", h.Exchange).Methods(http.MethodPost)
	r.Handle("/auth/me", authMW.RequireAuth(http.HandlerFunc(h.Me))).Methods(http.MethodGet)
	r.HandleFunc("/auth/logout", h.Logout).Methods(http.MethodPost)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Error("failed to write response", slog.String("error", err.Error()))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
