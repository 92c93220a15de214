package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/lukekeith/makeready/internal/domain/entities"
	"github.com/lukekeith/makeready/internal/domain/repositories"
	"github.com/lukekeith/makeready/internal/domain/services"
	"github.com/lukekeith/makeready/internal/pkg/logger"
	"github.com/lukekeith/makeready/server/internal/session"
)

type contextKey string

const userKey contextKey = "user"

// AuthMiddleware resolves the signed session cookie into a user for
// downstream handlers
type AuthMiddleware struct {
	sessions *session.Manager
	auth     *services.AuthService
	log      *slog.Logger
}

// NewAuthMiddleware creates a new auth middleware
func NewAuthMiddleware(sessions *session.Manager, auth *services.AuthService, logger *slog.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		sessions: sessions,
		auth:     auth,
		log:      logger.With(slog.String("component", "auth_middleware")),
	}
}

// RequireAuth ensures the request carries a valid session cookie. On
// success the user is placed on the request context; on failure the
// client gets a 401 JSON body.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := logger.WithHTTPRequest(m.log, r.Method, r.URL.Path)

		sess, err := m.sessions.ResolveRequest(r.Context(), r)
		if err != nil {
			if !errors.Is(err, repositories.ErrSessionNotFound) {
				log.Error("session lookup failed", slog.String("error", err.Error()))
			}
			writeUnauthenticated(w)
			return
		}

		user, err := m.auth.GetUser(r.Context(), sess.UserID)
		if err != nil {
			if errors.Is(err, repositories.ErrUserNotFound) {
				// Session outlived its user; drop it
				_ = m.sessions.Destroy(r.Context(), sess.ID)
			} else {
				log.Error("user lookup failed",
					slog.String("user_id", sess.UserID),
					slog.String("error", err.Error()))
			}
			writeUnauthenticated(w)
			return
		}

		logger.WithUser(log, user.ID).Debug("session resolved")

		ctx := context.WithValue(r.Context(), userKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func writeUnauthenticated(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"Not authenticated"}`))
}

// UserFromContext returns the authenticated user placed by RequireAuth,
// or nil when the request did not pass through it
func UserFromContext(ctx context.Context) *entities.User {
	user, _ := ctx.Value(userKey).(*entities.User)
	return user
}
