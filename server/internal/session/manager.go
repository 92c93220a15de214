package session

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lukekeith/makeready/internal/domain/entities"
	"github.com/lukekeith/makeready/internal/domain/repositories"
)

// DefaultCookieName matches the express-session default the clients were
// built against
const DefaultCookieName = "connect.sid"

// Config holds session manager configuration
type Config struct {
	Secret     string
	CookieName string        // defaults to DefaultCookieName
	Lifetime   time.Duration // defaults to 24h
	Secure     bool
}

// Manager owns server-side sessions and the signed cookie that references
// them. It is the verification side of the codec: whatever Sign produces,
// ResolveRequest must accept.
type Manager struct {
	repo       repositories.SessionRepository
	secret     string
	cookieName string
	lifetime   time.Duration
	secure     bool
	now        func() time.Time
	log        *slog.Logger
}

// NewManager creates a session manager backed by the given repository
func NewManager(repo repositories.SessionRepository, cfg Config) *Manager {
	cookieName := cfg.CookieName
	if cookieName == "" {
		cookieName = DefaultCookieName
	}
	lifetime := cfg.Lifetime
	if lifetime == 0 {
		lifetime = 24 * time.Hour
	}

	return &Manager{
		repo:       repo,
		secret:     cfg.Secret,
		cookieName: cookieName,
		lifetime:   lifetime,
		secure:     cfg.Secure,
		now:        time.Now,
		log:        slog.Default().With(slog.String("component", "session")),
	}
}

// SetClock overrides the manager's clock; used by tests to control expiry
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// Lifetime returns the full session lifetime
func (m *Manager) Lifetime() time.Duration {
	return m.lifetime
}

// Establish creates a session for the user with the given time-to-live.
// A zero ttl means the full configured lifetime.
func (m *Manager) Establish(ctx context.Context, userID string, ttl time.Duration) (*entities.Session, error) {
	if ttl == 0 {
		ttl = m.lifetime
	}

	now := m.now()
	session := &entities.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	if err := m.repo.Create(ctx, session); err != nil {
		return nil, err
	}

	m.log.Debug("session established",
		slog.String("user_id", userID),
		slog.Time("expires_at", session.ExpiresAt))

	return session, nil
}

// Extend moves a session's expiry to the full lifetime from now
func (m *Manager) Extend(ctx context.Context, sessionID string) error {
	return m.repo.UpdateExpiry(ctx, sessionID, m.now().Add(m.lifetime))
}

// CookieValue returns the signed cookie value for a session id
func (m *Manager) CookieValue(sessionID string) string {
	return Sign(sessionID, m.secret)
}

// SetCookie writes the signed session cookie on a browser response
func (m *Manager) SetCookie(w http.ResponseWriter, session *entities.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    m.CookieValue(session.ID),
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode, // must stay Lax for the OAuth redirect
	})
}

// ClearCookie expires the session cookie on the response
func (m *Manager) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ResolveRequest authenticates a request from its session cookie. Missing
// cookie, bad signature, unknown session, and expired session all yield
// repositories.ErrSessionNotFound; an expired session row is deleted on
// the way out.
func (m *Manager) ResolveRequest(ctx context.Context, r *http.Request) (*entities.Session, error) {
	cookie, err := r.Cookie(m.cookieName)
	if err != nil {
		return nil, repositories.ErrSessionNotFound
	}

	value := cookie.Value
	// Browsers and express-compatible clients may URL-encode the value
	if strings.HasPrefix(value, "s%3A") {
		if decoded, err := url.QueryUnescape(value); err == nil {
			value = decoded
		}
	}

	sessionID, err := Unsign(value, m.secret)
	if err != nil {
		m.log.Debug("rejected session cookie", slog.String("error", err.Error()))
		return nil, repositories.ErrSessionNotFound
	}

	session, err := m.repo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if session.IsExpired(m.now()) {
		// Lazy expiry; the periodic cleanup handles sessions never presented again
		_ = m.repo.Delete(ctx, session.ID)
		return nil, repositories.ErrSessionNotFound
	}

	return session, nil
}

// Destroy removes a session. Destroying an unknown session is not an error.
func (m *Manager) Destroy(ctx context.Context, sessionID string) error {
	return m.repo.Delete(ctx, sessionID)
}
