package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lukekeith/makeready/internal/domain/entities"
	"github.com/lukekeith/makeready/internal/domain/repositories"
	"github.com/lukekeith/makeready/internal/domain/services"
	"github.com/lukekeith/makeready/internal/infrastructure/authcode"
	"github.com/lukekeith/makeready/internal/oauth"
	"github.com/lukekeith/makeready/server/internal/middleware"
	"github.com/lukekeith/makeready/server/internal/session"
)

const (
	testClientURL      = "http://client.test"
	testNativeRedirect = "makeready://auth/callback"
	testCodeTTL        = 5 * time.Minute
)

// In-memory repository fakes

type memUserRepo struct {
	mu    sync.Mutex
	users map[string]entities.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: make(map[string]entities.User)}
}

func (r *memUserRepo) Create(ctx context.Context, u *entities.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[u.ID] = *u
	return nil
}

func (r *memUserRepo) GetByID(ctx context.Context, id string) (*entities.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, repositories.ErrUserNotFound
	}
	return &u, nil
}

func (r *memUserRepo) GetByGoogleID(ctx context.Context, googleID string) (*entities.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.GoogleID == googleID {
			u := u
			return &u, nil
		}
	}
	return nil, repositories.ErrUserNotFound
}

func (r *memUserRepo) Update(ctx context.Context, u *entities.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[u.ID]; !ok {
		return repositories.ErrUserNotFound
	}
	r.users[u.ID] = *u
	return nil
}

type memSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]entities.Session
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{sessions: make(map[string]entities.Session)}
}

func (r *memSessionRepo) Create(ctx context.Context, s *entities.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = *s
	return nil
}

func (r *memSessionRepo) GetByID(ctx context.Context, id string) (*entities.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, repositories.ErrSessionNotFound
	}
	return &s, nil
}

func (r *memSessionRepo) UpdateExpiry(ctx context.Context, id string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return repositories.ErrSessionNotFound
	}
	s.ExpiresAt = expiresAt
	r.sessions[id] = s
	return nil
}

func (r *memSessionRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	return nil
}

func (r *memSessionRepo) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, s := range r.sessions {
		if s.ExpiresAt.Before(before) {
			delete(r.sessions, id)
			n++
		}
	}
	return n, nil
}

// fakeProvider stands in for Google's authorization server: a token
// endpoint that accepts any grant and a userinfo endpoint that returns a
// fixed identity.
type fakeProvider struct {
	server   *httptest.Server
	identity oauth.Identity
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()

	fp := &fakeProvider{
		identity: oauth.Identity{
			Subject: "google-sub-1",
			Email:   "dev@example.com",
			Name:    "Dev User",
			Picture: "https://lh3.example.com/photo.jpg",
		},
	}

	m := http.NewServeMux()
	m.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"test-access-token","token_type":"Bearer","expires_in":3600}`)
	})
	m.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(fp.identity)
	})

	fp.server = httptest.NewServer(m)
	t.Cleanup(fp.server.Close)
	return fp
}

func (fp *fakeProvider) config() oauth.GoogleConfig {
	return oauth.GoogleConfig{
		ClientID:     "test-client",
		ClientSecret: "test-secret",
		CallbackURL:  "http://server.test/auth/google/callback",
		AuthURL:      fp.server.URL + "/authorize",
		TokenURL:     fp.server.URL + "/token",
		UserInfoURL:  fp.server.URL + "/userinfo",
	}
}

// harness wires the handler stack against in-memory stores and a fake
// provider, with a controllable clock.
type harness struct {
	router   *mux.Router
	sessions *session.Manager
	users    *memUserRepo
	provider *fakeProvider

	mu  sync.Mutex
	now time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		users: newMemUserRepo(),
		now:   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time {
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.now
	}

	h.sessions = session.NewManager(newMemSessionRepo(), session.Config{
		Secret:   "test-session-secret",
		Lifetime: 24 * time.Hour,
	})
	h.sessions.SetClock(clock)

	codes := authcode.NewMemoryStoreWithClock(clock)
	t.Cleanup(func() { codes.Close() })

	h.provider = newFakeProvider(t)
	authSvc := services.NewAuthService(h.users, codes)
	provider := oauth.NewGoogleProvider(h.provider.config())

	logger := slog.Default()
	authMW := middleware.NewAuthMiddleware(h.sessions, authSvc, logger)
	handler := New(authSvc, h.sessions, provider, testClientURL, testNativeRedirect, testCodeTTL, logger)

	h.router = mux.NewRouter()
	handler.RegisterRoutes(h.router, authMW)
	return h
}

func (h *harness) advance(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.now = h.now.Add(d)
}

func (h *harness) do(r *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, r)
	return w
}

// login drives the full callback leg for the given platform and returns
// the redirect response.
func (h *harness) login(t *testing.T, platform string) *httptest.ResponseRecorder {
	t.Helper()

	state, err := oauth.EncodeState(oauth.ParsePlatform(platform))
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet,
		"/auth/google/callback?code=provider-grant&state="+url.QueryEscape(state), nil)
	return h.do(r)
}

func sessionCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == session.DefaultCookieName {
			return c
		}
	}
	return nil
}

func TestLogin_RedirectsToProvider(t *testing.T) {
	h := newHarness(t)

	w := h.do(httptest.NewRequest(http.MethodGet, "/auth/google?platform=native", nil))
	require.Equal(t, http.StatusFound, w.Code)

	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(loc.String(), h.provider.server.URL+"/authorize"))

	state := oauth.DecodeState(loc.Query().Get("state"))
	assert.Equal(t, oauth.PlatformNative, state.Platform)
	assert.NotEmpty(t, state.Nonce)
}

func TestLogin_DefaultsToWebPlatform(t *testing.T) {
	h := newHarness(t)

	w := h.do(httptest.NewRequest(http.MethodGet, "/auth/google", nil))
	require.Equal(t, http.StatusFound, w.Code)

	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, oauth.PlatformWeb, oauth.DecodeState(loc.Query().Get("state")).Platform)
}

func TestCallback_WebLogin(t *testing.T) {
	h := newHarness(t)

	w := h.login(t, "web")
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, testClientURL+"/home", w.Header().Get("Location"))

	cookie := sessionCookie(t, w)
	require.NotNil(t, cookie, "web login must set the session cookie")
	assert.True(t, cookie.HttpOnly)

	// The cookie must authenticate /auth/me
	r := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	r.AddCookie(cookie)
	me := h.do(r)
	require.Equal(t, http.StatusOK, me.Code)

	var body struct {
		User entities.User `json:"user"`
	}
	require.NoError(t, json.Unmarshal(me.Body.Bytes(), &body))
	assert.Equal(t, "dev@example.com", body.User.Email)
	assert.Equal(t, "Dev User", body.User.Name)
}

func TestCallback_RepeatLoginKeepsAccount(t *testing.T) {
	h := newHarness(t)

	h.login(t, "web")

	// Same subject, refreshed profile
	h.provider.identity.Name = "Renamed User"
	w := h.login(t, "web")
	require.Equal(t, http.StatusFound, w.Code)

	r := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	r.AddCookie(sessionCookie(t, w))
	me := h.do(r)
	require.Equal(t, http.StatusOK, me.Code)

	var body struct {
		User entities.User `json:"user"`
	}
	require.NoError(t, json.Unmarshal(me.Body.Bytes(), &body))
	assert.Equal(t, "Renamed User", body.User.Name)

	h.users.mu.Lock()
	defer h.users.mu.Unlock()
	assert.Len(t, h.users.users, 1, "repeat login must not create a second account")
}

func TestCallback_NativeLoginEndToEnd(t *testing.T) {
	h := newHarness(t)

	w := h.login(t, "native")
	require.Equal(t, http.StatusFound, w.Code)

	assert.Nil(t, sessionCookie(t, w), "native callback must not set a cookie")

	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(loc.String(), testNativeRedirect))
	code := loc.Query().Get("code")
	require.NotEmpty(t, code)

	// Exchange the one-time code for session credentials
	body, _ := json.Marshal(map[string]string{"code": code})
	r := httptest.NewRequest(http.MethodPost, "/auth/exchange", bytes.NewReader(body))
	ex := h.do(r)
	require.Equal(t, http.StatusOK, ex.Code)

	var resp struct {
		SessionID string `json:"sessionId"`
		UserID    string `json:"userId"`
	}
	require.NoError(t, json.Unmarshal(ex.Body.Bytes(), &resp))
	assert.True(t, strings.HasPrefix(resp.SessionID, "s:"), "sessionId must be the signed cookie value")
	assert.NotEmpty(t, resp.UserID)

	// The returned value works as a session cookie
	meRequest := func() *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
		r.AddCookie(&http.Cookie{Name: session.DefaultCookieName, Value: resp.SessionID})
		return r
	}
	require.Equal(t, http.StatusOK, h.do(meRequest()).Code)

	// The exchanged session outlives the code window
	h.advance(2 * testCodeTTL)
	assert.Equal(t, http.StatusOK, h.do(meRequest()).Code)
}

func TestExchange_CodeIsSingleUse(t *testing.T) {
	h := newHarness(t)

	w := h.login(t, "native")
	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	code := loc.Query().Get("code")

	body, _ := json.Marshal(map[string]string{"code": code})

	first := h.do(httptest.NewRequest(http.MethodPost, "/auth/exchange", bytes.NewReader(body)))
	require.Equal(t, http.StatusOK, first.Code)

	second := h.do(httptest.NewRequest(http.MethodPost, "/auth/exchange", bytes.NewReader(body)))
	assert.Equal(t, http.StatusUnauthorized, second.Code)
	assert.Contains(t, second.Body.String(), "Invalid or expired code")
}

func TestExchange_ExpiredCode(t *testing.T) {
	h := newHarness(t)

	w := h.login(t, "native")
	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	code := loc.Query().Get("code")

	h.advance(testCodeTTL + time.Second)

	body, _ := json.Marshal(map[string]string{"code": code})
	ex := h.do(httptest.NewRequest(http.MethodPost, "/auth/exchange", bytes.NewReader(body)))
	assert.Equal(t, http.StatusUnauthorized, ex.Code)
}

func TestExchange_MissingCode(t *testing.T) {
	h := newHarness(t)

	cases := map[string]string{
		"empty body":   ``,
		"empty code":   `{"code":""}`,
		"not json":     `code=abc`,
		"wrong fields": `{"token":"abc"}`,
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			w := h.do(httptest.NewRequest(http.MethodPost, "/auth/exchange", strings.NewReader(body)))
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestMe_Unauthenticated(t *testing.T) {
	h := newHarness(t)

	w := h.do(httptest.NewRequest(http.MethodGet, "/auth/me", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"error":"Not authenticated"}`, w.Body.String())
}

func TestMe_ForgedCookie(t *testing.T) {
	h := newHarness(t)
	h.login(t, "web")

	r := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	r.AddCookie(&http.Cookie{Name: session.DefaultCookieName, Value: "s:forged.c2lnbmF0dXJl"})
	w := h.do(r)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLogout(t *testing.T) {
	h := newHarness(t)

	cookie := sessionCookie(t, h.login(t, "web"))
	require.NotNil(t, cookie)

	r := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	r.AddCookie(cookie)
	w := h.do(r)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"Logged out successfully"}`, w.Body.String())

	// The cookie was cleared on the response
	cleared := sessionCookie(t, w)
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)
	assert.Negative(t, cleared.MaxAge)

	// The session no longer authenticates
	me := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	me.AddCookie(cookie)
	assert.Equal(t, http.StatusUnauthorized, h.do(me).Code)
}

func TestLogout_WithoutSession(t *testing.T) {
	h := newHarness(t)

	w := h.do(httptest.NewRequest(http.MethodPost, "/auth/logout", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"Logged out successfully"}`, w.Body.String())
}

func TestCallback_ProviderError(t *testing.T) {
	h := newHarness(t)

	r := httptest.NewRequest(http.MethodGet, "/auth/google/callback?error=access_denied", nil)
	w := h.do(r)
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, testClientURL+"/login", w.Header().Get("Location"))
	assert.Nil(t, sessionCookie(t, w))
}

func TestCallback_MissingGrant(t *testing.T) {
	h := newHarness(t)

	w := h.do(httptest.NewRequest(http.MethodGet, "/auth/google/callback", nil))
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, testClientURL+"/login", w.Header().Get("Location"))
}

func TestCallback_GarbledStateFallsBackToWeb(t *testing.T) {
	h := newHarness(t)

	r := httptest.NewRequest(http.MethodGet,
		"/auth/google/callback?code=provider-grant&state=%21%21not-base64%21%21", nil)
	w := h.do(r)
	require.Equal(t, http.StatusFound, w.Code)

	// Treated as a browser: cookie plus web redirect, never a native deep link
	assert.Equal(t, testClientURL+"/home", w.Header().Get("Location"))
	assert.NotNil(t, sessionCookie(t, w))
}
