package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/lukekeith/makeready/internal/domain/entities"
	"github.com/lukekeith/makeready/internal/domain/repositories"
	"github.com/lukekeith/makeready/internal/oauth"
	"github.com/lukekeith/makeready/internal/pkg/metrics"
	"github.com/lukekeith/makeready/server/internal/middleware"
)

// Login starts the OAuth flow. The platform hint from the query string is
// folded into the state parameter, the only value that survives the trip
// through the provider.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	platform := oauth.ParsePlatform(r.URL.Query().Get("platform"))

	state, err := oauth.EncodeState(platform)
	if err != nil {
		h.log.Error("failed to encode state", slog.String("error", err.Error()))
		h.writeError(w, http.StatusInternalServerError, "Failed to start login")
		return
	}

	h.log.Info("starting login", slog.String("platform", string(platform)))
	http.Redirect(w, r, h.provider.AuthCodeURL(state), http.StatusFound)
}

// Callback completes the OAuth flow. Web clients get a session cookie and a
// browser redirect; native clients get a one-time code on their redirect
// URL and no cookie.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	state := oauth.DecodeState(r.URL.Query().Get("state"))
	platform := string(state.Platform)

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.log.Warn("provider returned an error",
			slog.String("error", errParam),
			slog.String("platform", platform))
		metrics.RecordLogin(platform, errors.New(errParam))
		h.redirectLoginFailed(w, r)
		return
	}

	grant := r.URL.Query().Get("code")
	if grant == "" {
		metrics.RecordLogin(platform, errors.New("missing code"))
		h.redirectLoginFailed(w, r)
		return
	}

	ident, err := h.provider.Exchange(r.Context(), grant)
	if err != nil {
		h.log.Error("grant exchange failed",
			slog.String("error", err.Error()),
			slog.String("platform", platform))
		metrics.RecordLogin(platform, err)
		h.redirectLoginFailed(w, r)
		return
	}

	user, err := h.auth.UpsertAccount(r.Context(), ident)
	if err != nil {
		h.log.Error("account provisioning failed", slog.String("error", err.Error()))
		metrics.RecordLogin(platform, err)
		h.redirectLoginFailed(w, r)
		return
	}

	switch state.Platform {
	case oauth.PlatformNative:
		h.finishNativeLogin(w, r, user)
	default:
		h.finishWebLogin(w, r, user)
	}
}

// finishWebLogin establishes a full-lifetime session, sets the signed
// cookie, and sends the browser back to the web client.
func (h *Handler) finishWebLogin(w http.ResponseWriter, r *http.Request, user *entities.User) {
	sess, err := h.sessions.Establish(r.Context(), user.ID, 0)
	if err != nil {
		h.log.Error("failed to establish session", slog.String("error", err.Error()))
		metrics.RecordLogin("web", err)
		h.redirectLoginFailed(w, r)
		return
	}

	h.sessions.SetCookie(w, sess)
	metrics.RecordLogin("web", nil)

	h.log.Info("web login complete", slog.String("user_id", user.ID))
	http.Redirect(w, r, h.clientURL+"/home", http.StatusFound)
}

// finishNativeLogin establishes a session the native client will claim
// later and hands it a one-time code via its redirect URL. The session
// starts with the code's short lifetime so that an unclaimed code leaves
// nothing long-lived behind; Exchange extends it on redemption. No cookie
// is set: this browser tab is not the client.
func (h *Handler) finishNativeLogin(w http.ResponseWriter, r *http.Request, user *entities.User) {
	sess, err := h.sessions.Establish(r.Context(), user.ID, h.codeTTL)
	if err != nil {
		h.log.Error("failed to establish session", slog.String("error", err.Error()))
		metrics.RecordLogin("native", err)
		h.redirectLoginFailed(w, r)
		return
	}

	code, err := h.auth.IssueAuthCode(r.Context(), sess.ID, user.ID, h.codeTTL)
	if err != nil {
		h.log.Error("failed to issue auth code", slog.String("error", err.Error()))
		_ = h.sessions.Destroy(r.Context(), sess.ID)
		metrics.RecordLogin("native", err)
		h.redirectLoginFailed(w, r)
		return
	}

	metrics.AuthCodesIssued.Inc()
	metrics.RecordLogin("native", nil)

	h.log.Info("native login complete, code issued", slog.String("user_id", user.ID))
	http.Redirect(w, r, h.nativeRedirect+"?code="+url.QueryEscape(code), http.StatusFound)
}

func (h *Handler) redirectLoginFailed(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, h.clientURL+"/login", http.StatusFound)
}

type exchangeRequest struct {
	Code string `json:"code"`
}

type exchangeResponse struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
}

// Exchange trades a one-time code for session credentials. The sessionId
// in the response is the signed cookie value, ready to be sent back as
// the session cookie on subsequent requests.
func (h *Handler) Exchange(w http.ResponseWriter, r *http.Request) {
	var req exchangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
		h.writeError(w, http.StatusBadRequest, "Missing code")
		return
	}

	entry, err := h.auth.RedeemAuthCode(r.Context(), req.Code)
	metrics.RecordRedemption(err)
	if err != nil {
		if errors.Is(err, repositories.ErrAuthCodeNotFound) {
			h.writeError(w, http.StatusUnauthorized, "Invalid or expired code")
			return
		}
		h.log.Error("code redemption failed", slog.String("error", err.Error()))
		h.writeError(w, http.StatusInternalServerError, "Exchange failed")
		return
	}

	// The session was created short-lived at callback time; promote it to
	// the full lifetime now that a client has claimed it
	if err := h.sessions.Extend(r.Context(), entry.SessionID); err != nil {
		h.log.Error("failed to extend session",
			slog.String("session_id", entry.SessionID),
			slog.String("error", err.Error()))
		h.writeError(w, http.StatusUnauthorized, "Invalid or expired code")
		return
	}

	h.log.Info("auth code exchanged", slog.String("user_id", entry.UserID))
	h.writeJSON(w, http.StatusOK, exchangeResponse{
		SessionID: h.sessions.CookieValue(entry.SessionID),
		UserID:    entry.UserID,
	})
}

// Me returns the authenticated user. RequireAuth guards this route, so the
// user is always present on the context here.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	h.writeJSON(w, http.StatusOK, map[string]*entities.User{"user": user})
}

// Logout destroys the session, if any, and clears the cookie. Logging out
// without a valid session still succeeds.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.ResolveRequest(r.Context(), r)
	if err == nil {
		if err := h.sessions.Destroy(r.Context(), sess.ID); err != nil {
			h.log.Error("failed to destroy session",
				slog.String("session_id", sess.ID),
				slog.String("error", err.Error()))
			h.writeError(w, http.StatusInternalServerError, "Logout failed")
			return
		}
	} else if !errors.Is(err, repositories.ErrSessionNotFound) {
		h.log.Error("session lookup failed during logout", slog.String("error", err.Error()))
		h.writeError(w, http.StatusInternalServerError, "Logout failed")
		return
	}

	h.sessions.ClearCookie(w)
	h.writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}
