package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// sessionCookieName is the cookie the server authenticates with; it has to
// match the server's session cookie name
const sessionCookieName = "connect.sid"

var (
	// ErrUnauthenticated is returned when the server rejects the stored
	// session, typically because it expired or was logged out elsewhere
	ErrUnauthenticated = errors.New("not authenticated")

	// ErrCodeRejected is returned when the exchange endpoint refuses a
	// one-time code (already used, expired, or never issued)
	ErrCodeRejected = errors.New("authorization code rejected")
)

// APIClient talks to the auth server over HTTP, presenting the stored
// session cookie on every request.
type APIClient struct {
	baseURL    string
	cookie     string // signed session value; empty for unauthenticated calls
	httpClient *http.Client
}

// UserInfo is the account as reported by the server
type UserInfo struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture,omitempty"`
}

// ExchangeResult is the response from a successful code exchange
type ExchangeResult struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
}

// NewAPIClient creates a client for the given server. An empty cookie makes
// an unauthenticated client, which is all the exchange endpoint needs.
func NewAPIClient(baseURL, cookie string) *APIClient {
	return &APIClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		cookie:     cookie,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *APIClient) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cookie != "" {
		req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: c.cookie})
	}
	return req, nil
}

// Exchange trades a one-time code for session credentials
func (c *APIClient) Exchange(ctx context.Context, code string) (*ExchangeResult, error) {
	payload, err := json.Marshal(map[string]string{"code": code})
	if err != nil {
		return nil, err
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/auth/exchange", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("exchange request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusBadRequest:
		return nil, ErrCodeRejected
	default:
		return nil, fmt.Errorf("exchange failed with status %d", resp.StatusCode)
	}

	var result ExchangeResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode exchange response: %w", err)
	}
	if result.SessionID == "" {
		return nil, fmt.Errorf("exchange response missing session")
	}

	return &result, nil
}

// Me fetches the account behind the stored session
func (c *APIClient) Me(ctx context.Context) (*UserInfo, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/auth/me", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		return nil, ErrUnauthenticated
	default:
		return nil, fmt.Errorf("request failed with status %d", resp.StatusCode)
	}

	var body struct {
		User UserInfo `json:"user"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode user: %w", err)
	}

	return &body.User, nil
}

// Logout destroys the stored session server-side
func (c *APIClient) Logout(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodPost, "/auth/logout", nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("logout request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("logout failed with status %d", resp.StatusCode)
	}
	return nil
}
