package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/exec"
	"runtime"
	"sync"
	"time"
)

// FlowState tracks where a browser login attempt is
type FlowState int

const (
	StateIdle FlowState = iota
	StateAuthorizing
	StateCodeReceived
	StateExchanging
	StateAuthenticated
	StateFailed
)

func (s FlowState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAuthorizing:
		return "authorizing"
	case StateCodeReceived:
		return "code_received"
	case StateExchanging:
		return "exchanging"
	case StateAuthenticated:
		return "authenticated"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// FailureKind says why a login attempt ended in StateFailed
type FailureKind int

const (
	FailureNone      FailureKind = iota
	FailureCallback              // listener could not start, or the callback was malformed
	FailureRejected              // the server refused the one-time code
	FailureTransport             // the exchange could not reach the server
	FailureTimeout               // the browser flow was never completed
)

// loginTimeout bounds how long we wait for the user to finish in the browser
const loginTimeout = 5 * time.Minute

const callbackSuccessPage = `<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"><title>Authentication Successful</title></head>
<body style="font-family: sans-serif; text-align: center; padding: 50px;">
	<h1>&#10003; Authentication Successful</h1>
	<p>CLI login complete. You can close this window and return to the terminal.</p>
</body>
</html>`

// LoginFlow drives a browser login: it listens on the loopback callback
// address, sends the browser to the server's native login entry point, and
// exchanges the one-time code from the redirect for session credentials.
type LoginFlow struct {
	serverURL    string
	callbackPort int
	openBrowser  func(url string) error
	timeout      time.Duration
	log          *slog.Logger

	mu      sync.Mutex
	state   FlowState
	failure FailureKind
}

// NewLoginFlow creates a flow against the given server. The callback port
// must match the native redirect the server is configured with.
func NewLoginFlow(serverURL string, callbackPort int) *LoginFlow {
	return &LoginFlow{
		serverURL:    serverURL,
		callbackPort: callbackPort,
		openBrowser:  openBrowser,
		timeout:      loginTimeout,
		state:        StateIdle,
		log:          slog.Default().With("component", "login-flow"),
	}
}

// State returns the flow's current state
func (f *LoginFlow) State() FlowState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Failure returns why the flow failed, or FailureNone
func (f *LoginFlow) Failure() FailureKind {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failure
}

func (f *LoginFlow) setState(s FlowState) {
	f.mu.Lock()
	f.state = s
	f.mu.Unlock()
	f.log.Debug("login state changed", "state", s.String())
}

func (f *LoginFlow) fail(kind FailureKind, err error) error {
	f.mu.Lock()
	f.state = StateFailed
	f.failure = kind
	f.mu.Unlock()
	return err
}

// Run executes the flow and returns credentials ready to be saved. The
// context cancels the wait for the browser.
func (f *LoginFlow) Run(ctx context.Context) (*Credentials, error) {
	f.setState(StateAuthorizing)

	codeChan := make(chan string, 1)
	errChan := make(chan error, 1)

	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", f.callbackPort))
	if err != nil {
		return nil, f.fail(FailureCallback,
			fmt.Errorf("failed to start callback server on port %d: %w (is another login running?)", f.callbackPort, err))
	}

	serveMux := http.NewServeMux()
	serveMux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		if code == "" {
			errChan <- fmt.Errorf("no authorization code received on callback")
			http.Error(w, "Authorization failed", http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, callbackSuccessPage)
		codeChan <- code
	})

	server := &http.Server{Handler: serveMux}
	go func() {
		server.Serve(listener)
	}()
	defer server.Close()

	loginURL := f.serverURL + "/auth/google?platform=native"
	fmt.Println("\nOpening browser for authentication...")
	fmt.Printf("If the browser doesn't open automatically, visit:\n%s\n\n", loginURL)

	if err := f.openBrowser(loginURL); err != nil {
		// Not fatal; the user can follow the printed URL
		fmt.Printf("Failed to open browser automatically: %v\n", err)
	}

	fmt.Println("Waiting for authentication...")

	var code string
	select {
	case code = <-codeChan:
		f.setState(StateCodeReceived)
	case err := <-errChan:
		return nil, f.fail(FailureCallback, err)
	case <-ctx.Done():
		return nil, f.fail(FailureTimeout, ctx.Err())
	case <-time.After(f.timeout):
		return nil, f.fail(FailureTimeout, fmt.Errorf("authentication timeout"))
	}

	f.setState(StateExchanging)

	result, err := f.exchange(ctx, code)
	if err != nil {
		if errors.Is(err, ErrCodeRejected) {
			return nil, f.fail(FailureRejected, fmt.Errorf("server rejected the authorization code: %w", err))
		}
		return nil, f.fail(FailureTransport, err)
	}

	creds := &Credentials{
		SessionCookie: result.SessionID,
		UserID:        result.UserID,
	}

	// Best effort: enrich the credentials with profile info. A failure here
	// doesn't invalidate the session we just obtained.
	authed := NewAPIClient(f.serverURL, result.SessionID)
	if user, err := authed.Me(ctx); err == nil {
		creds.Email = user.Email
		creds.Name = user.Name
	} else {
		f.log.Warn("failed to fetch profile after login", "error", err)
	}

	f.setState(StateAuthenticated)
	return creds, nil
}

// exchange trades the code for credentials, retrying once on transport
// errors. A rejection is never retried: the first attempt may have consumed
// the code even if the response was lost.
func (f *LoginFlow) exchange(ctx context.Context, code string) (*ExchangeResult, error) {
	client := NewAPIClient(f.serverURL, "")

	result, err := client.Exchange(ctx, code)
	if err == nil || errors.Is(err, ErrCodeRejected) || ctx.Err() != nil {
		return result, err
	}

	f.log.Warn("exchange attempt failed, retrying", "error", err)
	return client.Exchange(ctx, code)
}

// openBrowser tries to open the URL in a browser
func openBrowser(url string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		return fmt.Errorf("unsupported platform")
	}

	return cmd.Start()
}
