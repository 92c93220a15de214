package oauth

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
)

// Platform identifies which kind of client started a login attempt. The
// OAuth state parameter is the only channel that survives the round-trip
// through the provider, so the hint rides inside it.
type Platform string

const (
	PlatformWeb    Platform = "web"
	PlatformNative Platform = "native"
)

// State is the payload carried through the provider redirect
type State struct {
	Platform Platform `json:"platform"`
	Nonce    string   `json:"nonce"`
}

// ParsePlatform maps a query parameter to a platform, defaulting to web.
// Anything unrecognized is treated as a browser so a native deep link is
// never leaked to a client that cannot handle it.
func ParsePlatform(s string) Platform {
	switch s {
	case "native", "ios":
		return PlatformNative
	default:
		return PlatformWeb
	}
}

// EncodeState serializes a state payload with a fresh random nonce
func EncodeState(platform Platform) (string, error) {
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	payload, err := json.Marshal(State{
		Platform: platform,
		Nonce:    base64.RawURLEncoding.EncodeToString(nonce),
	})
	if err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(payload), nil
}

// DecodeState parses a state parameter returned by the provider. Absent,
// malformed, or unrecognized values decode to the web platform.
func DecodeState(raw string) State {
	fallback := State{Platform: PlatformWeb}

	if raw == "" {
		return fallback
	}

	payload, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return fallback
	}

	var state State
	if err := json.Unmarshal(payload, &state); err != nil {
		return fallback
	}

	if state.Platform != PlatformNative {
		state.Platform = PlatformWeb
	}

	return state
}
