package session

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strings"
)

// The cookie format matches what express-session writes through
// cookie-signature: "s:" + sid + "." + base64(HMAC-SHA256(sid, secret))
// with trailing '=' padding stripped. Any deviation (prefix, separator,
// encoding, hash) produces a cookie the middleware silently rejects, so
// this file is the single place the scheme lives.

const signedPrefix = "s:"

var (
	// ErrMalformedCookie is returned when a value does not have the signed
	// cookie shape at all
	ErrMalformedCookie = errors.New("malformed session cookie")

	// ErrInvalidSignature is returned when the signature does not match.
	// A cookie signed with a different secret surfaces the same way.
	ErrInvalidSignature = errors.New("invalid session cookie signature")
)

// Sign produces the full cookie value for a session id
func Sign(sessionID, secret string) string {
	return signedPrefix + sessionID + "." + signature(sessionID, secret)
}

// Unsign verifies a signed cookie value and recovers the session id
func Unsign(value, secret string) (string, error) {
	if !strings.HasPrefix(value, signedPrefix) {
		return "", ErrMalformedCookie
	}

	payload := value[len(signedPrefix):]

	// The sid may itself contain dots; the signature starts after the last one
	dot := strings.LastIndex(payload, ".")
	if dot <= 0 || dot == len(payload)-1 {
		return "", ErrMalformedCookie
	}

	sessionID := payload[:dot]
	sig := payload[dot+1:]

	if !hmac.Equal([]byte(sig), []byte(signature(sessionID, secret))) {
		return "", ErrInvalidSignature
	}

	return sessionID, nil
}

func signature(sessionID, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(sessionID))
	sum := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return strings.TrimRight(sum, "=")
}
