package middleware

import (
	"net/http"

	"github.com/gorilla/handlers"
)

// CORS lets the browser client at clientURL call the API from its own
// origin with the session cookie attached. Credentialed requests forbid a
// wildcard origin, so the allowed origin is exactly the configured client;
// requests without an Origin header (native clients, curl) pass through
// untouched.
func CORS(clientURL string) func(http.Handler) http.Handler {
	return handlers.CORS(
		handlers.AllowedOrigins([]string{clientURL}),
		handlers.AllowCredentials(),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)
}
