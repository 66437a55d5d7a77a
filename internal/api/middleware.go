package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// APIKeyAuth is middleware that validates requests against a backend API key.
// It checks the X-API-Key header first, then falls back to Authorization: Bearer <key>.
func APIKeyAuth(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")

			if key == "" {
				authHeader := r.Header.Get("Authorization")
				if strings.HasPrefix(authHeader, "Bearer ") {
					key = strings.TrimPrefix(authHeader, "Bearer ")
				}
			}

			if key == "" {
				respondJSON(w, http.StatusUnauthorized, map[string]string{
					"error": "Missing API key. Provide X-API-Key header or Authorization: Bearer <key>",
				})
				return
			}

			// Constant-time comparison to prevent timing attacks
			if subtle.ConstantTimeCompare([]byte(key), []byte(apiKey)) != 1 {
				respondJSON(w, http.StatusForbidden, map[string]string{
					"error": "Invalid API key",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// InternalSecretAuth guards the orchestrator/worker contract endpoints with
// the shared render secret header.
func InternalSecretAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := r.Header.Get("x-internal-render-secret")

			if provided == "" {
				respondJSON(w, http.StatusUnauthorized, map[string]string{
					"error": "Missing x-internal-render-secret header",
				})
				return
			}

			if subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
				respondJSON(w, http.StatusForbidden, map[string]string{
					"error": "Invalid render secret",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// WorkerTokenAuth guards the worker-role dispatch endpoint with the bearer
// token the orchestrator sends on dispatch.
func WorkerTokenAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			provided := strings.TrimPrefix(authHeader, "Bearer ")

			if provided == "" || provided == authHeader {
				respondJSON(w, http.StatusUnauthorized, map[string]string{
					"error": "Missing worker token. Provide Authorization: Bearer <token>",
				})
				return
			}

			if subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
				respondJSON(w, http.StatusForbidden, map[string]string{
					"error": "Invalid worker token",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
