// Package auth guards server routes with static API keys.
package auth

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
)

// Context key type for avoiding collisions
type contextKey string

const keyIDContextKey contextKey = "apiKeyID"

// GetKeyIDFromContext returns the ID of the key that authenticated the request.
func GetKeyIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(keyIDContextKey).(string); ok {
		return id
	}
	return ""
}

// Middleware returns an HTTP middleware that requires one of keys in the
// X-API-Key or Authorization: Bearer header. With no keys it lets every
// request through.
func Middleware(keys []string, writeError func(w http.ResponseWriter, status int, code, message string)) func(http.Handler) http.Handler {
	hashes := make([][]byte, 0, len(keys))
	for _, k := range keys {
		hashes = append(hashes, []byte(HashAPIKey(k)))
	}

	return func(next http.Handler) http.Handler {
		if len(hashes) == 0 {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey := presentedKey(r)
			if apiKey == "" {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "API key required")
				return
			}

			presented := []byte(HashAPIKey(apiKey))
			valid := 0
			for _, h := range hashes {
				valid |= subtle.ConstantTimeCompare(presented, h)
			}
			if valid != 1 {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid API key")
				return
			}

			ctx := context.WithValue(r.Context(), keyIDContextKey, KeyID(apiKey))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func presentedKey(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(auth[len("Bearer "):])
	}
	return ""
}
