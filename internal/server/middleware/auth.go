// Package middleware provides HTTP middleware for the visitbook server.
package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/example/visitbook/internal/response"
)

// AdminKeyAuth returns middleware that guards the admin API with a shared
// key. The key is accepted either as an X-Admin-Key header or as a
// "Bearer <key>" Authorization header. An empty configured key disables
// the admin API entirely rather than leaving it open.
func AdminKeyAuth(adminKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if adminKey == "" {
				response.WriteUnauthorized(w)
				return
			}

			presented := r.Header.Get("X-Admin-Key")
			if presented == "" {
				authHeader := r.Header.Get("Authorization")
				parts := strings.SplitN(authHeader, " ", 2)
				if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
					presented = strings.TrimSpace(parts[1])
				}
			}

			if presented == "" ||
				subtle.ConstantTimeCompare([]byte(presented), []byte(adminKey)) != 1 {
				response.WriteUnauthorized(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
