package middleware

import (
	"crypto/subtle"
	"net/http"
)

// AdminKeyHeader carries the admin API key on privileged requests.
const AdminKeyHeader = "X-Admin-Key"

// RequireAdminKey guards administrative routes with a shared API key.
// Admin identity is a server-held credential, not a magic customer account.
// The comparison is constant-time to avoid leaking key prefixes.
func RequireAdminKey(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key == "" {
				respondUnauthorized(w, r)
				return
			}

			provided := r.Header.Get(AdminKeyHeader)
			if subtle.ConstantTimeCompare([]byte(provided), []byte(key)) != 1 {
				respondUnauthorized(w, r)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
