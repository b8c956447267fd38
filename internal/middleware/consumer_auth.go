package middleware

import (
	"crypto/subtle"
	"net/http"
)

// ConsumerAuth guards the outbox pull/ack endpoints with a static shared
// secret, compared in constant time. One secret for all consumers; per-client
// credentials are not modeled.
func ConsumerAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				writeAuthError(w, r, "consumer access not configured")
				return
			}
			raw := extractBearer(r)
			if subtle.ConstantTimeCompare([]byte(raw), []byte(secret)) != 1 {
				writeAuthError(w, r, "invalid consumer credentials")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
