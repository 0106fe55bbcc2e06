package middleware

import (
	"crypto/subtle"
	"net/http"
)

// RequireSweepSecret protects the sweep trigger endpoint with a shared secret
// header set by the external scheduler. An empty configured secret disables
// the endpoint rather than leaving it open.
func RequireSweepSecret(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				http.Error(w, "sweep trigger disabled", http.StatusUnauthorized)
				return
			}
			provided := r.Header.Get("X-Sweep-Secret")
			if subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
