package api

import (
	"net/http"
	"strings"

	"github.com/aboutme/cards/internal/auth"
)

// Authenticate verifies the bearer token with v and stores the caller's
// identity in the request context.
func Authenticate(v auth.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			const prefix = "Bearer "
			if !strings.HasPrefix(header, prefix) || strings.TrimSpace(header[len(prefix):]) == "" {
				httpError(w, http.StatusUnauthorized, "authentication_error", "invalid or missing bearer token")
				return
			}

			id, err := v.Verify(r.Context(), strings.TrimSpace(header[len(prefix):]))
			if err != nil || id.UserID == "" {
				httpError(w, http.StatusUnauthorized, "authentication_error", "invalid or missing bearer token")
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
		})
	}
}
