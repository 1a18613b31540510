package middleware

import (
	"crypto/subtle"
	"net/http"

	pkghttp "github.com/bimmatch/guard/pkg/http"
)

const AdminTokenHeader = "X-Admin-Token"

// RequireAdminToken guards administrative routes with a shared token.
// With no token configured the routes are disabled entirely.
func RequireAdminToken(token string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				pkghttp.WriteNotFound(w, "Not found")
				return
			}

			provided := r.Header.Get(AdminTokenHeader)
			if provided == "" {
				pkghttp.WriteUnauthorized(w, "Admin token required")
				return
			}
			if subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
				pkghttp.WriteForbidden(w, "Invalid admin token")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
