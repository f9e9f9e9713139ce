package middleware

import (
	"crypto/subtle"
	"net/http"
)

const adminTokenHeader = "X-Admin-Token"

// AdminToken guards operator routes with a shared secret header.
func AdminToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(adminTokenHeader)
			if token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized","message":"Missing or invalid admin token"}` + "\n"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
