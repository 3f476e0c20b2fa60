package middleware

import (
	"net/http"

	"github.com/mk070/zenauth/account"
)

// RequireRole admits requests whose identity, stored by [Guard], carries one
// of roles. It must be mounted behind Guard.
func RequireRole(roles ...account.Role) func(http.Handler) http.Handler {
	allowed := make(map[account.Role]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFromContext(r.Context())
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if _, ok := allowed[id.Role]; !ok {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireVerified admits requests whose identity has a verified email.
func RequireVerified(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFromContext(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if !id.EmailVerified {
			http.Error(w, "email verification required", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
