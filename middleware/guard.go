package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/mk070/zenauth"
)

type identityContextKey struct{}

// IdentityFromContext returns the identity stored by [Guard].
func IdentityFromContext(ctx context.Context) (*zenauth.Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(*zenauth.Identity)
	return id, ok
}

// Guard authenticates the Authorization header with engine and stores the
// resulting identity in the request context. Rejected requests never reach
// next.
func Guard(engine *zenauth.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
				return
			}

			id, err := engine.Authenticate(r.Context(), r.Header.Get("Authorization"))
			if err != nil {
				reject(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), identityContextKey{}, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// reject writes the RFC 6750 response for an Authenticate failure.
func reject(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, zenauth.ErrNoToken):
		w.Header().Set("WWW-Authenticate", `Bearer realm="zenauth"`)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	case errors.Is(err, zenauth.ErrTokenExpired):
		challenge(w, "token expired")
	case errors.Is(err, zenauth.ErrTokenRevoked):
		challenge(w, "token revoked")
	case errors.Is(err, zenauth.ErrTokenMalformed),
		errors.Is(err, zenauth.ErrTokenInvalid):
		challenge(w, "token invalid")
	case errors.Is(err, zenauth.ErrAccountDeactivated):
		http.Error(w, "account deactivated", http.StatusForbidden)
	default:
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
	}
}

func challenge(w http.ResponseWriter, description string) {
	w.Header().Set("WWW-Authenticate",
		`Bearer realm="zenauth", error="invalid_token", error_description="`+description+`"`)
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}
