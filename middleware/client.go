package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/mk070/zenauth"
)

// ClientInfo copies the caller's IP and User-Agent into the request context
// for throttling and audit. X-Forwarded-For is honored only when
// trustForwarded is set.
func ClientInfo(trustForwarded bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := zenauth.WithClientIP(r.Context(), clientIP(r, trustForwarded))
			ctx = zenauth.WithUserAgent(ctx, r.UserAgent())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func clientIP(r *http.Request, trustForwarded bool) string {
	if trustForwarded {
		// first hop is the original client
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
