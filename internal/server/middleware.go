package server

import (
	"net"
	"net/http"

	"github.com/photogrid/gallery/internal/identity"
)

// ClientInfo records the caller's user agent and address for identity
// providers that persist sessions. It runs after middleware.RealIP.
func ClientInfo(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		if host, _, err := net.SplitHostPort(ip); err == nil {
			ip = host
		}
		ctx := identity.WithClientInfo(r.Context(), identity.ClientInfo{
			UserAgent: r.UserAgent(),
			IPAddress: ip,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
