package gate

import (
	"net/http"

	"github.com/photogrid/gallery/internal/identity"
)

// Middleware gates every request except static assets. It must run before
// routing so a Rewrite reaches the canonical route.
//
// Provider cookies are written on every outcome. The resolved session is
// stored in the request context for handlers.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if IsStaticPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		decision, resolved := g.Decide(r.Context(), r.URL.Path, r.Cookies())
		identity.WriteCookies(w, resolved.Cookies)

		switch decision.Kind {
		case Reject:
			http.Error(w, "Authentication required", decision.Status)
			return
		case Redirect:
			http.Redirect(w, r, decision.Target, http.StatusTemporaryRedirect)
			return
		case Rewrite:
			r = rewritePath(r, decision.Target)
		}

		ctx := identity.WithSession(r.Context(), resolved.Session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// rewritePath returns a copy of r addressed to target.
func rewritePath(r *http.Request, target string) *http.Request {
	r2 := r.Clone(r.Context())
	r2.URL.Path = target
	r2.URL.RawPath = ""
	r2.RequestURI = r2.URL.RequestURI()
	return r2
}
