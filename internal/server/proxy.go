package server

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/photogrid/gallery/internal/logging"
)

// NewUpstreamProxy forwards requests to the server-rendered frontend at target.
// The gate has already run, so the proxied request carries the rewritten path.
func NewUpstreamProxy(target string) (http.Handler, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("parse upstream url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("upstream url %q must be absolute", target)
	}

	proxy := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(u)
			pr.SetXForwarded()
			pr.Out.Host = pr.In.Host
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			logging.Ctx(r.Context()).Error().Err(err).Str("upstream", u.Host).Msg("upstream request failed")
			http.Error(w, "Bad Gateway", http.StatusBadGateway)
		},
	}
	return proxy, nil
}
