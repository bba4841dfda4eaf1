package identity

import (
	"context"
	"net/http"
	"time"

	"github.com/photogrid/gallery/internal/logging"
	"github.com/photogrid/gallery/internal/telemetry"
)

// Resolver turns request cookies into an optional session. It never fails:
// provider errors are logged and the request proceeds as anonymous.
type Resolver struct {
	provider Provider
	metrics  *telemetry.GateMetrics
}

// NewResolver wraps provider. metrics may be nil.
func NewResolver(provider Provider, metrics *telemetry.GateMetrics) *Resolver {
	return &Resolver{provider: provider, metrics: metrics}
}

// Provider returns the wrapped provider.
func (r *Resolver) Provider() Provider {
	return r.provider
}

// Resolve asks the provider for the current user. Cookies returned by the
// provider are kept even when it also reports an error.
func (r *Resolver) Resolve(ctx context.Context, cookies []*http.Cookie) Result {
	start := time.Now()
	result, err := r.provider.CurrentUser(ctx, cookies)
	r.metrics.RecordIdentity(ctx, r.provider.Name(), err, float64(time.Since(start).Microseconds())/1000)

	var out Result
	if result != nil {
		out.Cookies = result.Cookies
	}
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("provider", r.provider.Name()).
			Msg("identity lookup failed, treating request as anonymous")
		return out
	}
	if result != nil && result.Session != nil && result.Session.UserID != "" {
		out.Session = result.Session
	}
	return out
}
