package telemetry

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ServerMetrics holds metric instruments for HTTP server telemetry.
// Initialize once at server startup and reuse throughout the application lifecycle.
type ServerMetrics struct {
	RequestCounter  metric.Int64Counter     // Total HTTP requests
	RequestDuration metric.Float64Histogram // HTTP request latency
	ErrorCounter    metric.Int64Counter     // Total HTTP errors (5xx)
}

// NewServerMetrics creates a new ServerMetrics instance with pre-configured instruments.
func NewServerMetrics() (*ServerMetrics, error) {
	meter := otel.Meter("galleryd/http")

	requestCounter, err := meter.Int64Counter(
		"http.server.request.count",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	// Buckets: 5ms, 10ms, 25ms, 50ms, 100ms, 250ms, 500ms, 1s, 2.5s, 5s
	requestDuration, err := meter.Float64Histogram(
		"http.server.request.duration",
		metric.WithDescription("HTTP request duration"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000),
	)
	if err != nil {
		return nil, err
	}

	errorCounter, err := meter.Int64Counter(
		"http.server.error.count",
		metric.WithDescription("Total number of HTTP server errors (5xx)"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	return &ServerMetrics{
		RequestCounter:  requestCounter,
		RequestDuration: requestDuration,
		ErrorCounter:    errorCounter,
	}, nil
}

// RecordRequest records an HTTP request with method, route, status, and duration.
func (m *ServerMetrics) RecordRequest(ctx context.Context, method, route, status string, durationMs float64) {
	attrs := metric.WithAttributes(
		attribute.String(AttrHTTPMethod, method),
		attribute.String(AttrHTTPRoute, route),
		attribute.String(AttrHTTPStatusCode, status),
	)

	m.RequestCounter.Add(ctx, 1, attrs)
	m.RequestDuration.Record(ctx, durationMs, attrs)

	if len(status) > 0 && status[0] == '5' {
		m.ErrorCounter.Add(ctx, 1, attrs)
	}
}

// Middleware records every request once the response has been written.
// The route is chi's route pattern so ids do not explode cardinality.
func (m *ServerMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.RecordRequest(r.Context(), r.Method, route, strconv.Itoa(status),
			float64(time.Since(start).Microseconds())/1000)
	})
}

// GateMetrics holds metric instruments for the authorization gate.
type GateMetrics struct {
	Decisions        metric.Int64Counter     // Decisions by kind
	IdentityDuration metric.Float64Histogram // Identity provider call latency
	IdentityFailures metric.Int64Counter     // Identity provider errors treated as anonymous
}

// NewGateMetrics creates metric instruments for gate telemetry.
func NewGateMetrics() (*GateMetrics, error) {
	meter := otel.Meter("galleryd/gate")

	decisions, err := meter.Int64Counter(
		"gate.decision.count",
		metric.WithDescription("Total number of authorization gate decisions"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return nil, err
	}

	identityDuration, err := meter.Float64Histogram(
		"gate.identity.duration",
		metric.WithDescription("Identity provider session lookup duration"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(5, 10, 25, 50, 100, 250, 500, 1000),
	)
	if err != nil {
		return nil, err
	}

	identityFailures, err := meter.Int64Counter(
		"gate.identity.failure.count",
		metric.WithDescription("Identity provider failures resolved as anonymous"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		return nil, err
	}

	return &GateMetrics{
		Decisions:        decisions,
		IdentityDuration: identityDuration,
		IdentityFailures: identityFailures,
	}, nil
}

// RecordDecision counts one gate decision.
func (g *GateMetrics) RecordDecision(ctx context.Context, kind string, authenticated bool) {
	if g == nil {
		return
	}
	g.Decisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrGateDecision, kind),
		attribute.Bool(AttrAuthenticated, authenticated),
	))
}

// RecordIdentity records an identity provider lookup.
func (g *GateMetrics) RecordIdentity(ctx context.Context, provider string, err error, durationMs float64) {
	if g == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String(AttrIdentityProvider, provider))
	g.IdentityDuration.Record(ctx, durationMs, attrs)
	if err != nil {
		g.IdentityFailures.Add(ctx, 1, attrs)
	}
}

// StoreMetrics holds metric instruments for the comment store.
type StoreMetrics struct {
	QueryDuration metric.Float64Histogram // Query latency
	QueryErrors   metric.Int64Counter     // Queries that failed after retries
	Retries       metric.Int64Counter     // Retries by reason
}

// NewStoreMetrics creates metric instruments for comment store telemetry.
func NewStoreMetrics() (*StoreMetrics, error) {
	meter := otel.Meter("galleryd/database")

	queryDuration, err := meter.Float64Histogram(
		"db.query.duration",
		metric.WithDescription("Database query duration"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 25, 50, 100, 250, 500, 1000, 2000),
	)
	if err != nil {
		return nil, err
	}

	queryErrors, err := meter.Int64Counter(
		"db.query.error.count",
		metric.WithDescription("Total number of database query errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	retries, err := meter.Int64Counter(
		"db.query.retry.count",
		metric.WithDescription("Queries retried after a transient error"),
		metric.WithUnit("{retry}"),
	)
	if err != nil {
		return nil, err
	}

	return &StoreMetrics{
		QueryDuration: queryDuration,
		QueryErrors:   queryErrors,
		Retries:       retries,
	}, nil
}

// RecordQuery records a query with its label and duration.
func (s *StoreMetrics) RecordQuery(ctx context.Context, operation string, durationMs float64, err error) {
	if s == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String(AttrDBOperation, operation))
	s.QueryDuration.Record(ctx, durationMs, attrs)
	if err != nil {
		s.QueryErrors.Add(ctx, 1, attrs)
	}
}

// RecordRetry counts a retry caused by reason ("missing_table", "endpoint_transition").
func (s *StoreMetrics) RecordRetry(ctx context.Context, operation, reason string) {
	if s == nil {
		return
	}
	s.Retries.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrDBOperation, operation),
		attribute.String(AttrRetryReason, reason),
	))
}

// Common metric attribute keys
const (
	AttrHTTPMethod     = "http.method"
	AttrHTTPRoute      = "http.route"
	AttrHTTPStatusCode = "http.status_code"

	AttrDBOperation = "db.operation"
	AttrRetryReason = "db.retry_reason"

	AttrGateDecision     = "gate.decision"
	AttrAuthenticated    = "auth.authenticated"
	AttrIdentityProvider = "identity.provider"
)
