// Package gate decides, once per request, whether the request proceeds,
// is redirected, is rewritten to a canonical path, or is rejected.
package gate

import (
	"context"
	"net/http"
	"net/url"

	"github.com/photogrid/gallery/internal/identity"
	"github.com/photogrid/gallery/internal/logging"
	"github.com/photogrid/gallery/internal/telemetry"
)

// DecisionKind enumerates the terminal gate outcomes.
type DecisionKind int

const (
	Allow DecisionKind = iota
	Redirect
	Rewrite
	Reject
)

func (k DecisionKind) String() string {
	switch k {
	case Redirect:
		return "redirect"
	case Rewrite:
		return "rewrite"
	case Reject:
		return "reject"
	default:
		return "allow"
	}
}

// Decision is the single outcome of gating a request.
type Decision struct {
	Kind DecisionKind
	// Target is the Location of a Redirect or the new path of a Rewrite.
	Target string
	// Status is the response code of a Reject.
	Status int
}

// Gate combines the classifier, the session resolver and the image guard.
type Gate struct {
	classifier *Classifier
	resolver   *identity.Resolver
	metrics    *telemetry.GateMetrics
}

// New creates a gate. metrics may be nil.
func New(classifier *Classifier, resolver *identity.Resolver, metrics *telemetry.GateMetrics) *Gate {
	return &Gate{classifier: classifier, resolver: resolver, metrics: metrics}
}

// Decide evaluates the request path against the session in cookies.
//
// Order:
//  1. classify the path
//  2. legacy redirects are returned before any auth check
//  3. resolve the session
//  4. image path without a session: Reject(401)
//  5. protected path without a session: Redirect to the login page
//  6. apply the rewrite if any, else Allow
//
// Steps 4 and 5 look at the inbound path, not the rewritten one. The returned
// Result carries the session and the cookies the provider wants written,
// whatever the decision.
func (g *Gate) Decide(ctx context.Context, path string, cookies []*http.Cookie) (Decision, identity.Result) {
	class := g.classifier.Classify(path)

	if class.Action == ActionRedirect {
		return g.record(ctx, Decision{Kind: Redirect, Target: class.Target}, nil), identity.Result{}
	}

	resolved := g.resolver.Resolve(ctx, cookies)
	session := resolved.Session

	if IsImagePath(path) && session == nil {
		return g.record(ctx, Decision{Kind: Reject, Status: http.StatusUnauthorized}, nil), resolved
	}

	if class.Kind != Public && session == nil {
		return g.record(ctx, Decision{Kind: Redirect, Target: LoginRedirect(path)}, nil), resolved
	}

	if class.Action == ActionRewrite {
		return g.record(ctx, Decision{Kind: Rewrite, Target: class.Target}, session), resolved
	}
	return g.record(ctx, Decision{Kind: Allow}, session), resolved
}

// LoginRedirect returns the login URL that returns the user to path afterwards.
func LoginRedirect(path string) string {
	return PathLogin + "?" + url.Values{RedirectedFromParam: {path}}.Encode()
}

func (g *Gate) record(ctx context.Context, d Decision, session *identity.Session) Decision {
	g.metrics.RecordDecision(ctx, d.Kind.String(), session != nil)
	logging.Ctx(ctx).Debug().
		Str("decision", d.Kind.String()).
		Str("target", d.Target).
		Bool("authenticated", session != nil).
		Msg("gate decision")
	return d
}
