package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/photogrid/gallery/internal/logging"
	"github.com/photogrid/gallery/internal/telemetry"
)

// SchemaEnsurer creates missing tables. migrations.Apply bound to a DB satisfies it.
type SchemaEnsurer func(ctx context.Context) error

// DefaultTransitionDelay is the pause before retrying a query that hit a
// serverless endpoint while it was starting or scaling.
const DefaultTransitionDelay = 5 * time.Second

var (
	missingCommentsTable = regexp.MustCompile(`relation "comments" does not exist|no such table: comments`)
	endpointInTransition = regexp.MustCompile(`(?i)endpoint is in transition`)
)

// RetryPolicy configures how comment queries recover from transient errors.
type RetryPolicy struct {
	// EnsureSchema, when set, runs once after a query finds the comments table missing.
	EnsureSchema SchemaEnsurer

	// TransitionDelay is the fixed wait before retrying an "endpoint is in transition" error.
	TransitionDelay time.Duration

	Metrics *telemetry.StoreMetrics
}

// run executes fn, retrying it at most once when the error is recognized as transient.
// Not-found errors pass through untouched; anything else is logged and wrapped with label.
func (p RetryPolicy) run(ctx context.Context, label string, fn func(ctx context.Context) error) error {
	start := time.Now()
	err := fn(ctx)

	if err != nil && !errors.Is(err, ErrNotFound) {
		switch {
		case missingCommentsTable.MatchString(err.Error()) && p.EnsureSchema != nil:
			logging.Ctx(ctx).Warn().Str("query", label).Msg("comments table missing, applying migrations")
			p.Metrics.RecordRetry(ctx, label, "missing_table")
			if schemaErr := p.EnsureSchema(ctx); schemaErr != nil {
				err = fmt.Errorf("ensure schema: %w", schemaErr)
			} else {
				err = fn(ctx)
			}

		case endpointInTransition.MatchString(err.Error()):
			logging.Ctx(ctx).Warn().Str("query", label).Dur("delay", p.TransitionDelay).
				Msg("database endpoint in transition, retrying")
			p.Metrics.RecordRetry(ctx, label, "endpoint_transition")
			if waitErr := sleepContext(ctx, p.TransitionDelay); waitErr != nil {
				err = waitErr
			} else {
				err = fn(ctx)
			}
		}
	}

	p.Metrics.RecordQuery(ctx, label, float64(time.Since(start).Microseconds())/1000, err)

	if err == nil || errors.Is(err, ErrNotFound) {
		return err
	}
	logging.Ctx(ctx).Error().Err(err).Str("query", label).Msg("comment query failed")
	return fmt.Errorf("%s: %w", label, err)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
