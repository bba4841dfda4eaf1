package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/photogrid/gallery/internal/authz"
	"github.com/photogrid/gallery/internal/config"
	"github.com/photogrid/gallery/internal/db/bunx"
	"github.com/photogrid/gallery/internal/gate"
	"github.com/photogrid/gallery/internal/identity"
	"github.com/photogrid/gallery/internal/identity/local"
	"github.com/photogrid/gallery/internal/identity/supabase"
	"github.com/photogrid/gallery/internal/logging"
	"github.com/photogrid/gallery/internal/migrations"
	"github.com/photogrid/gallery/internal/repository"
	"github.com/photogrid/gallery/internal/server"
	"github.com/photogrid/gallery/internal/services/comment"
	"github.com/photogrid/gallery/internal/storage"
	"github.com/photogrid/gallery/internal/telemetry"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
)

// sessionCleanupInterval is how often expired local sessions are purged.
const sessionCleanupInterval = time.Hour

var migrateOnStart bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gallery server",
	Long:  `Starts the HTTP server: the authorization gate, the comment API, the image routes and the frontend proxy.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		db, err := bunx.NewDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer bunx.Close(db)
		logging.Info().Str("database", string(bunx.DetectDatabaseType(cfg.DatabaseURL))).Msg("connected to database")

		if migrateOnStart {
			group, err := migrations.Apply(ctx, db)
			if err != nil {
				return fmt.Errorf("failed to apply migrations: %w", err)
			}
			logging.Info().Int64("group", group).Msg("migrations applied")
		}

		serverMetrics, err := telemetry.NewServerMetrics()
		if err != nil {
			return fmt.Errorf("failed to create server metrics: %w", err)
		}
		gateMetrics, err := telemetry.NewGateMetrics()
		if err != nil {
			return fmt.Errorf("failed to create gate metrics: %w", err)
		}
		storeMetrics, err := telemetry.NewStoreMetrics()
		if err != nil {
			return fmt.Errorf("failed to create store metrics: %w", err)
		}

		policy := repository.RetryPolicy{
			TransitionDelay: cfg.Comments.RetryDelay,
			Metrics:         storeMetrics,
		}
		if cfg.Comments.LazyMigrate {
			policy.EnsureSchema = func(ctx context.Context) error {
				_, err := migrations.Apply(ctx, db)
				return err
			}
		}
		comments := comment.NewService(repository.NewBunCommentRepository(db, policy))

		provider, sso, err := newIdentityProvider(ctx, cfg, db)
		if err != nil {
			return err
		}
		logging.Info().Str("provider", provider.Name()).Bool("sso", sso != nil).
			Bool("private", cfg.Auth.PrivateGallery).Msg("identity provider ready")

		var store storage.Store = storage.Disabled{}
		if cfg.Storage.Enabled() {
			s3Store, err := storage.NewS3Store(ctx, cfg.Storage)
			if err != nil {
				return fmt.Errorf("failed to create object store: %w", err)
			}
			store = s3Store
		} else {
			logging.Warn().Msg("S3_BUCKET not set, image routes will fail")
		}

		authorizer, err := authz.New()
		if err != nil {
			return fmt.Errorf("failed to load authorization policy: %w", err)
		}

		var upstream http.Handler
		if cfg.UpstreamURL != "" {
			upstream, err = server.NewUpstreamProxy(cfg.UpstreamURL)
			if err != nil {
				return err
			}
		}

		routerOpts := server.RouterOptions{
			Gate:           gate.New(gate.NewClassifier(cfg.Auth.PrivateGallery), identity.NewResolver(provider, gateMetrics), gateMetrics),
			Authorizer:     authorizer,
			Provider:       provider,
			SSO:            sso,
			Comments:       comments,
			Store:          store,
			Metrics:        serverMetrics,
			SiteURL:        cfg.SiteURL,
			LoginRateLimit: cfg.Auth.LoginRateLimit,
			Upstream:       upstream,
			HealthHandler:  healthHandler(db),
		}
		srv := &http.Server{
			Addr:         cfg.ServerAddr,
			Handler:      server.NewRouter(routerOpts),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		}

		jobCtx, stopJobs := context.WithCancel(ctx)
		defer stopJobs()
		if cfg.Auth.Provider == config.ProviderLocal {
			go purgeExpiredSessions(jobCtx, repository.NewBunSessionRepository(db))
		}

		serverErrors := make(chan error, 1)
		go func() {
			logging.Info().Str("addr", cfg.ServerAddr).Str("site", cfg.SiteURL).Msg("server starting")
			serverErrors <- srv.ListenAndServe()
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-serverErrors:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("server error: %w", err)

		case sig := <-shutdown:
			logging.Info().Str("signal", sig.String()).Msg("shutting down gracefully")
			stopJobs()

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := srv.Shutdown(ctx); err != nil {
				srv.Close()
				return fmt.Errorf("graceful shutdown failed: %w", err)
			}

			logging.Info().Msg("server stopped")
			return nil
		}
	},
}

// newIdentityProvider builds the provider selected by AUTH_PROVIDER. The SSO
// handler is nil unless the local provider has an upstream issuer.
func newIdentityProvider(ctx context.Context, cfg *config.Config, db *bun.DB) (identity.Provider, identity.SSO, error) {
	switch cfg.Auth.Provider {
	case config.ProviderSupabase:
		p, err := supabase.New(supabase.Options{
			URL:           cfg.Supabase.URL,
			AnonKey:       cfg.Supabase.AnonKey,
			SecureCookies: cfg.SecureCookies(),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create supabase provider: %w", err)
		}
		return p, nil, nil

	case config.ProviderLocal:
		p, err := local.New(local.Options{
			Users:           repository.NewBunUserRepository(db),
			Sessions:        repository.NewBunSessionRepository(db),
			SessionDuration: cfg.Auth.SessionDuration,
			SecureCookies:   cfg.SecureCookies(),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create local provider: %w", err)
		}
		if !cfg.SSO.Enabled() {
			return p, nil, nil
		}
		sso, err := local.NewSSO(ctx, cfg.SSO, p)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to discover SSO issuer: %w", err)
		}
		return p, sso, nil
	}
	return nil, nil, fmt.Errorf("unknown identity provider %q", cfg.Auth.Provider)
}

func healthHandler(db *bun.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			logging.Ctx(r.Context()).Error().Err(err).Msg("health check failed")
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}
}

func purgeExpiredSessions(ctx context.Context, sessions repository.SessionRepository) {
	ticker := time.NewTicker(sessionCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := sessions.DeleteExpired(ctx)
			if err != nil {
				logging.Warn().Err(err).Msg("failed to purge expired sessions")
				continue
			}
			if n > 0 {
				logging.Debug().Int64("count", n).Msg("purged expired sessions")
			}
		}
	}
}

func init() {
	serveCmd.Flags().BoolVar(&migrateOnStart, "migrate", false, "Apply pending migrations before serving")
	rootCmd.AddCommand(serveCmd)
}
