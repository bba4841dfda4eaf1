package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/photogrid/gallery/internal/authz"
	"github.com/photogrid/gallery/internal/gate"
	"github.com/photogrid/gallery/internal/identity"
	"github.com/photogrid/gallery/internal/logging"
	"github.com/photogrid/gallery/internal/storage"
	"github.com/photogrid/gallery/internal/telemetry"
)

// DefaultLoginRateLimit is the number of sign-in attempts per IP per minute.
const DefaultLoginRateLimit = 10

// RouterOptions controls the construction of the gallery HTTP router.
// Gate and Provider are required; the other fields enable optional surfaces.
type RouterOptions struct {
	Gate       *gate.Gate
	Authorizer *authz.Authorizer
	Provider   identity.Provider
	SSO        identity.SSO
	Comments   commentService
	Store      storage.Store
	Metrics    *telemetry.ServerMetrics

	// SiteURL is the public base URL used in password reset links.
	SiteURL string
	// LoginRateLimit caps sign-in attempts per IP per minute. Zero selects the default.
	LoginRateLimit int

	// Upstream receives every request no route matched. Nil answers 404.
	Upstream      http.Handler
	CORSOptions   *cors.Options
	HealthHandler http.HandlerFunc
	Middleware    []func(http.Handler) http.Handler
}

// DefaultCORSOptions returns the CORS policy for the comment API.
func DefaultCORSOptions() cors.Options {
	return cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://127.0.0.1:3000"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           300,
	}
}

func defaultHealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// NewRouter assembles the gallery router. Every request passes the gate
// before routing, so rewritten paths reach their canonical routes and
// handlers read the session from the request context.
func NewRouter(opts RouterOptions) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.RequestLogger)
	r.Use(middleware.Recoverer)
	if opts.Metrics != nil {
		r.Use(opts.Metrics.Middleware)
	}

	corsCfg := DefaultCORSOptions()
	if opts.CORSOptions != nil {
		corsCfg = *opts.CORSOptions
	}
	r.Use(cors.Handler(corsCfg))
	r.Use(ClientInfo)

	for _, mw := range opts.Middleware {
		if mw != nil {
			r.Use(mw)
		}
	}
	r.Use(opts.Gate.Middleware)

	// Unmatched paths and methods belong to the frontend.
	if opts.Upstream != nil {
		r.NotFound(opts.Upstream.ServeHTTP)
		r.MethodNotAllowed(opts.Upstream.ServeHTTP)
	}

	healthHandler := opts.HealthHandler
	if healthHandler == nil {
		healthHandler = defaultHealthHandler
	}
	r.Get("/health", healthHandler)

	mountAuthRoutes(r, opts)

	r.Route("/api", func(r chi.Router) {
		if opts.Authorizer != nil {
			r.Use(opts.Authorizer.Middleware)
		}
		r.Get("/auth/whoami", HandleWhoAmI())
		if opts.Comments != nil {
			MountCommentRoutes(r, opts.Comments)
		}
		store := opts.Store
		if store == nil {
			store = storage.Disabled{}
		}
		MountImageRoutes(r, store)
	})

	return r
}

func mountAuthRoutes(r chi.Router, opts RouterOptions) {
	if opts.Provider == nil {
		logging.Warn().Msg("no identity provider configured, skipping auth routes")
		return
	}

	limit := opts.LoginRateLimit
	if limit <= 0 {
		limit = DefaultLoginRateLimit
	}

	r.With(rateLimitByIP(limit)).Post("/login", HandleLogin(opts.Provider))
	r.Post("/logout", HandleLogout(opts.Provider))
	r.With(rateLimitByIP(limit)).Post("/forgot-password", HandleForgotPassword(opts.Provider, opts.SiteURL))
	r.Post("/reset-password", HandleResetPassword(opts.Provider))
	r.Post("/setup", HandleSetup(opts.Provider))
	r.Get("/auth/callback", HandleAuthCallback(opts.Provider, opts.SSO))

	if opts.SSO != nil {
		r.Method(http.MethodGet, "/login/sso", opts.SSO.LoginHandler())
	}
}

// rateLimitByIP allows limit requests per IP per minute.
func rateLimitByIP(limit int) func(http.Handler) http.Handler {
	return httprate.Limit(limit, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
			writeError(w, http.StatusTooManyRequests, "Too many attempts, try again later")
		}),
	)
}
