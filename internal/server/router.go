package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterOptions controls the construction of the HTTP router. The zero
// value is valid; sensible defaults are applied where fields are not set.
type RouterOptions struct {
	Handlers      *AccessHandlers
	CORSOptions   *cors.Options
	Middleware    []func(http.Handler) http.Handler
	HealthHandler http.HandlerFunc
	ExtraRoutes   func(chi.Router)
}

// DefaultCORSOptions returns the shared development CORS policy.
func DefaultCORSOptions() cors.Options {
	return cors.Options{
		AllowedOrigins: []string{
			"http://localhost:5173",
			"http://127.0.0.1:5173",
		},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{
			"Content-Type",
			"Authorization",
			"X-Actor-ID",
		},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}
}

func defaultHealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// NewRouter assembles a chi.Router with shared middleware, CORS policy, and
// the access-control handlers mounted. The router can be tailored via
// RouterOptions for CLI usage, tests, or other entrypoints.
func NewRouter(opts RouterOptions) chi.Router {
	r := chi.NewRouter()

	// Baseline middleware shared across entrypoints.
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	corsCfg := DefaultCORSOptions()
	if opts.CORSOptions != nil {
		corsCfg = *opts.CORSOptions
	}
	r.Use(cors.Handler(corsCfg))

	// Apply custom middleware passed from the caller.
	for _, mw := range opts.Middleware {
		if mw != nil {
			r.Use(mw)
		}
	}

	if opts.Handlers != nil {
		r.Route("/api/access", func(r chi.Router) {
			r.Post("/check", opts.Handlers.Check)
			r.Post("/grants", opts.Handlers.CreateGrant)
			r.Post("/revocations", opts.Handlers.RevokeGrant)
			r.Get("/principals/{principalID}/permissions", opts.Handlers.ListPermissions)
		})
		r.Route("/admin", func(r chi.Router) {
			r.Post("/cache/invalidate/{principalID}", opts.Handlers.InvalidateCache)
			r.Post("/sweep", opts.Handlers.Sweep)
		})
	}

	healthHandler := opts.HealthHandler
	if healthHandler == nil && opts.Handlers != nil {
		healthHandler = opts.Handlers.Health
	}
	if healthHandler == nil {
		healthHandler = defaultHealthHandler
	}
	r.Get("/health", healthHandler)

	if opts.ExtraRoutes != nil {
		opts.ExtraRoutes(r)
	}

	return r
}
