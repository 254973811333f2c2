// Package rest exposes the application over a JSON HTTP API.
package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"north-backend/application/decomposition"
	"north-backend/application/limits"
	"north-backend/application/refinement"
	"north-backend/application/research"
	"north-backend/application/trees"
	"north-backend/interfaces/http/rest/handlers"
	"north-backend/interfaces/http/rest/middleware"
	"north-backend/pkg/auth"
	apperrors "north-backend/pkg/errors"
	"north-backend/pkg/observability"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services are the application services the API calls into.
type Services struct {
	Trees         *trees.Service
	Decomposition *decomposition.Engine
	Refinement    *refinement.Engine
	Research      *research.Service
	Limits        *limits.Service
}

// RouterConfig holds transport settings.
type RouterConfig struct {
	CORSOrigins []string
	// RequestTimeout bounds non-model routes; zero disables it.
	RequestTimeout time.Duration
}

// Router creates and configures the HTTP router
type Router struct {
	services Services
	auth     middleware.AuthConfig
	store    Pinger
	metrics  *observability.Metrics
	errors   *apperrors.ErrorHandler
	cfg      RouterConfig
	logger   *zap.Logger
}

// NewRouter creates a new router instance
func NewRouter(
	services Services,
	authCfg middleware.AuthConfig,
	store Pinger,
	metrics *observability.Metrics,
	errs *apperrors.ErrorHandler,
	cfg RouterConfig,
	logger *zap.Logger,
) *Router {
	authCfg.Errors = errs
	authCfg.Logger = logger
	return &Router{
		services: services,
		auth:     authCfg,
		store:    store,
		metrics:  metrics,
		errors:   errs,
		cfg:      cfg,
		logger:   logger,
	}
}

// Setup configures all routes and middleware
func (rt *Router) Setup() *chi.Mux {
	router := chi.NewRouter()

	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(middleware.Logger(rt.logger))
	router.Use(rt.errors.Middleware)
	router.Use(middleware.Metrics(rt.metrics))
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   rt.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	router.Get("/health", rt.healthCheck)
	router.Get("/ready", rt.readinessCheck)
	if rt.metrics != nil {
		router.Handle("/metrics", rt.metrics.Handler())
	}

	treeHandler := handlers.NewTreeHandler(rt.services.Trees, rt.errors, rt.logger)
	proposalHandler := handlers.NewProposalHandler(rt.services.Decomposition, rt.services.Refinement, rt.errors, rt.logger)
	researchHandler := handlers.NewResearchHandler(rt.services.Research, rt.errors, rt.logger)
	limitsHandler := handlers.NewLimitsHandler(rt.services.Limits, rt.errors, rt.logger)
	quota := func(action limits.Action) func(http.Handler) http.Handler {
		return middleware.Quota(rt.services.Limits, action, rt.errors)
	}

	router.Group(func(r chi.Router) {
		r.Use(middleware.Authenticate(rt.auth))

		// Model-backed routes run without a request timeout; the
		// completion client enforces its own.
		r.With(quota(limits.ActionDecompose)).Post("/decompose", proposalHandler.Decompose)
		r.With(quota(limits.ActionRefine)).Post("/suggest-refine", proposalHandler.SuggestRefine)
		r.With(quota(limits.ActionResearch)).Post("/research/execute", researchHandler.Execute)
		r.With(quota(limits.ActionResearch)).Post("/research/auto", researchHandler.Auto)
		r.Post("/research/candidates", researchHandler.Candidates)

		r.Group(func(r chi.Router) {
			if rt.cfg.RequestTimeout > 0 {
				r.Use(chimiddleware.Timeout(rt.cfg.RequestTimeout))
			}

			r.Route("/trees", func(r chi.Router) {
				r.Get("/", treeHandler.ListTrees)
				r.Post("/", treeHandler.CreateTree)
				r.Delete("/{id}", treeHandler.DeleteTree)
				r.Put("/{id}/active", treeHandler.ActivateTree)
			})
			r.Get("/tree", treeHandler.GetActiveTree)
			r.Post("/tree", treeHandler.SaveTree)
			r.Post("/goal", treeHandler.UpdateGoal)
			r.Put("/element", treeHandler.UpdateElement)
			r.Delete("/element", treeHandler.DeleteElement)
			r.Post("/add-element", treeHandler.AddElement)
			r.Post("/promote", treeHandler.Promote)

			r.Post("/apply-decomposition", proposalHandler.ApplyDecomposition)
			r.Post("/apply-refine", proposalHandler.ApplyRefine)

			r.Delete("/research", researchHandler.Delete)
			r.Post("/research/manual", researchHandler.Manual)

			r.Get("/user/limits", limitsHandler.Usage)
		})
	})

	return router
}

// NewAuthConfig builds the authentication settings from raw config values.
// With neither a secret nor a public key only emulator mode can
// authenticate.
func NewAuthConfig(secret, publicKey, issuer string, audience []string, emulator bool, perMinute int) (middleware.AuthConfig, error) {
	cfg := middleware.AuthConfig{Emulator: emulator}
	if perMinute > 0 {
		cfg.Limiter = auth.NewPerMinuteLimiter(perMinute)
	}

	jwtCfg := auth.JWTConfig{Issuer: issuer, Audience: audience}
	switch {
	case publicKey != "":
		jwtCfg.SigningMethod = "RS256"
		jwtCfg.PublicKey = publicKey
	case secret != "":
		jwtCfg.SigningMethod = "HS256"
		jwtCfg.SecretKey = secret
	default:
		return cfg, nil
	}
	validator, err := auth.NewJWTValidator(jwtCfg)
	if err != nil {
		return cfg, err
	}
	cfg.Validator = validator
	return cfg, nil
}

// healthCheck handles health check requests
func (rt *Router) healthCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy"}`))
}

// readinessCheck reports 503 while the store is unreachable.
func (rt *Router) readinessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if rt.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := rt.store.Ping(ctx); err != nil {
			rt.logger.Warn("Readiness check failed", zap.Error(err))
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ready"}`))
}
