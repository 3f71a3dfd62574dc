package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"fintrack/internal/log"
	"fintrack/internal/middleware/ratelimit"
	"fintrack/internal/middleware/security"
	"fintrack/internal/middleware/trace"
	"fintrack/internal/services"
)

// Pinger reports whether a dependency is usable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services are the application services the handlers call into.
type Services struct {
	Transactions *services.TransactionService
	Taxonomy     *services.TaxonomyService
	Goals        *services.GoalService
	Users        *services.UserService
	// Store is pinged by /readyz; nil means always ready.
	Store Pinger
}

type Options struct {
	Addr           string
	AllowedOrigins []string
	RateLimit      ratelimit.Config
	TrustedProxies []string
	Logger         *log.Logger
}

type Server struct {
	http.Server

	svc       Services
	validator *Validator
	limiter   *ratelimit.Limiter
	tracer    *trace.Middleware
	detector  *security.Detector
	logger    *log.Logger
	started   time.Time

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(opts Options, svc Services) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	detector := security.NewDetector()
	for _, cidr := range opts.TrustedProxies {
		if err := detector.AddTrustedProxy(cidr); err != nil {
			logger.Warn("Ignoring trusted proxy", log.FieldError, err)
		}
	}

	s := &Server{
		svc:       svc,
		validator: NewValidator(),
		limiter:   ratelimit.New(opts.RateLimit),
		tracer:    trace.NewMiddleware(logger, detector.ExtractClientIP),
		detector:  detector,
		logger:    logger,
		started:   time.Now(),
	}

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           s.routes(opts.AllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	return s
}

func (s *Server) routes(origins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(s.tracer.Middleware)
	r.Use(security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware)
	r.Use(s.detector.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", trace.HeaderRequestID},
		ExposedHeaders:   []string{trace.HeaderRequestID, "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusNotFound, "route not found").Write(w)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusMethodNotAllowed, "method not allowed").Write(w)
	})

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)

	r.Group(func(r chi.Router) {
		r.Use(s.limiter.Middleware(s.detector.ExtractClientIP))

		r.Post("/categorize", s.handleCategorize)
		r.Get("/categories", s.handleListCategories)

		r.Route("/categorization-rules", func(r chi.Router) {
			r.Get("/", s.handleGetRules)
			r.Put("/", s.handleReplaceRules)
			r.Post("/reload", s.handleReloadRules)
		})

		r.Route("/transactions", func(r chi.Router) {
			r.Post("/", s.handleCreateTransaction)
			r.Get("/", s.handleListTransactions)
			r.Post("/recategorize", s.handleRecategorize)
			r.Get("/{id}", s.handleGetTransaction)
		})

		r.Route("/savings-goals", func(r chi.Router) {
			r.Post("/", s.handleCreateGoal)
			r.Get("/", s.handleListGoals)
			r.Get("/{id}", s.handleGetGoal)
			r.Patch("/{id}", s.handleUpdateGoalProgress)
		})

		r.Route("/users", func(r chi.Router) {
			r.Post("/", s.handleCreateUser)
			r.Get("/", s.handleListUsers)
		})
	})

	return r
}

// Metrics returns the request counters collected by the trace middleware.
func (s *Server) Metrics() trace.Metrics {
	return s.tracer.GetMetrics()
}

// Shutdown gracefully shuts down the server and the rate limiter cleanup.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
