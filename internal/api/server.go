// Package api serves the run control API: start, inspect, acknowledge and
// cancel reconciliation runs, plus the SSE event stream.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/listenupapp/takeout-fixer/internal/http/response"
	"github.com/listenupapp/takeout-fixer/internal/ratelimit"
	"github.com/listenupapp/takeout-fixer/internal/service"
	"github.com/listenupapp/takeout-fixer/internal/sse"
	"github.com/listenupapp/takeout-fixer/internal/store"
)

// Version is reported in the OpenAPI document.
const Version = "1.0.0"

// ServerOptions configures the HTTP surface.
type ServerOptions struct {
	AllowedOrigins []string
	// MutationsPerMinute bounds POST requests per client IP.
	MutationsPerMinute int
	MutationBurst      int
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	runs       *service.RunService
	store      *store.Store
	sseManager *sse.Manager
	sseHandler *sse.Handler
	limiter    *ratelimit.KeyedRateLimiter
	router     *chi.Mux
	api        huma.API
	logger     *slog.Logger
}

// NewServer creates a new HTTP server with all routes configured.
func NewServer(runs *service.RunService, st *store.Store, sseManager *sse.Manager, opts ServerOptions, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.MutationsPerMinute <= 0 {
		opts.MutationsPerMinute = 60
	}
	if opts.MutationBurst <= 0 {
		opts.MutationBurst = 10
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}

	s := &Server{
		runs:       runs,
		store:      st,
		sseManager: sseManager,
		sseHandler: sse.NewHandler(sseManager, logger),
		limiter:    ratelimit.New(ratelimit.PerInterval(opts.MutationsPerMinute, time.Minute), opts.MutationBurst, 10*time.Minute),
		router:     chi.NewRouter(),
		logger:     logger,
	}

	s.setupMiddleware(opts)

	config := huma.DefaultConfig("takeout-fixer API", Version)
	config.Info.Description = "Reconciles Google Takeout photo exports with their JSON sidecars."
	s.api = humachi.New(s.router, config)
	RegisterErrorHandler()

	s.registerHealthRoutes()
	s.registerRunRoutes()
	s.router.Get("/api/v1/events", s.sseHandler.ServeHTTP)
	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.NotFound(w, "no route for "+r.Method+" "+r.URL.Path, s.logger)
	})

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close releases background resources.
func (s *Server) Close() {
	s.limiter.Stop()
}

func (s *Server) setupMiddleware(opts ServerOptions) {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Last-Event-ID"},
		MaxAge:         300,
	}))
	s.router.Use(rateLimitMutations(s.limiter, s.logger))
}
