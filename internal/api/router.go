// Package api exposes the planner over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"nutrition-planner/internal/catalog"
	"nutrition-planner/internal/metrics"
	"nutrition-planner/internal/planner"
	"nutrition-planner/internal/storage"
)

// Planner is the part of planner.Planner the HTTP layer needs.
type Planner interface {
	Recommend(ctx context.Context, req planner.Request) (*planner.Recommendation, error)
	Select(ctx context.Context, sel planner.Selection) (*planner.SelectionResult, error)
	Retrain(ctx context.Context, trigger string) (storage.Manifest, error)
	Reload(ctx context.Context) error
	Health() planner.Health
	DefaultPlan() catalog.PlanRecord
}

// RunLister lists recent training runs for the admin routes.
type RunLister interface {
	Recent(ctx context.Context, limit int) ([]metrics.TrainingRun, error)
}

// Options configures the router. Zero values disable the optional parts.
type Options struct {
	AllowedOrigins []string

	RateLimitDisabled bool
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// ModelDir is measured for the health report.
	ModelDir string

	// AdminSecret enables /admin when set.
	AdminSecret string
	Runs        RunLister

	// TelegramWebhook is mounted at /telegram/webhook when set.
	TelegramWebhook http.Handler
}

// Server holds the HTTP handlers.
type Server struct {
	planner Planner
	opts    Options
	logger  zerolog.Logger
}

// NewServer creates a Server.
func NewServer(p Planner, opts Options, logger zerolog.Logger) *Server {
	return &Server{planner: p, opts: opts, logger: logger}
}

// Router builds the chi routing tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(requestID)
	r.Use(chimiddleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(prometheusMetrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         86400,
	}))

	r.Route("/plan", func(r chi.Router) {
		r.Use(s.rateLimit())
		r.Post("/", s.handlePlan)
	})
	r.Route("/selection", func(r chi.Router) {
		r.Use(s.rateLimit())
		r.Post("/", s.handleSelection)
	})

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	if s.opts.AdminSecret != "" {
		r.Route("/admin", func(r chi.Router) {
			r.Use(adminAuth(s.opts.AdminSecret))
			r.Post("/retrain", s.handleRetrain)
			r.Post("/reload", s.handleReload)
			r.Get("/runs", s.handleRuns)
		})
	}

	if s.opts.TelegramWebhook != nil {
		r.Method(http.MethodPost, "/telegram/webhook", s.opts.TelegramWebhook)
	}

	return r
}

func (s *Server) rateLimit() func(http.Handler) http.Handler {
	if s.opts.RateLimitDisabled || s.opts.RateLimitRequests < 1 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.LimitByIP(s.opts.RateLimitRequests, s.opts.RateLimitWindow)
}
