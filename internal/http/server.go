// Package http exposes cost recording, reports and settings as a JSON API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"costmanager/internal/core"
	"costmanager/internal/log"
	"costmanager/internal/metrics"
	"costmanager/internal/middleware/ratelimit"
	"costmanager/internal/middleware/security"
	"costmanager/internal/middleware/trace"
	"costmanager/internal/settings"
)

// CostRecorder stores a new entry.
type CostRecorder interface {
	Record(ctx context.Context, in core.CostInput) (core.CostEntry, error)
}

// CostLister returns every stored entry.
type CostLister interface {
	ListAll(ctx context.Context) ([]core.CostEntry, error)
}

// ReportGenerator builds the report views.
type ReportGenerator interface {
	Generate(ctx context.Context, year, month int, currency string) (core.Report, error)
	Yearly(ctx context.Context, year int, currency string) (core.YearSummary, error)
	ByCategory(ctx context.Context, year, month int, currency string) ([]core.CategoryTotal, error)
}

// SettingsManager reads and writes the rates source configuration.
type SettingsManager interface {
	Load(ctx context.Context) settings.Settings
	Resolve(ctx context.Context) string
	Save(ctx context.Context, s settings.Settings) error
}

// RatesSource tests candidate sources and drops the cached table.
type RatesSource interface {
	FetchFrom(ctx context.Context, url string) (core.RatesTable, error)
	ClearCache()
}

// Dependencies wires the API to its collaborators. Ready, Metrics and Logger
// may be left nil.
type Dependencies struct {
	Recorder           CostRecorder
	Costs              CostLister
	Reports            ReportGenerator
	Settings           SettingsManager
	Rates              RatesSource
	Ready              func(ctx context.Context) error
	Metrics            *metrics.Metrics
	Logger             *log.Logger
	RateLimitPerMinute int
}

type Server struct {
	http.Server
	limiter      *ratelimit.Limiter
	shutdownOnce sync.Once
}

// NewServer configures routes, returning a ready-to-run server.
func NewServer(addr string, deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = log.New(log.DefaultConfig())
	}
	limiter := ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: deps.RateLimitPerMinute})

	return &Server{
		Server: http.Server{
			Addr:              addr,
			Handler:           newRouter(deps, limiter),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		limiter: limiter,
	}
}

func newRouter(deps Dependencies, limiter *ratelimit.Limiter) http.Handler {
	h := &handlers{deps: deps, logger: deps.Logger.WithComponent(log.ComponentHTTP)}

	var recorder trace.Recorder
	if deps.Metrics != nil {
		recorder = deps.Metrics
	}
	tracer := trace.NewMiddleware(deps.Logger, security.ClientIP, recorder)
	limited := limiter.Middleware(security.ClientIP, h.rateLimited)

	r := chi.NewRouter()
	r.Use(tracer.Handler)
	r.Use(middleware.Recoverer)
	r.Use(security.Headers)

	r.Get("/healthz", h.health)
	r.Get("/readyz", h.ready)
	r.Handle("/metrics", deps.Metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.With(limited).Post("/costs", h.createCost)
		r.Get("/costs", h.listCosts)

		r.Get("/reports/monthly", h.monthlyReport)
		r.Get("/reports/yearly", h.yearlyReport)
		r.Get("/reports/categories", h.categoryReport)

		r.Get("/settings", h.getSettings)
		r.Put("/settings", h.putSettings)
		r.With(limited).Post("/settings/test", h.testSettings)

		r.Delete("/rates/cache", h.clearRatesCache)
	})

	return r
}

// Shutdown stops the rate limiter and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
