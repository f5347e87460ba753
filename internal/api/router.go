package api

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Harshitk-cp/lqe/internal/api/handlers"
	mw "github.com/Harshitk-cp/lqe/internal/api/middleware"
	"github.com/Harshitk-cp/lqe/internal/buildconfig"
	"github.com/Harshitk-cp/lqe/internal/domain"
	"github.com/Harshitk-cp/lqe/internal/metrics"
	"github.com/Harshitk-cp/lqe/internal/service"
	"github.com/Harshitk-cp/lqe/internal/store"
	"github.com/Harshitk-cp/lqe/internal/store/sqlite"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators the HTTP app is built from.
type Deps struct {
	Store   Pinger
	Tenants domain.TenantStore
	Signals domain.SignalStore
	Metrics *metrics.Metrics
	Logger  *zap.Logger

	RateLimitRPS           float64
	RateLimitBurst         int
	MaxBatchObservations   int
	RejectNegativeVariance bool
	SignalRetention        time.Duration
	ExpirerInterval        time.Duration
}

// App holds the router and background services for lifecycle management.
type App struct {
	Router       *chi.Mux
	Expirer      *service.ExpirerService
	startTime    time.Time
	requestCount atomic.Int64
	errorCount   atomic.Int64
	stopCh       chan struct{}
	stopOnce     sync.Once
}

func NewApp(d Deps) *App {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	// Services
	signalSvc := service.NewSignalService(d.Signals, d.Metrics, logger)
	signalSvc.RejectNegativeVariance = d.RejectNegativeVariance
	if d.MaxBatchObservations > 0 {
		signalSvc.MaxBatch = d.MaxBatchObservations
	}

	expirerSvc := service.NewExpirerService(d.Signals, d.Metrics, logger)
	expirerSvc.SetRetention(d.SignalRetention)
	if d.ExpirerInterval > 0 {
		expirerSvc.SetInterval(d.ExpirerInterval)
	}

	// Handlers
	tenantHandler := handlers.NewTenantHandler(d.Tenants)
	signalHandler := handlers.NewSignalHandler(signalSvc)

	r := chi.NewRouter()

	app := &App{
		Router:    r,
		Expirer:   expirerSvc,
		startTime: time.Now(),
		stopCh:    make(chan struct{}),
	}

	metricsCollector := mw.NewMetricsCollector(&app.requestCount, &app.errorCount, d.Metrics)

	// Global middleware (order matters)
	r.Use(mw.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metricsCollector.Middleware)
	r.Use(mw.Logging(logger))
	r.Use(middleware.Recoverer)
	if d.RateLimitRPS > 0 {
		r.Use(mw.RateLimit(d.RateLimitRPS, d.RateLimitBurst, app.stopCh))
	}

	// Health and metrics (no auth)
	r.Get("/health", healthHandler(d.Store))
	r.Get("/metrics", app.metricsHandler())
	if d.Metrics != nil {
		r.Handle("/metrics/prometheus", d.Metrics.Handler())
	}

	// Tenant creation (no auth, bootstrap endpoint)
	r.Post("/v1/tenants", tenantHandler.Create)

	// Authenticated routes
	r.Route("/v1", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(d.Tenants))

		r.Post("/smooth", signalHandler.Smooth)

		r.Route("/signals", func(r chi.Router) {
			r.Post("/", signalHandler.Create)
			r.Get("/", signalHandler.List)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", signalHandler.GetByID)
				r.Delete("/", signalHandler.Delete)
				r.Post("/observations", signalHandler.Observe)
				r.Put("/belief", signalHandler.Reset)
				r.Post("/preview/{op}", signalHandler.Preview)
			})
		})
	})

	return app
}

// Close stops the background goroutines owned by the router.
func (app *App) Close() {
	app.stopOnce.Do(func() { close(app.stopCh) })
}

type healthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	buildconfig.Info
}

func healthHandler(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "ok", Info: buildconfig.Get()}
		status := http.StatusOK
		if db != nil {
			if err := db.Ping(r.Context()); err != nil {
				resp.Status = "error"
				resp.Error = err.Error()
				status = http.StatusServiceUnavailable
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(resp)
	}
}

func (app *App) metricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)

		uptime := time.Since(app.startTime)

		response := map[string]any{
			"uptime_seconds": uptime.Seconds(),
			"uptime_human":   uptime.Round(time.Second).String(),
			"request_count":  app.requestCount.Load(),
			"error_count":    app.errorCount.Load(),
			"goroutines":     runtime.NumGoroutine(),
			"memory": map[string]any{
				"alloc_mb":       float64(memStats.Alloc) / 1024 / 1024,
				"total_alloc_mb": float64(memStats.TotalAlloc) / 1024 / 1024,
				"sys_mb":         float64(memStats.Sys) / 1024 / 1024,
				"num_gc":         memStats.NumGC,
			},
			"go_version": runtime.Version(),
			"version":    buildconfig.Version(),
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(response)
	}
}

// Ensure stores satisfy interfaces at compile time.
var (
	_ domain.TenantStore = (*store.TenantStore)(nil)
	_ domain.SignalStore = (*store.SignalStore)(nil)
	_ domain.TenantStore = (*sqlite.TenantStore)(nil)
	_ domain.SignalStore = (*sqlite.SignalStore)(nil)
	_ Pinger             = (*pgxpool.Pool)(nil)
	_ Pinger             = (*sqlite.Store)(nil)
)
