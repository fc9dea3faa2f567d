package api

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nuance-hq/cortex/internal/api/handlers"
	mw "github.com/nuance-hq/cortex/internal/api/middleware"
	"github.com/nuance-hq/cortex/internal/buildconfig"
	"github.com/nuance-hq/cortex/internal/config"
	"github.com/nuance-hq/cortex/internal/domain"
	"github.com/nuance-hq/cortex/internal/service"
	"github.com/nuance-hq/cortex/internal/store"
	"go.uber.org/zap"
)

// App holds the router and background services for lifecycle management.
type App struct {
	Router       *chi.Mux
	Decay        *service.DecayService
	startTime    time.Time
	requestCount atomic.Int64
	errorCount   atomic.Int64
}

func NewApp(db *pgxpool.Pool, logger *zap.Logger) *App {
	// Stores
	userStore := store.NewUserStore(db)
	knowledgeStore := store.NewKnowledgeStore(db)
	turnLogStore := store.NewTurnLogStore(db)
	entityStore := store.NewEntityStore(db)

	// Services
	contractSvc := service.NewContractService(logger)
	writebackSvc := service.NewWritebackService(knowledgeStore, logger)
	applierSvc := service.NewApplierService(entityStore, logger)
	provenanceSvc := service.NewProvenanceService(turnLogStore, logger)
	turnSvc := service.NewTurnService(contractSvc, writebackSvc, applierSvc, provenanceSvc, logger)
	knowledgeSvc := service.NewKnowledgeService(knowledgeStore, logger)
	decaySvc := service.NewDecayService(knowledgeStore, config.RetentionDays(), logger)
	decaySvc.SetInterval(time.Duration(config.DecaySweepMinutes()) * time.Minute)

	// Handlers
	userHandler := handlers.NewUserHandler(userStore)
	turnHandler := handlers.NewTurnHandler(turnSvc)
	knowledgeHandler := handlers.NewKnowledgeHandler(knowledgeSvc)
	auditHandler := handlers.NewAuditHandler(provenanceSvc)
	cognitiveHandler := handlers.NewCognitiveHandler(decaySvc)

	r := chi.NewRouter()

	app := &App{
		Router:    r,
		Decay:     decaySvc,
		startTime: time.Now(),
	}

	// Metrics collector for middleware
	metricsCollector := mw.NewMetricsCollector(&app.requestCount, &app.errorCount)

	// Global middleware (order matters)
	r.Use(mw.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metricsCollector.Middleware)
	r.Use(mw.Logging(logger))
	r.Use(middleware.Recoverer)
	r.Use(mw.RateLimit(config.RateLimitRPS(), config.RateLimitBurst()))

	// Health (no auth)
	r.Get("/health", healthHandler(db))

	// Metrics (no auth)
	r.Get("/metrics", app.metricsHandler())

	// User creation (no auth, bootstrap endpoint)
	r.Post("/v1/users", userHandler.Create)

	// Authenticated routes
	r.Route("/v1", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(userStore))

		// Turn ingestion
		r.Route("/turns", func(r chi.Router) {
			r.Post("/", turnHandler.Ingest)
			r.Post("/aborted", turnHandler.Aborted)
		})

		// Knowledge ledger
		r.Route("/knowledge", func(r chi.Router) {
			r.Get("/", knowledgeHandler.Query)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", knowledgeHandler.GetByID)
				r.Post("/expire", knowledgeHandler.Expire)
				r.Delete("/", knowledgeHandler.Delete)
			})
		})

		// Turn audit trail
		r.Route("/audit", func(r chi.Router) {
			r.Get("/", auditHandler.Query)
			r.Get("/stats", auditHandler.Stats)
		})

		// Cognitive operations
		r.Post("/cognitive/decay", cognitiveHandler.TriggerDecay)
	})

	return app
}

// NewRouter returns just the chi.Mux for callers that manage no workers.
func NewRouter(db *pgxpool.Pool, logger *zap.Logger) *chi.Mux {
	return NewApp(db, logger).Router
}

func healthHandler(db *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(r.Context()); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "error", "error": err.Error()})
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
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
			"build":      buildconfig.VersionInfo(),
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(response)
	}
}

// Ensure stores satisfy interfaces at compile time.
var (
	_ domain.UserStore      = (*store.UserStore)(nil)
	_ domain.KnowledgeStore = (*store.KnowledgeStore)(nil)
	_ domain.TurnLogStore   = (*store.TurnLogStore)(nil)
	_ domain.EntityStore    = (*store.EntityStore)(nil)
)
