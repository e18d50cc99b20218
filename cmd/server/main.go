package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/lauraedgell33/freightmatch/config"
	"github.com/lauraedgell33/freightmatch/internal/handler"
	"github.com/lauraedgell33/freightmatch/internal/middleware"
	"github.com/lauraedgell33/freightmatch/internal/repository"
	"github.com/lauraedgell33/freightmatch/internal/service"
	"github.com/lauraedgell33/freightmatch/pkg/cache"
	"github.com/lauraedgell33/freightmatch/pkg/db"
)

func main() {
	// ── Load configuration ──────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx := context.Background()

	// ── Connect to PostgreSQL ───────────────────────────
	pgPool, err := db.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		log.Fatalf("failed to connect to PostgreSQL: %v", err)
	}
	defer pgPool.Close()
	log.Println("✓ PostgreSQL connected")

	// ── Connect to Redis ────────────────────────────────
	redisClient, err := cache.NewRedisClient(ctx, cache.RedisOptions{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	if err != nil {
		log.Fatalf("failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("✓ Redis connected")

	redisCache := cache.NewRedisCache(redisClient)

	// ── Initialize layers ───────────────────────────────
	matchRepo := repository.NewMatchRepository(pgPool, redisCache)
	companyRepo := repository.NewCompanyRepository(pgPool)
	ruleRepo := repository.NewRuleRepository(pgPool)
	historyRepo := repository.NewPriceHistoryRepository(pgPool, redisClient)
	quoteRepo := repository.NewQuoteRepository(pgPool)

	learner := service.NewWeightLearner(matchRepo, redisCache, cfg.Engine.WeightsCacheTTL, cfg.Engine.MinAcceptedToLearn)
	matchingSvc := service.NewMatchingService(
		matchRepo, matchRepo, companyRepo, learner, redisCache, redisCache,
		cfg.Engine.RecalibrateEvery, cfg.Engine.BatchRequestCap, cfg.Engine.BatchReportThreshold,
	)
	pricingSvc := service.NewPricingService(
		historyRepo, historyRepo, ruleRepo, quoteRepo, redisCache,
		cfg.Engine.StatsWindowDays, cfg.Engine.StatsCacheTTL,
		cfg.Engine.DemandWindowDays, cfg.Engine.QuoteValidity,
	)

	matchHandler := handler.NewMatchHandler(matchingSvc)
	pricingHandler := handler.NewPricingHandler(pricingSvc)
	ruleHandler := handler.NewRuleHandler(ruleRepo)

	// ── Setup router ────────────────────────────────────
	router := mux.NewRouter()

	// Health check endpoint.
	router.HandleFunc("/health", healthHandler(pgPool, redisClient)).Methods(http.MethodGet)

	// API v1 routes.
	api := router.PathPrefix("/api/v1").Subrouter()
	// Matching and feedback
	api.HandleFunc("/matches/batch", matchHandler.Batch).Methods(http.MethodPost)
	api.HandleFunc("/matches/{request_id}", matchHandler.FindMatches).Methods(http.MethodPost)
	api.HandleFunc("/matches/{match_id}/response", matchHandler.Respond).Methods(http.MethodPost)
	// Pricing
	api.HandleFunc("/quotes", pricingHandler.Quote).Methods(http.MethodPost)
	// Rule authoring
	api.HandleFunc("/rules", ruleHandler.Create).Methods(http.MethodPost)
	api.HandleFunc("/rules", ruleHandler.List).Methods(http.MethodGet)
	api.HandleFunc("/rules/{id}", ruleHandler.Get).Methods(http.MethodGet)
	api.HandleFunc("/rules/{id}", ruleHandler.Update).Methods(http.MethodPut)
	api.HandleFunc("/rules/{id}", ruleHandler.Delete).Methods(http.MethodDelete)

	// Middleware chain: recovery outermost, then CORS, request IDs, logging.
	root := middleware.Recoverer(middleware.CORS(middleware.RequestID(middleware.RequestLogger(router))))

	// ── Start HTTP server ───────────────────────────────
	srv := &http.Server{
		Addr:         cfg.Server.ServerAddr(),
		Handler:      root,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start in a goroutine so we can listen for shutdown signals.
	go func() {
		log.Printf("🚀 Server listening on %s", cfg.Server.ServerAddr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// ── Graceful shutdown ───────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("⏳ Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("server forced to shutdown: %v", err)
	}

	log.Println("✅ Server gracefully stopped")
}

// HealthResponse represents the /health endpoint response.
type HealthResponse struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services"`
}

// healthHandler returns an HTTP handler that checks PG and Redis connectivity.
func healthHandler(pgPool *pgxpool.Pool, redisClient *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{
			Status:   "ok",
			Services: make(map[string]string),
		}

		if err := db.HealthCheck(r.Context(), pgPool); err != nil {
			resp.Status = "degraded"
			resp.Services["postgres"] = "unhealthy: " + err.Error()
		} else {
			resp.Services["postgres"] = "healthy"
		}

		if err := cache.HealthCheck(r.Context(), redisClient); err != nil {
			resp.Status = "degraded"
			resp.Services["redis"] = "unhealthy: " + err.Error()
		} else {
			resp.Services["redis"] = "healthy"
		}

		w.Header().Set("Content-Type", "application/json")
		if resp.Status != "ok" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(resp)
	}
}
