package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	redislib "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	postgresRepo "github.com/campusbill/ledger/internal/adapter/repository/postgres"
	"github.com/campusbill/ledger/internal/infrastructure/config"
	"github.com/campusbill/ledger/internal/infrastructure/logger"
	"github.com/campusbill/ledger/internal/infrastructure/metrics"
	"github.com/campusbill/ledger/internal/infrastructure/postgres"
	"github.com/campusbill/ledger/internal/infrastructure/redis"
	"github.com/campusbill/ledger/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	ctx := context.Background()

	if err := postgres.RunMigrations(log, cfg.DatabaseURL, cfg.MigrationsPath); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConns, cfg.DatabaseMinConns, cfg.DatabaseTimeout)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer pool.Close()
	log.Info().Msg("connected to postgres")

	redisClient, err := redis.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("connected to redis")

	m := metrics.New()

	// The server owns the operational surface and the periodic reconciler;
	// postings run through the embedding application and ledgerctl.
	txManager := postgresRepo.NewTxManager(pool, cfg.LockTimeout)
	accountRepo := postgresRepo.NewAccountRepository(pool)
	entryRepo := postgresRepo.NewEntryRepository(pool)
	snapshotRepo := postgresRepo.NewSnapshotRepository(pool)
	auditRepo := postgresRepo.NewAuditRepository(pool)

	reconciliationUC := usecase.NewReconciliationUseCase(txManager, accountRepo, entryRepo, snapshotRepo, auditRepo).
		WithMetrics(m)

	router := newRouter(pool, redisClient)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	go func() {
		log.Info().Str("port", cfg.HTTPPort).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	loopCtx, stopLoop := context.WithCancel(ctx)
	defer stopLoop()
	go reconcileLoop(loopCtx, log, reconciliationUC, cfg.ReconcileInterval, cfg.ReconcileTenants)
	go poolStatsLoop(loopCtx, pool, m)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server...")
	stopLoop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

// newRouter exposes the operational surface only. Postings go through the
// factories and the CLI; this process has no business HTTP API.
func newRouter(pool *pgxpool.Pool, redisClient *redislib.Client) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Get("/ready", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()

		if err := pool.Ping(ctx); err != nil {
			http.Error(w, `{"status":"postgres unavailable"}`, http.StatusServiceUnavailable)
			return
		}
		if err := redisClient.Ping(ctx).Err(); err != nil {
			http.Error(w, `{"status":"redis unavailable"}`, http.StatusServiceUnavailable)
			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}

// reconcileLoop periodically verifies snapshots against the entry log for the
// configured tenants. Discrepancies are logged and audited, never corrected.
func reconcileLoop(ctx context.Context, log zerolog.Logger, uc *usecase.ReconciliationUseCase, interval time.Duration, tenants []string) {
	if interval <= 0 || len(tenants) == 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		for _, tenant := range tenants {
			report, err := uc.ReconcileTenant(ctx, tenant)
			if err != nil {
				log.Error().Err(err).Str("tenant_id", tenant).Msg("reconciliation run failed")
				continue
			}

			event := log.Info()
			if len(report.Discrepancies) > 0 {
				event = log.Warn()
			}
			event.
				Str("tenant_id", tenant).
				Int("accounts", report.TotalAccounts).
				Int("balanced", report.Balanced).
				Int("discrepancies", len(report.Discrepancies)).
				Int("errors", len(report.Errors)).
				Msg("reconciliation run complete")
		}
	}
}

func poolStatsLoop(ctx context.Context, pool *pgxpool.Pool, m *metrics.Metrics) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.DBConnections.Set(float64(pool.Stat().TotalConns()))
		}
	}
}
