// Package app wires every adapter and handler into the two runtime modes
// the service supports: the HTTP API and the enrichment worker pool.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/wisbric/feedbackapi/internal/admin"
	"github.com/wisbric/feedbackapi/internal/analytics"
	"github.com/wisbric/feedbackapi/internal/audit"
	"github.com/wisbric/feedbackapi/internal/auth"
	"github.com/wisbric/feedbackapi/internal/cache"
	"github.com/wisbric/feedbackapi/internal/config"
	"github.com/wisbric/feedbackapi/internal/enrich"
	"github.com/wisbric/feedbackapi/internal/export"
	"github.com/wisbric/feedbackapi/internal/httpserver"
	"github.com/wisbric/feedbackapi/internal/ingest"
	"github.com/wisbric/feedbackapi/internal/platform"
	"github.com/wisbric/feedbackapi/internal/qa"
	"github.com/wisbric/feedbackapi/internal/queue"
	"github.com/wisbric/feedbackapi/internal/store"
	"github.com/wisbric/feedbackapi/internal/telemetry"
	"github.com/wisbric/feedbackapi/internal/vectorstore"
)

// Run is the main application entry point. It reads config, connects to
// infrastructure, and starts the appropriate mode (api or worker).
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting feedbackapi", "mode", cfg.Mode, "listen", cfg.ListenAddr())

	db, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL, cfg.DBPoolSize, cfg.DBPoolOverflow)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error("closing redis", "error", err)
		}
	}()

	if err := platform.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("migrations applied")

	metricsReg := telemetry.NewMetricsRegistry(telemetry.All()...)

	switch cfg.Mode {
	case "api":
		return runAPI(ctx, cfg, logger, db, rdb, metricsReg)
	case "worker":
		return runWorker(ctx, cfg, logger, db, rdb)
	default:
		return fmt.Errorf("unknown mode: %s", cfg.Mode)
	}
}

func runAPI(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client, metricsReg *prometheus.Registry) error {
	sessionSecret := cfg.SessionSecret
	if sessionSecret == "" {
		sessionSecret = auth.GenerateDevSecret()
		logger.Info("session: using auto-generated dev secret (set FEEDBACK_SESSION_SECRET in production)")
	}
	sessionMgr, err := auth.NewSessionManager(sessionSecret, cfg.SessionMaxAge)
	if err != nil {
		return fmt.Errorf("creating session manager: %w", err)
	}

	srv := httpserver.NewServer(cfg, logger, db, rdb, metricsReg, sessionMgr)

	st := store.New(db)
	c := cache.New(rdb, logger)
	q := queue.New(rdb, cfg.QueueVisibilityTimeout)
	vs := vectorstore.New(rdb, logger)
	auditWriter := audit.NewWriter(db, logger)

	engine := analytics.New(st, c)

	// --- Auth routes (public, pre-authentication) ---
	loginLimiter := auth.NewRateLimiter(rdb, cfg.LoginMaxAttempts, cfg.LoginAttemptWindow)
	loginHandler := auth.NewLoginHandler(sessionMgr, loginLimiter,
		auth.Credentials{Username: cfg.AdminUsername, PasswordHash: cfg.AdminPasswordHash},
		auth.Credentials{Username: cfg.ViewerUsername, PasswordHash: cfg.ViewerPasswordHash},
		cfg.SessionMaxAge, logger)
	srv.Router.Post("/admin/login", loginHandler.HandleAdminLogin)
	srv.Router.Post("/admin/viewer/login", loginHandler.HandleViewerLogin)
	srv.Router.Route("/admin/me", func(r chi.Router) {
		r.Use(srv.Auth)
		r.Get("/", loginHandler.HandleMe)
	})

	// --- Ingestion (C5) — no role gate beyond general rate limiting ---
	analyticsLimiter := httpserver.NewRateLimiter(rdb, cfg.RateLimitAnalytics, cfg.RateLimitBurst)
	uploadLimiter := httpserver.NewRateLimiter(rdb, cfg.RateLimitUpload, cfg.RateLimitBurst)

	ingestSvc := ingest.New(st, q, cfg.EnglishOnlyIngest)
	ingestHandler := ingest.NewHandler(ingestSvc, logger, uploadLimiter)
	srv.Router.Mount("/ingest", ingestHandler.Routes())
	srv.Router.Get("/api/feedback/{id}", ingestHandler.HandleGetFeedback)

	// --- Analytics (C7), canonical at /analytics with a compatibility
	// alias at /api for callers expecting the source system's older prefix.
	analyticsHandler := analytics.NewHandler(engine, logger)
	srv.Router.With(analyticsLimiter.Middleware).Mount("/analytics", analyticsHandler.Routes())
	srv.Router.With(analyticsLimiter.Middleware).Mount("/api", analyticsHandler.Routes())

	// --- Export (C8) ---
	exportHandler := export.NewHandler(st, logger)
	srv.Router.With(analyticsLimiter.Middleware).Mount("/api/export", exportHandler.Routes())

	// --- Chat / grounded QA facade (C11) ---
	memory := qa.NewMemory(rdb, logger)
	qaSvc := qa.New(engine, vs, st, memory)
	qaHandler := qa.NewHandler(qaSvc, logger)
	srv.Router.With(analyticsLimiter.Middleware).Mount("/chat", qaHandler.Routes())

	// --- Admin (C9), session-gated to the admin role ---
	adminLimiter := httpserver.NewRateLimiter(rdb, cfg.RateLimitAdmin, cfg.RateLimitBurst)
	adminSvc := admin.New(db, st, c, auditWriter)
	adminHandler := admin.NewHandler(adminSvc, st, auditWriter, logger)
	srv.Router.Route("/admin", func(r chi.Router) {
		r.Use(srv.Auth, auth.RequireAdmin, adminLimiter.Middleware)
		r.Mount("/", adminHandler.Routes())
	})

	auditHandler := audit.NewHandler(db, logger)
	srv.Router.Route("/admin/topic-audit", func(r chi.Router) {
		r.Use(srv.Auth, auth.RequireAdmin, adminLimiter.Middleware)
		r.Mount("/", auditHandler.Routes())
	})

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func runWorker(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client) error {
	logger.Info("worker started", "concurrency", cfg.WorkerConcurrency)

	st := store.New(db)
	q := queue.New(rdb, cfg.QueueVisibilityTimeout)
	vs := vectorstore.New(rdb, logger)
	c := cache.New(rdb, logger)

	stages := enrich.New(st, q, vs, c)
	notifier := enrich.NewDeadLetterNotifier(cfg.SlackWebhookURL, logger)
	pool := enrich.NewPool(stages, q, notifier, logger, cfg.WorkerConcurrency)

	return pool.Run(ctx)
}
