package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hszk-dev/imdb-watchlist/internal/api/handler"
	"github.com/hszk-dev/imdb-watchlist/internal/api/middleware"
	"github.com/hszk-dev/imdb-watchlist/internal/bootstrap"
	"github.com/hszk-dev/imdb-watchlist/internal/config"
	"github.com/hszk-dev/imdb-watchlist/internal/infrastructure/queue"
	"github.com/hszk-dev/imdb-watchlist/internal/jobqueue"
	"github.com/hszk-dev/imdb-watchlist/internal/logging"
	"github.com/hszk-dev/imdb-watchlist/internal/ratelimit"
	"github.com/hszk-dev/imdb-watchlist/internal/scheduler"
	"github.com/hszk-dev/imdb-watchlist/internal/usecase"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, logCloser, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer logCloser.Close()
	slog.SetDefault(logger)

	// Initialize infrastructure
	store, err := bootstrap.OpenStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	go store.RunSweeper(ctx, cfg.Storage.SweepInterval)

	users, err := bootstrap.OpenUsers(ctx, cfg)
	if err != nil {
		return err
	}
	defer users.Close()

	archiveClient, err := bootstrap.OpenArchive(ctx, cfg)
	if err != nil {
		return err
	}
	archive := bootstrap.SnapshotArchive(archiveClient)

	checks := map[string]handler.Pinger{"users": users}
	if archiveClient != nil {
		checks["minio"] = archiveClient
	}

	// Initialize services
	watchlistSvc, hashes := bootstrap.NewWatchlistService(cfg, store, users)

	var (
		trigger   usecase.RefreshTrigger
		jobs      *jobqueue.Queue
		canceller usecase.JobCanceller
		inspector handler.QueueInspector
	)
	switch cfg.Sync.Mode {
	case config.SyncModeAMQP:
		queueClient, err := queue.NewClient(ctx, queue.DefaultClientConfig(cfg.RabbitMQ.URL()))
		if err != nil {
			return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
		}
		defer queueClient.Close()
		logger.Info("connected to RabbitMQ, refreshes run on sync workers")
		trigger = usecase.NewPublishTrigger(queueClient)
		inspector = jobqueue.NewStoreReports(store)

	default:
		processor := usecase.NewSyncProcessor(watchlistSvc, users, archive)
		jobs = jobqueue.New(bootstrap.JobQueueConfig(cfg.Sync), processor.Process)
		jobs.Start(ctx)
		trigger = usecase.NewQueueTrigger(jobs)
		canceller = jobs
		inspector = jobs

		if cfg.Sync.Enabled {
			sched := scheduler.New(scheduler.Config{
				Interval:      cfg.Sync.Interval,
				InactiveAfter: cfg.Sync.InactiveAfter,
			}, users, jobs)
			go sched.Run(ctx)
		}
	}

	userSvc := usecase.NewUserService(users, watchlistSvc, trigger, canceller, archive)

	var limiter ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.Distributed {
			limiter = ratelimit.NewStoreWindow(store, cfg.RateLimit.MaxRequests, cfg.RateLimit.Window)
		} else {
			fw := ratelimit.NewFixedWindow(cfg.RateLimit.MaxRequests, cfg.RateLimit.Window)
			go fw.RunSweeper(ctx, max(cfg.RateLimit.Window, time.Minute))
			limiter = fw
		}
	}

	var redisInspector handler.RedisInspector
	if store.Redis != nil {
		redisInspector = store.Redis
	}

	// Initialize handlers
	addonHandler := handler.NewAddonHandler(watchlistSvc)
	watchlistHandler := handler.NewWatchlistHandler(watchlistSvc, userSvc, archive, cfg.MinIO.URLExpiry)
	opsHandler := handler.NewOpsHandler(store, userSvc, inspector, redisInspector, checks)
	adminHandler := handler.NewAdminHandler(userSvc, hashes)

	r := setupRouter(logger, cfg, limiter, addonHandler, watchlistHandler, opsHandler, adminHandler)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server",
			slog.Int("port", cfg.Server.Port),
			slog.String("sync_mode", cfg.Sync.Mode),
			slog.String("storage_primary", cfg.Storage.Primary),
			slog.String("manifest", cfg.Server.PublicURL+"/{userID}/manifest.json"),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("shutting down server", slog.String("signal", sig.String()))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	// Stop background sync after the server so in-flight config requests can still enqueue.
	cancel()
	if jobs != nil {
		queueCtx, queueCancel := context.WithTimeout(context.Background(), cfg.Sync.ShutdownTimeout)
		defer queueCancel()
		if err := jobs.Stop(queueCtx); err != nil {
			logger.Warn("job queue did not drain before timeout", slog.String("error", err.Error()))
		}
	}

	logger.Info("server stopped")
	return nil
}

func setupRouter(
	logger *slog.Logger,
	cfg *config.Config,
	limiter ratelimit.Limiter,
	addon *handler.AddonHandler,
	watchlist *handler.WatchlistHandler,
	ops *handler.OpsHandler,
	admin *handler.AdminHandler,
) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.CORS)

	r.Get("/health", ops.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		if limiter != nil {
			r.Use(middleware.RateLimit(limiter))
		}

		// Addon protocol
		r.Get("/{userID}/manifest.json", addon.Manifest)
		r.Get("/{userID}/catalog/{type}/{catalogID}.json", addon.Catalog)
		r.Get("/{userID}/meta/{type}/{id}.json", addon.Meta)

		r.Route("/api", func(r chi.Router) {
			r.Get("/validate/{userID}", watchlist.Validate)
			r.Get("/refresh/{userID}", watchlist.Refresh)
			r.Post("/config/{userID}", watchlist.Config)
			r.Get("/export/{userID}", watchlist.Export)
			r.Get("/stats", ops.Stats)
			r.Get("/redis-stats", ops.RedisStats)

			if cfg.Admin.Token != "" {
				r.Route("/admin", func(r chi.Router) {
					r.Use(middleware.AdminToken(cfg.Admin.Token))
					r.Delete("/users/{userID}", admin.DeleteUser)
					r.Put("/imdb-hash", admin.SetIMDbHash)
					r.Delete("/imdb-hash", admin.ClearIMDbHash)
				})
			}
		})
	})

	return r
}
