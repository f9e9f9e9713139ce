package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hszk-dev/imdb-watchlist/internal/bootstrap"
	"github.com/hszk-dev/imdb-watchlist/internal/config"
	"github.com/hszk-dev/imdb-watchlist/internal/infrastructure/queue"
	"github.com/hszk-dev/imdb-watchlist/internal/jobqueue"
	"github.com/hszk-dev/imdb-watchlist/internal/logging"
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
	if cfg.Sync.Mode != config.SyncModeAMQP {
		return fmt.Errorf("sync worker requires SYNC_MODE=%s, got %q", config.SyncModeAMQP, cfg.Sync.Mode)
	}

	logger, logCloser, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer logCloser.Close()
	slog.SetDefault(logger)

	// Initialize infrastructure clients
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

	queueClient, err := queue.NewClient(ctx, queue.DefaultClientConfig(cfg.RabbitMQ.URL()))
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	defer queueClient.Close()
	logger.Info("connected to RabbitMQ")

	// Initialize sync pipeline
	watchlistSvc, _ := bootstrap.NewWatchlistService(cfg, store, users)
	processor := usecase.NewSyncProcessor(watchlistSvc, users, bootstrap.SnapshotArchive(archiveClient))

	jobs := jobqueue.New(bootstrap.JobQueueConfig(cfg.Sync), processor.Process)
	jobs.Start(ctx)

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "sync-worker"
	}
	go jobqueue.NewReporter(jobs, store, hostname, cfg.Sync.ReportInterval).Run(ctx)

	if cfg.Sync.Enabled {
		sched := scheduler.New(scheduler.Config{
			Interval:      cfg.Sync.Interval,
			InactiveAfter: cfg.Sync.InactiveAfter,
		}, users, jobs)
		go sched.Run(ctx)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Requests are handed to the local queue, which de-duplicates per user and
	// owns retries, so a message is acknowledged once it is enqueued.
	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting worker, consuming refresh requests")
		err := queueClient.ConsumeRefreshes(ctx, usecase.EnqueueRefreshes(jobs))
		if err != nil && ctx.Err() == nil {
			errCh <- fmt.Errorf("consumer error: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("shutting down worker", slog.String("signal", sig.String()))
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Sync.ShutdownTimeout)
	defer shutdownCancel()

	// Cancel the main context to stop consuming new messages
	cancel()

	if err := jobs.Stop(shutdownCtx); err != nil {
		logger.Warn("shutdown timeout exceeded, some refreshes may not have completed",
			slog.String("error", err.Error()),
		)
	} else {
		logger.Info("all in-flight refreshes completed")
	}

	stats := jobs.Stats()
	logger.Info("worker stopped",
		slog.Int64("completed", stats.Completed),
		slog.Int64("failed", stats.Failed),
		slog.Int("abandoned", stats.Waiting+stats.Delayed),
	)
	return nil
}
