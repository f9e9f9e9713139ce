// Package bootstrap builds the components shared by the API and worker binaries.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hszk-dev/imdb-watchlist/internal/config"
	"github.com/hszk-dev/imdb-watchlist/internal/domain/model"
	"github.com/hszk-dev/imdb-watchlist/internal/domain/repository"
	"github.com/hszk-dev/imdb-watchlist/internal/infrastructure/cache"
	"github.com/hszk-dev/imdb-watchlist/internal/infrastructure/imdb"
	"github.com/hszk-dev/imdb-watchlist/internal/infrastructure/memory"
	"github.com/hszk-dev/imdb-watchlist/internal/infrastructure/metrics"
	"github.com/hszk-dev/imdb-watchlist/internal/infrastructure/postgres"
	"github.com/hszk-dev/imdb-watchlist/internal/infrastructure/storage"
	"github.com/hszk-dev/imdb-watchlist/internal/jobqueue"
	"github.com/hszk-dev/imdb-watchlist/internal/usecase"
)

// Storage is the key-value backend with its optional Redis primary.
type Storage struct {
	*cache.FailoverStore

	// Redis is nil when the primary is the in-memory store.
	Redis *cache.RedisStore

	memory      *cache.MemoryStore
	redisClient *redis.Client
}

// OpenStorage selects the primary backend and wraps it with the memory
// fallback. An unreachable Redis does not fail startup; the failover store
// routes around it until it recovers.
func OpenStorage(ctx context.Context, cfg *config.Config) (*Storage, error) {
	mem := cache.NewMemoryStore()

	if cfg.Storage.Primary == "memory" {
		return &Storage{
			FailoverStore: cache.NewFailoverStore(mem, mem, cache.FailoverConfig{
				PrimaryName:     metrics.CacheTypeMemory,
				FallbackName:    metrics.CacheTypeMemory,
				FallbackEnabled: false,
				HealthInterval:  cfg.Storage.HealthInterval,
			}),
			memory: mem,
		}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Addr(),
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})
	rs := cache.NewRedisStore(client)
	if err := rs.Ping(ctx); err != nil {
		if !cfg.Storage.FallbackEnabled {
			client.Close()
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		slog.Warn("Redis unreachable at startup, serving from memory until it recovers",
			"addr", cfg.Redis.Addr(),
			"error", err,
		)
	} else {
		slog.Info("connected to Redis", "addr", cfg.Redis.Addr())
	}

	fcfg := cache.DefaultFailoverConfig()
	fcfg.FallbackEnabled = cfg.Storage.FallbackEnabled
	fcfg.HealthInterval = cfg.Storage.HealthInterval

	return &Storage{
		FailoverStore: cache.NewFailoverStore(rs, mem, fcfg),
		Redis:         rs,
		memory:        mem,
		redisClient:   client,
	}, nil
}

// RunSweeper drops expired keys from the memory store until ctx is cancelled.
func (s *Storage) RunSweeper(ctx context.Context, interval time.Duration) {
	s.memory.RunSweeper(ctx, interval)
}

func (s *Storage) Close() error {
	if s.redisClient != nil {
		return s.redisClient.Close()
	}
	return nil
}

// Users is the user repository plus its connection lifecycle.
type Users struct {
	repository.UserRepository
	close func()
}

func (u *Users) Close() {
	if u.close != nil {
		u.close()
	}
}

// OpenUsers connects to PostgreSQL when enabled, applying migrations first,
// and otherwise keeps users in memory.
func OpenUsers(ctx context.Context, cfg *config.Config) (*Users, error) {
	if !cfg.Database.Enabled {
		slog.Info("PostgreSQL disabled, keeping users in memory")
		return &Users{UserRepository: memory.NewUserRepository()}, nil
	}

	pg, err := postgres.NewClient(ctx, postgres.DefaultClientConfig(cfg.Database.DSN()))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	if cfg.Database.Migrate {
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, fmt.Errorf("failed to migrate PostgreSQL: %w", err)
		}
	}
	slog.Info("connected to PostgreSQL", "max_conns", pg.Stats().MaxConns)

	return &Users{
		UserRepository: postgres.NewUserRepository(pg.Pool()),
		close:          pg.Close,
	}, nil
}

// OpenArchive returns the MinIO snapshot archive, or nil when disabled.
func OpenArchive(ctx context.Context, cfg *config.Config) (*storage.Client, error) {
	if !cfg.MinIO.Enabled {
		return nil, nil
	}
	client, err := storage.NewClient(ctx, storage.ClientConfig{
		Endpoint:  cfg.MinIO.Endpoint,
		AccessKey: cfg.MinIO.AccessKey,
		SecretKey: cfg.MinIO.SecretKey,
		Bucket:    cfg.MinIO.Bucket,
		UseSSL:    cfg.MinIO.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MinIO: %w", err)
	}
	slog.Info("connected to MinIO", "bucket", cfg.MinIO.Bucket)
	return client, nil
}

// SnapshotArchive converts a possibly nil client to the interface without
// producing a typed nil.
func SnapshotArchive(c *storage.Client) repository.SnapshotArchive {
	if c == nil {
		return nil
	}
	return c
}

// IMDbConfig maps environment settings onto the fetcher configuration.
func IMDbConfig(cfg config.IMDbConfig) imdb.Config {
	fc := imdb.DefaultConfig()
	fc.GraphQLURL = cfg.GraphQLURL
	fc.OperationName = cfg.OperationName
	fc.PageSize = cfg.PageSize
	fc.MaxPages = cfg.MaxPages
	fc.RequestsPerSecond = cfg.RequestsPerSecond
	fc.Burst = cfg.Burst
	fc.UserAgent = cfg.UserAgent
	return fc
}

// NewWatchlistService builds the fetcher and cache manager on top of store.
// The hash source is returned for the admin override endpoint.
func NewWatchlistService(cfg *config.Config, store repository.KeyValueStore, users repository.UserRepository) (usecase.WatchlistService, *imdb.HashSource) {
	hashes := imdb.NewHashSource(store, cfg.IMDb.PersistedQueryHash)
	fetcher := imdb.NewFetcher(IMDbConfig(cfg.IMDb), &http.Client{Timeout: cfg.Cache.FetchTimeout}, hashes)

	svc := usecase.NewWatchlistService(store, fetcher, users, usecase.WatchlistServiceConfig{
		CacheTTL:     cfg.Cache.TTL,
		FetchTimeout: cfg.Cache.FetchTimeout,
		RetainFor:    cfg.Cache.RetainFor,
	})
	return svc, hashes
}

// JobQueueConfig maps environment settings onto the job queue configuration.
func JobQueueConfig(cfg config.SyncConfig) jobqueue.Config {
	qc := jobqueue.DefaultConfig()
	qc.Concurrency = cfg.Concurrency
	qc.MaxAttempts = cfg.MaxAttempts
	qc.Backoff = model.BackoffPolicy{Kind: model.BackoffKind(cfg.Backoff), Base: cfg.BackoffBase}
	qc.AttemptTimeout = cfg.AttemptTimeout
	return qc
}
