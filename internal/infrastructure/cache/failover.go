package cache

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hszk-dev/imdb-watchlist/internal/domain/repository"
	"github.com/hszk-dev/imdb-watchlist/internal/infrastructure/metrics"
)

const probeTimeout = time.Second

// FailoverConfig configures backend selection.
type FailoverConfig struct {
	PrimaryName     string
	FallbackName    string
	FallbackEnabled bool
	HealthInterval  time.Duration
}

// DefaultFailoverConfig returns the Redis-with-memory-fallback configuration.
func DefaultFailoverConfig() FailoverConfig {
	return FailoverConfig{
		PrimaryName:     metrics.CacheTypeRedis,
		FallbackName:    metrics.CacheTypeMemory,
		FallbackEnabled: true,
		HealthInterval:  5 * time.Second,
	}
}

// HealthStatus reports which backend is currently serving.
type HealthStatus struct {
	PrimaryUp       bool `json:"primaryUp"`
	FallbackActive  bool `json:"fallbackActive"`
	FallbackEnabled bool `json:"fallbackEnabled"`
}

// FailoverStore routes each call to the primary store while it is healthy and to the
// fallback otherwise. A primary call that fails with ErrStorageUnavailable marks the
// primary down and is retried once on the fallback. Primary health is re-probed at
// most once per HealthInterval.
type FailoverStore struct {
	primary  repository.KeyValueStore
	fallback repository.KeyValueStore
	cfg      FailoverConfig
	now      func() time.Time

	mu        sync.Mutex
	primaryUp bool
	lastProbe time.Time
}

var _ repository.KeyValueStore = (*FailoverStore)(nil)

// NewFailoverStore creates a selector over primary and fallback.
// A nil fallback disables failover regardless of cfg.FallbackEnabled.
func NewFailoverStore(primary, fallback repository.KeyValueStore, cfg FailoverConfig) *FailoverStore {
	if fallback == nil {
		cfg.FallbackEnabled = false
	}
	return &FailoverStore{
		primary:   primary,
		fallback:  fallback,
		cfg:       cfg,
		now:       time.Now,
		primaryUp: true,
	}
}

type backend struct {
	store repository.KeyValueStore
	name  string
}

// selectBackend picks the store for one call, probing the primary if the last probe is old.
func (s *FailoverStore) selectBackend(ctx context.Context) backend {
	primary := backend{store: s.primary, name: s.cfg.PrimaryName}
	if !s.cfg.FallbackEnabled {
		return primary
	}

	s.mu.Lock()
	due := s.now().Sub(s.lastProbe) >= s.cfg.HealthInterval
	if due {
		s.lastProbe = s.now()
	}
	up := s.primaryUp
	s.mu.Unlock()

	if due {
		up = s.probe(ctx)
	}
	if up {
		return primary
	}
	return backend{store: s.fallback, name: s.cfg.FallbackName}
}

func (s *FailoverStore) probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	err := s.primary.Ping(ctx)
	s.setPrimaryUp(err == nil, err)
	return err == nil
}

func (s *FailoverStore) setPrimaryUp(up bool, cause error) {
	s.mu.Lock()
	changed := s.primaryUp != up
	s.primaryUp = up
	s.mu.Unlock()

	if !changed {
		return
	}
	if up {
		slog.Info("primary storage recovered", "primary", s.cfg.PrimaryName)
		metrics.StorageFallbackTotal.WithLabelValues(metrics.TransitionPrimaryUp).Inc()
		return
	}
	slog.Warn("primary storage unavailable, using fallback",
		"primary", s.cfg.PrimaryName,
		"fallback", s.cfg.FallbackName,
		"error", cause,
	)
	metrics.StorageFallbackTotal.WithLabelValues(metrics.TransitionPrimaryDown).Inc()
}

// run executes op on the selected backend, retrying on the fallback if the primary fails.
func (s *FailoverStore) run(ctx context.Context, op func(repository.KeyValueStore) error) (string, error) {
	b := s.selectBackend(ctx)
	err := op(b.store)
	if err == nil || b.store != s.primary || !s.cfg.FallbackEnabled || !errors.Is(err, repository.ErrStorageUnavailable) {
		return b.name, err
	}

	s.mu.Lock()
	s.lastProbe = s.now()
	s.mu.Unlock()
	s.setPrimaryUp(false, err)

	return s.cfg.FallbackName, op(s.fallback)
}

func (s *FailoverStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	name, err := s.run(ctx, func(store repository.KeyValueStore) error {
		var err error
		value, err = store.Get(ctx, key)
		return err
	})

	status := metrics.CacheStatusHit
	switch {
	case err != nil:
		status = metrics.CacheStatusError
	case value == nil:
		status = metrics.CacheStatusMiss
	}
	metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpGet, status, name).Inc()
	return value, err
}

func (s *FailoverStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	name, err := s.run(ctx, func(store repository.KeyValueStore) error {
		return store.Set(ctx, key, value, ttl)
	})
	recordWrite(metrics.CacheOpSet, name, err)
	return err
}

func (s *FailoverStore) Delete(ctx context.Context, key string) error {
	name, err := s.run(ctx, func(store repository.KeyValueStore) error {
		return store.Delete(ctx, key)
	})
	recordWrite(metrics.CacheOpDelete, name, err)
	return err
}

func (s *FailoverStore) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	var n int64
	_, err := s.run(ctx, func(store repository.KeyValueStore) error {
		var err error
		n, err = store.Increment(ctx, key, window)
		return err
	})
	return n, err
}

// Ping succeeds while any usable backend is reachable.
func (s *FailoverStore) Ping(ctx context.Context) error {
	_, err := s.run(ctx, func(store repository.KeyValueStore) error {
		return store.Ping(ctx)
	})
	return err
}

// HealthCheck probes the primary immediately and reports the routing state.
func (s *FailoverStore) HealthCheck(ctx context.Context) HealthStatus {
	s.mu.Lock()
	s.lastProbe = s.now()
	s.mu.Unlock()

	up := s.probe(ctx)
	return HealthStatus{
		PrimaryUp:       up,
		FallbackActive:  !up && s.cfg.FallbackEnabled,
		FallbackEnabled: s.cfg.FallbackEnabled,
	}
}

func recordWrite(op, name string, err error) {
	status := metrics.CacheStatusSuccess
	if err != nil {
		status = metrics.CacheStatusError
	}
	metrics.CacheOperationsTotal.WithLabelValues(op, status, name).Inc()
}
