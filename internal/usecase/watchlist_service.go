package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hszk-dev/imdb-watchlist/internal/domain/model"
	"github.com/hszk-dev/imdb-watchlist/internal/domain/repository"
	"github.com/hszk-dev/imdb-watchlist/internal/infrastructure/metrics"
)

var (
	// ErrFetchFailed is returned when no cached data exists and the upstream fetch failed.
	// It wraps the fetcher's error, so errors.Is also matches ErrWatchlistNotFound or ErrFetchNetwork.
	ErrFetchFailed = errors.New("watchlist fetch failed")
)

// WatchlistResult is a sorted copy of a user's cached watchlist.
type WatchlistResult struct {
	Items     []model.MediaItem
	Sort      model.SortSpec
	FetchedAt time.Time
	CachedAt  time.Time

	// Stale is set when the entry is past its TTL and the refresh failed.
	Stale bool
}

// WatchlistService defines the cache manager for watchlist data.
type WatchlistService interface {
	// GetWatchlist returns the user's watchlist sorted by sortOverride when it is a
	// valid option, otherwise by the user's stored preference.
	GetWatchlist(ctx context.Context, userID, sortOverride string) (*WatchlistResult, error)

	// Refresh fetches and stores the watchlist regardless of cache age.
	Refresh(ctx context.Context, userID string) (*model.WatchlistSnapshot, error)

	// Invalidate removes the cached entry. Failures are logged.
	Invalidate(ctx context.Context, userID string)

	// Validate reports whether the watchlist exists and is public.
	Validate(ctx context.Context, userID string) (bool, error)
}

// WatchlistServiceConfig holds configuration for WatchlistService.
type WatchlistServiceConfig struct {
	// CacheTTL is the age after which an entry is refreshed on read.
	CacheTTL time.Duration
	// FetchTimeout bounds one upstream fetch.
	FetchTimeout time.Duration
	// RetainFor is the store expiry of entries, which keeps stale data available.
	RetainFor time.Duration
}

// DefaultWatchlistServiceConfig returns the default configuration.
func DefaultWatchlistServiceConfig() WatchlistServiceConfig {
	return WatchlistServiceConfig{
		CacheTTL:     30 * time.Minute,
		FetchTimeout: 12 * time.Second,
		RetainFor:    30 * 24 * time.Hour,
	}
}

type watchlistService struct {
	store   repository.KeyValueStore
	fetcher repository.WatchlistFetcher
	users   repository.UserRepository
	sfGroup singleflight.Group

	cfg  WatchlistServiceConfig
	now  func() time.Time
	seed func() int64
}

// NewWatchlistService creates a new WatchlistService.
func NewWatchlistService(
	store repository.KeyValueStore,
	fetcher repository.WatchlistFetcher,
	users repository.UserRepository,
	cfg WatchlistServiceConfig,
) WatchlistService {
	return &watchlistService{
		store:   store,
		fetcher: fetcher,
		users:   users,
		cfg:     cfg,
		now:     time.Now,
		seed:    rand.Int64,
	}
}

func cacheKey(userID string) string {
	return "watchlist:" + userID
}

func (s *watchlistService) GetWatchlist(ctx context.Context, userID, sortOverride string) (*WatchlistResult, error) {
	if err := model.ValidateUserID(userID); err != nil {
		return nil, err
	}

	now := s.now()
	spec := model.DefaultSortSpec
	user, err := s.users.Ensure(ctx, userID, now)
	if err != nil {
		slog.Warn("failed to record user activity, using default sort",
			"user_id", userID,
			"error", err,
		)
	} else {
		spec = user.SortSpec()
	}
	if sortOverride != "" {
		if override, err := model.ParseSortSpec(sortOverride); err == nil {
			spec = override
		}
	}

	entry := s.readEntry(ctx, userID)
	if entry != nil && entry.IsFresh(now, s.cfg.CacheTTL) {
		return buildResult(entry, spec, false), nil
	}

	fresh, err := s.refresh(ctx, userID)
	if err != nil {
		if entry == nil {
			return nil, err
		}
		metrics.StaleServesTotal.Inc()
		slog.Warn("refresh failed, serving stale watchlist",
			"user_id", userID,
			"age", entry.Age(now).Round(time.Second),
			"error", err,
		)
		return buildResult(entry, spec, true), nil
	}
	return buildResult(fresh, spec, false), nil
}

func (s *watchlistService) Refresh(ctx context.Context, userID string) (*model.WatchlistSnapshot, error) {
	if err := model.ValidateUserID(userID); err != nil {
		return nil, err
	}
	entry, err := s.refresh(ctx, userID)
	if err != nil {
		return nil, err
	}
	return entry.Snapshot.Clone(), nil
}

func (s *watchlistService) Invalidate(ctx context.Context, userID string) {
	if err := s.store.Delete(ctx, cacheKey(userID)); err != nil {
		slog.Warn("failed to invalidate watchlist cache",
			"user_id", userID,
			"error", err,
		)
	}
}

// Validate asks IMDb directly and caches nothing; the user may not exist yet.
func (s *watchlistService) Validate(ctx context.Context, userID string) (bool, error) {
	if err := model.ValidateUserID(userID); err != nil {
		return false, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	defer cancel()

	if _, err := s.fetcher.Fetch(ctx, userID, model.DefaultSortSpec); err != nil {
		if errors.Is(err, repository.ErrWatchlistNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	return true, nil
}

// refresh coalesces concurrent fetches for the same user.
func (s *watchlistService) refresh(ctx context.Context, userID string) (*model.CacheEntry, error) {
	result, err, shared := s.sfGroup.Do(userID, func() (any, error) {
		return s.fetchAndStore(ctx, userID)
	})

	if shared {
		metrics.SingleflightRequestsTotal.WithLabelValues(metrics.SingleflightShared).Inc()
	} else {
		metrics.SingleflightRequestsTotal.WithLabelValues(metrics.SingleflightInitiated).Inc()
	}

	if err != nil {
		return nil, err
	}
	return result.(*model.CacheEntry), nil
}

func (s *watchlistService) fetchAndStore(ctx context.Context, userID string) (*model.CacheEntry, error) {
	// The result is shared by every waiter, so the first caller's cancellation must not abort it.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.FetchTimeout)
	defer cancel()

	// Always fetch canonical list order; sorting happens on read.
	snapshot, err := s.fetcher.Fetch(ctx, userID, model.DefaultSortSpec)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}

	cachedAt := s.now()
	if prev := s.readEntry(ctx, userID); prev != nil && prev.CachedAt.After(cachedAt) {
		cachedAt = prev.CachedAt
	}

	entry := &model.CacheEntry{
		UserID:      userID,
		Snapshot:    *snapshot,
		CachedAt:    cachedAt,
		ShuffleSeed: s.seed(),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("failed to encode cache entry: %w", err)
	}
	if err := s.store.Set(ctx, cacheKey(userID), data, s.cfg.RetainFor); err != nil {
		slog.Warn("failed to cache watchlist",
			"user_id", userID,
			"error", err,
		)
	}

	slog.Debug("watchlist refreshed", "user_id", userID, "items", len(snapshot.Items))
	return entry, nil
}

// readEntry returns nil for missing, unreadable or corrupt entries.
func (s *watchlistService) readEntry(ctx context.Context, userID string) *model.CacheEntry {
	data, err := s.store.Get(ctx, cacheKey(userID))
	if err != nil {
		slog.Warn("cache read failed, treating as miss",
			"user_id", userID,
			"error", err,
		)
		return nil
	}
	if data == nil {
		return nil
	}

	var entry model.CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		slog.Warn("corrupt cache entry, treating as miss",
			"user_id", userID,
			"error", err,
		)
		return nil
	}
	return &entry
}

func buildResult(entry *model.CacheEntry, spec model.SortSpec, stale bool) *WatchlistResult {
	snapshot := entry.Snapshot.Clone()
	return &WatchlistResult{
		Items:     model.SortItems(snapshot.Items, spec, entry.ShuffleSeed),
		Sort:      spec,
		FetchedAt: snapshot.FetchedAt,
		CachedAt:  entry.CachedAt,
		Stale:     stale,
	}
}
