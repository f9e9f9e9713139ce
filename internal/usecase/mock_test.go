package usecase

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hszk-dev/imdb-watchlist/internal/domain/model"
	"github.com/hszk-dev/imdb-watchlist/internal/domain/repository"
)

// mockFetcher provides a configurable mock for WatchlistFetcher.
type mockFetcher struct {
	fetchFn    func(ctx context.Context, userID string, sort model.SortSpec) (*model.WatchlistSnapshot, error)
	fetchCount atomic.Int32
}

func (m *mockFetcher) Fetch(ctx context.Context, userID string, sort model.SortSpec) (*model.WatchlistSnapshot, error) {
	m.fetchCount.Add(1)
	if m.fetchFn != nil {
		return m.fetchFn(ctx, userID, sort)
	}
	return &model.WatchlistSnapshot{FetchedAt: time.Now()}, nil
}

// mockStore provides a map-backed KeyValueStore with optional overrides.
type mockStore struct {
	mu       sync.Mutex
	data     map[string][]byte
	getFn    func(ctx context.Context, key string) ([]byte, error)
	setFn    func(ctx context.Context, key string, value []byte, ttl time.Duration) error
	deleteFn func(ctx context.Context, key string) error
	lastTTL  time.Duration
}

func newMockStore() *mockStore {
	return &mockStore{data: make(map[string][]byte)}
}

func (m *mockStore) Get(ctx context.Context, key string) ([]byte, error) {
	if m.getFn != nil {
		return m.getFn(ctx, key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[key], nil
}

func (m *mockStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if m.setFn != nil {
		return m.setFn(ctx, key, value, ttl)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	m.lastTTL = ttl
	return nil
}

func (m *mockStore) Delete(ctx context.Context, key string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *mockStore) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	return 1, nil
}

func (m *mockStore) Ping(ctx context.Context) error {
	return nil
}

// mockUserRepository provides a configurable mock for UserRepository.
type mockUserRepository struct {
	ensureFn           func(ctx context.Context, userID string, now time.Time) (*model.User, error)
	getByIDFn          func(ctx context.Context, userID string) (*model.User, error)
	updateSortOptionFn func(ctx context.Context, userID, sortOption string) error
	deleteFn           func(ctx context.Context, userID string) error
	countsFn           func(ctx context.Context) (repository.UserCounts, error)
}

func (m *mockUserRepository) Ensure(ctx context.Context, userID string, now time.Time) (*model.User, error) {
	if m.ensureFn != nil {
		return m.ensureFn(ctx, userID, now)
	}
	return model.NewUser(userID, now)
}

func (m *mockUserRepository) GetByID(ctx context.Context, userID string) (*model.User, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, userID)
	}
	return model.NewUser(userID, time.Now())
}

func (m *mockUserRepository) UpdateSortOption(ctx context.Context, userID, sortOption string) error {
	if m.updateSortOptionFn != nil {
		return m.updateSortOptionFn(ctx, userID, sortOption)
	}
	return nil
}

func (m *mockUserRepository) ListActive(ctx context.Context) ([]string, error) {
	return nil, nil
}

func (m *mockUserRepository) DeactivateIdle(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

func (m *mockUserRepository) Delete(ctx context.Context, userID string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, userID)
	}
	return nil
}

func (m *mockUserRepository) Counts(ctx context.Context) (repository.UserCounts, error) {
	if m.countsFn != nil {
		return m.countsFn(ctx)
	}
	return repository.UserCounts{}, nil
}

func (m *mockUserRepository) Ping(ctx context.Context) error {
	return nil
}

// mockWatchlistService provides a configurable mock for WatchlistService.
type mockWatchlistService struct {
	refreshFn        func(ctx context.Context, userID string) (*model.WatchlistSnapshot, error)
	invalidatedUsers []string
}

func (m *mockWatchlistService) GetWatchlist(ctx context.Context, userID, sortOverride string) (*WatchlistResult, error) {
	return &WatchlistResult{}, nil
}

func (m *mockWatchlistService) Refresh(ctx context.Context, userID string) (*model.WatchlistSnapshot, error) {
	if m.refreshFn != nil {
		return m.refreshFn(ctx, userID)
	}
	return &model.WatchlistSnapshot{}, nil
}

func (m *mockWatchlistService) Invalidate(ctx context.Context, userID string) {
	m.invalidatedUsers = append(m.invalidatedUsers, userID)
}

func (m *mockWatchlistService) Validate(ctx context.Context, userID string) (bool, error) {
	return true, nil
}

// mockTrigger records refresh triggers.
type mockTrigger struct {
	triggerFn func(ctx context.Context, userID, reason string) error
	triggered []string
}

func (m *mockTrigger) TriggerRefresh(ctx context.Context, userID, reason string) error {
	m.triggered = append(m.triggered, userID)
	if m.triggerFn != nil {
		return m.triggerFn(ctx, userID, reason)
	}
	return nil
}

// mockCanceller records job cancellations.
type mockCanceller struct {
	cancelled []string
}

func (m *mockCanceller) Cancel(userID string) bool {
	m.cancelled = append(m.cancelled, userID)
	return true
}

// mockArchive provides a configurable mock for SnapshotArchive.
type mockArchive struct {
	putFn    func(ctx context.Context, userID string, data []byte) error
	deleteFn func(ctx context.Context, userID string) error
	puts     []string
	deleted  []string
}

func (m *mockArchive) Put(ctx context.Context, userID string, data []byte) error {
	m.puts = append(m.puts, userID)
	if m.putFn != nil {
		return m.putFn(ctx, userID, data)
	}
	return nil
}

func (m *mockArchive) PresignedURL(ctx context.Context, userID string, expiry time.Duration) (string, error) {
	return "", repository.ErrObjectNotFound
}

func (m *mockArchive) Delete(ctx context.Context, userID string) error {
	m.deleted = append(m.deleted, userID)
	if m.deleteFn != nil {
		return m.deleteFn(ctx, userID)
	}
	return nil
}

// mockEnqueuer records enqueued jobs.
type mockEnqueuer struct {
	enqueueFn func(userID string) (model.SyncJob, bool, error)
	enqueued  []string
}

func (m *mockEnqueuer) Enqueue(userID string) (model.SyncJob, bool, error) {
	m.enqueued = append(m.enqueued, userID)
	if m.enqueueFn != nil {
		return m.enqueueFn(userID)
	}
	return model.SyncJob{UserID: userID}, true, nil
}

// mockRefreshQueue provides a configurable mock for RefreshQueue.
type mockRefreshQueue struct {
	publishRefreshFn func(ctx context.Context, req repository.RefreshRequest) error
}

func (m *mockRefreshQueue) PublishRefresh(ctx context.Context, req repository.RefreshRequest) error {
	if m.publishRefreshFn != nil {
		return m.publishRefreshFn(ctx, req)
	}
	return nil
}

func (m *mockRefreshQueue) ConsumeRefreshes(ctx context.Context, handler func(req repository.RefreshRequest) error) error {
	return nil
}

func (m *mockRefreshQueue) Close() error {
	return nil
}
