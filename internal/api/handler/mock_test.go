package handler

import (
	"context"
	"time"

	"github.com/hszk-dev/imdb-watchlist/internal/domain/model"
	"github.com/hszk-dev/imdb-watchlist/internal/domain/repository"
	"github.com/hszk-dev/imdb-watchlist/internal/infrastructure/cache"
	"github.com/hszk-dev/imdb-watchlist/internal/jobqueue"
	"github.com/hszk-dev/imdb-watchlist/internal/usecase"
)

type mockWatchlistService struct {
	getWatchlistFn func(ctx context.Context, userID, sortOverride string) (*usecase.WatchlistResult, error)
	refreshFn      func(ctx context.Context, userID string) (*model.WatchlistSnapshot, error)
	validateFn     func(ctx context.Context, userID string) (bool, error)
}

func (m *mockWatchlistService) GetWatchlist(ctx context.Context, userID, sortOverride string) (*usecase.WatchlistResult, error) {
	if m.getWatchlistFn != nil {
		return m.getWatchlistFn(ctx, userID, sortOverride)
	}
	return &usecase.WatchlistResult{}, nil
}

func (m *mockWatchlistService) Refresh(ctx context.Context, userID string) (*model.WatchlistSnapshot, error) {
	if m.refreshFn != nil {
		return m.refreshFn(ctx, userID)
	}
	return &model.WatchlistSnapshot{}, nil
}

func (m *mockWatchlistService) Invalidate(ctx context.Context, userID string) {}

func (m *mockWatchlistService) Validate(ctx context.Context, userID string) (bool, error) {
	if m.validateFn != nil {
		return m.validateFn(ctx, userID)
	}
	return true, nil
}

type mockUserService struct {
	setSortOptionFn func(ctx context.Context, userID, option string) (model.SortSpec, error)
	deleteUserFn    func(ctx context.Context, userID string) error
	statsFn         func(ctx context.Context) (repository.UserCounts, error)
}

func (m *mockUserService) SetSortOption(ctx context.Context, userID, option string) (model.SortSpec, error) {
	if m.setSortOptionFn != nil {
		return m.setSortOptionFn(ctx, userID, option)
	}
	return model.DefaultSortSpec, nil
}

func (m *mockUserService) DeleteUser(ctx context.Context, userID string) error {
	if m.deleteUserFn != nil {
		return m.deleteUserFn(ctx, userID)
	}
	return nil
}

func (m *mockUserService) Stats(ctx context.Context) (repository.UserCounts, error) {
	if m.statsFn != nil {
		return m.statsFn(ctx)
	}
	return repository.UserCounts{}, nil
}

type mockArchive struct {
	presignedURLFn func(ctx context.Context, userID string, expiry time.Duration) (string, error)
}

func (m *mockArchive) Put(ctx context.Context, userID string, data []byte) error {
	return nil
}

func (m *mockArchive) PresignedURL(ctx context.Context, userID string, expiry time.Duration) (string, error) {
	if m.presignedURLFn != nil {
		return m.presignedURLFn(ctx, userID, expiry)
	}
	return "", repository.ErrObjectNotFound
}

func (m *mockArchive) Delete(ctx context.Context, userID string) error {
	return nil
}

type mockStorageHealth struct {
	status cache.HealthStatus
}

func (m *mockStorageHealth) HealthCheck(ctx context.Context) cache.HealthStatus {
	return m.status
}

type mockPinger struct {
	err error
}

func (m *mockPinger) Ping(ctx context.Context) error {
	return m.err
}

type mockQueue struct {
	report jobqueue.Report
	err    error
}

func (m *mockQueue) Report(ctx context.Context) (jobqueue.Report, error) {
	return m.report, m.err
}

type mockRedis struct {
	statsFn func(ctx context.Context) (cache.Stats, error)
}

func (m *mockRedis) Stats(ctx context.Context) (cache.Stats, error) {
	if m.statsFn != nil {
		return m.statsFn(ctx)
	}
	return cache.Stats{}, nil
}

type mockHashes struct {
	setOverrideFn func(ctx context.Context, hash string) error
	cleared       bool
}

func (m *mockHashes) SetOverride(ctx context.Context, hash string) error {
	if m.setOverrideFn != nil {
		return m.setOverrideFn(ctx, hash)
	}
	return nil
}

func (m *mockHashes) ClearOverride(ctx context.Context) error {
	m.cleared = true
	return nil
}
