package usecase

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/hszk-dev/imdb-watchlist/internal/domain/model"
	"github.com/hszk-dev/imdb-watchlist/internal/domain/repository"
	"github.com/hszk-dev/imdb-watchlist/internal/infrastructure/cache"
	"github.com/hszk-dev/imdb-watchlist/internal/infrastructure/memory"
	"github.com/hszk-dev/imdb-watchlist/internal/jobqueue"
)

func TestQueueTrigger_TriggerRefresh(t *testing.T) {
	queue := &mockEnqueuer{}
	trigger := NewQueueTrigger(queue)

	if err := trigger.TriggerRefresh(context.Background(), testUserID, "config"); err != nil {
		t.Fatalf("TriggerRefresh failed: %v", err)
	}
	if !slices.Equal(queue.enqueued, []string{testUserID}) {
		t.Errorf("enqueued = %v", queue.enqueued)
	}

	queue.enqueueFn = func(userID string) (model.SyncJob, bool, error) {
		return model.SyncJob{}, false, errors.New("job queue closed")
	}
	if err := trigger.TriggerRefresh(context.Background(), testUserID, "config"); err == nil {
		t.Error("TriggerRefresh expected error, got nil")
	}
}

func TestPublishTrigger_TriggerRefresh(t *testing.T) {
	var got repository.RefreshRequest
	queue := &mockRefreshQueue{
		publishRefreshFn: func(ctx context.Context, req repository.RefreshRequest) error {
			got = req
			return nil
		},
	}
	trigger := NewPublishTrigger(queue)
	trigger.now = func() time.Time { return testNow }

	if err := trigger.TriggerRefresh(context.Background(), testUserID, "config"); err != nil {
		t.Fatalf("TriggerRefresh failed: %v", err)
	}
	if got.UserID != testUserID || got.Reason != "config" || !got.RequestedAt.Equal(testNow) {
		t.Errorf("published %+v", got)
	}
}

func TestEnqueueRefreshes(t *testing.T) {
	queue := &mockEnqueuer{
		enqueueFn: func(userID string) (model.SyncJob, bool, error) {
			if err := model.ValidateUserID(userID); err != nil {
				return model.SyncJob{}, false, err
			}
			return model.SyncJob{UserID: userID}, true, nil
		},
	}
	handle := EnqueueRefreshes(queue)

	if err := handle(repository.RefreshRequest{UserID: testUserID}); err != nil {
		t.Errorf("handle failed: %v", err)
	}
	if err := handle(repository.RefreshRequest{UserID: "bad"}); !errors.Is(err, model.ErrInvalidIdentifier) {
		t.Errorf("handle error = %v, want ErrInvalidIdentifier", err)
	}
}

func TestSyncProcessor_Process(t *testing.T) {
	tests := []struct {
		name        string
		refreshErr  error
		archive     *mockArchive
		wantErr     bool
		wantArchive bool
	}{
		{name: "refresh and archive", archive: &mockArchive{}, wantArchive: true},
		{name: "no archive configured"},
		{
			name: "archive failure is not a job failure",
			archive: &mockArchive{
				putFn: func(ctx context.Context, userID string, data []byte) error {
					return errors.New("disk full")
				},
			},
			wantArchive: true,
		},
		{name: "refresh failure", refreshErr: ErrFetchFailed, archive: &mockArchive{}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			watchlists := &mockWatchlistService{
				refreshFn: func(ctx context.Context, userID string) (*model.WatchlistSnapshot, error) {
					if tt.refreshErr != nil {
						return nil, tt.refreshErr
					}
					return &model.WatchlistSnapshot{Items: testItems(), FetchedAt: testNow}, nil
				},
			}

			var archive repository.SnapshotArchive
			if tt.archive != nil {
				archive = tt.archive
			}
			p := NewSyncProcessor(watchlists, &mockUserRepository{}, archive)

			err := p.Process(context.Background(), testUserID)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Process error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.archive != nil {
				archived := len(tt.archive.puts) == 1
				if archived != tt.wantArchive {
					t.Errorf("archived = %v, want %v", archived, tt.wantArchive)
				}
			}
		})
	}
}

func TestSyncProcessor_Process_SkipsDeletedUser(t *testing.T) {
	watchlists := &mockWatchlistService{
		refreshFn: func(ctx context.Context, userID string) (*model.WatchlistSnapshot, error) {
			t.Errorf("refreshed deleted user %s", userID)
			return &model.WatchlistSnapshot{}, nil
		},
	}
	archive := &mockArchive{}
	p := NewSyncProcessor(watchlists, memory.NewUserRepository(), archive)

	if err := p.Process(context.Background(), testUserID); err != nil {
		t.Fatalf("Process error = %v, want nil so the job is not retried", err)
	}
	if len(archive.puts) != 0 {
		t.Errorf("archived %d snapshots for a deleted user", len(archive.puts))
	}
}

func TestSyncProcessor_Process_UserLookupFailure(t *testing.T) {
	users := &mockUserRepository{
		getByIDFn: func(ctx context.Context, userID string) (*model.User, error) {
			return nil, repository.ErrStorageUnavailable
		},
	}
	p := NewSyncProcessor(&mockWatchlistService{}, users, nil)

	if err := p.Process(context.Background(), testUserID); !errors.Is(err, repository.ErrStorageUnavailable) {
		t.Errorf("Process error = %v, want ErrStorageUnavailable", err)
	}
}

func TestSyncProcessor_Process_UserDeletedDuringRefresh(t *testing.T) {
	ctx := context.Background()
	users := memory.NewUserRepository()
	if _, err := users.Ensure(ctx, testUserID, testNow); err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	store := newMockStore()
	archive := &mockArchive{}

	var userSvc UserService
	fetcher := &mockFetcher{
		fetchFn: func(ctx context.Context, userID string, sort model.SortSpec) (*model.WatchlistSnapshot, error) {
			// The admin deletes the user while IMDb is still answering.
			if err := userSvc.DeleteUser(ctx, userID); err != nil {
				t.Errorf("DeleteUser failed: %v", err)
			}
			return &model.WatchlistSnapshot{Items: testItems(), FetchedAt: testNow}, nil
		},
	}
	watchlists := NewWatchlistService(store, fetcher, users, DefaultWatchlistServiceConfig())
	userSvc = NewUserService(users, watchlists, &mockTrigger{}, nil, archive)
	p := NewSyncProcessor(watchlists, users, archive)

	if err := p.Process(ctx, testUserID); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if _, ok := store.data[cacheKey(testUserID)]; ok {
		t.Error("cache entry written back after the user was deleted")
	}
	if len(archive.puts) != 1 {
		t.Fatalf("archive puts = %d, want 1", len(archive.puts))
	}
	// Once by DeleteUser, once more after the late write.
	if want := []string{testUserID, testUserID}; !slices.Equal(archive.deleted, want) {
		t.Errorf("archive deleted = %v, want %v", archive.deleted, want)
	}
}

func TestUserService_DeleteUser_WhileJobActive(t *testing.T) {
	ctx := context.Background()
	users := memory.NewUserRepository()
	if _, err := users.Ensure(ctx, testUserID, testNow); err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	store := cache.NewMemoryStore()

	release := make(chan struct{})
	fetcher := &mockFetcher{
		fetchFn: func(ctx context.Context, userID string, sort model.SortSpec) (*model.WatchlistSnapshot, error) {
			<-release
			return &model.WatchlistSnapshot{Items: testItems(), FetchedAt: testNow}, nil
		},
	}
	watchlists := NewWatchlistService(store, fetcher, users, DefaultWatchlistServiceConfig())
	processor := NewSyncProcessor(watchlists, users, nil)

	cfg := jobqueue.DefaultConfig()
	cfg.PollInterval = 5 * time.Millisecond
	cfg.AttemptTimeout = time.Second
	jobs := jobqueue.New(cfg, processor.Process)

	active := make(chan struct{}, 1)
	done := make(chan jobqueue.Event, 1)
	jobs.Subscribe(func(ev jobqueue.Event) {
		switch ev.Kind {
		case jobqueue.EventActive:
			active <- struct{}{}
		case jobqueue.EventCompleted, jobqueue.EventCancelled, jobqueue.EventFailed:
			done <- ev
		}
	})
	jobs.Start(ctx)
	t.Cleanup(func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = jobs.Stop(stopCtx)
	})

	userSvc := NewUserService(users, watchlists, NewQueueTrigger(jobs), jobs, nil)
	if _, _, err := jobs.Enqueue(testUserID); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	select {
	case <-active:
	case <-time.After(time.Second):
		t.Fatal("job never became active")
	}

	if err := userSvc.DeleteUser(ctx, testUserID); err != nil {
		t.Fatalf("DeleteUser failed: %v", err)
	}
	close(release)

	select {
	case ev := <-done:
		if ev.Kind != jobqueue.EventCancelled {
			t.Errorf("job finished as %s, want cancelled", ev.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("job never finished")
	}

	data, err := store.Get(ctx, cacheKey(testUserID))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if data != nil {
		t.Error("cache entry survived user deletion")
	}
	if _, err := users.GetByID(ctx, testUserID); !errors.Is(err, repository.ErrUserNotFound) {
		t.Errorf("GetByID error = %v, want ErrUserNotFound", err)
	}
	if _, ok := jobs.Job(testUserID); ok {
		t.Error("job still tracked for deleted user")
	}
}
