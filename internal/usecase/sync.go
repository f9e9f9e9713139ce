package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hszk-dev/imdb-watchlist/internal/domain/model"
	"github.com/hszk-dev/imdb-watchlist/internal/domain/repository"
)

// Enqueuer is the subset of the job queue used to schedule refreshes.
type Enqueuer interface {
	Enqueue(userID string) (model.SyncJob, bool, error)
}

// QueueTrigger triggers refreshes on the in-process job queue.
type QueueTrigger struct {
	queue Enqueuer
}

var _ RefreshTrigger = (*QueueTrigger)(nil)

func NewQueueTrigger(queue Enqueuer) *QueueTrigger {
	return &QueueTrigger{queue: queue}
}

func (t *QueueTrigger) TriggerRefresh(_ context.Context, userID, reason string) error {
	job, added, err := t.queue.Enqueue(userID)
	if err != nil {
		return err
	}
	slog.Debug("refresh job requested",
		"user_id", userID,
		"reason", reason,
		"job_id", job.ID,
		"added", added,
	)
	return nil
}

// PublishTrigger sends refresh requests to sync workers over the message queue.
type PublishTrigger struct {
	queue repository.RefreshQueue
	now   func() time.Time
}

var _ RefreshTrigger = (*PublishTrigger)(nil)

func NewPublishTrigger(queue repository.RefreshQueue) *PublishTrigger {
	return &PublishTrigger{queue: queue, now: time.Now}
}

func (t *PublishTrigger) TriggerRefresh(ctx context.Context, userID, reason string) error {
	return t.queue.PublishRefresh(ctx, repository.RefreshRequest{
		UserID:      userID,
		Reason:      reason,
		RequestedAt: t.now(),
	})
}

// EnqueueRefreshes adapts a job queue to the message consumer callback.
// Invalid identifiers are returned as errors so the message is dropped.
func EnqueueRefreshes(queue Enqueuer) func(req repository.RefreshRequest) error {
	return func(req repository.RefreshRequest) error {
		_, _, err := queue.Enqueue(req.UserID)
		return err
	}
}

// SyncProcessor runs one background refresh and archives the result.
type SyncProcessor struct {
	watchlists WatchlistService
	users      repository.UserRepository
	archive    repository.SnapshotArchive
}

// NewSyncProcessor creates a processor. archive may be nil.
func NewSyncProcessor(watchlists WatchlistService, users repository.UserRepository, archive repository.SnapshotArchive) *SyncProcessor {
	return &SyncProcessor{watchlists: watchlists, users: users, archive: archive}
}

// Process refreshes the user's watchlist. Archive failures are logged only.
//
// Deleted users are never written back: every write happens before the final
// existence check, and DeleteUser removes the user record before clearing the
// cache and archive, so whichever side runs last removes the data.
func (p *SyncProcessor) Process(ctx context.Context, userID string) error {
	if gone, err := p.userGone(ctx, userID); err != nil {
		return err
	} else if gone {
		slog.Info("skipping refresh for deleted user", "user_id", userID)
		return nil
	}

	snapshot, err := p.watchlists.Refresh(ctx, userID)
	if err != nil {
		return err
	}
	p.archiveSnapshot(ctx, userID, snapshot)

	gone, err := p.userGone(ctx, userID)
	if err != nil {
		slog.Warn("failed to recheck user after refresh", "user_id", userID, "error", err)
		return nil
	}
	if gone {
		slog.Info("user deleted during refresh, discarding result", "user_id", userID)
		p.discard(ctx, userID)
	}
	return nil
}

func (p *SyncProcessor) userGone(ctx context.Context, userID string) (bool, error) {
	_, err := p.users.GetByID(ctx, userID)
	switch {
	case err == nil:
		return false, nil
	case errors.Is(err, repository.ErrUserNotFound):
		return true, nil
	default:
		return false, fmt.Errorf("lookup user: %w", err)
	}
}

func (p *SyncProcessor) archiveSnapshot(ctx context.Context, userID string, snapshot *model.WatchlistSnapshot) {
	if p.archive == nil {
		return
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		slog.Warn("failed to encode snapshot for archive", "user_id", userID, "error", err)
		return
	}
	if err := p.archive.Put(ctx, userID, data); err != nil {
		slog.Warn("failed to archive snapshot", "user_id", userID, "error", err)
	}
}

func (p *SyncProcessor) discard(ctx context.Context, userID string) {
	p.watchlists.Invalidate(ctx, userID)
	if p.archive == nil {
		return
	}
	if err := p.archive.Delete(ctx, userID); err != nil {
		slog.Warn("failed to delete archived snapshot", "user_id", userID, "error", err)
	}
}
