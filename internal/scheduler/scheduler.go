// Package scheduler periodically enqueues watchlist refreshes for active users.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/hszk-dev/imdb-watchlist/internal/domain/model"
	"github.com/hszk-dev/imdb-watchlist/internal/domain/repository"
)

// Enqueuer accepts refresh jobs. The job queue de-duplicates per user.
type Enqueuer interface {
	Enqueue(userID string) (model.SyncJob, bool, error)
}

// Config holds scheduler timing.
type Config struct {
	Interval      time.Duration
	InactiveAfter time.Duration
}

// Scheduler runs one sync pass at start and then every Interval.
type Scheduler struct {
	cfg   Config
	users repository.UserRepository
	queue Enqueuer
	now   func() time.Time
}

// New creates a scheduler.
func New(cfg Config, users repository.UserRepository, queue Enqueuer) *Scheduler {
	return &Scheduler{
		cfg:   cfg,
		users: users,
		queue: queue,
		now:   time.Now,
	}
}

// TickResult summarises one sync pass.
type TickResult struct {
	Deactivated int64
	Active      int
	Enqueued    int
}

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	slog.Info("sync scheduler started", "interval", s.cfg.Interval, "inactive_after", s.cfg.InactiveAfter)

	s.logTick(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("sync scheduler stopped")
			return
		case <-ticker.C:
			s.logTick(ctx)
		}
	}
}

func (s *Scheduler) logTick(ctx context.Context) {
	res, err := s.Tick(ctx)
	if err != nil {
		slog.Error("sync tick failed", "error", err)
		return
	}
	slog.Info("sync tick",
		"deactivated", res.Deactivated,
		"active_users", res.Active,
		"enqueued", res.Enqueued,
	)
}

// Tick deactivates idle users and enqueues a refresh for every active user.
func (s *Scheduler) Tick(ctx context.Context) (TickResult, error) {
	var res TickResult

	if s.cfg.InactiveAfter > 0 {
		n, err := s.users.DeactivateIdle(ctx, s.now().Add(-s.cfg.InactiveAfter))
		if err != nil {
			slog.Warn("failed to deactivate idle users", "error", err)
		}
		res.Deactivated = n
	}

	ids, err := s.users.ListActive(ctx)
	if err != nil {
		return res, err
	}
	res.Active = len(ids)

	for _, id := range ids {
		_, added, err := s.queue.Enqueue(id)
		if err != nil {
			slog.Warn("failed to enqueue sync job", "user_id", id, "error", err)
			continue
		}
		if added {
			res.Enqueued++
		}
	}
	return res, nil
}
