package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hszk-dev/imdb-watchlist/internal/domain/model"
	"github.com/hszk-dev/imdb-watchlist/internal/domain/repository"
)

// RefreshTrigger requests an asynchronous watchlist refresh.
type RefreshTrigger interface {
	TriggerRefresh(ctx context.Context, userID, reason string) error
}

// JobCanceller removes pending refresh jobs for a user.
type JobCanceller interface {
	Cancel(userID string) bool
}

// UserService defines per-user configuration and lifecycle operations.
type UserService interface {
	// SetSortOption validates and persists the preferred sort, then triggers a refresh.
	// Returns model.ErrInvalidSortOption without touching the stored option when invalid.
	SetSortOption(ctx context.Context, userID, option string) (model.SortSpec, error)

	// DeleteUser removes the user and everything derived from it.
	DeleteUser(ctx context.Context, userID string) error

	// Stats returns user counts.
	Stats(ctx context.Context) (repository.UserCounts, error)
}

type userService struct {
	users      repository.UserRepository
	watchlists WatchlistService
	trigger    RefreshTrigger
	jobs       JobCanceller
	archive    repository.SnapshotArchive
	now        func() time.Time
}

// NewUserService creates a new UserService. jobs and archive may be nil when
// the deployment has no local queue or no snapshot archive.
func NewUserService(
	users repository.UserRepository,
	watchlists WatchlistService,
	trigger RefreshTrigger,
	jobs JobCanceller,
	archive repository.SnapshotArchive,
) UserService {
	return &userService{
		users:      users,
		watchlists: watchlists,
		trigger:    trigger,
		jobs:       jobs,
		archive:    archive,
		now:        time.Now,
	}
}

func (s *userService) SetSortOption(ctx context.Context, userID, option string) (model.SortSpec, error) {
	if err := model.ValidateUserID(userID); err != nil {
		return model.SortSpec{}, err
	}
	spec, err := model.ParseSortSpec(option)
	if err != nil {
		return model.SortSpec{}, err
	}

	if _, err := s.users.Ensure(ctx, userID, s.now()); err != nil {
		return model.SortSpec{}, err
	}
	if err := s.users.UpdateSortOption(ctx, userID, spec.String()); err != nil {
		return model.SortSpec{}, err
	}

	if err := s.trigger.TriggerRefresh(ctx, userID, "config"); err != nil {
		slog.Warn("failed to trigger refresh after config change",
			"user_id", userID,
			"error", err,
		)
	}

	slog.Info("sort option updated", "user_id", userID, "sort", spec.String())
	return spec, nil
}

// DeleteUser removes the user record first, then its queued jobs, cache entry
// and archived snapshot. A background refresh that finishes later sees the
// record gone and discards its own writes.
func (s *userService) DeleteUser(ctx context.Context, userID string) error {
	if err := model.ValidateUserID(userID); err != nil {
		return err
	}

	err := s.users.Delete(ctx, userID)
	if err != nil && !errors.Is(err, repository.ErrUserNotFound) {
		return err
	}

	if s.jobs != nil {
		s.jobs.Cancel(userID)
	}
	s.watchlists.Invalidate(ctx, userID)
	if s.archive != nil {
		if err := s.archive.Delete(ctx, userID); err != nil {
			slog.Warn("failed to delete archived snapshot",
				"user_id", userID,
				"error", err,
			)
		}
	}

	slog.Info("user deleted", "user_id", userID, "existed", err == nil)
	return err
}

func (s *userService) Stats(ctx context.Context) (repository.UserCounts, error) {
	return s.users.Counts(ctx)
}
