package repository

import (
	"context"
	"time"

	"github.com/hszk-dev/imdb-watchlist/internal/domain/model"
)

// UserCounts summarises the user table for operational endpoints.
type UserCounts struct {
	Total  int64 `json:"total"`
	Active int64 `json:"active"`
}

// UserRepository defines the interface for user persistence operations.
// Implementations should be provided by the infrastructure layer (e.g., PostgreSQL).
type UserRepository interface {
	// Ensure creates the user if absent and marks it active as of now.
	// Returns the stored record including the persisted sort option.
	Ensure(ctx context.Context, userID string, now time.Time) (*model.User, error)

	// GetByID retrieves a user by IMDb identifier.
	// Returns nil and ErrUserNotFound if the user does not exist.
	GetByID(ctx context.Context, userID string) (*model.User, error)

	// UpdateSortOption persists the preferred sort option.
	// Returns ErrUserNotFound if the user does not exist.
	UpdateSortOption(ctx context.Context, userID, sortOption string) error

	// ListActive returns the identifiers of all active users.
	ListActive(ctx context.Context) ([]string, error)

	// DeactivateIdle clears the active flag of users idle since before.
	// Returns the number of users deactivated.
	DeactivateIdle(ctx context.Context, before time.Time) (int64, error)

	// Delete removes the user record.
	// Returns ErrUserNotFound if the user does not exist.
	Delete(ctx context.Context, userID string) error

	// Counts returns total and active user counts.
	Counts(ctx context.Context) (UserCounts, error)

	// Ping verifies the repository backend is reachable.
	Ping(ctx context.Context) error
}
