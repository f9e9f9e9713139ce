package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hszk-dev/imdb-watchlist/internal/domain/model"
	"github.com/hszk-dev/imdb-watchlist/internal/domain/repository"
)

// DBTX is an interface that abstracts pgxpool.Pool and pgx.Tx for testability.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

const userColumns = `user_id, is_active, last_activity_at, sort_option, created_at, updated_at`

// UserRepository implements repository.UserRepository using PostgreSQL.
type UserRepository struct {
	db DBTX
}

var _ repository.UserRepository = (*UserRepository)(nil)

// NewUserRepository creates a new UserRepository instance.
func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

// Ensure upserts the user and marks it active. The stored sort option is preserved.
func (r *UserRepository) Ensure(ctx context.Context, userID string, now time.Time) (*model.User, error) {
	const query = `
		INSERT INTO users (user_id, is_active, last_activity_at, sort_option, created_at, updated_at)
		VALUES ($1, TRUE, $2, $3, $2, $2)
		ON CONFLICT (user_id) DO UPDATE
		SET is_active = TRUE, last_activity_at = EXCLUDED.last_activity_at, updated_at = EXCLUDED.updated_at
		RETURNING ` + userColumns

	user, err := scanUser(r.db.QueryRow(ctx, query, userID, now, model.DefaultSortSpec.String()))
	if err != nil {
		return nil, fmt.Errorf("failed to ensure user: %w", err)
	}
	return user, nil
}

// GetByID retrieves a user by IMDb identifier.
func (r *UserRepository) GetByID(ctx context.Context, userID string) (*model.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE user_id = $1`

	user, err := scanUser(r.db.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user by ID: %w", err)
	}
	return user, nil
}

// UpdateSortOption persists the preferred sort option.
func (r *UserRepository) UpdateSortOption(ctx context.Context, userID, sortOption string) error {
	const query = `
		UPDATE users
		SET sort_option = $2, updated_at = $3
		WHERE user_id = $1
	`

	tag, err := r.db.Exec(ctx, query, userID, sortOption, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update sort option: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrUserNotFound
	}
	return nil
}

// ListActive returns active user identifiers ordered by most recent activity.
func (r *UserRepository) ListActive(ctx context.Context) ([]string, error) {
	const query = `
		SELECT user_id
		FROM users
		WHERE is_active
		ORDER BY last_activity_at DESC
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query active users: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user ID: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}
	return ids, nil
}

// DeactivateIdle clears the active flag of users whose last activity is before the cutoff.
func (r *UserRepository) DeactivateIdle(ctx context.Context, before time.Time) (int64, error) {
	const query = `
		UPDATE users
		SET is_active = FALSE, updated_at = NOW()
		WHERE is_active AND last_activity_at < $1
	`

	tag, err := r.db.Exec(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate idle users: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Delete removes the user row.
func (r *UserRepository) Delete(ctx context.Context, userID string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM users WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrUserNotFound
	}
	return nil
}

// Counts returns total and active user counts.
func (r *UserRepository) Counts(ctx context.Context) (repository.UserCounts, error) {
	const query = `SELECT COUNT(*), COUNT(*) FILTER (WHERE is_active) FROM users`

	var c repository.UserCounts
	if err := r.db.QueryRow(ctx, query).Scan(&c.Total, &c.Active); err != nil {
		return repository.UserCounts{}, fmt.Errorf("failed to count users: %w", err)
	}
	return c, nil
}

// Ping verifies the database connection is alive.
func (r *UserRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	err := row.Scan(
		&u.ID,
		&u.IsActive,
		&u.LastActivityAt,
		&u.SortOption,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}
