// Package memory provides in-process repository implementations for
// deployments without PostgreSQL.
package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/hszk-dev/imdb-watchlist/internal/domain/model"
	"github.com/hszk-dev/imdb-watchlist/internal/domain/repository"
)

// UserRepository implements repository.UserRepository with a guarded map.
type UserRepository struct {
	mu    sync.RWMutex
	users map[string]model.User
}

var _ repository.UserRepository = (*UserRepository)(nil)

// NewUserRepository creates an empty in-memory user repository.
func NewUserRepository() *UserRepository {
	return &UserRepository{users: make(map[string]model.User)}
}

func (r *UserRepository) Ensure(_ context.Context, userID string, now time.Time) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[userID]
	if !ok {
		created, err := model.NewUser(userID, now)
		if err != nil {
			return nil, err
		}
		u = *created
	} else {
		u.Touch(now)
	}
	r.users[userID] = u
	return &u, nil
}

func (r *UserRepository) GetByID(_ context.Context, userID string) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[userID]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return &u, nil
}

func (r *UserRepository) UpdateSortOption(_ context.Context, userID, sortOption string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[userID]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.SortOption = sortOption
	u.UpdatedAt = time.Now()
	r.users[userID] = u
	return nil
}

// ListActive returns active users, most recently active first.
func (r *UserRepository) ListActive(context.Context) ([]string, error) {
	r.mu.RLock()
	active := make([]model.User, 0, len(r.users))
	for _, u := range r.users {
		if u.IsActive {
			active = append(active, u)
		}
	}
	r.mu.RUnlock()

	slices.SortFunc(active, func(a, b model.User) int {
		if c := b.LastActivityAt.Compare(a.LastActivityAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	ids := make([]string, len(active))
	for i, u := range active {
		ids[i] = u.ID
	}
	return ids, nil
}

func (r *UserRepository) DeactivateIdle(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for id, u := range r.users {
		if u.IsActive && u.LastActivityAt.Before(before) {
			u.IsActive = false
			r.users[id] = u
			n++
		}
	}
	return n, nil
}

func (r *UserRepository) Delete(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[userID]; !ok {
		return repository.ErrUserNotFound
	}
	delete(r.users, userID)
	return nil
}

func (r *UserRepository) Counts(context.Context) (repository.UserCounts, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c := repository.UserCounts{Total: int64(len(r.users))}
	for _, u := range r.users {
		if u.IsActive {
			c.Active++
		}
	}
	return c, nil
}

func (r *UserRepository) Ping(context.Context) error {
	return nil
}
