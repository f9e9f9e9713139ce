package repository

import (
	"context"

	"github.com/hszk-dev/imdb-watchlist/internal/domain/model"
)

// WatchlistFetcher retrieves a full watchlist snapshot from the upstream source.
// Items must be returned in the requested order; callers request the canonical
// "added_at-asc" order so that the cached order matches IMDb list order.
type WatchlistFetcher interface {
	// Fetch returns ErrWatchlistNotFound for unknown or private lists and
	// ErrFetchNetwork for transport failures and timeouts.
	Fetch(ctx context.Context, userID string, sort model.SortSpec) (*model.WatchlistSnapshot, error)
}
