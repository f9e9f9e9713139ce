package repository

import "errors"

var (
	// ErrUserNotFound is returned when a user record does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrWatchlistNotFound is returned when the IMDb watchlist does not exist or is private.
	ErrWatchlistNotFound = errors.New("watchlist not found")

	// ErrFetchNetwork is returned when the watchlist source is unreachable or times out.
	ErrFetchNetwork = errors.New("watchlist source unreachable")

	// ErrStorageUnavailable is returned when the key-value store cannot be reached.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrObjectNotFound is returned when an archived object does not exist.
	ErrObjectNotFound = errors.New("object not found")

	// ErrBucketNotFound is returned when the archive bucket does not exist.
	ErrBucketNotFound = errors.New("bucket not found")
)
