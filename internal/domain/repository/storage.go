package repository

import (
	"context"
	"time"
)

// SnapshotArchive defines object storage for exported watchlist snapshots.
// Implementations should be provided by the infrastructure layer (e.g., MinIO, S3).
type SnapshotArchive interface {
	// Put stores the serialized snapshot for a user, replacing any previous one.
	Put(ctx context.Context, userID string, data []byte) error

	// PresignedURL creates a time-limited download URL for the user's snapshot.
	// Returns ErrObjectNotFound if nothing was archived for the user.
	PresignedURL(ctx context.Context, userID string, expiry time.Duration) (string, error)

	// Delete removes the user's archived snapshot. Missing objects are not an error.
	Delete(ctx context.Context, userID string) error
}
