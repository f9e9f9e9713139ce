package repository

import (
	"context"
	"time"
)

// RefreshRequest asks a sync worker to refresh one user's watchlist.
type RefreshRequest struct {
	UserID      string    `json:"user_id"`
	Reason      string    `json:"reason"`
	RequestedAt time.Time `json:"requested_at"`
}

// RefreshQueue defines the transport between API instances and sync workers.
// Implementations should be provided by the infrastructure layer (e.g., RabbitMQ).
type RefreshQueue interface {
	// PublishRefresh sends a refresh request to the workers.
	PublishRefresh(ctx context.Context, req RefreshRequest) error

	// ConsumeRefreshes delivers requests to handler until ctx is cancelled.
	// Used by the worker service.
	ConsumeRefreshes(ctx context.Context, handler func(req RefreshRequest) error) error

	// Close gracefully closes the connection to the message queue.
	Close() error
}
