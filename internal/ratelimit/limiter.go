// Package ratelimit provides fixed-window request limiting per client.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hszk-dev/imdb-watchlist/internal/domain/repository"
	"github.com/hszk-dev/imdb-watchlist/internal/infrastructure/metrics"
)

// Limiter decides whether a client may make another request in the current window.
type Limiter interface {
	Allow(ctx context.Context, clientID string) bool
	// Window is the length of one counting window, used for Retry-After.
	Window() time.Duration
}

type window struct {
	start time.Time
	count int
}

// FixedWindow counts requests per client in memory.
type FixedWindow struct {
	max    int
	length time.Duration
	now    func() time.Time

	mu      sync.Mutex
	clients map[string]*window
}

var _ Limiter = (*FixedWindow)(nil)

// NewFixedWindow allows max requests per client in each window of the given length.
func NewFixedWindow(max int, length time.Duration) *FixedWindow {
	return &FixedWindow{
		max:     max,
		length:  length,
		now:     time.Now,
		clients: make(map[string]*window),
	}
}

// Allow records a request and reports whether it is within the limit.
func (l *FixedWindow) Allow(_ context.Context, clientID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.clients[clientID]
	if !ok || now.Sub(w.start) >= l.length {
		w = &window{start: now}
		l.clients[clientID] = w
	}
	w.count++

	if w.count > l.max {
		metrics.RateLimitRejectedTotal.Inc()
		return false
	}
	return true
}

func (l *FixedWindow) Window() time.Duration {
	return l.length
}

// Sweep drops clients whose window has elapsed and returns how many were removed.
func (l *FixedWindow) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for id, w := range l.clients {
		if now.Sub(w.start) >= l.length {
			delete(l.clients, id)
			removed++
		}
	}
	return removed
}

// RunSweeper calls Sweep every interval until ctx is cancelled.
func (l *FixedWindow) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := l.Sweep(); n > 0 {
				slog.Debug("rate limiter swept idle clients", "removed", n)
			}
		}
	}
}

// StoreWindow shares counters through the key-value store so that several
// instances enforce one limit. Store failures allow the request.
type StoreWindow struct {
	store  repository.KeyValueStore
	max    int
	length time.Duration
	now    func() time.Time
}

var _ Limiter = (*StoreWindow)(nil)

// NewStoreWindow allows max requests per client in each window of the given length.
func NewStoreWindow(store repository.KeyValueStore, max int, length time.Duration) *StoreWindow {
	return &StoreWindow{
		store:  store,
		max:    max,
		length: length,
		now:    time.Now,
	}
}

// Allow increments the client's counter for the current window.
func (l *StoreWindow) Allow(ctx context.Context, clientID string) bool {
	index := l.now().UnixNano() / int64(l.length)
	key := fmt.Sprintf("ratelimit:%s:%d", clientID, index)

	count, err := l.store.Increment(ctx, key, l.length)
	if err != nil {
		slog.Warn("rate limit store unavailable, allowing request",
			"client", clientID,
			"error", err,
		)
		return true
	}

	if count > int64(l.max) {
		metrics.RateLimitRejectedTotal.Inc()
		return false
	}
	return true
}

func (l *StoreWindow) Window() time.Duration {
	return l.length
}
