package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hszk-dev/imdb-watchlist/internal/domain/repository"
)

// ReportKey is where sync workers publish their queue report.
const ReportKey = "jobqueue:report"

// ErrNoReport means no worker has published a report that is still fresh.
var ErrNoReport = errors.New("no job queue report")

// Report is a point-in-time view of one queue.
type Report struct {
	Source         string          `json:"source"`
	Stats          Stats           `json:"stats"`
	RecentFailures []FailureRecord `json:"recentFailures"`
	ReportedAt     time.Time       `json:"reportedAt"`
}

// Report returns the queue's own counters.
func (q *Queue) Report(context.Context) (Report, error) {
	return Report{
		Source:         "local",
		Stats:          q.Stats(),
		RecentFailures: q.RecentFailures(),
		ReportedAt:     q.now(),
	}, nil
}

// Reporter publishes a queue's report to a shared store so processes without
// a queue of their own can show it. With several workers the latest write wins.
type Reporter struct {
	queue    *Queue
	store    repository.KeyValueStore
	source   string
	interval time.Duration
}

func NewReporter(q *Queue, store repository.KeyValueStore, source string, interval time.Duration) *Reporter {
	return &Reporter{queue: q, store: store, source: source, interval: interval}
}

// Run publishes at once and then every interval until ctx is cancelled.
// Reports expire after three intervals so a stopped worker stops showing up.
func (r *Reporter) Run(ctx context.Context) {
	_ = r.Publish(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = r.Publish(ctx)
		}
	}
}

func (r *Reporter) Publish(ctx context.Context) error {
	report, _ := r.queue.Report(ctx)
	report.Source = r.source

	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode job queue report: %w", err)
	}
	if err := r.store.Set(ctx, ReportKey, data, 3*r.interval); err != nil {
		slog.Warn("failed to publish job queue report", "source", r.source, "error", err)
		return err
	}
	return nil
}

// StoreReports reads the report published by a Reporter.
type StoreReports struct {
	store repository.KeyValueStore
}

func NewStoreReports(store repository.KeyValueStore) *StoreReports {
	return &StoreReports{store: store}
}

func (s *StoreReports) Report(ctx context.Context) (Report, error) {
	data, err := s.store.Get(ctx, ReportKey)
	if err != nil {
		return Report{}, fmt.Errorf("read job queue report: %w", err)
	}
	if data == nil {
		return Report{}, ErrNoReport
	}

	var report Report
	if err := json.Unmarshal(data, &report); err != nil {
		return Report{}, fmt.Errorf("decode job queue report: %w", err)
	}
	return report, nil
}
