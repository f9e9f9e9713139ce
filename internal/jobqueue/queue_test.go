package jobqueue

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hszk-dev/imdb-watchlist/internal/domain/model"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Backoff = model.BackoffPolicy{Kind: model.BackoffFixed, Base: 5 * time.Millisecond}
	cfg.AttemptTimeout = time.Second
	cfg.PollInterval = 5 * time.Millisecond
	return cfg
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) observe(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) kinds() []EventKind {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]EventKind, len(l.events))
	for i, ev := range l.events {
		out[i] = ev.Kind
	}
	return out
}

func (l *eventLog) last() EventKind {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.events) == 0 {
		return ""
	}
	return l.events[len(l.events)-1].Kind
}

func startQueue(t *testing.T, q *Queue) {
	t.Helper()
	q.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = q.Stop(ctx)
	})
}

// waitFor polls cond until it holds or timeout elapses.
func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func mustEnqueue(t *testing.T, q *Queue, userID string) model.SyncJob {
	t.Helper()
	job, _, err := q.Enqueue(userID)
	if err != nil {
		t.Fatalf("Enqueue(%s) failed: %v", userID, err)
	}
	return job
}

func TestQueue_CompletesJob(t *testing.T) {
	var processed atomic.Int32
	q := New(testConfig(), func(ctx context.Context, userID string) error {
		if userID != "ur12345" {
			t.Errorf("processed %q, want ur12345", userID)
		}
		processed.Add(1)
		return nil
	})
	log := &eventLog{}
	q.Subscribe(log.observe)

	_, added, err := q.Enqueue("ur12345")
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if !added {
		t.Error("added = false, want true")
	}
	startQueue(t, q)

	waitFor(t, time.Second, "completion", func() bool { return log.last() == EventCompleted })
	want := []EventKind{EventEnqueued, EventActive, EventCompleted}
	if got := log.kinds(); !slices.Equal(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
	if processed.Load() != 1 {
		t.Errorf("processed %d times, want 1", processed.Load())
	}

	stats := q.Stats()
	if stats.Completed != 1 || stats.Waiting != 0 || stats.Active != 0 {
		t.Errorf("stats = %+v, want one completed and nothing pending", stats)
	}
	if _, ok := q.Job("ur12345"); ok {
		t.Error("finished job still tracked")
	}
}

func TestQueue_RetriesThenFails(t *testing.T) {
	var attempts atomic.Int32
	q := New(testConfig(), func(ctx context.Context, userID string) error {
		attempts.Add(1)
		return errors.New("upstream unavailable")
	})
	log := &eventLog{}
	q.Subscribe(log.observe)

	mustEnqueue(t, q, "ur12345")
	startQueue(t, q)

	waitFor(t, 2*time.Second, "failure", func() bool { return log.last() == EventFailed })

	want := []EventKind{
		EventEnqueued,
		EventActive, EventRetry,
		EventActive, EventRetry,
		EventActive, EventFailed,
	}
	if got := log.kinds(); !slices.Equal(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
	if attempts.Load() != 3 {
		t.Errorf("attempts = %d, want 3", attempts.Load())
	}

	stats := q.Stats()
	if stats.Failed != 1 || stats.Completed != 0 {
		t.Errorf("stats = %+v, want one failed", stats)
	}

	failures := q.RecentFailures()
	if len(failures) != 1 {
		t.Fatalf("recent failures = %d, want 1", len(failures))
	}
	f := failures[0]
	if f.UserID != "ur12345" || f.Attempts != 3 || f.Error != "upstream unavailable" {
		t.Errorf("failure = %+v", f)
	}
}

func TestQueue_RetryEventCarriesAttemptAndDelay(t *testing.T) {
	var attempts atomic.Int32
	q := New(testConfig(), func(ctx context.Context, userID string) error {
		if attempts.Add(1) == 1 {
			return errors.New("boom")
		}
		return nil
	})
	log := &eventLog{}
	q.Subscribe(log.observe)
	startQueue(t, q)

	mustEnqueue(t, q, "ur12345")
	waitFor(t, time.Second, "completion", func() bool { return log.last() == EventCompleted })

	log.mu.Lock()
	defer log.mu.Unlock()
	var retry *Event
	for i := range log.events {
		if log.events[i].Kind == EventRetry {
			retry = &log.events[i]
		}
	}
	if retry == nil {
		t.Fatal("no retry event observed")
	}
	if retry.Job.Attempt != 1 {
		t.Errorf("attempt = %d, want 1", retry.Job.Attempt)
	}
	if retry.Job.Status != model.JobStatusWaiting {
		t.Errorf("status = %s, want waiting", retry.Job.Status)
	}
	if retry.Job.LastError != "boom" {
		t.Errorf("last error = %q, want boom", retry.Job.LastError)
	}
	if !retry.Job.ReadyAt.After(retry.Job.EnqueuedAt) {
		t.Errorf("readyAt %v not after enqueuedAt %v", retry.Job.ReadyAt, retry.Job.EnqueuedAt)
	}
}

func TestQueue_DeduplicatesPerUser(t *testing.T) {
	release := make(chan struct{})
	var processed atomic.Int32
	q := New(testConfig(), func(ctx context.Context, userID string) error {
		processed.Add(1)
		<-release
		return nil
	})
	log := &eventLog{}
	q.Subscribe(log.observe)
	startQueue(t, q)

	first, added, err := q.Enqueue("ur12345")
	if err != nil || !added {
		t.Fatalf("Enqueue = added %v, err %v", added, err)
	}

	// Still deduplicated once the job is active.
	waitFor(t, time.Second, "active job", func() bool { return q.Stats().Active == 1 })
	second, added, err := q.Enqueue("ur12345")
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if added {
		t.Error("duplicate enqueue reported added")
	}
	if first.ID != second.ID {
		t.Errorf("job id = %s, want %s", second.ID, first.ID)
	}

	close(release)
	waitFor(t, time.Second, "completion", func() bool { return log.last() == EventCompleted })
	if processed.Load() != 1 {
		t.Errorf("processed %d times, want 1", processed.Load())
	}

	// A finished job no longer blocks a new one.
	if _, added, err := q.Enqueue("ur12345"); err != nil || !added {
		t.Errorf("Enqueue after completion = added %v, err %v", added, err)
	}
}

func TestQueue_Enqueue_InvalidUser(t *testing.T) {
	q := New(testConfig(), func(ctx context.Context, userID string) error { return nil })

	_, added, err := q.Enqueue("not-a-user")
	if !errors.Is(err, model.ErrInvalidIdentifier) {
		t.Errorf("error = %v, want ErrInvalidIdentifier", err)
	}
	if added {
		t.Error("invalid user reported added")
	}
}

func TestQueue_CancelWaiting(t *testing.T) {
	q := New(testConfig(), func(ctx context.Context, userID string) error { return nil })

	mustEnqueue(t, q, "ur12345")
	if q.Stats().Waiting != 1 {
		t.Fatalf("waiting = %d, want 1", q.Stats().Waiting)
	}

	if !q.Cancel("ur12345") {
		t.Error("first Cancel = false, want true")
	}
	if q.Cancel("ur12345") {
		t.Error("second Cancel = true, want false")
	}
	if q.Stats().Waiting != 0 {
		t.Errorf("waiting = %d after cancel, want 0", q.Stats().Waiting)
	}
}

func TestQueue_CancelActiveDiscardsRetry(t *testing.T) {
	cfg := testConfig()
	cfg.MaxAttempts = 3
	release := make(chan struct{})
	var attempts atomic.Int32
	q := New(cfg, func(ctx context.Context, userID string) error {
		attempts.Add(1)
		<-release
		return errors.New("upstream unavailable")
	})
	log := &eventLog{}
	q.Subscribe(log.observe)
	startQueue(t, q)

	mustEnqueue(t, q, "ur12345")
	waitFor(t, time.Second, "active job", func() bool { return q.Stats().Active == 1 })

	if !q.Cancel("ur12345") {
		t.Fatal("Cancel on active job = false, want true")
	}
	if _, ok := q.Job("ur12345"); ok {
		t.Error("cancelled job still tracked")
	}

	// A fresh job may be queued while the cancelled attempt is still running.
	replacement := mustEnqueue(t, q, "ur12345")

	close(release)
	waitFor(t, time.Second, "cancellation", func() bool { return slices.Contains(log.kinds(), EventCancelled) })
	waitFor(t, 2*time.Second, "replacement to fail", func() bool { return q.Stats().Failed == 1 })

	failures := q.RecentFailures()
	if len(failures) != 1 || failures[0].JobID != replacement.ID.String() {
		t.Errorf("failures = %+v, want only the replacement job %s", failures, replacement.ID)
	}
	// One attempt for the cancelled job plus three for the replacement.
	if attempts.Load() != 4 {
		t.Errorf("attempts = %d, want 4", attempts.Load())
	}
}

func TestQueue_StatsSeparatesDelayed(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	q := New(testConfig(), func(ctx context.Context, userID string) error { return nil })
	q.now = func() time.Time { return now }

	mustEnqueue(t, q, "ur10001")
	mustEnqueue(t, q, "ur10002")

	q.mu.Lock()
	q.byUser["ur10002"].ReadyAt = now.Add(time.Minute)
	q.mu.Unlock()

	stats := q.Stats()
	if stats.Waiting != 1 || stats.Delayed != 1 {
		t.Errorf("stats = %+v, want one waiting and one delayed", stats)
	}
}

func TestQueue_ProcessesInEnqueueOrder(t *testing.T) {
	var mu sync.Mutex
	var order []string
	q := New(testConfig(), func(ctx context.Context, userID string) error {
		mu.Lock()
		order = append(order, userID)
		mu.Unlock()
		return nil
	})

	for _, id := range []string{"ur10001", "ur10002", "ur10003"} {
		mustEnqueue(t, q, id)
	}
	startQueue(t, q)

	waitFor(t, time.Second, "three completions", func() bool { return q.Stats().Completed == 3 })
	mu.Lock()
	defer mu.Unlock()
	want := []string{"ur10001", "ur10002", "ur10003"}
	if !slices.Equal(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}
}

func TestQueue_AttemptTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.MaxAttempts = 1
	cfg.AttemptTimeout = 20 * time.Millisecond
	q := New(cfg, func(ctx context.Context, userID string) error {
		<-ctx.Done()
		return ctx.Err()
	})
	startQueue(t, q)

	mustEnqueue(t, q, "ur12345")

	waitFor(t, time.Second, "failure", func() bool { return q.Stats().Failed == 1 })
	failures := q.RecentFailures()
	if len(failures) != 1 {
		t.Fatalf("recent failures = %d, want 1", len(failures))
	}
	if !strings.Contains(failures[0].Error, "deadline exceeded") {
		t.Errorf("error = %q, want deadline exceeded", failures[0].Error)
	}
}

func TestQueue_RecentFailuresBounded(t *testing.T) {
	cfg := testConfig()
	cfg.MaxAttempts = 1
	cfg.MaxRecentFailures = 2
	q := New(cfg, func(ctx context.Context, userID string) error { return errors.New("nope") })
	startQueue(t, q)

	for _, id := range []string{"ur10001", "ur10002", "ur10003"} {
		mustEnqueue(t, q, id)
	}

	waitFor(t, time.Second, "three failures", func() bool { return q.Stats().Failed == 3 })
	failures := q.RecentFailures()
	if len(failures) != 2 {
		t.Fatalf("recent failures = %d, want 2", len(failures))
	}
	if failures[0].UserID != "ur10002" || failures[1].UserID != "ur10003" {
		t.Errorf("kept %s and %s, want ur10002 and ur10003", failures[0].UserID, failures[1].UserID)
	}
}

func TestQueue_StopRejectsEnqueue(t *testing.T) {
	q := New(testConfig(), func(ctx context.Context, userID string) error { return nil })
	q.Start(context.Background())

	if err := q.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if _, _, err := q.Enqueue("ur12345"); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("error = %v, want ErrQueueClosed", err)
	}
}

func TestQueue_StopWaitsForActive(t *testing.T) {
	started := make(chan struct{})
	var finished atomic.Bool
	q := New(testConfig(), func(ctx context.Context, userID string) error {
		close(started)
		time.Sleep(30 * time.Millisecond)
		finished.Store(true)
		return nil
	})
	q.Start(context.Background())

	mustEnqueue(t, q, "ur12345")
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := q.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if !finished.Load() {
		t.Error("Stop returned before the active attempt finished")
	}
}

func TestTransition_LogsIllegalMove(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	job, err := model.NewSyncJob("ur12345", 1, testConfig().Backoff, time.Now())
	if err != nil {
		t.Fatalf("NewSyncJob failed: %v", err)
	}

	transition(job, model.JobStatusCompleted)

	if job.Status != model.JobStatusWaiting {
		t.Errorf("status = %s, want waiting after rejected move", job.Status)
	}
	out := buf.String()
	if !strings.Contains(out, "illegal sync job transition") || !strings.Contains(out, "to=completed") {
		t.Errorf("log output = %q, want illegal transition record", out)
	}

	buf.Reset()
	transition(job, model.JobStatusActive)
	if job.Status != model.JobStatusActive {
		t.Errorf("status = %s, want active", job.Status)
	}
	if buf.Len() != 0 {
		t.Errorf("legal move logged %q", buf.String())
	}
}
