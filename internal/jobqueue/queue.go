// Package jobqueue runs background watchlist refreshes with retries and backoff.
//
// Jobs move waiting -> active -> completed, or back to waiting with a readyAt in
// the future when an attempt fails and attempts remain, or to failed once the
// attempt budget is spent. There is at most one waiting or active job per user.
package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/hszk-dev/imdb-watchlist/internal/domain/model"
	"github.com/hszk-dev/imdb-watchlist/internal/infrastructure/metrics"
)

// ErrQueueClosed is returned by Enqueue after Stop.
var ErrQueueClosed = errors.New("job queue closed")

// Processor refreshes one user. It must honour ctx cancellation.
type Processor func(ctx context.Context, userID string) error

// Config controls worker count, retries and timeouts.
type Config struct {
	Concurrency       int
	MaxAttempts       int
	Backoff           model.BackoffPolicy
	AttemptTimeout    time.Duration
	PollInterval      time.Duration
	MaxRecentFailures int
}

// DefaultConfig returns one worker, three attempts and exponential backoff from 30s.
func DefaultConfig() Config {
	return Config{
		Concurrency:       1,
		MaxAttempts:       3,
		Backoff:           model.BackoffPolicy{Kind: model.BackoffExponential, Base: 30 * time.Second},
		AttemptTimeout:    30 * time.Second,
		PollInterval:      time.Second,
		MaxRecentFailures: 50,
	}
}

// EventKind identifies a job lifecycle event.
type EventKind string

const (
	EventEnqueued  EventKind = "enqueued"
	EventActive    EventKind = "active"
	EventRetry     EventKind = "retry"
	EventCompleted EventKind = "completed"
	EventFailed    EventKind = "failed"
	EventCancelled EventKind = "cancelled"
)

// Event is delivered to observers after each state change. Job is a copy.
type Event struct {
	Kind EventKind
	Job  model.SyncJob
	Err  error
}

// Observer receives lifecycle events. It is called without queue locks held and
// must not block for long.
type Observer func(Event)

// Stats are point-in-time job counts. Delayed jobs are waiting with a future readyAt.
type Stats struct {
	Waiting   int   `json:"waiting"`
	Delayed   int   `json:"delayed"`
	Active    int   `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// FailureRecord describes a job that exhausted its attempts.
type FailureRecord struct {
	JobID    string    `json:"jobId"`
	UserID   string    `json:"userId"`
	Attempts int       `json:"attempts"`
	Error    string    `json:"error"`
	FailedAt time.Time `json:"failedAt"`
}

// Queue is an in-process delay queue drained by a fixed worker pool.
type Queue struct {
	cfg     Config
	process Processor
	now     func() time.Time

	mu        sync.Mutex
	waiting   []*model.SyncJob
	byUser    map[string]*model.SyncJob
	active    int
	completed int64
	failed    int64
	recent    []FailureRecord
	cancelled map[*model.SyncJob]struct{}
	observers []Observer
	closed    bool

	wake   chan struct{}
	cancel context.CancelFunc
	wg     conc.WaitGroup
}

// New creates a queue. Call Start to begin processing.
func New(cfg Config, process Processor) *Queue {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.MaxRecentFailures <= 0 {
		cfg.MaxRecentFailures = 50
	}
	return &Queue{
		cfg:       cfg,
		process:   process,
		now:       time.Now,
		byUser:    make(map[string]*model.SyncJob),
		cancelled: make(map[*model.SyncJob]struct{}),
		wake:      make(chan struct{}, cfg.Concurrency),
	}
}

// Subscribe registers an observer. Must be called before Start.
func (q *Queue) Subscribe(o Observer) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.observers = append(q.observers, o)
}

// Start launches the workers. They stop when ctx is cancelled or Stop is called.
func (q *Queue) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	q.mu.Lock()
	q.cancel = cancel
	q.mu.Unlock()

	for i := 0; i < q.cfg.Concurrency; i++ {
		q.wg.Go(func() {
			q.worker(ctx)
		})
	}
	slog.Info("job queue started", "concurrency", q.cfg.Concurrency, "max_attempts", q.cfg.MaxAttempts)
}

// Stop stops claiming new jobs and waits for in-flight attempts until ctx expires.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	q.closed = true
	cancel := q.cancel
	q.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("job queue shutdown: %w", ctx.Err())
	}
}

// Enqueue adds a refresh job for userID. If the user already has a waiting or
// active job, that job is returned and added is false.
func (q *Queue) Enqueue(userID string) (job model.SyncJob, added bool, err error) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return model.SyncJob{}, false, ErrQueueClosed
	}
	if existing, ok := q.byUser[userID]; ok {
		j := *existing
		q.mu.Unlock()
		metrics.SyncJobsTotal.WithLabelValues(metrics.JobDeduplicated).Inc()
		return j, false, nil
	}

	created, err := model.NewSyncJob(userID, q.cfg.MaxAttempts, q.cfg.Backoff, q.now())
	if err != nil {
		q.mu.Unlock()
		return model.SyncJob{}, false, err
	}
	q.waiting = append(q.waiting, created)
	q.byUser[userID] = created
	j := *created
	observers := q.observers
	q.mu.Unlock()

	metrics.SyncJobsTotal.WithLabelValues(metrics.JobEnqueued).Inc()
	q.signal()
	notify(observers, Event{Kind: EventEnqueued, Job: j})
	return j, true, nil
}

// Cancel drops the user's waiting or active job. An active attempt runs to the
// end but its result is discarded and it is never retried. The user may be
// enqueued again straight away.
func (q *Queue) Cancel(userID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.byUser[userID]
	if !ok {
		return false
	}
	delete(q.byUser, userID)
	if job.Status == model.JobStatusActive {
		q.cancelled[job] = struct{}{}
		return true
	}
	q.waiting = slices.DeleteFunc(q.waiting, func(j *model.SyncJob) bool { return j == job })
	return true
}

// Job returns a copy of the user's waiting or active job.
func (q *Queue) Job(userID string) (model.SyncJob, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.byUser[userID]
	if !ok {
		return model.SyncJob{}, false
	}
	return *job, true
}

// Stats returns current counts.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	s := Stats{Active: q.active, Completed: q.completed, Failed: q.failed}
	for _, j := range q.waiting {
		if j.IsReady(now) {
			s.Waiting++
		} else {
			s.Delayed++
		}
	}
	return s
}

// RecentFailures returns the most recent failed jobs, oldest first.
func (q *Queue) RecentFailures() []FailureRecord {
	q.mu.Lock()
	defer q.mu.Unlock()
	return slices.Clone(q.recent)
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Queue) worker(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		job, wait := q.claim()
		if job == nil {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-q.wake:
				timer.Stop()
			case <-timer.C:
			}
			continue
		}

		q.run(ctx, job)
	}
}

// claim moves the first ready waiting job to active. When nothing is ready it
// returns how long to sleep before the next delayed job becomes ready.
func (q *Queue) claim() (*model.SyncJob, time.Duration) {
	q.mu.Lock()

	now := q.now()
	wait := q.cfg.PollInterval
	for i, j := range q.waiting {
		if !j.IsReady(now) {
			wait = min(wait, j.ReadyAt.Sub(now))
			continue
		}
		q.waiting = slices.Delete(q.waiting, i, i+1)
		transition(j, model.JobStatusActive)
		j.Attempt++
		q.active++
		snapshot := *j
		observers := q.observers
		q.mu.Unlock()

		notify(observers, Event{Kind: EventActive, Job: snapshot})
		return j, 0
	}
	q.mu.Unlock()
	return nil, max(wait, time.Millisecond)
}

func (q *Queue) run(ctx context.Context, job *model.SyncJob) {
	// In-flight attempts are allowed to finish during shutdown, bounded by the attempt timeout.
	attemptCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), q.cfg.AttemptTimeout)
	err := q.process(attemptCtx, job.UserID)
	cancel()

	q.finish(job, err)
}

func (q *Queue) finish(job *model.SyncJob, err error) {
	q.mu.Lock()
	q.active--

	if _, ok := q.cancelled[job]; ok {
		delete(q.cancelled, job)
		observers := q.observers
		q.mu.Unlock()

		metrics.SyncJobsTotal.WithLabelValues(metrics.JobCancelled).Inc()
		slog.Info("sync job cancelled while active", "user_id", job.UserID, "job_id", job.ID)
		notify(observers, Event{Kind: EventCancelled, Job: *job, Err: err})
		return
	}

	var ev Event
	switch {
	case err == nil:
		transition(job, model.JobStatusCompleted)
		job.LastError = ""
		delete(q.byUser, job.UserID)
		q.completed++
		ev = Event{Kind: EventCompleted, Job: *job}

	case job.CanRetry():
		transition(job, model.JobStatusWaiting)
		job.LastError = err.Error()
		job.ReadyAt = q.now().Add(job.Backoff.Delay(job.Attempt))
		q.waiting = append(q.waiting, job)
		ev = Event{Kind: EventRetry, Job: *job, Err: err}

	default:
		transition(job, model.JobStatusFailed)
		job.LastError = err.Error()
		delete(q.byUser, job.UserID)
		q.failed++
		q.recent = append(q.recent, FailureRecord{
			JobID:    job.ID.String(),
			UserID:   job.UserID,
			Attempts: job.Attempt,
			Error:    job.LastError,
			FailedAt: q.now(),
		})
		if over := len(q.recent) - q.cfg.MaxRecentFailures; over > 0 {
			q.recent = slices.Delete(q.recent, 0, over)
		}
		ev = Event{Kind: EventFailed, Job: *job, Err: err}
	}
	observers := q.observers
	q.mu.Unlock()

	switch ev.Kind {
	case EventCompleted:
		metrics.SyncJobsTotal.WithLabelValues(metrics.JobCompleted).Inc()
		slog.Debug("sync job completed", "user_id", job.UserID, "attempt", ev.Job.Attempt)
	case EventRetry:
		metrics.SyncJobsTotal.WithLabelValues(metrics.JobRetried).Inc()
		q.signal()
		slog.Warn("sync job attempt failed, retrying",
			"user_id", ev.Job.UserID,
			"attempt", ev.Job.Attempt,
			"max_attempts", ev.Job.MaxAttempts,
			"ready_at", ev.Job.ReadyAt,
			"error", err,
		)
	case EventFailed:
		metrics.SyncJobsTotal.WithLabelValues(metrics.JobFailed).Inc()
		slog.Error("sync job failed",
			"user_id", ev.Job.UserID,
			"job_id", ev.Job.ID,
			"attempts", ev.Job.Attempt,
			"error", err,
		)
	}
	notify(observers, ev)
}

// transition applies a status change. The queue only requests legal moves, so
// a rejection means its bookkeeping is broken.
func transition(job *model.SyncJob, next model.JobStatus) {
	if err := job.TransitionTo(next); err != nil {
		slog.Error("illegal sync job transition",
			"user_id", job.UserID,
			"job_id", job.ID,
			"from", job.Status,
			"to", next,
			"error", err,
		)
	}
}

func notify(observers []Observer, ev Event) {
	for _, o := range observers {
		o(ev)
	}
}
