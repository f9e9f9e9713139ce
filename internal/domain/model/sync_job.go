package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the lifecycle state of a background sync job.
type JobStatus string

const (
	JobStatusWaiting   JobStatus = "waiting"
	JobStatusActive    JobStatus = "active"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Valid status transitions:
// waiting -> active -> completed
//              |  \-> failed
//              \----> waiting (retry)
var validJobTransitions = map[JobStatus][]JobStatus{
	JobStatusWaiting:   {JobStatusActive},
	JobStatusActive:    {JobStatusCompleted, JobStatusWaiting, JobStatusFailed},
	JobStatusCompleted: {},
	JobStatusFailed:    {},
}

func (s JobStatus) IsValid() bool {
	switch s {
	case JobStatusWaiting, JobStatusActive, JobStatusCompleted, JobStatusFailed:
		return true
	default:
		return false
	}
}

func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	allowed, exists := validJobTransitions[s]
	if !exists {
		return false
	}
	for _, status := range allowed {
		if status == next {
			return true
		}
	}
	return false
}

func (s JobStatus) String() string {
	return string(s)
}

// BackoffKind selects how retry delays grow.
type BackoffKind string

const (
	BackoffFixed       BackoffKind = "fixed"
	BackoffExponential BackoffKind = "exponential"
)

// BackoffPolicy computes the delay before a failed job becomes eligible again.
type BackoffPolicy struct {
	Kind BackoffKind
	Base time.Duration
}

// Delay returns the wait after the given (1-based) failed attempt.
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if p.Kind != BackoffExponential {
		return p.Base
	}
	// Cap the shift so absurd attempt counts cannot overflow.
	shift := min(attempt-1, 20)
	return p.Base * time.Duration(1<<shift)
}

var (
	ErrInvalidJobTransition = errors.New("invalid job status transition")
	ErrInvalidMaxAttempts   = errors.New("max attempts must be at least 1")
)

// SyncJob is one background refresh of a user's watchlist.
type SyncJob struct {
	ID          uuid.UUID
	UserID      string
	Attempt     int
	MaxAttempts int
	Backoff     BackoffPolicy
	Status      JobStatus
	EnqueuedAt  time.Time
	ReadyAt     time.Time
	LastError   string
}

// NewSyncJob creates a waiting job that is immediately eligible for processing.
func NewSyncJob(userID string, maxAttempts int, backoff BackoffPolicy, now time.Time) (*SyncJob, error) {
	if err := ValidateUserID(userID); err != nil {
		return nil, err
	}
	if maxAttempts < 1 {
		return nil, ErrInvalidMaxAttempts
	}
	return &SyncJob{
		ID:          uuid.New(),
		UserID:      userID,
		MaxAttempts: maxAttempts,
		Backoff:     backoff,
		Status:      JobStatusWaiting,
		EnqueuedAt:  now,
		ReadyAt:     now,
	}, nil
}

// TransitionTo attempts to change the job status.
func (j *SyncJob) TransitionTo(next JobStatus) error {
	if !next.IsValid() || !j.Status.CanTransitionTo(next) {
		return ErrInvalidJobTransition
	}
	j.Status = next
	return nil
}

// CanRetry reports whether another attempt is allowed after the current one failed.
func (j *SyncJob) CanRetry() bool {
	return j.Attempt < j.MaxAttempts
}

// IsReady reports whether a waiting job may be claimed at now.
func (j *SyncJob) IsReady(now time.Time) bool {
	return j.Status == JobStatusWaiting && !now.Before(j.ReadyAt)
}
