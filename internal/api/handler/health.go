package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hszk-dev/imdb-watchlist/internal/domain/repository"
	"github.com/hszk-dev/imdb-watchlist/internal/infrastructure/cache"
	"github.com/hszk-dev/imdb-watchlist/internal/jobqueue"
	"github.com/hszk-dev/imdb-watchlist/internal/usecase"
)

const (
	statusOK        = "ok"
	statusDegraded  = "degraded"
	statusUnhealthy = "unhealthy"
)

// StorageHealth reports which key-value backend is serving.
type StorageHealth interface {
	HealthCheck(ctx context.Context) cache.HealthStatus
}

// Pinger is a dependency whose failure degrades but does not break the service.
type Pinger interface {
	Ping(ctx context.Context) error
}

// QueueInspector exposes job queue counters, either from the local queue or
// from the report a sync worker published.
type QueueInspector interface {
	Report(ctx context.Context) (jobqueue.Report, error)
}

// RedisInspector exposes Redis pool statistics.
type RedisInspector interface {
	Stats(ctx context.Context) (cache.Stats, error)
}

type HealthResponse struct {
	Status  string             `json:"status"`
	Storage cache.HealthStatus `json:"storage"`
	Checks  map[string]string  `json:"checks,omitempty"`
}

type StatsResponse struct {
	Users          repository.UserCounts    `json:"users"`
	Storage        cache.HealthStatus       `json:"storage"`
	Queue          *jobqueue.Stats          `json:"queue,omitempty"`
	QueueSource    string                   `json:"queueSource,omitempty"`
	QueueReportAt  *time.Time               `json:"queueReportedAt,omitempty"`
	QueueError     string                   `json:"queueError,omitempty"`
	RecentFailures []jobqueue.FailureRecord `json:"recentFailures,omitempty"`
}

// OpsHandler serves health and statistics endpoints.
type OpsHandler struct {
	storage StorageHealth
	users   usecase.UserService
	queue   QueueInspector
	redis   RedisInspector
	checks  map[string]Pinger
}

// NewOpsHandler creates a new OpsHandler. queue and redis may be nil when the
// process runs without a local job queue or without Redis.
func NewOpsHandler(
	storage StorageHealth,
	users usecase.UserService,
	queue QueueInspector,
	redis RedisInspector,
	checks map[string]Pinger,
) *OpsHandler {
	return &OpsHandler{
		storage: storage,
		users:   users,
		queue:   queue,
		redis:   redis,
		checks:  checks,
	}
}

// Health handles GET /health
// 200 when everything is up, 207 when running on the fallback store or a
// secondary dependency is down, 503 when no store can serve.
func (h *OpsHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	storage := h.storage.HealthCheck(ctx)
	resp := HealthResponse{Status: statusOK, Storage: storage}
	switch {
	case !storage.PrimaryUp && !storage.FallbackEnabled:
		resp.Status = statusUnhealthy
	case storage.FallbackActive:
		resp.Status = statusDegraded
	}

	if len(h.checks) > 0 {
		resp.Checks = make(map[string]string, len(h.checks))
		for name, p := range h.checks {
			if err := p.Ping(ctx); err != nil {
				resp.Checks[name] = err.Error()
				if resp.Status == statusOK {
					resp.Status = statusDegraded
				}
				continue
			}
			resp.Checks[name] = statusOK
		}
	}

	status := http.StatusOK
	switch resp.Status {
	case statusDegraded:
		status = http.StatusMultiStatus
	case statusUnhealthy:
		status = http.StatusServiceUnavailable
	}
	JSON(w, status, resp)
}

// Stats handles GET /api/stats
func (h *OpsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.users.Stats(r.Context())
	if err != nil {
		serviceError(w, r, err)
		return
	}

	resp := StatsResponse{
		Users:   counts,
		Storage: h.storage.HealthCheck(r.Context()),
	}
	if h.queue != nil {
		report, err := h.queue.Report(r.Context())
		switch {
		case err == nil:
			resp.Queue = &report.Stats
			resp.QueueSource = report.Source
			resp.QueueReportAt = &report.ReportedAt
			resp.RecentFailures = report.RecentFailures
		case errors.Is(err, jobqueue.ErrNoReport):
			resp.QueueError = "no recent report from sync workers"
		default:
			slog.Warn("failed to read job queue report", "error", err)
			resp.QueueError = "job queue report unavailable"
		}
	}
	JSON(w, http.StatusOK, resp)
}

// RedisStats handles GET /api/redis-stats
func (h *OpsHandler) RedisStats(w http.ResponseWriter, r *http.Request) {
	if h.redis == nil {
		Error(w, http.StatusNotFound, "redis_disabled", "Redis is not configured")
		return
	}

	stats, err := h.redis.Stats(r.Context())
	if err != nil {
		serviceError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, stats)
}
