package bootstrap

import (
	"context"
	"slices"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/hszk-dev/imdb-watchlist/internal/config"
	"github.com/hszk-dev/imdb-watchlist/internal/domain/model"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.Storage.Primary = "memory"
	cfg.Storage.FallbackEnabled = true
	cfg.Storage.HealthInterval = time.Second
	cfg.Redis.DialTimeout = 200 * time.Millisecond
	cfg.Redis.ReadTimeout = 200 * time.Millisecond
	cfg.Redis.WriteTimeout = 200 * time.Millisecond
	return cfg
}

func splitAddr(t *testing.T, mr *miniredis.Miniredis) (string, int) {
	t.Helper()
	port, err := strconv.Atoi(mr.Port())
	if err != nil {
		t.Fatalf("parse miniredis port: %v", err)
	}
	return mr.Host(), port
}

func TestOpenStorage_Memory(t *testing.T) {
	ctx := context.Background()
	s, err := OpenStorage(ctx, testConfig(t))
	if err != nil {
		t.Fatalf("OpenStorage failed: %v", err)
	}
	defer s.Close()

	if s.Redis != nil {
		t.Error("Redis set for memory primary")
	}
	if err := s.Set(ctx, "watchlist:ur12345678", []byte("{}"), time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	got, err := s.Get(ctx, "watchlist:ur12345678")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != "{}" {
		t.Errorf("Get = %q, want {}", got)
	}

	status := s.HealthCheck(ctx)
	if !status.PrimaryUp || status.FallbackActive {
		t.Errorf("status = %+v, want primary up without fallback", status)
	}
}

func TestOpenStorage_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.Storage.Primary = "redis"
	cfg.Redis.Host, cfg.Redis.Port = splitAddr(t, mr)

	ctx := context.Background()
	s, err := OpenStorage(ctx, cfg)
	if err != nil {
		t.Fatalf("OpenStorage failed: %v", err)
	}
	defer s.Close()

	if s.Redis == nil {
		t.Fatal("Redis not set for redis primary")
	}
	if err := s.Set(ctx, "watchlist:ur12345678", []byte("{}"), time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if !mr.Exists("watchlist:ur12345678") {
		t.Error("key not written to Redis")
	}
}

func TestOpenStorage_RedisDown(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Primary = "redis"
	cfg.Redis.Host = "127.0.0.1"
	cfg.Redis.Port = 1

	t.Run("fallback enabled starts degraded", func(t *testing.T) {
		s, err := OpenStorage(context.Background(), cfg)
		if err != nil {
			t.Fatalf("OpenStorage failed: %v", err)
		}
		defer s.Close()
		if s.Redis == nil {
			t.Error("Redis not set while degraded")
		}
	})

	t.Run("fallback disabled fails", func(t *testing.T) {
		cfg.Storage.FallbackEnabled = false
		if _, err := OpenStorage(context.Background(), cfg); err == nil {
			t.Error("OpenStorage succeeded with Redis down and no fallback")
		}
	})
}

func TestOpenUsers_Memory(t *testing.T) {
	cfg := testConfig(t)
	users, err := OpenUsers(context.Background(), cfg)
	if err != nil {
		t.Fatalf("OpenUsers failed: %v", err)
	}
	defer users.Close()

	ctx := context.Background()
	if _, err := users.Ensure(ctx, "ur12345678", time.Now()); err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	active, err := users.ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive failed: %v", err)
	}
	if !slices.Equal(active, []string{"ur12345678"}) {
		t.Errorf("active = %v, want [ur12345678]", active)
	}
	if err := users.Ping(ctx); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestOpenArchive_Disabled(t *testing.T) {
	client, err := OpenArchive(context.Background(), testConfig(t))
	if err != nil {
		t.Fatalf("OpenArchive failed: %v", err)
	}
	if client != nil {
		t.Error("client created while MinIO disabled")
	}
	if SnapshotArchive(client) != nil {
		t.Error("SnapshotArchive returned a typed nil")
	}
}

func TestJobQueueConfig(t *testing.T) {
	qc := JobQueueConfig(config.SyncConfig{
		Concurrency:    4,
		MaxAttempts:    5,
		Backoff:        "fixed",
		BackoffBase:    10 * time.Second,
		AttemptTimeout: time.Minute,
	})

	if qc.Concurrency != 4 || qc.MaxAttempts != 5 {
		t.Errorf("concurrency/attempts = %d/%d, want 4/5", qc.Concurrency, qc.MaxAttempts)
	}
	if want := (model.BackoffPolicy{Kind: model.BackoffFixed, Base: 10 * time.Second}); qc.Backoff != want {
		t.Errorf("backoff = %+v, want %+v", qc.Backoff, want)
	}
	if qc.AttemptTimeout != time.Minute {
		t.Errorf("attempt timeout = %v, want 1m", qc.AttemptTimeout)
	}
	if qc.PollInterval != time.Second {
		t.Errorf("poll interval = %v, want default 1s", qc.PollInterval)
	}
}

func TestIMDbConfig(t *testing.T) {
	fc := IMDbConfig(config.IMDbConfig{
		GraphQLURL:        "http://localhost:8081/graphql",
		OperationName:     "WatchListPageRefiner",
		PageSize:          100,
		MaxPages:          3,
		RequestsPerSecond: 5,
		Burst:             1,
		UserAgent:         "test",
	})

	if fc.GraphQLURL != "http://localhost:8081/graphql" {
		t.Errorf("GraphQLURL = %q", fc.GraphQLURL)
	}
	if fc.PageSize != 100 || fc.MaxPages != 3 {
		t.Errorf("paging = %d/%d, want 100/3", fc.PageSize, fc.MaxPages)
	}
	if fc.RetryDelay != 500*time.Millisecond {
		t.Errorf("RetryDelay = %v, want default 500ms", fc.RetryDelay)
	}
}
