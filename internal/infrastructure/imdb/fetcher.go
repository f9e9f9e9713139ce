// Package imdb fetches public watchlists through IMDb's GraphQL persisted queries.
package imdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/avast/retry-go/v4"
	"golang.org/x/time/rate"

	"github.com/hszk-dev/imdb-watchlist/internal/domain/model"
	"github.com/hszk-dev/imdb-watchlist/internal/domain/repository"
	"github.com/hszk-dev/imdb-watchlist/internal/infrastructure/metrics"
)

// maxResponseBytes bounds a single GraphQL page.
const maxResponseBytes = 8 << 20

// Config holds configuration for the IMDb fetcher.
type Config struct {
	GraphQLURL        string
	OperationName     string
	PageSize          int
	MaxPages          int
	RequestsPerSecond float64
	Burst             int
	UserAgent         string
	RetryDelay        time.Duration
}

// DefaultConfig returns the production endpoint settings.
func DefaultConfig() Config {
	return Config{
		GraphQLURL:        "https://api.graphql.imdb.com/",
		OperationName:     "WatchListPageRefiner",
		PageSize:          250,
		MaxPages:          40,
		RequestsPerSecond: 2,
		Burst:             2,
		UserAgent:         "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0 Safari/537.36",
		RetryDelay:        500 * time.Millisecond,
	}
}

// Fetcher implements repository.WatchlistFetcher.
type Fetcher struct {
	cfg     Config
	client  *http.Client
	hashes  *HashSource
	limiter *rate.Limiter
}

var _ repository.WatchlistFetcher = (*Fetcher)(nil)

// NewFetcher creates a fetcher. Outbound requests share one limiter so that
// concurrent refreshes cannot exceed the configured request rate.
func NewFetcher(cfg Config, client *http.Client, hashes *HashSource) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &Fetcher{
		cfg:     cfg,
		client:  client,
		hashes:  hashes,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), max(cfg.Burst, 1)),
	}
}

// errTransient marks failures worth one more attempt: 5xx, 429 and transport errors.
var errTransient = errors.New("transient")

// Fetch retrieves the complete watchlist, following pagination.
func (f *Fetcher) Fetch(ctx context.Context, userID string, sort model.SortSpec) (*model.WatchlistSnapshot, error) {
	if err := model.ValidateUserID(userID); err != nil {
		return nil, err
	}

	start := time.Now()
	snapshot, err := f.fetchAll(ctx, userID, sort)
	metrics.FetchDurationSeconds.Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		metrics.FetchRequestsTotal.WithLabelValues(metrics.FetchSuccess).Inc()
	case errors.Is(err, repository.ErrWatchlistNotFound):
		metrics.FetchRequestsTotal.WithLabelValues(metrics.FetchNotFound).Inc()
	default:
		metrics.FetchRequestsTotal.WithLabelValues(metrics.FetchNetworkError).Inc()
	}
	return snapshot, err
}

func (f *Fetcher) fetchAll(ctx context.Context, userID string, sort model.SortSpec) (*model.WatchlistSnapshot, error) {
	hash, err := f.hashes.Current(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", repository.ErrFetchNetwork, err)
	}

	items := make([]model.MediaItem, 0)
	cursor := ""
	for page := 0; page < f.cfg.MaxPages; page++ {
		list, err := f.fetchPage(ctx, userID, hash, sort, cursor)
		if err != nil {
			return nil, err
		}

		search := list.TitleListItemSearch
		for _, edge := range search.Edges {
			if edge.ListItem == nil || edge.ListItem.ID == "" {
				continue
			}
			items = append(items, edge.ListItem.toMediaItem())
		}

		if !search.PageInfo.HasNextPage || search.PageInfo.EndCursor == "" {
			return &model.WatchlistSnapshot{Items: items, FetchedAt: time.Now()}, nil
		}
		cursor = search.PageInfo.EndCursor
	}

	slog.Warn("watchlist truncated at page limit",
		"user_id", userID,
		"max_pages", f.cfg.MaxPages,
		"items", len(items),
	)
	return &model.WatchlistSnapshot{Items: items, FetchedAt: time.Now()}, nil
}

// fetchPage performs one throttled page request with a single retry on transient failures.
func (f *Fetcher) fetchPage(ctx context.Context, userID, hash string, sort model.SortSpec, cursor string) (*predefinedList, error) {
	var list *predefinedList
	err := retry.Do(
		func() error {
			if err := f.limiter.Wait(ctx); err != nil {
				return retry.Unrecoverable(err)
			}
			l, err := f.doRequest(ctx, userID, hash, sort, cursor)
			if err != nil {
				return err
			}
			list = l
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(2),
		retry.Delay(f.cfg.RetryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool { return errors.Is(err, errTransient) }),
		retry.OnRetry(func(n uint, err error) {
			slog.Debug("retrying watchlist page", "user_id", userID, "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		if errors.Is(err, repository.ErrWatchlistNotFound) || errors.Is(err, repository.ErrFetchNetwork) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", repository.ErrFetchNetwork, err)
	}
	return list, nil
}

func (f *Fetcher) doRequest(ctx context.Context, userID, hash string, sort model.SortSpec, cursor string) (*predefinedList, error) {
	reqURL, err := f.buildURL(userID, hash, sort, cursor)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", repository.ErrFetchNetwork, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", repository.ErrFetchNetwork, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("x-imdb-client-name", "imdb-web-next-localized")

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", repository.ErrFetchNetwork, ctx.Err())
		}
		return nil, fmt.Errorf("%w: %w: %w", repository.ErrFetchNetwork, errTransient, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: %w: status %d", repository.ErrFetchNetwork, errTransient, resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		return nil, repository.ErrWatchlistNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: status %d", repository.ErrFetchNetwork, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %w: read body: %w", repository.ErrFetchNetwork, errTransient, err)
	}

	var gql graphQLResponse
	if err := json.Unmarshal(body, &gql); err != nil {
		return nil, fmt.Errorf("%w: decode response: %w", repository.ErrFetchNetwork, err)
	}
	if gql.Data.PredefinedList == nil {
		if len(gql.Errors) > 0 {
			slog.Debug("graphql returned no list", "user_id", userID, "error", gql.Errors[0].Message)
		}
		return nil, repository.ErrWatchlistNotFound
	}
	return gql.Data.PredefinedList, nil
}

func (f *Fetcher) buildURL(userID, hash string, sort model.SortSpec, cursor string) (string, error) {
	vars := map[string]any{
		"urConst": userID,
		"first":   f.cfg.PageSize,
		"sort":    graphQLSort(sort),
	}
	if cursor != "" {
		vars["after"] = cursor
	}
	variables, err := json.Marshal(vars)
	if err != nil {
		return "", err
	}
	extensions, err := json.Marshal(map[string]any{
		"persistedQuery": map[string]any{"sha256Hash": hash, "version": 1},
	})
	if err != nil {
		return "", err
	}

	u, err := url.Parse(f.cfg.GraphQLURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("operationName", f.cfg.OperationName)
	q.Set("variables", string(variables))
	q.Set("extensions", string(extensions))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// graphQLSort maps a sort spec to the list sort accepted by the watchlist queries.
// Random has no server-side equivalent and uses list order.
func graphQLSort(spec model.SortSpec) map[string]string {
	by := "LIST_ORDER"
	switch spec.By {
	case model.SortByTitle:
		by = "ALPHABETICAL"
	case model.SortByYear:
		by = "RELEASE_DATE"
	case model.SortByRating:
		by = "IMDB_RATING"
	}
	order := "ASC"
	if spec.By != model.SortByRandom && spec.Order == model.OrderDesc {
		order = "DESC"
	}
	return map[string]string{"by": by, "order": order}
}
