package model

import (
	"regexp"
	"time"
)

// MediaType is the Stremio content type of a watchlist entry.
type MediaType string

const (
	MediaTypeMovie  MediaType = "movie"
	MediaTypeSeries MediaType = "series"
)

func (t MediaType) IsValid() bool {
	return t == MediaTypeMovie || t == MediaTypeSeries
}

func (t MediaType) String() string {
	return string(t)
}

// MediaItem is a single watchlist title in Stremio meta shape.
type MediaItem struct {
	ID          string    `json:"id"`
	Type        MediaType `json:"type"`
	Name        string    `json:"name"`
	Poster      string    `json:"poster,omitempty"`
	ReleaseInfo string    `json:"releaseInfo,omitempty"`
	IMDbRating  string    `json:"imdbRating,omitempty"`
	Genres      []string  `json:"genres,omitempty"`
	Cast        []string  `json:"cast,omitempty"`
	Description string    `json:"description,omitempty"`
	Runtime     string    `json:"runtime,omitempty"`
}

// WatchlistSnapshot is the full watchlist of one user as fetched from IMDb.
// Items are kept in IMDb list order, which is the canonical "added_at" order.
type WatchlistSnapshot struct {
	Items     []MediaItem `json:"items"`
	FetchedAt time.Time   `json:"fetchedAt"`
}

// Clone returns a deep copy so callers can reorder items without touching cached data.
func (s *WatchlistSnapshot) Clone() *WatchlistSnapshot {
	if s == nil {
		return nil
	}
	items := make([]MediaItem, len(s.Items))
	for i, item := range s.Items {
		item.Genres = append([]string(nil), item.Genres...)
		item.Cast = append([]string(nil), item.Cast...)
		items[i] = item
	}
	return &WatchlistSnapshot{Items: items, FetchedAt: s.FetchedAt}
}

// FilterByType returns the items of the given type, preserving order.
func FilterByType(items []MediaItem, t MediaType) []MediaItem {
	out := make([]MediaItem, 0, len(items))
	for _, item := range items {
		if item.Type == t {
			out = append(out, item)
		}
	}
	return out
}

// FindItem looks up an item by IMDb ID and type.
func FindItem(items []MediaItem, t MediaType, id string) (MediaItem, bool) {
	for _, item := range items {
		if item.ID == id && item.Type == t {
			return item, true
		}
	}
	return MediaItem{}, false
}

// CacheEntry is the persisted cache row for one user.
type CacheEntry struct {
	UserID      string            `json:"userId"`
	Snapshot    WatchlistSnapshot `json:"snapshot"`
	CachedAt    time.Time         `json:"cachedAt"`
	ShuffleSeed int64             `json:"shuffleSeed"`
}

// Age reports how old the entry is at the given instant.
func (e *CacheEntry) Age(now time.Time) time.Duration {
	return now.Sub(e.CachedAt)
}

// IsFresh reports whether the entry is younger than ttl.
func (e *CacheEntry) IsFresh(now time.Time, ttl time.Duration) bool {
	return e.Age(now) < ttl
}

var userIDPattern = regexp.MustCompile(`^ur\d{4,}$`)

// ValidateUserID checks the IMDb user identifier format (ur followed by at least four digits).
func ValidateUserID(userID string) error {
	if !userIDPattern.MatchString(userID) {
		return ErrInvalidIdentifier
	}
	return nil
}
