package imdb

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"

	"github.com/hszk-dev/imdb-watchlist/internal/domain/repository"
)

// HashOverrideKey is the key-value store key holding an operator-supplied query hash.
const HashOverrideKey = "imdb:graphql-hash"

var (
	// ErrInvalidHash is returned when a persisted query hash is not 64 lowercase hex characters.
	ErrInvalidHash = errors.New("invalid persisted query hash")

	// ErrHashNotConfigured is returned when neither an override nor a default hash is set.
	ErrHashNotConfigured = errors.New("persisted query hash not configured")
)

var hashPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// HashSource resolves the GraphQL persisted query hash. IMDb rotates the hash on
// frontend deploys, so an override in the key-value store takes precedence over
// the configured default and can be replaced without a restart.
type HashSource struct {
	store       repository.KeyValueStore
	defaultHash string
}

// NewHashSource creates a HashSource. store may be nil to disable overrides.
func NewHashSource(store repository.KeyValueStore, defaultHash string) *HashSource {
	return &HashSource{store: store, defaultHash: strings.TrimSpace(defaultHash)}
}

// Current returns the override if present, otherwise the default.
// Store errors are logged and fall through to the default.
func (h *HashSource) Current(ctx context.Context) (string, error) {
	if h.store != nil {
		value, err := h.store.Get(ctx, HashOverrideKey)
		if err != nil {
			slog.Warn("failed to read query hash override", "error", err)
		} else if hash := string(value); hashPattern.MatchString(hash) {
			return hash, nil
		}
	}
	if h.defaultHash == "" {
		return "", ErrHashNotConfigured
	}
	return h.defaultHash, nil
}

// SetOverride validates and stores a new hash without expiry.
func (h *HashSource) SetOverride(ctx context.Context, hash string) error {
	hash = strings.ToLower(strings.TrimSpace(hash))
	if !hashPattern.MatchString(hash) {
		return ErrInvalidHash
	}
	if h.store == nil {
		return repository.ErrStorageUnavailable
	}
	return h.store.Set(ctx, HashOverrideKey, []byte(hash), 0)
}

// ClearOverride removes the stored override so the default applies again.
func (h *HashSource) ClearOverride(ctx context.Context) error {
	if h.store == nil {
		return nil
	}
	return h.store.Delete(ctx, HashOverrideKey)
}
