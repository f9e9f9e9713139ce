package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hszk-dev/imdb-watchlist/internal/domain/model"
	"github.com/hszk-dev/imdb-watchlist/internal/domain/repository"
	"github.com/hszk-dev/imdb-watchlist/internal/usecase"
)

type ValidateResponse struct {
	Valid bool `json:"valid"`
}

type RefreshResponse struct {
	Success   bool   `json:"success"`
	ItemCount int    `json:"itemCount"`
	FetchedAt string `json:"fetchedAt"`
}

type ConfigRequest struct {
	SortOption string `json:"sortOption"`
}

type ConfigResponse struct {
	Success    bool   `json:"success"`
	SortOption string `json:"sortOption"`
}

type ExportResponse struct {
	URL       string `json:"url"`
	ExpiresIn int    `json:"expiresIn"`
}

// WatchlistHandler serves the configuration page API.
type WatchlistHandler struct {
	watchlists usecase.WatchlistService
	users      usecase.UserService
	archive    repository.SnapshotArchive
	urlExpiry  time.Duration
}

// NewWatchlistHandler creates a new WatchlistHandler. archive may be nil, which
// disables exports.
func NewWatchlistHandler(
	watchlists usecase.WatchlistService,
	users usecase.UserService,
	archive repository.SnapshotArchive,
	urlExpiry time.Duration,
) *WatchlistHandler {
	return &WatchlistHandler{
		watchlists: watchlists,
		users:      users,
		archive:    archive,
		urlExpiry:  urlExpiry,
	}
}

// Validate handles GET /api/validate/{userID}
func (h *WatchlistHandler) Validate(w http.ResponseWriter, r *http.Request) {
	valid, err := h.watchlists.Validate(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		serviceError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, ValidateResponse{Valid: valid})
}

// Refresh handles GET /api/refresh/{userID}
func (h *WatchlistHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.watchlists.Refresh(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		serviceError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, RefreshResponse{
		Success:   true,
		ItemCount: len(snapshot.Items),
		FetchedAt: snapshot.FetchedAt.Format(time.RFC3339),
	})
}

// Config handles POST /api/config/{userID}
func (h *WatchlistHandler) Config(w http.ResponseWriter, r *http.Request) {
	var req ConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}

	spec, err := h.users.SetSortOption(r.Context(), chi.URLParam(r, "userID"), req.SortOption)
	if err != nil {
		serviceError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, ConfigResponse{Success: true, SortOption: spec.String()})
}

// Export handles GET /api/export/{userID}
func (h *WatchlistHandler) Export(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if err := model.ValidateUserID(userID); err != nil {
		serviceError(w, r, err)
		return
	}
	if h.archive == nil {
		Error(w, http.StatusNotFound, "export_disabled", "Snapshot export is not enabled")
		return
	}

	url, err := h.archive.PresignedURL(r.Context(), userID, h.urlExpiry)
	if err != nil {
		serviceError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, ExportResponse{URL: url, ExpiresIn: int(h.urlExpiry.Seconds())})
}
