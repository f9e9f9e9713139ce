package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hszk-dev/imdb-watchlist/internal/domain/model"
	"github.com/hszk-dev/imdb-watchlist/internal/domain/repository"
	"github.com/hszk-dev/imdb-watchlist/internal/usecase"
)

func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			http.Error(w, "failed to encode response", http.StatusInternalServerError)
		}
	}
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func Error(w http.ResponseWriter, status int, err string, message string) {
	JSON(w, status, ErrorResponse{
		Error:   err,
		Message: message,
	})
}

// serviceError maps domain and usecase errors to HTTP responses.
func serviceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, model.ErrInvalidIdentifier):
		Error(w, http.StatusBadRequest, "invalid_user_id", "User ID must look like ur12345678")
	case errors.Is(err, model.ErrInvalidSortOption):
		Error(w, http.StatusBadRequest, "invalid_sort_option", "Sort option must be field-order, e.g. title-asc, or random")
	case errors.Is(err, repository.ErrWatchlistNotFound):
		Error(w, http.StatusNotFound, "watchlist_not_found", "Watchlist not found or not public")
	case errors.Is(err, repository.ErrUserNotFound):
		Error(w, http.StatusNotFound, "user_not_found", "User not found")
	case errors.Is(err, repository.ErrObjectNotFound):
		Error(w, http.StatusNotFound, "snapshot_not_found", "No exported snapshot for this user")
	case errors.Is(err, usecase.ErrFetchFailed):
		Error(w, http.StatusBadGateway, "fetch_failed", "Could not fetch watchlist from IMDb")
	case errors.Is(err, repository.ErrStorageUnavailable):
		Error(w, http.StatusServiceUnavailable, "storage_unavailable", "Storage is temporarily unavailable")
	default:
		slog.Error("unhandled service error",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		Error(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}
