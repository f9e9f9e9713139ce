package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hszk-dev/imdb-watchlist/internal/infrastructure/imdb"
	"github.com/hszk-dev/imdb-watchlist/internal/usecase"
)

// HashOverrider replaces the GraphQL persisted query hash at runtime.
type HashOverrider interface {
	SetOverride(ctx context.Context, hash string) error
	ClearOverride(ctx context.Context) error
}

type HashRequest struct {
	Hash string `json:"hash"`
}

// AdminHandler serves operator routes. They are mounted only when an admin token is configured.
type AdminHandler struct {
	users  usecase.UserService
	hashes HashOverrider
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(users usecase.UserService, hashes HashOverrider) *AdminHandler {
	return &AdminHandler{users: users, hashes: hashes}
}

// DeleteUser handles DELETE /api/admin/users/{userID}
func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := h.users.DeleteUser(r.Context(), chi.URLParam(r, "userID")); err != nil {
		serviceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetIMDbHash handles PUT /api/admin/imdb-hash
func (h *AdminHandler) SetIMDbHash(w http.ResponseWriter, r *http.Request) {
	var req HashRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}

	if err := h.hashes.SetOverride(r.Context(), req.Hash); err != nil {
		if errors.Is(err, imdb.ErrInvalidHash) {
			Error(w, http.StatusBadRequest, "invalid_hash", "Hash must be 64 hex characters")
			return
		}
		serviceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClearIMDbHash handles DELETE /api/admin/imdb-hash
func (h *AdminHandler) ClearIMDbHash(w http.ResponseWriter, r *http.Request) {
	if err := h.hashes.ClearOverride(r.Context()); err != nil {
		serviceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
