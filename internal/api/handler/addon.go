package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hszk-dev/imdb-watchlist/internal/domain/model"
	"github.com/hszk-dev/imdb-watchlist/internal/usecase"
)

// catalogCacheControl lets Stremio and proxies reuse catalogs for hours and fall back on errors.
const catalogCacheControl = "max-age=21600, stale-while-revalidate=7200, stale-if-error=86400"

const (
	addonVersion     = "1.0.0"
	movieCatalogID   = "imdb-watchlist-movies"
	seriesCatalogID  = "imdb-watchlist-series"
	catalogName      = "IMDb Watchlist"
	addonIDPrefix    = "community.imdb-watchlist."
	addonDescription = "Your public IMDb watchlist as Stremio catalogs"
)

type ManifestCatalog struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	Name string `json:"name"`
}

type ManifestResponse struct {
	ID            string            `json:"id"`
	Version       string            `json:"version"`
	Name          string            `json:"name"`
	Description   string            `json:"description"`
	Resources     []string          `json:"resources"`
	Types         []string          `json:"types"`
	IDPrefixes    []string          `json:"idPrefixes"`
	Catalogs      []ManifestCatalog `json:"catalogs"`
	BehaviorHints map[string]bool   `json:"behaviorHints"`
}

type CatalogResponse struct {
	Metas []model.MediaItem `json:"metas"`
}

type MetaResponse struct {
	Meta *model.MediaItem `json:"meta"`
}

// AddonHandler serves the Stremio addon protocol routes.
type AddonHandler struct {
	watchlists usecase.WatchlistService
}

// NewAddonHandler creates a new AddonHandler.
func NewAddonHandler(watchlists usecase.WatchlistService) *AddonHandler {
	return &AddonHandler{watchlists: watchlists}
}

// Manifest handles GET /{userID}/manifest.json
func (h *AddonHandler) Manifest(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if err := model.ValidateUserID(userID); err != nil {
		serviceError(w, r, err)
		return
	}

	JSON(w, http.StatusOK, ManifestResponse{
		ID:          addonIDPrefix + userID,
		Version:     addonVersion,
		Name:        catalogName + " (" + userID + ")",
		Description: addonDescription,
		Resources:   []string{"catalog", "meta"},
		Types:       []string{model.MediaTypeMovie.String(), model.MediaTypeSeries.String()},
		IDPrefixes:  []string{"tt"},
		Catalogs: []ManifestCatalog{
			{Type: model.MediaTypeMovie.String(), ID: movieCatalogID, Name: catalogName},
			{Type: model.MediaTypeSeries.String(), ID: seriesCatalogID, Name: catalogName},
		},
		BehaviorHints: map[string]bool{"configurable": true},
	})
}

// Catalog handles GET /{userID}/catalog/{type}/{catalogID}.json
// Unknown types yield an empty catalog, as Stremio expects.
func (h *AddonHandler) Catalog(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	mediaType := model.MediaType(chi.URLParam(r, "type"))

	result, err := h.watchlists.GetWatchlist(r.Context(), userID, r.URL.Query().Get("sort"))
	if err != nil {
		serviceError(w, r, err)
		return
	}

	metas := []model.MediaItem{}
	if mediaType.IsValid() {
		metas = model.FilterByType(result.Items, mediaType)
	}

	w.Header().Set("Cache-Control", catalogCacheControl)
	JSON(w, http.StatusOK, CatalogResponse{Metas: metas})
}

// Meta handles GET /{userID}/meta/{type}/{id}.json
func (h *AddonHandler) Meta(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	mediaType := model.MediaType(chi.URLParam(r, "type"))
	id := chi.URLParam(r, "id")

	result, err := h.watchlists.GetWatchlist(r.Context(), userID, "")
	if err != nil {
		serviceError(w, r, err)
		return
	}

	item, ok := model.FindItem(result.Items, mediaType, id)
	if !ok {
		JSON(w, http.StatusOK, MetaResponse{Meta: nil})
		return
	}
	JSON(w, http.StatusOK, MetaResponse{Meta: &item})
}
