package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/wakr/internal/geocode"
	"github.com/hitoshi/wakr/internal/middleware"
	"github.com/hitoshi/wakr/internal/model"
)

// CityHandler は都市検索のHTTPハンドラー。
type CityHandler struct {
	searcher geocode.Searcher
}

// NewCityHandler はCityHandlerを生成する。
func NewCityHandler(searcher geocode.Searcher) *CityHandler {
	return &CityHandler{searcher: searcher}
}

// citySearchResponse は都市検索のレスポンス。
type citySearchResponse struct {
	Cities []geocode.Place `json:"cities"`
}

// Search は都市名で候補を検索する。
// GET /api/cities/search?q=tok
func (h *CityHandler) Search(w http.ResponseWriter, r *http.Request) {
	places, err := h.searcher.Search(r.Context(), r.URL.Query().Get("q"))
	switch {
	case errors.Is(err, geocode.ErrQueryTooShort):
		middleware.WriteValidationError(w, model.NewValidationError(model.Violations{"q": model.ReasonRequired}))
		return
	case errors.Is(err, context.Canceled):
		return
	case err != nil:
		slog.Warn("city search failed", slog.String("error", err.Error()))
		handleServiceError(w, model.NewUpstreamFailedError("geocoding"))
		return
	}

	if places == nil {
		places = []geocode.Place{}
	}
	middleware.WriteJSON(w, http.StatusOK, citySearchResponse{Cities: places})
}
