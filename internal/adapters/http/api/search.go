// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/aflyhorse/kmstat/internal/adapters/repository"
)

// SearchDependencies defines the interface for killmail searches.
type SearchDependencies interface {
	Search(ctx context.Context, q repository.SearchQuery) ([]repository.KillDetail, error)
}

// SearchHandler handles killmail search requests.
type SearchHandler struct {
	deps SearchDependencies
}

// NewSearchHandler creates a new search handler.
func NewSearchHandler(deps SearchDependencies) *SearchHandler {
	return &SearchHandler{deps: deps}
}

// HandleSearch handles GET /api/search requests. Filters: character, player,
// from, to (RFC3339), limit, offset.
func (h *SearchHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	const op = "api.search"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	qs := r.URL.Query()
	q := repository.SearchQuery{
		CharacterName: qs.Get("character"),
		PlayerTitle:   qs.Get("player"),
	}

	for key, dst := range map[string]*time.Time{"from": &q.From, "to": &q.To} {
		if s := qs.Get(key); s != "" {
			t, err := time.Parse(time.RFC3339, s)
			if err != nil {
				writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
				return
			}
			*dst = t
		}
	}
	for key, dst := range map[string]*int{"limit": &q.Limit, "offset": &q.Offset} {
		if s := qs.Get(key); s != "" {
			v, err := strconv.Atoi(s)
			if err != nil || v < 0 {
				writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
				return
			}
			*dst = v
		}
	}

	details, err := h.deps.Search(r.Context(), q)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		return
	}
	if details == nil {
		details = []repository.KillDetail{}
	}
	writeJSON(w, http.StatusOK, details)
}
