// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/aflyhorse/kmstat/internal/adapters/repository"
	"github.com/aflyhorse/kmstat/internal/domain/model"
	"github.com/aflyhorse/kmstat/internal/domain/nametag"
)

// PlayersDependencies defines the interface for player and character reads.
type PlayersDependencies interface {
	ListPlayers(ctx context.Context) ([]PlayerRow, error)
	PlayerCharacters(ctx context.Context, playerID int64) (model.Player, []model.Character, error)
	UnclaimedCharacters(ctx context.Context) ([]model.Character, error)
}

// PlayersHandler handles player and character requests.
type PlayersHandler struct {
	deps PlayersDependencies
}

// NewPlayersHandler creates a new players handler.
func NewPlayersHandler(deps PlayersDependencies) *PlayersHandler {
	return &PlayersHandler{deps: deps}
}

// HandleListPlayers handles GET /api/players requests.
func (h *PlayersHandler) HandleListPlayers(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_players"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	rows, err := h.deps.ListPlayers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		return
	}
	if rows == nil {
		rows = []PlayerRow{}
	}
	writeJSON(w, http.StatusOK, rows)
}

type characterView struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type playerDetailResponse struct {
	ID         int64           `json:"id"`
	Name       string          `json:"name"`
	Color      string          `json:"color,omitempty"`
	Characters []characterView `json:"characters"`
}

// HandlePlayerCharacters handles GET /api/players/{id}/characters requests.
func (h *PlayersHandler) HandlePlayerCharacters(w http.ResponseWriter, r *http.Request) {
	const op = "api.player_characters"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/players/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) != 2 || parts[1] != "characters" {
		http.NotFound(w, r)
		return
	}
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	p, chars, err := h.deps.PlayerCharacters(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", Wrap(op, err))
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		return
	}

	name, color := nametag.Parse(p.Title)
	resp := playerDetailResponse{
		ID:         p.ID,
		Name:       name,
		Color:      color,
		Characters: make([]characterView, len(chars)),
	}
	for i, c := range chars {
		resp.Characters[i] = characterView{ID: c.ID, Name: c.Name}
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleUnclaimed handles GET /api/characters/unclaimed requests.
func (h *PlayersHandler) HandleUnclaimed(w http.ResponseWriter, r *http.Request) {
	const op = "api.unclaimed_characters"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	chars, err := h.deps.UnclaimedCharacters(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		return
	}
	views := make([]characterView, len(chars))
	for i, c := range chars {
		views[i] = characterView{ID: c.ID, Name: c.Name}
	}
	writeJSON(w, http.StatusOK, views)
}
