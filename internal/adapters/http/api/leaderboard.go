// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	service "github.com/aflyhorse/kmstat/internal/app"
)

// LeaderboardDependencies defines the interface for leaderboard queries.
type LeaderboardDependencies interface {
	YearlyLeaderboard(ctx context.Context, year int) ([]LeaderboardRow, error)
	MonthlyLeaderboard(ctx context.Context, year, month int) ([]LeaderboardRow, error)
	CurrentPeriod() (year, month int)
	StartYear() int
}

// LeaderboardHandler handles leaderboard requests.
type LeaderboardHandler struct {
	deps LeaderboardDependencies
}

// NewLeaderboardHandler creates a new leaderboard handler.
func NewLeaderboardHandler(deps LeaderboardDependencies) *LeaderboardHandler {
	return &LeaderboardHandler{deps: deps}
}

type leaderboardResponse struct {
	Year      int              `json:"year"`
	Month     int              `json:"month,omitempty"`
	StartYear int              `json:"start_year"`
	Entries   []LeaderboardRow `json:"entries"`
}

// HandleGetLeaderboard handles GET /api/leaderboard?year=Y[&month=M].
// Without a year it serves the current period's monthly board. Malformed or
// out-of-range periods fall back to defaults instead of erroring, so stale
// dashboard links keep working.
func (h *LeaderboardHandler) HandleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_leaderboard"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	curYear, curMonth := h.deps.CurrentPeriod()
	yearParam := r.URL.Query().Get("year")
	year := curYear
	if v, err := strconv.Atoi(yearParam); err == nil {
		year = clamp(v, h.deps.StartYear(), curYear)
	}

	var (
		rows  []LeaderboardRow
		month int
		err   error
	)
	switch s := r.URL.Query().Get("month"); {
	case s == "" && yearParam != "":
		rows, err = h.deps.YearlyLeaderboard(r.Context(), year)
	default:
		month = curMonth
		if v, perr := strconv.Atoi(s); perr == nil {
			month = clamp(v, 1, 12)
		}
		rows, err = h.deps.MonthlyLeaderboard(r.Context(), year, month)
	}
	if err != nil {
		if errors.Is(err, service.ErrBadPeriod) {
			writeError(w, http.StatusBadRequest, "bad_period", Wrap(op, err))
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		return
	}
	if rows == nil {
		rows = []LeaderboardRow{}
	}

	writeJSON(w, http.StatusOK, leaderboardResponse{
		Year:      year,
		Month:     month,
		StartYear: h.deps.StartYear(),
		Entries:   rows,
	})
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
