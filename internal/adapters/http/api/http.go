// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	service "github.com/aflyhorse/kmstat/internal/app"

	"github.com/aflyhorse/kmstat/internal/adapters/repository"
	"github.com/aflyhorse/kmstat/internal/adapters/xlsx"
	"github.com/aflyhorse/kmstat/internal/domain/model"
	"github.com/aflyhorse/kmstat/internal/domain/reconcile"
)

// Read shapes reused from the service layer.
type (
	LeaderboardRow = service.LeaderboardRow
	PlayerRow      = service.PlayerRow
	UploadRequest  = service.UploadRequest
	UploadResult   = service.UploadResult
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// Leaderboards and search.
	YearlyLeaderboard(ctx context.Context, year int) ([]LeaderboardRow, error)
	MonthlyLeaderboard(ctx context.Context, year, month int) ([]LeaderboardRow, error)
	CurrentPeriod() (year, month int)
	StartYear() int
	Search(ctx context.Context, q repository.SearchQuery) ([]repository.KillDetail, error)

	// Players and characters.
	ListPlayers(ctx context.Context) ([]PlayerRow, error)
	PlayerCharacters(ctx context.Context, playerID int64) (model.Player, []model.Character, error)
	UnclaimedCharacters(ctx context.Context) ([]model.Character, error)

	// Monthly uploads.
	ProcessUpload(ctx context.Context, req UploadRequest, wb xlsx.Workbook) (UploadResult, error)
	ListUploads(ctx context.Context) ([]model.MonthlyUpload, error)
	UploadExists(ctx context.Context, year, month int) (bool, error)
	DeleteUpload(ctx context.Context, year, month int) error
	UploadSummary(ctx context.Context, year, month int) (reconcile.Summary, error)

	// Monitoring.
	GetStats() map[string]interface{}
}

// Authorizer guards mutating endpoints.
type Authorizer interface {
	Login(ctx context.Context, username, password string) (string, error)
	Logout(token string)
	Validate(token string) (username string, ok bool)
	ChangePassword(ctx context.Context, username, oldPassword, newPassword string) error
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	leaderboardHandler *LeaderboardHandler
	searchHandler      *SearchHandler
	playersHandler     *PlayersHandler
	uploadsHandler     *UploadsHandler
	authHandler        *AuthHandler
	authz              Authorizer
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, authz Authorizer, opts ...Option) *Server {
	cfg := newServerConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(deps),
		leaderboardHandler: NewLeaderboardHandler(deps),
		searchHandler:      NewSearchHandler(deps),
		playersHandler:     NewPlayersHandler(deps),
		uploadsHandler:     NewUploadsHandler(deps, cfg.maxUploadBytes),
		authHandler:        NewAuthHandler(authz),
		authz:              authz,
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux) {
	guard := RequireAuth(s.authz)

	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/api/leaderboard", MetricsMiddleware(s.leaderboardHandler.HandleGetLeaderboard, "leaderboard"))
	mux.HandleFunc("/api/search", MetricsMiddleware(s.searchHandler.HandleSearch, "search"))
	mux.HandleFunc("/api/players", MetricsMiddleware(s.playersHandler.HandleListPlayers, "players"))
	mux.HandleFunc("/api/players/", MetricsMiddleware(s.playersHandler.HandlePlayerCharacters, "player_characters"))
	mux.HandleFunc("/api/characters/unclaimed", MetricsMiddleware(s.playersHandler.HandleUnclaimed, "unclaimed"))
	mux.HandleFunc("/api/uploads", MetricsMiddleware(s.uploadsHandler.HandleUploads(guard), "uploads"))
	mux.HandleFunc("/api/uploads/", MetricsMiddleware(s.uploadsHandler.HandleUploadByMonth(guard), "upload_month"))
	mux.HandleFunc("/api/auth/login", MetricsMiddleware(s.authHandler.HandleLogin, "login"))
	mux.HandleFunc("/api/auth/logout", MetricsMiddleware(guard(s.authHandler.HandleLogout), "logout"))
	mux.HandleFunc("/api/auth/password", MetricsMiddleware(guard(s.authHandler.HandleChangePassword), "change_password"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
