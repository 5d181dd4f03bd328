// Package repository defines the relational store interface and errors.
package repository

import (
	"context"
	"time"

	"github.com/aflyhorse/kmstat/internal/domain/model"
	"github.com/aflyhorse/kmstat/internal/domain/reconcile"
)

// LeaderboardEntry is one ranked row of a kill-value leaderboard.
type LeaderboardEntry struct {
	Rank       int     `json:"rank"`
	PlayerID   int64   `json:"player_id"`
	Title      string  `json:"title"` // raw title, may carry a color tag
	TotalValue float64 `json:"total_value"`
}

// KillDetail is one row of a killmail search result.
type KillDetail struct {
	KillmailID    int64     `json:"killmail_id"`
	Time          time.Time `json:"time"`
	CharacterName string    `json:"character_name"`
	SystemName    string    `json:"system_name"`
	ShipName      string    `json:"ship_name"`
	TotalValue    float64   `json:"total_value"`
}

// SearchQuery filters killmail searches. Empty fields are ignored.
type SearchQuery struct {
	CharacterName string
	PlayerTitle   string
	From          time.Time
	To            time.Time
	Limit         int
	Offset        int
}

// PlayerInfo is a player row with derived display fields.
type PlayerInfo struct {
	Player        model.Player `json:"player"`
	MainCharacter string       `json:"main_character,omitempty"`
	Characters    int          `json:"characters"`
}

// Store provides read/write access to all persisted state.
type Store interface {
	// Schema lifecycle.
	InitSchema(ctx context.Context, drop bool) error
	Close() error

	// Players.
	FindOrCreatePlayer(ctx context.Context, title string) (model.Player, error)
	PlayerByTitle(ctx context.Context, title string) (model.Player, error)
	PlayerByID(ctx context.Context, id int64) (model.Player, error)
	ListPlayers(ctx context.Context) ([]PlayerInfo, error)
	SetPlayerMainCharacter(ctx context.Context, playerID, characterID int64) error

	// Characters.
	CharacterByID(ctx context.Context, id int64) (model.Character, error)
	CharacterByName(ctx context.Context, name string) (model.Character, error)
	InsertCharacter(ctx context.Context, c model.Character) (model.Character, error)
	FindOrCreateCharacterByName(ctx context.Context, name, playerTitle string) (model.Character, error)
	AssignCharacter(ctx context.Context, characterID, playerID int64) error
	UpdateCharacterTitle(ctx context.Context, characterID int64, title string) error
	PlayerCharacters(ctx context.Context, playerID int64) ([]model.Character, error)
	UnclaimedCharacters(ctx context.Context) ([]model.Character, error)

	// Killmails.
	KillmailExists(ctx context.Context, id int64) (bool, error)
	InsertKillmail(ctx context.Context, k model.Killmail) error
	LeaderboardBetween(ctx context.Context, from, to time.Time) ([]LeaderboardEntry, error)
	SearchKillmails(ctx context.Context, q SearchQuery) ([]KillDetail, error)

	// SDE reference data.
	UpsertSolarSystems(ctx context.Context, systems []model.SolarSystem) (int, error)
	UpsertItemTypes(ctx context.Context, types []model.ItemType) (int, error)

	// Monthly uploads.
	UploadExists(ctx context.Context, year, month int) (bool, error)
	UploadByMonth(ctx context.Context, year, month int) (model.MonthlyUpload, error)
	ListUploads(ctx context.Context) ([]model.MonthlyUpload, error)
	CreateUpload(ctx context.Context, u model.MonthlyUpload) (int64, error)
	DeleteUpload(ctx context.Context, year, month int) error
	InsertPAPRecords(ctx context.Context, recs []model.PAPRecord) error
	InsertBountyRecords(ctx context.Context, recs []model.BountyRecord) error
	InsertMiningRecords(ctx context.Context, recs []model.MiningRecord) error
	UploadRows(ctx context.Context, uploadID int64) (reconcile.Rows, error)

	// System state.
	StateDate(ctx context.Context, key string) (time.Time, bool, error)
	SetStateDate(ctx context.Context, key string, value time.Time) error

	// Users.
	CreateUser(ctx context.Context, username, passwordHash string) error
	UserByUsername(ctx context.Context, username string) (model.User, error)
	UpdateUserPassword(ctx context.Context, id int64, passwordHash string) error

	// Stats.
	Counts(ctx context.Context) (players, characters, killmails int, err error)
}
