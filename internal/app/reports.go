package service

import (
	"context"
	"fmt"
	"time"

	"github.com/aflyhorse/kmstat/internal/adapters/repository"
	"github.com/aflyhorse/kmstat/internal/domain/model"
	"github.com/aflyhorse/kmstat/internal/domain/nametag"
)

const defaultSearchLimit = 50

// LeaderboardRow is one ranked player with its display name decoded from
// the raw title tag.
type LeaderboardRow struct {
	Rank       int     `json:"rank"`
	PlayerID   int64   `json:"player_id"`
	Name       string  `json:"name"`
	Color      string  `json:"color,omitempty"`
	TotalValue float64 `json:"total_value"`
}

// PlayerRow is one player with derived display fields.
type PlayerRow struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	Color         string    `json:"color,omitempty"`
	MainCharacter string    `json:"main_character,omitempty"`
	Characters    int       `json:"characters"`
	JoinDate      time.Time `json:"join_date,omitempty"`
}

// YearlyLeaderboard ranks players by summed kill value over one calendar
// year in the display timezone.
func (s *Service) YearlyLeaderboard(ctx context.Context, year int) ([]LeaderboardRow, error) {
	if err := s.checkPeriod(year, 1); err != nil {
		return nil, err
	}
	from := time.Date(year, time.January, 1, 0, 0, 0, 0, s.loc)
	return s.leaderboard(ctx, from, from.AddDate(1, 0, 0))
}

// MonthlyLeaderboard ranks players over one calendar month in the display
// timezone.
func (s *Service) MonthlyLeaderboard(ctx context.Context, year, month int) ([]LeaderboardRow, error) {
	if err := s.checkPeriod(year, month); err != nil {
		return nil, err
	}
	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, s.loc)
	return s.leaderboard(ctx, from, from.AddDate(0, 1, 0))
}

func (s *Service) leaderboard(ctx context.Context, from, to time.Time) ([]LeaderboardRow, error) {
	entries, err := s.store.LeaderboardBetween(ctx, from, to)
	if err != nil {
		return nil, err
	}
	rows := make([]LeaderboardRow, len(entries))
	for i, e := range entries {
		name, color := nametag.Parse(e.Title)
		rows[i] = LeaderboardRow{
			Rank:       e.Rank,
			PlayerID:   e.PlayerID,
			Name:       name,
			Color:      color,
			TotalValue: e.TotalValue,
		}
	}
	return rows, nil
}

// checkPeriod rejects years before the statistics window and months outside
// the calendar.
func (s *Service) checkPeriod(year, month int) error {
	if month < 1 || month > 12 {
		return fmt.Errorf("month %d: %w", month, ErrBadPeriod)
	}
	now := time.Now().In(s.loc)
	if year < s.startDate.Year() || year > now.Year() {
		return fmt.Errorf("year %d: %w", year, ErrBadPeriod)
	}
	return nil
}

// CurrentPeriod returns the default leaderboard period in the display
// timezone.
func (s *Service) CurrentPeriod() (year, month int) {
	now := time.Now().In(s.loc)
	return now.Year(), int(now.Month())
}

// StartYear returns the first year statistics cover.
func (s *Service) StartYear() int {
	return s.startDate.Year()
}

// Search looks up killmails by character name or player title, newest
// first. The page size is clamped to the configured maximum.
func (s *Service) Search(ctx context.Context, q repository.SearchQuery) ([]repository.KillDetail, error) {
	if q.Limit <= 0 {
		q.Limit = defaultSearchLimit
	}
	if q.Limit > s.maxSearchLimit {
		q.Limit = s.maxSearchLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	details, err := s.store.SearchKillmails(ctx, q)
	if err != nil {
		return nil, err
	}
	// Killmail times are stored in UTC; render in the display timezone.
	for i := range details {
		details[i].Time = details[i].Time.In(s.loc)
	}
	return details, nil
}

// ListPlayers returns all players with display names decoded.
func (s *Service) ListPlayers(ctx context.Context) ([]PlayerRow, error) {
	infos, err := s.store.ListPlayers(ctx)
	if err != nil {
		return nil, err
	}
	rows := make([]PlayerRow, len(infos))
	for i, info := range infos {
		name, color := nametag.Parse(info.Player.Title)
		rows[i] = PlayerRow{
			ID:            info.Player.ID,
			Name:          name,
			Color:         color,
			MainCharacter: info.MainCharacter,
			Characters:    info.Characters,
			JoinDate:      info.Player.JoinDate,
		}
	}
	return rows, nil
}

// PlayerCharacters lists a player's characters.
func (s *Service) PlayerCharacters(ctx context.Context, playerID int64) (model.Player, []model.Character, error) {
	p, err := s.store.PlayerByID(ctx, playerID)
	if err != nil {
		return model.Player{}, nil, err
	}
	chars, err := s.store.PlayerCharacters(ctx, playerID)
	if err != nil {
		return model.Player{}, nil, err
	}
	return p, chars, nil
}

// UnclaimedCharacters lists characters not yet attached to a real player.
func (s *Service) UnclaimedCharacters(ctx context.Context) ([]model.Character, error) {
	return s.store.UnclaimedCharacters(ctx)
}

// AssociateCharacter attaches a character to the player named by title,
// updating the character's stored title when one is given. With an empty
// title the character's existing title is used.
func (s *Service) AssociateCharacter(ctx context.Context, characterID int64, title string) error {
	c, err := s.store.CharacterByID(ctx, characterID)
	if err != nil {
		return err
	}
	if title == "" {
		title = c.Title
	}
	if title == "" {
		return repository.ErrNoTitle
	}
	if title != c.Title {
		if err := s.store.UpdateCharacterTitle(ctx, characterID, title); err != nil {
			return err
		}
	}
	p, err := s.store.FindOrCreatePlayer(ctx, title)
	if err != nil {
		return err
	}
	return s.store.AssignCharacter(ctx, characterID, p.ID)
}

// AssociateCharacterByName is AssociateCharacter keyed by the character's
// in-game name, as operators know it.
func (s *Service) AssociateCharacterByName(ctx context.Context, name, title string) error {
	c, err := s.store.CharacterByName(ctx, name)
	if err != nil {
		return err
	}
	return s.AssociateCharacter(ctx, c.ID, title)
}
