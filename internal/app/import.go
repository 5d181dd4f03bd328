package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aflyhorse/kmstat/internal/adapters/esi"
	"github.com/aflyhorse/kmstat/internal/adapters/everef"
	taskqueue "github.com/aflyhorse/kmstat/internal/adapters/mq/queue"
	"github.com/aflyhorse/kmstat/internal/adapters/repository"
	"github.com/aflyhorse/kmstat/internal/domain/model"
	"github.com/aflyhorse/kmstat/pkg/logger"
)

// enqueueRetryDelay paces retries when the task queue is full.
const enqueueRetryDelay = 50 * time.Millisecond

// ImportStats reports what one archive day contributed.
type ImportStats struct {
	Matched    int // corp final blows in the archive
	Enqueued   int
	Duplicates int // already imported or already queued
}

func (st ImportStats) add(o ImportStats) ImportStats {
	st.Matched += o.Matched
	st.Enqueued += o.Enqueued
	st.Duplicates += o.Duplicates
	return st
}

// EnsureCharacter guarantees a character row exists for an ESI id, fetching
// its public identity when the store has never seen it.
func (s *Service) EnsureCharacter(ctx context.Context, characterID int64) error {
	_, err := s.store.CharacterByID(ctx, characterID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return err
	}
	if s.upstream == nil {
		return ErrNoUpstream
	}

	ch, err := s.upstream.GetCharacter(ctx, characterID)
	if err != nil {
		return fmt.Errorf("fetching character %d: %w", characterID, err)
	}
	// Attach the character to the player its corp title names so it shows
	// up in leaderboards; untitled characters land in the unclaimed bucket.
	title := ch.Title
	if title == "" {
		title = model.UnclaimedTitle
	}
	p, err := s.store.FindOrCreatePlayer(ctx, title)
	if err != nil {
		return err
	}
	_, err = s.store.InsertCharacter(ctx, model.Character{
		ID:       characterID,
		Name:     ch.Name,
		Title:    ch.Title,
		PlayerID: p.ID,
	})
	if err != nil {
		// Another worker may have inserted the same character meanwhile.
		if _, lookupErr := s.store.CharacterByID(ctx, characterID); lookupErr == nil {
			return nil
		}
		return err
	}
	return nil
}

// KillmailValue appraises a killmail through zKillboard.
func (s *Service) KillmailValue(ctx context.Context, killmailID int64) (float64, error) {
	if s.upstream == nil {
		return 0, ErrNoUpstream
	}
	v, err := s.upstream.GetKillmailValue(ctx, killmailID)
	if err != nil && errors.Is(err, esi.ErrNotFound) {
		return 0, nil
	}
	return v, err
}

// ImportDay walks one archive day and enqueues every corporation killmail
// not yet imported.
func (s *Service) ImportDay(ctx context.Context, day time.Time) (ImportStats, error) {
	s.mu.RLock()
	started := s.started
	s.mu.RUnlock()
	if !started {
		return ImportStats{}, ErrNotStarted
	}
	if s.fetcher == nil {
		return ImportStats{}, ErrNoUpstream
	}

	body, err := s.fetcher.FetchDay(ctx, day)
	if err != nil {
		return ImportStats{}, err
	}
	defer body.Close()

	filter := everef.Filter{
		CorporationID: s.corporationID,
		AllianceID:    s.allianceID,
	}

	var stats ImportStats
	err = everef.WalkArchive(body, func(k everef.RawKillmail) error {
		charID, ok := filter.Match(k)
		if !ok {
			return nil
		}
		stats.Matched++

		if s.deduper.SeenAndRecord(ctx, k.KillmailID) {
			stats.Duplicates++
			return nil
		}
		exists, err := s.store.KillmailExists(ctx, k.KillmailID)
		if err != nil {
			return err
		}
		if exists {
			stats.Duplicates++
			return nil
		}

		ts, err := k.Time()
		if err != nil {
			s.deduper.Unrecord(ctx, k.KillmailID)
			s.logger.Warn(ctx, "killmail with unparseable timestamp",
				logger.Int64("killmail_id", k.KillmailID),
				logger.String("timestamp", k.KillmailTime))
			return nil
		}

		task := taskqueue.Task{
			KillmailID:       k.KillmailID,
			Time:             ts,
			CharacterID:      charID,
			SolarSystemID:    k.SolarSystem,
			VictimShipTypeID: k.Victim.ShipTypeID,
		}
		for !s.taskQueue.Enqueue(ctx, task) {
			if s.taskQueue.IsClosed() {
				s.deduper.Unrecord(ctx, k.KillmailID)
				return ErrNotStarted
			}
			select {
			case <-ctx.Done():
				s.deduper.Unrecord(ctx, k.KillmailID)
				return ctx.Err()
			case <-time.After(enqueueRetryDelay):
			}
		}
		stats.Enqueued++
		return nil
	})
	if err != nil {
		return stats, err
	}

	s.logger.Info(ctx, "archive day imported",
		logger.String("day", day.Format("2006-01-02")),
		logger.Int("matched", stats.Matched),
		logger.Int("enqueued", stats.Enqueued),
		logger.Int("duplicates", stats.Duplicates))
	return stats, nil
}

// ImportPending imports every day after the last recorded one, up to
// yesterday (UTC). Archives appear with a delay, so an absent day ends the
// run without error and is retried next time.
func (s *Service) ImportPending(ctx context.Context) (ImportStats, error) {
	last, ok, err := s.store.StateDate(ctx, model.StateLatestUpdate)
	if err != nil {
		return ImportStats{}, err
	}
	if !ok {
		last = s.startDate.AddDate(0, 0, -1)
	}

	yesterday := time.Now().UTC().Truncate(24 * time.Hour).AddDate(0, 0, -1)
	var total ImportStats
	for day := last.AddDate(0, 0, 1); !day.After(yesterday); day = day.AddDate(0, 0, 1) {
		stats, err := s.ImportDay(ctx, day)
		if err != nil {
			if errors.Is(err, everef.ErrNoArchive) {
				s.logger.Info(ctx, "archive not yet published, stopping",
					logger.String("day", day.Format("2006-01-02")))
				return total, nil
			}
			return total, err
		}
		total = total.add(stats)
		if err := s.store.SetStateDate(ctx, model.StateLatestUpdate, day); err != nil {
			return total, err
		}
	}
	return total, nil
}
