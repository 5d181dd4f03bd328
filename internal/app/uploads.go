package service

import (
	"context"
	"fmt"
	"time"

	"github.com/aflyhorse/kmstat/internal/adapters/xlsx"
	"github.com/aflyhorse/kmstat/internal/domain/model"
	"github.com/aflyhorse/kmstat/internal/domain/reconcile"
	"github.com/aflyhorse/kmstat/pkg/logger"
	"github.com/aflyhorse/kmstat/pkg/metrics"
)

// UploadRequest carries the metadata accompanying a monthly workbook.
type UploadRequest struct {
	Year           int
	Month          int
	TaxRate        float64
	OreConvertRate float64
	UploadedBy     string
	Overwrite      bool
}

// UploadResult reports what an accepted upload stored.
type UploadResult struct {
	UploadID   int64 `json:"upload_id"`
	PAPRows    int   `json:"pap_rows"`
	BountyRows int   `json:"bounty_rows"`
	MiningRows int   `json:"mining_rows"`
}

// ProcessUpload stores one monthly workbook. An existing upload for the
// same month is rejected unless Overwrite is set, in which case it is
// replaced together with its records.
func (s *Service) ProcessUpload(ctx context.Context, req UploadRequest, wb xlsx.Workbook) (UploadResult, error) {
	if req.Month < 1 || req.Month > 12 || req.Year < s.startDate.Year() {
		return UploadResult{}, fmt.Errorf("%d-%02d: %w", req.Year, req.Month, ErrBadPeriod)
	}

	exists, err := s.store.UploadExists(ctx, req.Year, req.Month)
	if err != nil {
		return UploadResult{}, err
	}
	if exists {
		if !req.Overwrite {
			return UploadResult{}, &UploadExistsError{Year: req.Year, Month: req.Month}
		}
		if err := s.store.DeleteUpload(ctx, req.Year, req.Month); err != nil {
			return UploadResult{}, fmt.Errorf("replacing upload: %w", err)
		}
		metrics.RecordUploadDeleted()
	}

	uploadID, err := s.store.CreateUpload(ctx, model.MonthlyUpload{
		Year:           req.Year,
		Month:          req.Month,
		UploadDate:     time.Now(),
		TaxRate:        req.TaxRate,
		OreConvertRate: req.OreConvertRate,
		UploadedBy:     req.UploadedBy,
	})
	if err != nil {
		return UploadResult{}, err
	}

	res := UploadResult{UploadID: uploadID}
	if err := s.storeSheets(ctx, uploadID, wb, &res); err != nil {
		// Records insert sheet-by-sheet; drop the partial upload so a
		// failed request leaves no trace.
		if delErr := s.store.DeleteUpload(ctx, req.Year, req.Month); delErr != nil {
			s.logger.Error(ctx, "rolling back failed upload",
				logger.Int64("upload_id", uploadID),
				logger.Error(delErr))
		}
		return UploadResult{}, err
	}

	metrics.RecordUpload()
	s.logger.Info(ctx, "monthly upload stored",
		logger.Int("year", req.Year),
		logger.Int("month", req.Month),
		logger.Int("pap_rows", res.PAPRows),
		logger.Int("bounty_rows", res.BountyRows),
		logger.Int("mining_rows", res.MiningRows))
	return res, nil
}

func (s *Service) storeSheets(ctx context.Context, uploadID int64, wb xlsx.Workbook, res *UploadResult) error {
	papRecs := make([]model.PAPRecord, 0, len(wb.PAP))
	for _, row := range wb.PAP {
		c, err := s.store.FindOrCreateCharacterByName(ctx, row.CharacterName, row.PlayerTitle)
		if err != nil {
			return fmt.Errorf("pap row %q: %w", row.CharacterName, err)
		}
		// Titles drift between months; the sheet is authoritative.
		if row.PlayerTitle != "" && row.PlayerTitle != c.Title {
			if err := s.store.UpdateCharacterTitle(ctx, c.ID, row.PlayerTitle); err != nil {
				return err
			}
		}
		papRecs = append(papRecs, model.PAPRecord{
			UploadID:     uploadID,
			CharacterID:  c.ID,
			PAPPoints:    row.PAPPoints,
			StrategicPAP: row.StrategicPAP,
		})
	}
	if err := s.store.InsertPAPRecords(ctx, papRecs); err != nil {
		return err
	}
	res.PAPRows = len(papRecs)
	metrics.RecordUploadRows(xlsx.SheetPAP, len(papRecs))

	bountyRecs := make([]model.BountyRecord, 0, len(wb.Bounty))
	for _, row := range wb.Bounty {
		c, err := s.store.FindOrCreateCharacterByName(ctx, row.CharacterName, "")
		if err != nil {
			return fmt.Errorf("bounty row %q: %w", row.CharacterName, err)
		}
		bountyRecs = append(bountyRecs, model.BountyRecord{
			UploadID:    uploadID,
			CharacterID: c.ID,
			TaxISK:      row.TaxISK,
		})
	}
	if err := s.store.InsertBountyRecords(ctx, bountyRecs); err != nil {
		return err
	}
	res.BountyRows = len(bountyRecs)
	metrics.RecordUploadRows(xlsx.SheetBounty, len(bountyRecs))

	miningRecs := make([]model.MiningRecord, 0, len(wb.Mining))
	for _, row := range wb.Mining {
		c, err := s.store.FindOrCreateCharacterByName(ctx, row.CharacterName, "")
		if err != nil {
			return fmt.Errorf("mining row %q: %w", row.CharacterName, err)
		}
		if c.PlayerID == 0 && row.MainCharacter != "" {
			// Mining alts inherit their main's player.
			main, err := s.store.FindOrCreateCharacterByName(ctx, row.MainCharacter, "")
			if err != nil {
				return fmt.Errorf("mining row %q main: %w", row.CharacterName, err)
			}
			if main.PlayerID != 0 {
				if err := s.store.AssignCharacter(ctx, c.ID, main.PlayerID); err != nil {
					return err
				}
			}
		}
		miningRecs = append(miningRecs, model.MiningRecord{
			UploadID:    uploadID,
			CharacterID: c.ID,
			VolumeM3:    row.VolumeM3,
		})
	}
	if err := s.store.InsertMiningRecords(ctx, miningRecs); err != nil {
		return err
	}
	res.MiningRows = len(miningRecs)
	metrics.RecordUploadRows(xlsx.SheetMining, len(miningRecs))

	return nil
}

// ListUploads lists stored uploads, newest month first.
func (s *Service) ListUploads(ctx context.Context) ([]model.MonthlyUpload, error) {
	return s.store.ListUploads(ctx)
}

// UploadExists probes for an upload.
func (s *Service) UploadExists(ctx context.Context, year, month int) (bool, error) {
	return s.store.UploadExists(ctx, year, month)
}

// DeleteUpload removes an upload and its records.
func (s *Service) DeleteUpload(ctx context.Context, year, month int) error {
	if err := s.store.DeleteUpload(ctx, year, month); err != nil {
		return err
	}
	metrics.RecordUploadDeleted()
	return nil
}

// UploadSummary reconciles one month's upload into per-player aggregates.
func (s *Service) UploadSummary(ctx context.Context, year, month int) (reconcile.Summary, error) {
	upload, err := s.store.UploadByMonth(ctx, year, month)
	if err != nil {
		return reconcile.Summary{}, err
	}
	rows, err := s.store.UploadRows(ctx, upload.ID)
	if err != nil {
		return reconcile.Summary{}, err
	}
	sum := s.summarizer.Summarize(upload, rows)
	// Rows without a player fold into the unclaimed bucket; give that
	// entry the unclaimed player's real id rather than zero.
	for i := range sum.Players {
		if sum.Players[i].PlayerID != 0 {
			continue
		}
		p, err := s.store.FindOrCreatePlayer(ctx, model.UnclaimedTitle)
		if err != nil {
			return reconcile.Summary{}, err
		}
		sum.Players[i].PlayerID = p.ID
	}
	return sum, nil
}
