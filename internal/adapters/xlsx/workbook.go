// Package xlsx reads monthly activity workbooks into typed sheet rows.
package xlsx

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Sheet names the workbook must carry.
const (
	SheetPAP    = "PAP"
	SheetBounty = "Bounty"
	SheetMining = "Mining"
)

// PAPRow is one fleet-participation row.
type PAPRow struct {
	CharacterName string
	PlayerTitle   string
	PAPPoints     float64
	StrategicPAP  float64
}

// BountyRow is one bounty-tax row.
type BountyRow struct {
	CharacterName string
	TaxISK        float64
}

// MiningRow is one mining-volume row. MainCharacter names the pilot's main
// when the sheet carries that column, so alts can inherit its player.
type MiningRow struct {
	CharacterName string
	MainCharacter string
	VolumeM3      float64
}

// Workbook is a fully parsed monthly workbook.
type Workbook struct {
	PAP    []PAPRow
	Bounty []BountyRow
	Mining []MiningRow
}

// Read parses a workbook stream. Rows without a character name are skipped,
// numeric cells that fail to parse count as zero.
func Read(r io.Reader) (Workbook, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return Workbook{}, fmt.Errorf("opening workbook: %w", err)
	}
	defer f.Close()

	var wb Workbook

	err = eachRow(f, SheetPAP, []string{"Character", "Player", "PAP", "Strategic PAP"},
		func(cells []string) {
			if cells[0] == "" {
				return
			}
			wb.PAP = append(wb.PAP, PAPRow{
				CharacterName: cells[0],
				PlayerTitle:   cells[1],
				PAPPoints:     parseNumber(cells[2]),
				StrategicPAP:  parseNumber(cells[3]),
			})
		})
	if err != nil {
		return Workbook{}, err
	}

	err = eachRow(f, SheetBounty, []string{"Character", "Tax"},
		func(cells []string) {
			if cells[0] == "" {
				return
			}
			wb.Bounty = append(wb.Bounty, BountyRow{
				CharacterName: cells[0],
				TaxISK:        parseNumber(cells[1]),
			})
		})
	if err != nil {
		return Workbook{}, err
	}

	err = eachRow(f, SheetMining, []string{"Character", "Volume", "?Main Character"},
		func(cells []string) {
			if cells[0] == "" {
				return
			}
			wb.Mining = append(wb.Mining, MiningRow{
				CharacterName: cells[0],
				VolumeM3:      parseNumber(cells[1]),
				MainCharacter: cells[2],
			})
		})
	if err != nil {
		return Workbook{}, err
	}

	return wb, nil
}

// eachRow locates the wanted columns by header name and feeds their trimmed
// values, in wanted order, to fn for every data row. A "?" prefix marks a
// column as optional; absent optional columns yield empty cells.
func eachRow(f *excelize.File, sheet string, wanted []string, fn func([]string)) error {
	rows, err := f.GetRows(sheet)
	if err != nil {
		return fmt.Errorf("sheet %s: %w", sheet, ErrMissingSheet)
	}
	if len(rows) == 0 {
		return fmt.Errorf("sheet %s: %w", sheet, ErrEmptySheet)
	}

	idx := make([]int, len(wanted))
	for i, col := range wanted {
		optional := strings.HasPrefix(col, "?")
		col = strings.TrimPrefix(col, "?")
		idx[i] = -1
		for j, header := range rows[0] {
			if strings.EqualFold(strings.TrimSpace(header), col) {
				idx[i] = j
				break
			}
		}
		if idx[i] < 0 && !optional {
			return fmt.Errorf("sheet %s: %w: %s", sheet, ErrMissingColumn, col)
		}
	}

	for _, row := range rows[1:] {
		cells := make([]string, len(wanted))
		for i, j := range idx {
			if j >= 0 && j < len(row) {
				cells[i] = strings.TrimSpace(row[j])
			}
		}
		fn(cells)
	}
	return nil
}

func parseNumber(s string) float64 {
	if s == "" {
		return 0
	}
	// Spreadsheets localize large numbers with thousands separators.
	s = strings.ReplaceAll(s, ",", "")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
