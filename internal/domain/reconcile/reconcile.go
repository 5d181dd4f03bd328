// Package reconcile computes per-player summaries for a monthly upload.
//
// Sheet rows are grouped by the owning player, numeric columns are summed,
// income is derived from the upload's tax and ore conversion parameters, and
// each player is assigned an activity status.
package reconcile

import (
	"sort"
	"time"

	"github.com/aflyhorse/kmstat/internal/domain/model"
	"github.com/aflyhorse/kmstat/internal/domain/nametag"
)

// Status labels assigned to players.
const (
	StatusQualified = "qualified" // met the PAP quota
	StatusRookie    = "rookie"    // inside the new-player protection window
	StatusFined     = "fined"     // missed quota with high income
	StatusExempt    = "exempt"    // missed quota with low income
)

// PlayerRef identifies the player a sheet row resolved to. A zero ID with an
// empty title means the row's character is unclaimed.
type PlayerRef struct {
	ID            int64
	Title         string // raw title, may carry a color tag
	MainCharacter string
	JoinDate      time.Time // zero when unknown
}

// PAPRow is a fleet-participation row joined with its player.
type PAPRow struct {
	Player       PlayerRef
	PAPPoints    float64
	StrategicPAP float64
}

// BountyRow is a bounty-tax row joined with its player.
type BountyRow struct {
	Player PlayerRef
	TaxISK float64
}

// MiningRow is a mining-volume row joined with its player.
type MiningRow struct {
	Player   PlayerRef
	VolumeM3 float64
}

// Rows bundles the three sheets of one upload.
type Rows struct {
	PAP    []PAPRow
	Bounty []BountyRow
	Mining []MiningRow
}

// PlayerSummary is the aggregate for one player.
type PlayerSummary struct {
	PlayerID      int64   `json:"player_id"`
	PlayerTitle   string  `json:"player_title"`
	TitleColor    string  `json:"title_color,omitempty"`
	MainCharacter string  `json:"main_character,omitempty"`
	TotalPAP      float64 `json:"total_pap"`
	StrategicPAP  float64 `json:"strategic_pap"`
	TotalTax      float64 `json:"total_tax"`
	MiningVolume  float64 `json:"mining_volume"`
	TotalIncome   float64 `json:"total_income"`
	Status        string  `json:"status"`
	Fine          float64 `json:"fine,omitempty"` // quota shortfall when fined
}

// Summary is the reconciliation result for one upload.
type Summary struct {
	Year           int             `json:"year"`
	Month          int             `json:"month"`
	UploadDate     time.Time       `json:"upload_date"`
	TaxRate        float64         `json:"tax_rate"`
	OreConvertRate float64         `json:"ore_convert_rate"`
	UploadedBy     string          `json:"uploaded_by"`
	PAPRecords     int             `json:"pap_records"`
	BountyRecords  int             `json:"bounty_records"`
	MiningRecords  int             `json:"mining_records"`
	Players        []PlayerSummary `json:"players"`
}

// Summarizer aggregates upload rows into player summaries.
type Summarizer struct {
	papQuota       float64
	fineIncomeISK  float64
	rookieDays     int
	unclaimedTitle string
}

// NewSummarizer constructs a Summarizer with default thresholds.
func NewSummarizer(opts ...Option) *Summarizer {
	s := &Summarizer{
		papQuota:       3,
		fineIncomeISK:  1_000_000_000,
		rookieDays:     90,
		unclaimedTitle: model.UnclaimedTitle,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Summarize performs the single-pass aggregation for one upload.
func (s *Summarizer) Summarize(upload model.MonthlyUpload, rows Rows) Summary {
	acc := make(map[string]*PlayerSummary)
	joins := make(map[string]time.Time)

	bucket := func(ref PlayerRef) *PlayerSummary {
		title := ref.Title
		if title == "" {
			title = s.unclaimedTitle
		}
		ps, ok := acc[title]
		if !ok {
			name, color := nametag.Parse(title)
			ps = &PlayerSummary{
				PlayerID:    ref.ID,
				PlayerTitle: name,
				TitleColor:  color,
			}
			acc[title] = ps
		}
		if ps.MainCharacter == "" && ref.MainCharacter != "" {
			ps.MainCharacter = ref.MainCharacter
		}
		if !ref.JoinDate.IsZero() {
			if _, ok := joins[title]; !ok {
				joins[title] = ref.JoinDate
			}
		}
		return ps
	}

	for _, r := range rows.PAP {
		ps := bucket(r.Player)
		ps.TotalPAP += r.PAPPoints
		ps.StrategicPAP += r.StrategicPAP
	}
	for _, r := range rows.Bounty {
		ps := bucket(r.Player)
		ps.TotalTax += r.TaxISK
	}
	for _, r := range rows.Mining {
		ps := bucket(r.Player)
		ps.MiningVolume += r.VolumeM3
	}

	firstDay := time.Date(upload.Year, time.Month(upload.Month), 1, 0, 0, 0, 0, time.UTC)

	players := make([]PlayerSummary, 0, len(acc))
	for title, ps := range acc {
		taxIncome := 0.0
		if upload.TaxRate > 0 {
			taxIncome = ps.TotalTax / upload.TaxRate
		}
		oreIncome := ps.MiningVolume * upload.OreConvertRate
		ps.TotalIncome = taxIncome + oreIncome

		join, hasJoin := joins[title]
		ps.Status, ps.Fine = s.status(ps.TotalPAP, ps.TotalIncome, join, hasJoin, firstDay)
		players = append(players, *ps)
	}

	sort.Slice(players, func(i, j int) bool {
		if players[i].TotalPAP != players[j].TotalPAP {
			return players[i].TotalPAP > players[j].TotalPAP
		}
		return players[i].PlayerTitle < players[j].PlayerTitle
	})

	return Summary{
		Year:           upload.Year,
		Month:          upload.Month,
		UploadDate:     upload.UploadDate,
		TaxRate:        upload.TaxRate,
		OreConvertRate: upload.OreConvertRate,
		UploadedBy:     upload.UploadedBy,
		PAPRecords:     len(rows.PAP),
		BountyRecords:  len(rows.Bounty),
		MiningRecords:  len(rows.Mining),
		Players:        players,
	}
}

// status assigns the activity label for one player.
// Rookie protection takes priority over fines regardless of income.
func (s *Summarizer) status(pap, income float64, join time.Time, hasJoin bool, firstDay time.Time) (string, float64) {
	if pap >= s.papQuota {
		return StatusQualified, 0
	}
	if hasJoin {
		daysSinceJoin := firstDay.Sub(join).Hours() / 24
		if daysSinceJoin < float64(s.rookieDays) {
			return StatusRookie, 0
		}
	}
	if income >= s.fineIncomeISK {
		return StatusFined, s.papQuota - pap
	}
	return StatusExempt, 0
}
