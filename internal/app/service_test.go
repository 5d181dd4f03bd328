package service

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/aflyhorse/kmstat/internal/adapters/esi"
	"github.com/aflyhorse/kmstat/internal/adapters/everef"
	"github.com/aflyhorse/kmstat/internal/adapters/repository"
	"github.com/aflyhorse/kmstat/internal/adapters/xlsx"
	"github.com/aflyhorse/kmstat/internal/domain/model"
	"github.com/aflyhorse/kmstat/pkg/logger"
)

func init() {
	// Initialize logging for tests
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

type fakeUpstream struct {
	characters map[int64]esi.Character
	values     map[int64]float64
}

func (f *fakeUpstream) GetCharacter(ctx context.Context, id int64) (esi.Character, error) {
	ch, ok := f.characters[id]
	if !ok {
		return esi.Character{}, esi.ErrNotFound
	}
	return ch, nil
}

func (f *fakeUpstream) GetKillmailValue(ctx context.Context, id int64) (float64, error) {
	v, ok := f.values[id]
	if !ok {
		return 0, esi.ErrNotFound
	}
	return v, nil
}

// fixtureFetcher serves the testdata archive for exactly one day.
type fixtureFetcher struct {
	day time.Time
}

func (f *fixtureFetcher) FetchDay(ctx context.Context, day time.Time) (io.ReadCloser, error) {
	if !day.Equal(f.day) {
		return nil, everef.ErrNoArchive
	}
	return os.Open(filepath.Join("testdata", "killmails.tar.bz2"))
}

func newTestService(t *testing.T, opts ...Option) (*Service, repository.Store) {
	t.Helper()
	store, err := repository.Open(filepath.Join(t.TempDir(), "kmstat.db"))
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}

	base := []Option{
		WithStore(store),
		WithCorporation(98000001, 0),
		WithStartDate(time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)),
		WithWorkerCount(2),
	}
	svc := New(append(base, opts...)...)
	if err := svc.InitDB(context.Background(), false); err != nil {
		t.Fatalf("initdb: %v", err)
	}
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("starting service: %v", err)
	}
	t.Cleanup(svc.Stop)
	return svc, store
}

func seedReference(t *testing.T, store repository.Store) {
	t.Helper()
	ctx := context.Background()
	if _, err := store.UpsertSolarSystems(ctx, []model.SolarSystem{
		{ID: 30000142, Name: "Jita"}, {ID: 30000144, Name: "Perimeter"}, {ID: 30002187, Name: "Amarr"},
	}); err != nil {
		t.Fatalf("seeding systems: %v", err)
	}
	if _, err := store.UpsertItemTypes(ctx, []model.ItemType{
		{ID: 587, Name: "Rifter"}, {ID: 670, Name: "Capsule"}, {ID: 24698, Name: "Drake"},
	}); err != nil {
		t.Fatalf("seeding types: %v", err)
	}
}

func TestImportDay(t *testing.T) {
	Convey("Given a service over the fixture archive", t, func() {
		day := time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC)
		upstream := &fakeUpstream{
			characters: map[int64]esi.Character{
				101: {Name: "Alpha Pilot", Title: "<color=0xFFFF0000>Alpha Squad</color>", CorporationID: 98000001},
				102: {Name: "Beta Pilot", CorporationID: 98000001},
			},
			values: map[int64]float64{1001: 250e6},
		}
		svc, store := newTestService(t,
			WithUpstream(upstream),
			WithArchiveFetcher(&fixtureFetcher{day: day}),
		)
		seedReference(t, store)
		ctx := context.Background()

		Convey("the corp's outward kill is imported, own-member and no-pilot kills are not", func() {
			stats, err := svc.ImportDay(ctx, day)
			So(err, ShouldBeNil)
			// 1001 matches; 1002 is a kill on a corp member; 1003's final
			// blow carries no character.
			So(stats.Matched, ShouldEqual, 1)
			So(stats.Enqueued, ShouldEqual, 1)

			So(svc.Drain(ctx), ShouldBeNil)
			waitFor(t, func() bool {
				ok, _ := store.KillmailExists(ctx, 1001)
				return ok
			})

			c, err := store.CharacterByID(ctx, 101)
			So(err, ShouldBeNil)
			So(c.Name, ShouldEqual, "Alpha Pilot")

			Convey("the killer joins the player named by its corp title", func() {
				So(c.PlayerID, ShouldNotEqual, 0)
				p, err := store.PlayerByID(ctx, c.PlayerID)
				So(err, ShouldBeNil)
				So(p.Title, ShouldEqual, "<color=0xFFFF0000>Alpha Squad</color>")

				rows, err := svc.YearlyLeaderboard(ctx, 2024)
				So(err, ShouldBeNil)
				So(rows, ShouldHaveLength, 1)
				So(rows[0].Name, ShouldEqual, "Alpha Squad")
			})

			Convey("and a second import counts it as duplicate", func() {
				stats, err := svc.ImportDay(ctx, day)
				So(err, ShouldBeNil)
				So(stats.Enqueued, ShouldEqual, 0)
				So(stats.Duplicates, ShouldEqual, 1)
			})
		})

		Convey("an untitled character lands in the unclaimed bucket", func() {
			So(svc.EnsureCharacter(ctx, 102), ShouldBeNil)

			c, err := store.CharacterByID(ctx, 102)
			So(err, ShouldBeNil)
			So(c.PlayerID, ShouldNotEqual, 0)
			p, err := store.PlayerByID(ctx, c.PlayerID)
			So(err, ShouldBeNil)
			So(p.Title, ShouldEqual, model.UnclaimedTitle)
		})

		Convey("ImportPending walks from the start date and records progress", func() {
			// Only the fixture day exists, and it is the first pending day.
			So(store.SetStateDate(ctx, model.StateLatestUpdate, day.AddDate(0, 0, -1)), ShouldBeNil)

			stats, err := svc.ImportPending(ctx)
			So(err, ShouldBeNil)
			So(stats.Enqueued, ShouldEqual, 1)

			last, ok, err := store.StateDate(ctx, model.StateLatestUpdate)
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)
			So(last.Equal(day), ShouldBeTrue)
		})
	})
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestLeaderboards(t *testing.T) {
	Convey("Given a service with stored killmails", t, func() {
		svc, store := newTestService(t)
		seedReference(t, store)
		ctx := context.Background()

		p, err := store.FindOrCreatePlayer(ctx, "<color=0xFFFF0000>Alpha Squad</color>")
		So(err, ShouldBeNil)
		c, err := store.InsertCharacter(ctx, model.Character{ID: 101, Name: "Alpha Pilot", PlayerID: p.ID})
		So(err, ShouldBeNil)
		So(store.InsertKillmail(ctx, model.Killmail{
			ID: 1, Time: time.Date(2024, time.March, 10, 6, 0, 0, 0, time.UTC),
			CharacterID: c.ID, SolarSystemID: 30000142, VictimShipTypeID: 587,
			TotalValue: 300e6,
		}), ShouldBeNil)

		Convey("the yearly board decodes the color tag", func() {
			rows, err := svc.YearlyLeaderboard(ctx, 2024)
			So(err, ShouldBeNil)
			So(rows, ShouldHaveLength, 1)
			So(rows[0].Name, ShouldEqual, "Alpha Squad")
			So(rows[0].Color, ShouldEqual, "#FF0000")
			So(rows[0].TotalValue, ShouldAlmostEqual, 300e6)
		})

		Convey("the monthly board honours the month window", func() {
			rows, err := svc.MonthlyLeaderboard(ctx, 2024, 3)
			So(err, ShouldBeNil)
			So(rows, ShouldHaveLength, 1)

			empty, err := svc.MonthlyLeaderboard(ctx, 2024, 4)
			So(err, ShouldBeNil)
			So(empty, ShouldHaveLength, 0)
		})

		Convey("periods outside the window are rejected", func() {
			_, err := svc.YearlyLeaderboard(ctx, 2019)
			So(errors.Is(err, ErrBadPeriod), ShouldBeTrue)

			_, err = svc.MonthlyLeaderboard(ctx, 2024, 13)
			So(errors.Is(err, ErrBadPeriod), ShouldBeTrue)
		})

		Convey("search clamps the page size", func() {
			got, err := svc.Search(ctx, repository.SearchQuery{CharacterName: "Alpha Pilot", Limit: 100000})
			So(err, ShouldBeNil)
			So(got, ShouldHaveLength, 1)
			So(got[0].SystemName, ShouldEqual, "Jita")
		})
	})
}

func TestProcessUpload(t *testing.T) {
	Convey("Given a service and a parsed workbook", t, func() {
		svc, store := newTestService(t)
		ctx := context.Background()

		wb := xlsx.Workbook{
			PAP: []xlsx.PAPRow{
				{CharacterName: "Pilot One", PlayerTitle: "<color=0xFF00FF00>Alpha</color>", PAPPoints: 4, StrategicPAP: 1},
				{CharacterName: "Pilot Two", PAPPoints: 1},
			},
			Bounty: []xlsx.BountyRow{
				{CharacterName: "Pilot One", TaxISK: 2e8},
			},
			Mining: []xlsx.MiningRow{
				{CharacterName: "Miner Alt", MainCharacter: "Pilot One", VolumeM3: 50000},
			},
		}
		req := UploadRequest{Year: 2024, Month: 5, TaxRate: 0.1, OreConvertRate: 100, UploadedBy: "admin"}

		Convey("the workbook is stored with characters created on the fly", func() {
			res, err := svc.ProcessUpload(ctx, req, wb)
			So(err, ShouldBeNil)
			So(res.PAPRows, ShouldEqual, 2)
			So(res.BountyRows, ShouldEqual, 1)
			So(res.MiningRows, ShouldEqual, 1)

			Convey("the mining alt inherited its main's player", func() {
				main, err := store.CharacterByName(ctx, "Pilot One")
				So(err, ShouldBeNil)
				So(main.PlayerID, ShouldBeGreaterThan, 0)

				alt, err := store.CharacterByName(ctx, "Miner Alt")
				So(err, ShouldBeNil)
				So(alt.PlayerID, ShouldEqual, main.PlayerID)
			})

			Convey("a repeat upload conflicts unless overwrite is set", func() {
				_, err := svc.ProcessUpload(ctx, req, wb)
				var conflict *UploadExistsError
				So(errors.As(err, &conflict), ShouldBeTrue)
				So(conflict.Year, ShouldEqual, 2024)
				So(conflict.Month, ShouldEqual, 5)

				over := req
				over.Overwrite = true
				res, err := svc.ProcessUpload(ctx, over, wb)
				So(err, ShouldBeNil)
				So(res.PAPRows, ShouldEqual, 2)
			})

			Convey("the summary aggregates per player", func() {
				sum, err := svc.UploadSummary(ctx, 2024, 5)
				So(err, ShouldBeNil)
				So(sum.Year, ShouldEqual, 2024)
				So(sum.PAPRecords, ShouldEqual, 2)
				So(sum.Players, ShouldNotBeEmpty)

				// Alpha leads on pap and is qualified.
				So(sum.Players[0].PlayerTitle, ShouldEqual, "Alpha")
				So(sum.Players[0].TitleColor, ShouldEqual, "#00FF00")
				So(sum.Players[0].TotalPAP, ShouldAlmostEqual, 4)
				So(sum.Players[0].Status, ShouldEqual, "qualified")

				// Pilot Two has no title, so it folds into the unclaimed
				// bucket under that player's real id.
				unclaimed, err := store.PlayerByTitle(ctx, model.UnclaimedTitle)
				So(err, ShouldBeNil)
				So(sum.Players[1].PlayerID, ShouldEqual, unclaimed.ID)
			})

			Convey("deleting the upload removes it", func() {
				So(svc.DeleteUpload(ctx, 2024, 5), ShouldBeNil)
				ok, err := svc.UploadExists(ctx, 2024, 5)
				So(err, ShouldBeNil)
				So(ok, ShouldBeFalse)
			})
		})

		Convey("an out-of-range month is rejected up front", func() {
			bad := req
			bad.Month = 0
			_, err := svc.ProcessUpload(ctx, bad, wb)
			So(errors.Is(err, ErrBadPeriod), ShouldBeTrue)
		})
	})
}

func TestAssociateCharacter(t *testing.T) {
	Convey("Given a service with an unclaimed character", t, func() {
		svc, store := newTestService(t)
		ctx := context.Background()

		c, err := store.InsertCharacter(ctx, model.Character{ID: 7001, Name: "Wanderer"})
		So(err, ShouldBeNil)

		Convey("associating with a title creates the player and assigns it", func() {
			So(svc.AssociateCharacter(ctx, c.ID, "Night Crew"), ShouldBeNil)

			got, err := store.CharacterByID(ctx, c.ID)
			So(err, ShouldBeNil)
			So(got.Title, ShouldEqual, "Night Crew")

			p, err := store.PlayerByTitle(ctx, "Night Crew")
			So(err, ShouldBeNil)
			So(got.PlayerID, ShouldEqual, p.ID)
		})

		Convey("association works by in-game name too", func() {
			So(svc.AssociateCharacterByName(ctx, "Wanderer", "Night Crew"), ShouldBeNil)

			got, err := store.CharacterByID(ctx, c.ID)
			So(err, ShouldBeNil)
			So(got.PlayerID, ShouldBeGreaterThan, 0)

			err = svc.AssociateCharacterByName(ctx, "Nobody", "Night Crew")
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})

		Convey("a character without any title cannot be associated", func() {
			err := svc.AssociateCharacter(ctx, c.ID, "")
			So(errors.Is(err, repository.ErrNoTitle), ShouldBeTrue)
		})

		Convey("an unknown character reports not found", func() {
			err := svc.AssociateCharacter(ctx, 999999, "Anything")
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})
	})
}

func TestInitDBSeedsAdmin(t *testing.T) {
	Convey("Given a service configured with admin credentials", t, func() {
		store, err := repository.Open(filepath.Join(t.TempDir(), "kmstat.db"))
		So(err, ShouldBeNil)
		defer store.Close()

		svc := New(
			WithStore(store),
			WithAdminSeed("admin", "hunter2"),
		)
		ctx := context.Background()

		Convey("initdb seeds the unclaimed player and the admin user", func() {
			So(svc.InitDB(ctx, false), ShouldBeNil)

			_, err := store.PlayerByTitle(ctx, model.UnclaimedTitle)
			So(err, ShouldBeNil)

			u, err := store.UserByUsername(ctx, "admin")
			So(err, ShouldBeNil)
			So(u.PasswordHash, ShouldNotBeEmpty)
			So(u.PasswordHash, ShouldNotEqual, "hunter2")

			Convey("and running it again is idempotent", func() {
				So(svc.InitDB(ctx, false), ShouldBeNil)
			})
		})
	})
}
