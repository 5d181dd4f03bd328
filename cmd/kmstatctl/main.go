// Command kmstatctl runs operator tasks against the statistics database.
//
// Subcommands:
//
//	initdb [--drop]            create tables and seed the admin account
//	updatesde                  refresh solar system and item type names
//	parse [YYYY-MM-DD]         import one archive day, or all pending days
//	updateplayer --char --title attach a character to a player by title
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aflyhorse/kmstat/internal/adapters/esi"
	"github.com/aflyhorse/kmstat/internal/adapters/everef"
	"github.com/aflyhorse/kmstat/internal/adapters/repository"
	"github.com/aflyhorse/kmstat/internal/adapters/sde"
	service "github.com/aflyhorse/kmstat/internal/app"
	"github.com/aflyhorse/kmstat/internal/config"
	"github.com/aflyhorse/kmstat/pkg/logger"
)

func main() {
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load(ctx)
	if err != nil {
		fatal("load config", err)
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		_ = logger.SetLevelString("info")
	}

	var run func(ctx context.Context, cfg *config.Config, args []string) error
	switch os.Args[1] {
	case "initdb":
		run = runInitDB
	case "updatesde":
		run = runUpdateSDE
	case "parse":
		run = runParse
	case "updateplayer":
		run = runUpdatePlayer
	default:
		usage()
		os.Exit(2)
	}

	if err := run(ctx, cfg, os.Args[2:]); err != nil {
		fatal(os.Args[1], err)
	}
}

func usage() {
	os.Stderr.WriteString(`usage: kmstatctl <command> [flags]

commands:
  initdb [--drop]                      create tables and seed the admin account
  updatesde                            refresh SDE reference names
  parse [YYYY-MM-DD]                   import one day, or all pending days
  updateplayer --char <name> --title <t> attach a character to a player
`)
}

func fatal(op string, err error) {
	os.Stderr.WriteString(op + ": " + err.Error() + "\n")
	os.Exit(1)
}

// newService builds a service wired like the server, without starting the
// import pipeline. Callers that enqueue work must Start it themselves.
func newService(cfg *config.Config) (*service.Service, *repository.SQLStore, error) {
	store, err := repository.Open(cfg.DatabasePath)
	if err != nil {
		return nil, nil, err
	}

	log := logger.Get()
	svc := service.New(
		service.WithStore(store),
		service.WithUpstream(esi.NewClient(
			esi.WithESIEndpoint(cfg.ESIEndpoint),
			esi.WithZkillEndpoint(cfg.ZkillEndpoint),
			esi.WithLogger(log.Named("esi")),
		)),
		service.WithArchiveFetcher(everef.NewFetcher(
			everef.WithEndpoint(cfg.EverefEndpoint),
			everef.WithSpoolDir(cfg.TempDir),
			everef.WithLogger(log.Named("everef")),
		)),
		service.WithSDERefresher(sde.NewRefresher(store,
			sde.WithEndpoint(cfg.SDEEndpoint),
			sde.WithLogger(log.Named("sde")),
		)),
		service.WithCorporation(cfg.CorporationID, cfg.AllianceID),
		service.WithLocation(cfg.Location()),
		service.WithStartDate(cfg.Start()),
		service.WithWorkerCount(cfg.WorkerCount),
		service.WithQueueSize(cfg.QueueSize),
		service.WithDedupeSize(cfg.DedupeSize),
		service.WithAdminSeed(cfg.AdminUser, cfg.AdminPassword),
		service.WithLogger(log.Named("ctl")),
	)
	return svc, store, nil
}

func runInitDB(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("initdb", flag.ExitOnError)
	drop := fs.Bool("drop", false, "drop existing tables first")
	if err := fs.Parse(args); err != nil {
		return err
	}

	svc, store, err := newService(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := svc.InitDB(ctx, *drop); err != nil {
		return err
	}
	fmt.Println("database initialized:", cfg.DatabasePath)
	return nil
}

func runUpdateSDE(ctx context.Context, cfg *config.Config, args []string) error {
	svc, store, err := newService(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	res, err := svc.RefreshSDE(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("solar systems: %d (%d new), item types: %d (%d new)\n",
		res.SolarSystems, res.NewSolarSystems, res.ItemTypes, res.NewItemTypes)
	return nil
}

func runParse(ctx context.Context, cfg *config.Config, args []string) error {
	svc, _, err := newService(cfg)
	if err != nil {
		return err
	}
	if err := svc.Start(ctx); err != nil {
		return err
	}
	defer svc.Stop()

	var stats service.ImportStats
	if len(args) > 0 {
		day, perr := time.Parse("2006-01-02", args[0])
		if perr != nil {
			return fmt.Errorf("bad date %q: %w", args[0], perr)
		}
		stats, err = svc.ImportDay(ctx, day)
	} else {
		stats, err = svc.ImportPending(ctx)
	}
	if err != nil {
		return err
	}

	// Imports enqueue work; wait for the pool to finish pricing and
	// inserting before tearing down.
	if err := svc.Drain(ctx); err != nil {
		return err
	}
	fmt.Printf("matched %d, enqueued %d, duplicates %d\n",
		stats.Matched, stats.Enqueued, stats.Duplicates)
	return nil
}

func runUpdatePlayer(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("updateplayer", flag.ExitOnError)
	name := fs.String("char", "", "character name")
	title := fs.String("title", "", "player title, empty to use the character's current title")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *name == "" {
		return fmt.Errorf("--char is required")
	}

	svc, store, err := newService(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := svc.AssociateCharacterByName(ctx, *name, *title); err != nil {
		return err
	}
	fmt.Printf("character %q associated\n", *name)
	return nil
}
