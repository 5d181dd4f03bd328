// Command kmstatd runs the corporation statistics HTTP server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/aflyhorse/kmstat/internal/adapters/esi"
	"github.com/aflyhorse/kmstat/internal/adapters/everef"
	"github.com/aflyhorse/kmstat/internal/adapters/http/api"
	"github.com/aflyhorse/kmstat/internal/adapters/http/site"
	"github.com/aflyhorse/kmstat/internal/adapters/http/swagger"
	"github.com/aflyhorse/kmstat/internal/adapters/repository"
	"github.com/aflyhorse/kmstat/internal/adapters/sde"
	service "github.com/aflyhorse/kmstat/internal/app"
	"github.com/aflyhorse/kmstat/internal/auth"
	"github.com/aflyhorse/kmstat/internal/config"
	"github.com/aflyhorse/kmstat/internal/domain/reconcile"
	"github.com/aflyhorse/kmstat/pkg/logger"
	"github.com/aflyhorse/kmstat/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout            = 10 * time.Second
	writeTimeout           = 30 * time.Second
	idleTimeout            = 60 * time.Second
	readHeaderTimeout      = 5 * time.Second
	shutdownTimeout        = 30 * time.Second
	systemMetricsInterval  = 10 * time.Second
	serviceMetricsInterval = 5 * time.Second
	sessionPruneInterval   = 10 * time.Minute
)

func main() {
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	log := logger.Get()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info",
			logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	store, err := repository.Open(cfg.DatabasePath)
	if err != nil {
		log.Error(ctx, "failed to open database",
			logger.String("path", cfg.DatabasePath), logger.Error(err))
		os.Exit(1)
	}

	client := esi.NewClient(
		esi.WithESIEndpoint(cfg.ESIEndpoint),
		esi.WithZkillEndpoint(cfg.ZkillEndpoint),
		esi.WithLogger(log.Named("esi")),
	)
	fetcher := everef.NewFetcher(
		everef.WithEndpoint(cfg.EverefEndpoint),
		everef.WithSpoolDir(cfg.TempDir),
		everef.WithLogger(log.Named("everef")),
	)
	refresher := sde.NewRefresher(store,
		sde.WithEndpoint(cfg.SDEEndpoint),
		sde.WithLogger(log.Named("sde")),
	)
	summarizer := reconcile.NewSummarizer(
		reconcile.WithPAPQuota(cfg.PAPQuota),
		reconcile.WithFineIncomeISK(cfg.FineIncomeISK),
		reconcile.WithRookieDays(cfg.RookieDays),
	)

	svc := service.New(
		service.WithStore(store),
		service.WithUpstream(client),
		service.WithArchiveFetcher(fetcher),
		service.WithSDERefresher(refresher),
		service.WithSummarizer(summarizer),
		service.WithCorporation(cfg.CorporationID, cfg.AllianceID),
		service.WithLocation(cfg.Location()),
		service.WithStartDate(cfg.Start()),
		service.WithWorkerCount(cfg.WorkerCount),
		service.WithQueueSize(cfg.QueueSize),
		service.WithDedupeSize(cfg.DedupeSize),
		service.WithMaxSearchLimit(cfg.MaxSearchLimit),
		service.WithAdminSeed(cfg.AdminUser, cfg.AdminPassword),
		service.WithLogger(log.Named("service")),
	)
	if err := svc.Start(ctx); err != nil {
		log.Error(ctx, "failed to start service", logger.Error(err))
		os.Exit(1)
	}
	defer svc.Stop()

	sessions := auth.NewManager(store,
		auth.WithSessionTTL(time.Duration(cfg.SessionTTLMinutes)*time.Minute),
		auth.WithLogger(log.Named("auth")),
	)

	go startSystemMetricsUpdater(ctx)
	go startServiceMetricsUpdater(ctx, svc)
	go startSessionPruner(ctx, sessions)

	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	apiServer := api.NewServer(svc, sessions, api.WithMaxUploadBytes(cfg.MaxUploadBytes))
	apiServer.Register(ctx, mux)
	site.Register(ctx, mux)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "HTTP server failed", logger.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info(ctx, "shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	log.Info(ctx, "server stopped")
}

// startSystemMetricsUpdater refreshes process-level gauges periodically.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / 1e6
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}

// startServiceMetricsUpdater refreshes queue and store gauges periodically.
// GetStats itself pushes the gauges as a side effect.
func startServiceMetricsUpdater(ctx context.Context, svc *service.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			svc.GetStats()
		}
	}
}

// startSessionPruner drops expired login sessions periodically.
func startSessionPruner(ctx context.Context, sessions *auth.Manager) {
	ticker := time.NewTicker(sessionPruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sessions.Prune()
		}
	}
}
