// Package service provides the core business service that implements
// the dependencies required by the HTTP API and the admin CLI.
package service

import (
	"context"
	"io"
	"runtime"
	"sync"
	"time"

	"github.com/aflyhorse/kmstat/internal/adapters/esi"
	taskqueue "github.com/aflyhorse/kmstat/internal/adapters/mq/queue"
	workerpool "github.com/aflyhorse/kmstat/internal/adapters/mq/worker"
	"github.com/aflyhorse/kmstat/internal/adapters/repository"
	"github.com/aflyhorse/kmstat/internal/adapters/sde"
	"github.com/aflyhorse/kmstat/internal/domain/dedupe"
	"github.com/aflyhorse/kmstat/internal/domain/reconcile"
	"github.com/aflyhorse/kmstat/pkg/logger"
	"github.com/aflyhorse/kmstat/pkg/metrics"
)

// Upstream is the slice of the ESI/zKillboard client the service uses.
type Upstream interface {
	GetCharacter(ctx context.Context, characterID int64) (esi.Character, error)
	GetKillmailValue(ctx context.Context, killmailID int64) (float64, error)
}

// ArchiveFetcher streams daily killmail archives.
type ArchiveFetcher interface {
	FetchDay(ctx context.Context, day time.Time) (io.ReadCloser, error)
}

// Service wires the store, upstream clients and the import pipeline into
// the operations the API and CLI expose.
type Service struct {
	mu sync.RWMutex

	// Core components
	store      repository.Store
	upstream   Upstream
	fetcher    ArchiveFetcher
	refresher  *sde.Refresher
	summarizer *reconcile.Summarizer
	deduper    dedupe.Deduper
	taskQueue  taskqueue.Queue
	workerPool *workerpool.Pool

	// Configuration
	corporationID  int64
	allianceID     int64
	loc            *time.Location
	startDate      time.Time
	workerCount    int
	queueSize      int
	dedupeSize     int
	maxSearchLimit int
	adminUser      string
	adminPassword  string

	// State
	started bool

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the backing store. Required.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		s.store = store
	}
}

// WithUpstream sets the ESI/zKillboard client.
func WithUpstream(up Upstream) Option {
	return func(s *Service) {
		s.upstream = up
	}
}

// WithArchiveFetcher sets the killmail archive source.
func WithArchiveFetcher(f ArchiveFetcher) Option {
	return func(s *Service) {
		s.fetcher = f
	}
}

// WithSDERefresher sets the reference data refresher.
func WithSDERefresher(r *sde.Refresher) Option {
	return func(s *Service) {
		s.refresher = r
	}
}

// WithSummarizer replaces the reconciliation summarizer.
func WithSummarizer(sum *reconcile.Summarizer) Option {
	return func(s *Service) {
		if sum != nil {
			s.summarizer = sum
		}
	}
}

// WithCorporation sets the tracked corporation and its alliance.
// An alliance id of zero means the corporation flies independent.
func WithCorporation(corporationID, allianceID int64) Option {
	return func(s *Service) {
		s.corporationID = corporationID
		s.allianceID = allianceID
	}
}

// WithLocation sets the display timezone for period boundaries.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithStartDate sets the first day statistics cover.
func WithStartDate(t time.Time) Option {
	return func(s *Service) {
		if !t.IsZero() {
			s.startDate = t
		}
	}
}

// WithWorkerCount sets the number of import worker goroutines.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum size of the import task queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets the size of the killmail deduplication cache.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithMaxSearchLimit caps the page size of killmail searches.
func WithMaxSearchLimit(limit int) Option {
	return func(s *Service) {
		if limit > 0 {
			s.maxSearchLimit = limit
		}
	}
}

// WithAdminSeed sets the initial admin credentials used by InitDB.
func WithAdminSeed(username, password string) Option {
	return func(s *Service) {
		s.adminUser = username
		s.adminPassword = password
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(log logger.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.logger = log
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		summarizer:     reconcile.NewSummarizer(),
		loc:            time.UTC,
		startDate:      time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC),
		workerCount:    runtime.NumCPU() * 2,
		queueSize:      10000,
		dedupeSize:     100000,
		maxSearchLimit: 200,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}

	return s
}

// Start initializes and starts the import pipeline.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.store == nil {
		return ErrNoStore
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}

	s.logger.Info(ctx, "starting killmail service...")

	s.deduper = dedupe.NewInMemoryDeduper(
		dedupe.WithMaxSize(s.dedupeSize),
	)
	s.taskQueue = taskqueue.NewInMemoryQueue(
		taskqueue.WithCapacity(s.queueSize),
		taskqueue.WithBufferSize(s.queueSize),
	)
	s.workerPool = workerpool.NewPool(s.workerCount, s.taskQueue, s, s.store)
	s.workerPool.Start(ctx)

	s.started = true
	s.logger.Info(ctx, "killmail service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int64("corporation", s.corporationID),
		logger.Bool("independent", s.allianceID == 0),
	)

	return nil
}

// Stop drains the import queue and shuts the pipeline down.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx := context.Background()
	s.logger.Info(ctx, "stopping killmail service...")

	if s.workerPool != nil {
		_ = s.workerPool.Shutdown(ctx)
	}
	if s.store != nil {
		_ = s.store.Close()
	}

	s.started = false
	s.logger.Info(ctx, "killmail service stopped")
}

// Drain blocks until the import queue is empty or ctx expires. The CLI uses
// it to finish a parse run before exiting.
func (s *Service) Drain(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		if s.taskQueue == nil || s.taskQueue.Len(ctx) == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"corporation": s.corporationID,
	}

	if s.started {
		queueLen := s.taskQueue.Len(ctx)
		stats["queueLength"] = queueLen

		if players, characters, killmails, err := s.store.Counts(ctx); err == nil {
			stats["totalPlayers"] = players
			stats["totalCharacters"] = characters
			stats["totalKillmails"] = killmails

			metrics.UpdateTotalPlayers(players)
			metrics.UpdateTotalCharacters(characters)
			metrics.UpdateTotalKillmails(killmails)
		}
		metrics.UpdateQueueSize(queueLen)
	}

	return stats
}
