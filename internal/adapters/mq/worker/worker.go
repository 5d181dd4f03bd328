// Package worker drains the import queue, resolving each killmail and
// writing it to the store.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"time"

	"github.com/aflyhorse/kmstat/internal/adapters/mq/queue"
	"github.com/aflyhorse/kmstat/internal/adapters/repository"
	"github.com/aflyhorse/kmstat/internal/domain/model"
	"github.com/aflyhorse/kmstat/pkg/logger"
	"github.com/aflyhorse/kmstat/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultWorkerMultiplier = 2 // multiplier for runtime.NumCPU()
	workerShutdownTimeout   = 5 * time.Second
	poolShutdownTimeout     = 30 * time.Second
)

// Resolver fills in the pieces of a killmail that live upstream: the
// final-blow character's identity and the appraised ISK value.
type Resolver interface {
	EnsureCharacter(ctx context.Context, characterID int64) error
	KillmailValue(ctx context.Context, killmailID int64) (float64, error)
}

// Sink persists resolved killmails. *repository.SQLStore satisfies it.
type Sink interface {
	InsertKillmail(ctx context.Context, k model.Killmail) error
}

// Queue defines how workers receive tasks.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Task
}

// Worker processes import tasks until stopped.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown gracefully stops the worker.
	Shutdown(ctx context.Context) error
}

// ImportWorker implements Worker for killmail tasks.
type ImportWorker struct {
	queue    queue.Queue
	resolver Resolver
	sink     Sink
	name     string

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewImportWorker creates a new worker with configuration options.
func NewImportWorker(q queue.Queue, resolver Resolver, sink Sink, opts ...Option) *ImportWorker {
	w := &ImportWorker{
		queue:    q,
		resolver: resolver,
		sink:     sink,
		name:     "worker",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run starts the worker loop.
func (w *ImportWorker) Run(ctx context.Context) {
	defer close(w.done)

	tasks := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case t, ok := <-tasks:
			if !ok {
				return
			}
			if err := w.processTask(ctx, t); err != nil {
				w.logger.Error(ctx, "error processing killmail", logger.Error(err))
			}
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *ImportWorker) Shutdown(ctx context.Context) error {
	close(w.shutdown)
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// processTask resolves and stores a single killmail.
func (w *ImportWorker) processTask(ctx context.Context, t queue.Task) error {
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()
	metrics.RecordKillmailProcessed()

	if err := w.resolver.EnsureCharacter(ctx, t.CharacterID); err != nil {
		metrics.RecordWorkerError()
		metrics.RecordImportError()
		return fmt.Errorf("resolving character %d for killmail %d: %w", t.CharacterID, t.KillmailID, err)
	}

	value, err := w.resolver.KillmailValue(ctx, t.KillmailID)
	if err != nil {
		// An unpriced killmail still counts for activity, just at zero value.
		w.logger.Warn(ctx, "killmail value unavailable",
			logger.Int64("killmail_id", t.KillmailID),
			logger.Error(err))
		value = 0
	}

	err = w.sink.InsertKillmail(ctx, model.Killmail{
		ID:               t.KillmailID,
		Time:             t.Time,
		CharacterID:      t.CharacterID,
		SolarSystemID:    t.SolarSystemID,
		VictimShipTypeID: t.VictimShipTypeID,
		TotalValue:       value,
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			metrics.RecordKillmailSkipped()
			return nil
		}
		metrics.RecordWorkerError()
		metrics.RecordImportError()
		return fmt.Errorf("storing killmail %d: %w", t.KillmailID, err)
	}
	metrics.RecordKillmailInserted()
	return nil
}

// Pool manages multiple workers.
type Pool struct {
	workers []*ImportWorker
	queue   queue.Queue

	shutdown chan struct{}

	logger logger.Logger
}

// NewPool creates a worker pool of the requested size.
func NewPool(workerCount int, q queue.Queue, resolver Resolver, sink Sink) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}

	pool := &Pool{
		workers:  make([]*ImportWorker, workerCount),
		queue:    q,
		shutdown: make(chan struct{}),
		logger:   logger.Get().Named("worker-pool"),
	}
	for i := 0; i < workerCount; i++ {
		pool.workers[i] = NewImportWorker(q, resolver, sink,
			WithName("worker-"+strconv.Itoa(i)))
	}

	metrics.UpdateWorkerActiveCount(workerCount)
	return pool
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Stop stops all workers without draining the queue.
func (p *Pool) Stop() {
	close(p.shutdown)
	for _, w := range p.workers {
		close(w.shutdown)
	}
	for _, w := range p.workers {
		select {
		case <-w.done:
		case <-time.After(workerShutdownTimeout):
		}
	}
}

// Shutdown closes the queue and waits for workers to drain it.
func (p *Pool) Shutdown(ctx context.Context) error {
	if err := p.queue.Close(); err != nil {
		p.logger.Error(ctx, "error closing queue", logger.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}
	metrics.UpdateWorkerActiveCount(0)
	return nil
}
