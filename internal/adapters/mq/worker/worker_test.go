package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/aflyhorse/kmstat/internal/adapters/mq/queue"
	"github.com/aflyhorse/kmstat/internal/adapters/repository"
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

type fakeResolver struct {
	mu        sync.Mutex
	ensured   []int64
	values    map[int64]float64
	ensureErr error
	valueErr  error
}

func (f *fakeResolver) EnsureCharacter(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ensureErr != nil {
		return f.ensureErr
	}
	f.ensured = append(f.ensured, id)
	return nil
}

func (f *fakeResolver) KillmailValue(ctx context.Context, id int64) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.valueErr != nil {
		return 0, f.valueErr
	}
	return f.values[id], nil
}

type fakeSink struct {
	mu       sync.Mutex
	inserted []model.Killmail
	err      error
}

func (f *fakeSink) InsertKillmail(ctx context.Context, k model.Killmail) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.inserted = append(f.inserted, k)
	return nil
}

func (f *fakeSink) killmails() []model.Killmail {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Killmail, len(f.inserted))
	copy(out, f.inserted)
	return out
}

func TestProcessTask(t *testing.T) {
	Convey("Given a worker with fakes", t, func() {
		q := queue.NewInMemoryQueue()
		resolver := &fakeResolver{values: map[int64]float64{77: 250e6}}
		sink := &fakeSink{}
		w := NewImportWorker(q, resolver, sink, WithName("test"))
		ctx := context.Background()

		task := queue.Task{
			KillmailID:       77,
			Time:             time.Date(2024, time.May, 1, 10, 0, 0, 0, time.UTC),
			CharacterID:      101,
			SolarSystemID:    30000142,
			VictimShipTypeID: 587,
		}

		Convey("a resolvable task is stored with its appraised value", func() {
			So(w.processTask(ctx, task), ShouldBeNil)
			So(resolver.ensured, ShouldResemble, []int64{101})
			So(sink.inserted, ShouldHaveLength, 1)
			So(sink.inserted[0].ID, ShouldEqual, 77)
			So(sink.inserted[0].TotalValue, ShouldAlmostEqual, 250e6)
		})

		Convey("an unpriced killmail is stored at zero value", func() {
			resolver.valueErr = errors.New("zkill down")
			So(w.processTask(ctx, task), ShouldBeNil)
			So(sink.inserted, ShouldHaveLength, 1)
			So(sink.inserted[0].TotalValue, ShouldEqual, 0)
		})

		Convey("a character resolution failure is an error", func() {
			resolver.ensureErr = errors.New("esi down")
			So(w.processTask(ctx, task), ShouldNotBeNil)
			So(sink.inserted, ShouldHaveLength, 0)
		})

		Convey("a duplicate killmail is silently skipped", func() {
			sink.err = repository.ErrDuplicate
			So(w.processTask(ctx, task), ShouldBeNil)
		})

		Convey("other sink failures are errors", func() {
			sink.err = errors.New("disk full")
			So(w.processTask(ctx, task), ShouldNotBeNil)
		})
	})
}

func TestPoolDrainsQueue(t *testing.T) {
	Convey("Given a running pool", t, func() {
		q := queue.NewInMemoryQueue()
		resolver := &fakeResolver{values: map[int64]float64{}}
		sink := &fakeSink{}
		pool := NewPool(3, q, resolver, sink)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		pool.Start(ctx)

		Convey("enqueued tasks are all stored after shutdown", func() {
			for i := int64(1); i <= 20; i++ {
				So(q.Enqueue(ctx, queue.Task{
					KillmailID: i, Time: time.Now(), CharacterID: 101,
				}), ShouldBeTrue)
			}

			So(pool.Shutdown(ctx), ShouldBeNil)
			So(sink.killmails(), ShouldHaveLength, 20)
		})
	})
}
