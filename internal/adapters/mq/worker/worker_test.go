package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	queue "github.com/okian/rankready/internal/adapters/mq/queue"
	worker "github.com/okian/rankready/internal/adapters/mq/worker"
	model "github.com/okian/rankready/internal/domain/model"
	"github.com/okian/rankready/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

type mockQueue struct {
	jobs chan model.RecommendationJob
	once sync.Once
}

func newMockQueue() *mockQueue {
	return &mockQueue{jobs: make(chan model.RecommendationJob, 10)}
}

func (mq *mockQueue) Dequeue(ctx context.Context) <-chan model.RecommendationJob {
	return mq.jobs
}

func (mq *mockQueue) Close() error {
	mq.once.Do(func() { close(mq.jobs) })
	return nil
}

type recorder struct {
	mu   sync.Mutex
	seen []string
	fail map[string]error
}

func (r *recorder) Process(ctx context.Context, job model.RecommendationJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, job.InstitutionID)
	if job.InstitutionID == "panic" {
		panic("boom")
	}
	return r.fail[job.InstitutionID]
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seen)
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a worker reading from a queue", t, func() {
		q := newMockQueue()
		rec := &recorder{fail: map[string]error{"bad": errors.New("generator down")}}
		w := worker.NewInMemoryWorker(q, rec, worker.WithName("test-worker"))
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go w.Run(ctx)

		convey.Convey("it processes every job including failing ones", func() {
			q.jobs <- model.RecommendationJob{InstitutionID: "a", Year: 2026}
			q.jobs <- model.RecommendationJob{InstitutionID: "bad", Year: 2026}
			q.jobs <- model.RecommendationJob{InstitutionID: "panic", Year: 2026}
			q.jobs <- model.RecommendationJob{InstitutionID: "b", Year: 2026}

			convey.So(waitFor(func() bool { return rec.count() == 4 }), convey.ShouldBeTrue)
			convey.So(w.Shutdown(context.Background()), convey.ShouldBeNil)
		})

		convey.Convey("it stops when the queue closes", func() {
			_ = q.Close()
			shutdownCtx, stop := context.WithTimeout(context.Background(), time.Second)
			defer stop()
			convey.So(w.Shutdown(shutdownCtx), convey.ShouldBeNil)
		})
	})
}

func TestWorkerJobTimeout(t *testing.T) {
	convey.Convey("Given a worker with a short job timeout", t, func() {
		q := newMockQueue()
		errs := make(chan error, 1)
		slow := worker.ProcessorFunc(func(ctx context.Context, _ model.RecommendationJob) error {
			<-ctx.Done()
			errs <- ctx.Err()
			return ctx.Err()
		})
		w := worker.NewInMemoryWorker(q, slow, worker.WithJobTimeout(20*time.Millisecond))
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go w.Run(ctx)

		convey.Convey("a job that outlives it is cancelled", func() {
			q.jobs <- model.RecommendationJob{InstitutionID: "slow", Year: 2026}

			select {
			case err := <-errs:
				convey.So(errors.Is(err, context.DeadlineExceeded), convey.ShouldBeTrue)
			case <-time.After(2 * time.Second):
				convey.So("job was not cancelled", convey.ShouldBeEmpty)
			}
			convey.So(w.Shutdown(context.Background()), convey.ShouldBeNil)
		})
	})
}

func TestPool(t *testing.T) {
	convey.Convey("Given a pool over the in-memory queue", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(16))
		rec := &recorder{}
		pool := worker.NewPool(3, q, rec)
		convey.So(pool.Size(), convey.ShouldEqual, 3)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		for _, id := range []string{"u1", "u2", "u3", "u4", "u5"} {
			convey.So(q.Enqueue(ctx, model.RecommendationJob{InstitutionID: id, Year: 2026}), convey.ShouldBeNil)
		}
		pool.Start(ctx)

		convey.Convey("shutdown drains queued jobs", func() {
			convey.So(pool.Shutdown(context.Background()), convey.ShouldBeNil)
			convey.So(rec.count(), convey.ShouldEqual, 5)
			convey.So(q.IsClosed(), convey.ShouldBeTrue)
		})
	})
}

func TestProcessorFunc(t *testing.T) {
	convey.Convey("ProcessorFunc forwards to the wrapped function", t, func() {
		var got model.RecommendationJob
		p := worker.ProcessorFunc(func(_ context.Context, j model.RecommendationJob) error {
			got = j
			return nil
		})
		convey.So(p.Process(context.Background(), model.RecommendationJob{InstitutionID: "x"}), convey.ShouldBeNil)
		convey.So(got.InstitutionID, convey.ShouldEqual, "x")
	})

	convey.Convey("NewPool defaults to at least one worker", t, func() {
		pool := worker.NewPool(0, newMockQueue(), worker.ProcessorFunc(func(context.Context, model.RecommendationJob) error { return nil }))
		convey.So(pool.Size(), convey.ShouldBeGreaterThan, 0)
	})
}
