package service_test

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/okian/rankready/internal/adapters/generation"
	"github.com/okian/rankready/internal/adapters/repository"
	service "github.com/okian/rankready/internal/app"
	"github.com/okian/rankready/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func waitUntil(cond func() bool) bool {
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

func TestServiceIntegration(t *testing.T) {
	Convey("Given a started service over a SQLite store", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		store, err := repository.OpenSQLite(ctx, filepath.Join(t.TempDir(), "ready.db"))
		So(err, ShouldBeNil)

		gen := &fakeGenerator{reply: generatedJSON}
		svc := service.New(
			service.WithStore(store),
			service.WithGenerator(gen),
			service.WithWorkerCount(2),
			service.WithRankingYear(year),
		)
		So(svc.Start(ctx), ShouldBeNil)
		defer func() { _ = svc.Stop(ctx) }()

		Convey("Then it reports itself as running", func() {
			stats := svc.GetStats(ctx)
			So(stats["started"], ShouldEqual, true)
			So(stats["queueLength"], ShouldEqual, 0)
		})

		Convey("When indicators are saved", func() {
			_, err := svc.SaveIndicators(ctx, "beta", year, researchOnly)
			So(err, ShouldBeNil)

			Convey("Then a worker warms the recommendation cache", func() {
				So(waitUntil(func() bool { return svc.GetStats(ctx)["cacheEntries"] == 1 }), ShouldBeTrue)
				So(gen.Calls(), ShouldEqual, 1)

				set, err := svc.Recommendations(ctx, "beta", year)
				So(err, ShouldBeNil)
				So(set.Source, ShouldEqual, types.SourceGenerated)
				So(gen.Calls(), ShouldEqual, 1)
			})
		})

		Convey("When many institutions report concurrently", func() {
			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, _ = svc.SaveIndicators(ctx, fmt.Sprintf("uni-%02d", i), year, allValues(fmt.Sprint(i*5)))
				}(i)
			}
			wg.Wait()

			Convey("Then the leaderboard holds all of them", func() {
				top, err := svc.TopN(ctx, year, 100)
				So(err, ShouldBeNil)
				So(len(top), ShouldEqual, 20)
				So(top[0].InstitutionID, ShouldEqual, "uni-19")
				So(top[len(top)-1].InstitutionID, ShouldEqual, "uni-00")
			})
		})
	})
}

func TestServiceRestart(t *testing.T) {
	Convey("Given data saved by an earlier process", t, func() {
		ctx := context.Background()
		path := filepath.Join(t.TempDir(), "ready.db")

		store, err := repository.OpenSQLite(ctx, path)
		So(err, ShouldBeNil)
		first := service.New(service.WithStore(store), service.WithRankingYear(year))
		So(first.Start(ctx), ShouldBeNil)
		_, err = first.SaveIndicators(ctx, "alpha", year, allValues("100"))
		So(err, ShouldBeNil)
		_, err = first.SaveIndicators(ctx, "beta", year, researchOnly)
		So(err, ShouldBeNil)
		So(first.Stop(ctx), ShouldBeNil)

		Convey("When a new service starts on the same file", func() {
			reopened, err := repository.OpenSQLite(ctx, path)
			So(err, ShouldBeNil)
			second := service.New(service.WithStore(reopened), service.WithRankingYear(year))
			So(second.Start(ctx), ShouldBeNil)
			defer func() { _ = second.Stop(ctx) }()

			Convey("Then the leaderboard is rebuilt from storage", func() {
				e, err := second.Rank(ctx, year, "beta")
				So(err, ShouldBeNil)
				So(e.Rank, ShouldEqual, 2)
				So(e.Score, ShouldEqual, 50)
			})
		})
	})
}

// gatedGenerator holds its first call until release is closed and labels
// each reply with the call number.
type gatedGenerator struct {
	mu      sync.Mutex
	calls   int
	entered chan struct{}
	release chan struct{}
}

func (g *gatedGenerator) Generate(ctx context.Context, _ generation.Request) (string, error) {
	g.mu.Lock()
	g.calls++
	n := g.calls
	g.mu.Unlock()
	if n == 1 {
		close(g.entered)
		select {
		case <-g.release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return fmt.Sprintf(`{"recommendations":[{"category":"research","priority":"high","action":"advice %d","rationale":"r"}]}`, n), nil
}

func (g *gatedGenerator) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func TestServiceWarmUpAfterResave(t *testing.T) {
	Convey("Given a started service whose first warm-up is still generating", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		gen := &gatedGenerator{entered: make(chan struct{}), release: make(chan struct{})}
		svc := service.New(
			service.WithGenerator(gen),
			service.WithWorkerCount(1),
			service.WithRankingYear(year),
		)
		So(svc.Start(ctx), ShouldBeNil)
		defer func() { _ = svc.Stop(ctx) }()

		_, err := svc.SaveIndicators(ctx, "delta", year, allValues("10"))
		So(err, ShouldBeNil)
		<-gen.entered

		Convey("When newer values are saved before it finishes", func() {
			scores, err := svc.SaveIndicators(ctx, "delta", year, allValues("100"))
			So(err, ShouldBeNil)
			So(scores.Overall, ShouldEqual, 100)
			close(gen.release)

			Convey("Then the advice served is built from the newer values", func() {
				So(waitUntil(func() bool { return gen.Calls() == 2 && svc.GetStats(ctx)["cacheEntries"] == 2 }), ShouldBeTrue)

				set, err := svc.Recommendations(ctx, "delta", year)
				So(err, ShouldBeNil)
				So(set.Source, ShouldEqual, types.SourceGenerated)
				So(set.Recommendations[0].Action, ShouldEqual, "advice 2")
				So(gen.Calls(), ShouldEqual, 2)
			})
		})
	})
}

func TestServiceConcurrentWrites(t *testing.T) {
	Convey("Given a service over a shared store", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore()
		svc := service.New(service.WithStore(store), service.WithWorkerCount(4))

		Convey("When one institution saves different values concurrently", func() {
			var wg sync.WaitGroup
			for i := 0; i < 40; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, _ = svc.SaveIndicators(ctx, "same", year, allValues(fmt.Sprint(i%2*100)))
				}(i)
			}
			wg.Wait()

			Convey("Then the leaderboard agrees with the stored values", func() {
				rec, err := store.LoadIndicators(ctx, "same", year)
				So(err, ShouldBeNil)
				e, err := svc.Rank(ctx, year, "same")
				So(err, ShouldBeNil)
				So(e.Score, ShouldEqual, svc.ScoreValues(rec.Values).Overall)
			})
		})

		Convey("When saves race with rebuilds of the same year", func() {
			var wg sync.WaitGroup
			for i := 0; i < 30; i++ {
				wg.Add(2)
				go func(i int) {
					defer wg.Done()
					_, _ = svc.SaveIndicators(ctx, fmt.Sprintf("uni-%02d", i), year, allValues(fmt.Sprint(i*3)))
				}(i)
				go func() {
					defer wg.Done()
					_, _ = svc.RebuildLeaderboard(ctx, year)
				}()
			}
			wg.Wait()

			Convey("Then every stored institution is ranked with its stored score", func() {
				ids, err := store.ListInstitutions(ctx, year)
				So(err, ShouldBeNil)
				So(ids, ShouldHaveLength, 30)
				top, err := svc.TopN(ctx, year, 100)
				So(err, ShouldBeNil)
				So(top, ShouldHaveLength, 30)
				for _, id := range ids {
					rec, err := store.LoadIndicators(ctx, id, year)
					So(err, ShouldBeNil)
					e, err := svc.Rank(ctx, year, id)
					So(err, ShouldBeNil)
					So(e.Score, ShouldEqual, svc.ScoreValues(rec.Values).Overall)
				}
			})
		})
	})
}
