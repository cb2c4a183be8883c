package service_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/okian/rankready/internal/adapters/generation"
	"github.com/okian/rankready/internal/adapters/repository"
	service "github.com/okian/rankready/internal/app"
	"github.com/okian/rankready/internal/domain/indicator"
	"github.com/okian/rankready/internal/domain/model"
	"github.com/okian/rankready/internal/domain/recommend"
	"github.com/okian/rankready/internal/domain/scoring"
	"github.com/okian/rankready/internal/domain/types"
	"github.com/okian/rankready/internal/domain/workflow"
	"github.com/okian/rankready/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

const year = 2026

const generatedJSON = `{"recommendations":[{"category":"research","priority":"high","action":"Grow citations","rationale":"research is weak"}]}`

type fakeGenerator struct {
	mu    sync.Mutex
	calls int
	last  generation.Request
	reply string
	err   error
}

func (f *fakeGenerator) Generate(_ context.Context, req generation.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.last = req
	return f.reply, f.err
}

func (f *fakeGenerator) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func allValues(v string) map[string]string {
	values := map[string]string{}
	for _, d := range indicator.Catalog() {
		values[d.Code] = v
	}
	return values
}

var researchOnly = map[string]string{
	indicator.AcademicReputation:  "100",
	indicator.CitationsPerFaculty: "100",
}

var employabilityOnly = map[string]string{
	indicator.EmployerReputation: "80",
	indicator.EmploymentOutcomes: "80",
}

func TestService_New(t *testing.T) {
	Convey("Given a new service with default options", t, func() {
		svc := service.New()

		Convey("Then it should have sensible defaults", func() {
			So(svc, ShouldNotBeNil)
			stats := svc.GetStats(context.Background())
			So(stats["started"], ShouldEqual, false)
			So(stats["generationEnabled"], ShouldEqual, false)
			So(stats["corpusDocuments"], ShouldBeGreaterThan, 0)
		})
	})

	Convey("Given a new service with custom options", t, func() {
		svc := service.New(
			service.WithWorkerCount(8),
			service.WithQueueSize(50),
			service.WithRankingYear(2030),
			service.WithTopK(5),
		)

		Convey("Then the options are applied", func() {
			So(svc.RankingYear(), ShouldEqual, 2030)
			stats := svc.GetStats(context.Background())
			So(stats["workerCount"], ShouldEqual, 8)
			So(stats["queueSize"], ShouldEqual, 50)
		})
	})
}

func TestService_Scoring(t *testing.T) {
	Convey("Given a service", t, func() {
		ctx := context.Background()
		svc := service.New()

		Convey("ScoreValues applies the methodology", func() {
			So(svc.ScoreValues(researchOnly).Overall, ShouldEqual, 50)
			So(svc.ScoreValues(map[string]string{indicator.AcademicReputation: "abc"}).Overall, ShouldEqual, 0)
		})

		Convey("SaveIndicators rejects invalid values with field messages", func() {
			_, err := svc.SaveIndicators(ctx, "uni", year, map[string]string{
				indicator.AcademicReputation: "lots",
				indicator.FacultyStudentRatio: "140",
			})
			var verr *indicator.ValidationError
			So(errors.As(err, &verr), ShouldBeTrue)
			So(verr.Fields, ShouldContainKey, indicator.AcademicReputation)
			So(verr.Fields, ShouldContainKey, indicator.FacultyStudentRatio)
		})

		Convey("When three institutions report", func() {
			_, err := svc.SaveIndicators(ctx, "alpha", year, allValues("100"))
			So(err, ShouldBeNil)
			_, err = svc.SaveIndicators(ctx, "beta", year, researchOnly)
			So(err, ShouldBeNil)
			scores, err := svc.SaveIndicators(ctx, "gamma", year, employabilityOnly)
			So(err, ShouldBeNil)
			So(scores.Overall, ShouldEqual, 16)

			Convey("Then readiness carries scores and rank", func() {
				r, err := svc.Readiness(ctx, "beta", year)
				So(err, ShouldBeNil)
				So(r.Scores.Research, ShouldEqual, 100)
				So(r.Scores.Overall, ShouldEqual, 50)
				So(r.Rank, ShouldEqual, 2)
				So(r.Values, ShouldResemble, researchOnly)
			})

			Convey("Then the leaderboard orders by overall", func() {
				top, err := svc.TopN(ctx, year, 10)
				So(err, ShouldBeNil)
				So(len(top), ShouldEqual, 3)
				So(top[0].InstitutionID, ShouldEqual, "alpha")
				So(top[1].InstitutionID, ShouldEqual, "beta")
				So(top[2].InstitutionID, ShouldEqual, "gamma")

				e, err := svc.Rank(ctx, year, "gamma")
				So(err, ShouldBeNil)
				So(e.Rank, ShouldEqual, 3)
				So(e.Score, ShouldEqual, 16)
			})

			Convey("Then other years are unaffected", func() {
				top, err := svc.TopN(ctx, year+1, 10)
				So(err, ShouldBeNil)
				So(top, ShouldBeEmpty)
				_, err = svc.Rank(ctx, year+1, "alpha")
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			})

			Convey("Then a lower resubmission moves the institution down", func() {
				_, err := svc.SaveIndicators(ctx, "alpha", year, map[string]string{})
				So(err, ShouldBeNil)
				e, err := svc.Rank(ctx, year, "alpha")
				So(err, ShouldBeNil)
				So(e.Score, ShouldEqual, 0)
				So(e.Rank, ShouldEqual, 3)
			})
		})

		Convey("Readiness of an unknown institution is not found", func() {
			_, err := svc.Readiness(ctx, "nobody", year)
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})

		Convey("TopN rejects a non-positive limit", func() {
			_, err := svc.TopN(ctx, year, 0)
			So(errors.Is(err, repository.ErrInvalidLimit), ShouldBeTrue)
		})
	})
}

func TestService_RebuildLeaderboard(t *testing.T) {
	Convey("Given a store populated outside the service", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore()
		for id, values := range map[string]map[string]string{
			"alpha": allValues("100"),
			"beta":  researchOnly,
			"gamma": employabilityOnly,
		} {
			So(store.SaveIndicators(ctx, model.IndicatorRecord{InstitutionID: id, Year: year, Values: values}), ShouldBeNil)
		}
		svc := service.New(service.WithStore(store), service.WithWorkerCount(2))

		Convey("When the leaderboard is rebuilt", func() {
			n, err := svc.RebuildLeaderboard(ctx, year)

			Convey("Then every institution is ranked", func() {
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 3)
				top, err := svc.TopN(ctx, year, 2)
				So(err, ShouldBeNil)
				So(top[0].InstitutionID, ShouldEqual, "alpha")
				So(top[0].Score, ShouldEqual, 100)
				So(top[1].InstitutionID, ShouldEqual, "beta")
			})
		})

		Convey("When a year is read before any rebuild", func() {
			e, err := svc.Rank(ctx, year, "gamma")

			Convey("Then its leaderboard is loaded from the store", func() {
				So(err, ShouldBeNil)
				So(e, ShouldResemble, types.Entry{Rank: 3, InstitutionID: "gamma", Score: 16})
			})
		})
	})
}

func TestService_Recommendations(t *testing.T) {
	Convey("Given stored indicator values", t, func() {
		ctx := context.Background()

		Convey("Without a generator the fallback table answers", func() {
			svc := service.New()
			_, err := svc.SaveIndicators(ctx, "beta", year, researchOnly)
			So(err, ShouldBeNil)

			set, err := svc.Recommendations(ctx, "beta", year)
			So(err, ShouldBeNil)
			So(set.Source, ShouldEqual, types.SourceFallback)
			So(set.InstitutionID, ShouldEqual, "beta")
			So(set.Recommendations, ShouldResemble, recommend.Fallback(svc.ScoreValues(researchOnly)))
		})

		Convey("With a generator the answer is parsed and cached", func() {
			gen := &fakeGenerator{reply: "```json\n" + strings.Replace(generatedJSON, "}]}", "},]}", 1) + "\n```"}
			svc := service.New(service.WithGenerator(gen))
			_, err := svc.SaveIndicators(ctx, "beta", year, researchOnly)
			So(err, ShouldBeNil)

			set, err := svc.Recommendations(ctx, "beta", year)
			So(err, ShouldBeNil)
			So(set.Source, ShouldEqual, types.SourceGenerated)
			So(len(set.Recommendations), ShouldEqual, 1)
			So(set.Recommendations[0].Category, ShouldEqual, scoring.Research)
			So(gen.last.JSON, ShouldBeTrue)

			_, err = svc.Recommendations(ctx, "beta", year)
			So(err, ShouldBeNil)
			So(gen.Calls(), ShouldEqual, 1)

			Convey("And saving new values invalidates the cache", func() {
				_, err := svc.SaveIndicators(ctx, "beta", year, employabilityOnly)
				So(err, ShouldBeNil)
				_, err = svc.Recommendations(ctx, "beta", year)
				So(err, ShouldBeNil)
				So(gen.Calls(), ShouldEqual, 2)
			})
		})

		Convey("Unusable generator output degrades to the fallback without caching", func() {
			gen := &fakeGenerator{reply: "I cannot answer in JSON today."}
			svc := service.New(service.WithGenerator(gen))
			_, err := svc.SaveIndicators(ctx, "gamma", year, employabilityOnly)
			So(err, ShouldBeNil)

			set, err := svc.Recommendations(ctx, "gamma", year)
			So(err, ShouldBeNil)
			So(set.Source, ShouldEqual, types.SourceFallback)
			So(set.Recommendations, ShouldNotBeEmpty)

			_, err = svc.Recommendations(ctx, "gamma", year)
			So(err, ShouldBeNil)
			So(gen.Calls(), ShouldEqual, 2)
		})

		Convey("A failing generator degrades to the fallback", func() {
			gen := &fakeGenerator{err: &generation.TransientError{StatusCode: 503}}
			svc := service.New(service.WithGenerator(gen))
			_, err := svc.SaveIndicators(ctx, "gamma", year, employabilityOnly)
			So(err, ShouldBeNil)

			set, err := svc.Recommendations(ctx, "gamma", year)
			So(err, ShouldBeNil)
			So(set.Source, ShouldEqual, types.SourceFallback)
		})

		Convey("Unknown reports are not found", func() {
			_, err := service.New().Recommendations(ctx, "nobody", year)
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})
	})
}

func TestService_Ask(t *testing.T) {
	Convey("Given the built-in documentation", t, func() {
		ctx := context.Background()

		Convey("A blank question is rejected", func() {
			_, err := service.New().Ask(ctx, "   ", nil)
			So(errors.Is(err, service.ErrEmptyQuestion), ShouldBeTrue)
		})

		Convey("Without a generator the best document is quoted", func() {
			ans, err := service.New().Ask(ctx, "research citations", nil)
			So(err, ShouldBeNil)
			So(ans.Degraded, ShouldBeTrue)
			So(ans.Answer, ShouldStartWith, "Source 1 (")
			So(ans.Sources, ShouldNotBeEmpty)
			So(ans.Sources[0].ID, ShouldEqual, "research")
		})

		Convey("Without a match the sentinel is returned", func() {
			ans, err := service.New().Ask(ctx, "zzzz qqqq", nil)
			So(err, ShouldBeNil)
			So(ans.Answer, ShouldEqual, "No relevant documentation found.")
			So(ans.Sources, ShouldBeEmpty)
		})

		Convey("With a generator the retrieved context and history are passed on", func() {
			gen := &fakeGenerator{reply: "Citations count for 40% of research."}
			svc := service.New(service.WithGenerator(gen))
			history := []types.Message{{Role: "user", Content: "hi"}, {Role: "assistant", Content: "hello"}}

			ans, err := svc.Ask(ctx, "research citations", history)
			So(err, ShouldBeNil)
			So(ans.Degraded, ShouldBeFalse)
			So(ans.Answer, ShouldEqual, "Citations count for 40% of research.")
			So(gen.last.Context, ShouldStartWith, "Source 1 (")
			So(gen.last.History, ShouldResemble, []generation.Message{{Role: "user", Content: "hi"}, {Role: "assistant", Content: "hello"}})
			So(gen.last.JSON, ShouldBeFalse)
		})

		Convey("An exhausted generator yields the unavailable message", func() {
			gen := &fakeGenerator{err: errors.New("retry attempts exhausted")}
			ans, err := service.New(service.WithGenerator(gen)).Ask(ctx, "research citations", nil)
			So(err, ShouldBeNil)
			So(ans.Degraded, ShouldBeTrue)
			So(ans.Answer, ShouldEqual, service.UnavailableAnswer)
		})

		Convey("Search ranks documents", func() {
			res := service.New().Search("leaderboard rank", 2)
			So(len(res), ShouldBeLessThanOrEqualTo, 2)
			So(res, ShouldNotBeEmpty)
			So(service.New().Search("leaderboard", 0), ShouldBeEmpty)
		})
	})
}

func TestService_Submissions(t *testing.T) {
	Convey("Given a stored report", t, func() {
		ctx := context.Background()
		svc := service.New()
		_, err := svc.SaveIndicators(ctx, "beta", year, researchOnly)
		So(err, ShouldBeNil)

		Convey("Submitting an unknown report is not found", func() {
			_, err := svc.Submit(ctx, "nobody", year, "")
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})

		Convey("When the report is submitted", func() {
			sub, err := svc.Submit(ctx, "beta", year, "first pass")
			So(err, ShouldBeNil)
			So(sub.ID, ShouldNotBeEmpty)
			So(sub.Status, ShouldEqual, model.StatusSubmitted)
			So(sub.Scores.Overall, ShouldEqual, 50)

			Convey("Then it can be approved once", func() {
				got, err := svc.Review(ctx, sub.ID, "approve", "looks good")
				So(err, ShouldBeNil)
				So(got.Status, ShouldEqual, model.StatusApproved)
				So(got.Comment, ShouldEqual, "looks good")

				_, err = svc.Review(ctx, sub.ID, "reject", "")
				So(errors.Is(err, workflow.ErrInvalidTransition), ShouldBeTrue)

				stored, err := svc.Submission(ctx, sub.ID)
				So(err, ShouldBeNil)
				So(stored.Status, ShouldEqual, model.StatusApproved)
			})

			Convey("Then a rejected report can be resubmitted with fresh scores", func() {
				_, err := svc.Review(ctx, sub.ID, "reject", "missing evidence")
				So(err, ShouldBeNil)
				_, err = svc.SaveIndicators(ctx, "beta", year, allValues("100"))
				So(err, ShouldBeNil)

				got, err := svc.Review(ctx, sub.ID, "submit", "")
				So(err, ShouldBeNil)
				So(got.Status, ShouldEqual, model.StatusSubmitted)
				So(got.Scores.Overall, ShouldEqual, 100)
			})

			Convey("Then unknown actions are rejected", func() {
				_, err := svc.Review(ctx, sub.ID, "archive", "")
				So(errors.Is(err, workflow.ErrUnknownAction), ShouldBeTrue)
			})
		})

		Convey("Reviewing an unknown submission is not found", func() {
			_, err := svc.Review(ctx, "missing", "approve", "")
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})
	})
}
