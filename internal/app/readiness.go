package service

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"maps"
	"sync"
	"time"

	jobqueue "github.com/okian/rankready/internal/adapters/mq/queue"
	"github.com/okian/rankready/internal/adapters/repository"
	"github.com/okian/rankready/internal/domain/indicator"
	"github.com/okian/rankready/internal/domain/model"
	"github.com/okian/rankready/internal/domain/scoring"
	"github.com/okian/rankready/internal/domain/types"
	"github.com/okian/rankready/pkg/logger"
	"github.com/okian/rankready/pkg/metrics"
	"golang.org/x/sync/errgroup"
)

// ScoreValues scores an ad-hoc set of values without storing them.
func (s *Service) ScoreValues(values map[string]string) scoring.Scores {
	return s.score("adhoc", values)
}

func (s *Service) score(origin string, values map[string]string) scoring.Scores {
	start := time.Now()
	scores := s.engine.Score(values)
	metrics.RecordScoreComputed(origin, scores.Overall, float64(time.Since(start).Microseconds())/1000)
	return scores
}

const saveLockStripes = 64

// yearLock guards a year's leaderboard against rebuilds. Saves share it;
// RebuildLeaderboard holds it exclusively.
func (s *Service) yearLock(year int) *sync.RWMutex {
	s.yearLocksMu.Lock()
	defer s.yearLocksMu.Unlock()
	l, ok := s.yearLocks[year]
	if !ok {
		l = new(sync.RWMutex)
		s.yearLocks[year] = l
	}
	return l
}

// saveLock serializes the store write and leaderboard update of one
// institution/year so the two always end on the same values.
func (s *Service) saveLock(key string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &s.saveLocks[h.Sum32()%saveLockStripes]
}

// SaveIndicators validates and stores an institution's values for year,
// updates that year's leaderboard and schedules recommendation warm-up.
func (s *Service) SaveIndicators(ctx context.Context, institutionID string, year int, values map[string]string) (scoring.Scores, error) {
	if err := indicator.Validate(values); err != nil {
		return scoring.Scores{}, err
	}
	rec := model.IndicatorRecord{
		InstitutionID: institutionID,
		Year:          year,
		Values:        maps.Clone(values),
		UpdatedAt:     time.Now().UTC(),
	}
	scores, err := s.persist(ctx, rec)
	if err != nil {
		return scores, err
	}
	s.schedule(ctx, model.RecommendationJob{
		InstitutionID: institutionID,
		Year:          year,
		Scores:        scores,
		EnqueuedAt:    rec.UpdatedAt,
	})

	s.logger.Info(ctx, "indicators saved",
		logger.String("institution_id", institutionID),
		logger.Int("year", year),
		logger.Int("overall", scores.Overall),
	)
	return scores, nil
}

// persist writes rec and its leaderboard entry as one step with respect to
// other saves of the same record and to rebuilds of its year.
func (s *Service) persist(ctx context.Context, rec model.IndicatorRecord) (scoring.Scores, error) {
	yl := s.yearLock(rec.Year)
	yl.RLock()
	defer yl.RUnlock()
	sl := s.saveLock(rec.Key())
	sl.Lock()
	defer sl.Unlock()

	if err := s.store.SaveIndicators(ctx, rec); err != nil {
		return scoring.Scores{}, fmt.Errorf("save indicators: %w", err)
	}
	scores := s.score("stored", rec.Values)
	b, err := s.board(ctx, rec.Year)
	if err != nil {
		return scores, err
	}
	if _, err := b.Upsert(ctx, rec.InstitutionID, scores.Overall); err != nil {
		return scores, fmt.Errorf("update leaderboard: %w", err)
	}
	return scores, nil
}

// schedule enqueues a warm-up job. A full queue only costs a cold cache.
func (s *Service) schedule(ctx context.Context, job model.RecommendationJob) {
	s.mu.RLock()
	q := s.queue
	s.mu.RUnlock()
	if q == nil {
		return
	}

	err := q.Enqueue(ctx, job)
	switch {
	case err == nil, errors.Is(err, jobqueue.ErrDuplicate):
	case errors.Is(err, jobqueue.ErrFull), errors.Is(err, jobqueue.ErrClosed):
		s.logger.Warn(ctx, "recommendation job dropped",
			logger.String("institution_id", job.InstitutionID),
			logger.Error(err),
		)
	default:
		s.logger.Debug(ctx, "recommendation job not queued", logger.Error(err))
	}
}

// Readiness loads and scores an institution's stored values.
func (s *Service) Readiness(ctx context.Context, institutionID string, year int) (types.Readiness, error) {
	rec, err := s.store.LoadIndicators(ctx, institutionID, year)
	if err != nil {
		return types.Readiness{}, err
	}
	r := types.Readiness{
		InstitutionID: institutionID,
		Year:          year,
		Values:        rec.Values,
		Scores:        s.score("stored", rec.Values),
		UpdatedAt:     rec.UpdatedAt,
	}
	b, err := s.board(ctx, year)
	if err != nil {
		return types.Readiness{}, err
	}
	if entry, err := b.Rank(ctx, institutionID); err == nil {
		r.Rank = entry.Rank
	}
	return r, nil
}

// TopN returns the top n leaderboard entries for year.
func (s *Service) TopN(ctx context.Context, year, n int) ([]types.Entry, error) {
	b, err := s.board(ctx, year)
	if err != nil {
		return nil, err
	}
	return b.TopN(ctx, n)
}

// Rank returns the rank and score of an institution for year.
func (s *Service) Rank(ctx context.Context, year int, institutionID string) (types.Entry, error) {
	b, err := s.board(ctx, year)
	if err != nil {
		return types.Entry{}, err
	}
	return b.Rank(ctx, institutionID)
}

// board returns the leaderboard of year, loading it from the store on first use.
func (s *Service) board(ctx context.Context, year int) (*repository.Leaderboard, error) {
	s.boardsMu.RLock()
	b, ok := s.boards[year]
	s.boardsMu.RUnlock()
	if ok {
		return b, nil
	}

	// Saves for year wait here until the load is installed.
	s.boardsMu.Lock()
	defer s.boardsMu.Unlock()
	if b, ok = s.boards[year]; ok {
		return b, nil
	}
	b, n, err := s.loadBoard(ctx, year)
	if err != nil {
		return nil, fmt.Errorf("load leaderboard %d: %w", year, err)
	}
	s.boards[year] = b
	s.logger.Debug(ctx, "leaderboard loaded", logger.Int("year", year), logger.Int("institutions", n))
	return b, nil
}

// RebuildLeaderboard rescores every stored institution for year and
// replaces that year's leaderboard. It returns the number ranked. Saves for
// year wait until the new board is installed.
func (s *Service) RebuildLeaderboard(ctx context.Context, year int) (int, error) {
	yl := s.yearLock(year)
	yl.Lock()
	defer yl.Unlock()

	b, n, err := s.loadBoard(ctx, year)
	if err != nil {
		return 0, err
	}

	s.boardsMu.Lock()
	s.boards[year] = b
	s.boardsMu.Unlock()
	metrics.UpdateInstitutions(n)

	s.logger.Info(ctx, "leaderboard rebuilt", logger.Int("year", year), logger.Int("institutions", n))
	return n, nil
}

// loadBoard scores every stored institution for year into a new leaderboard.
func (s *Service) loadBoard(ctx context.Context, year int) (*repository.Leaderboard, int, error) {
	ids, err := s.store.ListInstitutions(ctx, year)
	if err != nil {
		return nil, 0, fmt.Errorf("list institutions: %w", err)
	}

	scored := make([]model.InstitutionScore, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, s.workerCount))
	for i, id := range ids {
		g.Go(func() error {
			rec, err := s.store.LoadIndicators(gctx, id, year)
			if err != nil {
				return fmt.Errorf("load %s: %w", id, err)
			}
			scored[i] = model.InstitutionScore{
				InstitutionID: id,
				Overall:       s.score("rebuild", rec.Values).Overall,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	b := repository.NewLeaderboard()
	for _, sc := range scored {
		if _, err := b.Upsert(ctx, sc.InstitutionID, sc.Overall); err != nil {
			return nil, 0, err
		}
	}
	return b, len(scored), nil
}

// Averages returns the mean value of each indicator across institutions that
// reported for year, for benchmarking an institution against its peers.
func (s *Service) Averages(ctx context.Context, year int) (map[string]float64, error) {
	avg, err := s.store.IndicatorAverages(ctx, year)
	if err != nil {
		return nil, fmt.Errorf("indicator averages: %w", err)
	}
	return avg, nil
}
