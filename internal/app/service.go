// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/okian/rankready/internal/adapters/generation"
	jobqueue "github.com/okian/rankready/internal/adapters/mq/queue"
	workerpool "github.com/okian/rankready/internal/adapters/mq/worker"
	"github.com/okian/rankready/internal/adapters/repository"
	"github.com/okian/rankready/internal/cache"
	"github.com/okian/rankready/internal/domain/retrieval"
	"github.com/okian/rankready/internal/domain/scoring"
	"github.com/okian/rankready/internal/domain/types"
	"github.com/okian/rankready/pkg/logger"
	"github.com/okian/rankready/pkg/metrics"
)

// ErrNotStarted is returned by operations that need the worker pool.
var ErrNotStarted = errors.New("service not started")

// Generator produces free text for a question; *generation.Client implements it.
type Generator interface {
	Generate(ctx context.Context, req generation.Request) (string, error)
}

// Service implements the API dependencies for the readiness portal.
type Service struct {
	mu sync.RWMutex

	// Core components
	store     repository.IndicatorStore
	engine    *scoring.Engine
	retriever *retrieval.Retriever
	generator Generator
	recs      *cache.Cache[types.RecommendationSet]
	queue     *jobqueue.InMemoryQueue
	pool      *workerpool.Pool

	boardsMu sync.RWMutex
	boards   map[int]*repository.Leaderboard

	// Lock order: year lock, then save stripe, then boardsMu.
	yearLocksMu sync.Mutex
	yearLocks   map[int]*sync.RWMutex
	saveLocks   [saveLockStripes]sync.Mutex

	// Configuration
	workerCount     int
	queueSize       int
	topK            int
	cacheTTL        time.Duration
	cacheMaxEntries int
	rankingYear     int
	jobTimeout      time.Duration

	// State
	started bool

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the indicator store. The service closes it on Stop.
func WithStore(store repository.IndicatorStore) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithEngine sets the scoring engine.
func WithEngine(engine *scoring.Engine) Option {
	return func(s *Service) {
		if engine != nil {
			s.engine = engine
		}
	}
}

// WithRetriever sets the documentation retriever.
func WithRetriever(r *retrieval.Retriever) Option {
	return func(s *Service) {
		if r != nil {
			s.retriever = r
		}
	}
}

// WithGenerator enables generated answers and recommendations.
func WithGenerator(g Generator) Option {
	return func(s *Service) {
		s.generator = g
	}
}

// WithWorkerCount sets the number of recommendation workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum number of pending recommendation jobs.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithTopK sets how many documents ground an answer.
func WithTopK(k int) Option {
	return func(s *Service) {
		if k > 0 {
			s.topK = k
		}
	}
}

// WithRecommendationCache sets the recommendation cache TTL and size.
func WithRecommendationCache(ttl time.Duration, maxEntries int) Option {
	return func(s *Service) {
		if ttl >= 0 {
			s.cacheTTL = ttl
		}
		if maxEntries > 0 {
			s.cacheMaxEntries = maxEntries
		}
	}
}

// WithRankingYear sets the year used when callers do not name one.
func WithRankingYear(year int) Option {
	return func(s *Service) {
		if year > 0 {
			s.rankingYear = year
		}
	}
}

// WithJobTimeout bounds one background recommendation job.
func WithJobTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.jobTimeout = d
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(logger logger.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New constructs a Service. Without options it scores with the default
// benchmarks, keeps data in memory and answers from the built-in corpus.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:     runtime.NumCPU(),
		queueSize:       1024,
		topK:            retrieval.DefaultTopK,
		cacheTTL:        time.Hour,
		cacheMaxEntries: 1024,
		rankingYear:     time.Now().Year(),
		boards:          make(map[int]*repository.Leaderboard),
		yearLocks:       make(map[int]*sync.RWMutex),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	if s.store == nil {
		s.store = repository.NewMemoryStore()
	}
	if s.engine == nil {
		s.engine = scoring.NewEngine()
	}
	if s.retriever == nil {
		s.retriever = retrieval.NewRetriever(retrieval.DefaultCorpus())
	}
	s.recs = cache.New[types.RecommendationSet](cache.WithMaxEntries(s.cacheMaxEntries))
	return s
}

// Start loads the leaderboard for the ranking year and starts the workers.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.logger.Info(ctx, "starting readiness service...")

	if _, err := s.RebuildLeaderboard(ctx, s.rankingYear); err != nil {
		return fmt.Errorf("load leaderboard %d: %w", s.rankingYear, err)
	}

	s.queue = jobqueue.NewInMemoryQueue(jobqueue.WithCapacity(s.queueSize))
	s.pool = workerpool.NewPool(s.workerCount, s.queue, workerpool.ProcessorFunc(s.prewarm),
		workerpool.WithJobTimeout(s.jobTimeout))
	// workers outlive the start request
	s.pool.Start(context.WithoutCancel(ctx))

	s.started = true
	s.logger.Info(ctx, "readiness service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("rankingYear", s.rankingYear),
		logger.Bool("generation", s.generator != nil),
	)
	return nil
}

// Stop drains the job queue and closes the store.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping readiness service...")

	var errs []error
	if s.pool != nil {
		if err := s.pool.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}

	s.started = false
	s.logger.Info(ctx, "readiness service stopped")
	return errors.Join(errs...)
}

// RankingYear returns the default ranking year.
func (s *Service) RankingYear() int { return s.rankingYear }

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":           s.started,
		"workerCount":       s.workerCount,
		"queueSize":         s.queueSize,
		"rankingYear":       s.rankingYear,
		"generationEnabled": s.generator != nil,
		"corpusDocuments":   s.retriever.Len(),
		"cacheEntries":      s.recs.Len(),
	}
	if b, err := s.board(ctx, s.rankingYear); err == nil {
		stats["institutions"] = b.Count(ctx)
	}

	if s.started {
		queueLen := s.queue.Len(ctx)
		stats["queueLength"] = queueLen
		metrics.UpdateQueueSize(queueLen)
	}
	return stats
}
