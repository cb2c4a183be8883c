// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/okian/rankready/internal/domain/model"
	"github.com/okian/rankready/internal/domain/retrieval"
	"github.com/okian/rankready/internal/domain/scoring"
	"github.com/okian/rankready/internal/domain/types"
)

const (
	defaultMaxLimit = 100
	maxBodyBytes    = 1 << 20
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	ScoreValues(values map[string]string) scoring.Scores
	SaveIndicators(ctx context.Context, institutionID string, year int, values map[string]string) (scoring.Scores, error)
	Readiness(ctx context.Context, institutionID string, year int) (types.Readiness, error)
	Recommendations(ctx context.Context, institutionID string, year int) (types.RecommendationSet, error)

	Submit(ctx context.Context, institutionID string, year int, comment string) (model.Submission, error)
	Review(ctx context.Context, submissionID, action, comment string) (model.Submission, error)
	Submission(ctx context.Context, submissionID string) (model.Submission, error)

	// Read operations expose leaderboard data.
	TopN(ctx context.Context, year, n int) ([]Entry, error)
	Rank(ctx context.Context, year int, institutionID string) (Entry, error)
	RankingYear() int
	Averages(ctx context.Context, year int) (map[string]float64, error)

	Search(query string, k int) []retrieval.Result
	Ask(ctx context.Context, question string, history []types.Message) (types.Answer, error)
}

// Entry mirrors the read shape returned by leaderboard queries.
type Entry = types.Entry

// Option configures the Server.
type Option func(*Server)

// WithMaxLeaderboardLimit caps GET /leaderboard?limit.
func WithMaxLeaderboardLimit(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxLimit = n
		}
	}
}

// WithSearchTopK sets the default k of GET /docs/search.
func WithSearchTopK(k int) Option {
	return func(s *Server) {
		if k > 0 {
			s.topK = k
		}
	}
}

// Server wires HTTP routes for the business API.
type Server struct {
	deps     Dependencies
	maxLimit int
	topK     int

	healthHandler *HealthHandler
	statsHandler  *StatsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	s := &Server{
		deps:          deps,
		maxLimit:      defaultMaxLimit,
		topK:          retrieval.DefaultTopK,
		healthHandler: NewHealthHandler(),
		statsHandler:  NewStatsHandler(statsProvider),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	handle := func(pattern, endpoint string, h http.HandlerFunc) {
		mux.Handle(pattern, RequestIDMiddleware(MetricsMiddleware(h, endpoint)))
	}

	handle("GET /healthz", "healthz", s.healthHandler.HandleHealth)
	handle("GET /stats", "stats", s.statsHandler.HandleStats)

	handle("POST /score", "score", s.handleScore)
	handle("PUT /institutions/{id}/indicators/{year}", "indicators", s.handleSaveIndicators)
	handle("GET /institutions/{id}/readiness/{year}", "readiness", s.handleReadiness)
	handle("GET /institutions/{id}/recommendations/{year}", "recommendations", s.handleRecommendations)

	handle("POST /institutions/{id}/submissions/{year}", "submit", s.handleSubmit)
	handle("GET /submissions/{id}", "submission", s.handleGetSubmission)
	handle("POST /submissions/{id}/review", "review", s.handleReview)

	handle("GET /leaderboard", "leaderboard", s.handleLeaderboard)
	handle("GET /rank/{id}", "rank", s.handleRank)
	handle("GET /averages", "averages", s.handleAverages)

	handle("GET /docs/search", "docs_search", s.handleSearch)
	handle("POST /chat", "chat", s.handleChat)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON reads a single JSON document of bounded size into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("invalid JSON body: trailing data")
	}
	return nil
}

func pathYear(r *http.Request) (int, error) {
	return parseYear(r.PathValue("year"))
}

func parseYear(raw string) (int, error) {
	year, err := strconv.Atoi(raw)
	if err != nil || year < 1 {
		return 0, fmt.Errorf("year must be a positive integer, got %q", raw)
	}
	return year, nil
}

// queryYear reads ?year=, falling back to the ranking year.
func (s *Server) queryYear(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("year")
	if raw == "" {
		return s.deps.RankingYear(), nil
	}
	return parseYear(raw)
}
