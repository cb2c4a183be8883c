package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/okian/rankready/internal/adapters/generation"
	"github.com/okian/rankready/internal/adapters/repository"
	"github.com/okian/rankready/internal/domain/model"
	"github.com/okian/rankready/internal/domain/recommend"
	"github.com/okian/rankready/internal/domain/retrieval"
	"github.com/okian/rankready/internal/domain/scoring"
	"github.com/okian/rankready/internal/domain/types"
	"github.com/okian/rankready/pkg/logger"
	"github.com/okian/rankready/pkg/metrics"
)

// UnavailableAnswer is shown when the assistant cannot produce an answer.
const UnavailableAnswer = "The assistant service is unavailable right now. Please try again later."

const askSystemInstruction = `You answer questions about preparing an institutional ranking submission.
Use only the documentation provided. If it does not cover the question, say so briefly.`

// ErrEmptyQuestion is returned by Ask for blank questions.
var ErrEmptyQuestion = errors.New("question must not be empty")

// Recommendations returns improvement advice for a stored report. Generated
// advice is cached; any generation problem degrades to the fallback table.
func (s *Service) Recommendations(ctx context.Context, institutionID string, year int) (types.RecommendationSet, error) {
	rec, err := s.store.LoadIndicators(ctx, institutionID, year)
	if err != nil {
		return types.RecommendationSet{}, err
	}
	return s.recommendationsFor(ctx, institutionID, year, s.score("stored", rec.Values)), nil
}

func (s *Service) recommendationsFor(ctx context.Context, institutionID string, year int, scores scoring.Scores) types.RecommendationSet {
	key := model.RecommendationKey(institutionID, year, scores)
	set, err := s.recs.GetOrCompute(ctx, key, s.cacheTTL, func(ctx context.Context) (types.RecommendationSet, error) {
		items, source, err := s.generateRecommendations(ctx, institutionID, scores)
		if err != nil {
			return types.RecommendationSet{}, err
		}
		return types.RecommendationSet{Recommendations: items, Source: source}, nil
	})
	if err != nil {
		s.logger.Warn(ctx, "recommendations degraded to fallback",
			logger.String("institution_id", institutionID),
			logger.Int("year", year),
			logger.Error(err),
		)
		metrics.RecordFallback()
		set = types.RecommendationSet{Recommendations: recommend.Fallback(scores), Source: types.SourceFallback}
	}
	set.InstitutionID = institutionID
	set.Year = year
	return set
}

// generateRecommendations asks the generator for advice. Without a generator
// the fallback table is the answer and is cached like a generated one.
func (s *Service) generateRecommendations(ctx context.Context, institutionID string, scores scoring.Scores) ([]recommend.Recommendation, string, error) {
	if s.generator == nil {
		metrics.RecordFallback()
		return recommend.Fallback(scores), types.SourceFallback, nil
	}

	prompt := recommend.BuildPrompt(institutionID, scores)
	text, err := s.generator.Generate(ctx, generation.Request{
		System:   prompt.System,
		Question: prompt.Question,
		JSON:     true,
	})
	if err != nil {
		return nil, "", err
	}

	items, outcome, err := recommend.Parse(text)
	metrics.RecordRepairOutcome(string(outcome))
	if err != nil {
		return nil, "", err
	}
	return items, types.SourceGenerated, nil
}

// prewarm fills the recommendation cache for a freshly saved report. It
// scores what is stored now, so a job queued before a later save warms the
// later values.
func (s *Service) prewarm(ctx context.Context, job model.RecommendationJob) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	rec, err := s.store.LoadIndicators(ctx, job.InstitutionID, job.Year)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("load indicators: %w", err)
	}
	scores := s.score("stored", rec.Values)
	set := s.recommendationsFor(ctx, job.InstitutionID, job.Year, scores)
	s.logger.Debug(ctx, "recommendations warmed",
		logger.String("institution_id", job.InstitutionID),
		logger.Int("queued_overall", job.Scores.Overall),
		logger.Int("overall", scores.Overall),
		logger.String("source", set.Source),
	)
	return nil
}

// Search ranks the documentation corpus against query.
func (s *Service) Search(query string, k int) []retrieval.Result {
	res := s.retriever.Search(query, k)
	metrics.RecordRetrieval(len(res))
	return res
}

// Ask answers a question from the documentation corpus. Generation failures
// are reported through Answer.Degraded rather than as errors.
func (s *Service) Ask(ctx context.Context, question string, history []types.Message) (types.Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return types.Answer{}, ErrEmptyQuestion
	}

	docs := s.retriever.Retrieve(question, s.topK)
	metrics.RecordRetrieval(len(docs))
	ans := types.Answer{Sources: make([]types.Source, 0, len(docs))}
	for _, d := range docs {
		ans.Sources = append(ans.Sources, types.Source{ID: d.ID, Title: d.Title})
	}

	if s.generator == nil {
		ans.Answer = fallbackAnswer(docs)
		ans.Degraded = true
		return ans, nil
	}

	text, err := s.generator.Generate(ctx, generation.Request{
		System:   askSystemInstruction,
		Context:  retrieval.FormatContext(docs),
		History:  toMessages(history),
		Question: question,
	})
	if err != nil {
		if ctx.Err() != nil {
			return types.Answer{}, ctx.Err()
		}
		s.logger.Warn(ctx, "assistant unavailable", logger.Error(err))
		metrics.RecordErrorByComponent("assistant", "generation_failed")
		ans.Answer = UnavailableAnswer
		ans.Degraded = true
		return ans, nil
	}
	ans.Answer = text
	return ans, nil
}

// fallbackAnswer quotes the best matching document when nothing can generate text.
func fallbackAnswer(docs []retrieval.Document) string {
	if len(docs) == 0 {
		return retrieval.NoDocumentationFound
	}
	return retrieval.FormatContext(docs[:1])
}

func toMessages(history []types.Message) []generation.Message {
	out := make([]generation.Message, len(history))
	for i, m := range history {
		out[i] = generation.Message{Role: m.Role, Content: m.Content}
	}
	return out
}
