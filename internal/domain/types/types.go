// Package types contains common types used across the application
package types

import (
	"time"

	"github.com/okian/rankready/internal/domain/recommend"
	"github.com/okian/rankready/internal/domain/scoring"
)

// Entry represents a leaderboard entry
type Entry struct {
	Rank          int    `json:"rank"`
	InstitutionID string `json:"institution_id"`
	Score         int    `json:"score"`
}

// Readiness is an institution's scored report for one ranking year.
type Readiness struct {
	InstitutionID string            `json:"institution_id"`
	Year          int               `json:"year"`
	Values        map[string]string `json:"values"`
	Scores        scoring.Scores    `json:"scores"`
	// Rank is 0 when the institution is not on the leaderboard.
	Rank      int       `json:"rank"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Recommendation sources.
const (
	SourceGenerated = "generated"
	SourceFallback  = "fallback"
)

// RecommendationSet is the advice returned for one institution and year.
type RecommendationSet struct {
	InstitutionID   string                     `json:"institution_id"`
	Year            int                        `json:"year"`
	Source          string                     `json:"source"`
	Recommendations []recommend.Recommendation `json:"recommendations"`
}

// Message is one turn of chat history.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Source is a document an answer was grounded on.
type Source struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Answer is the assistant's reply to a question.
type Answer struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
	// Degraded is set when the text is not a generated answer.
	Degraded bool `json:"degraded"`
}
