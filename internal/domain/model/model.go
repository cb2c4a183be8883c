// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"strconv"
	"time"

	"github.com/okian/rankready/internal/domain/scoring"
)

// IndicatorRecord is the set of raw indicator values an institution reported
// for one ranking year. Values are kept as entered.
type IndicatorRecord struct {
	InstitutionID string            `json:"institution_id"`
	Year          int               `json:"year"`
	Values        map[string]string `json:"values"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// Key identifies the record as institution/year.
func (r IndicatorRecord) Key() string {
	return RecordKey(r.InstitutionID, r.Year)
}

// RecordKey builds the institution/year key used by caches and queues.
func RecordKey(institutionID string, year int) string {
	return institutionID + "/" + strconv.Itoa(year)
}

// RecommendationKey extends RecordKey with the scores advice was built from,
// so advice for superseded values is never served for newer ones.
func RecommendationKey(institutionID string, year int, s scoring.Scores) string {
	return fmt.Sprintf("%s@%d.%d.%d.%d.%d.%d", RecordKey(institutionID, year),
		s.Research, s.Employability, s.GlobalEngagement, s.LearningExperience, s.Sustainability, s.Overall)
}

// SubmissionStatus is the review state of a submitted report.
type SubmissionStatus string

const (
	StatusDraft     SubmissionStatus = "draft"
	StatusSubmitted SubmissionStatus = "submitted"
	StatusApproved  SubmissionStatus = "approved"
	StatusRejected  SubmissionStatus = "rejected"
)

// Final reports whether no further transition is possible.
func (s SubmissionStatus) Final() bool {
	return s == StatusApproved
}

// Submission is a readiness report routed through review. Scores is a
// snapshot taken when the report was last submitted.
type Submission struct {
	ID            string           `json:"id"`
	InstitutionID string           `json:"institution_id"`
	Year          int              `json:"year"`
	Status        SubmissionStatus `json:"status"`
	Scores        scoring.Scores   `json:"scores"`
	Comment       string           `json:"comment,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// RecommendationJob asks a worker to precompute recommendations. Scores are
// the ones computed at save time; the worker rescores the stored values.
type RecommendationJob struct {
	InstitutionID string
	Year          int
	Scores        scoring.Scores
	EnqueuedAt    time.Time
}

// InstitutionScore captures an institution's overall readiness for ranking.
type InstitutionScore struct {
	InstitutionID string
	Overall       int
}
