// Package recommend builds prompts for improvement advice, decodes the
// generator's structured answer and supplies deterministic fallback advice.
package recommend

import (
	"errors"
	"fmt"
	"strings"

	"github.com/okian/rankready/internal/domain/scoring"
	"github.com/okian/rankready/pkg/jsonrepair"
)

// Threshold is the category score below which advice is given.
const Threshold = 70

// Priorities.
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// ErrNoRecommendations is returned when decoded output holds no advice.
var ErrNoRecommendations = errors.New("no recommendations in generator output")

// Recommendation is one piece of improvement advice.
type Recommendation struct {
	Category  scoring.Category `json:"category,omitempty"`
	Priority  string           `json:"priority"`
	Action    string           `json:"action"`
	Rationale string           `json:"rationale,omitempty"`
}

type response struct {
	Recommendations []Recommendation `json:"recommendations"`
}

// Prompt is the payload handed to the text generator.
type Prompt struct {
	System   string
	Question string
}

const systemInstruction = `You are an advisor helping a university improve its ranking readiness.
Answer with a single JSON object and nothing else, shaped as
{"recommendations":[{"category":"<research|employability|global_engagement|learning_experience|sustainability>","priority":"<high|medium|low>","action":"...","rationale":"..."}]}.
Focus on categories scoring below 70. Give at most five recommendations.`

// BuildPrompt renders the scores of an institution into a generator prompt.
func BuildPrompt(institution string, s scoring.Scores) Prompt {
	var b strings.Builder
	fmt.Fprintf(&b, "Institution: %s\n", institution)
	fmt.Fprintf(&b, "Overall readiness: %d/100\n", s.Overall)
	b.WriteString("Category scores:\n")
	for _, c := range scoring.Categories() {
		fmt.Fprintf(&b, "- %s: %d/100\n", c, s.Category(c))
	}
	b.WriteString("Which actions would raise the weakest categories?")
	return Prompt{System: systemInstruction, Question: b.String()}
}

// Parse decodes generator output, repairing malformed JSON when needed.
func Parse(text string) ([]Recommendation, jsonrepair.Outcome, error) {
	var r response
	outcome, err := jsonrepair.Decode(text, &r)
	if err != nil {
		return nil, outcome, err
	}
	out := r.Recommendations[:0]
	for _, rec := range r.Recommendations {
		if strings.TrimSpace(rec.Action) == "" {
			continue
		}
		out = append(out, rec)
	}
	if len(out) == 0 {
		return nil, outcome, ErrNoRecommendations
	}
	return out, outcome, nil
}

var fallbackAdvice = map[scoring.Category]Recommendation{ //nolint:gochecknoglobals // fixed advice table
	scoring.Research: {
		Action:    "Expand research collaboration and support faculty to publish in indexed journals.",
		Rationale: "Academic reputation and citations per faculty drive half of the overall score.",
	},
	scoring.Employability: {
		Action:    "Strengthen employer partnerships and track graduate employment outcomes systematically.",
		Rationale: "Employer reputation and employment outcomes make up the employability score.",
	},
	scoring.GlobalEngagement: {
		Action:    "Recruit international faculty and students and grow joint research with foreign partners.",
		Rationale: "Global engagement averages the three international indicators.",
	},
	scoring.LearningExperience: {
		Action:    "Improve the faculty/student ratio through targeted hiring or enrolment planning.",
		Rationale: "Learning experience follows the faculty/student ratio directly.",
	},
	scoring.Sustainability: {
		Action:    "Publish sustainability reporting and align campus operations with measurable targets.",
		Rationale: "Sustainability metrics are normalized against the published benchmark.",
	},
}

// Fallback returns fixed advice for every category below Threshold, in
// category order. With no weak category a single maintenance item is returned.
func Fallback(s scoring.Scores) []Recommendation {
	var out []Recommendation
	for _, c := range scoring.Categories() {
		score := s.Category(c)
		if score >= Threshold {
			continue
		}
		rec := fallbackAdvice[c]
		rec.Category = c
		rec.Priority = PriorityMedium
		if score < Threshold/2 {
			rec.Priority = PriorityHigh
		}
		out = append(out, rec)
	}
	if len(out) == 0 {
		out = append(out, Recommendation{
			Priority:  PriorityLow,
			Action:    "Maintain current performance and keep indicator evidence up to date.",
			Rationale: "Every category meets the readiness threshold.",
		})
	}
	return out
}
