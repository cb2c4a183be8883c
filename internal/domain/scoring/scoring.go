// Package scoring turns raw indicator values into category and overall
// readiness scores. Every function here is pure and safe for concurrent use.
package scoring

import (
	"github.com/okian/rankready/internal/domain/indicator"
)

const maxScoreValue = 100

// Scores holds the five category scores and the overall readiness score.
// Every value lies in [0,100].
type Scores struct {
	Research           int `json:"research" yaml:"research"`
	Employability      int `json:"employability" yaml:"employability"`
	GlobalEngagement   int `json:"global_engagement" yaml:"global_engagement"`
	LearningExperience int `json:"learning_experience" yaml:"learning_experience"`
	Sustainability     int `json:"sustainability" yaml:"sustainability"`
	Overall            int `json:"overall" yaml:"overall"`
}

// Category returns the score of c, or 0 for an unknown category.
func (s Scores) Category(c Category) int {
	switch c {
	case Research:
		return s.Research
	case Employability:
		return s.Employability
	case GlobalEngagement:
		return s.GlobalEngagement
	case LearningExperience:
		return s.LearningExperience
	case Sustainability:
		return s.Sustainability
	default:
		return 0
	}
}

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithBenchmarks replaces the benchmark table. Invalid tables are ignored.
func WithBenchmarks(t BenchmarkTable) Option {
	return func(e *Engine) {
		if t.Validate() == nil {
			e.table = t
		}
	}
}

// Engine scores indicator values against a benchmark table.
type Engine struct {
	table BenchmarkTable
}

// NewEngine creates an engine using DefaultBenchmarks unless overridden.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{table: DefaultBenchmarks}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var defaultEngine = NewEngine() //nolint:gochecknoglobals // stateless default

// Score scores values against DefaultBenchmarks.
func Score(values map[string]string) Scores {
	return defaultEngine.Score(values)
}

// Score computes the category scores and the overall score. Absent or
// malformed values contribute 0. Intermediate results are truncated, not rounded.
func (e *Engine) Score(values map[string]string) Scores {
	norm := func(code string) float64 {
		b, ok := e.table[code]
		if !ok {
			return 0
		}
		raw := indicator.ParseFloat(values[code])
		if b.Direct {
			return Clamp(raw, 0, maxScoreValue)
		}
		return Normalize(raw, b.Divisor)
	}
	weight := func(code string) float64 {
		return e.table[code].Weight
	}

	s := Scores{
		Research: int(norm(indicator.AcademicReputation)*weight(indicator.AcademicReputation) +
			norm(indicator.CitationsPerFaculty)*weight(indicator.CitationsPerFaculty)),
		Employability: int(norm(indicator.EmployerReputation)*weight(indicator.EmployerReputation) +
			norm(indicator.EmploymentOutcomes)*weight(indicator.EmploymentOutcomes)),
		GlobalEngagement: int((norm(indicator.IntlResearchNetwork) +
			norm(indicator.IntlFacultyRatio) +
			norm(indicator.IntlStudentRatio)) / 3),
		LearningExperience: int(norm(indicator.FacultyStudentRatio)),
		Sustainability:     int(norm(indicator.SustainabilityMetrics)),
	}
	s.Overall = Overall(s)
	return s
}

// Overall combines category scores with the fixed top-level weights.
func Overall(s Scores) int {
	total := float64(s.Research)*researchWeight +
		float64(s.Employability)*employabilityWeight +
		float64(s.GlobalEngagement)*globalEngagementWeight +
		float64(s.LearningExperience)*learningExperienceWeight +
		float64(s.Sustainability)*sustainabilityWeight
	return int(Clamp(total, 0, maxScoreValue))
}

// Normalize scales raw against divisor onto [0,100]. A non-positive divisor yields 0.
func Normalize(raw, divisor float64) float64 {
	if divisor <= 0 {
		return 0
	}
	return min(maxScoreValue, raw/divisor*maxScoreValue)
}

// Clamp limits v to [lo,hi].
func Clamp(v, lo, hi float64) float64 {
	return max(lo, min(hi, v))
}
