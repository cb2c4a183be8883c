package scoring

import (
	"errors"
	"fmt"
	"math"

	"github.com/okian/rankready/internal/domain/indicator"
)

// Category is one of the five top-level readiness dimensions.
type Category string

const (
	Research           Category = "research"
	Employability      Category = "employability"
	GlobalEngagement   Category = "global_engagement"
	LearningExperience Category = "learning_experience"
	Sustainability     Category = "sustainability"
)

// Categories returns the categories in reporting order.
func Categories() []Category {
	return []Category{Research, Employability, GlobalEngagement, LearningExperience, Sustainability}
}

// Top-level weights used by Overall.
const (
	researchWeight           = 0.5
	employabilityWeight      = 0.2
	globalEngagementWeight   = 0.15
	learningExperienceWeight = 0.1
	sustainabilityWeight     = 0.05
)

const weightTolerance = 1e-9

// ErrInvalidBenchmarks is returned when a benchmark table breaks the scoring contract.
var ErrInvalidBenchmarks = errors.New("invalid benchmark table")

// Benchmark describes how one indicator contributes to its category.
// Direct benchmarks skip the divisor step and are clamped to [0,100].
type Benchmark struct {
	Divisor  float64
	Category Category
	Weight   float64
	Direct   bool
}

// BenchmarkTable maps an indicator code to its benchmark.
type BenchmarkTable map[string]Benchmark

// DefaultBenchmarks is the published methodology table.
var DefaultBenchmarks = BenchmarkTable{ //nolint:gochecknoglobals // immutable methodology table
	indicator.AcademicReputation:    {Divisor: 100, Category: Research, Weight: 0.6},
	indicator.CitationsPerFaculty:   {Divisor: 100, Category: Research, Weight: 0.4},
	indicator.EmployerReputation:    {Divisor: 100, Category: Employability, Weight: 0.75},
	indicator.EmploymentOutcomes:    {Divisor: 100, Category: Employability, Weight: 0.25},
	indicator.IntlResearchNetwork:   {Divisor: 100, Category: GlobalEngagement, Weight: 1.0 / 3},
	indicator.IntlFacultyRatio:      {Divisor: 100, Category: GlobalEngagement, Weight: 1.0 / 3},
	indicator.IntlStudentRatio:      {Divisor: 100, Category: GlobalEngagement, Weight: 1.0 / 3},
	indicator.FacultyStudentRatio:   {Category: LearningExperience, Weight: 1, Direct: true},
	indicator.SustainabilityMetrics: {Divisor: 100, Category: Sustainability, Weight: 1},
}

// Validate checks that every category is covered and its weights sum to one,
// and that every non-direct benchmark has a positive divisor.
func (t BenchmarkTable) Validate() error {
	sums := make(map[Category]float64, len(Categories()))
	for code, b := range t {
		if !b.Direct && b.Divisor <= 0 {
			return fmt.Errorf("%w: %s divisor must be positive", ErrInvalidBenchmarks, code)
		}
		if b.Weight < 0 {
			return fmt.Errorf("%w: %s weight is negative", ErrInvalidBenchmarks, code)
		}
		sums[b.Category] += b.Weight
	}
	for _, c := range Categories() {
		sum, ok := sums[c]
		if !ok {
			return fmt.Errorf("%w: category %s has no indicators", ErrInvalidBenchmarks, c)
		}
		if math.Abs(sum-1) > weightTolerance {
			return fmt.Errorf("%w: category %s weights sum to %g", ErrInvalidBenchmarks, c, sum)
		}
	}
	total := researchWeight + employabilityWeight + globalEngagementWeight +
		learningExperienceWeight + sustainabilityWeight
	if math.Abs(total-1) > weightTolerance {
		return fmt.Errorf("%w: category weights sum to %g", ErrInvalidBenchmarks, total)
	}
	return nil
}

// WithDivisors returns a copy of the table with the given divisors replaced.
func (t BenchmarkTable) WithDivisors(divisors map[string]float64) (BenchmarkTable, error) {
	out := make(BenchmarkTable, len(t))
	for code, b := range t {
		out[code] = b
	}
	for code, d := range divisors {
		b, ok := out[code]
		if !ok {
			return nil, fmt.Errorf("%w: unknown indicator %q", ErrInvalidBenchmarks, code)
		}
		if b.Direct {
			return nil, fmt.Errorf("%w: %s is clamped directly and takes no divisor", ErrInvalidBenchmarks, code)
		}
		b.Divisor = d
		out[code] = b
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}
