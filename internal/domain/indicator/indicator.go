// Package indicator defines the indicator codes an institution reports and
// the parsing and validation rules applied to their raw values.
package indicator

import (
	"strconv"
	"strings"
)

// Indicator codes recognised by the scoring engine.
const (
	AcademicReputation    = "academic_reputation"
	CitationsPerFaculty   = "citations_per_faculty"
	EmployerReputation    = "employer_reputation"
	EmploymentOutcomes    = "employment_outcomes"
	IntlResearchNetwork   = "intl_research_network"
	IntlFacultyRatio      = "intl_faculty_ratio"
	IntlStudentRatio      = "intl_student_ratio"
	FacultyStudentRatio   = "faculty_student_ratio"
	SustainabilityMetrics = "sustainability_metrics"
)

// Bounds accepted at data entry.
const (
	MinValue = 0.0
	MaxValue = 100.0
)

// Definition describes one indicator for forms and documentation.
type Definition struct {
	Code  string `json:"code" yaml:"code"`
	Label string `json:"label" yaml:"label"`
}

var catalog = []Definition{ //nolint:gochecknoglobals // fixed catalog
	{Code: AcademicReputation, Label: "Academic reputation survey"},
	{Code: CitationsPerFaculty, Label: "Citations per faculty"},
	{Code: EmployerReputation, Label: "Employer reputation survey"},
	{Code: EmploymentOutcomes, Label: "Graduate employment outcomes"},
	{Code: IntlResearchNetwork, Label: "International research network"},
	{Code: IntlFacultyRatio, Label: "International faculty ratio"},
	{Code: IntlStudentRatio, Label: "International student ratio"},
	{Code: FacultyStudentRatio, Label: "Faculty/student ratio"},
	{Code: SustainabilityMetrics, Label: "Sustainability"},
}

// Catalog returns the known indicators in display order.
func Catalog() []Definition {
	out := make([]Definition, len(catalog))
	copy(out, catalog)
	return out
}

// Known reports whether code is part of the catalog.
func Known(code string) bool {
	for _, d := range catalog {
		if d.Code == code {
			return true
		}
	}
	return false
}

// ParseFloat extracts a number from free-form user input. Every rune other
// than an ASCII digit or '.' is dropped before parsing, so "85%" reads as 85
// and "-5" as 5. Anything that still fails to parse yields 0.
func ParseFloat(raw string) float64 {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}
	v, err := strconv.ParseFloat(b.String(), 64)
	if err != nil {
		return 0
	}
	return v
}
