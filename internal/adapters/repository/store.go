// Package repository persists indicator values and submissions and keeps
// the in-memory readiness leaderboard.
package repository

import (
	"context"
	"fmt"
	"sort"

	"github.com/okian/rankready/internal/domain/indicator"
	"github.com/okian/rankready/internal/domain/model"
)

// Supported store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// IndicatorStore provides read/write access to reported indicator values
// keyed by (institution, indicator code, ranking year), and to submissions.
type IndicatorStore interface {
	// SaveIndicators replaces every value of the record's institution and year.
	SaveIndicators(ctx context.Context, rec model.IndicatorRecord) error
	// LoadIndicators returns ErrNotFound when nothing was reported.
	LoadIndicators(ctx context.Context, institutionID string, year int) (model.IndicatorRecord, error)
	// ListInstitutions returns institutions with values for year, sorted by id.
	ListInstitutions(ctx context.Context, year int) ([]string, error)
	// IndicatorAverages averages the numeric value of each code across
	// institutions for year. Unparseable values count as 0.
	IndicatorAverages(ctx context.Context, year int) (map[string]float64, error)

	PutSubmission(ctx context.Context, s model.Submission) error
	// GetSubmission returns ErrNotFound for unknown ids.
	GetSubmission(ctx context.Context, id string) (model.Submission, error)

	Close() error
}

// Config selects and configures a store.
type Config struct {
	Driver      string
	SQLitePath  string
	PostgresDSN string
}

// Open creates the store named by cfg.Driver.
func Open(ctx context.Context, cfg Config) (IndicatorStore, error) {
	switch cfg.Driver {
	case DriverMemory, "":
		return NewMemoryStore(), nil
	case DriverSQLite:
		return OpenSQLite(ctx, cfg.SQLitePath)
	case DriverPostgres:
		return OpenPostgres(ctx, cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, cfg.Driver)
	}
}

func validateRecord(rec model.IndicatorRecord) error {
	if rec.InstitutionID == "" {
		return fmt.Errorf("%w: institution id is required", ErrInvalidRecord)
	}
	if rec.Year <= 0 {
		return fmt.Errorf("%w: ranking year must be positive", ErrInvalidRecord)
	}
	return nil
}

func validateSubmission(s model.Submission) error {
	if s.ID == "" || s.InstitutionID == "" {
		return fmt.Errorf("%w: submission id and institution id are required", ErrInvalidRecord)
	}
	return nil
}

// averager accumulates per-code means using indicator.ParseFloat.
type averager struct {
	sum   map[string]float64
	count map[string]int
}

func newAverager() *averager {
	return &averager{sum: make(map[string]float64), count: make(map[string]int)}
}

func (a *averager) add(code, raw string) {
	a.sum[code] += indicator.ParseFloat(raw)
	a.count[code]++
}

func (a *averager) result() map[string]float64 {
	out := make(map[string]float64, len(a.sum))
	for code, s := range a.sum {
		out[code] = s / float64(a.count[code])
	}
	return out
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
