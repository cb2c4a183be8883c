package indicator

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// ValidationError carries one message per offending indicator code.
type ValidationError struct {
	Message string
	Fields  map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	codes := make([]string, 0, len(e.Fields))
	for code := range e.Fields {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	parts := make([]string, 0, len(codes))
	for _, code := range codes {
		parts = append(parts, code+": "+e.Fields[code])
	}
	return e.Message + ": " + strings.Join(parts, "; ")
}

// plainNumber is the decimal grammar ParseFloat reads back faithfully.
// Exponents, hex floats, signs other than a leading minus, NaN and Inf
// would be mangled by its digit filter.
var plainNumber = regexp.MustCompile(`^-?(\d+\.?\d*|\.\d+)$`) //nolint:gochecknoglobals // compiled once

// Validate checks values at the data-entry boundary. Empty values are
// allowed and mean "not reported". Scoring does not depend on this check.
func Validate(values map[string]string) error {
	fields := make(map[string]string)
	for code, raw := range values {
		if !Known(code) {
			fields[code] = "unknown indicator code"
			continue
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if !plainNumber.MatchString(raw) {
			fields[code] = "must be a number"
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			fields[code] = "must be a number"
			continue
		}
		if v < MinValue || v > MaxValue {
			fields[code] = fmt.Sprintf("must be between %g and %g", MinValue, MaxValue)
		}
	}
	if len(fields) == 0 {
		return nil
	}
	return &ValidationError{Message: "invalid indicator values", Fields: fields}
}
