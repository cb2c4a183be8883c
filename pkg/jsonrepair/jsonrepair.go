// Package jsonrepair recovers JSON objects from loosely formatted model output.
package jsonrepair

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrUnrepairable is returned when text is not valid JSON even after repair.
var ErrUnrepairable = errors.New("jsonrepair: text is not valid JSON after repair")

// Outcome reports how Decode obtained a value.
type Outcome string

const (
	Clean    Outcome = "clean"
	Repaired Outcome = "repaired"
	Failed   Outcome = "failed"
)

var openingFence = regexp.MustCompile("^```[A-Za-z0-9_-]*") //nolint:gochecknoglobals // compiled once

// Repair applies best-effort fixes: code fences are stripped, the text is
// trimmed to its outermost {...} span, single-quoted keys become
// double-quoted, trailing commas are dropped and raw control characters
// inside string literals are escaped.
func Repair(text string) string {
	s := stripFences(text)
	if start, end := strings.Index(s, "{"), strings.LastIndex(s, "}"); start >= 0 && end > start {
		s = s[start : end+1]
	}
	return scan(s)
}

// stripFences removes an opening marker such as ```json and a closing ```,
// keeping whatever shares a line with them. Fences after leading prose are
// cut off by the trim to the outermost object.
func stripFences(text string) string {
	s := openingFence.ReplaceAllString(strings.TrimSpace(text), "")
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}

// scan walks the text once, tracking whether it is inside a string literal.
func scan(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 16)
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
				b.WriteByte(c)
			case c == '\\':
				escaped = true
				b.WriteByte(c)
			case c == '"':
				inString = false
				b.WriteByte(c)
			case c == '\n':
				b.WriteString(`\n`)
			case c == '\r':
				b.WriteString(`\r`)
			case c == '\t':
				b.WriteString(`\t`)
			case c < 0x20:
				fmt.Fprintf(&b, `\u%04x`, c)
			default:
				b.WriteByte(c)
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '\'':
			if key, next, ok := singleQuotedKey(s, i); ok {
				b.WriteString(key)
				i = next - 1
				continue
			}
		case ',':
			if j := nextNonSpace(s, i+1); j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

// singleQuotedKey reads a 'key' starting at s[i] that is followed by a colon
// and returns it double-quoted with the index just past the closing quote.
func singleQuotedKey(s string, i int) (string, int, bool) {
	end := strings.IndexAny(s[i+1:], "'\\\n")
	if end < 0 || s[i+1+end] != '\'' {
		return "", 0, false
	}
	end += i + 1
	if j := nextNonSpace(s, end+1); j >= len(s) || s[j] != ':' {
		return "", 0, false
	}
	key := strings.ReplaceAll(s[i+1:end], `"`, `\"`)
	return `"` + key + `"`, end + 1, true
}

func nextNonSpace(s string, i int) int {
	for i < len(s) && (s[i] == ' ' || s[i] == '\n' || s[i] == '\r' || s[i] == '\t') {
		i++
	}
	return i
}

// Decode unmarshals text into v, repairing it first if the raw text fails.
func Decode(text string, v any) (Outcome, error) {
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), v); err == nil {
		return Clean, nil
	}
	if err := json.Unmarshal([]byte(Repair(text)), v); err != nil {
		return Failed, fmt.Errorf("%w: %w", ErrUnrepairable, err)
	}
	return Repaired, nil
}

// Unmarshal is Decode without the outcome.
func Unmarshal(text string, v any) error {
	_, err := Decode(text, v)
	return err
}
