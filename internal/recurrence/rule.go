// Package recurrence implements the restricted 5-field schedule grammar
// used by recurring world-event definitions.
//
// A rule has five fields (minute hour day-of-month month day-of-week) and
// each field is one of:
//
//   - "*"   always matches
//   - "N"   literal value, exact match
//   - "*/N" step, matches when value % N == 0
//
// Lists ("1,2,3"), ranges ("1-5"), and day/month names are deliberately
// unsupported and rejected at parse time so they can never be silently
// misinterpreted.
//
// Matching is stateless and minute-resolution: a rule answers "should this
// trigger at exactly this minute". There is no catch-up for minutes missed
// while the driver was not running.
package recurrence

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type fieldKind int

const (
	fieldAny fieldKind = iota
	fieldLiteral
	fieldStep
)

type field struct {
	kind fieldKind
	n    int
}

func (f field) matches(v int) bool {
	switch f.kind {
	case fieldAny:
		return true
	case fieldLiteral:
		return v == f.n
	case fieldStep:
		return v%f.n == 0
	default:
		return false
	}
}

// bounds for literal values, in field order:
// minute, hour, day-of-month, month, day-of-week (Sunday=0).
var fieldBounds = [5]struct {
	name     string
	min, max int
}{
	{"minute", 0, 59},
	{"hour", 0, 23},
	{"day-of-month", 1, 31},
	{"month", 1, 12},
	{"day-of-week", 0, 6},
}

// Rule is a parsed 5-field schedule rule. The zero value matches nothing;
// always construct rules through ParseRule.
type Rule struct {
	raw    string
	fields [5]field
	valid  bool
}

// ParseRule parses a 5-field rule string.
func ParseRule(raw string) (Rule, error) {
	parts := strings.Fields(strings.TrimSpace(raw))
	if len(parts) != 5 {
		return Rule{}, fmt.Errorf("recurrence rule %q: want 5 fields (minute hour dom month dow), got %d", raw, len(parts))
	}

	var r Rule
	r.raw = strings.Join(parts, " ")
	for i, p := range parts {
		f, err := parseField(p, fieldBounds[i].min, fieldBounds[i].max)
		if err != nil {
			return Rule{}, fmt.Errorf("recurrence rule %q: %s field: %w", raw, fieldBounds[i].name, err)
		}
		r.fields[i] = f
	}
	r.valid = true
	return r, nil
}

func parseField(p string, lo, hi int) (field, error) {
	switch {
	case p == "*":
		return field{kind: fieldAny}, nil
	case strings.ContainsAny(p, ",-"):
		// Reject loudly: silently treating "1-5" as a literal would be worse
		// than an error.
		return field{}, fmt.Errorf("lists and ranges are unsupported (got %q); use '*', a literal, or '*/N'", p)
	case strings.HasPrefix(p, "*/"):
		n, err := strconv.Atoi(p[2:])
		if err != nil || n <= 0 {
			return field{}, fmt.Errorf("invalid step %q", p)
		}
		return field{kind: fieldStep, n: n}, nil
	default:
		n, err := strconv.Atoi(p)
		if err != nil {
			return field{}, fmt.Errorf("invalid value %q", p)
		}
		if n < lo || n > hi {
			return field{}, fmt.Errorf("value %d out of range [%d,%d]", n, lo, hi)
		}
		return field{kind: fieldLiteral, n: n}, nil
	}
}

// Matches reports whether the rule triggers at the minute containing t.
// All five fields must match (conjunction).
func (r Rule) Matches(t time.Time) bool {
	if !r.valid {
		return false
	}
	t = t.Truncate(time.Minute)
	vals := [5]int{
		t.Minute(),
		t.Hour(),
		t.Day(),
		int(t.Month()),
		int(t.Weekday()),
	}
	for i, f := range r.fields {
		if !f.matches(vals[i]) {
			return false
		}
	}
	return true
}

// IsZero reports whether the rule was never parsed.
func (r Rule) IsZero() bool { return !r.valid }

func (r Rule) String() string { return r.raw }
