package analytics

import (
	"fmt"
	"strings"
)

// Pattern is the direction a deviation must take to count as an anomaly.
type Pattern string

const (
	PatternUp       Pattern = "UP"
	PatternDown     Pattern = "DOWN"
	PatternUpOrDown Pattern = "UP_OR_DOWN"
)

// ParsePattern accepts the pattern names case-insensitively.
func ParsePattern(s string) (Pattern, error) {
	p := Pattern(strings.ToUpper(strings.TrimSpace(s)))
	switch p {
	case PatternUp, PatternDown, PatternUpOrDown:
		return p, nil
	}
	return "", configError("pattern", "must be one of UP, DOWN, UP_OR_DOWN, got %q", s)
}

func (p Pattern) Valid() bool {
	switch p {
	case PatternUp, PatternDown, PatternUpOrDown:
		return true
	}
	return false
}

func (p Pattern) up() bool   { return p == PatternUp || p == PatternUpOrDown }
func (p Pattern) down() bool { return p == PatternDown || p == PatternUpOrDown }

// Matches reports whether current deviates from expected in the pattern's
// direction. Equality never matches.
func (p Pattern) Matches(current, expected float64) bool {
	return (p.up() && current > expected) || (p.down() && current < expected)
}

// IsAnomaly reports whether value escapes [lower, upper] on a side the
// pattern watches.
func (p Pattern) IsAnomaly(value, lower, upper float64) bool {
	return (p.up() && value > upper) || (p.down() && value < lower)
}

func (p Pattern) String() string { return string(p) }

// MarshalText and UnmarshalText let patterns travel through JSON and config files.
func (p Pattern) MarshalText() ([]byte, error) { return []byte(p), nil }

func (p *Pattern) UnmarshalText(b []byte) error {
	parsed, err := ParsePattern(string(b))
	if err != nil {
		return fmt.Errorf("pattern: %w", err)
	}
	*p = parsed
	return nil
}
