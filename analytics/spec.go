package analytics

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/sosodev/duration"
)

// Unset marks an optional smoothing constant that should be fitted.
const Unset = -1.0

// Spec is the immutable detector configuration. Optional floats use NaN
// (thresholds) or a negative value (smoothing constants) for "not set".
type Spec struct {
	Pattern     Pattern
	Sensitivity float64

	// Lookback is a point count; LookbackPeriod (ISO-8601) overrides it and
	// requires MonitoringGranularity.
	Lookback              int
	LookbackPeriod        string
	MonitoringGranularity string

	Period int

	Alpha float64
	Beta  float64
	Gamma float64

	Smoothing bool

	Offset string

	Min float64
	Max float64

	AbsoluteChange   float64
	PercentageChange float64

	WeekStart time.Weekday
	Timezone  string
}

// DefaultSpec returns a spec with every optional field unset.
func DefaultSpec() Spec {
	return Spec{
		Pattern:          PatternUpOrDown,
		Sensitivity:      5,
		Period:           7,
		Alpha:            Unset,
		Beta:             Unset,
		Gamma:            Unset,
		Min:              math.NaN(),
		Max:              math.NaN(),
		AbsoluteChange:   math.NaN(),
		PercentageChange: math.NaN(),
		WeekStart:        time.Monday,
		Timezone:         "UTC",
	}
}

// ParseWeekday accepts English weekday names or three-letter abbreviations.
func ParseWeekday(s string) (time.Weekday, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		full := strings.ToLower(d.String())
		if name == full || name == full[:3] {
			return d, nil
		}
	}
	return time.Sunday, configError("weekStart", "unknown weekday %q", s)
}

func (s Spec) validateCommon() error {
	if !s.Pattern.Valid() {
		return configError("pattern", "must be one of UP, DOWN, UP_OR_DOWN, got %q", s.Pattern)
	}
	if math.IsNaN(s.Sensitivity) {
		return configError("sensitivity", "is required")
	}
	if s.Lookback < 0 {
		return configError("lookback", "must not be negative, got %d", s.Lookback)
	}
	if s.LookbackPeriod != "" && s.MonitoringGranularity == "" {
		return configError("monitoringGranularity", "is required when lookbackPeriod is set")
	}
	if _, err := s.location(); err != nil {
		return err
	}
	return nil
}

func (s Spec) location() (*time.Location, error) {
	if s.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, configError("timezone", "%v", err)
	}
	return loc, nil
}

// granularity parses MonitoringGranularity; ok is false when it is not set.
func (s Spec) granularity() (g Granularity, ok bool, err error) {
	if s.MonitoringGranularity == "" {
		return Granularity{}, false, nil
	}
	g, err = ParseGranularity(s.MonitoringGranularity)
	if err != nil {
		return Granularity{}, false, configError("monitoringGranularity", "%v", err)
	}
	return g, true, nil
}

// lookbackPoints resolves the effective lookback point count.
func (s Spec) lookbackPoints() (int, error) {
	if s.LookbackPeriod == "" {
		return s.Lookback, nil
	}
	period, err := ParseGranularity(s.LookbackPeriod)
	if err != nil {
		return 0, configError("lookbackPeriod", "%v", err)
	}
	g, _, err := s.granularity()
	if err != nil {
		return 0, err
	}
	n, err := period.Steps(g)
	if err != nil {
		return 0, configError("lookbackPeriod", "%v", err)
	}
	return n, nil
}

// Granularity is a parsed ISO-8601 duration split into calendar and clock parts.
type Granularity struct {
	Years, Months, Days int
	Clock               time.Duration
}

// ParseGranularity parses an ISO-8601 duration such as "P1D" or "PT5M".
// Fractional calendar components are rejected.
func ParseGranularity(s string) (Granularity, error) {
	d, err := duration.Parse(s)
	if err != nil {
		return Granularity{}, err
	}
	if d.Negative {
		return Granularity{}, errNonPositive(s)
	}
	for _, v := range []float64{d.Years, d.Months, d.Weeks, d.Days} {
		if v != math.Trunc(v) {
			return Granularity{}, errFractional(s)
		}
	}
	g := Granularity{
		Years:  int(d.Years),
		Months: int(d.Months),
		Days:   int(d.Days) + 7*int(d.Weeks),
		Clock: time.Duration(d.Hours*float64(time.Hour)) +
			time.Duration(d.Minutes*float64(time.Minute)) +
			time.Duration(d.Seconds*float64(time.Second)),
	}
	if g.IsZero() {
		return Granularity{}, errNonPositive(s)
	}
	return g, nil
}

func (g Granularity) IsZero() bool {
	return g.Years == 0 && g.Months == 0 && g.Days == 0 && g.Clock == 0
}

// Calendar reports whether the granularity is made of whole days or longer
// calendar units, which shift with DST and month length.
func (g Granularity) Calendar() bool {
	return g.Clock == 0 && !g.IsZero()
}

// Weekly reports whether the granularity is a whole number of weeks.
func (g Granularity) Weekly() bool {
	return g.Calendar() && g.Years == 0 && g.Months == 0 && g.Days%7 == 0
}

// Back moves t back by k granularity steps.
func (g Granularity) Back(t time.Time, k int) time.Time {
	return t.AddDate(-k*g.Years, -k*g.Months, -k*g.Days).Add(-time.Duration(k) * g.Clock)
}

// Approx converts to a fixed duration, counting a day as 24h, a month as 30
// days and a year as 365 days.
func (g Granularity) Approx() time.Duration {
	days := g.Years*365 + g.Months*30 + g.Days
	return time.Duration(days)*24*time.Hour + g.Clock
}

// Steps returns how many whole steps of unit fit into g.
func (g Granularity) Steps(unit Granularity) (int, error) {
	if unit.Years == 0 && unit.Months == 0 && g.Years == 0 && g.Months == 0 && unit.Clock == 0 && g.Clock == 0 && unit.Days > 0 {
		return g.Days / unit.Days, nil
	}
	u := unit.Approx()
	if u <= 0 {
		return 0, errNonPositive("granularity")
	}
	return int(g.Approx() / u), nil
}

func errNonPositive(s string) error {
	return fmt.Errorf("duration %s must be positive", s)
}

func errFractional(s string) error {
	return fmt.Errorf("duration %s has fractional calendar units", s)
}
