package analytics

import (
	"math"
	"regexp"
	"strconv"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"metric-anomaly-engine/timeseries"
)

var offsetExpr = regexp.MustCompile(`^(wo|ho|do|mo|mean|median|min|max)(\d+)([hdwm])$`)

// Offset describes how a baseline series is derived from history, e.g.
// "wo1w" (same time one week earlier) or "median4w" (median of the same time
// in each of the previous four weeks).
type Offset struct {
	Aggregate string
	Count     int
	Unit      Granularity
	Location  *time.Location
}

// ParseOffset parses a baseline offset expression.
func ParseOffset(expr string, loc *time.Location) (Offset, error) {
	m := offsetExpr.FindStringSubmatch(expr)
	if m == nil {
		return Offset{}, configError("offset", "cannot parse %q", expr)
	}
	count, err := strconv.Atoi(m[2])
	if err != nil || count < 1 {
		return Offset{}, configError("offset", "count in %q must be positive", expr)
	}
	var unit Granularity
	switch m[3] {
	case "h":
		unit.Clock = time.Hour
	case "d":
		unit.Days = 1
	case "w":
		unit.Days = 7
	case "m":
		unit.Months = 1
	}
	if loc == nil {
		loc = time.UTC
	}
	agg := m[1]
	switch agg {
	case "wo", "ho", "do", "mo":
		agg = ""
	}
	return Offset{Aggregate: agg, Count: count, Unit: unit, Location: loc}, nil
}

// Shift builds a baseline table over timestamps by looking up history at the
// shifted times. Lookups that miss are ignored; a row with no hits is null.
func (o Offset) Shift(history *timeseries.Table, timestamps []int64) (*timeseries.Table, error) {
	out, err := timeseries.NewIndex(timestamps)
	if err != nil {
		return nil, err
	}
	values := make([]float64, len(timestamps))
	hits := make([]float64, 0, o.Count)
	for i, ts := range timestamps {
		at := time.UnixMilli(ts).In(o.Location)
		hits = hits[:0]
		first := 1
		if o.Aggregate == "" {
			first = o.Count
		}
		for k := first; k <= o.Count; k++ {
			if v, ok := history.Lookup(timeseries.ColValue, o.Unit.Back(at, k).UnixMilli()); ok {
				hits = append(hits, v)
			}
		}
		values[i] = o.aggregate(hits)
	}
	if err := out.SetFloats(timeseries.ColValue, values); err != nil {
		return nil, err
	}
	return out, nil
}

func (o Offset) aggregate(hits []float64) float64 {
	if len(hits) == 0 {
		return math.NaN()
	}
	switch o.Aggregate {
	case "mean":
		return stat.Mean(hits, nil)
	case "median":
		return median(hits)
	case "min":
		return floats.Min(hits)
	case "max":
		return floats.Max(hits)
	}
	return hits[0]
}

// DeriveBaseline fills in the baseline input from the current series using
// spec.Offset. It does nothing when a baseline is already present or no
// offset is configured.
func DeriveBaseline(spec Spec, inputs Inputs) error {
	if spec.Offset == "" || inputs[RoleBaseline] != nil {
		return nil
	}
	current, err := inputs.require(RoleCurrent)
	if err != nil {
		return err
	}
	loc, err := spec.location()
	if err != nil {
		return err
	}
	offset, err := ParseOffset(spec.Offset, loc)
	if err != nil {
		return err
	}
	baseline, err := offset.Shift(current, current.Timestamps())
	if err != nil {
		return err
	}
	inputs[RoleBaseline] = baseline
	return nil
}
