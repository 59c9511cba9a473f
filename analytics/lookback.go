package analytics

import (
	"math"
	"time"

	"metric-anomaly-engine/timeseries"
)

// calendarRetries is how many extra seasonal periods a calendar lookback
// steps back when the exact same-time value is missing.
const calendarRetries = 4

// LookbackBuilder extracts the training slice preceding a target timestamp.
type LookbackBuilder struct {
	Points int

	// Calendar switches from "previous Points rows" to "same time of day for
	// the previous Points granularity steps".
	Calendar    bool
	Granularity Granularity
	Period      int
	Location    *time.Location
	WeekStart   time.Weekday
}

func newLookbackBuilder(spec Spec, points int) (LookbackBuilder, error) {
	b := LookbackBuilder{Points: points, Period: spec.Period, WeekStart: spec.WeekStart}
	loc, err := spec.location()
	if err != nil {
		return b, err
	}
	b.Location = loc
	g, ok, err := spec.granularity()
	if err != nil {
		return b, err
	}
	if ok && g.Calendar() {
		b.Calendar = true
		b.Granularity = g
	}
	return b, nil
}

// Build returns the training values for target in chronological order.
// values is a column aligned with series; null entries are never returned
// as training values.
func (b LookbackBuilder) Build(series *timeseries.Table, values []float64, target int64) []float64 {
	if b.Calendar {
		return b.calendar(series, values, target)
	}
	return b.fixed(series, values, target)
}

func (b LookbackBuilder) fixed(series *timeseries.Table, values []float64, target int64) []float64 {
	end, _ := series.IndexOf(target)
	start := end - b.Points
	if start < 0 {
		start = 0
	}
	out := make([]float64, 0, end-start)
	for _, v := range values[start:end] {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}

func (b LookbackBuilder) calendar(series *timeseries.Table, values []float64, target int64) []float64 {
	loc := b.Location
	if loc == nil {
		loc = time.UTC
	}
	anchor := time.UnixMilli(target).In(loc)
	if b.Granularity.Weekly() {
		shift := (int(anchor.Weekday()) - int(b.WeekStart) + 7) % 7
		anchor = anchor.AddDate(0, 0, -shift)
	}

	lookup := func(t time.Time) (float64, bool) {
		i, ok := series.IndexOf(t.UnixMilli())
		if !ok || math.IsNaN(values[i]) {
			return 0, false
		}
		return values[i], true
	}

	period := b.Period
	if period < 1 {
		period = 1
	}

	out := make([]float64, 0, b.Points)
	var last float64
	haveLast := false
	for step := 1; step <= b.Points; step++ {
		at := b.Granularity.Back(anchor, step)
		v, ok := lookup(at)
		for retry := 1; !ok && retry <= calendarRetries; retry++ {
			v, ok = lookup(b.Granularity.Back(at, retry*period))
		}
		if !ok {
			if !haveLast {
				continue
			}
			v = last
		}
		out = append(out, v)
		last, haveLast = v, true
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}
