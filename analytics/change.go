package analytics

import (
	"math"

	"metric-anomaly-engine/timeseries"
)

// ChangeDetector compares the current series against a pre-aligned baseline
// series, either by absolute difference or by relative change.
type ChangeDetector struct {
	kind      Kind
	pattern   Pattern
	threshold float64
	diff      func(current, baseline float64) float64
	band      func(baseline, threshold float64) float64
}

// NewAbsoluteChange flags rows where |current - baseline| >= AbsoluteChange.
func NewAbsoluteChange(spec Spec) (*ChangeDetector, error) {
	d, err := newChangeDetector(KindAbsoluteChange, spec, "absoluteChange", spec.AbsoluteChange)
	if err != nil {
		return nil, err
	}
	d.diff = absoluteDiff
	d.band = func(_, threshold float64) float64 { return threshold }
	return d, nil
}

// NewPercentageChange flags rows where |(current - baseline) / baseline| >=
// PercentageChange, expressed as a fraction (0.1 is ten percent).
func NewPercentageChange(spec Spec) (*ChangeDetector, error) {
	d, err := newChangeDetector(KindPercentageChange, spec, "percentageChange", spec.PercentageChange)
	if err != nil {
		return nil, err
	}
	d.diff = percentageDiff
	d.band = func(baseline, threshold float64) float64 { return math.Abs(baseline) * threshold }
	return d, nil
}

func newChangeDetector(kind Kind, spec Spec, field string, threshold float64) (*ChangeDetector, error) {
	if err := spec.validateCommon(); err != nil {
		return nil, err
	}
	if math.IsNaN(threshold) {
		return nil, configError(field, "is required")
	}
	if threshold < 0 || math.IsInf(threshold, 0) {
		return nil, configError(field, "must be a finite non-negative number, got %v", threshold)
	}
	if spec.Offset != "" {
		loc, err := spec.location()
		if err != nil {
			return nil, err
		}
		if _, err := ParseOffset(spec.Offset, loc); err != nil {
			return nil, err
		}
	}
	return &ChangeDetector{kind: kind, pattern: spec.Pattern, threshold: threshold}, nil
}

// percentageDiff is the relative change; a zero baseline yields 0 for a zero
// current value and a signed infinity otherwise.
func percentageDiff(current, baseline float64) float64 {
	if baseline == 0 {
		if current == 0 {
			return 0
		}
		return math.Copysign(math.Inf(1), current)
	}
	return (current - baseline) / baseline
}

func (d *ChangeDetector) Kind() Kind { return d.kind }

// Detect expects "current" and "baseline" tables. The current table may be
// wider than window; rows outside it are returned but never flagged.
func (d *ChangeDetector) Detect(window Window, inputs Inputs, obs Observer) (*timeseries.Table, error) {
	obs = obs.withDefaults()
	return observe(d.kind, obs, window, func() (*timeseries.Table, error) {
		current, err := inputs.require(RoleCurrent)
		if err != nil {
			return nil, err
		}
		reference, err := inputs.require(RoleBaseline)
		if err != nil {
			return nil, err
		}

		frame := newBaselineFrame(current.Len())
		for i, ts := range current.Timestamps() {
			base, ok := reference.Lookup(timeseries.ColValue, ts)
			if !ok {
				continue
			}
			upper, lower := d.bounds(base)
			frame.baseline[i] = base
			frame.upper[i] = upper
			frame.lower[i] = lower
			frame.errorBound[i] = d.threshold
		}

		computed, err := frame.table(current.Timestamps())
		if err != nil {
			return nil, err
		}
		a := assembler{
			pattern:     d.pattern,
			mode:        combineTrend,
			window:      window,
			guardWindow: true,
			diff:        d.diff,
		}
		return a.assemble(current, computed)
	})
}

// bounds shifts the baseline by the threshold in the watched directions. An
// unwatched upper side is +Inf; an unwatched lower side is 0, or the
// baseline itself when the baseline is negative.
func (d *ChangeDetector) bounds(base float64) (upper, lower float64) {
	band := d.band(base, d.threshold)
	upper = math.Inf(1)
	lower = math.Min(0, base)
	if d.pattern.up() {
		upper = base + band
	}
	if d.pattern.down() {
		lower = base - band
	}
	return upper, lower
}
