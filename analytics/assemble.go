package analytics

import (
	"math"

	"metric-anomaly-engine/timeseries"
)

type combineMode int

const (
	// combineTrend flags a row when the pattern matches AND the deviation
	// reaches the error bound.
	combineTrend combineMode = iota
	// combineRange flags a row when it is above the upper OR below the lower bound.
	combineRange
)

// assembler joins a computed baseline table onto observed values and derives
// diff, patternMatch, boundViolation and anomaly.
type assembler struct {
	pattern Pattern
	mode    combineMode
	window  Window

	// guardWindow suppresses anomalies on rows outside window. Used when the
	// observed table is wider than the detection window.
	guardWindow bool

	diff func(current, baseline float64) float64
}

func absoluteDiff(current, baseline float64) float64 { return current - baseline }

// baselineFrame allocates the computed columns for n rows, all null.
type baselineFrame struct {
	baseline   []float64
	upper      []float64
	lower      []float64
	errorBound []float64
}

func newBaselineFrame(n int) baselineFrame {
	return baselineFrame{
		baseline:   timeseries.NullFloats(n),
		upper:      timeseries.NullFloats(n),
		lower:      timeseries.NullFloats(n),
		errorBound: timeseries.NullFloats(n),
	}
}

func (f baselineFrame) table(index []int64) (*timeseries.Table, error) {
	t, err := timeseries.NewIndex(index)
	if err != nil {
		return nil, err
	}
	for _, c := range []struct {
		name string
		col  []float64
	}{
		{timeseries.ColBaseline, f.baseline},
		{timeseries.ColUpperBound, f.upper},
		{timeseries.ColLowerBound, f.lower},
		{timeseries.ColErrorBound, f.errorBound},
	} {
		if err := t.SetFloats(c.name, c.col); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// assemble builds the result table over observed's index.
func (a assembler) assemble(observed, computed *timeseries.Table) (*timeseries.Table, error) {
	out, err := timeseries.NewIndex(observed.Timestamps())
	if err != nil {
		return nil, err
	}
	if err := out.SetFloats(timeseries.ColCurrent, observed.Values()); err != nil {
		return nil, err
	}
	out, err = out.LeftJoin(computed,
		timeseries.ColBaseline, timeseries.ColUpperBound, timeseries.ColLowerBound, timeseries.ColErrorBound)
	if err != nil {
		return nil, err
	}

	n := out.Len()
	current, _ := out.Floats(timeseries.ColCurrent)
	baseline, _ := out.Floats(timeseries.ColBaseline)
	upper, _ := out.Floats(timeseries.ColUpperBound)
	lower, _ := out.Floats(timeseries.ColLowerBound)
	errBound, _ := out.Floats(timeseries.ColErrorBound)

	diffFn := a.diff
	if diffFn == nil {
		diffFn = absoluteDiff
	}

	diff := timeseries.NullFloats(n)
	patternMatch := make([]timeseries.Bool, n)
	violation := make([]timeseries.Bool, n)
	anomaly := make([]timeseries.Bool, n)

	for i := 0; i < n; i++ {
		cur, base := current[i], baseline[i]
		if math.IsNaN(cur) || math.IsNaN(base) {
			continue
		}
		diff[i] = diffFn(cur, base)

		switch a.mode {
		case combineRange:
			tooHigh := !math.IsNaN(upper[i]) && cur > upper[i]
			tooLow := !math.IsNaN(lower[i]) && cur < lower[i]
			violation[i] = timeseries.BoolOf(tooHigh || tooLow)
			anomaly[i] = violation[i]
		default:
			if math.IsNaN(errBound[i]) {
				continue
			}
			pm := a.pattern.Matches(cur, base)
			bv := math.Abs(diff[i]) >= errBound[i]
			inWindow := !a.guardWindow || a.window.Contains(out.Timestamp(i))
			patternMatch[i] = timeseries.BoolOf(pm)
			violation[i] = timeseries.BoolOf(bv)
			anomaly[i] = timeseries.BoolOf(pm && bv && inWindow)
		}
	}

	if err := out.SetFloats(timeseries.ColDiff, diff); err != nil {
		return nil, err
	}
	if err := out.SetBools(timeseries.ColPatternMatch, patternMatch); err != nil {
		return nil, err
	}
	if err := out.SetBools(timeseries.ColBoundViolation, violation); err != nil {
		return nil, err
	}
	if err := out.SetBools(timeseries.ColAnomaly, anomaly); err != nil {
		return nil, err
	}
	return out, nil
}

// CountAnomalies counts rows flagged true in the anomaly column.
func CountAnomalies(t *timeseries.Table) int {
	flags, err := t.Bools(timeseries.ColAnomaly)
	if err != nil {
		return 0
	}
	n := 0
	for _, f := range flags {
		if f.IsTrue() {
			n++
		}
	}
	return n
}
