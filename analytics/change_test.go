package analytics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metric-anomaly-engine/timeseries"
)

func TestAbsoluteChange_UpOnly(t *testing.T) {
	spec := DefaultSpec()
	spec.Pattern = PatternUp
	spec.AbsoluteChange = 50
	d, err := NewAbsoluteChange(spec)
	require.NoError(t, err)

	inputs := Inputs{
		RoleCurrent:  series(t, 100, 200, 300, 400, 500),
		RoleBaseline: series(t, 211, 199, 299, 311, 411),
	}
	out, err := d.Detect(Window{Start: minuteTS(0), End: minuteTS(5)}, inputs, Observer{})
	require.NoError(t, err)

	assert.Equal(t, []bool{false, false, false, true, true}, flagsOf(t, out, timeseries.ColAnomaly))
	assert.Equal(t, []float64{-111, 1, 1, 89, 89}, floatsOf(t, out, timeseries.ColDiff))
	assert.Equal(t, []bool{true, false, false, true, true}, flagsOf(t, out, timeseries.ColBoundViolation))
	assert.Equal(t, []bool{false, true, true, true, true}, flagsOf(t, out, timeseries.ColPatternMatch))

	upper := floatsOf(t, out, timeseries.ColUpperBound)
	lower := floatsOf(t, out, timeseries.ColLowerBound)
	assert.Equal(t, 261.0, upper[0])
	assert.Equal(t, 0.0, lower[0], "unwatched lower side defaults to 0")
	requireBoundOrder(t, out)
}

func TestAbsoluteChange_DownBounds(t *testing.T) {
	spec := DefaultSpec()
	spec.Pattern = PatternDown
	spec.AbsoluteChange = 10
	d, err := NewAbsoluteChange(spec)
	require.NoError(t, err)

	out, err := d.Detect(Window{Start: minuteTS(0), End: minuteTS(2)},
		Inputs{RoleCurrent: series(t, 80, 120), RoleBaseline: series(t, 100, 100)}, Observer{})
	require.NoError(t, err)

	assert.Equal(t, []bool{true, false}, flagsOf(t, out, timeseries.ColAnomaly))
	assert.True(t, math.IsInf(floatsOf(t, out, timeseries.ColUpperBound)[0], 1))
	assert.Equal(t, 90.0, floatsOf(t, out, timeseries.ColLowerBound)[0])
}

func TestAbsoluteChange_SuppressesRowsOutsideWindow(t *testing.T) {
	spec := DefaultSpec()
	spec.AbsoluteChange = 10
	d, err := NewAbsoluteChange(spec)
	require.NoError(t, err)

	inputs := Inputs{
		RoleCurrent:  series(t, 500, 500, 500, 500),
		RoleBaseline: series(t, 100, 100, 100, 100),
	}
	out, err := d.Detect(Window{Start: minuteTS(1), End: minuteTS(3)}, inputs, Observer{})
	require.NoError(t, err)

	require.Equal(t, 4, out.Len())
	assert.Equal(t, []bool{false, true, true, false}, flagsOf(t, out, timeseries.ColAnomaly))
	assert.Equal(t, []bool{true, true, true, true}, flagsOf(t, out, timeseries.ColBoundViolation))
}

func TestAbsoluteChange_MissingBaselineRowIsNull(t *testing.T) {
	spec := DefaultSpec()
	spec.AbsoluteChange = 10
	d, err := NewAbsoluteChange(spec)
	require.NoError(t, err)

	baseline, err := timeseries.New([]int64{minuteTS(1)}, []float64{100})
	require.NoError(t, err)

	out, err := d.Detect(Window{Start: minuteTS(0), End: minuteTS(2)},
		Inputs{RoleCurrent: series(t, 500, 500), RoleBaseline: baseline}, Observer{})
	require.NoError(t, err)

	flags, err := out.Bools(timeseries.ColAnomaly)
	require.NoError(t, err)
	assert.Equal(t, timeseries.Null, flags[0])
	assert.Equal(t, timeseries.True, flags[1])
	assert.True(t, math.IsNaN(floatsOf(t, out, timeseries.ColBaseline)[0]))
}

func TestChange_RequiresBaselineInput(t *testing.T) {
	spec := DefaultSpec()
	spec.PercentageChange = 0.1
	d, err := NewPercentageChange(spec)
	require.NoError(t, err)

	_, err = d.Detect(Window{Start: minuteTS(0), End: minuteTS(1)}, Inputs{RoleCurrent: series(t, 1)}, Observer{})
	var inputErr *InputDataError
	require.ErrorAs(t, err, &inputErr)
	assert.Equal(t, RoleBaseline, inputErr.Role)
}

func TestChange_Configuration(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Spec)
		ctor   func(Spec) (*ChangeDetector, error)
	}{
		{name: "absolute unset", modify: func(s *Spec) {}, ctor: NewAbsoluteChange},
		{name: "percentage unset", modify: func(s *Spec) {}, ctor: NewPercentageChange},
		{name: "negative threshold", modify: func(s *Spec) { s.AbsoluteChange = -1 }, ctor: NewAbsoluteChange},
		{name: "bad pattern", modify: func(s *Spec) { s.AbsoluteChange = 1; s.Pattern = "SIDEWAYS" }, ctor: NewAbsoluteChange},
		{name: "bad offset", modify: func(s *Spec) { s.AbsoluteChange = 1; s.Offset = "lastweek" }, ctor: NewAbsoluteChange},
		{name: "nan sensitivity", modify: func(s *Spec) { s.PercentageChange = 1; s.Sensitivity = math.NaN() }, ctor: NewPercentageChange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := DefaultSpec()
			tt.modify(&spec)
			_, err := tt.ctor(spec)
			assert.ErrorIs(t, err, ErrConfiguration)
		})
	}

	spec := DefaultSpec()
	spec.AbsoluteChange = 5
	spec.Offset = "wo1w"
	_, err := NewAbsoluteChange(spec)
	assert.NoError(t, err)
}

func TestPercentageDiff(t *testing.T) {
	tests := []struct {
		name          string
		current, base float64
		want          float64
	}{
		{name: "increase", current: 110, base: 100, want: 0.1},
		{name: "decrease", current: 50, base: 100, want: -0.5},
		{name: "both zero", current: 0, base: 0, want: 0},
		{name: "zero baseline positive", current: 5, base: 0, want: math.Inf(1)},
		{name: "zero baseline negative", current: -5, base: 0, want: math.Inf(-1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, percentageDiff(tt.current, tt.base))
		})
	}
}

func TestPercentageChange_Detect(t *testing.T) {
	spec := DefaultSpec()
	spec.PercentageChange = 0.2
	d, err := NewPercentageChange(spec)
	require.NoError(t, err)

	inputs := Inputs{
		RoleCurrent:  series(t, 110, 130, 70, 0, 5),
		RoleBaseline: series(t, 100, 100, 100, 0, 0),
	}
	out, err := d.Detect(Window{Start: minuteTS(0), End: minuteTS(5)}, inputs, Observer{})
	require.NoError(t, err)

	assert.Equal(t, []bool{false, true, true, false, true}, flagsOf(t, out, timeseries.ColAnomaly))
	assert.Equal(t, 120.0, floatsOf(t, out, timeseries.ColUpperBound)[0])
	assert.Equal(t, 80.0, floatsOf(t, out, timeseries.ColLowerBound)[0])
	requireBoundOrder(t, out)
}
