package analytics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metric-anomaly-engine/timeseries"
)

func meanVarianceSpec(lookback int, pattern Pattern) Spec {
	spec := DefaultSpec()
	spec.Lookback = lookback
	spec.Pattern = pattern
	return spec
}

func TestSensitivityMaps(t *testing.T) {
	tests := []struct {
		sensitivity float64
		wantSigma   float64
		wantZ       float64
	}{
		{sensitivity: 0, wantSigma: 1.5, wantZ: 3},
		{sensitivity: 5, wantSigma: 1.0, wantZ: 2},
		{sensitivity: 10, wantSigma: 0.5, wantZ: 1},
		{sensitivity: -4, wantSigma: 1.5, wantZ: 3},
		{sensitivity: 42, wantSigma: 0.5, wantZ: 1},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.wantSigma, sigmaMultiplier(tt.sensitivity), 1e-12, "sigma(%v)", tt.sensitivity)
		assert.InDelta(t, tt.wantZ, zScore(tt.sensitivity), 1e-12, "zscore(%v)", tt.sensitivity)
	}
}

func TestMeanVariance_ConstantSeries(t *testing.T) {
	d, err := NewMeanVariance(meanVarianceSpec(5, PatternUpOrDown))
	require.NoError(t, err)

	current := series(t, 42, 42, 42, 42, 42, 42, 42, 42, 42, 50)
	out, err := d.Detect(Window{Start: minuteTS(5), End: minuteTS(10)}, Inputs{RoleCurrent: current}, Observer{})
	require.NoError(t, err)

	require.Equal(t, 5, out.Len())
	assert.Equal(t, []float64{42, 42, 42, 42, 42}, floatsOf(t, out, timeseries.ColBaseline))
	assert.Equal(t, []float64{42, 42, 42, 42, 42}, floatsOf(t, out, timeseries.ColUpperBound))
	assert.Equal(t, []float64{42, 42, 42, 42, 42}, floatsOf(t, out, timeseries.ColLowerBound))
	assert.Equal(t, []bool{false, false, false, false, true}, flagsOf(t, out, timeseries.ColAnomaly))
}

func TestMeanVariance_Direction(t *testing.T) {
	tests := []struct {
		pattern Pattern
		last    float64
		want    bool
	}{
		{pattern: PatternUp, last: 6, want: true},
		{pattern: PatternDown, last: 6, want: false},
		{pattern: PatternDown, last: 0, want: true},
		{pattern: PatternUpOrDown, last: 0, want: true},
		{pattern: PatternUpOrDown, last: 4, want: false},
	}
	for _, tt := range tests {
		t.Run(string(tt.pattern), func(t *testing.T) {
			d, err := NewMeanVariance(meanVarianceSpec(5, tt.pattern))
			require.NoError(t, err)

			current := series(t, 1, 2, 3, 4, 5, tt.last)
			out, err := d.Detect(Window{Start: minuteTS(5), End: minuteTS(6)}, Inputs{RoleCurrent: current}, Observer{})
			require.NoError(t, err)

			assert.InDelta(t, 3.0, floatsOf(t, out, timeseries.ColBaseline)[0], 1e-12)
			assert.InDelta(t, 3+math.Sqrt2, floatsOf(t, out, timeseries.ColUpperBound)[0], 1e-9)
			assert.InDelta(t, 3-math.Sqrt2, floatsOf(t, out, timeseries.ColLowerBound)[0], 1e-9)
			assert.Equal(t, tt.want, flagsOf(t, out, timeseries.ColAnomaly)[0])
			requireBoundOrder(t, out)
		})
	}
}

func TestMeanVariance_NoLookAhead(t *testing.T) {
	d, err := NewMeanVariance(meanVarianceSpec(5, PatternUpOrDown))
	require.NoError(t, err)

	a := series(t, 1, 2, 3, 4, 5, 6, 7)
	b := series(t, 1, 2, 3, 4, 5, 6, 1000)
	window := Window{Start: minuteTS(5), End: minuteTS(6)}

	outA, err := d.Detect(window, Inputs{RoleCurrent: a}, Observer{})
	require.NoError(t, err)
	outB, err := d.Detect(window, Inputs{RoleCurrent: b}, Observer{})
	require.NoError(t, err)
	assert.True(t, outA.Equal(outB), "later rows must not influence earlier baselines")
}

func TestMeanVariance_SkipsNullHistory(t *testing.T) {
	d, err := NewMeanVariance(meanVarianceSpec(5, PatternUpOrDown))
	require.NoError(t, err)

	current := series(t, 1, 2, math.NaN(), 3, 4, 5, 6)
	out, err := d.Detect(Window{Start: minuteTS(6), End: minuteTS(7)}, Inputs{RoleCurrent: current}, Observer{})
	require.NoError(t, err)
	assert.InDelta(t, 3.0, floatsOf(t, out, timeseries.ColBaseline)[0], 1e-12)
}

func TestMeanVariance_InsufficientData(t *testing.T) {
	d, err := NewMeanVariance(meanVarianceSpec(5, PatternUpOrDown))
	require.NoError(t, err)

	_, err = d.Detect(Window{Start: minuteTS(3), End: minuteTS(8)}, Inputs{RoleCurrent: series(t, 1, 2, 3, 4, 5, 6, 7, 8)}, Observer{})
	require.ErrorIs(t, err, ErrInsufficientData)

	var insufficient *InsufficientDataError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, minuteTS(3), insufficient.Timestamp)
	assert.Equal(t, 3, insufficient.Have)
	assert.Equal(t, 5, insufficient.Need)
}

func TestMeanVariance_Configuration(t *testing.T) {
	_, err := NewMeanVariance(meanVarianceSpec(4, PatternUp))
	assert.ErrorIs(t, err, ErrConfiguration)

	spec := meanVarianceSpec(0, PatternUp)
	spec.LookbackPeriod = "PT10M"
	_, err = NewMeanVariance(spec)
	assert.ErrorIs(t, err, ErrConfiguration, "lookbackPeriod requires a granularity")

	spec.MonitoringGranularity = "PT1M"
	d, err := NewMeanVariance(spec)
	require.NoError(t, err)
	assert.Equal(t, 10, d.lookback)
}
