package analytics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metric-anomaly-engine/timeseries"
)

func thresholdSpec(min, max float64) Spec {
	spec := DefaultSpec()
	spec.Min = min
	spec.Max = max
	return spec
}

func TestThreshold_MinAndMax(t *testing.T) {
	d, err := NewThreshold(thresholdSpec(150, 350))
	require.NoError(t, err)

	current := series(t, 100, 200, 300, 400, 500)
	out, err := d.Detect(Window{Start: minuteTS(0), End: minuteTS(5)}, Inputs{RoleCurrent: current}, Observer{})
	require.NoError(t, err)

	assert.Equal(t, []bool{true, false, false, true, true}, flagsOf(t, out, timeseries.ColAnomaly))
	assert.Equal(t, []float64{150, 200, 300, 350, 350}, floatsOf(t, out, timeseries.ColBaseline))
	assert.Equal(t, []float64{100, 200, 300, 400, 500}, floatsOf(t, out, timeseries.ColCurrent))
	assert.Equal(t, 350.0, floatsOf(t, out, timeseries.ColUpperBound)[0])
	assert.Equal(t, 150.0, floatsOf(t, out, timeseries.ColLowerBound)[0])
	assert.True(t, math.IsNaN(floatsOf(t, out, timeseries.ColErrorBound)[0]))
	requireBoundOrder(t, out)
}

func TestThreshold_UnsetBoundNeverFires(t *testing.T) {
	values := []float64{-1e9, -10, 0, 10, 149, 150, 151, 349, 350, 351, 1e9}
	tests := []struct {
		name     string
		min, max float64
	}{
		{name: "both", min: 150, max: 350},
		{name: "min only", min: 150, max: math.NaN()},
		{name: "max only", min: math.NaN(), max: 350},
		{name: "neither", min: math.NaN(), max: math.NaN()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := NewThreshold(thresholdSpec(tt.min, tt.max))
			require.NoError(t, err)

			out, err := d.Detect(Window{Start: minuteTS(0), End: minuteTS(len(values))},
				Inputs{RoleCurrent: series(t, values...)}, Observer{})
			require.NoError(t, err)

			got := flagsOf(t, out, timeseries.ColAnomaly)
			for i, v := range values {
				want := (!math.IsNaN(tt.max) && v > tt.max) || (!math.IsNaN(tt.min) && v < tt.min)
				assert.Equalf(t, want, got[i], "value %v", v)
			}
			requireBoundOrder(t, out)
		})
	}
}

func TestThreshold_OnlyWindowRows(t *testing.T) {
	d, err := NewThreshold(thresholdSpec(0, 10))
	require.NoError(t, err)

	out, err := d.Detect(Window{Start: minuteTS(1), End: minuteTS(3)}, Inputs{RoleCurrent: series(t, 50, 5, 50, 50)}, Observer{})
	require.NoError(t, err)
	assert.Equal(t, []int64{minuteTS(1), minuteTS(2)}, out.Timestamps())
	assert.Equal(t, []bool{false, true}, flagsOf(t, out, timeseries.ColAnomaly))
}

func TestThreshold_Errors(t *testing.T) {
	_, err := NewThreshold(thresholdSpec(10, 5))
	assert.ErrorIs(t, err, ErrConfiguration)

	d, err := NewThreshold(thresholdSpec(0, 10))
	require.NoError(t, err)
	_, err = d.Detect(Window{Start: 0, End: 10}, Inputs{}, Observer{})
	var inputErr *InputDataError
	require.ErrorAs(t, err, &inputErr)
	assert.Equal(t, RoleCurrent, inputErr.Role)

	_, err = d.Detect(Window{Start: 10, End: 10}, Inputs{RoleCurrent: series(t, 1)}, Observer{})
	assert.ErrorIs(t, err, ErrInputData)
}
