package analytics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"metric-anomaly-engine/timeseries"
)

const (
	testStart  = int64(1_700_000_000_000)
	testMinute = int64(60_000)
)

func minuteTS(i int) int64 { return testStart + int64(i)*testMinute }

func series(t *testing.T, values ...float64) *timeseries.Table {
	t.Helper()
	ts := make([]int64, len(values))
	for i := range values {
		ts[i] = minuteTS(i)
	}
	tbl, err := timeseries.New(ts, values)
	require.NoError(t, err)
	return tbl
}

func floatsOf(t *testing.T, tbl *timeseries.Table, name string) []float64 {
	t.Helper()
	col, err := tbl.Floats(name)
	require.NoError(t, err)
	return col
}

func flagsOf(t *testing.T, tbl *timeseries.Table, name string) []bool {
	t.Helper()
	col, err := tbl.Bools(name)
	require.NoError(t, err)
	out := make([]bool, len(col))
	for i, f := range col {
		out[i] = f.IsTrue()
	}
	return out
}

// requireBoundOrder checks lower <= baseline <= upper wherever both bounds are finite.
func requireBoundOrder(t *testing.T, tbl *timeseries.Table) {
	t.Helper()
	base := floatsOf(t, tbl, timeseries.ColBaseline)
	upper := floatsOf(t, tbl, timeseries.ColUpperBound)
	lower := floatsOf(t, tbl, timeseries.ColLowerBound)
	for i := range base {
		if math.IsNaN(upper[i]) || math.IsNaN(lower[i]) || math.IsInf(upper[i], 0) || math.IsInf(lower[i], 0) {
			continue
		}
		require.LessOrEqualf(t, lower[i], base[i], "row %d", i)
		require.LessOrEqualf(t, base[i], upper[i], "row %d", i)
	}
}
