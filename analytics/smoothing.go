package analytics

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// smoothingKernel is the time span covered by the robust pre-filter.
const smoothingKernel = time.Hour

// kernelSize converts the smoothing kernel into an odd number of points.
// Granularities coarser than half the kernel yield 1 (no smoothing).
func kernelSize(g Granularity) int {
	step := g.Approx()
	if step <= 0 {
		return 1
	}
	n := int(smoothingKernel / step)
	if n < 1 {
		return 1
	}
	if n%2 == 0 {
		n++
	}
	return n
}

// robustSmooth replaces each value with the median of the trailing window
// of size points ending at it, so a smoothed value never depends on later
// observations. Nulls are ignored inside a window and kept where the whole
// window is null.
func robustSmooth(values []float64, size int) []float64 {
	out := make([]float64, len(values))
	if size < 3 {
		copy(out, values)
		return out
	}
	buf := make([]float64, 0, size)
	for i := range values {
		lo := i - size + 1
		if lo < 0 {
			lo = 0
		}
		buf = buf[:0]
		for _, v := range values[lo : i+1] {
			if !math.IsNaN(v) {
				buf = append(buf, v)
			}
		}
		if len(buf) == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = median(buf)
	}
	return out
}

// median sorts x in place.
func median(x []float64) float64 {
	sort.Float64s(x)
	n := len(x)
	if n%2 == 1 {
		return x[n/2]
	}
	return (stat.Quantile(0.5, stat.Empirical, x, nil) + x[n/2]) / 2
}
