package analytics

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// RollingWindow keeps the most recent windowSize values in a ring buffer.
type RollingWindow struct {
	windowSize int
	values     []float64
	index      int
	count      int
}

func NewRollingWindow(size int) *RollingWindow {
	if size < 1 {
		size = 1
	}
	return &RollingWindow{
		windowSize: size,
		values:     make([]float64, size),
	}
}

func (rw *RollingWindow) Add(value float64) {
	rw.values[rw.index] = value
	rw.index = (rw.index + 1) % rw.windowSize
	if rw.count < rw.windowSize {
		rw.count++
	}
}

func (rw *RollingWindow) Count() int { return rw.count }

func (rw *RollingWindow) Full() bool { return rw.count == rw.windowSize }

// GetValues returns the buffered values, oldest first.
func (rw *RollingWindow) GetValues() []float64 {
	out := make([]float64, 0, rw.count)
	if rw.count < rw.windowSize {
		return append(out, rw.values[:rw.count]...)
	}
	out = append(out, rw.values[rw.index:]...)
	return append(out, rw.values[:rw.index]...)
}

// MeanStdDev returns the sample mean and population standard deviation.
func (rw *RollingWindow) MeanStdDev() (mean, std float64) {
	if rw.count == 0 {
		return math.NaN(), math.NaN()
	}
	mean, variance := stat.PopMeanVariance(rw.GetValues(), nil)
	return mean, math.Sqrt(variance)
}
