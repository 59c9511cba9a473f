package analytics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRollingWindow(t *testing.T) {
	rw := NewRollingWindow(5)
	mean, std := rw.MeanStdDev()
	assert.True(t, math.IsNaN(mean))
	assert.True(t, math.IsNaN(std))

	for i := 1; i <= 3; i++ {
		rw.Add(float64(i))
	}
	assert.Equal(t, 3, rw.Count())
	assert.False(t, rw.Full())
	assert.Equal(t, []float64{1, 2, 3}, rw.GetValues())

	for i := 4; i <= 7; i++ {
		rw.Add(float64(i))
	}
	assert.True(t, rw.Full())
	assert.Equal(t, []float64{3, 4, 5, 6, 7}, rw.GetValues())

	mean, std = rw.MeanStdDev()
	assert.InDelta(t, 5, mean, 1e-12)
	assert.InDelta(t, math.Sqrt2, std, 1e-12)
}

func TestRollingWindow_MinimumSize(t *testing.T) {
	rw := NewRollingWindow(0)
	rw.Add(3)
	rw.Add(4)
	assert.Equal(t, []float64{4}, rw.GetValues())
}
