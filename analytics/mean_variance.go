package analytics

import (
	"math"

	"metric-anomaly-engine/timeseries"
)

// minMeanVarianceLookback is the smallest window that gives a usable spread.
const minMeanVarianceLookback = 5

// MeanVarianceDetector scores each row against the mean and population
// standard deviation of the lookback rows strictly before it.
type MeanVarianceDetector struct {
	pattern  Pattern
	sigma    float64
	lookback int
}

func NewMeanVariance(spec Spec) (*MeanVarianceDetector, error) {
	if err := spec.validateCommon(); err != nil {
		return nil, err
	}
	lookback, err := spec.lookbackPoints()
	if err != nil {
		return nil, err
	}
	if lookback < minMeanVarianceLookback {
		return nil, configError("lookback", "must be at least %d, got %d", minMeanVarianceLookback, lookback)
	}
	return &MeanVarianceDetector{
		pattern:  spec.Pattern,
		sigma:    sigmaMultiplier(spec.Sensitivity),
		lookback: lookback,
	}, nil
}

func (d *MeanVarianceDetector) Kind() Kind { return KindMeanVariance }

// Detect fails with an InsufficientDataError when any row of the window has
// fewer than lookback non-null observations before it.
func (d *MeanVarianceDetector) Detect(window Window, inputs Inputs, obs Observer) (*timeseries.Table, error) {
	obs = obs.withDefaults()
	return observe(d.Kind(), obs, window, func() (*timeseries.Table, error) {
		current, err := inputs.require(RoleCurrent)
		if err != nil {
			return nil, err
		}
		observed := current.Between(window.Start, window.End)
		frame := newBaselineFrame(observed.Len())

		history := NewRollingWindow(d.lookback)
		values := current.Values()
		row := 0
		for i, ts := range current.Timestamps() {
			if ts >= window.End {
				break
			}
			if window.Contains(ts) {
				if !history.Full() {
					return nil, &InsufficientDataError{Timestamp: ts, Have: history.Count(), Need: d.lookback}
				}
				mean, std := history.MeanStdDev()
				band := d.sigma * std
				frame.baseline[row] = mean
				frame.upper[row] = mean + band
				frame.lower[row] = mean - band
				frame.errorBound[row] = band
				row++
			}
			if !math.IsNaN(values[i]) {
				history.Add(values[i])
			}
		}

		computed, err := frame.table(observed.Timestamps())
		if err != nil {
			return nil, err
		}
		return assembler{pattern: d.pattern, mode: combineTrend, window: window}.assemble(observed, computed)
	})
}
