package analytics

import (
	"math"

	"metric-anomaly-engine/timeseries"
)

// ThresholdDetector flags values above Max or below Min. Either bound may be
// unset (NaN), in which case it never fires.
type ThresholdDetector struct {
	min, max float64
}

func NewThreshold(spec Spec) (*ThresholdDetector, error) {
	if !math.IsNaN(spec.Min) && !math.IsNaN(spec.Max) && spec.Min > spec.Max {
		return nil, configError("min", "%v is greater than max %v", spec.Min, spec.Max)
	}
	if math.IsInf(spec.Min, 0) || math.IsInf(spec.Max, 0) {
		return nil, configError("min/max", "must be finite or unset")
	}
	return &ThresholdDetector{min: spec.Min, max: spec.Max}, nil
}

func (d *ThresholdDetector) Kind() Kind { return KindThreshold }

func (d *ThresholdDetector) Detect(window Window, inputs Inputs, obs Observer) (*timeseries.Table, error) {
	obs = obs.withDefaults()
	return observe(d.Kind(), obs, window, func() (*timeseries.Table, error) {
		current, err := inputs.require(RoleCurrent)
		if err != nil {
			return nil, err
		}
		observed := current.Between(window.Start, window.End)

		values := observed.Values()
		frame := newBaselineFrame(observed.Len())
		for i, v := range values {
			frame.baseline[i] = d.clamp(v)
			frame.upper[i] = d.max
			frame.lower[i] = d.min
		}

		computed, err := frame.table(observed.Timestamps())
		if err != nil {
			return nil, err
		}
		return assembler{mode: combineRange, window: window}.assemble(observed, computed)
	})
}

// clamp pulls a value into [min, max] for display; unset bounds do not clip.
func (d *ThresholdDetector) clamp(v float64) float64 {
	if !math.IsNaN(d.max) && v > d.max {
		return d.max
	}
	if !math.IsNaN(d.min) && v < d.min {
		return d.min
	}
	return v
}
