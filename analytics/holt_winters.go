package analytics

import (
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"metric-anomaly-engine/timeseries"
)

// SmoothingParameters are the level, trend and seasonal smoothing constants.
type SmoothingParameters struct {
	Alpha float64
	Beta  float64
	Gamma float64
}

// seedParameters start the fit for the first target point of a call.
var seedParameters = SmoothingParameters{Alpha: 0.1, Beta: 0.01, Gamma: 0.001}

// ForecastResult describes the one-step-ahead forecast for a target point.
type ForecastResult struct {
	PredictedValue float64
	SSE            float64
	ErrorBound     float64
}

// HoltWintersDetector forecasts each target point with multiplicative
// triple exponential smoothing trained on its lookback window.
type HoltWintersDetector struct {
	pattern     Pattern
	sensitivity float64
	period      int
	fixed       SmoothingParameters
	lookback    LookbackBuilder
	kernel      int
	optimizer   ParameterOptimizer
}

func NewHoltWinters(spec Spec) (*HoltWintersDetector, error) {
	if err := spec.validateCommon(); err != nil {
		return nil, err
	}
	if spec.Period < 1 {
		return nil, configError("period", "must be positive, got %d", spec.Period)
	}
	for _, c := range []struct {
		field string
		value float64
	}{{"alpha", spec.Alpha}, {"beta", spec.Beta}, {"gamma", spec.Gamma}} {
		if math.IsNaN(c.value) {
			return nil, configError(c.field, "is required (use -1 to fit it)")
		}
		if c.value < 0 {
			continue
		}
		if c.value < paramLower || c.value > paramUpper {
			return nil, configError(c.field, "must be in [%v, %v] or negative to fit it, got %v", paramLower, paramUpper, c.value)
		}
	}

	points, err := spec.lookbackPoints()
	if err != nil {
		return nil, err
	}
	if points < 1 {
		return nil, configError("lookback", "is required")
	}
	lookback, err := newLookbackBuilder(spec, points)
	if err != nil {
		return nil, err
	}

	kernel := 1
	if spec.Smoothing {
		g, ok, err := spec.granularity()
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, configError("monitoringGranularity", "is required when smoothing is enabled")
		}
		kernel = kernelSize(g)
	}

	return &HoltWintersDetector{
		pattern:     spec.Pattern,
		sensitivity: spec.Sensitivity,
		period:      spec.Period,
		fixed:       SmoothingParameters{Alpha: spec.Alpha, Beta: spec.Beta, Gamma: spec.Gamma},
		lookback:    lookback,
		kernel:      kernel,
		optimizer:   newParameterOptimizer(),
	}, nil
}

func (d *HoltWintersDetector) Kind() Kind { return KindHoltWinters }

// Detect forecasts every row of the window. Rows whose training window holds
// fewer than two seasons are left null and logged; they do not fail the call.
func (d *HoltWintersDetector) Detect(window Window, inputs Inputs, obs Observer) (*timeseries.Table, error) {
	obs = obs.withDefaults()
	return observe(d.Kind(), obs, window, func() (*timeseries.Table, error) {
		current, err := inputs.require(RoleCurrent)
		if err != nil {
			return nil, err
		}
		observed := current.Between(window.Start, window.End)

		values := current.Values()
		if d.kernel > 1 {
			values = robustSmooth(values, d.kernel)
		}

		// Warm start: each point seeds the next one within this call only.
		params := d.merge(seedParameters)
		frame := newBaselineFrame(observed.Len())
		skipped := 0
		for row, ts := range observed.Timestamps() {
			training := d.lookback.Build(current, values, ts)
			if len(training) < 2*d.period {
				skipped++
				obs.Logger.Warn("not enough training data for forecast, skipping point",
					zap.Int64("timestamp", ts),
					zap.Int("have", len(training)),
					zap.Int("need", 2*d.period),
				)
				continue
			}

			var result ForecastResult
			result, params = d.forecastPoint(training, params, obs)
			if math.IsNaN(result.PredictedValue) || math.IsInf(result.PredictedValue, 0) {
				skipped++
				obs.Logger.Warn("forecast is not finite, skipping point", zap.Int64("timestamp", ts))
				continue
			}
			frame.baseline[row] = result.PredictedValue
			frame.upper[row] = result.PredictedValue + result.ErrorBound
			frame.lower[row] = result.PredictedValue - result.ErrorBound
			frame.errorBound[row] = result.ErrorBound
		}
		if skipped > 0 {
			obs.Metrics.SkippedPoints(d.Kind(), skipped)
		}

		computed, err := frame.table(observed.Timestamps())
		if err != nil {
			return nil, err
		}
		return assembler{pattern: d.pattern, mode: combineTrend, window: window}.assemble(observed, computed)
	})
}

// forecastPoint fits the free smoothing constants starting from seed and
// returns the forecast together with the constants to seed the next point.
func (d *HoltWintersDetector) forecastPoint(training []float64, seed SmoothingParameters, obs Observer) (ForecastResult, SmoothingParameters) {
	if allZero(training) {
		return ForecastResult{}, seed
	}

	params := seed
	if free := d.freeParameters(seed); len(free) > 0 {
		objective := func(x []float64) float64 {
			return sumSquaredError(training, d.period, d.withFree(x))
		}
		fitted, err := d.optimizer.Minimize(objective, free)
		if err != nil {
			obs.Metrics.OptimizerFallback(d.Kind())
			obs.Logger.Warn("smoothing parameter fit failed, using seed values",
				zap.Float64("alpha", seed.Alpha),
				zap.Float64("beta", seed.Beta),
				zap.Float64("gamma", seed.Gamma),
				zap.Error(err),
			)
		} else {
			params = d.withFree(fitted)
		}
	}

	predicted, fitted := holtWinters(training, d.period, params)
	return ForecastResult{
		PredictedValue: predicted,
		SSE:            squaredError(training, fitted),
		ErrorBound:     forecastErrorBound(training, fitted, d.sensitivity),
	}, params
}

// merge overlays the configured constants onto p.
func (d *HoltWintersDetector) merge(p SmoothingParameters) SmoothingParameters {
	if d.fixed.Alpha >= 0 {
		p.Alpha = d.fixed.Alpha
	}
	if d.fixed.Beta >= 0 {
		p.Beta = d.fixed.Beta
	}
	if d.fixed.Gamma >= 0 {
		p.Gamma = d.fixed.Gamma
	}
	return p
}

// freeParameters returns the unset constants of p in alpha, beta, gamma order.
func (d *HoltWintersDetector) freeParameters(p SmoothingParameters) []float64 {
	var free []float64
	if d.fixed.Alpha < 0 {
		free = append(free, p.Alpha)
	}
	if d.fixed.Beta < 0 {
		free = append(free, p.Beta)
	}
	if d.fixed.Gamma < 0 {
		free = append(free, p.Gamma)
	}
	return free
}

// withFree is the inverse of freeParameters.
func (d *HoltWintersDetector) withFree(x []float64) SmoothingParameters {
	p := d.fixed
	i := 0
	if p.Alpha < 0 {
		p.Alpha = x[i]
		i++
	}
	if p.Beta < 0 {
		p.Beta = x[i]
		i++
	}
	if p.Gamma < 0 {
		p.Gamma = x[i]
	}
	return p
}

// holtWinters runs the multiplicative recurrence over y (len(y) >= 2*period)
// and returns the one-step-ahead prediction and the in-sample forecasts.
func holtWinters(y []float64, period int, p SmoothingParameters) (float64, []float64) {
	n := len(y)
	seasonal := make([]float64, n+period+1)
	copy(seasonal, initialSeasonal(y, period))

	level := y[0]
	trend := initialTrend(y, period)
	fitted := make([]float64, n)

	for i := 0; i < n; i++ {
		s := seasonal[i]
		fitted[i] = (level + trend) * s

		deseasonalized := y[i]
		if s != 0 {
			deseasonalized = y[i] / s
		}
		nextLevel := p.Alpha*deseasonalized + (1-p.Alpha)*(level+trend)
		nextTrend := p.Beta*(nextLevel-level) + (1-p.Beta)*trend

		if i+period <= n {
			if nextLevel == 0 || s == 0 {
				seasonal[i+period] = 1
			} else {
				seasonal[i+period] = p.Gamma*(y[i]/(nextLevel*s)) + (1-p.Gamma)*s
			}
		}
		level, trend = nextLevel, nextTrend
	}
	return (level + trend) * seasonal[n], fitted
}

// initialTrend is the two-season average slope.
func initialTrend(y []float64, period int) float64 {
	sum := 0.0
	for i := 0; i < period; i++ {
		sum += y[period+i] - y[i]
	}
	return sum / float64(period*period)
}

// initialSeasonal averages, per phase, each value's ratio to its season's
// mean. A season with zero mean contributes an index of 1.
func initialSeasonal(y []float64, period int) []float64 {
	seasons := len(y) / period
	means := make([]float64, seasons)
	for s := range means {
		means[s] = stat.Mean(y[s*period:(s+1)*period], nil)
	}

	indices := make([]float64, period)
	for i := range indices {
		sum := 0.0
		for s := 0; s < seasons; s++ {
			if means[s] == 0 {
				sum++
				continue
			}
			sum += y[s*period+i] / means[s]
		}
		indices[i] = sum / float64(seasons)
	}
	return indices
}

func sumSquaredError(y []float64, period int, p SmoothingParameters) float64 {
	_, fitted := holtWinters(y, period, p)
	return squaredError(y, fitted)
}

func squaredError(y, fitted []float64) float64 {
	sum := 0.0
	for i := range y {
		r := y[i] - fitted[i]
		sum += r * r
	}
	return sum
}

// forecastErrorBound scales the spread of in-sample residuals by the
// sensitivity z-score. Points where both forecast and actual are zero are
// left out.
func forecastErrorBound(y, fitted []float64, sensitivity float64) float64 {
	residuals := make([]float64, 0, len(y))
	for i := range y {
		if fitted[i] != 0 || y[i] != 0 {
			residuals = append(residuals, y[i]-fitted[i])
		}
	}
	switch len(residuals) {
	case 0:
		return 0
	case 1:
		return math.Abs(residuals[0]) / 2
	}
	return zScore(sensitivity) * stat.StdDev(residuals, nil)
}

func allZero(values []float64) bool {
	for _, v := range values {
		if v != 0 {
			return false
		}
	}
	return true
}
