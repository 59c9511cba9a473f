package analytics

import (
	"fmt"
	"strings"
	"time"

	"metric-anomaly-engine/timeseries"
)

// Kind names a detector algorithm.
type Kind string

const (
	KindThreshold        Kind = "threshold"
	KindAbsoluteChange   Kind = "absolute_change"
	KindPercentageChange Kind = "percentage_change"
	KindMeanVariance     Kind = "mean_variance"
	KindHoltWinters      Kind = "holt_winters"
)

// Kinds lists every supported algorithm.
func Kinds() []Kind {
	return []Kind{KindThreshold, KindAbsoluteChange, KindPercentageChange, KindMeanVariance, KindHoltWinters}
}

func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds() {
		if k == known {
			return k, nil
		}
	}
	return "", configError("type", "unknown detector %q", s)
}

// Detector turns observed tables into an annotated result table with
// columns current, baseline, upperBound, lowerBound, errorBound, diff,
// patternMatch, boundViolation and anomaly.
//
// Detect is synchronous and keeps all mutable state local to the call, so a
// Detector may be reused or shared between goroutines.
type Detector interface {
	Kind() Kind
	Detect(window Window, inputs Inputs, obs Observer) (*timeseries.Table, error)
}

// New validates spec for the given algorithm and returns its detector.
func New(kind Kind, spec Spec) (Detector, error) {
	switch kind {
	case KindThreshold:
		return NewThreshold(spec)
	case KindAbsoluteChange:
		return NewAbsoluteChange(spec)
	case KindPercentageChange:
		return NewPercentageChange(spec)
	case KindMeanVariance:
		return NewMeanVariance(spec)
	case KindHoltWinters:
		return NewHoltWinters(spec)
	}
	return nil, configError("type", "unknown detector %q", kind)
}

// RequiresBaseline reports whether kind consumes a "baseline" input table.
func RequiresBaseline(kind Kind) bool {
	return kind == KindAbsoluteChange || kind == KindPercentageChange
}

// observe times a detection run and reports it to the recorder.
func observe(kind Kind, obs Observer, window Window, detect func() (*timeseries.Table, error)) (*timeseries.Table, error) {
	if !window.Valid() {
		err := fmt.Errorf("%w: empty detection window [%d, %d)", ErrInputData, window.Start, window.End)
		obs.Metrics.ObserveDetection(kind, 0, 0, 0, err)
		return nil, err
	}

	start := time.Now()
	out, err := detect()
	rows, anomalies := 0, 0
	if out != nil {
		rows = out.Len()
		anomalies = CountAnomalies(out)
	}
	obs.Metrics.ObserveDetection(kind, time.Since(start), rows, anomalies, err)
	return out, err
}
