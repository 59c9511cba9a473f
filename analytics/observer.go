package analytics

import (
	"time"

	"go.uber.org/zap"
)

// Recorder receives detection measurements. The prometheus implementation
// lives in the metrics package.
type Recorder interface {
	ObserveDetection(kind Kind, elapsed time.Duration, rows, anomalies int, err error)
	SkippedPoints(kind Kind, n int)
	OptimizerFallback(kind Kind)
}

// Observer is passed into every detection call; detectors hold no logger.
type Observer struct {
	Logger  *zap.Logger
	Metrics Recorder
}

func (o Observer) withDefaults() Observer {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Metrics == nil {
		o.Metrics = nopRecorder{}
	}
	return o
}

type nopRecorder struct{}

func (nopRecorder) ObserveDetection(Kind, time.Duration, int, int, error) {}
func (nopRecorder) SkippedPoints(Kind, int)                              {}
func (nopRecorder) OptimizerFallback(Kind)                               {}
