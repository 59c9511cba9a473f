package analytics

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"

	"metric-anomaly-engine/timeseries"
)

var (
	ErrQueueFull    = errors.New("detection queue is full")
	ErrEngineClosed = errors.New("detection engine is closed")
)

// AnomalyCallback is invoked after a run that flagged at least one row.
type AnomalyCallback func(jobID string, kind Kind, anomalies int)

// ResultStore keeps finished runs for later retrieval.
type ResultStore interface {
	SaveOutcome(ctx context.Context, outcome Outcome) error
}

// Job is one detection request.
type Job struct {
	ID     string
	Kind   Kind
	Spec   Spec
	Window Window
	Inputs Inputs
}

// Outcome is the result of running a Job.
type Outcome struct {
	JobID      string
	Kind       Kind
	Result     *timeseries.Table
	Anomalies  int
	Err        error
	FinishedAt time.Time
}

type EngineConfig struct {
	// Workers <= 0 picks 2×NumCPU clamped to [4, 16].
	Workers      int
	QueueSize    int
	StoreTimeout time.Duration
}

type request struct {
	job   Job
	reply chan Outcome
}

// AnalyticsEngine runs detection jobs on a fixed pool of workers. Every job
// builds its own detector, so workers share nothing but the queue.
type AnalyticsEngine struct {
	store     ResultStore
	obs       Observer
	onAnomaly AnomalyCallback
	timeout   time.Duration

	jobs   chan request
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewAnalyticsEngine(cfg EngineConfig, store ResultStore, obs Observer, onAnomaly AnomalyCallback) *AnalyticsEngine {
	obs = obs.withDefaults()
	queue := cfg.QueueSize
	if queue <= 0 {
		queue = 1000
	}
	timeout := cfg.StoreTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	engine := &AnalyticsEngine{
		store:     store,
		obs:       obs,
		onAnomaly: onAnomaly,
		timeout:   timeout,
		jobs:      make(chan request, queue),
	}

	numWorkers := cfg.Workers
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU() * 2
		if numWorkers < 4 {
			numWorkers = 4
		}
		if numWorkers > 16 {
			numWorkers = 16
		}
	}
	obs.Logger.Info("starting analytics workers", zap.Int("workers", numWorkers), zap.Int("queue", queue))
	for i := 0; i < numWorkers; i++ {
		engine.wg.Add(1)
		go engine.processJobs()
	}

	return engine
}

// Submit queues a job without waiting; the outcome goes to the result store.
func (ae *AnalyticsEngine) Submit(job Job) error {
	return ae.enqueue(request{job: job})
}

// Detect queues a job and waits for its outcome or for ctx to end. The
// computation itself is not interrupted by ctx; its outcome is discarded.
func (ae *AnalyticsEngine) Detect(ctx context.Context, job Job) (Outcome, error) {
	reply := make(chan Outcome, 1)
	if err := ae.enqueue(request{job: job, reply: reply}); err != nil {
		return Outcome{}, err
	}
	select {
	case out := <-reply:
		return out, out.Err
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

func (ae *AnalyticsEngine) enqueue(req request) error {
	ae.mu.RLock()
	defer ae.mu.RUnlock()
	if ae.closed {
		return ErrEngineClosed
	}
	select {
	case ae.jobs <- req:
		return nil
	default:
		ae.obs.Logger.Warn("detection queue is full, dropping job", zap.String("job_id", req.job.ID))
		return ErrQueueFull
	}
}

// Close stops accepting jobs and waits for queued ones to finish.
func (ae *AnalyticsEngine) Close() {
	ae.mu.Lock()
	if !ae.closed {
		ae.closed = true
		close(ae.jobs)
	}
	ae.mu.Unlock()
	ae.wg.Wait()
}

func (ae *AnalyticsEngine) processJobs() {
	defer ae.wg.Done()
	for req := range ae.jobs {
		out := ae.run(req.job)
		ae.save(out)
		if req.reply != nil {
			req.reply <- out
		}
	}
}

func (ae *AnalyticsEngine) run(job Job) Outcome {
	out := Outcome{JobID: job.ID, Kind: job.Kind}
	logger := ae.obs.Logger.With(zap.String("job_id", job.ID), zap.String("detector", string(job.Kind)))

	detector, err := New(job.Kind, job.Spec)
	if err != nil {
		out.Err = err
		out.FinishedAt = time.Now()
		logger.Info("detector configuration rejected", zap.Error(err))
		return out
	}

	obs := Observer{Logger: logger, Metrics: ae.obs.Metrics}
	out.Result, out.Err = detector.Detect(job.Window, job.Inputs, obs)
	out.FinishedAt = time.Now()
	if out.Err != nil {
		logger.Info("detection failed", zap.Error(out.Err))
		return out
	}

	out.Anomalies = CountAnomalies(out.Result)
	if out.Anomalies > 0 {
		logger.Info("anomalies detected", zap.Int("anomalies", out.Anomalies), zap.Int("rows", out.Result.Len()))
		if ae.onAnomaly != nil {
			ae.onAnomaly(job.ID, job.Kind, out.Anomalies)
		}
	}
	return out
}

func (ae *AnalyticsEngine) save(out Outcome) {
	if ae.store == nil || out.JobID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), ae.timeout)
	defer cancel()
	if err := ae.store.SaveOutcome(ctx, out); err != nil {
		ae.obs.Logger.Error("failed to save detection outcome", zap.String("job_id", out.JobID), zap.Error(err))
	}
}
