package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"metric-anomaly-engine/analytics"
	"metric-anomaly-engine/metrics"
	"metric-anomaly-engine/models"
	"metric-anomaly-engine/timeseries"
)

const maxRequestBytes = 32 << 20

// Engine runs detection jobs.
type Engine interface {
	Submit(job analytics.Job) error
	Detect(ctx context.Context, job analytics.Job) (analytics.Outcome, error)
}

// ResultStore keeps job results for GET /jobs/{id}.
type ResultStore interface {
	MarkPending(ctx context.Context, jobID string, kind analytics.Kind) error
	SaveOutcome(ctx context.Context, outcome analytics.Outcome) error
	GetResult(ctx context.Context, jobID string) (*models.AnalysisResult, error)
}

// PresetLookup resolves a named detector preset.
type PresetLookup func(name string) (models.DetectorConfig, bool)

// errBadRequest marks request body problems.
var errBadRequest = errors.New("bad request")

type DetectionHandler struct {
	engine  Engine
	store   ResultStore
	metrics *metrics.Metrics
	presets PresetLookup
	timeout time.Duration
	logger  *zap.Logger
}

func NewDetectionHandler(engine Engine, store ResultStore, m *metrics.Metrics, presets PresetLookup, timeout time.Duration, logger *zap.Logger) *DetectionHandler {
	if presets == nil {
		presets = func(string) (models.DetectorConfig, bool) { return models.DetectorConfig{}, false }
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DetectionHandler{
		engine:  engine,
		store:   store,
		metrics: m,
		presets: presets,
		timeout: timeout,
		logger:  logger,
	}
}

// Register mounts the detection routes on r.
func (h *DetectionHandler) Register(r *mux.Router) {
	r.Handle("/health", h.instrument("/health", http.HandlerFunc(HealthCheck))).Methods(http.MethodGet)
	r.Handle("/detect", h.instrument("/detect", http.HandlerFunc(h.HandleDetect))).Methods(http.MethodPost)
	r.Handle("/jobs", h.instrument("/jobs", http.HandlerFunc(h.HandleSubmit))).Methods(http.MethodPost)
	r.Handle("/jobs/{id}", h.instrument("/jobs/{id}", http.HandlerFunc(h.HandleGetJob))).Methods(http.MethodGet)
}

// HandleDetect runs a detection synchronously and returns its rows.
func (h *DetectionHandler) HandleDetect(w http.ResponseWriter, r *http.Request) {
	job, err := h.decodeJob(w, r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	job.ID = uuid.NewString()

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	out, err := h.engine.Detect(ctx, job)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.NewAnalysisResult(out))
}

// HandleSubmit queues a detection and returns its job id.
func (h *DetectionHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	job, err := h.decodeJob(w, r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	job.ID = uuid.NewString()

	if err := h.store.MarkPending(r.Context(), job.ID, job.Kind); err != nil {
		h.logger.Error("failed to record pending job", zap.String("job_id", job.ID), zap.Error(err))
		http.Error(w, "failed to record job", http.StatusInternalServerError)
		return
	}
	if err := h.engine.Submit(job); err != nil {
		// The pending record must not outlive a job that was never queued.
		failed := analytics.Outcome{JobID: job.ID, Kind: job.Kind, Err: err, FinishedAt: time.Now()}
		if serr := h.store.SaveOutcome(r.Context(), failed); serr != nil {
			h.logger.Error("failed to record rejected job", zap.String("job_id", job.ID), zap.Error(serr))
		}
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status": models.StatusPending,
		"job_id": job.ID,
	})
}

// HandleGetJob returns the stored result of an asynchronous job.
func (h *DetectionHandler) HandleGetJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := uuid.Parse(id); err != nil {
		http.Error(w, "invalid job id", http.StatusBadRequest)
		return
	}

	result, err := h.store.GetResult(r.Context(), id)
	if err != nil {
		http.Error(w, "Failed to get result: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if result == nil {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *DetectionHandler) decodeJob(w http.ResponseWriter, r *http.Request) (analytics.Job, error) {
	var req models.DetectionRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err := dec.Decode(&req); err != nil {
		return analytics.Job{}, fmt.Errorf("%w: invalid JSON format", errBadRequest)
	}
	if err := req.Validate(); err != nil {
		return analytics.Job{}, fmt.Errorf("%w: %v", errBadRequest, err)
	}

	kind, err := analytics.ParseKind(req.Type)
	if err != nil {
		return analytics.Job{}, err
	}
	cfg := req.Config
	if req.Preset != "" {
		preset, ok := h.presets(req.Preset)
		if !ok {
			return analytics.Job{}, fmt.Errorf("%w: unknown preset %q", errBadRequest, req.Preset)
		}
		cfg = preset.Merge(req.Config)
	}
	spec, err := cfg.ToSpec()
	if err != nil {
		return analytics.Job{}, err
	}
	window, err := req.Window()
	if err != nil {
		return analytics.Job{}, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	inputs, err := req.Tables()
	if err != nil {
		return analytics.Job{}, err
	}
	if analytics.RequiresBaseline(kind) {
		if err := analytics.DeriveBaseline(spec, inputs); err != nil {
			return analytics.Job{}, err
		}
	}
	return analytics.Job{Kind: kind, Spec: spec, Window: window, Inputs: inputs}, nil
}

// statusFor maps engine and detector errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, analytics.ErrConfiguration),
		errors.Is(err, analytics.ErrInputData),
		errors.Is(err, timeseries.ErrDuplicateTimestamp),
		errors.Is(err, timeseries.ErrLengthMismatch):
		return http.StatusBadRequest
	case errors.Is(err, analytics.ErrInsufficientData):
		return http.StatusUnprocessableEntity
	case errors.Is(err, analytics.ErrQueueFull), errors.Is(err, analytics.ErrEngineClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func (h *DetectionHandler) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if errors.Is(err, analytics.ErrQueueFull) && h.metrics != nil {
		h.metrics.JobDropped()
	}
	if status >= http.StatusInternalServerError {
		h.logger.Warn("detection request failed", zap.Int("status", status), zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// instrument records request count and latency per route.
func (h *DetectionHandler) instrument(endpoint string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		if h.metrics != nil {
			h.metrics.ObserveRequest(r.Method, endpoint, rec.status, time.Since(start))
		}
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
