package models

import (
	"errors"
	"fmt"
	"math"
	"time"

	"metric-anomaly-engine/analytics"
	"metric-anomaly-engine/timeseries"
)

// DetectorConfig is the wire form of a detector configuration. Optional
// values are pointers so that an absent field keeps its default.
type DetectorConfig struct {
	Pattern               string   `json:"pattern,omitempty" mapstructure:"pattern"`
	Sensitivity           *float64 `json:"sensitivity,omitempty" mapstructure:"sensitivity"`
	Lookback              *int     `json:"lookback,omitempty" mapstructure:"lookback"`
	LookbackPeriod        string   `json:"lookbackPeriod,omitempty" mapstructure:"lookback_period"`
	MonitoringGranularity string   `json:"monitoringGranularity,omitempty" mapstructure:"monitoring_granularity"`
	Period                *int     `json:"period,omitempty" mapstructure:"period"`
	Alpha                 *float64 `json:"alpha,omitempty" mapstructure:"alpha"`
	Beta                  *float64 `json:"beta,omitempty" mapstructure:"beta"`
	Gamma                 *float64 `json:"gamma,omitempty" mapstructure:"gamma"`
	Smoothing             *bool    `json:"smoothing,omitempty" mapstructure:"smoothing"`
	Offset                string   `json:"offset,omitempty" mapstructure:"offset"`
	Min                   *float64 `json:"min,omitempty" mapstructure:"min"`
	Max                   *float64 `json:"max,omitempty" mapstructure:"max"`
	AbsoluteChange        *float64 `json:"absoluteChange,omitempty" mapstructure:"absolute_change"`
	PercentageChange      *float64 `json:"percentageChange,omitempty" mapstructure:"percentage_change"`
	WeekStart             string   `json:"weekStart,omitempty" mapstructure:"week_start"`
	Timezone              string   `json:"timezone,omitempty" mapstructure:"timezone"`
}

// Merge returns c with every field set in override replacing its own.
func (c DetectorConfig) Merge(override DetectorConfig) DetectorConfig {
	out := c
	if override.Pattern != "" {
		out.Pattern = override.Pattern
	}
	if override.Sensitivity != nil {
		out.Sensitivity = override.Sensitivity
	}
	if override.Lookback != nil {
		out.Lookback = override.Lookback
	}
	if override.LookbackPeriod != "" {
		out.LookbackPeriod = override.LookbackPeriod
	}
	if override.MonitoringGranularity != "" {
		out.MonitoringGranularity = override.MonitoringGranularity
	}
	if override.Period != nil {
		out.Period = override.Period
	}
	if override.Alpha != nil {
		out.Alpha = override.Alpha
	}
	if override.Beta != nil {
		out.Beta = override.Beta
	}
	if override.Gamma != nil {
		out.Gamma = override.Gamma
	}
	if override.Smoothing != nil {
		out.Smoothing = override.Smoothing
	}
	if override.Offset != "" {
		out.Offset = override.Offset
	}
	if override.Min != nil {
		out.Min = override.Min
	}
	if override.Max != nil {
		out.Max = override.Max
	}
	if override.AbsoluteChange != nil {
		out.AbsoluteChange = override.AbsoluteChange
	}
	if override.PercentageChange != nil {
		out.PercentageChange = override.PercentageChange
	}
	if override.WeekStart != "" {
		out.WeekStart = override.WeekStart
	}
	if override.Timezone != "" {
		out.Timezone = override.Timezone
	}
	return out
}

// ToSpec converts the wire config into a detector spec. Only field syntax is
// checked here; the detector constructors validate the combination.
func (c DetectorConfig) ToSpec() (analytics.Spec, error) {
	spec := analytics.DefaultSpec()
	if c.Pattern != "" {
		p, err := analytics.ParsePattern(c.Pattern)
		if err != nil {
			return spec, err
		}
		spec.Pattern = p
	}
	if c.Sensitivity != nil {
		spec.Sensitivity = *c.Sensitivity
	}
	if c.Lookback != nil {
		spec.Lookback = *c.Lookback
	}
	if c.Period != nil {
		spec.Period = *c.Period
	}
	if c.Alpha != nil {
		spec.Alpha = *c.Alpha
	}
	if c.Beta != nil {
		spec.Beta = *c.Beta
	}
	if c.Gamma != nil {
		spec.Gamma = *c.Gamma
	}
	if c.Min != nil {
		spec.Min = *c.Min
	}
	if c.Max != nil {
		spec.Max = *c.Max
	}
	if c.AbsoluteChange != nil {
		spec.AbsoluteChange = *c.AbsoluteChange
	}
	if c.PercentageChange != nil {
		spec.PercentageChange = *c.PercentageChange
	}
	if c.WeekStart != "" {
		d, err := analytics.ParseWeekday(c.WeekStart)
		if err != nil {
			return spec, err
		}
		spec.WeekStart = d
	}
	if c.Timezone != "" {
		spec.Timezone = c.Timezone
	}
	spec.LookbackPeriod = c.LookbackPeriod
	spec.MonitoringGranularity = c.MonitoringGranularity
	if c.Smoothing != nil {
		spec.Smoothing = *c.Smoothing
	}
	spec.Offset = c.Offset
	return spec, nil
}

// SeriesPayload carries one series as parallel arrays. A null value is
// sent as JSON null.
type SeriesPayload struct {
	Timestamps []int64    `json:"timestamps"`
	Values     []*float64 `json:"values"`
}

// Table converts the payload into a table, sorting by timestamp.
func (s SeriesPayload) Table() (*timeseries.Table, error) {
	values := make([]float64, len(s.Values))
	for i, v := range s.Values {
		if v == nil {
			values[i] = math.NaN()
			continue
		}
		values[i] = *v
	}
	return timeseries.New(s.Timestamps, values)
}

// DetectionRequest is the body of POST /detect and POST /jobs. Config is
// layered over the named preset, if any.
type DetectionRequest struct {
	Type   string                   `json:"type"`
	Preset string                   `json:"preset,omitempty"`
	Config DetectorConfig           `json:"config"`
	Start  string                   `json:"start"`
	End    string                   `json:"end"`
	Inputs map[string]SeriesPayload `json:"inputs"`
}

func (r *DetectionRequest) Validate() error {
	if r.Type == "" {
		return errors.New("type is required")
	}
	if _, err := r.Window(); err != nil {
		return err
	}
	if _, ok := r.Inputs[analytics.RoleCurrent]; !ok {
		return fmt.Errorf("inputs.%s is required", analytics.RoleCurrent)
	}
	for role, series := range r.Inputs {
		if len(series.Timestamps) != len(series.Values) {
			return fmt.Errorf("inputs.%s: %d timestamps but %d values", role, len(series.Timestamps), len(series.Values))
		}
	}
	return nil
}

// Window parses the RFC3339 start and end of the detection window.
func (r *DetectionRequest) Window() (analytics.Window, error) {
	start, err := time.Parse(time.RFC3339, r.Start)
	if err != nil {
		return analytics.Window{}, errors.New("invalid start format, expected RFC3339")
	}
	end, err := time.Parse(time.RFC3339, r.End)
	if err != nil {
		return analytics.Window{}, errors.New("invalid end format, expected RFC3339")
	}
	if !end.After(start) {
		return analytics.Window{}, errors.New("end must be after start")
	}
	return analytics.Window{Start: start.UnixMilli(), End: end.UnixMilli()}, nil
}

// Tables converts every input series.
func (r *DetectionRequest) Tables() (analytics.Inputs, error) {
	inputs := make(analytics.Inputs, len(r.Inputs))
	for role, series := range r.Inputs {
		t, err := series.Table()
		if err != nil {
			return nil, fmt.Errorf("inputs.%s: %w", role, err)
		}
		inputs[role] = t
	}
	return inputs, nil
}

// ResultRow is one row of a detection result.
type ResultRow struct {
	Timestamp      int64    `json:"timestamp"`
	Current        *float64 `json:"current"`
	Baseline       *float64 `json:"baseline"`
	UpperBound     *float64 `json:"upperBound"`
	LowerBound     *float64 `json:"lowerBound"`
	ErrorBound     *float64 `json:"errorBound"`
	Diff           *float64 `json:"diff"`
	PatternMatch   *bool    `json:"patternMatch"`
	BoundViolation *bool    `json:"boundViolation"`
	Anomaly        *bool    `json:"anomaly"`
}

// AnalysisResult is a finished detection run as returned to clients and
// kept in the result cache.
type AnalysisResult struct {
	JobID       string      `json:"job_id"`
	Detector    string      `json:"detector"`
	Status      string      `json:"status"`
	Error       string      `json:"error,omitempty"`
	Anomalies   int         `json:"anomalies"`
	Rows        []ResultRow `json:"rows,omitempty"`
	ProcessedAt time.Time   `json:"processed_at"`
}

const (
	StatusPending = "pending"
	StatusDone    = "done"
	StatusFailed  = "failed"
)

// NewAnalysisResult converts an engine outcome.
func NewAnalysisResult(out analytics.Outcome) AnalysisResult {
	res := AnalysisResult{
		JobID:       out.JobID,
		Detector:    string(out.Kind),
		Status:      StatusDone,
		Anomalies:   out.Anomalies,
		ProcessedAt: out.FinishedAt.UTC(),
	}
	if out.Err != nil {
		res.Status = StatusFailed
		res.Error = out.Err.Error()
		return res
	}
	if out.Result != nil {
		res.Rows = Rows(out.Result)
	}
	return res
}

// Rows flattens a result table. Infinite bounds are reported as null.
func Rows(t *timeseries.Table) []ResultRow {
	col := func(name string) []float64 {
		c, err := t.Floats(name)
		if err != nil {
			return nil
		}
		return c
	}
	flag := func(name string) []timeseries.Bool {
		c, err := t.Bools(name)
		if err != nil {
			return nil
		}
		return c
	}
	current, baseline := col(timeseries.ColCurrent), col(timeseries.ColBaseline)
	upper, lower := col(timeseries.ColUpperBound), col(timeseries.ColLowerBound)
	errBound, diff := col(timeseries.ColErrorBound), col(timeseries.ColDiff)
	pm, bv, anomaly := flag(timeseries.ColPatternMatch), flag(timeseries.ColBoundViolation), flag(timeseries.ColAnomaly)

	rows := make([]ResultRow, t.Len())
	for i := range rows {
		rows[i] = ResultRow{
			Timestamp:      t.Timestamp(i),
			Current:        floatAt(current, i),
			Baseline:       floatAt(baseline, i),
			UpperBound:     floatAt(upper, i),
			LowerBound:     floatAt(lower, i),
			ErrorBound:     floatAt(errBound, i),
			Diff:           floatAt(diff, i),
			PatternMatch:   boolAt(pm, i),
			BoundViolation: boolAt(bv, i),
			Anomaly:        boolAt(anomaly, i),
		}
	}
	return rows
}

func floatAt(col []float64, i int) *float64 {
	if col == nil || math.IsNaN(col[i]) || math.IsInf(col[i], 0) {
		return nil
	}
	v := col[i]
	return &v
}

func boolAt(col []timeseries.Bool, i int) *bool {
	if col == nil || !col[i].Valid() {
		return nil
	}
	v := col[i].IsTrue()
	return &v
}
