package analytics

import (
	"fmt"

	"metric-anomaly-engine/timeseries"
)

// Input roles.
const (
	RoleCurrent  = "current"
	RoleBaseline = "baseline"
)

// Inputs maps a role name to its table.
type Inputs map[string]*timeseries.Table

func (in Inputs) require(role string) (*timeseries.Table, error) {
	t, ok := in[role]
	if !ok || t == nil {
		return nil, &InputDataError{Role: role}
	}
	if t.Values() == nil {
		return nil, fmt.Errorf("%w: %q table has no %q column", ErrInputData, role, timeseries.ColValue)
	}
	return t, nil
}

// Window is the half-open detection interval [Start, End) in epoch millis.
type Window struct {
	Start int64
	End   int64
}

func (w Window) Contains(ts int64) bool {
	return ts >= w.Start && ts < w.End
}

func (w Window) Valid() bool { return w.End > w.Start }
