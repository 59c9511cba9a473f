package analytics

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration marks a detector spec that cannot be used.
	ErrConfiguration = errors.New("invalid detector configuration")

	// ErrInputData marks a detection call missing a required input table.
	ErrInputData = errors.New("missing input data")

	// ErrInsufficientData marks a series too short for the configured lookback.
	ErrInsufficientData = errors.New("insufficient data")
)

// ConfigurationError names the offending spec field.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrConfiguration, e.Field, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }

func configError(field, format string, args ...any) error {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// InputDataError names the input role that was not supplied.
type InputDataError struct {
	Role string
}

func (e *InputDataError) Error() string {
	return fmt.Sprintf("%s: no %q table", ErrInputData, e.Role)
}

func (e *InputDataError) Unwrap() error { return ErrInputData }

// InsufficientDataError reports how much history a row had versus needed.
type InsufficientDataError struct {
	Timestamp int64
	Have      int
	Need      int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("%s: timestamp %d has %d preceding points, need %d", ErrInsufficientData, e.Timestamp, e.Have, e.Need)
}

func (e *InsufficientDataError) Unwrap() error { return ErrInsufficientData }
