//
//
package telemetry

import (
	"errors"
	"fmt"
)

var (
	// ErrSourceUnavailable indicates the metrics source could not produce a sample.
	ErrSourceUnavailable = errors.New("metrics source unavailable")

	// ErrMalformedSample indicates the source returned a structurally invalid sample.
	ErrMalformedSample = errors.New("malformed metrics sample")

	// ErrInvalidModules indicates an empty or duplicated module list.
	ErrInvalidModules = errors.New("invalid module list")
)

// SourceError wraps a failure of a MetricsSource.
// It matches ErrSourceUnavailable as well as the underlying cause.
type SourceError struct {
	Source string
	Err    error
}

func (e *SourceError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("metrics source: %v", e.Err)
	}
	return fmt.Sprintf("metrics source %s: %v", e.Source, e.Err)
}

func (e *SourceError) Unwrap() []error {
	return []error{ErrSourceUnavailable, e.Err}
}
