package input

import (
	"errors"
	"fmt"
)

// Error taxonomy. Only ErrConfiguration is fatal, and only for the source it
// is reported against; everything else is counted and logged where detected.
var (
	// ErrSourceUnavailable is a transient hardware read failure.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrMalformedFrame is a decode that failed validation.
	ErrMalformedFrame = errors.New("malformed frame")

	// ErrQueueOverflow means the dispatcher dropped stale events.
	ErrQueueOverflow = errors.New("event queue overflow")

	// ErrConfiguration is an invalid timing or threshold value at startup.
	ErrConfiguration = errors.New("configuration error")
)

// SourceError attaches the failing source and operation to an error.
type SourceError struct {
	Source Source
	Op     string
	Err    error
}

func (e *SourceError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Source, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Source, e.Op, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// Unavailable wraps err as a transient read failure of src.
func Unavailable(src Source, op string, err error) error {
	return &SourceError{Source: src, Op: op, Err: fmt.Errorf("%w: %v", ErrSourceUnavailable, err)}
}

// ConfigError reports an invalid setting for src.
func ConfigError(src Source, format string, args ...any) error {
	return &SourceError{Source: src, Op: "config", Err: fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))}
}
