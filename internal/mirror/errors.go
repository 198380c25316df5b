package mirror

import (
	"fmt"

	"github.com/pkg/errors"
)

// ConfigurationError marks a target whose instrument or account could not be
// resolved. The target stays inactive for the rest of the session.
type ConfigurationError struct {
	Target string
	Err    error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration %s: %v", e.Target, e.Err)
}
func (e *ConfigurationError) Cause() error  { return e.Err }
func (e *ConfigurationError) Unwrap() error { return e.Err }

// SubmissionError marks an order the platform refused. The target's cycle stops.
type SubmissionError struct {
	Target string
	Stage  string
	Err    error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submission %s (%s): %v", e.Target, e.Stage, e.Err)
}
func (e *SubmissionError) Cause() error  { return e.Err }
func (e *SubmissionError) Unwrap() error { return e.Err }

// TransientDataError marks a position or price read that was unavailable.
// The current cycle is skipped.
type TransientDataError struct {
	Target string
	What   string
	Err    error
}

func (e *TransientDataError) Error() string {
	return fmt.Sprintf("transient %s (%s): %v", e.Target, e.What, e.Err)
}
func (e *TransientDataError) Cause() error  { return e.Err }
func (e *TransientDataError) Unwrap() error { return e.Err }

// Classify maps an error to its taxonomy class, used as a metric label.
func Classify(err error) string {
	var (
		cfgErr *ConfigurationError
		subErr *SubmissionError
		trErr  *TransientDataError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &cfgErr):
		return "configuration"
	case errors.As(err, &subErr):
		return "submission"
	case errors.As(err, &trErr):
		return "transient"
	}
	return "internal"
}
