package agent

import (
	"errors"
	"fmt"
)

var (
	// ErrDisabled is returned when the agent's feature flag is off or missing.
	ErrDisabled = errors.New("agent disabled")
	// ErrRejected marks a gatekeeper business rejection.
	ErrRejected = errors.New("rejected by gatekeeper")
	// ErrNotFound is returned by Registry.Get for unknown names.
	ErrNotFound = errors.New("agent not found")
	// ErrInvalidOutput marks a technically unusable agent output.
	ErrInvalidOutput = errors.New("invalid agent output")
)

// InputError reports a missing or empty mandatory input field.
type InputError struct {
	Field string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("missing required input field %q", e.Field)
}
