package task

import (
	"errors"
	"fmt"

	"github.com/burhanettinuludag/clinicmesh/core"
)

var (
	// ErrNotFound is returned when no record exists for the given id.
	ErrNotFound = errors.New("task record not found")
	// ErrTerminal is returned when a record in a terminal state is mutated.
	ErrTerminal = errors.New("task record already in terminal state")
)

// CheckTransition validates a lifecycle transition.
func CheckTransition(from, to core.TaskStatus) error {
	if from.Terminal() {
		return fmt.Errorf("%w: %s -> %s", ErrTerminal, from, to)
	}
	switch to {
	case core.TaskRunning:
		if from != core.TaskPending {
			return fmt.Errorf("invalid task transition %s -> %s", from, to)
		}
	case core.TaskCompleted, core.TaskFailed, core.TaskCancelled:
	default:
		return fmt.Errorf("invalid task transition %s -> %s", from, to)
	}
	return nil
}
