package engine

import (
	"context"

	"github.com/burhanettinuludag/clinicmesh/core"
)

// CallbackType identifies the lifecycle point a callback observes.
type CallbackType string

const (
	// CallbackBeforeStep runs before a registered agent is invoked.
	CallbackBeforeStep CallbackType = "before_step"
	// CallbackAfterStep runs after every step, including skipped ones.
	CallbackAfterStep CallbackType = "after_step"
	// CallbackOnStepFailure runs after a failed or rejected step.
	CallbackOnStepFailure CallbackType = "on_step_failure"
	// CallbackAfterPipeline runs once the run is finalized.
	CallbackAfterPipeline CallbackType = "after_pipeline"
)

// CallbackContext describes the run at the callback point. Data is a copy;
// changing it does not affect the run.
type CallbackContext struct {
	RunID     string
	Pipeline  string
	Step      string
	StepIndex int
	Data      core.Data
	// StepResult is set after a step, Result for CallbackAfterPipeline.
	StepResult *StepResult
	Result     *Result
}

// Callback observes run lifecycle points. Errors are logged by the engine
// and never change the outcome of a run.
type Callback interface {
	Type() CallbackType
	Execute(ctx context.Context, cbCtx *CallbackContext) error
}

// FunctionCallback adapts a function to Callback.
type FunctionCallback struct {
	callbackType CallbackType
	fn           func(ctx context.Context, cbCtx *CallbackContext) error
}

// NewFunctionCallback creates a FunctionCallback.
func NewFunctionCallback(callbackType CallbackType, fn func(ctx context.Context, cbCtx *CallbackContext) error) *FunctionCallback {
	return &FunctionCallback{callbackType: callbackType, fn: fn}
}

// Type implements Callback.
func (c *FunctionCallback) Type() CallbackType { return c.callbackType }

// Execute implements Callback.
func (c *FunctionCallback) Execute(ctx context.Context, cbCtx *CallbackContext) error {
	return c.fn(ctx, cbCtx)
}

// CallbackManager groups callbacks by type. It is populated before the
// engine starts serving runs.
type CallbackManager struct {
	callbacks map[CallbackType][]Callback
}

// NewCallbackManager creates a manager holding callbacks.
func NewCallbackManager(callbacks ...Callback) *CallbackManager {
	cm := &CallbackManager{callbacks: make(map[CallbackType][]Callback)}
	for _, cb := range callbacks {
		cm.RegisterCallback(cb)
	}
	return cm
}

// RegisterCallback adds a callback. Callbacks of one type run in
// registration order; nil is ignored.
//
// Example:
//
//	cm := NewCallbackManager()
//	cm.RegisterCallback(NewFunctionCallback(CallbackOnStepFailure, alertOnFailure))
func (cm *CallbackManager) RegisterCallback(cb Callback) {
	if cb == nil {
		return
	}
	cm.callbacks[cb.Type()] = append(cm.callbacks[cb.Type()], cb)
}

// ExecuteCallbacks runs every callback of callbackType in registration order
// and returns the errors they produced.
//
// Unlike a middleware chain, an error does not stop the remaining callbacks:
// callbacks only observe a run, so each one is called and the engine logs
// whatever comes back.
//
// Parameters:
//   - ctx: The run's context
//   - callbackType: Which lifecycle point is being reported
//   - cbCtx: Run, step and data at that point
//
// Returns:
//   - []error: One entry per failing callback, nil when all succeeded
func (cm *CallbackManager) ExecuteCallbacks(ctx context.Context, callbackType CallbackType, cbCtx *CallbackContext) []error {
	var errs []error
	for _, cb := range cm.callbacks[callbackType] {
		if err := cb.Execute(ctx, cbCtx); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// Len returns the number of callbacks registered for callbackType.
func (cm *CallbackManager) Len(callbackType CallbackType) int {
	return len(cm.callbacks[callbackType])
}
