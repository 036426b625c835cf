// Package engine implements the pipeline orchestrator.
//
// RunChain resolves a pipeline from the catalog (or an explicit step list),
// creates the parent task record and runs each step in declared order,
// strictly one after another:
//
//   - an unregistered step is recorded as skipped and the run continues
//   - a disabled agent is recorded as skipped; its output never enters the data bag
//   - a successful step merges its output into the data bag
//   - a failed or rejected step merges its partial output plus the
//     __{step}_failed and __{step}_error sentinels; with StopOnFailure every
//     remaining step is skipped
//
// The run succeeds when no step failed. The engine never returns an error
// value: an unknown pipeline name is an unsuccessful Result.
//
// # Callbacks
//
// Callbacks observe step and run lifecycle points (before_step, after_step,
// on_step_failure, after_pipeline). They receive copies of the data bag and
// their errors are logged, never propagated.
//
//	eng := engine.New(registry, func(o *engine.Options) {
//	    o.Tasks = store
//	    o.Callbacks = []engine.Callback{
//	        engine.NewFunctionCallback(engine.CallbackAfterStep, func(ctx context.Context, c *engine.CallbackContext) error {
//	            fmt.Println(c.Step, c.StepResult.Status)
//	            return nil
//	        }),
//	    }
//	})
//	res := eng.RunChain(ctx, engine.Request{Pipeline: "publish_article", Input: core.Data{"topic": "migraine"}})
package engine
