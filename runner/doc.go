// Package runner executes pipeline runs asynchronously.
//
// A Runner is an in-process task queue: Submit encodes a Job into its JSON
// message form and enqueues it, a bounded pool of workers (errgroup) picks up
// each message exactly once and hands it to the engine. When the execution
// itself crashes (a panic below RunChain) the message is re-queued at most
// MaxRetries times. Every finished job produces a notification for its
// TriggeredByID, when one is set.
//
//	r := runner.New(eng, func(o *runner.Options) { o.Workers = 4; o.Notifier = n })
//	_ = r.Start(ctx)
//	id, _ := r.Submit(ctx, runner.Job{PipelineName: "publish_article", InputData: core.Data{"topic": "migraine"}})
//	status, _ := r.Wait(ctx, id)
//	_ = r.Shutdown(ctx)
package runner
