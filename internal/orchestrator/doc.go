// Package orchestrator executes the operations a coordinator turn can ask for.
//
// An Orchestrator resolves agent definitions, dispatches them through an
// api.Invoker and folds the markers found in each response into the shared
// pipeline State. It supports:
//   - RunOne: a single invocation, awaited
//   - RunMany: one definition over many inputs, bounded by MaxParallel
//   - RunBackground: fire-and-forget, drained by WaitBackground
//   - GetState and ReportProgress for the coordinator's bookkeeping
//
// Failed invocations come back as Summaries, never as errors, so one bad
// sub-task cannot end the pipeline.
//
// Example usage:
//
//	orch := orchestrator.New(orchestrator.RequiredConfig{
//		Definitions: loader,
//		Invoker:     invoker,
//	}, orchestrator.WithMaxParallel(4))
//	summary := orch.RunOne(ctx, "git-setup", "feature/login")
package orchestrator
