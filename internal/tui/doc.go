// Package tui provides the terminal user interface for Atomic's run command.
//
// The TUI is read-only. It displays pipeline progress in real time:
//   - Coordinator turns and the current phase
//   - Agent invocations, running and finished
//   - The shared pipeline State as markers are merged
//   - Activity log with progress reports and failures
//
// Usage:
//
//	program, app := tui.NewPipelineProgram("add input validation")
//	go tui.Forward(program, emitter.Events())
//	go program.Run()
//
//	// Signal completion
//	program.Send(tui.DoneMsg{Success: true, Message: "Pipeline completed"})
//
// Users can only quit with 'q' or Ctrl+C.
package tui
