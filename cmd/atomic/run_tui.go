package main

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/ShayCichocki/atomic/internal/orchestrator"
	"github.com/ShayCichocki/atomic/internal/pipeline"
	"github.com/ShayCichocki/atomic/internal/tui"
)

// runWithTUI runs the driver behind the live pipeline view. It returns once
// the user quits the TUI; quitting early cancels the run.
func runWithTUI(ctx context.Context, driver *pipeline.Driver, emitter *orchestrator.EventEmitter, task string) (outcome pipeline.Outcome, retErr error) {
	// Suppress log output while TUI is active (it corrupts the display)
	originalOutput := log.Writer()
	log.SetOutput(io.Discard)
	defer log.SetOutput(originalOutput)

	// Recover from panics
	defer func() {
		if r := recover(); r != nil {
			retErr = fmt.Errorf("PANIC in runWithTUI: %v", r)
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	program, _ := tui.NewPipelineProgram(task)
	go tui.Forward(program, emitter.Events())

	driverDone := make(chan pipeline.Outcome, 1)
	go func() {
		defer emitter.Close()
		driverDone <- driver.Run(ctx, task)
	}()

	tuiDone := make(chan error, 1)
	go func() {
		_, err := program.Run()
		tuiDone <- err
	}()

	select {
	case outcome = <-driverDone:
		program.Send(tui.DoneMsg{
			Success: outcome.Status == pipeline.StatusCompleted,
			Message: fmt.Sprintf("Pipeline %s after %d turn(s)", outcome.Status, outcome.Turns),
		})
		// Wait for user to quit TUI (press q) so they can see the result
		return outcome, <-tuiDone

	case err := <-tuiDone:
		cancel()
		return <-driverDone, err
	}
}
