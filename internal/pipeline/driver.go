// Package pipeline runs the coordinator control loop: each coordinator turn
// is parsed into typed calls, the calls are executed by the orchestrator and
// their results are fed back as the next turn's input, until a turn requests
// nothing more.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"

	"github.com/ShayCichocki/atomic/internal/orchestrator"
	"github.com/ShayCichocki/atomic/internal/state"
)

// Status is the terminal status of a pipeline run.
type Status string

const (
	// StatusCompleted means the coordinator issued a turn without calls.
	StatusCompleted Status = "completed"
	// StatusAborted means the coordinator itself failed or produced an
	// unparseable turn.
	StatusAborted Status = "aborted"
	// StatusBudgetExhausted means the turn or wall-clock budget ran out.
	StatusBudgetExhausted Status = "budget_exhausted"
	// StatusStopped means a kill signal or caller cancellation ended the run.
	StatusStopped Status = "stopped"
)

// AbortCause distinguishes the two ways a run can be aborted; they have
// different remediations.
type AbortCause string

const (
	// AbortUnparseableTurn: the coordinator answered but its calls were malformed.
	AbortUnparseableTurn AbortCause = "unparseable_turn"
	// AbortCoordinatorFailed: the coordinator invocation itself failed.
	AbortCoordinatorFailed AbortCause = "coordinator_failed"
)

const (
	// DefaultMaxTurns caps coordinator invocations per run.
	DefaultMaxTurns = 100
	// DefaultMaxDuration caps the wall-clock time of a run.
	DefaultMaxDuration = 2 * time.Hour
	// DefaultBackgroundGrace is how long Run waits for background work.
	DefaultBackgroundGrace = 30 * time.Second
)

// Outcome is the result of Run.
type Outcome struct {
	RunID  string
	Status Status
	// Turns is the number of coordinator invocations made.
	Turns int
	// Cause is set when Status is StatusAborted.
	Cause  AbortCause
	Reason string
	Err    error
	// State is the final State snapshot, taken after the background drain.
	State map[string]string
	// StopReason is the provider stop reason of the last coordinator turn.
	StopReason string
	// Abandoned counts background invocations still running at exit.
	Abandoned    int
	InputTokens  int64
	OutputTokens int64
	Duration     time.Duration
}

// Signals is polled between turns.
type Signals interface {
	ShouldStop() bool
	ShouldPause() bool
}

// Driver runs one pipeline.
type Driver struct {
	coord Coordinator
	orch  *orchestrator.Orchestrator

	maxTurns    int
	maxDuration time.Duration
	turnTimeout time.Duration
	grace       time.Duration
	pollPause   time.Duration

	store      state.RunStore
	runID      string
	projectDir string

	signals Signals
	logger  *orchestrator.DebugLogger
	emitter *orchestrator.EventEmitter
	out     io.Writer
}

// DriverOption configures a Driver.
type DriverOption func(*Driver)

// WithMaxTurns sets the coordinator turn budget.
func WithMaxTurns(n int) DriverOption {
	return func(d *Driver) { d.maxTurns = n }
}

// WithMaxDuration sets the wall-clock budget.
func WithMaxDuration(dur time.Duration) DriverOption {
	return func(d *Driver) { d.maxDuration = dur }
}

// WithTurnTimeout bounds each coordinator invocation. A turn that times out
// aborts the run as a coordinator failure.
func WithTurnTimeout(dur time.Duration) DriverOption {
	return func(d *Driver) { d.turnTimeout = dur }
}

// WithBackgroundGrace sets how long Run waits for background invocations.
func WithBackgroundGrace(dur time.Duration) DriverOption {
	return func(d *Driver) { d.grace = dur }
}

// WithRunStore records the run under runID.
func WithRunStore(s state.RunStore, runID, projectDir string) DriverOption {
	return func(d *Driver) {
		d.store = s
		d.runID = runID
		d.projectDir = projectDir
	}
}

// WithSignals sets the operator signal source.
func WithSignals(s Signals) DriverOption {
	return func(d *Driver) { d.signals = s }
}

// WithDriverLogger sets the debug logger.
func WithDriverLogger(l *orchestrator.DebugLogger) DriverOption {
	return func(d *Driver) { d.logger = l }
}

// WithDriverEmitter sets the event emitter.
func WithDriverEmitter(e *orchestrator.EventEmitter) DriverOption {
	return func(d *Driver) { d.emitter = e }
}

// WithOutput sets where diagnostics are printed.
func WithOutput(w io.Writer) DriverOption {
	return func(d *Driver) { d.out = w }
}

// NewDriver creates a driver for coord executing calls through orch.
func NewDriver(coord Coordinator, orch *orchestrator.Orchestrator, opts ...DriverOption) *Driver {
	d := &Driver{
		coord:       coord,
		orch:        orch,
		maxTurns:    DefaultMaxTurns,
		maxDuration: DefaultMaxDuration,
		grace:       DefaultBackgroundGrace,
		pollPause:   500 * time.Millisecond,
		out:         os.Stdout,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.maxTurns <= 0 {
		d.maxTurns = DefaultMaxTurns
	}
	if d.logger == nil {
		d.logger = orchestrator.NopLogger()
	}
	return d
}

// Run drives the coordinator until it issues a turn without calls, fails,
// exhausts its budget or is stopped.
func (d *Driver) Run(ctx context.Context, task string) Outcome {
	start := time.Now()
	d.beginRun(task, start)

	runCtx := ctx
	if d.maxDuration > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, d.maxDuration)
		defer cancel()
	}

	out := d.loop(runCtx, ctx, task)

	if n := d.orch.PendingBackground(); n > 0 {
		d.logger.Log("[driver] waiting up to %s for %d background invocation(s)", d.grace, n)
		out.Abandoned = d.orch.WaitBackground(d.grace)
	}
	out.RunID = d.runID
	out.State = d.orch.GetState()
	out.Duration = time.Since(start)

	d.finishRun(out)
	d.report(out)
	return out
}

func (d *Driver) loop(runCtx, parent context.Context, task string) Outcome {
	var out Outcome

	if reason, stopped := d.checkSignals(runCtx); stopped {
		out.Status = StatusStopped
		out.Reason = reason
		return out
	}

	d.logger.Log("[driver] turn 1: starting coordinator")
	turn, err := d.turn(runCtx, func(ctx context.Context) (*Turn, error) {
		return d.coord.Start(ctx, task)
	})
	out.Turns = 1

	for {
		if err != nil {
			return d.coordinatorFailed(out, runCtx, parent, err)
		}
		out.InputTokens += turn.InputTokens
		out.OutputTokens += turn.OutputTokens
		d.progress(out)

		calls, perr := ParseCalls(turn.Calls)
		if perr != nil {
			out.Status = StatusAborted
			out.Cause = AbortUnparseableTurn
			out.Err = perr
			out.Reason = "coordinator produced an unparseable turn: " + perr.Error()
			return out
		}
		d.emitter.Emit(orchestrator.Event{
			Type:    orchestrator.EventCoordinatorTurn,
			Turn:    out.Turns,
			Batch:   len(calls),
			Message: clip(turn.Text, 200),
		})
		d.logger.Log("[driver] turn %d: %d call(s)", out.Turns, len(calls))

		if len(calls) == 0 {
			out.Status = StatusCompleted
			out.StopReason = turn.StopReason
			if truncatedStop(turn.StopReason) {
				out.Reason = fmt.Sprintf("final coordinator turn ended with stop reason %q", turn.StopReason)
			}
			return out
		}

		results := d.execute(runCtx, calls)

		if reason, stopped := d.checkSignals(runCtx); stopped {
			out.Status = StatusStopped
			out.Reason = reason
			return out
		}
		if out.Turns >= d.maxTurns {
			out.Status = StatusBudgetExhausted
			out.Reason = fmt.Sprintf("turn budget of %d exhausted", d.maxTurns)
			return out
		}
		if runCtx.Err() != nil && parent.Err() == nil {
			out.Status = StatusBudgetExhausted
			out.Reason = fmt.Sprintf("time budget of %s exhausted", d.maxDuration)
			return out
		}

		out.Turns++
		turn, err = d.turn(runCtx, func(ctx context.Context) (*Turn, error) {
			return d.coord.Continue(ctx, results)
		})
	}
}

// turn performs one coordinator invocation under the per-turn timeout.
func (d *Driver) turn(ctx context.Context, fn func(context.Context) (*Turn, error)) (*Turn, error) {
	if d.turnTimeout <= 0 {
		return fn(ctx)
	}
	tctx, cancel := context.WithTimeout(ctx, d.turnTimeout)
	defer cancel()
	return fn(tctx)
}

// coordinatorFailed classifies a failed coordinator invocation. Running out
// of wall-clock budget mid-call is a budget outcome and cancellation by the
// caller is a stop, not an abort.
func (d *Driver) coordinatorFailed(out Outcome, runCtx, parent context.Context, err error) Outcome {
	out.Err = err
	if parent.Err() != nil {
		out.Status = StatusStopped
		out.Reason = "interrupted: " + parent.Err().Error()
		return out
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		out.Status = StatusBudgetExhausted
		out.Reason = fmt.Sprintf("time budget of %s exhausted", d.maxDuration)
		return out
	}
	out.Status = StatusAborted
	out.Cause = AbortCoordinatorFailed
	out.Reason = "coordinator invocation failed: " + err.Error()
	return out
}

// checkSignals honours kill and pause files between turns.
func (d *Driver) checkSignals(ctx context.Context) (string, bool) {
	if d.signals == nil {
		return "", false
	}
	if d.signals.ShouldStop() {
		return "stop signal received", true
	}
	if !d.signals.ShouldPause() {
		return "", false
	}

	d.orch.ReportProgress("Pipeline paused; remove the pause signal to resume")
	for d.signals.ShouldPause() {
		if d.signals.ShouldStop() {
			return "stop signal received", true
		}
		select {
		case <-ctx.Done():
			return "", false
		case <-time.After(d.pollPause):
		}
	}
	d.orch.ReportProgress("Pipeline resumed")
	return "", false
}

// execute runs one turn's calls in order. Each call produces exactly one
// result; failures inside calls are reported as result text.
func (d *Driver) execute(ctx context.Context, calls []Call) []Result {
	results := make([]Result, 0, len(calls))
	for _, call := range calls {
		d.logger.Log("[driver] call %s %s", call.CallID(), call.Tool())

		r := Result{CallID: call.CallID()}
		switch c := call.(type) {
		case RunOneCall:
			s := d.orch.RunOne(ctx, c.Agent, c.Input)
			r.Content, r.IsError = formatSummary(s), s.Failed

		case RunManyCall:
			summaries := d.orch.RunMany(ctx, c.Agent, c.Inputs)
			ok, _ := orchestrator.Outcomes(summaries)
			r.Content, r.IsError = formatBatch(summaries), ok == 0

		case RunBackgroundCall:
			h := d.orch.RunBackground(ctx, c.Agent, c.Input)
			r.Content, r.IsError = formatHandle(h), !h.Dispatched()

		case GetStateCall:
			r.Content = formatState(d.orch.GetState())

		case ReportProgressCall:
			d.orch.ReportProgress(c.Message)
			r.Content = "✅ Progress reported"

		case UpdateProgressCall:
			if err := d.orch.UpdateProgress(c.Phase, c.Status, c.Details); err != nil {
				r.Content, r.IsError = "❌ Error: "+err.Error(), true
			} else {
				r.Content = fmt.Sprintf("✅ Progress updated: %s - %s", c.Phase, c.Status)
			}
		}
		results = append(results, r)
	}
	return results
}

func (d *Driver) beginRun(task string, start time.Time) {
	if d.store == nil || d.runID == "" {
		return
	}
	err := d.store.CreateRun(&state.Run{
		ID:         d.runID,
		Task:       task,
		ProjectDir: d.projectDir,
		Status:     state.RunRunning,
		PID:        os.Getpid(),
		StartedAt:  start,
	})
	if err != nil {
		d.logger.Log("[driver] record run: %v", err)
	}
}

func (d *Driver) progress(out Outcome) {
	if d.store == nil || d.runID == "" {
		return
	}
	if err := d.store.UpdateRunProgress(d.runID, out.Turns, out.InputTokens, out.OutputTokens); err != nil {
		d.logger.Log("[driver] record progress: %v", err)
	}
}

func (d *Driver) finishRun(out Outcome) {
	if d.store == nil || d.runID == "" {
		return
	}
	d.progress(out)
	if err := d.store.FinishRun(d.runID, state.RunStatus(out.Status), out.Reason, out.Turns); err != nil {
		d.logger.Log("[driver] finish run: %v", err)
	}
}

// truncatedStop reports whether a stop reason means the response was cut
// short rather than finished by the model.
func truncatedStop(reason string) bool {
	switch reason {
	case "", "end_turn", "stop_sequence", "tool_use":
		return false
	}
	return true
}

// report prints the terminal diagnostic and emits the done event.
func (d *Driver) report(out Outcome) {
	d.logger.Log("[driver] %s after %d turn(s): %s", out.Status, out.Turns, out.Reason)
	d.emitter.Emit(orchestrator.Event{
		Type:     orchestrator.EventPipelineDone,
		Turn:     out.Turns,
		Message:  string(out.Status),
		Error:    out.Err,
		Duration: out.Duration,
	})

	switch out.Status {
	case StatusCompleted:
		color.New(color.FgGreen, color.Bold).Fprintf(d.out, "\n✓ Pipeline completed after %d turn(s)\n", out.Turns)
		if truncatedStop(out.StopReason) {
			color.New(color.FgYellow).Fprintf(d.out, "  ⚠ %s; the final answer may be cut off\n", out.Reason)
		}
	case StatusAborted:
		headline := "coordinator invocation failed"
		if out.Cause == AbortUnparseableTurn {
			headline = "coordinator produced an unparseable turn"
		}
		color.New(color.FgRed, color.Bold).Fprintf(d.out, "\n✗ Pipeline aborted: %s\n", headline)
		fmt.Fprintf(d.out, "  %v\n", out.Err)
	case StatusBudgetExhausted:
		color.New(color.FgYellow, color.Bold).Fprintf(d.out, "\n⚠ Pipeline stopped: %s\n", out.Reason)
	case StatusStopped:
		color.New(color.FgYellow, color.Bold).Fprintf(d.out, "\n⏹ Pipeline stopped by operator\n")
	}
	if out.Abandoned > 0 {
		fmt.Fprintf(d.out, "  %d background invocation(s) abandoned\n", out.Abandoned)
	}
}
