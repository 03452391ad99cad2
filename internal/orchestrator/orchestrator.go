package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"

	"github.com/ShayCichocki/atomic/internal/api"
	"github.com/ShayCichocki/atomic/internal/definition"
	"github.com/ShayCichocki/atomic/internal/marker"
	"github.com/ShayCichocki/atomic/internal/state"
	"github.com/ShayCichocki/atomic/pkg/models"
)

// Orchestrator executes the operations a coordinator may request: single,
// batched and background invocations, State snapshots and progress reports.
//
// Sub-task failures never surface as Go errors. They come back as Summaries
// with Failed set, and the coordinator decides what to do with them.
type Orchestrator struct {
	defs      Definitions
	invoker   api.Invoker
	state     *state.State
	extractor *marker.Extractor

	store      Store
	runID      string
	projectDir string

	maxParallel  int
	summaryChars int
	timeout      time.Duration

	logger   *DebugLogger
	emitter  *EventEmitter
	reporter io.Writer
	progress *progressLog

	// background tracks fire-and-forget invocations
	bgWG      sync.WaitGroup
	bgMu      sync.Mutex
	bgPending map[string]string
	bgDone    []Summary
}

// New creates an Orchestrator with required config and optional settings.
func New(req RequiredConfig, opts ...Option) *Orchestrator {
	o := &orchestratorOptions{
		maxParallel:  DefaultMaxParallel,
		summaryChars: DefaultSummaryChars,
		timeout:      DefaultInvocationTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.maxParallel <= 0 {
		o.maxParallel = DefaultMaxParallel
	}
	if o.timeout <= 0 {
		o.timeout = DefaultInvocationTimeout
	}
	if o.extractor == nil {
		o.extractor = marker.NewExtractor(marker.DefaultVocabulary())
	}
	if o.logger == nil {
		o.logger = NopLogger()
	}
	if o.reporter == nil {
		o.reporter = os.Stdout
	}
	st := req.State
	if st == nil {
		st = state.New()
	}
	progressPath := o.progressFile
	if progressPath == "" && o.projectDir != "" {
		progressPath = filepath.Join(o.projectDir, ProgressFileName)
	}

	return &Orchestrator{
		defs:         req.Definitions,
		invoker:      req.Invoker,
		state:        st,
		extractor:    o.extractor,
		store:        o.store,
		runID:        o.runID,
		projectDir:   o.projectDir,
		maxParallel:  o.maxParallel,
		summaryChars: o.summaryChars,
		timeout:      o.timeout,
		logger:       o.logger,
		emitter:      o.emitter,
		reporter:     o.reporter,
		progress:     newProgressLog(progressPath, o.task),
		bgPending:    make(map[string]string),
	}
}

// State returns the shared State this orchestrator merges into.
func (o *Orchestrator) State() *state.State {
	return o.state
}

// MaxParallel returns the batch concurrency width.
func (o *Orchestrator) MaxParallel() int {
	return o.maxParallel
}

// RunOne invokes identity with input and waits for it. On success the
// output's markers are merged into State before RunOne returns.
func (o *Orchestrator) RunOne(ctx context.Context, identity, input string) Summary {
	unit, rejected := o.resolve(identity, input)
	if rejected != nil {
		o.emitFailure(*rejected)
		return *rejected
	}
	return o.dispatch(ctx, unit, input)
}

// RunMany invokes identity once per input concurrently and returns the
// summaries in input order. Each item succeeds or fails on its own; merges
// happen as items complete, in completion order.
func (o *Orchestrator) RunMany(ctx context.Context, identity string, inputs []string) []Summary {
	if len(inputs) == 0 {
		s := failed(definition.Normalize(identity), "", FailureInvalid, "run_many requires at least one input")
		o.emitFailure(s)
		return []Summary{s}
	}

	unit, rejected := o.resolve(identity, inputs[0])
	if rejected != nil {
		results := make([]Summary, len(inputs))
		for i, in := range inputs {
			s := *rejected
			s.Input = in
			results[i] = s
		}
		o.emitFailure(*rejected)
		return results
	}

	o.logger.Log("[batch] %s: %d inputs, width %d", unit.Name, len(inputs), o.maxParallel)
	o.emitter.Emit(Event{Type: EventBatchStarted, Agent: unit.Name, Batch: len(inputs)})
	start := time.Now()

	results := make([]Summary, len(inputs))
	sem := make(chan struct{}, o.maxParallel)
	var wg sync.WaitGroup

	for i, in := range inputs {
		wg.Add(1)
		go func() {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				err := api.Classify(unit.Name, ctx.Err())
				results[i] = failed(unit.Name, in, FailureKind(err.Kind), err.Error())
				return
			}
			defer func() { <-sem }()

			results[i] = o.dispatch(ctx, unit, in)
		}()
	}
	wg.Wait()

	ok, bad := Outcomes(results)
	o.logger.Log("[batch] %s: %d succeeded, %d failed in %s", unit.Name, ok, bad, time.Since(start).Round(time.Millisecond))
	o.emitter.Emit(Event{
		Type:     EventBatchCompleted,
		Agent:    unit.Name,
		Batch:    len(inputs),
		Message:  fmt.Sprintf("%d/%d succeeded", ok, len(inputs)),
		Duration: time.Since(start),
	})
	return results
}

// Handle identifies a background invocation.
type Handle struct {
	ID    string `json:"id"`
	Agent string `json:"agent"`
	Input string `json:"input"`
	// Rejection is set when the invocation was never dispatched.
	Rejection *Summary `json:"rejection,omitempty"`
}

// Dispatched reports whether the invocation was started.
func (h Handle) Dispatched() bool {
	return h.Rejection == nil
}

// RunBackground starts an invocation without waiting for it. Its markers are
// merged whenever it finishes. The invocation outlives ctx's cancellation but
// not the per-invocation timeout; if the pipeline exits first the merge is
// simply lost.
func (o *Orchestrator) RunBackground(ctx context.Context, identity, input string) Handle {
	unit, rejected := o.resolve(identity, input)
	if rejected != nil {
		o.emitFailure(*rejected)
		return Handle{Agent: rejected.Agent, Input: input, Rejection: rejected}
	}

	id := uuid.New().String()[:8]
	o.bgMu.Lock()
	o.bgPending[id] = unit.Name
	o.bgMu.Unlock()

	o.logger.Log("[background %s] starting %s", id, unit.Name)
	o.emitter.Emit(Event{Type: EventBackgroundStarted, Agent: unit.Name, Handle: id, Input: displayInput(input)})

	bctx := context.WithoutCancel(ctx)
	o.bgWG.Add(1)
	go func() {
		defer o.bgWG.Done()

		s := o.dispatch(bctx, unit, input)

		o.bgMu.Lock()
		delete(o.bgPending, id)
		o.bgDone = append(o.bgDone, s)
		o.bgMu.Unlock()
		o.logger.Log("[background %s] %s finished (failed=%v)", id, unit.Name, s.Failed)
	}()

	return Handle{ID: id, Agent: unit.Name, Input: input}
}

// PendingBackground returns the number of background invocations still running.
func (o *Orchestrator) PendingBackground() int {
	o.bgMu.Lock()
	defer o.bgMu.Unlock()
	return len(o.bgPending)
}

// BackgroundResults returns the summaries of finished background invocations.
func (o *Orchestrator) BackgroundResults() []Summary {
	o.bgMu.Lock()
	defer o.bgMu.Unlock()
	out := make([]Summary, len(o.bgDone))
	copy(out, o.bgDone)
	return out
}

// WaitBackground waits up to grace for background invocations and returns
// how many were still running when it gave up. Those are abandoned.
func (o *Orchestrator) WaitBackground(grace time.Duration) int {
	done := make(chan struct{})
	go func() {
		o.bgWG.Wait()
		close(done)
	}()

	select {
	case <-done:
		return 0
	case <-time.After(grace):
		n := o.PendingBackground()
		o.logger.Log("[background] abandoning %d invocation(s) after %s", n, grace)
		return n
	}
}

// GetState returns a copy of the current State. It never waits on in-flight
// invocations.
func (o *Orchestrator) GetState() map[string]string {
	return o.state.Snapshot()
}

// ReportProgress prints a human-facing message. It never fails.
func (o *Orchestrator) ReportProgress(message string) {
	o.logger.Log("[progress] %s", message)
	o.emitter.Emit(Event{Type: EventProgress, Message: message})

	// Write errors are dropped; reporting must not affect the run.
	_, _ = color.New(color.FgCyan).Fprintf(o.reporter, "📢 %s\n", message)
}

// UpdateProgress records a phase transition, persists it and rewrites the
// progress file.
func (o *Orchestrator) UpdateProgress(phase, status string, details map[string]any) error {
	phase = strings.TrimSpace(phase)
	status = strings.ToLower(strings.TrimSpace(status))
	if phase == "" {
		return errors.New("phase is required")
	}
	switch status {
	case PhaseStarted, PhaseCompleted, PhaseFailed:
	default:
		return fmt.Errorf("invalid status %q (want %s, %s or %s)", status, PhaseStarted, PhaseCompleted, PhaseFailed)
	}

	ph := state.Phase{RunID: o.runID, Phase: phase, Status: status, Details: details, CreatedAt: time.Now()}
	o.progress.append(ph)

	if o.store != nil && o.runID != "" {
		if err := o.store.AppendPhase(&ph); err != nil {
			o.logger.Log("[progress] persist phase %s: %v", phase, err)
		}
	}
	if err := o.progress.write(o.state.Snapshot()); err != nil {
		o.logger.Log("[progress] %v", err)
	}

	o.logger.Log("[phase] %s - %s", phase, status)
	o.emitter.Emit(Event{Type: EventPhaseUpdated, Message: phase + " - " + status})
	_, _ = color.New(color.FgMagenta).Fprintf(o.reporter, "📝 Progress: %s - %s\n", phase, status)
	return nil
}

// Phases returns the phases recorded during this run.
func (o *Orchestrator) Phases() []state.Phase {
	return o.progress.history()
}

// resolve loads identity, turning loader errors into a failed summary.
func (o *Orchestrator) resolve(identity, input string) (*definition.UnitOfWork, *Summary) {
	name := definition.Normalize(identity)
	if strings.TrimSpace(identity) == "" {
		s := failed("", input, FailureInvalid, "agent identity is required")
		return nil, &s
	}

	var unit *definition.UnitOfWork
	err := fmt.Errorf("%w: %s", definition.ErrNotFound, name)
	if o.defs.IsDispatchable(identity) {
		unit, err = o.defs.Load(identity)
	}
	if err == nil {
		return unit, nil
	}

	var s Summary
	switch {
	case errors.Is(err, definition.ErrNotFound):
		reason := fmt.Sprintf("unknown agent %q", name)
		if names, lerr := o.defs.Names(); lerr == nil && len(names) > 0 {
			reason += " (available: " + strings.Join(names, ", ") + ")"
		}
		s = failed(name, input, FailureNotFound, reason)
	case errors.Is(err, definition.ErrParse):
		s = failed(name, input, FailureParse, err.Error())
	default:
		s = failed(name, input, FailureNotFound, err.Error())
	}
	o.logger.Log("[resolve] %s: %s", name, s.Reason)
	return nil, &s
}

type invokeResult struct {
	text string
	err  error
}

// dispatch performs one invocation under the per-invocation timeout, merges
// its markers and builds the summary. State is locked only inside Merge.
func (o *Orchestrator) dispatch(ctx context.Context, unit *definition.UnitOfWork, input string) Summary {
	inv := &models.Invocation{Agent: unit.Name, Input: input, StartedAt: time.Now()}
	o.logger.Log("[invoke] %s <- %q", unit.Name, displayInput(input))
	o.emitter.Emit(Event{Type: EventInvocationStarted, Agent: unit.Name, Input: displayInput(input)})

	ictx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	// An invoker that ignores ctx must not hold up the caller past the timeout.
	ch := make(chan invokeResult, 1)
	go func() {
		text, err := o.invoker.Invoke(ictx, unit, input)
		ch <- invokeResult{text: text, err: err}
	}()

	select {
	case res := <-ch:
		inv.Output, inv.Err = res.text, res.err
	case <-ictx.Done():
		inv.Err = ictx.Err()
	}
	inv.EndedAt = time.Now()

	if !inv.Succeeded() {
		ie := api.Classify(unit.Name, inv.Err)
		s := failed(unit.Name, input, FailureKind(ie.Kind), ie.Error())
		s.Duration = inv.Duration()
		o.logger.Log("[invoke] %s failed after %s: %v", unit.Name, s.Duration.Round(time.Millisecond), ie)
		o.emitFailure(s)
		return s
	}

	markers := o.extractor.Extract(inv.Output)
	o.merge(markers)

	out, truncated := prefix(inv.Output, o.summaryChars)
	s := Summary{
		Agent:     unit.Name,
		Input:     input,
		Output:    out,
		Truncated: truncated,
		Markers:   markers,
		Duration:  inv.Duration(),
	}
	o.logger.Log("[invoke] %s completed in %s, %d marker(s)", unit.Name, s.Duration.Round(time.Millisecond), len(markers))
	o.emitter.Emit(Event{
		Type:     EventInvocationCompleted,
		Agent:    unit.Name,
		Input:    displayInput(input),
		Markers:  len(markers),
		Duration: s.Duration,
	})
	return s
}

// merge folds markers into State and mirrors them to the store. The store
// write happens after the State lock is released; seq keeps the persisted
// rows in merge order.
func (o *Orchestrator) merge(markers map[string]string) {
	seq := o.state.Merge(markers)
	if seq == 0 {
		return
	}
	if o.store != nil && o.runID != "" {
		if err := o.store.UpsertEntries(o.runID, markers, seq); err != nil {
			o.logger.Log("[state] persist seq %d: %v", seq, err)
		}
	}
	keys := make([]string, 0, len(markers))
	for k := range markers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	o.emitter.Emit(Event{Type: EventStateChanged, Markers: len(markers), Message: strings.Join(keys, ", ")})
}

func (o *Orchestrator) emitFailure(s Summary) {
	o.emitter.Emit(Event{
		Type:     EventInvocationFailed,
		Agent:    s.Agent,
		Input:    displayInput(s.Input),
		Message:  s.Reason,
		Duration: s.Duration,
	})
}

func displayInput(input string) string {
	p, cut := prefix(input, 80)
	if cut {
		return p + "..."
	}
	return p
}
