package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/atomic/internal/api"
	"github.com/ShayCichocki/atomic/internal/config"
	"github.com/ShayCichocki/atomic/internal/orchestrator"
	"github.com/ShayCichocki/atomic/internal/pipeline"
	"github.com/ShayCichocki/atomic/internal/state"
)

var (
	runTUI         bool
	runContinue    bool
	runMaxTurns    int
	runMaxDuration time.Duration
)

var runCmd = &cobra.Command{
	Use:   "run [task]",
	Short: "Run a pipeline for a task",
	Long: `Run the coordinator agent on a task.

The coordinator decides which agents to run, in which order and with which
inputs. Agent results flow back through markers merged into the pipeline
State, which is persisted under .atomic/ in the project directory.

Operator signals (checked between coordinator turns):
  touch .atomic/signals/kill    stop the run
  touch .atomic/signals/pause   pause until the file is removed

Use --continue to resume an interrupted pipeline: the continuation agent is
run once with the project directory as input and reads progress.txt.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPipeline,
}

func init() {
	runCmd.Flags().BoolVar(&runTUI, "tui", false, "Show a live terminal UI")
	runCmd.Flags().BoolVar(&runContinue, "continue", false, "Resume an interrupted pipeline with the continuation agent")
	runCmd.Flags().IntVar(&runMaxTurns, "max-turns", 0, "Coordinator turn budget (default from config)")
	runCmd.Flags().DurationVar(&runMaxDuration, "max-duration", 0, "Wall-clock budget (default from config)")
}

func runPipeline(cmd *cobra.Command, args []string) (retErr error) {
	// Recover from panics and report them
	defer func() {
		if r := recover(); r != nil {
			retErr = fmt.Errorf("PANIC in runPipeline: %v", r)
		}
	}()

	if !runContinue && len(args) == 0 {
		return errors.New("a task is required (or use --continue)")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cmd.Flags().Changed("max-turns") {
		cfg.Pipeline.MaxTurns = runMaxTurns
	}
	if cmd.Flags().Changed("max-duration") {
		cfg.Pipeline.MaxDuration = runMaxDuration
	}

	dir, err := resolveProjectDir(projectDir)
	if err != nil {
		return err
	}

	lock, err := pipeline.AcquireLock(dir)
	if err != nil {
		return err
	}
	defer lock.Release()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(os.Stderr, "\nReceived interrupt, shutting down...")
			cancel()
		case <-ctx.Done():
		}
	}()

	if runContinue {
		return runContinuation(ctx, cfg, dir)
	}
	return runTask(ctx, cfg, dir, args[0])
}

func runTask(ctx context.Context, cfg *config.Config, dir, task string) error {
	if err := reportInterrupted(cfg, dir); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: interrupted run check failed: %v\n", err)
	}

	opts := runtimeOptions{task: task}
	if runTUI {
		opts.emitter = orchestrator.NewEventEmitter(256)
		opts.reporter = io.Discard
	}

	rt, err := newRuntime(cfg, dir, opts)
	if err != nil {
		return err
	}
	defer rt.Close()

	signals, err := pipeline.NewSignalWatcher(dir)
	if err != nil {
		return fmt.Errorf("watch signals: %w", err)
	}
	defer signals.Close()
	signals.ClearSignals()

	coord := pipeline.NewToolCoordinator(rt.client, rt.defs, pipeline.ToolCoordinatorConfig{
		Name:       cfg.Pipeline.Coordinator,
		Model:      cfg.Pipeline.CoordinatorModel,
		ProjectDir: dir,
	})

	out := io.Writer(os.Stdout)
	if runTUI {
		out = io.Discard
	} else {
		coord.SetStreamHandler(printStreamEvent)
	}

	driver := pipeline.NewDriver(coord, rt.orch,
		pipeline.WithMaxTurns(cfg.Pipeline.MaxTurns),
		pipeline.WithMaxDuration(cfg.Pipeline.MaxDuration),
		pipeline.WithTurnTimeout(cfg.Timeouts.Coordinator),
		pipeline.WithBackgroundGrace(cfg.Pipeline.BackgroundGrace),
		pipeline.WithRunStore(rt.db, rt.runID, dir),
		pipeline.WithSignals(signals),
		pipeline.WithDriverLogger(rt.logger),
		pipeline.WithDriverEmitter(opts.emitter),
		pipeline.WithOutput(out),
	)

	if runTUI {
		outcome, err := runWithTUI(ctx, driver, opts.emitter, task)
		if err != nil {
			return err
		}
		if n := opts.emitter.DroppedCount(); n > 0 {
			log.Printf("[tui] %d event(s) dropped while the view was busy", n)
		}
		printOutcome(os.Stdout, outcome, rt.tracker)
		return outcomeError(outcome)
	}

	bold := color.New(color.Bold)
	bold.Printf("Starting pipeline: %s\n", task)
	fmt.Printf("  Project: %s\n", dir)
	fmt.Printf("  Run ID:  %s\n", rt.runID)
	fmt.Printf("  Budget:  %d turns, %s\n\n", cfg.Pipeline.MaxTurns, cfg.Pipeline.MaxDuration)

	outcome := driver.Run(ctx, task)
	printOutcome(os.Stdout, outcome, rt.tracker)
	return outcomeError(outcome)
}

// runContinuation resumes from progress.txt, seeding State from the most
// recent interrupted run when there is one.
func runContinuation(ctx context.Context, cfg *config.Config, dir string) error {
	seed, err := loadSeed(cfg, dir)
	if err != nil {
		return err
	}

	rt, err := newRuntime(cfg, dir, runtimeOptions{task: "continue", seed: seed})
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.db.CreateRun(&state.Run{
		ID:         rt.runID,
		Task:       "continue",
		ProjectDir: dir,
		Status:     state.RunRunning,
		PID:        os.Getpid(),
		StartedAt:  time.Now(),
	}); err != nil {
		return fmt.Errorf("record run: %w", err)
	}

	color.New(color.Bold).Printf("Continuing pipeline in %s\n", dir)
	if len(seed) > 0 {
		fmt.Printf("  Restored %d state key(s)\n", len(seed))
	}

	s, err := pipeline.Continue(ctx, rt.orch, dir)
	if err != nil {
		_ = rt.db.FinishRun(rt.runID, state.RunAborted, err.Error(), 0)
		return err
	}

	status, reason := state.RunCompleted, ""
	if s.Failed {
		status, reason = state.RunAborted, s.Reason
	}
	if err := rt.db.FinishRun(rt.runID, status, reason, 0); err != nil {
		log.Printf("[run] finish run: %v", err)
	}

	if s.Failed {
		color.New(color.FgRed, color.Bold).Printf("\n✗ Continuation failed (%s): %s\n", s.Kind, s.Reason)
		return fmt.Errorf("continuation failed: %s", s.Reason)
	}
	color.New(color.FgGreen, color.Bold).Println("\n✓ Continuation complete")
	printState(os.Stdout, rt.orch.GetState())
	return nil
}

// loadSeed returns the State of the newest interrupted run, marking that
// run stopped, or nil if there is none.
func loadSeed(cfg *config.Config, dir string) (map[string]string, error) {
	db, err := openStore(cfg, dir)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rm := state.NewRecoveryManager(db)
	ir, err := rm.CheckForInterrupted()
	if err != nil || ir == nil {
		return nil, err
	}
	if err := rm.Abandon(ir.Run.ID); err != nil {
		return nil, err
	}
	return ir.Entries, nil
}

// reportInterrupted tells the user about a run that died mid-pipeline and
// marks it stopped.
func reportInterrupted(cfg *config.Config, dir string) error {
	db, err := openStore(cfg, dir)
	if err != nil {
		return err
	}
	defer db.Close()

	rm := state.NewRecoveryManager(db)
	ir, err := rm.CheckForInterrupted()
	if err != nil || ir == nil {
		return err
	}

	msg := fmt.Sprintf("Found interrupted run %s (%q, %d turn(s)", shortID(ir.Run.ID), ir.Run.Task, ir.Run.Turns)
	if last := ir.LastPhase(); last != nil {
		msg += fmt.Sprintf(", last phase %s - %s", last.Phase, last.Status)
	}
	color.New(color.FgYellow).Println(msg + "). Use 'atomic run --continue' to resume it.")
	return rm.Abandon(ir.Run.ID)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// printStreamEvent echoes coordinator activity in headless mode.
func printStreamEvent(e api.StreamEvent) {
	switch e.Type {
	case "text":
		color.New(color.FgHiBlack).Println(e.Content)
	case "tool_use":
		color.New(color.FgBlue).Printf("→ %s\n", e.Tool)
	case "error":
		color.New(color.FgRed).Printf("coordinator error: %s\n", e.Content)
	}
}

func printOutcome(w io.Writer, out pipeline.Outcome, tracker *api.TokenTracker) {
	fmt.Fprintf(w, "\nStatus:   %s\n", out.Status)
	fmt.Fprintf(w, "Turns:    %d\n", out.Turns)
	fmt.Fprintf(w, "Duration: %s\n", out.Duration.Round(time.Second))
	if tracker != nil {
		in, outTok := tracker.Total()
		fmt.Fprintf(w, "Tokens:   %d in / %d out (%d calls, ~$%.4f)\n", in, outTok, tracker.Calls(), tracker.Cost())
	}
	printState(w, out.State)
}

func printState(w io.Writer, snapshot map[string]string) {
	if len(snapshot) == 0 {
		fmt.Fprintln(w, "\nFinal State: (empty)")
		return
	}
	keys := make([]string, 0, len(snapshot))
	for k := range snapshot {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Fprintln(w, "\nFinal State:")
	for _, k := range keys {
		fmt.Fprintf(w, "  %s: %s\n", k, snapshot[k])
	}
}

// outcomeError turns a non-completed outcome into the command's error.
func outcomeError(out pipeline.Outcome) error {
	if out.Status == pipeline.StatusCompleted {
		return nil
	}
	if out.Reason != "" {
		return fmt.Errorf("pipeline %s: %s", out.Status, out.Reason)
	}
	return fmt.Errorf("pipeline %s", out.Status)
}
