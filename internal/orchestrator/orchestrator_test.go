package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/atomic/internal/api"
	"github.com/ShayCichocki/atomic/internal/definition"
	"github.com/ShayCichocki/atomic/internal/marker"
	"github.com/ShayCichocki/atomic/internal/state"
)

const resultPath = "RESULT_PATH"

func unitDoc(purpose string) *fstest.MapFile {
	return &fstest.MapFile{Data: []byte("---\ndescription: test unit\nmodel: haiku\ntools: Read\n---\n## Purpose\n" + purpose + "\n")}
}

func testDefinitions() *definition.Loader {
	return definition.NewLoader(fstest.MapFS{
		"unit-a.md":                unitDoc("first"),
		"unit-b.md":                unitDoc("second"),
		"pipeline-orchestrator.md": unitDoc("coordinate"),
		"broken.md":                {Data: []byte("no front matter")},
	}, "pipeline-orchestrator")
}

func testExtractor() *marker.Extractor {
	return marker.NewExtractor(append(marker.DefaultVocabulary(), resultPath))
}

func newTestOrchestrator(t *testing.T, inv api.Invoker, opts ...Option) *Orchestrator {
	t.Helper()
	base := []Option{WithExtractor(testExtractor()), WithReporter(&bytes.Buffer{})}
	return New(RequiredConfig{
		Definitions: testDefinitions(),
		Invoker:     inv,
		State:       state.New(),
	}, append(base, opts...)...)
}

func reply(text string) api.Invoker {
	return api.InvokerFunc(func(context.Context, *definition.UnitOfWork, string) (string, error) {
		return text, nil
	})
}

func TestRunOne_MergesMarkers(t *testing.T) {
	o := newTestOrchestrator(t, reply("working...\nRESULT_PATH: out/a.json\nUnknown: x"))

	s := o.RunOne(context.Background(), "unit-a", "step 1")

	require.False(t, s.Failed, s.Reason)
	assert.Equal(t, "unit-a", s.Agent)
	assert.Equal(t, "step 1", s.Input)
	assert.Equal(t, map[string]string{resultPath: "out/a.json"}, s.Markers)
	assert.Equal(t, map[string]string{resultPath: "out/a.json"}, o.GetState())
}

func TestRunOne_TruncatesOutput(t *testing.T) {
	o := newTestOrchestrator(t, reply("héllo world"), WithSummaryChars(5))

	s := o.RunOne(context.Background(), "agents/unit-a.md", "")
	require.False(t, s.Failed)
	assert.Equal(t, "héllo", s.Output)
	assert.True(t, s.Truncated)

	o = newTestOrchestrator(t, reply("short"), WithSummaryChars(5))
	s = o.RunOne(context.Background(), "unit-a", "")
	assert.Equal(t, "short", s.Output)
	assert.False(t, s.Truncated)
}

func TestRunOne_UnknownAgent(t *testing.T) {
	var calls atomic.Int32
	o := newTestOrchestrator(t, api.InvokerFunc(func(context.Context, *definition.UnitOfWork, string) (string, error) {
		calls.Add(1)
		return "", nil
	}))

	s := o.RunOne(context.Background(), "nope", "x")
	assert.True(t, s.Failed)
	assert.Equal(t, FailureNotFound, s.Kind)
	assert.Contains(t, s.Reason, `unknown agent "nope"`)
	assert.Contains(t, s.Reason, "available: broken, unit-a, unit-b")

	s = o.RunOne(context.Background(), "  ", "x")
	assert.True(t, s.Failed)
	assert.Equal(t, FailureInvalid, s.Kind)

	s = o.RunOne(context.Background(), "broken", "x")
	assert.True(t, s.Failed)
	assert.Equal(t, FailureParse, s.Kind)

	assert.Zero(t, calls.Load())
}

func TestRunOne_CoordinatorIsNotDispatchable(t *testing.T) {
	var calls atomic.Int32
	o := newTestOrchestrator(t, api.InvokerFunc(func(context.Context, *definition.UnitOfWork, string) (string, error) {
		calls.Add(1)
		return "BRANCH: feature/x", nil
	}))

	for _, identity := range []string{"pipeline-orchestrator", "agents/pipeline-orchestrator.md"} {
		s := o.RunOne(context.Background(), identity, "recurse")
		assert.True(t, s.Failed, identity)
		assert.Equal(t, FailureNotFound, s.Kind)
		assert.Contains(t, s.Reason, `unknown agent "pipeline-orchestrator"`)
	}

	h := o.RunBackground(context.Background(), "pipeline-orchestrator", "recurse")
	require.NotNil(t, h.Rejection)
	assert.Equal(t, FailureNotFound, h.Rejection.Kind)

	batch := o.RunMany(context.Background(), "pipeline-orchestrator.md", []string{"a", "b"})
	for _, s := range batch {
		assert.True(t, s.Failed)
	}

	assert.Zero(t, calls.Load())
	assert.Empty(t, o.GetState())
}

func TestRunOne_InvocationErrorIsData(t *testing.T) {
	o := newTestOrchestrator(t, api.InvokerFunc(func(context.Context, *definition.UnitOfWork, string) (string, error) {
		return "", &api.InvocationError{Kind: api.KindUpstreamRejected, StatusCode: 429, Err: errors.New("quota")}
	}))

	s := o.RunOne(context.Background(), "unit-a", "x")
	assert.True(t, s.Failed)
	assert.Equal(t, FailureKind(api.KindUpstreamRejected), s.Kind)
	assert.Contains(t, s.Reason, "quota")
	assert.Empty(t, o.GetState())
}

func TestRunOne_TimeoutWithUnresponsiveInvoker(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	o := newTestOrchestrator(t, api.InvokerFunc(func(context.Context, *definition.UnitOfWork, string) (string, error) {
		<-release // ignores ctx
		return "RESULT_PATH: late", nil
	}), WithTimeout(50*time.Millisecond))

	start := time.Now()
	s := o.RunOne(context.Background(), "unit-a", "x")

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.True(t, s.Failed)
	assert.Equal(t, FailureKind(api.KindTimeout), s.Kind)
	assert.Empty(t, o.GetState())
}

func TestRunMany_PreservesInputOrder(t *testing.T) {
	// c completes first, then b, then a. Each waits for the previous one, so a
	// sequential implementation would time out instead of finishing.
	cDone, bDone := make(chan struct{}), make(chan struct{})
	var mu sync.Mutex
	var completed []string

	inv := api.InvokerFunc(func(ctx context.Context, _ *definition.UnitOfWork, input string) (string, error) {
		switch input {
		case "a":
			select {
			case <-bDone:
			case <-ctx.Done():
				return "", ctx.Err()
			}
		case "b":
			select {
			case <-cDone:
			case <-ctx.Done():
				return "", ctx.Err()
			}
			defer close(bDone)
		case "c":
			defer close(cDone)
		}
		mu.Lock()
		completed = append(completed, input)
		mu.Unlock()
		return "result " + input, nil
	})
	o := newTestOrchestrator(t, inv, WithTimeout(5*time.Second))

	results := o.RunMany(context.Background(), "unit-a", []string{"a", "b", "c"})

	require.Len(t, results, 3)
	for i, in := range []string{"a", "b", "c"} {
		assert.False(t, results[i].Failed, results[i].Reason)
		assert.Equal(t, in, results[i].Input)
		assert.Equal(t, "result "+in, results[i].Output)
	}
	assert.Equal(t, []string{"c", "b", "a"}, completed)
}

func TestRunMany_PartialFailureIsolation(t *testing.T) {
	inv := api.InvokerFunc(func(ctx context.Context, _ *definition.UnitOfWork, input string) (string, error) {
		if input == "b" {
			<-ctx.Done()
			return "", ctx.Err()
		}
		return "TESTS_FILE: " + input, nil
	})
	o := newTestOrchestrator(t, inv, WithTimeout(100*time.Millisecond))

	results := o.RunMany(context.Background(), "unit-a", []string{"a", "b", "c"})

	require.Len(t, results, 3)
	assert.False(t, results[0].Failed)
	assert.True(t, results[1].Failed)
	assert.Equal(t, FailureKind(api.KindTimeout), results[1].Kind)
	assert.False(t, results[2].Failed)

	ok, bad := Outcomes(results)
	assert.Equal(t, 2, ok)
	assert.Equal(t, 1, bad)

	v, found := o.State().Get(marker.TestsFile)
	require.True(t, found)
	assert.Contains(t, []string{"a", "c"}, v)
}

func TestRunMany_InvalidRequests(t *testing.T) {
	o := newTestOrchestrator(t, reply("ok"))

	results := o.RunMany(context.Background(), "unit-a", nil)
	require.Len(t, results, 1)
	assert.True(t, results[0].Failed)
	assert.Equal(t, FailureInvalid, results[0].Kind)

	results = o.RunMany(context.Background(), "ghost", []string{"x", "y"})
	require.Len(t, results, 2)
	for i, in := range []string{"x", "y"} {
		assert.True(t, results[i].Failed)
		assert.Equal(t, FailureNotFound, results[i].Kind)
		assert.Equal(t, in, results[i].Input)
	}
}

func TestRunMany_BoundedWidth(t *testing.T) {
	var inFlight, peak atomic.Int32
	inv := api.InvokerFunc(func(context.Context, *definition.UnitOfWork, string) (string, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		inFlight.Add(-1)
		return "ok", nil
	})
	o := newTestOrchestrator(t, inv, WithMaxParallel(2))

	inputs := []string{"1", "2", "3", "4", "5", "6"}
	results := o.RunMany(context.Background(), "unit-b", inputs)

	require.Len(t, results, len(inputs))
	for _, r := range results {
		assert.False(t, r.Failed)
	}
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestGetState_NeverObservesTornMerge(t *testing.T) {
	inv := api.InvokerFunc(func(_ context.Context, _ *definition.UnitOfWork, input string) (string, error) {
		time.Sleep(time.Millisecond)
		return fmt.Sprintf("TESTS_FILE: %s\nPLAN_FILE: %s\n", input, input), nil
	})
	o := newTestOrchestrator(t, inv)

	inputs := make([]string, 40)
	for i := range inputs {
		inputs[i] = fmt.Sprintf("v%02d", i)
	}

	batchDone := make(chan struct{})
	pollerDone := make(chan struct{})
	var snapshots, torn atomic.Int32
	go func() {
		defer close(pollerDone)
		for {
			snap := o.GetState()
			snapshots.Add(1)
			if snap[marker.TestsFile] != snap[marker.PlanFile] {
				torn.Add(1)
			}
			select {
			case <-batchDone:
				return
			default:
			}
		}
	}()

	o.RunMany(context.Background(), "unit-a", inputs)
	close(batchDone)
	<-pollerDone

	assert.Positive(t, snapshots.Load())
	assert.Zero(t, torn.Load())
	final := o.GetState()
	assert.Equal(t, final[marker.TestsFile], final[marker.PlanFile])
}

func TestGetState_DoesNotWaitForInFlight(t *testing.T) {
	release := make(chan struct{})
	o := newTestOrchestrator(t, api.InvokerFunc(func(context.Context, *definition.UnitOfWork, string) (string, error) {
		<-release
		return "BRANCH: late", nil
	}))
	o.State().Merge(map[string]string{marker.Branch: "early"})

	h := o.RunBackground(context.Background(), "unit-a", "x")
	require.True(t, h.Dispatched())

	snap := o.GetState()
	assert.Equal(t, map[string]string{marker.Branch: "early"}, snap)

	snap["MUTATED"] = "yes"
	_, found := o.State().Get("MUTATED")
	assert.False(t, found)

	close(release)
	assert.Zero(t, o.WaitBackground(time.Second))
	assert.Equal(t, "late", o.GetState()[marker.Branch])
}

func TestRunOne_IdempotentRemerge(t *testing.T) {
	o := newTestOrchestrator(t, reply("PLAN_FILE: specs/p.md\nBRANCH: feat/x"))

	o.RunOne(context.Background(), "unit-a", "")
	once := o.GetState()
	o.RunOne(context.Background(), "unit-a", "")

	assert.Equal(t, once, o.GetState())
}

func TestRunBackground(t *testing.T) {
	release := make(chan struct{})
	o := newTestOrchestrator(t, api.InvokerFunc(func(context.Context, *definition.UnitOfWork, string) (string, error) {
		<-release
		return "REPORT_FILE: r.md", nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	h := o.RunBackground(ctx, "unit-b", "scan")
	cancel() // the invocation outlives the caller's context

	require.True(t, h.Dispatched())
	assert.Len(t, h.ID, 8)
	assert.Equal(t, "unit-b", h.Agent)
	assert.Equal(t, 1, o.PendingBackground())
	assert.Empty(t, o.GetState())

	close(release)
	assert.Zero(t, o.WaitBackground(time.Second))
	assert.Zero(t, o.PendingBackground())
	assert.Equal(t, "r.md", o.GetState()[marker.ReportFile])

	done := o.BackgroundResults()
	require.Len(t, done, 1)
	assert.False(t, done[0].Failed)
}

func TestRunBackground_Rejected(t *testing.T) {
	o := newTestOrchestrator(t, reply("x"))

	h := o.RunBackground(context.Background(), "ghost", "x")
	assert.False(t, h.Dispatched())
	assert.Empty(t, h.ID)
	assert.Equal(t, FailureNotFound, h.Rejection.Kind)
	assert.Zero(t, o.PendingBackground())
}

func TestWaitBackground_Abandons(t *testing.T) {
	release := make(chan struct{})
	o := newTestOrchestrator(t, api.InvokerFunc(func(context.Context, *definition.UnitOfWork, string) (string, error) {
		<-release
		return "", nil
	}))
	t.Cleanup(func() {
		close(release)
		o.WaitBackground(time.Second)
	})

	o.RunBackground(context.Background(), "unit-a", "1")
	o.RunBackground(context.Background(), "unit-a", "2")

	assert.Equal(t, 2, o.WaitBackground(20*time.Millisecond))
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("closed") }

func TestReportProgress(t *testing.T) {
	var buf bytes.Buffer
	o := newTestOrchestrator(t, reply(""), WithReporter(&buf))

	o.ReportProgress("phase 1 done")
	assert.Contains(t, buf.String(), "phase 1 done")
	assert.Empty(t, o.GetState())

	o = newTestOrchestrator(t, reply(""), WithReporter(failingWriter{}))
	assert.NotPanics(t, func() { o.ReportProgress("ignored") })
}

func TestUpdateProgress(t *testing.T) {
	dir := t.TempDir()
	db, err := state.OpenProject(dir)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.CreateRun(&state.Run{ID: "run-1", Task: "build it", StartedAt: time.Now()}))

	o := newTestOrchestrator(t, reply("BRANCH: feat/x\nPLAN_FILE: specs/p.md"),
		WithProjectDir(dir), WithTask("build it"), WithStore(db, "run-1"))

	o.RunOne(context.Background(), "unit-a", "")
	require.NoError(t, o.UpdateProgress("phase-1", "started", nil))
	require.NoError(t, o.UpdateProgress("phase-1", "Completed", map[string]any{"tests": 3}))

	data, err := os.ReadFile(filepath.Join(dir, ProgressFileName))
	require.NoError(t, err)
	text := string(data)
	assert.True(t, strings.HasPrefix(text, "Pipeline Progress\n"))
	assert.Contains(t, text, "Task: build it")
	assert.Contains(t, text, "Current Phase: phase-1")
	assert.Contains(t, text, "Branch: feat/x")
	assert.Contains(t, text, "  PLAN_FILE: specs/p.md")
	assert.Contains(t, text, "  - phase-1: completed (")

	phases, err := db.Phases("run-1")
	require.NoError(t, err)
	require.Len(t, phases, 2)
	assert.Equal(t, "completed", phases[1].Status)
	assert.EqualValues(t, 3, phases[1].Details["tests"])

	entries, err := db.EntryMap("run-1")
	require.NoError(t, err)
	assert.Equal(t, o.GetState(), entries)

	assert.Error(t, o.UpdateProgress("", "started", nil))
	assert.Error(t, o.UpdateProgress("phase-2", "paused", nil))
	assert.Len(t, o.Phases(), 2)
}

func TestProgressLog_KeepsLastTen(t *testing.T) {
	p := newProgressLog("", "")
	for i := 0; i < 12; i++ {
		p.append(state.Phase{Phase: fmt.Sprintf("p%02d", i), Status: "completed", CreatedAt: time.Now()})
	}

	text := p.render(map[string]string{})
	assert.NotContains(t, text, "p01:")
	assert.Contains(t, text, "p02:")
	assert.Contains(t, text, "p11:")
	assert.Contains(t, text, "Branch: N/A")
	assert.Contains(t, text, "Task: N/A")
}

func TestEvents(t *testing.T) {
	em := NewEventEmitter(16)
	o := newTestOrchestrator(t, reply("BRANCH: b"), WithEmitter(em))

	o.RunOne(context.Background(), "unit-a", "x")
	o.RunOne(context.Background(), "ghost", "x")
	em.Close()
	em.Close()

	var types []EventType
	for e := range em.Events() {
		assert.False(t, e.Timestamp.IsZero())
		types = append(types, e.Type)
	}
	assert.Equal(t, []EventType{
		EventInvocationStarted, EventStateChanged, EventInvocationCompleted, EventInvocationFailed,
	}, types)

	// emitting after close is dropped silently
	assert.NotPanics(t, func() { em.Emit(Event{Type: EventProgress}) })
}

func TestDebugLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger(&buf)
	l.Log("hello %d", 1)
	assert.Regexp(t, `^\[\d\d:\d\d:\d\d\.\d{3}\] hello 1\n$`, buf.String())

	var nilLogger *DebugLogger
	assert.NotPanics(t, func() { nilLogger.Log("x") })
	assert.NoError(t, nilLogger.Close())

	dir := t.TempDir()
	fl, err := NewDebugLoggerForProject(dir)
	require.NoError(t, err)
	fl.Log("to file")
	require.NoError(t, fl.Close())
	data, err := os.ReadFile(DebugLogPath(dir))
	require.NoError(t, err)
	assert.Contains(t, string(data), "to file")
}

func TestDebugLoggerForProject_Unwritable(t *testing.T) {
	dir := t.TempDir()
	// A regular file where the .atomic directory should be.
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".atomic"), []byte("x"), 0644))

	l, err := NewDebugLoggerForProject(dir)
	assert.Error(t, err)
	assert.Nil(t, l)
}
