package orchestrator

import (
	"io"
	"time"

	"github.com/ShayCichocki/atomic/internal/api"
	"github.com/ShayCichocki/atomic/internal/definition"
	"github.com/ShayCichocki/atomic/internal/marker"
	"github.com/ShayCichocki/atomic/internal/state"
)

const (
	// DefaultMaxParallel bounds in-flight invocations of one run_many batch.
	DefaultMaxParallel = 10
	// DefaultSummaryChars is the prefix length returned to the coordinator.
	DefaultSummaryChars = 500
	// DefaultInvocationTimeout applies to every single invocation.
	DefaultInvocationTimeout = 15 * time.Minute
)

// Definitions resolves identities to units of work.
// *definition.Loader satisfies it.
type Definitions interface {
	Load(identity string) (*definition.UnitOfWork, error)
	Names() ([]string, error)
	IsDispatchable(identity string) bool
}

// Store is the persistence an Orchestrator mirrors State and phases into.
type Store interface {
	state.EntryStore
	state.PhaseStore
}

// RequiredConfig contains the minimal required configuration for an Orchestrator.
// All fields are required and have no defaults.
type RequiredConfig struct {
	// Definitions resolves agent identities.
	Definitions Definitions
	// Invoker performs the single LLM call of each invocation.
	Invoker api.Invoker
	// State is the shared marker mapping for this run.
	State *state.State
}

// Option configures an Orchestrator. Use With* functions to create Options.
type Option func(*orchestratorOptions)

// orchestratorOptions holds all optional configuration.
type orchestratorOptions struct {
	maxParallel  int
	summaryChars int
	timeout      time.Duration
	extractor    *marker.Extractor
	store        Store
	runID        string
	projectDir   string
	task         string
	logger       *DebugLogger
	emitter      *EventEmitter
	reporter     io.Writer
	progressFile string
}

// WithMaxParallel sets how many invocations of one batch run at once.
func WithMaxParallel(n int) Option {
	return func(o *orchestratorOptions) { o.maxParallel = n }
}

// WithSummaryChars sets the length of the output prefix kept in summaries.
func WithSummaryChars(n int) Option {
	return func(o *orchestratorOptions) { o.summaryChars = n }
}

// WithTimeout sets the per-invocation timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *orchestratorOptions) { o.timeout = d }
}

// WithExtractor sets the marker extractor (default vocabulary otherwise).
func WithExtractor(e *marker.Extractor) Option {
	return func(o *orchestratorOptions) { o.extractor = e }
}

// WithStore mirrors merges and phases into a persistent store under runID.
func WithStore(s Store, runID string) Option {
	return func(o *orchestratorOptions) {
		o.store = s
		o.runID = runID
	}
}

// WithProjectDir sets the project directory progress.txt is written to.
func WithProjectDir(dir string) Option {
	return func(o *orchestratorOptions) { o.projectDir = dir }
}

// WithTask records the task description shown in progress.txt.
func WithTask(task string) Option {
	return func(o *orchestratorOptions) { o.task = task }
}

// WithLogger sets the debug logger.
func WithLogger(l *DebugLogger) Option {
	return func(o *orchestratorOptions) { o.logger = l }
}

// WithEmitter sets the event emitter used by the TUI.
func WithEmitter(e *EventEmitter) Option {
	return func(o *orchestratorOptions) { o.emitter = e }
}

// WithReporter sets where report_progress messages are printed.
func WithReporter(w io.Writer) Option {
	return func(o *orchestratorOptions) { o.reporter = w }
}

// WithProgressFile overrides the progress file path (default
// <project>/progress.txt).
func WithProgressFile(path string) Option {
	return func(o *orchestratorOptions) { o.progressFile = path }
}
