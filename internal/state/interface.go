package state

import (
	"io"
	"time"
)

// RunStore handles run-related persistence operations.
type RunStore interface {
	CreateRun(r *Run) error
	GetRun(id string) (*Run, error)
	LatestRun() (*Run, error)
	ListRuns(limit int) ([]Run, error)
	UpdateRunProgress(id string, turns int, inputTokens, outputTokens int64) error
	FinishRun(id string, status RunStatus, reason string, turns int) error
}

// EntryStore handles persisted marker entries.
type EntryStore interface {
	UpsertEntries(runID string, entries map[string]string, seq uint64) error
	Entries(runID string) ([]Entry, error)
	EntryMap(runID string) (map[string]string, error)
}

// PhaseStore handles the structured progress history.
type PhaseStore interface {
	AppendPhase(p *Phase) error
	Phases(runID string) ([]Phase, error)
}

// Migrator handles database schema migrations.
type Migrator interface {
	// Migrate applies all pending schema migrations.
	Migrate() error
}

// StateStore defines the interface for run persistence.
// The orchestrator and pipeline depend on this rather than the concrete
// SQLite implementation.
type StateStore interface {
	io.Closer
	Migrator
	RunStore
	EntryStore
	PhaseStore
	PurgeOldRuns(olderThan time.Duration) (int64, error)
}

// Compile-time verification that DB implements all interfaces.
var (
	_ StateStore = (*DB)(nil)
	_ Migrator   = (*DB)(nil)
	_ RunStore   = (*DB)(nil)
	_ EntryStore = (*DB)(nil)
	_ PhaseStore = (*DB)(nil)
)
