package state

import (
	"fmt"
	"log"
	"os"
	"syscall"
	"time"
)

// InterruptedRun describes a run left in the running state by a process
// that is no longer alive.
type InterruptedRun struct {
	Run     Run
	Entries map[string]string
	Phases  []Phase
}

// LastPhase returns the most recent phase, or nil.
func (ir *InterruptedRun) LastPhase() *Phase {
	if len(ir.Phases) == 0 {
		return nil
	}
	return &ir.Phases[len(ir.Phases)-1]
}

// RecoveryManager handles detection and recovery of interrupted runs.
type RecoveryManager struct {
	db *DB
}

// NewRecoveryManager creates a new RecoveryManager with the given database.
func NewRecoveryManager(db *DB) *RecoveryManager {
	return &RecoveryManager{db: db}
}

// CheckForInterrupted returns the newest run still marked running whose
// owning process is gone, along with its persisted state. Returns nil if
// there is none.
func (rm *RecoveryManager) CheckForInterrupted() (*InterruptedRun, error) {
	runs, err := rm.db.ListRuns(0)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}

	for _, r := range runs {
		if r.Status != RunRunning {
			continue
		}
		if r.PID > 0 && isProcessAlive(r.PID) {
			continue
		}

		entries, err := rm.db.EntryMap(r.ID)
		if err != nil {
			return nil, err
		}
		phases, err := rm.db.Phases(r.ID)
		if err != nil {
			return nil, err
		}
		return &InterruptedRun{Run: r, Entries: entries, Phases: phases}, nil
	}

	return nil, nil
}

// Abandon marks an interrupted run as stopped so it is no longer reported.
func (rm *RecoveryManager) Abandon(runID string) error {
	r, err := rm.db.GetRun(runID)
	if err != nil {
		return err
	}
	if r.Status.Terminal() {
		return nil
	}
	if err := rm.db.FinishRun(runID, RunStopped, "interrupted", r.Turns); err != nil {
		return err
	}
	log.Printf("[state] marked interrupted run %s as stopped", runID)
	return nil
}

// AbandonStale marks every dead running run older than maxAge as stopped.
// Returns the number of runs updated.
func (rm *RecoveryManager) AbandonStale(maxAge time.Duration) (int, error) {
	runs, err := rm.db.ListRuns(0)
	if err != nil {
		return 0, fmt.Errorf("list runs: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	count := 0
	for _, r := range runs {
		if r.Status != RunRunning || r.StartedAt.After(cutoff) {
			continue
		}
		if r.PID > 0 && isProcessAlive(r.PID) {
			continue
		}
		if err := rm.db.FinishRun(r.ID, RunStopped, "interrupted", r.Turns); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// isProcessAlive checks if a process with the given PID is still running.
func isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// Send signal 0 to check if process exists
	err = process.Signal(syscall.Signal(0))
	return err == nil
}

// IsProcessAlive reports whether pid names a live process.
func IsProcessAlive(pid int) bool {
	return isProcessAlive(pid)
}
