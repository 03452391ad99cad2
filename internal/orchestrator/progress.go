package orchestrator

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ShayCichocki/atomic/internal/marker"
	"github.com/ShayCichocki/atomic/internal/state"
)

// ProgressFileName is the human-readable progress file in the project root.
const ProgressFileName = "progress.txt"

// phaseHistoryLen is how many phases progress.txt lists.
const phaseHistoryLen = 10

// Phase statuses accepted by UpdateProgress.
const (
	PhaseStarted   = "started"
	PhaseCompleted = "completed"
	PhaseFailed    = "failed"
)

// progressLog keeps the phase history of a run and renders progress.txt.
type progressLog struct {
	path    string
	task    string
	started time.Time

	mu     sync.Mutex
	phases []state.Phase

	writeMu sync.Mutex
}

func newProgressLog(path, task string) *progressLog {
	return &progressLog{path: path, task: task, started: time.Now()}
}

func (p *progressLog) append(ph state.Phase) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.phases = append(p.phases, ph)
}

func (p *progressLog) history() []state.Phase {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]state.Phase, len(p.phases))
	copy(out, p.phases)
	return out
}

// render formats the progress file for the given state snapshot.
func (p *progressLog) render(snapshot map[string]string) string {
	phases := p.history()

	current, updated := "N/A", "N/A"
	if n := len(phases); n > 0 {
		current = phases[n-1].Phase
		updated = phases[n-1].CreatedAt.Format(time.RFC3339)
	}
	task := p.task
	if task == "" {
		task = "N/A"
	}
	branch, ok := snapshot[marker.Branch]
	if !ok {
		branch = "N/A"
	}

	var b strings.Builder
	b.WriteString("Pipeline Progress\n")
	b.WriteString(strings.Repeat("=", 50) + "\n")
	fmt.Fprintf(&b, "Task: %s\n", task)
	fmt.Fprintf(&b, "Started: %s\n", p.started.Format(time.RFC3339))
	fmt.Fprintf(&b, "Last Update: %s\n", updated)
	fmt.Fprintf(&b, "Current Phase: %s\n", current)
	fmt.Fprintf(&b, "Branch: %s\n", branch)
	b.WriteString("\nState:\n")

	keys := make([]string, 0, len(snapshot))
	for k := range snapshot {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "  %s: %s\n", k, snapshot[k])
	}

	fmt.Fprintf(&b, "\nPhase History (last %d):\n", phaseHistoryLen)
	if len(phases) > phaseHistoryLen {
		phases = phases[len(phases)-phaseHistoryLen:]
	}
	for _, ph := range phases {
		fmt.Fprintf(&b, "  - %s: %s (%s)\n", ph.Phase, ph.Status, ph.CreatedAt.Format(time.RFC3339))
	}
	return b.String()
}

// write renders and atomically replaces the progress file.
func (p *progressLog) write(snapshot map[string]string) error {
	if p.path == "" {
		return nil
	}
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	content := p.render(snapshot)

	if err := os.MkdirAll(filepath.Dir(p.path), 0755); err != nil {
		return fmt.Errorf("create progress directory: %w", err)
	}
	tmp := p.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0644); err != nil {
		return fmt.Errorf("write progress file: %w", err)
	}
	if err := os.Rename(tmp, p.path); err != nil {
		return fmt.Errorf("replace progress file: %w", err)
	}
	return nil
}
