package state

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"
)

// RunStatus represents the status of a pipeline run.
type RunStatus string

const (
	RunRunning         RunStatus = "running"
	RunCompleted       RunStatus = "completed"
	RunAborted         RunStatus = "aborted"
	RunBudgetExhausted RunStatus = "budget_exhausted"
	RunStopped         RunStatus = "stopped"
)

// Terminal reports whether the status ends a run.
func (s RunStatus) Terminal() bool {
	return s != RunRunning && s != ""
}

// Run represents one pipeline run.
type Run struct {
	ID           string     `json:"id" yaml:"id"`
	Task         string     `json:"task" yaml:"task"`
	ProjectDir   string     `json:"project_dir" yaml:"project_dir"`
	Status       RunStatus  `json:"status" yaml:"status"`
	Turns        int        `json:"turns" yaml:"turns"`
	Reason       string     `json:"reason,omitempty" yaml:"reason,omitempty"`
	PID          int        `json:"pid" yaml:"pid"`
	InputTokens  int64      `json:"input_tokens" yaml:"input_tokens"`
	OutputTokens int64      `json:"output_tokens" yaml:"output_tokens"`
	StartedAt    time.Time  `json:"started_at" yaml:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
}

// Entry is one persisted marker value.
type Entry struct {
	Key       string    `json:"key" yaml:"key"`
	Value     string    `json:"value" yaml:"value"`
	Seq       uint64    `json:"seq" yaml:"seq"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// Phase is one structured progress record reported by the coordinator.
type Phase struct {
	RunID     string         `json:"run_id" yaml:"run_id"`
	Phase     string         `json:"phase" yaml:"phase"`
	Status    string         `json:"status" yaml:"status"`
	Details   map[string]any `json:"details,omitempty" yaml:"details,omitempty"`
	CreatedAt time.Time      `json:"created_at" yaml:"created_at"`
}

// ErrRunNotFound is returned when a run ID does not exist.
var ErrRunNotFound = errors.New("run not found")

const runColumns = `id, task, project_dir, status, turns, reason, pid, input_tokens, output_tokens, started_at, finished_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var r Run
	var startedAt string
	var finishedAt sql.NullString
	if err := row.Scan(&r.ID, &r.Task, &r.ProjectDir, &r.Status, &r.Turns, &r.Reason, &r.PID,
		&r.InputTokens, &r.OutputTokens, &startedAt, &finishedAt); err != nil {
		return nil, err
	}
	r.StartedAt, _ = parseTime(startedAt)
	r.FinishedAt = parseNullableTime(finishedAt)
	return &r, nil
}

// Run CRUD operations

// CreateRun inserts a new run.
func (db *DB) CreateRun(r *Run) error {
	if r.Status == "" {
		r.Status = RunRunning
	}
	_, err := db.Exec(`
		INSERT INTO runs (id, task, project_dir, status, turns, reason, pid, input_tokens, output_tokens, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.Task, r.ProjectDir, string(r.Status), r.Turns, r.Reason, r.PID,
		r.InputTokens, r.OutputTokens, formatTime(r.StartedAt))
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID. It returns ErrRunNotFound if absent.
func (db *DB) GetRun(id string) (*Run, error) {
	r, err := scanRun(db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

// LatestRun returns the most recently started run, or nil if there are none.
func (db *DB) LatestRun() (*Run, error) {
	r, err := scanRun(db.QueryRow(`SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC LIMIT 1`))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest run: %w", err)
	}
	return r, nil
}

// ListRuns lists runs newest first. A limit <= 0 lists all.
func (db *DB) ListRuns(limit int) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// UpdateRunProgress records the turn count and token usage of a live run.
func (db *DB) UpdateRunProgress(id string, turns int, inputTokens, outputTokens int64) error {
	_, err := db.Exec(`
		UPDATE runs SET turns = ?, input_tokens = ?, output_tokens = ? WHERE id = ?
	`, turns, inputTokens, outputTokens, id)
	if err != nil {
		return fmt.Errorf("update run progress: %w", err)
	}
	return nil
}

// FinishRun marks a run terminal.
func (db *DB) FinishRun(id string, status RunStatus, reason string, turns int) error {
	result, err := db.Exec(`
		UPDATE runs SET status = ?, reason = ?, turns = ?, finished_at = ? WHERE id = ?
	`, string(status), reason, turns, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

// Marker entries

// UpsertEntries persists a merged marker mapping. Each row only moves forward:
// a write carrying a lower sequence number than the stored row is ignored, so
// out-of-order persistence of concurrent merges cannot regress a key.
func (db *DB) UpsertEntries(runID string, entries map[string]string, seq uint64) error {
	if len(entries) == 0 {
		return nil
	}

	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	now := formatTime(time.Now())

	return db.Transaction(func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT INTO state_entries (run_id, key, value, seq, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(run_id, key) DO UPDATE SET
				value = excluded.value,
				seq = excluded.seq,
				updated_at = excluded.updated_at
			WHERE excluded.seq >= state_entries.seq
		`)
		if err != nil {
			return fmt.Errorf("prepare upsert: %w", err)
		}
		defer stmt.Close()

		for _, k := range keys {
			if _, err := stmt.Exec(runID, k, entries[k], int64(seq), now); err != nil {
				return fmt.Errorf("upsert entry %s: %w", k, err)
			}
		}
		return nil
	})
}

// Entries returns the persisted entries of a run, sorted by key.
func (db *DB) Entries(runID string) ([]Entry, error) {
	rows, err := db.Query(`
		SELECT key, value, seq, updated_at FROM state_entries WHERE run_id = ? ORDER BY key
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var seq int64
		var updatedAt string
		if err := rows.Scan(&e.Key, &e.Value, &seq, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.Seq = uint64(seq)
		e.UpdatedAt, _ = parseTime(updatedAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

// EntryMap returns the persisted entries of a run as a mapping.
func (db *DB) EntryMap(runID string) (map[string]string, error) {
	entries, err := db.Entries(runID)
	if err != nil {
		return nil, err
	}
	m := make(map[string]string, len(entries))
	for _, e := range entries {
		m[e.Key] = e.Value
	}
	return m, nil
}

// Phases

// AppendPhase records a phase update.
func (db *DB) AppendPhase(p *Phase) error {
	var details sql.NullString
	if len(p.Details) > 0 {
		data, err := json.Marshal(p.Details)
		if err != nil {
			return fmt.Errorf("marshal phase details: %w", err)
		}
		details = sql.NullString{String: string(data), Valid: true}
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}

	_, err := db.Exec(`
		INSERT INTO phases (run_id, phase, status, details, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, p.RunID, p.Phase, p.Status, details, formatTime(p.CreatedAt))
	if err != nil {
		return fmt.Errorf("append phase: %w", err)
	}
	return nil
}

// Phases returns the phase history of a run, oldest first.
func (db *DB) Phases(runID string) ([]Phase, error) {
	rows, err := db.Query(`
		SELECT run_id, phase, status, details, created_at FROM phases WHERE run_id = ? ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list phases: %w", err)
	}
	defer rows.Close()

	var out []Phase
	for rows.Next() {
		var p Phase
		var details sql.NullString
		var createdAt string
		if err := rows.Scan(&p.RunID, &p.Phase, &p.Status, &details, &createdAt); err != nil {
			return nil, fmt.Errorf("scan phase: %w", err)
		}
		if details.Valid && details.String != "" {
			if err := json.Unmarshal([]byte(details.String), &p.Details); err != nil {
				return nil, fmt.Errorf("unmarshal phase details: %w", err)
			}
		}
		p.CreatedAt, _ = parseTime(createdAt)
		out = append(out, p)
	}
	return out, rows.Err()
}
