package orchestrator

import (
	"time"
)

// EventType represents the type of orchestrator event.
type EventType string

const (
	// EventInvocationStarted indicates an agent invocation was dispatched.
	EventInvocationStarted EventType = "invocation_started"
	// EventInvocationCompleted indicates an invocation returned text and its
	// markers were merged.
	EventInvocationCompleted EventType = "invocation_completed"
	// EventInvocationFailed indicates an invocation produced a failed summary.
	EventInvocationFailed EventType = "invocation_failed"
	// EventBatchStarted indicates a run_many fan-out began.
	EventBatchStarted EventType = "batch_started"
	// EventBatchCompleted indicates every item of a run_many batch finished.
	EventBatchCompleted EventType = "batch_completed"
	// EventBackgroundStarted indicates a fire-and-forget invocation began.
	EventBackgroundStarted EventType = "background_started"
	// EventProgress carries a report_progress message.
	EventProgress EventType = "progress"
	// EventPhaseUpdated indicates the coordinator recorded a phase.
	EventPhaseUpdated EventType = "phase_updated"
	// EventStateChanged indicates markers were merged into State.
	EventStateChanged EventType = "state_changed"
	// EventCoordinatorTurn indicates the coordinator produced a turn.
	EventCoordinatorTurn EventType = "coordinator_turn"
	// EventPipelineDone indicates the pipeline reached a terminal status.
	EventPipelineDone EventType = "pipeline_done"
)

// Event represents an event emitted by the orchestrator or the pipeline.
// These events are used to update the TUI and track progress.
type Event struct {
	// Type is the kind of event.
	Type EventType
	// Agent is the definition name, if applicable.
	Agent string
	// Input is a display prefix of the invocation input.
	Input string
	// Handle identifies a background invocation.
	Handle string
	// Message provides additional context about the event.
	Message string
	// Error contains error details for failure events.
	Error error
	// Markers is the number of markers extracted (completion events).
	Markers int
	// Batch is the number of items in a run_many batch.
	Batch int
	// Turn is the coordinator turn number (coordinator and done events).
	Turn int
	// Timestamp is when the event occurred.
	Timestamp time.Time
	// Duration is the elapsed time of the invocation or run.
	Duration time.Duration
}
