package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/ShayCichocki/atomic/internal/orchestrator"
)

// EventMsg wraps an orchestrator event for the TUI.
type EventMsg struct {
	Event orchestrator.Event
}

// DoneMsg signals that the pipeline reached a terminal status.
type DoneMsg struct {
	Success bool
	Message string
}

// DebugLogMsg is sent to add a debug message to the logs.
type DebugLogMsg struct {
	Message string
}

// Forward converts orchestrator events to TUI messages until events closes.
func Forward(program *tea.Program, events <-chan orchestrator.Event) {
	for event := range events {
		program.Send(EventMsg{Event: event})
	}
}
