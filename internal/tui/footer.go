package tui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// InvocationCounts holds the count of invocations in each status.
type InvocationCounts struct {
	Done    int
	Failed  int
	Running int
}

// Footer renders the status bar and keyboard hints.
type Footer struct {
	message     string
	success     bool
	sessionDone bool
	width       int
	counts      InvocationCounts

	// Styles
	successStyle   lipgloss.Style
	errorStyle     lipgloss.Style
	hintStyle      lipgloss.Style
	separatorStyle lipgloss.Style
}

// NewFooter creates a new Footer instance.
func NewFooter() *Footer {
	return &Footer{
		successStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("28")).
			Bold(true),

		errorStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true),

		hintStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),

		separatorStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("236")),
	}
}

// SetSessionDone marks the pipeline as finished.
func (f *Footer) SetSessionDone(success bool, message string) {
	f.sessionDone = true
	f.success = success
	f.message = message
}

// SetWidth sets the footer width.
func (f *Footer) SetWidth(width int) {
	f.width = width
}

// SetCounts updates the invocation counts for display.
func (f *Footer) SetCounts(counts InvocationCounts) {
	f.counts = counts
}

// View renders the footer.
func (f *Footer) View() string {
	var left string

	if f.counts.Done+f.counts.Failed+f.counts.Running > 0 {
		left = fmt.Sprintf("✓%d", f.counts.Done)
		if f.counts.Failed > 0 {
			left += f.errorStyle.Render(fmt.Sprintf(" ✗%d", f.counts.Failed))
		}
		if f.counts.Running > 0 {
			left += fmt.Sprintf(" ⏳%d", f.counts.Running)
		}
	}

	if f.sessionDone {
		if f.success {
			left = f.successStyle.Render("✓ " + f.message)
		} else {
			left = f.errorStyle.Render("✗ " + f.message)
		}
	}

	right := f.hintStyle.Render("↑/↓ scroll logs │ q quit")
	if f.sessionDone {
		right = f.hintStyle.Render("Press q to exit")
	}

	if left == "" {
		return right
	}
	return left + f.separatorStyle.Render(" │ ") + right
}
