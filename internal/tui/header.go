package tui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// Header renders the title bar: task, turn and current phase.
type Header struct {
	width int
	task  string
	turn  int
	phase string

	titleStyle lipgloss.Style
	labelStyle lipgloss.Style
	valueStyle lipgloss.Style
}

// NewHeader creates a new Header.
func NewHeader(task string) *Header {
	return &Header{
		width: 80,
		task:  task,

		titleStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#4ECDC4")),

		labelStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),

		valueStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")),
	}
}

// SetWidth sets the header width.
func (h *Header) SetWidth(width int) {
	h.width = width
}

// SetTurn records the latest coordinator turn.
func (h *Header) SetTurn(turn int) {
	h.turn = turn
}

// SetPhase records the latest phase update.
func (h *Header) SetPhase(phase string) {
	h.phase = phase
}

// View renders the header.
func (h *Header) View() string {
	phase := h.phase
	if phase == "" {
		phase = "-"
	}
	task := truncate(h.task, h.width-10)

	line1 := h.titleStyle.Render("⚛ ATOMIC") + "  " + h.valueStyle.Render(task)
	line2 := h.labelStyle.Render("Turn: ") + h.valueStyle.Render(fmt.Sprintf("%d", h.turn)) +
		h.labelStyle.Render("   Phase: ") + h.valueStyle.Render(phase)

	return lipgloss.NewStyle().
		Width(h.width).
		PaddingBottom(1).
		Render(lipgloss.JoinVertical(lipgloss.Left, line1, line2))
}

// Height returns the header height in lines.
func (h *Header) Height() int {
	return 3
}
