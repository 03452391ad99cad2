package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/lipgloss"
)

// InvocationStatus is the display status of one agent invocation.
type InvocationStatus string

const (
	InvocationRunning InvocationStatus = "running"
	InvocationDone    InvocationStatus = "done"
	InvocationFailed  InvocationStatus = "failed"
)

// Invocation is one row of the invocations panel.
type Invocation struct {
	Agent      string
	Input      string
	Handle     string // set for background invocations
	Status     InvocationStatus
	Markers    int
	Reason     string
	StartedAt  time.Time
	Duration   time.Duration
	Background bool
}

// InvocationsPanel lists agent invocations, newest last, next to the
// current State keys.
type InvocationsPanel struct {
	rows   []*Invocation
	keys   map[string]struct{}
	width  int
	height int

	// background handles announced but not yet started, by agent and input
	pendingBg map[string][]string

	// Styles
	statusRunning lipgloss.Style
	statusDone    lipgloss.Style
	statusFailed  lipgloss.Style
	labelStyle    lipgloss.Style
	valueStyle    lipgloss.Style
	agentStyle    lipgloss.Style
}

// NewInvocationsPanel creates a new InvocationsPanel.
func NewInvocationsPanel() *InvocationsPanel {
	return &InvocationsPanel{
		keys:      make(map[string]struct{}),
		pendingBg: make(map[string][]string),
		width:     80,
		height:    12,

		statusRunning: lipgloss.NewStyle().
			Foreground(lipgloss.Color("34")), // Green

		statusDone: lipgloss.NewStyle().
			Foreground(lipgloss.Color("28")), // Dark green

		statusFailed: lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")), // Red

		labelStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),

		valueStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")),

		agentStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")),
	}
}

// SetSize updates the panel dimensions.
func (p *InvocationsPanel) SetSize(width, height int) {
	p.width = width
	p.height = height
}

// ExpectBackground tags the next invocation of agent with input as the
// background invocation identified by handle.
func (p *InvocationsPanel) ExpectBackground(agent, input, handle string) {
	key := agent + "\x00" + input
	p.pendingBg[key] = append(p.pendingBg[key], handle)
}

// Start adds a running row.
func (p *InvocationsPanel) Start(inv Invocation) {
	inv.Status = InvocationRunning
	key := inv.Agent + "\x00" + inv.Input
	if handles := p.pendingBg[key]; len(handles) > 0 {
		inv.Background, inv.Handle = true, handles[0]
		if len(handles) == 1 {
			delete(p.pendingBg, key)
		} else {
			p.pendingBg[key] = handles[1:]
		}
	}
	p.rows = append(p.rows, &inv)
}

// Finish marks the oldest running row for agent and input as finished. A
// failure without a running row (the agent never dispatched) is added as a
// new row.
func (p *InvocationsPanel) Finish(agent, input string, status InvocationStatus, markers int, reason string, d time.Duration) {
	for _, row := range p.rows {
		if row.Status == InvocationRunning && row.Agent == agent && row.Input == input {
			row.Status = status
			row.Markers = markers
			row.Reason = reason
			row.Duration = d
			return
		}
	}
	p.rows = append(p.rows, &Invocation{
		Agent:    agent,
		Input:    input,
		Status:   status,
		Reason:   reason,
		Duration: d,
	})
}

// AddKeys records State keys reported by a merge.
func (p *InvocationsPanel) AddKeys(keys []string) {
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			p.keys[k] = struct{}{}
		}
	}
}

// Counts tallies rows by status.
func (p *InvocationsPanel) Counts() InvocationCounts {
	var c InvocationCounts
	for _, row := range p.rows {
		switch row.Status {
		case InvocationRunning:
			c.Running++
		case InvocationDone:
			c.Done++
		case InvocationFailed:
			c.Failed++
		}
	}
	return c
}

// Rows returns the rows in display order.
func (p *InvocationsPanel) Rows() []Invocation {
	out := make([]Invocation, len(p.rows))
	for i, row := range p.rows {
		out[i] = *row
	}
	return out
}

// View renders the panel; spin is the spinner frame for running rows.
func (p *InvocationsPanel) View(spin spinner.Model) string {
	var b strings.Builder
	b.WriteString(p.agentStyle.Render("Agents"))
	b.WriteString("\n")

	visible := p.height - 4
	if visible < 1 {
		visible = 1
	}
	rows := p.rows
	if len(rows) > visible {
		rows = rows[len(rows)-visible:]
	}
	if len(rows) == 0 {
		b.WriteString(p.labelStyle.Render("  No agents have run yet"))
		b.WriteString("\n")
	}
	for _, row := range rows {
		b.WriteString(p.renderRow(row, spin))
		b.WriteString("\n")
	}

	b.WriteString(p.labelStyle.Render("State: "))
	if len(p.keys) == 0 {
		b.WriteString(p.labelStyle.Render("empty"))
	} else {
		keys := make([]string, 0, len(p.keys))
		for k := range p.keys {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(p.valueStyle.Render(strings.Join(keys, ", ")))
	}

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Width(p.width - 2).
		Render(b.String())
}

func (p *InvocationsPanel) renderRow(row *Invocation, spin spinner.Model) string {
	var icon string
	var style lipgloss.Style
	switch row.Status {
	case InvocationRunning:
		icon, style = spin.View(), p.statusRunning
	case InvocationDone:
		icon, style = "✓", p.statusDone
	default:
		icon, style = "✗", p.statusFailed
	}

	name := row.Agent
	if row.Background {
		name += " (bg " + row.Handle + ")"
	}
	line := style.Render(icon) + " " + p.agentStyle.Render(name) + " " +
		p.valueStyle.Render(truncate(row.Input, p.width/3))

	switch row.Status {
	case InvocationRunning:
		line += p.labelStyle.Render(" " + formatDuration(time.Since(row.StartedAt).Truncate(time.Second)))
	case InvocationDone:
		line += p.labelStyle.Render(fmt.Sprintf(" %s, %d marker(s)", formatDuration(row.Duration), row.Markers))
	case InvocationFailed:
		line += p.statusFailed.Render(" " + truncate(row.Reason, p.width/3))
	}
	return line
}
