package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// LogLevel represents the severity of a log message.
type LogLevel string

const (
	LogLevelInfo  LogLevel = "INFO"
	LogLevelWarn  LogLevel = "WARN"
	LogLevelError LogLevel = "ERROR"
	LogLevelDebug LogLevel = "DEBUG"
)

// LogEntry represents a single line in the logs panel.
type LogEntry struct {
	Timestamp time.Time
	Level     LogLevel
	Agent     string // Empty means a pipeline-level entry
	Message   string
}

// LogsPanel displays a scrollable log viewer.
type LogsPanel struct {
	logs         []LogEntry
	scrollOffset int
	autoScroll   bool
	width        int
	height       int
	maxLogs      int

	// Styles
	titleStyle   lipgloss.Style
	infoStyle    lipgloss.Style
	warnStyle    lipgloss.Style
	errorStyle   lipgloss.Style
	debugStyle   lipgloss.Style
	timeStyle    lipgloss.Style
	agentStyle   lipgloss.Style
	messageStyle lipgloss.Style
}

// NewLogsPanel creates a new LogsPanel instance.
func NewLogsPanel() *LogsPanel {
	return &LogsPanel{
		autoScroll: true,
		maxLogs:    1000,
		width:      80,
		height:     12,

		titleStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Padding(0, 1),

		infoStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("34")), // Green

		warnStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")), // Orange

		errorStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")), // Red

		debugStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("244")), // Gray

		timeStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),

		agentStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("63")), // Blue

		messageStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")),
	}
}

// AddLog adds a new log entry.
func (p *LogsPanel) AddLog(entry LogEntry) {
	p.logs = append(p.logs, entry)

	// Trim old logs if exceeding max
	if len(p.logs) > p.maxLogs {
		p.logs = p.logs[len(p.logs)-p.maxLogs:]
	}

	if p.autoScroll {
		p.scrollToBottom()
	}
}

// SetSize updates the panel dimensions.
func (p *LogsPanel) SetSize(width, height int) {
	p.width = width
	p.height = height
	if p.autoScroll {
		p.scrollToBottom()
	}
}

// Update handles scrolling keys.
func (p *LogsPanel) Update(msg tea.Msg) (*LogsPanel, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return p, nil
	}
	switch key.String() {
	case "up", "k":
		if p.scrollOffset > 0 {
			p.scrollOffset--
			p.autoScroll = false
		}
	case "down", "j":
		if p.scrollOffset < len(p.logs)-p.visibleLines() {
			p.scrollOffset++
		}
	case "g":
		p.scrollOffset = 0
		p.autoScroll = false
	case "G":
		p.scrollToBottom()
		p.autoScroll = true
	}
	return p, nil
}

// visibleLines returns the number of visible log lines.
func (p *LogsPanel) visibleLines() int {
	lines := p.height - 3 // title and borders
	if lines < 1 {
		lines = 1
	}
	return lines
}

func (p *LogsPanel) scrollToBottom() {
	p.scrollOffset = len(p.logs) - p.visibleLines()
	if p.scrollOffset < 0 {
		p.scrollOffset = 0
	}
}

// View renders the logs panel.
func (p *LogsPanel) View() string {
	var b strings.Builder

	title := "Activity"
	if !p.autoScroll {
		title += " (paused)"
	}
	b.WriteString(p.titleStyle.Render(title))
	b.WriteString("\n")

	if len(p.logs) == 0 {
		b.WriteString(lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true).
			Render("  No activity yet"))
	} else {
		end := p.scrollOffset + p.visibleLines()
		if end > len(p.logs) {
			end = len(p.logs)
		}
		for i := p.scrollOffset; i < end; i++ {
			b.WriteString(p.renderLogLine(p.logs[i]))
			b.WriteString("\n")
		}
	}

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Width(p.width - 2).
		Height(p.height - 2).
		Render(b.String())
}

// renderLogLine renders a single log entry.
func (p *LogsPanel) renderLogLine(entry LogEntry) string {
	parts := []string{p.timeStyle.Render(entry.Timestamp.Format("15:04:05"))}

	levelStyle := p.infoStyle
	levelIcon := "I"
	switch entry.Level {
	case LogLevelWarn:
		levelStyle = p.warnStyle
		levelIcon = "W"
	case LogLevelError:
		levelStyle = p.errorStyle
		levelIcon = "E"
	case LogLevelDebug:
		levelStyle = p.debugStyle
		levelIcon = "D"
	}
	parts = append(parts, levelStyle.Render(levelIcon))

	if entry.Agent != "" {
		parts = append(parts, p.agentStyle.Render("["+truncate(entry.Agent, 16)+"]"))
	}

	maxMsgLen := p.width - 30
	if maxMsgLen < 20 {
		maxMsgLen = 20
	}
	parts = append(parts, p.messageStyle.Render(truncate(entry.Message, maxMsgLen)))

	return strings.Join(parts, " ")
}

// LogCount returns the total number of logs.
func (p *LogsPanel) LogCount() int {
	return len(p.logs)
}

// truncate shortens s to max runes, marking the cut with "...".
func truncate(s string, max int) string {
	if max < 4 {
		max = 4
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
}
