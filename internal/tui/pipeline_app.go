package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ShayCichocki/atomic/internal/orchestrator"
)

// PipelineApp is the bubbletea model for a pipeline run.
type PipelineApp struct {
	header      *Header
	invocations *InvocationsPanel
	logs        *LogsPanel
	footer      *Footer
	spinner     spinner.Model

	width    int
	height   int
	done     bool
	quitting bool
}

// NewPipelineApp creates the model for a run of task.
func NewPipelineApp(task string) *PipelineApp {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("34"))

	return &PipelineApp{
		header:      NewHeader(task),
		invocations: NewInvocationsPanel(),
		logs:        NewLogsPanel(),
		footer:      NewFooter(),
		spinner:     s,
		width:       80,
		height:      30,
	}
}

// NewPipelineProgram creates a program with the alt screen enabled.
func NewPipelineProgram(task string) (*tea.Program, *PipelineApp) {
	app := NewPipelineApp(task)
	return tea.NewProgram(app, tea.WithAltScreen()), app
}

// Init implements tea.Model.
func (a *PipelineApp) Init() tea.Cmd {
	return a.spinner.Tick
}

// Update implements tea.Model.
func (a *PipelineApp) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			a.quitting = true
			return a, tea.Quit
		}
		a.logs, _ = a.logs.Update(msg)

	case tea.WindowSizeMsg:
		a.resize(msg.Width, msg.Height)

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd

	case EventMsg:
		a.handleEvent(msg.Event)

	case DoneMsg:
		a.done = true
		a.footer.SetSessionDone(msg.Success, msg.Message)

	case DebugLogMsg:
		a.logs.AddLog(LogEntry{Timestamp: time.Now(), Level: LogLevelDebug, Message: msg.Message})
	}

	return a, nil
}

func (a *PipelineApp) resize(width, height int) {
	a.width = width
	a.height = height
	a.header.SetWidth(width)
	a.footer.SetWidth(width)

	body := height - a.header.Height() - 1
	top := body / 2
	a.invocations.SetSize(width, top)
	a.logs.SetSize(width, body-top)
}

// handleEvent folds one orchestrator event into the panels.
func (a *PipelineApp) handleEvent(e orchestrator.Event) {
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	log := func(level LogLevel, agent, message string) {
		a.logs.AddLog(LogEntry{Timestamp: ts, Level: level, Agent: agent, Message: message})
	}

	switch e.Type {
	case orchestrator.EventInvocationStarted:
		a.invocations.Start(Invocation{Agent: e.Agent, Input: e.Input, StartedAt: ts})

	case orchestrator.EventBackgroundStarted:
		a.invocations.ExpectBackground(e.Agent, e.Input, e.Handle)
		log(LogLevelInfo, e.Agent, "started in background ("+e.Handle+")")

	case orchestrator.EventInvocationCompleted:
		a.invocations.Finish(e.Agent, e.Input, InvocationDone, e.Markers, "", e.Duration)
		log(LogLevelInfo, e.Agent, fmt.Sprintf("completed in %s", formatDuration(e.Duration)))

	case orchestrator.EventInvocationFailed:
		a.invocations.Finish(e.Agent, e.Input, InvocationFailed, 0, e.Message, e.Duration)
		log(LogLevelError, e.Agent, e.Message)

	case orchestrator.EventBatchStarted:
		log(LogLevelInfo, e.Agent, fmt.Sprintf("running %d input(s) in parallel", e.Batch))

	case orchestrator.EventBatchCompleted:
		log(LogLevelInfo, e.Agent, "batch finished: "+e.Message)

	case orchestrator.EventStateChanged:
		a.invocations.AddKeys(strings.Split(e.Message, ","))

	case orchestrator.EventProgress:
		log(LogLevelInfo, "", e.Message)

	case orchestrator.EventPhaseUpdated:
		a.header.SetPhase(e.Message)
		log(LogLevelInfo, "", "phase "+e.Message)

	case orchestrator.EventCoordinatorTurn:
		a.header.SetTurn(e.Turn)
		if e.Message != "" {
			log(LogLevelDebug, "coordinator", e.Message)
		}

	case orchestrator.EventPipelineDone:
		level := LogLevelInfo
		if e.Message != "completed" {
			level = LogLevelWarn
		}
		log(level, "", fmt.Sprintf("pipeline %s after %d turn(s)", e.Message, e.Turn))
	}

	a.footer.SetCounts(a.invocations.Counts())
}

// View implements tea.Model.
func (a *PipelineApp) View() string {
	if a.quitting {
		return "Goodbye!\n"
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		a.header.View(),
		a.invocations.View(a.spinner),
		a.logs.View(),
		a.footer.View(),
	)
}

// Done reports whether the pipeline has finished.
func (a *PipelineApp) Done() bool {
	return a.done
}

// Invocations returns the current invocation rows.
func (a *PipelineApp) Invocations() []Invocation {
	return a.invocations.Rows()
}
