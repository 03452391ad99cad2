package pipeline

import (
	"context"
	"fmt"

	"github.com/ShayCichocki/atomic/internal/api"
	"github.com/ShayCichocki/atomic/internal/definition"
)

// Turn is one coordinator response: free text plus the tool calls it
// requested. A turn without calls ends the pipeline.
type Turn struct {
	Text  string
	Calls []RawCall
	// StopReason is the provider's reason for ending the response,
	// e.g. "end_turn" or "max_tokens".
	StopReason   string
	InputTokens  int64
	OutputTokens int64
}

// Result answers one call of the previous turn.
type Result struct {
	CallID  string
	Content string
	IsError bool
}

// Coordinator is the control loop's decision maker. Start and Continue each
// perform exactly one coordinator invocation.
type Coordinator interface {
	Start(ctx context.Context, task string) (*Turn, error)
	Continue(ctx context.Context, results []Result) (*Turn, error)
}

// ToolCoordinator drives a coordinator definition through the Messages API
// with the pipeline tools attached.
type ToolCoordinator struct {
	client     *api.Client
	defs       *definition.Loader
	name       string
	model      string
	projectDir string

	conv     *api.Conversation
	onStream func(api.StreamEvent)
}

// ToolCoordinatorConfig configures NewToolCoordinator.
type ToolCoordinatorConfig struct {
	// Name is the coordinator definition identity.
	Name string
	// Model overrides the definition's model hint when set.
	Model      string
	ProjectDir string
}

// NewToolCoordinator creates a coordinator. The definition is loaded by
// Start, so a missing or malformed coordinator surfaces as a failed
// coordinator invocation.
func NewToolCoordinator(client *api.Client, defs *definition.Loader, cfg ToolCoordinatorConfig) *ToolCoordinator {
	return &ToolCoordinator{
		client:     client,
		defs:       defs,
		name:       cfg.Name,
		model:      cfg.Model,
		projectDir: cfg.ProjectDir,
	}
}

// SetStreamHandler forwards conversation events (text, tool use) to fn.
func (c *ToolCoordinator) SetStreamHandler(fn func(api.StreamEvent)) {
	c.onStream = fn
}

// Start loads the coordinator definition and sends the task.
func (c *ToolCoordinator) Start(ctx context.Context, task string) (*Turn, error) {
	unit, err := c.defs.Load(c.name)
	if err != nil {
		return nil, fmt.Errorf("load coordinator %q: %w", c.name, err)
	}

	model := c.model
	if model == "" {
		model = unit.ModelTier()
	}

	c.conv = c.client.NewConversation(api.ConversationConfig{
		Name:   unit.Name,
		Model:  model,
		System: CoordinatorSystemPrompt(unit, c.projectDir, task),
		Tools:  ToolSpecs(),
	})
	if c.onStream != nil {
		c.conv.SetStreamHandler(c.onStream)
	}

	turn, err := c.conv.Send(ctx, "Begin the pipeline for this task: "+task)
	if err != nil {
		return nil, err
	}
	return fromAPITurn(turn), nil
}

// Continue returns the results of the previous turn's calls.
func (c *ToolCoordinator) Continue(ctx context.Context, results []Result) (*Turn, error) {
	if c.conv == nil {
		return nil, fmt.Errorf("coordinator %q not started", c.name)
	}
	apiResults := make([]api.ToolResult, len(results))
	for i, r := range results {
		apiResults[i] = api.ToolResult{CallID: r.CallID, Content: r.Content, IsError: r.IsError}
	}
	turn, err := c.conv.Reply(ctx, apiResults)
	if err != nil {
		return nil, err
	}
	return fromAPITurn(turn), nil
}

// CoordinatorSystemPrompt is the coordinator definition followed by the
// project context.
func CoordinatorSystemPrompt(unit *definition.UnitOfWork, projectDir, task string) string {
	base := unit.Body
	if base == "" {
		base = unit.SystemPrompt()
	}
	return fmt.Sprintf("%s\n\n## Project Context\n\nProject Directory: %s\nTask: %s\n\n"+
		"Begin by analyzing the task and deciding which phases to run.\n", base, projectDir, task)
}

func fromAPITurn(t *api.Turn) *Turn {
	out := &Turn{
		Text:         t.Text,
		StopReason:   t.StopReason,
		InputTokens:  t.InputTokens,
		OutputTokens: t.OutputTokens,
	}
	for _, call := range t.Calls {
		out.Calls = append(out.Calls, RawCall{ID: call.ID, Name: call.Name, Input: call.Input})
	}
	return out
}
