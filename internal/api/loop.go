package api

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/anthropics/anthropic-sdk-go"
)

// ErrConversationOver is returned by Reply after a turn that requested no
// tool calls.
var ErrConversationOver = errors.New("conversation has ended")

// StreamEvent represents an event during a conversation for streaming to UI.
type StreamEvent struct {
	Type    string // "text", "tool_use", "tool_result", "done", "error"
	Content string
	Tool    string
	Input   json.RawMessage
}

// ToolCall is one tool invocation requested by the model.
type ToolCall struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// ToolResult answers a ToolCall by ID.
type ToolResult struct {
	CallID  string
	Content string
	IsError bool
}

// Turn is one model response within a conversation.
type Turn struct {
	Text         string
	Calls        []ToolCall
	StopReason   string
	InputTokens  int64
	OutputTokens int64
}

// Done reports whether the turn requested no further tool calls.
func (t *Turn) Done() bool {
	return len(t.Calls) == 0
}

// ConversationConfig configures a tool-using conversation.
type ConversationConfig struct {
	// Name labels errors (usually the definition name).
	Name string
	// Model is the model hint; empty uses the client default.
	Model  string
	System string
	Tools  []ToolSpec
}

// Conversation is a multi-turn Messages exchange where tool execution is
// performed by the caller between turns. Each Send or Reply is exactly one
// request.
type Conversation struct {
	client   *Client
	name     string
	model    anthropic.Model
	system   string
	tools    []anthropic.ToolUnionParam
	messages []anthropic.MessageParam
	pending  []ToolCall
	started  bool
	over     bool
	onStream func(StreamEvent)
}

// NewConversation starts a conversation on c.
func (c *Client) NewConversation(cfg ConversationConfig) *Conversation {
	model := c.model
	if cfg.Model != "" {
		model = c.ResolveModel(cfg.Model)
	}
	return &Conversation{
		client: c,
		name:   cfg.Name,
		model:  model,
		system: cfg.System,
		tools:  ToolDefinitions(cfg.Tools),
	}
}

// SetStreamHandler sets a callback for streaming events.
func (cv *Conversation) SetStreamHandler(fn func(StreamEvent)) {
	cv.onStream = fn
}

func (cv *Conversation) emit(event StreamEvent) {
	if cv.onStream != nil {
		cv.onStream(event)
	}
}

// Send opens the conversation with a user message.
func (cv *Conversation) Send(ctx context.Context, userText string) (*Turn, error) {
	if cv.started {
		return nil, errors.New("conversation already started")
	}
	cv.started = true
	cv.messages = append(cv.messages, anthropic.NewUserMessage(anthropic.NewTextBlock(userText)))
	return cv.step(ctx)
}

// Reply answers every call of the previous turn and requests the next turn.
// Calls without a matching result are answered with an error result so the
// exchange stays well formed.
func (cv *Conversation) Reply(ctx context.Context, results []ToolResult) (*Turn, error) {
	if !cv.started {
		return nil, errors.New("conversation not started")
	}
	if cv.over {
		return nil, ErrConversationOver
	}

	byID := make(map[string]ToolResult, len(results))
	for _, r := range results {
		byID[r.CallID] = r
	}

	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(cv.pending))
	for _, call := range cv.pending {
		r, ok := byID[call.ID]
		if !ok {
			r = ToolResult{CallID: call.ID, Content: "no result produced for this call", IsError: true}
		}
		cv.emit(StreamEvent{Type: "tool_result", Tool: call.Name, Content: truncateForDisplay(r.Content)})
		blocks = append(blocks, anthropic.NewToolResultBlock(call.ID, r.Content, r.IsError))
	}
	cv.messages = append(cv.messages, anthropic.NewUserMessage(blocks...))
	return cv.step(ctx)
}

func (cv *Conversation) step(ctx context.Context) (*Turn, error) {
	resp, err := cv.client.sdk().Messages.New(ctx, anthropic.MessageNewParams{
		Model:     cv.model,
		MaxTokens: cv.client.MaxTokens(),
		System: []anthropic.TextBlockParam{
			{Text: cv.system},
		},
		Messages: cv.messages,
		Tools:    cv.tools,
	})
	if err != nil {
		cv.emit(StreamEvent{Type: "error", Content: err.Error()})
		return nil, Classify(cv.name, err)
	}

	cv.client.Tracker().Add(resp.Usage.InputTokens, resp.Usage.OutputTokens)

	turn := &Turn{
		StopReason:   string(resp.StopReason),
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}
	var assistantBlocks []anthropic.ContentBlockParamUnion

	for _, block := range resp.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			turn.Text += variant.Text
			cv.emit(StreamEvent{Type: "text", Content: variant.Text})
			assistantBlocks = append(assistantBlocks, anthropic.NewTextBlock(variant.Text))

		case anthropic.ToolUseBlock:
			cv.emit(StreamEvent{Type: "tool_use", Tool: variant.Name, Input: variant.Input})
			assistantBlocks = append(assistantBlocks,
				anthropic.NewToolUseBlock(variant.ID, variant.Input, variant.Name))
			turn.Calls = append(turn.Calls, ToolCall{ID: variant.ID, Name: variant.Name, Input: variant.Input})
		}
	}

	if len(assistantBlocks) > 0 {
		cv.messages = append(cv.messages, anthropic.NewAssistantMessage(assistantBlocks...))
	}
	cv.pending = turn.Calls
	if turn.Done() {
		cv.over = true
		cv.emit(StreamEvent{Type: "done"})
	}
	return turn, nil
}

// displayLimit bounds tool results echoed to stream handlers, in runes.
const displayLimit = 500

func truncateForDisplay(s string) string {
	n := 0
	for i := range s {
		if n == displayLimit {
			return s[:i] + "..."
		}
		n++
	}
	return s
}
