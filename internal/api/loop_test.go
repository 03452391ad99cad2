package api

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversation_ToolRoundTrip(t *testing.T) {
	srv := newFakeServer(t)
	srv.replies = []string{
		toolMessage("Starting.", map[string]any{
			"id": "toolu_1", "name": "run_one",
			"input": map[string]any{"agent": "unit-a", "input": "step 1"},
		}),
		textMessage("All done."),
	}
	client := testClient(t, srv.URL)

	var events []string
	cv := client.NewConversation(ConversationConfig{
		Name:   "pipeline-orchestrator",
		System: "coordinate",
		Tools: []ToolSpec{{
			Name:        "run_one",
			Description: "run one",
			Properties:  map[string]interface{}{"agent": StringProp("agent"), "input": StringProp("input")},
			Required:    []string{"agent", "input"},
		}},
	})
	cv.SetStreamHandler(func(e StreamEvent) { events = append(events, e.Type) })

	turn, err := cv.Send(context.Background(), "do X")
	require.NoError(t, err)
	assert.False(t, turn.Done())
	require.Len(t, turn.Calls, 1)
	assert.Equal(t, "toolu_1", turn.Calls[0].ID)
	assert.Equal(t, "run_one", turn.Calls[0].Name)
	assert.JSONEq(t, `{"agent":"unit-a","input":"step 1"}`, string(turn.Calls[0].Input))
	assert.Equal(t, "Starting.", turn.Text)

	first := srv.body(0)
	assert.Len(t, first["tools"], 1)

	turn, err = cv.Reply(context.Background(), []ToolResult{{CallID: "toolu_1", Content: "ok"}})
	require.NoError(t, err)
	assert.True(t, turn.Done())
	assert.Equal(t, "All done.", turn.Text)

	// user, assistant(tool_use), user(tool_result)
	second := srv.body(1)
	msgs, ok := second["messages"].([]any)
	require.True(t, ok)
	assert.Len(t, msgs, 3)
	assert.Contains(t, fmt.Sprint(msgs[2]), "toolu_1")

	_, err = cv.Reply(context.Background(), nil)
	assert.ErrorIs(t, err, ErrConversationOver)
	assert.EqualValues(t, 2, srv.calls.Load())

	assert.Equal(t, []string{"text", "tool_use", "tool_result", "text", "done"}, events)
}

func TestConversation_MissingResultsAreErrors(t *testing.T) {
	srv := newFakeServer(t)
	srv.replies = []string{
		toolMessage("", map[string]any{"id": "a", "name": "get_state", "input": map[string]any{}},
			map[string]any{"id": "b", "name": "get_state", "input": map[string]any{}}),
		textMessage("fin"),
	}
	cv := testClient(t, srv.URL).NewConversation(ConversationConfig{System: "s"})

	_, err := cv.Send(context.Background(), "go")
	require.NoError(t, err)
	_, err = cv.Reply(context.Background(), []ToolResult{{CallID: "a", Content: "{}"}})
	require.NoError(t, err)

	msgs := srv.body(1)["messages"].([]any)
	last := fmt.Sprint(msgs[len(msgs)-1])
	assert.Contains(t, last, "no result produced for this call")
}

func TestConversation_Misuse(t *testing.T) {
	srv := newFakeServer(t)
	srv.replies = []string{textMessage("x")}
	cv := testClient(t, srv.URL).NewConversation(ConversationConfig{})

	_, err := cv.Reply(context.Background(), nil)
	assert.Error(t, err)

	_, err = cv.Send(context.Background(), "a")
	require.NoError(t, err)
	_, err = cv.Send(context.Background(), "b")
	assert.Error(t, err)
}

func TestConversation_ErrorClassified(t *testing.T) {
	srv := newFakeServer(t)
	srv.status = 529
	srv.errBody = `{"type":"error","error":{"type":"overloaded_error","message":"busy"}}`

	cv := testClient(t, srv.URL).NewConversation(ConversationConfig{Name: "coord"})
	_, err := cv.Send(context.Background(), "go")

	var ie *InvocationError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, KindUpstreamRejected, ie.Kind)
	assert.Equal(t, "coord", ie.Agent)
}

func TestTruncateForDisplay(t *testing.T) {
	assert.Equal(t, "short", truncateForDisplay("short"))

	exact := strings.Repeat("a", displayLimit)
	assert.Equal(t, exact, truncateForDisplay(exact))

	// Multi-byte runes must not be split at the cut.
	long := strings.Repeat("日", displayLimit+10)
	got := truncateForDisplay(long)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, strings.Repeat("日", displayLimit)+"...", got)
}
