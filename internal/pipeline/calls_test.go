package pipeline

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func raw(id, name, input string) RawCall {
	return RawCall{ID: id, Name: name, Input: json.RawMessage(input)}
}

func TestParseCalls_AllTools(t *testing.T) {
	calls, err := ParseCalls([]RawCall{
		raw("1", "run_one", `{"agent":"unit-a","input":"step 1"}`),
		raw("2", "run_many", `{"agent":"unit-b","inputs":["x","y"]}`),
		raw("3", "run_background", `{"agent":"unit-c","input":""}`),
		raw("4", "get_state", ``),
		raw("5", "report_progress", `{"message":"halfway"}`),
		raw("6", "update_progress", `{"phase":"phase-1","status":"started","details":{"n":1}}`),
	})
	require.NoError(t, err)
	require.Len(t, calls, 6)

	assert.Equal(t, RunOneCall{callID: "1", Agent: "unit-a", Input: "step 1"}, calls[0])
	assert.Equal(t, RunManyCall{callID: "2", Agent: "unit-b", Inputs: []string{"x", "y"}}, calls[1])
	assert.Equal(t, RunBackgroundCall{callID: "3", Agent: "unit-c"}, calls[2])
	assert.Equal(t, GetStateCall{callID: "4"}, calls[3])
	assert.Equal(t, ReportProgressCall{callID: "5", Message: "halfway"}, calls[4])

	up, ok := calls[5].(UpdateProgressCall)
	require.True(t, ok)
	assert.Equal(t, "phase-1", up.Phase)
	assert.Equal(t, "started", up.Status)
	assert.EqualValues(t, 1, up.Details["n"])

	for i, want := range []string{ToolRunOne, ToolRunMany, ToolRunBackground, ToolGetState, ToolReportProgress, ToolUpdateProgress} {
		assert.Equal(t, want, calls[i].Tool())
	}
	assert.Equal(t, "6", calls[5].CallID())
}

func TestParseCalls_LegacyNames(t *testing.T) {
	calls, err := ParseCalls([]RawCall{
		raw("a", "run_agent", `{"agent_path":"agents/git-setup.md","agent_input":"main"}`),
		raw("b", "run_agents_parallel", `{"agent_path":"agents/tester.md","inputs":["1"]}`),
		raw("c", "run_agent_background", `{"agent_path":"agents/docs.md","agent_input":"go"}`),
	})
	require.NoError(t, err)

	assert.Equal(t, RunOneCall{callID: "a", Agent: "agents/git-setup.md", Input: "main"}, calls[0])
	assert.Equal(t, RunManyCall{callID: "b", Agent: "agents/tester.md", Inputs: []string{"1"}}, calls[1])
	assert.Equal(t, RunBackgroundCall{callID: "c", Agent: "agents/docs.md", Input: "go"}, calls[2])
}

func TestParseCalls_EmptyTurn(t *testing.T) {
	calls, err := ParseCalls(nil)
	require.NoError(t, err)
	assert.Empty(t, calls)
}

func TestParseCalls_ProtocolErrors(t *testing.T) {
	tests := []struct {
		name string
		call RawCall
		want string
	}{
		{"unknown tool", raw("1", "rollback_pipeline", `{}`), "unknown tool"},
		{"missing id", raw("", "get_state", `{}`), "missing call id"},
		{"not an object", raw("1", "run_one", `["unit-a"]`), "JSON object"},
		{"bad json", raw("1", "run_one", `{"agent":`), "invalid arguments"},
		{"wrong type", raw("1", "run_one", `{"agent":7,"input":"x"}`), "invalid arguments"},
		{"missing agent", raw("1", "run_one", `{"input":"x"}`), `"agent"`},
		{"missing inputs", raw("1", "run_many", `{"agent":"a"}`), `"inputs"`},
		{"inputs not strings", raw("1", "run_many", `{"agent":"a","inputs":[1,2]}`), "invalid arguments"},
		{"missing message", raw("1", "report_progress", `{}`), `"message"`},
		{"missing status", raw("1", "update_progress", `{"phase":"p"}`), `"status"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls, err := ParseCalls([]RawCall{raw("0", "get_state", ``), tt.call})
			assert.Nil(t, calls)

			var pe *CoordinatorProtocolError
			require.True(t, errors.As(err, &pe), "got %v", err)
			assert.Contains(t, pe.Error(), tt.want)
			assert.Equal(t, tt.call.ID, pe.CallID)
		})
	}
}

func TestParseCalls_DuplicateID(t *testing.T) {
	_, err := ParseCalls([]RawCall{raw("1", "get_state", ``), raw("1", "get_state", ``)})

	var pe *CoordinatorProtocolError
	require.ErrorAs(t, err, &pe)
	assert.Contains(t, pe.Error(), "duplicate")
}

func TestParseCalls_EmptyInputAllowed(t *testing.T) {
	calls, err := ParseCalls([]RawCall{raw("1", "run_one", `{"agent":"unit-a"}`)})
	require.NoError(t, err)
	assert.Equal(t, "", calls[0].(RunOneCall).Input)
}
