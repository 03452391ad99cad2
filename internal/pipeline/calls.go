package pipeline

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Tool names the coordinator may call.
const (
	ToolRunOne         = "run_one"
	ToolRunMany        = "run_many"
	ToolRunBackground  = "run_background"
	ToolGetState       = "get_state"
	ToolReportProgress = "report_progress"
	ToolUpdateProgress = "update_progress"
)

// toolAliases maps the tool names of older coordinator definitions.
var toolAliases = map[string]string{
	"run_agent":            ToolRunOne,
	"run_agents_parallel":  ToolRunMany,
	"run_agent_background": ToolRunBackground,
}

// RawCall is one tool call as produced by the coordinator, before parsing.
type RawCall struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// Call is a parsed coordinator request. The set of implementations is closed:
// RunOneCall, RunManyCall, RunBackgroundCall, GetStateCall,
// ReportProgressCall and UpdateProgressCall.
type Call interface {
	// CallID is the coordinator's identifier used to route the result back.
	CallID() string
	// Tool returns the canonical tool name.
	Tool() string
	sealed()
}

type callID string

func (c callID) CallID() string { return string(c) }
func (callID) sealed()          {}

// RunOneCall requests a synchronous invocation.
type RunOneCall struct {
	callID
	Agent string
	Input string
}

func (RunOneCall) Tool() string { return ToolRunOne }

// RunManyCall requests one concurrent invocation per input.
type RunManyCall struct {
	callID
	Agent  string
	Inputs []string
}

func (RunManyCall) Tool() string { return ToolRunMany }

// RunBackgroundCall requests a fire-and-forget invocation.
type RunBackgroundCall struct {
	callID
	Agent string
	Input string
}

func (RunBackgroundCall) Tool() string { return ToolRunBackground }

// GetStateCall requests a State snapshot.
type GetStateCall struct {
	callID
}

func (GetStateCall) Tool() string { return ToolGetState }

// ReportProgressCall carries a message for the operator.
type ReportProgressCall struct {
	callID
	Message string
}

func (ReportProgressCall) Tool() string { return ToolReportProgress }

// UpdateProgressCall records a phase transition.
type UpdateProgressCall struct {
	callID
	Phase   string
	Status  string
	Details map[string]any
}

func (UpdateProgressCall) Tool() string { return ToolUpdateProgress }

// CoordinatorProtocolError reports a coordinator turn that could not be
// parsed into well-formed calls. It is fatal to the pipeline.
type CoordinatorProtocolError struct {
	CallID string
	Tool   string
	Err    error
}

func (e *CoordinatorProtocolError) Error() string {
	if e.Tool == "" {
		return fmt.Sprintf("coordinator protocol error: call %q: %v", e.CallID, e.Err)
	}
	return fmt.Sprintf("coordinator protocol error: %s (call %q): %v", e.Tool, e.CallID, e.Err)
}

func (e *CoordinatorProtocolError) Unwrap() error {
	return e.Err
}

// Wire shapes. Pointers distinguish missing fields from zero values; the
// agent_path and agent_input spellings are accepted for older definitions.
type agentArgs struct {
	Agent      *string `json:"agent"`
	AgentPath  *string `json:"agent_path"`
	Input      *string `json:"input"`
	AgentInput *string `json:"agent_input"`
}

type batchArgs struct {
	Agent     *string   `json:"agent"`
	AgentPath *string   `json:"agent_path"`
	Inputs    *[]string `json:"inputs"`
}

type messageArgs struct {
	Message *string `json:"message"`
}

type phaseArgs struct {
	Phase   *string        `json:"phase"`
	Status  *string        `json:"status"`
	Details map[string]any `json:"details"`
}

// ParseCalls converts one turn's raw calls into typed calls. An empty turn
// yields no calls. The first malformed call fails the whole turn with a
// *CoordinatorProtocolError.
func ParseCalls(raw []RawCall) ([]Call, error) {
	calls := make([]Call, 0, len(raw))
	seen := make(map[string]bool, len(raw))

	for _, rc := range raw {
		if rc.ID == "" {
			return nil, &CoordinatorProtocolError{Tool: rc.Name, Err: errors.New("missing call id")}
		}
		if seen[rc.ID] {
			return nil, &CoordinatorProtocolError{CallID: rc.ID, Tool: rc.Name, Err: errors.New("duplicate call id")}
		}
		seen[rc.ID] = true

		call, err := parseCall(rc)
		if err != nil {
			return nil, &CoordinatorProtocolError{CallID: rc.ID, Tool: rc.Name, Err: err}
		}
		calls = append(calls, call)
	}
	return calls, nil
}

func parseCall(rc RawCall) (Call, error) {
	name := strings.TrimSpace(rc.Name)
	if alias, ok := toolAliases[name]; ok {
		name = alias
	}
	id := callID(rc.ID)

	switch name {
	case ToolRunOne, ToolRunBackground:
		var args agentArgs
		if err := decodeArgs(rc.Input, &args); err != nil {
			return nil, err
		}
		agent, err := pick("agent", args.Agent, args.AgentPath)
		if err != nil {
			return nil, err
		}
		input := ""
		if v := first(args.Input, args.AgentInput); v != nil {
			input = *v
		}
		if name == ToolRunOne {
			return RunOneCall{callID: id, Agent: agent, Input: input}, nil
		}
		return RunBackgroundCall{callID: id, Agent: agent, Input: input}, nil

	case ToolRunMany:
		var args batchArgs
		if err := decodeArgs(rc.Input, &args); err != nil {
			return nil, err
		}
		agent, err := pick("agent", args.Agent, args.AgentPath)
		if err != nil {
			return nil, err
		}
		if args.Inputs == nil {
			return nil, errors.New(`missing required field "inputs"`)
		}
		return RunManyCall{callID: id, Agent: agent, Inputs: *args.Inputs}, nil

	case ToolGetState:
		var args struct{}
		if err := decodeArgs(rc.Input, &args); err != nil {
			return nil, err
		}
		return GetStateCall{callID: id}, nil

	case ToolReportProgress:
		var args messageArgs
		if err := decodeArgs(rc.Input, &args); err != nil {
			return nil, err
		}
		if args.Message == nil {
			return nil, errors.New(`missing required field "message"`)
		}
		return ReportProgressCall{callID: id, Message: *args.Message}, nil

	case ToolUpdateProgress:
		var args phaseArgs
		if err := decodeArgs(rc.Input, &args); err != nil {
			return nil, err
		}
		if args.Phase == nil {
			return nil, errors.New(`missing required field "phase"`)
		}
		if args.Status == nil {
			return nil, errors.New(`missing required field "status"`)
		}
		return UpdateProgressCall{callID: id, Phase: *args.Phase, Status: *args.Status, Details: args.Details}, nil

	default:
		return nil, fmt.Errorf("unknown tool %q", rc.Name)
	}
}

// decodeArgs decodes a JSON object; empty input is treated as {}.
func decodeArgs(data json.RawMessage, v any) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		trimmed = []byte("{}")
	}
	if trimmed[0] != '{' {
		return errors.New("arguments must be a JSON object")
	}
	if err := json.Unmarshal(trimmed, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

func first(vals ...*string) *string {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}

func pick(field string, vals ...*string) (string, error) {
	v := first(vals...)
	if v == nil {
		return "", fmt.Errorf("missing required field %q", field)
	}
	return *v, nil
}
