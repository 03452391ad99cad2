package api

import (
	"testing"
)

func testSpecs() []ToolSpec {
	return []ToolSpec{
		{
			Name:        "run_one",
			Description: "Run one agent",
			Properties: map[string]interface{}{
				"agent": StringProp("Agent name"),
				"input": StringProp("Input"),
			},
			Required: []string{"agent"},
		},
		{
			Name:        "run_many",
			Description: "Run one agent on many inputs",
			Properties: map[string]interface{}{
				"agent":  StringProp("Agent name"),
				"inputs": StringListProp("Inputs"),
			},
			Required: []string{"agent", "inputs"},
		},
		{
			Name:        "get_state",
			Description: "Read the pipeline state",
		},
	}
}

func TestToolDefinitions(t *testing.T) {
	tools := ToolDefinitions(testSpecs())

	if len(tools) != 3 {
		t.Fatalf("ToolDefinitions count = %d, want 3", len(tools))
	}

	expectedTools := []string{"run_one", "run_many", "get_state"}
	for i, expectedName := range expectedTools {
		if tools[i].OfTool == nil {
			t.Fatalf("tool %d has nil OfTool", i)
		}
		if tools[i].OfTool.Name != expectedName {
			t.Errorf("tool %d name = %q, want %q", i, tools[i].OfTool.Name, expectedName)
		}
	}
}

func TestToolDefinitions_HasRequiredFields(t *testing.T) {
	tools := ToolDefinitions(testSpecs())

	if got := tools[1].OfTool.InputSchema.Required; len(got) != 2 || got[0] != "agent" || got[1] != "inputs" {
		t.Errorf("run_many required = %v, want [agent inputs]", got)
	}
	if got := tools[2].OfTool.InputSchema.Required; len(got) != 0 {
		t.Errorf("get_state required = %v, want none", got)
	}
}

func TestToolDefinitions_EmptyPropertiesIsObject(t *testing.T) {
	tools := ToolDefinitions(testSpecs())

	props, ok := tools[2].OfTool.InputSchema.Properties.(map[string]interface{})
	if !ok {
		t.Fatalf("get_state properties type = %T, want map", tools[2].OfTool.InputSchema.Properties)
	}
	if len(props) != 0 {
		t.Errorf("get_state properties = %v, want empty", props)
	}
}

func TestSchemaProps(t *testing.T) {
	list := StringListProp("inputs")
	if list["type"] != "array" {
		t.Errorf("StringListProp type = %v, want array", list["type"])
	}
	items, ok := list["items"].(map[string]interface{})
	if !ok || items["type"] != "string" {
		t.Errorf("StringListProp items = %v, want string items", list["items"])
	}
	if ObjectProp("details")["type"] != "object" {
		t.Error("ObjectProp type should be object")
	}
}
