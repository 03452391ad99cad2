package api

import (
	"github.com/anthropics/anthropic-sdk-go"
)

// ToolSpec is a provider-neutral description of one callable tool.
type ToolSpec struct {
	Name        string
	Description string
	// Properties is the JSON schema "properties" object.
	Properties map[string]interface{}
	Required   []string
}

// StringProp returns a schema property of type string.
func StringProp(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": description,
	}
}

// StringListProp returns a schema property holding an array of strings.
func StringListProp(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "array",
		"items":       map[string]interface{}{"type": "string"},
		"description": description,
	}
}

// ObjectProp returns a schema property holding a free-form object.
func ObjectProp(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "object",
		"description": description,
	}
}

// ToolDefinitions converts specs to Anthropic tool schemas.
func ToolDefinitions(specs []ToolSpec) []anthropic.ToolUnionParam {
	tools := make([]anthropic.ToolUnionParam, 0, len(specs))
	for _, spec := range specs {
		props := spec.Properties
		if props == nil {
			props = map[string]interface{}{}
		}
		tools = append(tools, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        spec.Name,
				Description: anthropic.String(spec.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: props,
					Required:   spec.Required,
				},
			},
		})
	}
	return tools
}
