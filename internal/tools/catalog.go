// Package tools declares the task-management operations the assistant may
// request and executes them on behalf of an authenticated caller.
package tools

import (
	"github.com/nimbus-tasks/assistant/internal/llm"
)

// Tool names. These are part of the wire contract with the model.
const (
	AddTask      = "add_task"
	ListTasks    = "list_tasks"
	CompleteTask = "complete_task"
	UpdateTask   = "update_task"
	DeleteTask   = "delete_task"
)

// ParamType is a primitive JSON-schema type.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeInteger ParamType = "integer"
	TypeBoolean ParamType = "boolean"
)

// Parameter describes one named tool argument.
type Parameter struct {
	Name        string
	Type        ParamType
	Description string
	Required    bool
	Enum        []string
	Default     any
}

// Definition declares one tool.
type Definition struct {
	Name        string
	Description string
	Parameters  []Parameter
}

var catalog = []Definition{
	{
		Name:        AddTask,
		Description: "Create a new task for the user",
		Parameters: []Parameter{
			{Name: "title", Type: TypeString, Required: true, Description: "Task title (max 80 characters)"},
		},
	},
	{
		Name:        ListTasks,
		Description: "List the user's tasks with an optional status filter",
		Parameters: []Parameter{
			{
				Name:        "status",
				Type:        TypeString,
				Description: "Filter by status (default: all)",
				Enum:        []string{"all", "pending", "completed"},
				Default:     "all",
			},
		},
	},
	{
		Name:        CompleteTask,
		Description: "Mark a task as completed",
		Parameters: []Parameter{
			{Name: "task_id", Type: TypeInteger, Required: true, Description: "Task ID to complete"},
		},
	},
	{
		Name:        UpdateTask,
		Description: "Update a task's title",
		Parameters: []Parameter{
			{Name: "task_id", Type: TypeInteger, Required: true, Description: "Task ID to update"},
			{Name: "title", Type: TypeString, Required: true, Description: "New task title (max 80 characters)"},
		},
	},
	{
		Name:        DeleteTask,
		Description: "Delete a task. Only call with confirm=true after the user explicitly confirmed",
		Parameters: []Parameter{
			{Name: "task_id", Type: TypeInteger, Required: true, Description: "Task ID to delete"},
			{Name: "confirm", Type: TypeBoolean, Required: true, Description: "Confirmation flag (must be true)"},
		},
	},
}

// Catalog returns the fixed tool definitions in declaration order. The
// returned slice is a copy and may be modified by the caller.
func Catalog() []Definition {
	out := make([]Definition, len(catalog))
	for i, def := range catalog {
		out[i] = def.clone()
	}
	return out
}

// Lookup returns the definition registered under name.
func Lookup(name string) (Definition, bool) {
	for _, def := range catalog {
		if def.Name == name {
			return def.clone(), true
		}
	}
	return Definition{}, false
}

// Specs renders the catalog for an inference provider.
func Specs() []llm.ToolSpec {
	specs := make([]llm.ToolSpec, len(catalog))
	for i, def := range catalog {
		specs[i] = def.Spec()
	}
	return specs
}

// Spec renders the definition for an inference provider.
func (d Definition) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        d.Name,
		Description: d.Description,
		Parameters:  d.JSONSchema(),
	}
}

// JSONSchema returns the parameters as a JSON-schema object.
func (d Definition) JSONSchema() map[string]any {
	properties := make(map[string]any, len(d.Parameters))
	required := make([]string, 0, len(d.Parameters))

	for _, p := range d.Parameters {
		prop := map[string]any{
			"type":        string(p.Type),
			"description": p.Description,
		}
		if len(p.Enum) > 0 {
			prop["enum"] = append([]string(nil), p.Enum...)
		}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}

	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func (d Definition) clone() Definition {
	params := make([]Parameter, len(d.Parameters))
	for i, p := range d.Parameters {
		p.Enum = append([]string(nil), p.Enum...)
		params[i] = p
	}
	d.Parameters = params
	return d
}
