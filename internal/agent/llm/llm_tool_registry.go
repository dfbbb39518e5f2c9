package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

var (
	ErrToolNotFound   = errors.New("tool not found")
	ErrToolRegistered = errors.New("tool already registered")
)

type registeredTool struct {
	tool   LLMTool
	schema *gojsonschema.Schema
}

// ToolRegistry is the fixed set of tools a model may call. Tools keep their
// registration order so the definitions sent to the model are stable.
type ToolRegistry struct {
	order []string
	tools map[string]registeredTool
}

func NewToolRegistry(tools ...LLMTool) (*ToolRegistry, error) {
	r := &ToolRegistry{tools: make(map[string]registeredTool)}
	for _, tool := range tools {
		if err := r.Register(tool); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *ToolRegistry) Register(tool LLMTool) error {
	if tool.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if tool.Call == nil {
		return fmt.Errorf("tool %s has no call function", tool.Name)
	}
	if _, exists := r.tools[tool.Name]; exists {
		return fmt.Errorf("%w: %s", ErrToolRegistered, tool.Name)
	}

	var schema *gojsonschema.Schema
	if tool.ParametersSchema != nil {
		compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(tool.ParametersSchema))
		if err != nil {
			return fmt.Errorf("failed to compile schema for tool %s: %w", tool.Name, err)
		}
		schema = compiled
	}

	r.tools[tool.Name] = registeredTool{tool: tool, schema: schema}
	r.order = append(r.order, tool.Name)
	return nil
}

// Tools returns the registered tools in registration order.
func (r *ToolRegistry) Tools() []LLMTool {
	tools := make([]LLMTool, 0, len(r.order))
	for _, name := range r.order {
		tools = append(tools, r.tools[name].tool)
	}
	return tools
}

// Has reports whether a tool named name is registered.
func (r *ToolRegistry) Has(name string) bool {
	_, ok := r.tools[name]
	return ok
}

func (r *ToolRegistry) Names() []string {
	return append([]string(nil), r.order...)
}

// Execute validates and runs one tool call. The returned message is always
// usable as the call's result: lookup, validation and call failures are
// rendered as {"error": "..."} so the model can react to them. The error is
// non-nil in those cases and is meant for logging only.
func (r *ToolRegistry) Execute(ctx context.Context, call LLMToolCall) (ToolResultMessage, error) {
	entry, ok := r.tools[call.ToolName]
	if !ok {
		err := fmt.Errorf("%w: %s", ErrToolNotFound, call.ToolName)
		return NewToolResultMessage(call, ErrorContent(err.Error())), err
	}

	if err := r.validate(entry, call.Args); err != nil {
		return NewToolResultMessage(call, ErrorContent(err.Error())), err
	}

	result, err := entry.tool.Call(ctx, call.ID, call.Args)
	if err != nil {
		return NewToolResultMessage(call, ErrorContent(err.Error())), err
	}

	content, err := json.Marshal(result)
	if err != nil {
		err = fmt.Errorf("failed to marshal result of tool %s: %w", call.ToolName, err)
		return NewToolResultMessage(call, ErrorContent(err.Error())), err
	}
	return NewToolResultMessage(call, string(content)), nil
}

func (r *ToolRegistry) validate(entry registeredTool, args map[string]any) error {
	if entry.schema == nil {
		return nil
	}

	var document any
	if args != nil {
		document = args
	}
	res, err := entry.schema.Validate(gojsonschema.NewGoLoader(document))
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidArguments, err)
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("%w: %s", ErrInvalidArguments, strings.Join(msgs, "; "))
	}
	return nil
}

// ErrorContent renders msg in the uniform tool error shape.
func ErrorContent(msg string) string {
	content, err := json.Marshal(map[string]string{"error": msg})
	if err != nil {
		return `{"error":"tool error"}`
	}
	return string(content)
}
