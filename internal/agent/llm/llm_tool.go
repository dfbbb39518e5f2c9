package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/invopop/jsonschema"
)

var ErrInvalidArguments = errors.New("invalid arguments")

type LLMToolFunc func(ctx context.Context, id string, args map[string]any) (any, error)

type LLMTool struct {
	Name             string         `json:"name"`
	ParametersSchema map[string]any `json:"parameters_schema"`
	Description      string         `json:"description"`
	Call             LLMToolFunc    `json:"-"`
}

type LLMToolOption func(tool *LLMTool)

func NewLLMTool(options ...LLMToolOption) LLMTool {
	tool := &LLMTool{}
	for _, opt := range options {
		opt(tool)
	}
	return *tool
}

func WithLLMToolName(name string) LLMToolOption {
	return func(tool *LLMTool) {
		tool.Name = name
	}
}

func WithLLMToolDescription(description string) LLMToolOption {
	return func(tool *LLMTool) {
		tool.Description = description
	}
}

func WithLLMToolParametersSchema(schema map[string]any) LLMToolOption {
	return func(tool *LLMTool) {
		tool.ParametersSchema = schema
	}
}

func WithLLMToolCall[T any](callFunc func(ctx context.Context, id string, args map[string]any) (T, error)) LLMToolOption {
	return func(tool *LLMTool) {
		tool.Call = func(ctx context.Context, id string, args map[string]any) (any, error) {
			result, err := callFunc(ctx, id, args)
			if err != nil {
				return nil, err
			}
			return result, nil
		}
	}
}

// SchemaFor reflects the JSON Schema of the arguments struct T into the
// plain map form tool definitions are sent in. Unknown argument keys are
// allowed and dropped when the arguments are decoded.
func SchemaFor[T any]() (map[string]any, error) {
	reflector := jsonschema.Reflector{
		DoNotReference:            true,
		Anonymous:                 true,
		AllowAdditionalProperties: true,
	}
	var args T
	schemaBytes, err := json.Marshal(reflector.Reflect(&args))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}

	schema := make(map[string]any)
	if err := json.Unmarshal(schemaBytes, &schema); err != nil {
		return nil, fmt.Errorf("failed to unmarshal schema: %w", err)
	}
	delete(schema, "$schema")
	delete(schema, "$id")
	return schema, nil
}

// DecodeArgs converts loosely typed model arguments into the struct T.
func DecodeArgs[T any](args map[string]any) (T, error) {
	var out T
	raw, err := json.Marshal(args)
	if err != nil {
		return out, fmt.Errorf("%w: %s", ErrInvalidArguments, err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("%w: %s", ErrInvalidArguments, err)
	}
	return out, nil
}

type LLMToolCall struct {
	ID       string         `json:"id"`
	ToolName string         `json:"tool_name"`
	Args     map[string]any `json:"args"`
}

func NewLLMToolCall(id string, toolName string, args map[string]any) LLMToolCall {
	return LLMToolCall{
		ID:       id,
		ToolName: toolName,
		Args:     args,
	}
}
