package agent

import (
	"encoding/json"

	"weather-chatbot/internal/agent/llm"
)

type ToolTraceKind string

const (
	TraceKindToolCall   ToolTraceKind = "tool-call"
	TraceKindToolReturn ToolTraceKind = "tool-return"
	TraceKindDiagnostic ToolTraceKind = "diagnostic"
)

// ToolTraceEntry is a display record of tool activity in a turn. Payload is
// the call arguments, the decoded tool output, or a diagnostic message.
type ToolTraceEntry struct {
	Kind    ToolTraceKind `json:"kind" yaml:"kind"`
	Name    string        `json:"name" yaml:"name"`
	Payload any           `json:"payload,omitempty" yaml:"payload,omitempty"`
}

// ExtractTrace lists tool calls and tool returns in message order.
func ExtractTrace(msgs []llm.LLMMessage) []ToolTraceEntry {
	var trace []ToolTraceEntry
	for _, msg := range msgs {
		switch m := msg.(type) {
		case llm.AssistantMessage:
			for _, call := range m.ToolCalls {
				trace = append(trace, ToolTraceEntry{
					Kind:    TraceKindToolCall,
					Name:    fallbackName(call.ToolName),
					Payload: call.Args,
				})
			}
		case llm.ToolResultMessage:
			name := m.ToolName
			if name == "" {
				name = m.ToolCallID
			}
			trace = append(trace, ToolTraceEntry{
				Kind:    TraceKindToolReturn,
				Name:    fallbackName(name),
				Payload: decodeContent(m.Content),
			})
		case llm.UserMessage, llm.SystemMessage:
		}
	}
	return trace
}

func fallbackName(name string) string {
	if name == "" {
		return "tool"
	}
	return name
}

func decodeContent(content string) any {
	var decoded any
	if err := json.Unmarshal([]byte(content), &decoded); err != nil {
		return content
	}
	return decoded
}
