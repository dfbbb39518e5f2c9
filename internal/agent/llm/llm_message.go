package llm

type LLMMessageType string

const (
	LLMMessageTypeUser       LLMMessageType = "user"
	LLMMessageTypeAssistant  LLMMessageType = "assistant"
	LLMMessageTypeSystem     LLMMessageType = "system"
	LLMMessageTypeToolResult LLMMessageType = "tool"
)

// LLMMessage is a closed union: only the message types declared in this
// package implement it, so a type switch over them is exhaustive.
type LLMMessage interface {
	Type() LLMMessageType
	isLLMMessage()
}

type SystemMessage struct {
	Content string `json:"content"`
}

type UserMessage struct {
	Content string `json:"content"`
}

// AssistantMessage is a model reply. Content is empty when the reply only
// requests tools; ToolCalls is empty when the reply is a final answer.
type AssistantMessage struct {
	Content   string        `json:"content"`
	ToolCalls []LLMToolCall `json:"tool_calls,omitempty"`
}

// ToolResultMessage carries the JSON output of one tool call.
type ToolResultMessage struct {
	ToolCallID string `json:"tool_call_id"`
	ToolName   string `json:"tool_name"`
	Content    string `json:"content"`
}

func (SystemMessage) Type() LLMMessageType     { return LLMMessageTypeSystem }
func (UserMessage) Type() LLMMessageType       { return LLMMessageTypeUser }
func (AssistantMessage) Type() LLMMessageType  { return LLMMessageTypeAssistant }
func (ToolResultMessage) Type() LLMMessageType { return LLMMessageTypeToolResult }

func (SystemMessage) isLLMMessage()     {}
func (UserMessage) isLLMMessage()       {}
func (AssistantMessage) isLLMMessage()  {}
func (ToolResultMessage) isLLMMessage() {}

func NewLLMMessage(msgType LLMMessageType, content string) LLMMessage {
	switch msgType {
	case LLMMessageTypeSystem:
		return SystemMessage{Content: content}
	case LLMMessageTypeAssistant:
		return AssistantMessage{Content: content}
	default:
		return UserMessage{Content: content}
	}
}

func NewToolResultMessage(call LLMToolCall, content string) ToolResultMessage {
	return ToolResultMessage{
		ToolCallID: call.ID,
		ToolName:   call.ToolName,
		Content:    content,
	}
}

// HasToolCalls reports whether msg is an assistant message requesting tools.
func HasToolCalls(msg LLMMessage) bool {
	m, ok := msg.(AssistantMessage)
	return ok && len(m.ToolCalls) > 0
}
