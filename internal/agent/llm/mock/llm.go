package mock

import (
	"context"
	"fmt"
	"sync"

	"weather-chatbot/internal/agent/llm"
)

// LLM is a test double implementing llm.LLM. CallFn wins over Responses;
// Responses are returned in order, one per call.
type LLM struct {
	CallFn    func(ctx context.Context, msgs []llm.LLMMessage) (llm.LLMMessage, error)
	Responses []llm.LLMMessage

	mu    sync.Mutex
	calls [][]llm.LLMMessage
}

func (m *LLM) Call(ctx context.Context, msgs []llm.LLMMessage) (llm.LLMMessage, error) {
	m.mu.Lock()
	idx := len(m.calls)
	m.calls = append(m.calls, append([]llm.LLMMessage(nil), msgs...))
	m.mu.Unlock()

	if m.CallFn != nil {
		return m.CallFn(ctx, msgs)
	}
	if idx >= len(m.Responses) {
		return nil, fmt.Errorf("mock: no response scripted for call %d", idx+1)
	}
	return m.Responses[idx], nil
}

// Calls returns the message lists the model was invoked with.
func (m *LLM) Calls() [][]llm.LLMMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]llm.LLMMessage(nil), m.calls...)
}

func (m *LLM) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// ToolRequest builds an assistant message asking for one tool.
func ToolRequest(id, tool string, args map[string]any) llm.AssistantMessage {
	return llm.AssistantMessage{
		ToolCalls: []llm.LLMToolCall{llm.NewLLMToolCall(id, tool, args)},
	}
}

func Answer(text string) llm.AssistantMessage {
	return llm.AssistantMessage{Content: text}
}
