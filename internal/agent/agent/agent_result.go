package agent

import (
	"weather-chatbot/internal/agent/llm"
)

type AgentResult struct {
	NewMessages []llm.LLMMessage `json:"new_messages"`
	FinalText   string           `json:"final_text"`
	Iterations  int              `json:"iterations"`
	Diverged    bool             `json:"diverged,omitempty"`
	Diagnostics []string         `json:"diagnostics,omitempty"`
}

func newAgentResult(state *AgentState) *AgentResult {
	newMessages := state.NewMessages()
	result := &AgentResult{
		NewMessages: newMessages,
		FinalText:   FinalText(newMessages),
		Iterations:  state.iterations,
	}
	if state.diagnostic != "" {
		result.Diverged = true
		result.Diagnostics = []string{state.diagnostic}
	}
	return result
}

// FinalText returns the content of the last assistant message with
// non-empty content, or "" if there is none.
func FinalText(msgs []llm.LLMMessage) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if m, ok := msgs[i].(llm.AssistantMessage); ok && m.Content != "" {
			return m.Content
		}
	}
	return ""
}
