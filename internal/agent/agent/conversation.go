package agent

import "weather-chatbot/internal/agent/llm"

// Conversation is an append-only message log. It is not safe for concurrent
// use; Session serializes access to it.
type Conversation struct {
	messages []llm.LLMMessage
}

func NewConversation(msgs ...llm.LLMMessage) *Conversation {
	return &Conversation{messages: append([]llm.LLMMessage(nil), msgs...)}
}

func (c *Conversation) Append(msgs ...llm.LLMMessage) {
	c.messages = append(c.messages, msgs...)
}

// Messages returns a copy of the log.
func (c *Conversation) Messages() []llm.LLMMessage {
	return append([]llm.LLMMessage(nil), c.messages...)
}

func (c *Conversation) Len() int {
	return len(c.messages)
}

func (c *Conversation) Reset() {
	c.messages = nil
}
