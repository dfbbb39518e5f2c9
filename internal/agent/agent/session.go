package agent

import (
	"context"
	"sync"

	"weather-chatbot/internal/agent/llm"
)

// Session owns one conversation and runs its turns one at a time.
type Session struct {
	mu           sync.Mutex
	agent        *Agent
	conversation *Conversation
	chunkSize    int
}

type SessionOption func(*Session)

func WithSessionChunkSize(n int) SessionOption {
	return func(s *Session) {
		s.chunkSize = n
	}
}

func WithHistory(msgs ...llm.LLMMessage) SessionOption {
	return func(s *Session) {
		s.conversation = NewConversation(msgs...)
	}
}

func NewSession(agent *Agent, options ...SessionOption) *Session {
	session := &Session{
		agent:        agent,
		conversation: NewConversation(),
		chunkSize:    DefaultChunkSize,
	}
	for _, opt := range options {
		opt(session)
	}
	return session
}

// Send runs one turn for input. On success the turn's messages are already
// part of the history when the stream is returned. On failure the history is
// left as it was.
func (s *Session) Send(ctx context.Context, input string) (*TurnStream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.agent.Run(ctx, s.conversation.Messages(), input)
	if err != nil {
		return nil, err
	}
	s.conversation.Append(result.NewMessages...)

	return NewTurnStream(result, WithChunkSize(s.chunkSize)), nil
}

func (s *Session) History() []llm.LLMMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversation.Messages()
}

// Reset discards the conversation.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversation.Reset()
}
