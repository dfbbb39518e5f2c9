package agent

import (
	"iter"
	"runtime"
	"sync/atomic"

	"weather-chatbot/internal/agent/llm"
)

const DefaultChunkSize = 48

// TurnStream replays a completed turn for incremental display. The turn
// itself is already finished; only the text delivery is incremental.
type TurnStream struct {
	result    *AgentResult
	chunkSize int
	started   atomic.Bool
}

type StreamOption func(*TurnStream)

// WithChunkSize sets the fragment length in characters. Values below one
// keep the default.
func WithChunkSize(n int) StreamOption {
	return func(s *TurnStream) {
		if n > 0 {
			s.chunkSize = n
		}
	}
}

func NewTurnStream(result *AgentResult, options ...StreamOption) *TurnStream {
	stream := &TurnStream{
		result:    result,
		chunkSize: DefaultChunkSize,
	}
	for _, opt := range options {
		opt(stream)
	}
	return stream
}

// Text yields the final text in fragments of at most chunkSize characters and
// yields to the scheduler after each one. Empty text yields a single "".
// The sequence can be consumed once; later iterations yield nothing.
func (s *TurnStream) Text() iter.Seq[string] {
	return func(yield func(string) bool) {
		if !s.started.CompareAndSwap(false, true) {
			return
		}

		text := s.result.FinalText
		if text == "" {
			yield("")
			return
		}
		for len(text) > 0 {
			n := chunkEnd(text, s.chunkSize)
			if !yield(text[:n]) {
				return
			}
			text = text[n:]
			runtime.Gosched()
		}
	}
}

func (s *TurnStream) FinalText() string {
	return s.result.FinalText
}

func (s *TurnStream) NewMessages() []llm.LLMMessage {
	return append([]llm.LLMMessage(nil), s.result.NewMessages...)
}

func (s *TurnStream) Diverged() bool {
	return s.result.Diverged
}

// Trace returns the tool activity of the turn followed by any diagnostics.
func (s *TurnStream) Trace() []ToolTraceEntry {
	trace := ExtractTrace(s.result.NewMessages)
	for _, d := range s.result.Diagnostics {
		trace = append(trace, ToolTraceEntry{
			Kind:    TraceKindDiagnostic,
			Name:    "agent",
			Payload: d,
		})
	}
	return trace
}

// ChunkText splits text into fragments of at most size characters.
func ChunkText(text string, size int) []string {
	if size < 1 {
		size = DefaultChunkSize
	}
	if text == "" {
		return []string{""}
	}
	var chunks []string
	for len(text) > 0 {
		n := chunkEnd(text, size)
		chunks = append(chunks, text[:n])
		text = text[n:]
	}
	return chunks
}

// chunkEnd returns the byte offset just past the first size runes of text.
func chunkEnd(text string, size int) int {
	count := 0
	for i := range text {
		if count == size {
			return i
		}
		count++
	}
	return len(text)
}
