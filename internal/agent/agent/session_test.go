package agent_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"weather-chatbot/internal/agent/agent"
	"weather-chatbot/internal/agent/llm"
	"weather-chatbot/internal/agent/llm/mock"
	"weather-chatbot/internal/weather"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionKeepsHistory(t *testing.T) {
	// given
	model := &mock.LLM{Responses: []llm.LLMMessage{
		mock.ToolRequest("call_1", weather.CurrentWeatherToolName, map[string]any{"city": "Madrid"}),
		mock.Answer("Sunny in Madrid."),
		mock.Answer("Tomorrow looks similar."),
	}}
	weatherAgent, _ := createWeatherAgent(t, model)
	session := agent.NewSession(weatherAgent)

	// when
	first, err := session.Send(context.Background(), "Weather in Madrid?")
	require.NoError(t, err)
	afterFirst := len(session.History())
	second, err := session.Send(context.Background(), "And tomorrow?")
	require.NoError(t, err)

	// then
	assert.Equal(t, 4, afterFirst)
	assert.Len(t, session.History(), 6)
	assert.Equal(t, "Sunny in Madrid.", strings.Join(collect(first), ""))
	assert.Equal(t, "Tomorrow looks similar.", second.FinalText())

	thirdCall := model.Calls()[2]
	require.Len(t, thirdCall, 6, "system prompt, first turn and the new question")
	assert.Equal(t, llm.UserMessage{Content: "And tomorrow?"}, thirdCall[5])
}

func TestSessionFailureLeavesHistory(t *testing.T) {
	// given
	fail := false
	model := &mock.LLM{CallFn: func(context.Context, []llm.LLMMessage) (llm.LLMMessage, error) {
		if fail {
			return nil, errors.New("model unavailable")
		}
		return mock.Answer("Sunny."), nil
	}}
	weatherAgent, _ := createWeatherAgent(t, model)
	session := agent.NewSession(weatherAgent)
	_, err := session.Send(context.Background(), "Weather in Madrid?")
	require.NoError(t, err)
	before := session.History()

	// when
	fail = true
	stream, err := session.Send(context.Background(), "And Barcelona?")

	// then
	require.ErrorIs(t, err, agent.ErrLLMCall)
	assert.Nil(t, stream)
	assert.Equal(t, before, session.History())
}

func TestSessionReset(t *testing.T) {
	model := &mock.LLM{CallFn: func(context.Context, []llm.LLMMessage) (llm.LLMMessage, error) {
		return mock.Answer("Sunny."), nil
	}}
	weatherAgent, _ := createWeatherAgent(t, model)
	session := agent.NewSession(weatherAgent, agent.WithHistory(llm.UserMessage{Content: "Hi"}, llm.AssistantMessage{Content: "Hello"}))
	require.Len(t, session.History(), 2)

	session.Reset()
	_, err := session.Send(context.Background(), "Weather in Madrid?")

	require.NoError(t, err)
	assert.Len(t, session.History(), 2)
	assert.Len(t, model.Calls()[0], 2, "only the system prompt and the new question")
}

func TestSessionChunkSize(t *testing.T) {
	model := &mock.LLM{Responses: []llm.LLMMessage{mock.Answer("abcdefgh")}}
	weatherAgent, _ := createWeatherAgent(t, model)
	session := agent.NewSession(weatherAgent, agent.WithSessionChunkSize(3))

	stream, err := session.Send(context.Background(), "q")

	require.NoError(t, err)
	assert.Equal(t, []string{"abc", "def", "gh"}, collect(stream))
}

func TestConversation(t *testing.T) {
	conversation := agent.NewConversation(llm.UserMessage{Content: "a"})
	conversation.Append(llm.AssistantMessage{Content: "b"})

	msgs := conversation.Messages()
	msgs[0] = llm.UserMessage{Content: "changed"}

	assert.Equal(t, 2, conversation.Len())
	assert.Equal(t, llm.UserMessage{Content: "a"}, conversation.Messages()[0])

	conversation.Reset()
	assert.Zero(t, conversation.Len())
}
