package agent_test

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"weather-chatbot/internal/agent/agent"
	"weather-chatbot/internal/agent/llm"
	"weather-chatbot/internal/agent/llm/mock"
	"weather-chatbot/internal/observability"
	"weather-chatbot/internal/weather"
	"weather-chatbot/internal/weather/weathertest"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func createWeatherTools(t *testing.T, server *weathertest.Server) []llm.LLMTool {
	t.Helper()
	client := weather.NewClient(
		weather.WithBaseURL(server.URL),
		weather.WithAPIKey(weathertest.APIKey),
		weather.WithLogger(quietLogger()),
	)
	tools, err := weather.NewTools(client)
	require.NoError(t, err)
	return tools
}

func createWeatherAgent(t *testing.T, model llm.LLM, options ...agent.AgentOption) (*agent.Agent, *weathertest.Server) {
	t.Helper()
	server := weathertest.NewServer()
	t.Cleanup(server.Close)

	base := []agent.AgentOption{
		agent.WithLLM(model),
		agent.WithTools(createWeatherTools(t, server)),
		agent.WithLogger(quietLogger()),
	}
	weatherAgent, err := agent.NewAgent(append(base, options...)...)
	require.NoError(t, err, "Failed to create agent")
	return weatherAgent, server
}

func TestCurrentWeatherTurn(t *testing.T) {
	// given
	model := &mock.LLM{Responses: []llm.LLMMessage{
		mock.ToolRequest("call_1", weather.CurrentWeatherToolName, map[string]any{"city": "Madrid"}),
		mock.Answer("It is 21.5°C and sunny in Madrid."),
	}}
	weatherAgent, server := createWeatherAgent(t, model)

	// when
	result, err := weatherAgent.Run(context.Background(), nil, "What is the current weather in Madrid?")

	// then
	require.NoError(t, err)
	require.Len(t, result.NewMessages, 4)
	assert.Equal(t, llm.UserMessage{Content: "What is the current weather in Madrid?"}, result.NewMessages[0])
	assert.True(t, llm.HasToolCalls(result.NewMessages[1]))

	toolResult, ok := result.NewMessages[2].(llm.ToolResultMessage)
	require.True(t, ok)
	assert.Equal(t, "call_1", toolResult.ToolCallID)
	assert.Contains(t, toolResult.Content, `"temperature_c":21.5`)

	final, ok := result.NewMessages[3].(llm.AssistantMessage)
	require.True(t, ok)
	assert.Empty(t, final.ToolCalls)
	assert.Equal(t, "It is 21.5°C and sunny in Madrid.", result.FinalText)
	assert.Equal(t, 2, result.Iterations)
	assert.False(t, result.Diverged)
	assert.Equal(t, 1, server.Requests())

	trace := agent.ExtractTrace(result.NewMessages)
	require.Len(t, trace, 2)
	assert.Equal(t, agent.TraceKindToolCall, trace[0].Kind)
	assert.Equal(t, weather.CurrentWeatherToolName, trace[0].Name)
	assert.Equal(t, map[string]any{"city": "Madrid"}, trace[0].Payload)
	assert.Equal(t, agent.TraceKindToolReturn, trace[1].Kind)
	assert.Equal(t, weather.CurrentWeatherToolName, trace[1].Name)
	payload, ok := trace[1].Payload.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, weathertest.CurrentTempC, payload["temperature_c"])
}

func TestForecastTurn(t *testing.T) {
	// given
	model := &mock.LLM{Responses: []llm.LLMMessage{
		mock.ToolRequest("call_1", weather.ForecastWeatherToolName, map[string]any{"city": "Barcelona", "days": 3.0}),
		mock.Answer("Here is the 3 day forecast for Barcelona."),
	}}
	weatherAgent, server := createWeatherAgent(t, model)

	// when
	result, err := weatherAgent.Run(context.Background(), nil, "Give me the 3 day forecast for Barcelona.")

	// then
	require.NoError(t, err)
	assert.Equal(t, "3", server.LastQuery().Get("days"))

	trace := agent.ExtractTrace(result.NewMessages)
	require.Len(t, trace, 2)
	payload, ok := trace[1].Payload.(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 3, payload["days"])
	forecast, ok := payload["forecast"].([]any)
	require.True(t, ok)
	assert.Len(t, forecast, 3)
}

func TestModelSeesSystemPromptAndToolResults(t *testing.T) {
	// given
	model := &mock.LLM{Responses: []llm.LLMMessage{
		mock.ToolRequest("call_1", weather.CurrentWeatherToolName, map[string]any{"city": "Madrid"}),
		mock.Answer("Sunny."),
	}}
	weatherAgent, _ := createWeatherAgent(t, model)
	history := []llm.LLMMessage{
		llm.UserMessage{Content: "Hi"},
		llm.AssistantMessage{Content: "Hello! Ask me about the weather."},
	}

	// when
	result, err := weatherAgent.Run(context.Background(), history, "And Madrid?")

	// then
	require.NoError(t, err)
	calls := model.Calls()
	require.Len(t, calls, 2)

	first := calls[0]
	require.Len(t, first, 4)
	assert.Equal(t, llm.SystemMessage{Content: weatherAgent.SystemPrompt()}, first[0])
	assert.Equal(t, history[0], first[1])
	assert.Equal(t, history[1], first[2])
	assert.Equal(t, llm.UserMessage{Content: "And Madrid?"}, first[3])

	second := calls[1]
	require.Len(t, second, 6)
	assert.IsType(t, llm.ToolResultMessage{}, second[5])

	assert.Len(t, history, 2, "history passed in must not be modified")
	assert.Len(t, result.NewMessages, 4)
}

func TestOffTopicQuestion(t *testing.T) {
	// given
	model := &mock.LLM{Responses: []llm.LLMMessage{mock.Answer(agent.RefusalSentence)}}
	weatherAgent, server := createWeatherAgent(t, model)

	// when
	result, err := weatherAgent.Run(context.Background(), nil, "Who won the 2010 World Cup?")

	// then
	require.NoError(t, err)
	assert.Equal(t, agent.RefusalSentence, result.FinalText)
	assert.Empty(t, agent.ExtractTrace(result.NewMessages))
	assert.Equal(t, 1, result.Iterations)
	assert.Zero(t, server.Requests())
}

func TestSystemPrompt(t *testing.T) {
	weatherAgent, _ := createWeatherAgent(t, &mock.LLM{})

	prompt := weatherAgent.SystemPrompt()

	assert.Contains(t, prompt, "reply exactly: "+agent.RefusalSentence)
	assert.Contains(t, prompt, "default to 3")
	assert.NotContains(t, prompt, "{{")
	assert.Equal(t, "weather", weatherAgent.Name())
	names := make([]string, 0, 2)
	for _, tool := range weatherAgent.Tools() {
		names = append(names, tool.Name)
	}
	assert.Equal(t, []string{weather.CurrentWeatherToolName, weather.ForecastWeatherToolName}, names)
}

func TestIterationLimit(t *testing.T) {
	// given
	model := &mock.LLM{CallFn: func(context.Context, []llm.LLMMessage) (llm.LLMMessage, error) {
		return mock.ToolRequest("call_loop", weather.CurrentWeatherToolName, map[string]any{"city": "Madrid"}), nil
	}}
	weatherAgent, _ := createWeatherAgent(t, model, agent.WithMaxIterations(3))

	// when
	result, err := weatherAgent.Run(context.Background(), nil, "Weather in Madrid, forever")

	// then
	require.NoError(t, err)
	assert.Equal(t, 3, model.CallCount())
	assert.Equal(t, 3, result.Iterations)
	assert.True(t, result.Diverged)
	require.Len(t, result.Diagnostics, 1)
	assert.Contains(t, result.Diagnostics[0], "iteration limit")
	assert.Empty(t, result.FinalText)
	require.Len(t, result.NewMessages, 7)
	assertEveryCallAnswered(t, result.NewMessages)
}

func TestIterationLimitKeepsBestText(t *testing.T) {
	// given
	model := &mock.LLM{CallFn: func(_ context.Context, msgs []llm.LLMMessage) (llm.LLMMessage, error) {
		request := mock.ToolRequest("call_loop", weather.CurrentWeatherToolName, map[string]any{"city": "Madrid"})
		if len(msgs) == 2 {
			request.Content = "Let me check Madrid for you."
		}
		return request, nil
	}}
	weatherAgent, _ := createWeatherAgent(t, model, agent.WithMaxIterations(2))

	// when
	result, err := weatherAgent.Run(context.Background(), nil, "Weather in Madrid?")

	// then
	require.NoError(t, err)
	assert.True(t, result.Diverged)
	assert.Equal(t, 2, result.Iterations)
	assert.Equal(t, "Let me check Madrid for you.", result.FinalText)
	assert.Empty(t, result.NewMessages[3].(llm.AssistantMessage).Content, "the last request carries no text")
	assertEveryCallAnswered(t, result.NewMessages)
}

func TestToolCallIDsAreNormalized(t *testing.T) {
	// given
	model := &mock.LLM{Responses: []llm.LLMMessage{
		llm.AssistantMessage{ToolCalls: []llm.LLMToolCall{
			llm.NewLLMToolCall("", weather.CurrentWeatherToolName, map[string]any{"city": "Madrid"}),
			llm.NewLLMToolCall("same", weather.ForecastWeatherToolName, map[string]any{"city": "Barcelona"}),
			llm.NewLLMToolCall("same", weather.CurrentWeatherToolName, map[string]any{"city": "Valencia"}),
		}},
		mock.Answer("Done."),
	}}
	weatherAgent, server := createWeatherAgent(t, model)

	// when
	result, err := weatherAgent.Run(context.Background(), nil, "Madrid, Barcelona and Valencia please")

	// then
	require.NoError(t, err)
	require.Len(t, result.NewMessages, 6)
	assert.Equal(t, 3, server.Requests())

	request := result.NewMessages[1].(llm.AssistantMessage)
	seen := make(map[string]struct{})
	for _, call := range request.ToolCalls {
		require.NotEmpty(t, call.ID)
		_, dup := seen[call.ID]
		require.False(t, dup, "duplicate id %s", call.ID)
		seen[call.ID] = struct{}{}
	}
	assert.Equal(t, "same", request.ToolCalls[1].ID)

	for i, call := range request.ToolCalls {
		toolResult := result.NewMessages[2+i].(llm.ToolResultMessage)
		assert.Equal(t, call.ID, toolResult.ToolCallID)
		assert.Equal(t, call.ToolName, toolResult.ToolName)
	}
	assertEveryCallAnswered(t, result.NewMessages)
}

func TestToolErrorsAreReturnedToModel(t *testing.T) {
	tests := []struct {
		name     string
		request  llm.AssistantMessage
		expected string
	}{
		{
			name:     "missing city",
			request:  mock.ToolRequest("call_1", weather.ForecastWeatherToolName, map[string]any{"days": 3}),
			expected: "invalid arguments",
		},
		{
			name:     "unknown tool",
			request:  mock.ToolRequest("call_1", "get_stock_price", map[string]any{"ticker": "ACME"}),
			expected: "tool not found: get_stock_price",
		},
		{
			name:     "upstream error",
			request:  mock.ToolRequest("call_1", weather.CurrentWeatherToolName, map[string]any{"city": weathertest.UnknownCity}),
			expected: "No matching location found.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// given
			model := &mock.LLM{Responses: []llm.LLMMessage{tt.request, mock.Answer("Sorry, I could not find that.")}}
			weatherAgent, _ := createWeatherAgent(t, model)

			// when
			result, err := weatherAgent.Run(context.Background(), nil, "question")

			// then
			require.NoError(t, err, "tool failures never fail the turn")
			require.Len(t, result.NewMessages, 4)
			toolResult := result.NewMessages[2].(llm.ToolResultMessage)
			assert.Contains(t, toolResult.Content, `"error"`)
			assert.Contains(t, toolResult.Content, tt.expected)
			assert.Equal(t, "Sorry, I could not find that.", result.FinalText)
			assert.Equal(t, 2, model.CallCount())
		})
	}
}

func TestLLMFailureFailsTurn(t *testing.T) {
	model := &mock.LLM{CallFn: func(context.Context, []llm.LLMMessage) (llm.LLMMessage, error) {
		return nil, errors.New("connection refused")
	}}
	weatherAgent, _ := createWeatherAgent(t, model)

	result, err := weatherAgent.Run(context.Background(), nil, "Weather in Madrid?")

	require.ErrorIs(t, err, agent.ErrLLMCall)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Nil(t, result)
}

func TestUnexpectedModelMessage(t *testing.T) {
	model := &mock.LLM{Responses: []llm.LLMMessage{llm.UserMessage{Content: "echo"}}}
	weatherAgent, _ := createWeatherAgent(t, model)

	_, err := weatherAgent.Run(context.Background(), nil, "Weather in Madrid?")

	assert.ErrorIs(t, err, agent.ErrUnexpectedMessage)
}

func TestCancelledContextSkipsModel(t *testing.T) {
	model := &mock.LLM{Responses: []llm.LLMMessage{mock.Answer("never")}}
	weatherAgent, _ := createWeatherAgent(t, model)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := weatherAgent.Run(ctx, nil, "Weather in Madrid?")

	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, model.CallCount())
}

func TestCancellationBetweenIterations(t *testing.T) {
	// given
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	model := &mock.LLM{CallFn: func(context.Context, []llm.LLMMessage) (llm.LLMMessage, error) {
		cancel()
		return mock.ToolRequest("call_1", weather.CurrentWeatherToolName, map[string]any{"city": "Madrid"}), nil
	}}
	weatherAgent, _ := createWeatherAgent(t, model)

	// when
	_, err := weatherAgent.Run(ctx, nil, "Weather in Madrid?")

	// then
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, model.CallCount())
}

func TestTurnMetrics(t *testing.T) {
	// given
	metrics := observability.NewMetrics()
	model := &mock.LLM{Responses: []llm.LLMMessage{
		mock.ToolRequest("call_1", weather.CurrentWeatherToolName, map[string]any{"city": "Madrid"}),
		mock.Answer("Sunny."),
	}}
	weatherAgent, _ := createWeatherAgent(t, model, agent.WithMetrics(metrics))

	// when
	_, err := weatherAgent.Run(context.Background(), nil, "Weather in Madrid?")

	// then
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Turns.WithLabelValues(observability.OutcomeCompleted)))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.ModelCalls.WithLabelValues(observability.StatusOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ToolCalls.WithLabelValues(weather.CurrentWeatherToolName, observability.StatusOK)))
}

func TestUnknownToolMetricLabel(t *testing.T) {
	// given
	metrics := observability.NewMetrics()
	model := &mock.LLM{Responses: []llm.LLMMessage{
		llm.AssistantMessage{ToolCalls: []llm.LLMToolCall{
			llm.NewLLMToolCall("call_1", "get_stock_price", nil),
			llm.NewLLMToolCall("call_2", "launch_rocket", nil),
		}},
		mock.Answer("I can only answer weather related matters."),
	}}
	weatherAgent, _ := createWeatherAgent(t, model, agent.WithMetrics(metrics))

	// when
	_, err := weatherAgent.Run(context.Background(), nil, "Buy ACME")

	// then
	require.NoError(t, err)
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.ToolCalls.WithLabelValues(observability.UnknownTool, observability.StatusError)))
	assert.Equal(t, 1, testutil.CollectAndCount(metrics.ToolCalls), "invented tool names share one series")
}

func TestNewAgentErrors(t *testing.T) {
	tests := []struct {
		name     string
		options  []agent.AgentOption
		expected error
	}{
		{
			name:     "zero iterations",
			options:  []agent.AgentOption{agent.WithLLM(&mock.LLM{}), agent.WithMaxIterations(0)},
			expected: agent.ErrInvalidOption,
		},
		{
			name:     "empty system prompt",
			options:  []agent.AgentOption{agent.WithLLM(&mock.LLM{}), agent.WithSystemPrompt(agent.NewPrompt(""), nil)},
			expected: agent.ErrEmptySystemPrompt,
		},
		{
			name:     "no model configured",
			options:  []agent.AgentOption{agent.WithLLMConfig(llm.LLMConfig{Type: llm.LLMTypeOpenAI})},
			expected: llm.ErrInvalidLLMConfig,
		},
		{
			name: "duplicate tool",
			options: []agent.AgentOption{
				agent.WithLLM(&mock.LLM{}),
				agent.WithTool(llm.NewLLMTool(llm.WithLLMToolName("t"), llm.WithLLMToolCall(noop))),
				agent.WithTool(llm.NewLLMTool(llm.WithLLMToolName("t"), llm.WithLLMToolCall(noop))),
			},
			expected: llm.ErrToolRegistered,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := agent.NewAgent(append(tt.options, agent.WithLogger(quietLogger()))...)
			assert.ErrorIs(t, err, tt.expected)
		})
	}
}

func TestNewAgentPromptMissingArgument(t *testing.T) {
	_, err := agent.NewAgent(
		agent.WithLLM(&mock.LLM{}),
		agent.WithSystemPrompt(agent.NewPrompt("Reply with {{.refusal}}"), map[string]any{}),
	)

	assert.Error(t, err)
}

func TestWeatherAgentIntegration(t *testing.T) {
	// given
	model := os.Getenv("LLM_MODEL")
	weatherKey := os.Getenv("WEATHER_API_KEY")
	if model == "" || weatherKey == "" {
		t.Skip("LLM_MODEL and WEATHER_API_KEY must be set to run against live services")
	}

	tools, err := weather.NewTools(weather.NewClient(weather.WithAPIKey(weatherKey)))
	require.NoError(t, err)
	weatherAgent, err := agent.NewAgent(
		agent.WithLLMConfig(llm.LLMConfig{
			Type:    llm.LLMType(os.Getenv("LLM_TYPE")),
			APIKey:  os.Getenv("LLM_API_KEY"),
			BaseURL: os.Getenv("LLM_BASE_URL"),
			Model:   model,
		}),
		agent.WithTools(tools),
	)
	require.NoError(t, err, "Failed to create agent")

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	// when
	result, err := weatherAgent.Run(ctx, nil, "What is the current weather in Madrid?")

	// then
	require.NoError(t, err, "Agent run should not fail")
	assert.NotEmpty(t, result.FinalText)
	assertEveryCallAnswered(t, result.NewMessages)

	t.Logf("Agent answered in %d iterations: %s", result.Iterations, strings.TrimSpace(result.FinalText))
}

func noop(context.Context, string, map[string]any) (any, error) {
	return nil, nil
}

// assertEveryCallAnswered checks that each requested tool call is followed by
// exactly one result with the same id before the next model message.
func assertEveryCallAnswered(t *testing.T, msgs []llm.LLMMessage) {
	t.Helper()
	for i, msg := range msgs {
		request, ok := msg.(llm.AssistantMessage)
		if !ok || len(request.ToolCalls) == 0 {
			continue
		}
		require.GreaterOrEqual(t, len(msgs), i+1+len(request.ToolCalls))
		for j, call := range request.ToolCalls {
			toolResult, ok := msgs[i+1+j].(llm.ToolResultMessage)
			require.True(t, ok, "call %s has no result", call.ID)
			assert.Equal(t, call.ID, toolResult.ToolCallID)
		}
	}
}
