package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"weather-chatbot/internal/agent/llm"
	"weather-chatbot/internal/observability"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	ErrLLMCall           = errors.New("LLM call error occurred")
	ErrUnexpectedMessage = errors.New("LLM returned an unexpected message")
	ErrEmptySystemPrompt = errors.New("system prompt cannot be empty")
	ErrInvalidOption     = errors.New("invalid agent option")
)

const DefaultMaxIterations = 8

type Agent struct {
	name          string
	llm           llm.LLM
	llmConfig     llm.LLMConfig
	tools         []llm.LLMTool
	registry      *llm.ToolRegistry
	systemPrompt  Prompt
	promptArgs    map[string]any
	prompt        string
	maxIterations int
	log           logrus.FieldLogger
	metrics       *observability.Metrics
}

type AgentOption func(*Agent)

// NewAgent builds the agent and, unless WithLLM injected one, the model
// client for its LLM config. A failure here means the process cannot serve
// any turn.
func NewAgent(options ...AgentOption) (*Agent, error) {
	agent := &Agent{
		name:          "weather",
		systemPrompt:  weatherPromptTemplate,
		promptArgs:    defaultPromptArgs(),
		maxIterations: DefaultMaxIterations,
		log:           logrus.StandardLogger(),
	}
	for _, opt := range options {
		opt(agent)
	}

	if agent.maxIterations < 1 {
		return nil, fmt.Errorf("%w: max iterations must be positive, got %d", ErrInvalidOption, agent.maxIterations)
	}

	registry, err := llm.NewToolRegistry(agent.tools...)
	if err != nil {
		return nil, err
	}
	agent.registry = registry

	prompt, err := agent.systemPrompt.Render(agent.promptArgs)
	if err != nil {
		return nil, fmt.Errorf("failed to create system prompt: %w", err)
	}
	if prompt == "" {
		return nil, ErrEmptySystemPrompt
	}
	agent.prompt = prompt

	if agent.llm == nil {
		agentLLM, err := llm.CreateLLM(agent.llmConfig, registry.Tools())
		if err != nil {
			return nil, err
		}
		agent.llm = agentLLM
	}

	return agent, nil
}

func WithName(name string) AgentOption {
	return func(a *Agent) {
		a.name = name
	}
}

func WithLLMConfig(config llm.LLMConfig) AgentOption {
	return func(a *Agent) {
		a.llmConfig = config
	}
}

// WithLLM uses the given model instead of building one from the LLM config.
func WithLLM(model llm.LLM) AgentOption {
	return func(a *Agent) {
		a.llm = model
	}
}

func WithSystemPrompt(prompt Prompt, args map[string]any) AgentOption {
	return func(a *Agent) {
		a.systemPrompt = prompt
		a.promptArgs = args
	}
}

func WithTool(tool llm.LLMTool) AgentOption {
	return func(a *Agent) {
		a.tools = append(a.tools, tool)
	}
}

func WithTools(tools []llm.LLMTool) AgentOption {
	return func(a *Agent) {
		a.tools = append(a.tools, tools...)
	}
}

// WithMaxIterations caps the model calls of one turn.
func WithMaxIterations(n int) AgentOption {
	return func(a *Agent) {
		a.maxIterations = n
	}
}

func WithLogger(log logrus.FieldLogger) AgentOption {
	return func(a *Agent) {
		a.log = log
	}
}

func WithMetrics(metrics *observability.Metrics) AgentOption {
	return func(a *Agent) {
		a.metrics = metrics
	}
}

func (a *Agent) Name() string {
	return a.name
}

func (a *Agent) SystemPrompt() string {
	return a.prompt
}

func (a *Agent) Tools() []llm.LLMTool {
	return a.registry.Tools()
}

type turnPhase int

const (
	phaseAwaitingModel turnPhase = iota
	phaseExecutingTools
	phaseDone
)

// AgentState is the working conversation of one turn: a private copy of the
// prior history followed by everything the turn appends.
type AgentState struct {
	Messages   []llm.LLMMessage
	historyLen int
	phase      turnPhase
	pending    []llm.LLMToolCall
	iterations int
	callIDs    map[string]struct{}
	diagnostic string
}

func newAgentState(history []llm.LLMMessage, input string) *AgentState {
	messages := make([]llm.LLMMessage, 0, len(history)+4)
	messages = append(messages, history...)
	return &AgentState{
		Messages:   append(messages, llm.UserMessage{Content: input}),
		historyLen: len(history),
		phase:      phaseAwaitingModel,
		callIDs:    make(map[string]struct{}),
	}
}

func (a *AgentState) AddMessage(msg llm.LLMMessage) {
	a.Messages = append(a.Messages, msg)
}

// NewMessages is the suffix appended since the turn started, including the
// user message.
func (a *AgentState) NewMessages() []llm.LLMMessage {
	return append([]llm.LLMMessage(nil), a.Messages[a.historyLen:]...)
}

// Run executes one turn: it asks the model, runs any requested tools, and
// repeats until the model answers without tool calls or the iteration cap is
// hit. history is never modified.
func (a *Agent) Run(ctx context.Context, history []llm.LLMMessage, input string) (*AgentResult, error) {
	state := newAgentState(history, input)
	log := a.log.WithFields(logrus.Fields{
		"agent": a.name,
		"turn":  uuid.NewString(),
	})
	start := time.Now()
	log.WithField("history", len(history)).Debug("turn started")

	for state.phase != phaseDone {
		var err error
		switch state.phase {
		case phaseAwaitingModel:
			err = a.awaitModel(ctx, state, log)
		case phaseExecutingTools:
			a.executeTools(ctx, state, log)
		}
		if err != nil {
			outcome := observability.OutcomeFailed
			if ctx.Err() != nil {
				outcome = observability.OutcomeCancelled
			}
			a.metrics.RecordTurn(outcome, state.iterations, time.Since(start))
			log.WithError(err).WithField("iterations", state.iterations).Warn("turn failed")
			return nil, err
		}
	}

	result := newAgentResult(state)
	outcome := observability.OutcomeCompleted
	if result.Diverged {
		outcome = observability.OutcomeDiverged
	}
	a.metrics.RecordTurn(outcome, result.Iterations, time.Since(start))
	log.WithFields(logrus.Fields{
		"iterations":   result.Iterations,
		"new_messages": len(result.NewMessages),
		"diverged":     result.Diverged,
		"duration_ms":  time.Since(start).Milliseconds(),
	}).Info("turn completed")

	return result, nil
}

func (a *Agent) awaitModel(ctx context.Context, state *AgentState, log logrus.FieldLogger) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("turn cancelled: %w", err)
	}

	msgs := make([]llm.LLMMessage, 0, len(state.Messages)+1)
	msgs = append(msgs, llm.SystemMessage{Content: a.prompt})
	msgs = append(msgs, state.Messages...)

	llmMessage, err := a.llm.Call(ctx, msgs)
	a.metrics.RecordModelCall(err)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrLLMCall, err)
	}
	state.iterations++

	assistant, ok := llmMessage.(llm.AssistantMessage)
	if !ok {
		return fmt.Errorf("%w: %T", ErrUnexpectedMessage, llmMessage)
	}
	assistant.ToolCalls = normalizeToolCalls(assistant.ToolCalls, state.callIDs)
	state.AddMessage(assistant)

	log.WithFields(logrus.Fields{
		"iteration":  state.iterations,
		"tool_calls": len(assistant.ToolCalls),
	}).Debug("model responded")

	if len(assistant.ToolCalls) == 0 {
		state.phase = phaseDone
		return nil
	}
	state.pending = assistant.ToolCalls
	state.phase = phaseExecutingTools
	return nil
}

// executeTools answers every pending call in order. Tool failures come back
// as error shaped results and never stop the turn.
func (a *Agent) executeTools(ctx context.Context, state *AgentState, log logrus.FieldLogger) {
	for _, call := range state.pending {
		start := time.Now()
		result, err := a.registry.Execute(ctx, call)
		a.metrics.RecordToolCall(a.toolLabel(call.ToolName), err)

		toolLog := log.WithFields(logrus.Fields{
			"tool":        call.ToolName,
			"tool_call":   call.ID,
			"duration_ms": time.Since(start).Milliseconds(),
		})
		if err != nil {
			toolLog.WithError(err).Warn("tool call rejected")
		} else {
			toolLog.Debug("tool call executed")
		}
		state.AddMessage(result)
	}
	state.pending = nil

	if state.iterations >= a.maxIterations {
		state.diagnostic = fmt.Sprintf("iteration limit reached: the model still requested tools after %d calls, turn ended early", state.iterations)
		log.WithField("max_iterations", a.maxIterations).Warn("turn diverged")
		state.phase = phaseDone
		return
	}
	state.phase = phaseAwaitingModel
}

// toolLabel keeps metric label values bounded to the registered tool names.
func (a *Agent) toolLabel(name string) string {
	if a.registry.Has(name) {
		return name
	}
	return observability.UnknownTool
}

// normalizeToolCalls gives every call an id that is unique within the turn.
// Some OpenAI compatible backends omit ids or reuse them.
func normalizeToolCalls(calls []llm.LLMToolCall, seen map[string]struct{}) []llm.LLMToolCall {
	if len(calls) == 0 {
		return nil
	}
	out := make([]llm.LLMToolCall, len(calls))
	for i, call := range calls {
		if _, dup := seen[call.ID]; call.ID == "" || dup {
			call.ID = "call_" + uuid.NewString()
		}
		seen[call.ID] = struct{}{}
		out[i] = call
	}
	return out
}
