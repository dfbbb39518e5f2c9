package llm

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrUnsupportedLLMType = errors.New("unsupported LLM type")
	ErrInvalidLLMConfig   = errors.New("invalid LLM config")
)

// LLM performs one model invocation. The returned message is always an
// AssistantMessage.
type LLM interface {
	Call(ctx context.Context, msgs []LLMMessage) (LLMMessage, error)
}

func CreateLLM(cfg LLMConfig, tools []LLMTool) (LLM, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: model cannot be empty", ErrInvalidLLMConfig)
	}

	switch cfg.Type {
	case LLMTypeOpenAI, "":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("%w: api key cannot be empty", ErrInvalidLLMConfig)
		}
		return newOpenAILLM(
			withOpenAIClient(cfg.APIKey, cfg.BaseURL, cfg.Timeout),
			withOpenAILLMModel(cfg.Model),
			withOpenAILLMTemperature(cfg.Temperature),
			withOpenAITools(tools),
		), nil
	case LLMTypeOllama:
		apiKey, baseURL := cfg.APIKey, cfg.BaseURL
		if apiKey == "" {
			apiKey = DefaultOllamaAPIKey
		}
		if baseURL == "" {
			baseURL = DefaultOllamaBaseURL
		}
		return newOpenAILLM(
			withOpenAIClient(apiKey, baseURL, cfg.Timeout),
			withOpenAILLMModel(cfg.Model),
			withOpenAILLMTemperature(cfg.Temperature),
			withOpenAITools(tools),
		), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLLMType, cfg.Type)
	}
}
