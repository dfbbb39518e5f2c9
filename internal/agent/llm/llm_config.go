package llm

import "time"

type LLMType string

const (
	LLMTypeOpenAI LLMType = "openai"
	// LLMTypeOllama talks to Ollama through its OpenAI compatible endpoint.
	LLMTypeOllama LLMType = "ollama"
)

const (
	DefaultOllamaBaseURL = "http://localhost:11434/v1"
	DefaultOllamaAPIKey  = "ollama"
)

type LLMConfig struct {
	Type        LLMType       `json:"type"`
	APIKey      string        `json:"api_key"`
	BaseURL     string        `json:"base_url"`
	Model       string        `json:"model"`
	Temperature float64       `json:"temperature"`
	Timeout     time.Duration `json:"timeout"`
}
