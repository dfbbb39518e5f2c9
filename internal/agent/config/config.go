package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"weather-chatbot/internal/agent/llm"
)

var ErrInvalidEnv = errors.New("invalid environment variable")

type Config struct {
	LLM     *llm.LLMConfig
	Weather *WeatherConfig
	Agent   *AgentConfig
	Log     *LogConfig
}

type WeatherConfig struct {
	// APIKey may be empty; weather tools then report the missing key to the
	// model instead of failing at startup.
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

type AgentConfig struct {
	MaxIterations int
	ChunkSize     int
	MetricsAddr   string
}

type LogConfig struct {
	Level  string
	Format string
}

// NewConfig loads envFiles (".env" when none are given) and reads the
// configuration from the environment. Missing env files are not an error.
func NewConfig(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil {
		logrus.WithError(err).Debug("no .env file loaded")
	}

	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	llmTemperature, err := getEnvFloat("LLM_TEMPERATURE", 0.0)
	collect(err)
	llmTimeout, err := getEnvInt("LLM_TIMEOUT_SECONDS", 60)
	collect(err)
	weatherTimeout, err := getEnvInt("WEATHER_TIMEOUT_SECONDS", 10)
	collect(err)
	maxIterations, err := getEnvInt("AGENT_MAX_ITERATIONS", 8)
	collect(err)
	chunkSize, err := getEnvInt("STREAM_CHUNK_SIZE", 48)
	collect(err)

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	return &Config{
		LLM: &llm.LLMConfig{
			Type:        llm.LLMType(getEnvStr("LLM_TYPE", string(llm.LLMTypeOpenAI))),
			APIKey:      getEnvStr("LLM_API_KEY", llm.DefaultOllamaAPIKey),
			BaseURL:     getEnvStr("LLM_BASE_URL", getEnvStr("OLLAMA_BASE_URL", llm.DefaultOllamaBaseURL)),
			Model:       getEnvStr("LLM_MODEL", "qwen3"),
			Temperature: llmTemperature,
			Timeout:     time.Duration(llmTimeout) * time.Second,
		},
		Weather: &WeatherConfig{
			APIKey:  os.Getenv("WEATHER_API_KEY"),
			BaseURL: getEnvStr("WEATHER_API_BASE_URL", "http://api.weatherapi.com/v1"),
			Timeout: time.Duration(weatherTimeout) * time.Second,
		},
		Agent: &AgentConfig{
			MaxIterations: maxIterations,
			ChunkSize:     chunkSize,
			MetricsAddr:   os.Getenv("METRICS_ADDR"),
		},
		Log: &LogConfig{
			Level:  getEnvStr("LOG_LEVEL", "info"),
			Format: getEnvStr("LOG_FORMAT", "text"),
		},
	}, nil
}

// getEnvStr returns the value of an environment variable or a default value if it's not set
func getEnvStr(envVar string, defaultValue string) string {
	v := os.Getenv(envVar)
	if v == "" {
		return defaultValue
	}
	return v
}

// getEnvInt returns the value of an environment variable as an integer or a default value if it's not set
func getEnvInt(envVar string, defaultValue int) (int, error) {
	v := os.Getenv(envVar)
	if v == "" {
		return defaultValue, nil
	}

	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer, got %q", ErrInvalidEnv, envVar, v)
	}
	return i, nil
}

// getEnvFloat returns the value of an environment variable as a float64 or a default value if it's not set
func getEnvFloat(envVar string, defaultValue float64) (float64, error) {
	v := os.Getenv(envVar)
	if v == "" {
		return defaultValue, nil
	}

	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a float, got %q", ErrInvalidEnv, envVar, v)
	}
	return f, nil
}
