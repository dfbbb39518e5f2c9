package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/invopop/jsonschema"

	"weather-chatbot/internal/agent/llm"
)

const (
	CurrentWeatherToolName  = "current_weather"
	ForecastWeatherToolName = "forecast_weather"
)

// Provider is the capability the weather tools delegate to. *Client
// implements it.
type Provider interface {
	Current(ctx context.Context, city string) (*CurrentWeather, error)
	Forecast(ctx context.Context, city string, days int) (*Forecast, error)
}

type CurrentWeatherArgs struct {
	City string `json:"city" jsonschema:"minLength=1,description=City name to look up"`
}

type ForecastWeatherArgs struct {
	City string `json:"city" jsonschema:"minLength=1,description=City name to look up"`
	Days *ForecastDays `json:"days,omitempty" jsonschema:"description=Number of days for forecast"`
}

// ForecastDays is a day count given either as a JSON integer or as a string
// holding one, e.g. 3 or "3".
type ForecastDays int

func (ForecastDays) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		AnyOf: []*jsonschema.Schema{
			{Type: "integer"},
			{Type: "string", Pattern: `^\s*-?[0-9]+\s*$`},
		},
		Default: DefaultForecastDays,
	}
}

func (d *ForecastDays) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*d = ForecastDays(n)
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("days must be an integer, got %s", data)
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("days must be an integer, got %q", s)
	}
	*d = ForecastDays(n)
	return nil
}

// NewTools builds the current_weather and forecast_weather tools on top of
// provider.
func NewTools(provider Provider) ([]llm.LLMTool, error) {
	currentSchema, err := llm.SchemaFor[CurrentWeatherArgs]()
	if err != nil {
		return nil, err
	}
	forecastSchema, err := llm.SchemaFor[ForecastWeatherArgs]()
	if err != nil {
		return nil, err
	}

	current := llm.NewLLMTool(
		llm.WithLLMToolName(CurrentWeatherToolName),
		llm.WithLLMToolDescription("Get current weather and air quality for a city. "+
			"Input: city name. Output includes temperature_c, humidity, wind_kph, air_quality."),
		llm.WithLLMToolParametersSchema(currentSchema),
		llm.WithLLMToolCall(func(ctx context.Context, _ string, args map[string]any) (any, error) {
			in, err := llm.DecodeArgs[CurrentWeatherArgs](args)
			if err != nil {
				return nil, err
			}
			city, err := requireCity(in.City)
			if err != nil {
				return nil, err
			}
			res, err := provider.Current(ctx, city)
			if err != nil {
				return asError(err), nil
			}
			return res, nil
		}),
	)

	forecast := llm.NewLLMTool(
		llm.WithLLMToolName(ForecastWeatherToolName),
		llm.WithLLMToolDescription("Get forecast weather and air quality for a city over a number of days. "+
			"Input: city name and days (default 3). Output includes temperature_c, humidity, "+
			"wind_kph, air_quality for each day."),
		llm.WithLLMToolParametersSchema(forecastSchema),
		llm.WithLLMToolCall(func(ctx context.Context, _ string, args map[string]any) (any, error) {
			in, err := llm.DecodeArgs[ForecastWeatherArgs](args)
			if err != nil {
				return nil, err
			}
			city, err := requireCity(in.City)
			if err != nil {
				return nil, err
			}
			days := DefaultForecastDays
			if in.Days != nil {
				days = int(*in.Days)
			}
			res, err := provider.Forecast(ctx, city, ClampDays(days))
			if err != nil {
				return asError(err), nil
			}
			return res, nil
		}),
	)

	return []llm.LLMTool{current, forecast}, nil
}

func requireCity(city string) (string, error) {
	city = strings.TrimSpace(city)
	if city == "" {
		return "", fmt.Errorf("%w: city cannot be empty", llm.ErrInvalidArguments)
	}
	return city, nil
}

func asError(err error) *Error {
	var weatherErr *Error
	if errors.As(err, &weatherErr) {
		return weatherErr
	}
	return newError(KindTransport, fmt.Sprintf("Weather API request failed: %s", err))
}
