package agent

import (
	"bytes"
	"fmt"
	"text/template"
)

// RefusalSentence is the exact reply for questions that are not about weather.
const RefusalSentence = "I can only answer weather related matters."

const defaultForecastDays = 3

var weatherPromptTemplate = NewPrompt(`You are a weather assistant. You only answer weather-related questions about ` +
	`current conditions or forecasts. If asked anything else, reply exactly: {{.refusal}} ` +
	`Always use the tools to get live data. Use Celsius, wind in kph, humidity percent, ` +
	`and include air quality metrics from the tool results. If the user does not ` +
	`specify the number of days for a forecast, default to {{.default_days}}. ` +
	`Always respond in a friendly and concise manner, in the language of the user.`)

func defaultPromptArgs() map[string]any {
	return map[string]any{
		"refusal":      RefusalSentence,
		"default_days": defaultForecastDays,
	}
}

type Prompt struct {
	Template string `json:"template"`
}

func NewPrompt(template string) Prompt {
	return Prompt{
		Template: template,
	}
}

func (p Prompt) Render(args map[string]any) (string, error) {
	tmpl, err := template.New("prompt").Option("missingkey=error").Parse(p.Template)
	if err != nil {
		return "", fmt.Errorf("failed to parse prompt template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, args); err != nil {
		return "", fmt.Errorf("failed to execute prompt template: %w", err)
	}

	return buf.String(), nil
}
