package weather

import (
	"bytes"
	"encoding/json"
)

type ErrorKind string

const (
	KindConfiguration ErrorKind = "configuration"
	KindTransport     ErrorKind = "transport"
	KindUpstream      ErrorKind = "upstream"
)

// Error is the single failure shape of the client. Message is safe to show
// to the model and the user.
type Error struct {
	Kind    ErrorKind `json:"-"`
	Message string    `json:"error"`
}

func newError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func (e *Error) Error() string {
	return e.Message
}

type Location struct {
	Name    *string `json:"name"`
	Region  *string `json:"region"`
	Country *string `json:"country"`
}

type CurrentWeather struct {
	Location     Location       `json:"location"`
	TemperatureC *float64       `json:"temperature_c"`
	Humidity     *float64       `json:"humidity"`
	WindKph      *float64       `json:"wind_kph"`
	AirQuality   map[string]any `json:"air_quality"`
}

type ForecastDay struct {
	Date         *string        `json:"date"`
	TemperatureC *float64       `json:"temperature_c"`
	Humidity     *float64       `json:"humidity"`
	WindKph      *float64       `json:"wind_kph"`
	AirQuality   map[string]any `json:"air_quality"`
}

type Forecast struct {
	Location Location      `json:"location"`
	Days     int           `json:"days"`
	Forecast []ForecastDay `json:"forecast"`
}

// Upstream payload, reduced to the fields that survive normalization.

type apiLocation struct {
	Name    *string `json:"name"`
	Region  *string `json:"region"`
	Country *string `json:"country"`
}

func (l *apiLocation) normalize() Location {
	if l == nil {
		return Location{}
	}
	return Location{Name: l.Name, Region: l.Region, Country: l.Country}
}

type apiCurrent struct {
	TempC      *float64       `json:"temp_c"`
	Humidity   *float64       `json:"humidity"`
	WindKph    *float64       `json:"wind_kph"`
	AirQuality map[string]any `json:"air_quality"`
}

type apiForecastDay struct {
	Date *string `json:"date"`
	Day  struct {
		AvgTempC    *float64       `json:"avgtemp_c"`
		AvgHumidity *float64       `json:"avghumidity"`
		MaxWindKph  *float64       `json:"maxwind_kph"`
		AirQuality  map[string]any `json:"air_quality"`
	} `json:"day"`
}

type apiResponse struct {
	Location *apiLocation `json:"location"`
	Current  *apiCurrent  `json:"current"`
	Forecast *struct {
		ForecastDay []apiForecastDay `json:"forecastday"`
	} `json:"forecast"`
	Error json.RawMessage `json:"error"`
}

// errorMessage extracts the upstream error, which is usually an object with
// a message but may be a bare string.
func (r *apiResponse) errorMessage() (string, bool) {
	raw := bytes.TrimSpace(r.Error)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", false
	}

	var obj struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &obj) == nil {
		if obj.Message != "" {
			return obj.Message, true
		}
		return "Weather API error", true
	}

	var str string
	if json.Unmarshal(raw, &str) == nil && str != "" {
		return str, true
	}
	if len(raw) > 0 && raw[0] != '"' {
		return string(raw), true
	}
	return "Weather API error", true
}
