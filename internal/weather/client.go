// Package weather is a narrow client for the WeatherAPI.com current and
// forecast endpoints. Results are flattened to the fields the agent needs,
// and every failure is reported as an *Error with a printable message.
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	DefaultBaseURL = "http://api.weatherapi.com/v1"
	DefaultTimeout = 10 * time.Second

	MinForecastDays     = 1
	MaxForecastDays     = 10
	DefaultForecastDays = 3

	apiKeyName = "WEATHER_API_KEY"
)

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	timeout    time.Duration
	log        logrus.FieldLogger
}

type ClientOption func(c *Client)

func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

func WithAPIKey(apiKey string) ClientOption {
	return func(c *Client) {
		c.apiKey = apiKey
	}
}

// WithHTTPClient sets the client requests are sent with. The client is
// copied, so WithTimeout never changes the caller's value.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout sets the per-request timeout regardless of option order.
// Without it the default client uses DefaultTimeout and a client from
// WithHTTPClient keeps its own Timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = timeout
	}
}

func WithLogger(log logrus.FieldLogger) ClientOption {
	return func(c *Client) {
		c.log = log
	}
}

func NewClient(options ...ClientOption) *Client {
	client := &Client{
		baseURL: DefaultBaseURL,
		log:     logrus.StandardLogger(),
	}
	for _, opt := range options {
		opt(client)
	}

	httpClient := http.Client{Timeout: DefaultTimeout}
	if client.httpClient != nil {
		httpClient = *client.httpClient
	}
	if client.timeout > 0 {
		httpClient.Timeout = client.timeout
	}
	client.httpClient = &httpClient
	return client
}

// Current returns the current conditions for city.
func (c *Client) Current(ctx context.Context, city string) (*CurrentWeather, error) {
	var resp apiResponse
	if err := c.get(ctx, "current", url.Values{"q": {city}}, &resp); err != nil {
		return nil, err
	}

	current := resp.Current
	if current == nil {
		current = &apiCurrent{}
	}
	return &CurrentWeather{
		Location:     resp.Location.normalize(),
		TemperatureC: current.TempC,
		Humidity:     current.Humidity,
		WindKph:      current.WindKph,
		AirQuality:   current.AirQuality,
	}, nil
}

// Forecast returns a daily forecast for city. days is clamped to
// [MinForecastDays, MaxForecastDays].
func (c *Client) Forecast(ctx context.Context, city string, days int) (*Forecast, error) {
	days = ClampDays(days)

	var resp apiResponse
	params := url.Values{"q": {city}, "days": {strconv.Itoa(days)}}
	if err := c.get(ctx, "forecast", params, &resp); err != nil {
		return nil, err
	}

	forecast := &Forecast{
		Location: resp.Location.normalize(),
		Days:     days,
		Forecast: make([]ForecastDay, 0, days),
	}
	if resp.Forecast != nil {
		for _, item := range resp.Forecast.ForecastDay {
			forecast.Forecast = append(forecast.Forecast, ForecastDay{
				Date:         item.Date,
				TemperatureC: item.Day.AvgTempC,
				Humidity:     item.Day.AvgHumidity,
				WindKph:      item.Day.MaxWindKph,
				AirQuality:   item.Day.AirQuality,
			})
		}
	}
	return forecast, nil
}

func ClampDays(days int) int {
	return max(MinForecastDays, min(days, MaxForecastDays))
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values, out *apiResponse) error {
	if c.apiKey == "" {
		return newError(KindConfiguration, apiKeyName+" is not set")
	}

	query := url.Values{}
	for k, v := range params {
		query[k] = v
	}
	query.Set("key", c.apiKey)
	query.Set("aqi", "yes")
	endpointURL := fmt.Sprintf("%s/%s.json?%s", c.baseURL, endpoint, query.Encode())

	log := c.log.WithFields(logrus.Fields{"endpoint": endpoint, "q": params.Get("q")})
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpointURL, nil)
	if err != nil {
		return newError(KindTransport, fmt.Sprintf("Weather API request failed: %s", err))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.WithError(redactKey(err)).Warn("weather request failed")
		return newError(KindTransport, fmt.Sprintf("Weather API request failed: %s", redactKey(err)))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return newError(KindTransport, fmt.Sprintf("Weather API request failed: %s", err))
	}
	log = log.WithFields(logrus.Fields{"status": resp.StatusCode, "duration_ms": time.Since(start).Milliseconds()})

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := fmt.Sprintf("Weather API request failed: %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
		var errResp apiResponse
		if json.Unmarshal(body, &errResp) == nil {
			if upstream, ok := errResp.errorMessage(); ok {
				msg += ": " + upstream
			}
		}
		log.Warn("weather request returned non-2xx status")
		return newError(KindTransport, msg)
	}

	if err := json.Unmarshal(body, out); err != nil {
		log.WithError(err).Warn("weather response is not valid JSON")
		return newError(KindTransport, "Weather API returned invalid JSON")
	}

	if msg, ok := out.errorMessage(); ok {
		log.WithField("upstream_error", msg).Info("weather API reported an error")
		return newError(KindUpstream, msg)
	}

	log.Debug("weather request succeeded")
	return nil
}

// redactKey strips the query string, which carries the API key, from
// transport errors before they reach logs or the model.
func redactKey(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if u, perr := url.Parse(urlErr.URL); perr == nil {
			u.RawQuery = ""
			return &url.Error{Op: urlErr.Op, URL: u.String(), Err: urlErr.Err}
		}
	}
	return err
}
