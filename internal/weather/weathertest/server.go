// Package weathertest provides an in-process stand-in for the WeatherAPI.com
// endpoints used by the weather client.
package weathertest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"time"
)

const (
	APIKey       = "test-key"
	UnknownCity  = "Nowhere"
	CurrentTempC = 21.5
)

type Server struct {
	*httptest.Server

	mu      sync.Mutex
	queries []url.Values
	paths   []string
}

func NewServer() *Server {
	s := &Server{}
	mux := http.NewServeMux()
	mux.HandleFunc("/current.json", s.record(s.current))
	mux.HandleFunc("/forecast.json", s.record(s.forecast))
	s.Server = httptest.NewServer(mux)
	return s
}

// Requests returns the number of requests served.
func (s *Server) Requests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queries)
}

func (s *Server) LastQuery() url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queries) == 0 {
		return nil
	}
	return s.queries[len(s.queries)-1]
}

func (s *Server) LastPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.paths) == 0 {
		return ""
	}
	return s.paths[len(s.paths)-1]
}

func (s *Server) record(next func(w http.ResponseWriter, q url.Values)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		s.mu.Lock()
		s.queries = append(s.queries, q)
		s.paths = append(s.paths, r.URL.Path)
		s.mu.Unlock()

		if q.Get("key") != APIKey {
			writeJSON(w, http.StatusUnauthorized, errorBody(2006, "API key is invalid."))
			return
		}
		if q.Get("q") == UnknownCity {
			writeJSON(w, http.StatusBadRequest, errorBody(1006, "No matching location found."))
			return
		}
		next(w, q)
	}
}

func (s *Server) current(w http.ResponseWriter, q url.Values) {
	writeJSON(w, http.StatusOK, map[string]any{
		"location": location(q.Get("q")),
		"current": map[string]any{
			"temp_c":      CurrentTempC,
			"temp_f":      70.7,
			"humidity":    40,
			"wind_kph":    11.2,
			"wind_mph":    7.0,
			"condition":   map[string]any{"text": "Sunny"},
			"air_quality": airQuality(),
		},
	})
}

func (s *Server) forecast(w http.ResponseWriter, q url.Values) {
	days, err := strconv.Atoi(q.Get("days"))
	if err != nil || days < 1 {
		days = 1
	}
	start := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	forecastDays := make([]map[string]any, 0, days)
	for i := range days {
		forecastDays = append(forecastDays, map[string]any{
			"date": start.AddDate(0, 0, i).Format(time.DateOnly),
			"day": map[string]any{
				"avgtemp_c":   18.0 + float64(i),
				"maxtemp_c":   23.0 + float64(i),
				"avghumidity": 55,
				"maxwind_kph": 20.5,
				"air_quality": airQuality(),
			},
			"astro": map[string]any{"sunrise": "08:12 AM"},
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"location": location(q.Get("q")),
		"current":  map[string]any{"temp_c": CurrentTempC},
		"forecast": map[string]any{"forecastday": forecastDays},
	})
}

func location(city string) map[string]any {
	return map[string]any{
		"name":    city,
		"region":  "Test Region",
		"country": "Spain",
		"lat":     40.4,
		"lon":     -3.68,
	}
}

func airQuality() map[string]any {
	return map[string]any{
		"pm2_5":        8.1,
		"pm10":         12.4,
		"us-epa-index": 1,
	}
}

func errorBody(code int, message string) map[string]any {
	return map[string]any{"error": map[string]any{"code": code, "message": message}}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// RecordingTransport counts round trips and fails every one of them.
type RecordingTransport struct {
	mu    sync.Mutex
	calls int
}

func (t *RecordingTransport) RoundTrip(*http.Request) (*http.Response, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls++
	return nil, http.ErrHandlerTimeout
}

func (t *RecordingTransport) Calls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}
