package logging_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weather-chatbot/internal/logging"
)

func TestNewLoggerJSON(t *testing.T) {
	// given
	var buf bytes.Buffer
	log, err := logging.NewLogger(&buf, "debug", "json")
	require.NoError(t, err)

	// when
	log.WithField("tool", "current_weather").Debug("tool call executed")

	// then
	entry := make(map[string]any)
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "tool call executed", entry["msg"])
	assert.Equal(t, "debug", entry["level"])
	assert.Equal(t, "current_weather", entry["tool"])
}

func TestNewLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	log, err := logging.NewLogger(&buf, "WARN", "text")
	require.NoError(t, err)

	log.Info("hidden")
	log.Warn("shown")

	assert.Equal(t, logrus.WarnLevel, log.GetLevel())
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestNewLoggerErrors(t *testing.T) {
	_, err := logging.NewLogger(&bytes.Buffer{}, "loud", "text")
	assert.Error(t, err)

	_, err = logging.NewLogger(&bytes.Buffer{}, "info", "xml")
	assert.Error(t, err)
}
