package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medifusion-server/internal/domain"
)

func TestNewWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(domain.LoggingConfig{Level: "debug", Format: "json"}, &buf)

	logger.WithField("patient_id", "P1").Debug("Patient analyzed")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "Patient analyzed", entry["message"])
	assert.Equal(t, "debug", entry["level"])
	assert.Equal(t, "P1", entry["patient_id"])
	assert.Contains(t, entry, "timestamp")
}

func TestNewWithWriter_Text(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(domain.LoggingConfig{Level: "info", Format: "TEXT"}, &buf)

	logger.Info("Server started")
	logger.Debug("hidden")

	out := buf.String()
	assert.Contains(t, out, "Server started")
	assert.False(t, strings.Contains(out, "hidden"))
}

func TestNewWithWriter_UnknownLevel(t *testing.T) {
	logger := NewWithWriter(domain.LoggingConfig{Level: "chatty"}, &bytes.Buffer{})

	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, logger.Formatter)
}
