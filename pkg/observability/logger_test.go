package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/heartbeat/pkg/contextkeys"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  logrus.Level
	}{
		{"debug", logrus.DebugLevel},
		{"INFO", logrus.InfoLevel},
		{" warn ", logrus.WarnLevel},
		{"error", logrus.ErrorLevel},
		{"bogus", logrus.InfoLevel},
		{"", logrus.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLogLevel(tt.input))
		})
	}
}

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(logrus.InfoLevel, JSONFormat, &buf)

	logger.Debug("hidden")
	assert.Zero(t, buf.Len(), "debug should be filtered at info level")

	logger.WithField("app_id", "com.example.app").Info("event accepted")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "event accepted", entry["msg"])
	assert.Equal(t, "com.example.app", entry["app_id"])
}

func TestNewLogger_Text(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(logrus.DebugLevel, TextFormat, &buf)

	logger.Debug("visible")
	assert.Contains(t, buf.String(), "visible")
}

func TestLoggerFromContext(t *testing.T) {
	var buf bytes.Buffer
	base := NewLogger(logrus.InfoLevel, JSONFormat, &buf)

	t.Run("fallback carries request id", func(t *testing.T) {
		buf.Reset()
		ctx := contextkeys.WithRequestID(context.Background(), "req-1")
		LoggerFromContext(ctx, base).Info("hello")

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "req-1", entry["request_id"])
	})

	t.Run("stored entry wins", func(t *testing.T) {
		stored := base.WithField("scope", "stored")
		ctx := WithLogger(context.Background(), stored)
		assert.Same(t, stored, LoggerFromContext(ctx, base))
	})

	t.Run("nil fallback", func(t *testing.T) {
		assert.NotNil(t, LoggerFromContext(context.Background(), nil))
	})
}
