package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/warden/pkg/contextkeys"
)

func TestLoggerJSONFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, "json", &buf)

	logger.WithField("organization_id", 7).WithError(errors.New("boom")).Warn("role update failed")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warning", entry["level"])
	assert.Equal(t, "role update failed", entry["msg"])
	assert.Equal(t, float64(7), entry["organization_id"])
	assert.Equal(t, "boom", entry["error"])
}

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(WarnLevel, "text", &buf)

	logger.Info("hidden")
	assert.Empty(t, buf.String())

	derived := logger.WithField("component", "sweeper")
	logger.SetLevel(DebugLevel)
	derived.Debug("visible")
	assert.Contains(t, buf.String(), "visible")
	assert.Equal(t, DebugLevel, logger.Level())
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, DebugLevel, ParseLogLevel("DEBUG"))
	assert.Equal(t, WarnLevel, ParseLogLevel("warning"))
	assert.Equal(t, ErrorLevel, ParseLogLevel(" error "))
	assert.Equal(t, InfoLevel, ParseLogLevel("chatty"))
	assert.Equal(t, "warn", WarnLevel.String())
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, "json", &buf)

	ctx := WithLogger(context.Background(), logger.WithField("request_id", "01HX"))
	FromContext(ctx).Info("scoped")
	assert.Contains(t, buf.String(), `"request_id":"01HX"`)

	fallback := FromContext(contextkeys.WithRequestID(context.Background(), "abc"))
	require.NotNil(t, fallback)
	assert.Equal(t, "abc", fallback.Entry().Data["request_id"])
}
