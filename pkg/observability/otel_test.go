package observability

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitOTelDisabled(t *testing.T) {
	telemetry, err := InitOTel(context.Background(), OTelConfig{Enabled: false}, NewLogger(ErrorLevel, "json", io.Discard))
	require.NoError(t, err)
	assert.False(t, telemetry.Enabled())
	assert.NoError(t, telemetry.Shutdown(context.Background()))

	var missing *Telemetry
	assert.NoError(t, missing.Shutdown(context.Background()))
}

func TestSampler(t *testing.T) {
	assert.Contains(t, sampler(0).Description(), "AlwaysOnSampler")
	assert.Contains(t, sampler(1).Description(), "AlwaysOnSampler")
	assert.Contains(t, sampler(0.25).Description(), "TraceIDRatioBased{0.25}")
}
