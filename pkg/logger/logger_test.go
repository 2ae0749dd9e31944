package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_WithContextCarriesRunID(t *testing.T) {
	var buf bytes.Buffer
	log := New("orchestrator", LoggingConfig{Level: "debug", Output: &buf})

	ctx := WithRunID(context.Background(), "run-1")
	log.WithContext(ctx).WithField("step", 3).Info("step applied")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "orchestrator", line["component"])
	assert.Equal(t, "run-1", line["run_id"])
	assert.Equal(t, float64(3), line["step"])
	assert.Equal(t, "step applied", line["msg"])
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New("ledger", LoggingConfig{Level: "warn", Output: &buf})

	log.Info("hidden")
	assert.Zero(t, buf.Len())

	log.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestLogger_NamedSharesSink(t *testing.T) {
	var buf bytes.Buffer
	log := New("root", LoggingConfig{Output: &buf, Format: "text"})

	log.Named("evm").Info("hello")
	assert.Contains(t, buf.String(), "component=evm")
}

func TestRunIDFromContext_Empty(t *testing.T) {
	assert.Empty(t, RunIDFromContext(context.Background()))
}
