package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newJSONLogger(t *testing.T, level Level) (Logger, *bytes.Buffer) {
	t.Helper()
	buf := &bytes.Buffer{}
	log, err := NewLoggerWithWriter(&Config{
		Level:            level,
		Format:           JSONFormat,
		Output:           StderrOutput,
		DisableTimestamp: true,
	}, buf)
	require.NoError(t, err)
	return log, buf
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		entry := map[string]interface{}{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		out = append(out, entry)
	}
	return out
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"default", *DefaultConfig(), false},
		{"debug", *DebugConfig(), false},
		{"bad level", Config{Level: "loud", Format: TextFormat, Output: StderrOutput}, true},
		{"bad format", Config{Level: InfoLevel, Format: "xml", Output: StderrOutput}, true},
		{"file without path", Config{Level: InfoLevel, Format: TextFormat, Output: FileOutput}, true},
		{"bad output", Config{Level: InfoLevel, Format: TextFormat, Output: "syslog"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFieldsAccumulate(t *testing.T) {
	log, buf := newJSONLogger(t, InfoLevel)

	log.WithComponent("duplicate_detector").
		WithField("user_id", "u1").
		WithFields(Fields{"dropped": 2}).
		Info("done")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "duplicate_detector", lines[0]["component"])
	assert.Equal(t, "u1", lines[0]["user_id"])
	assert.Equal(t, float64(2), lines[0]["dropped"])
	assert.Equal(t, "done", lines[0]["msg"])
}

func TestLevelFiltering(t *testing.T) {
	log, buf := newJSONLogger(t, WarnLevel)

	log.Info("hidden")
	log.Debugf("hidden %d", 1)
	log.Warn("shown")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "shown", lines[0]["msg"])
}

func TestTimedOperation(t *testing.T) {
	log, buf := newJSONLogger(t, InfoLevel)

	require.NoError(t, TimedOperation("type1_dedup", log, func() error { return nil }))

	boom := errors.New("boom")
	err := TimedOperation("balance", log, func() error { return boom })
	assert.ErrorIs(t, err, boom)

	lines := decodeLines(t, buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "success", lines[0]["status"])
	assert.Equal(t, "type1_dedup", lines[0]["operation"])
	assert.Equal(t, "error", lines[1]["status"])
	assert.Equal(t, "boom", lines[1]["error"])
}

func TestProgressTracker(t *testing.T) {
	log, _ := newJSONLogger(t, InfoLevel)
	tracker := NewProgressTracker(ProgressConfig{Stage: "balance", Total: 3, Logger: log})

	tracker.Increment()
	tracker.Add(2)
	tracker.Complete()

	assert.Equal(t, int64(3), tracker.Current())
}
