package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferLogger(level LogLevel) (*StructuredLogger, *bytes.Buffer) {
	var buf bytes.Buffer
	l := New(func(o *Options) {
		o.Level = level
		o.Output = &buf
	})
	return l, &buf
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	return entry
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    LogLevel
		wantErr bool
	}{
		{"debug", LogLevelDebug, false},
		{"INFO", LogLevelInfo, false},
		{"", LogLevelInfo, false},
		{"warning", LogLevelWarn, false},
		{"error", LogLevelError, false},
		{"loud", LogLevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		assert.Equal(t, tt.wantErr, err != nil, tt.in)
	}
}

func TestStructuredLogger_KeyValueArgs(t *testing.T) {
	l, buf := newBufferLogger(LogLevelInfo)
	l.WithComponent("engine").WithRun("run-1").Info("engine.step.completed", "agent", "seo_agent", "tokens", 42)

	entry := decodeLine(t, buf)
	assert.Equal(t, "engine.step.completed", entry["msg"])
	assert.Equal(t, "engine", entry["component"])
	assert.Equal(t, "run-1", entry["run_id"])
	assert.Equal(t, "seo_agent", entry["agent"])
	assert.EqualValues(t, 42, entry["tokens"])
}

func TestStructuredLogger_LevelFiltering(t *testing.T) {
	l, buf := newBufferLogger(LogLevelWarn)
	l.Info("dropped")
	l.Debug("dropped")
	assert.Zero(t, buf.Len())

	l.Warn("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestStructuredLogger_CloneIsolation(t *testing.T) {
	base, buf := newBufferLogger(LogLevelInfo)
	child := base.WithContext("tenant", "clinic-a")
	base.Info("base")

	entry := decodeLine(t, buf)
	_, ok := entry["tenant"]
	assert.False(t, ok, "parent logger must not inherit child context")

	buf.Reset()
	child.Info("child")
	entry = decodeLine(t, buf)
	assert.Equal(t, "clinic-a", entry["tenant"])
}

func TestStructuredLogger_LogLLMCallFailure(t *testing.T) {
	l, buf := newBufferLogger(LogLevelInfo)
	l.LogLLMCall("gemini", "gemini-2.0-flash", 0, 150*time.Millisecond, false, errors.New("boom"))

	entry := decodeLine(t, buf)
	assert.Equal(t, "llm.call.failed", entry["msg"])
	assert.Equal(t, "ERROR", entry["level"])
	assert.Equal(t, "gemini", entry["provider"])
	assert.Equal(t, "boom", entry["error"])
}

func TestStructuredLogger_LogAgentRun(t *testing.T) {
	l, buf := newBufferLogger(LogLevelWarn)
	l.LogAgentRun("seo_agent", "completed", time.Second, nil)
	assert.Zero(t, buf.Len())

	l.LogAgentRun("seo_agent", "failed", time.Second, errors.New("bad json"))
	entry := decodeLine(t, buf)
	assert.Equal(t, "agent.run.finish", entry["msg"])
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "failed", entry["status"])
}

func TestStructuredLogger_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	l := New(func(o *Options) {
		o.Format = "text"
		o.Output = &buf
		o.Component = "runner"
	})
	l.Info("runner.started", "workers", 2)
	assert.Contains(t, buf.String(), "msg=runner.started")
	assert.Contains(t, buf.String(), "component=runner")
	assert.Contains(t, buf.String(), "workers=2")
}

func TestStructuredLogger_DanglingArg(t *testing.T) {
	l, buf := newBufferLogger(LogLevelInfo)
	l.Info("odd", "key")
	entry := decodeLine(t, buf)
	assert.Equal(t, "key", entry["!BADKEY"])
}

func TestOrNoOp(t *testing.T) {
	assert.IsType(t, NoOpLogger{}, OrNoOp(nil))
	l, _ := newBufferLogger(LogLevelInfo)
	assert.Same(t, l, OrNoOp(l))
}
