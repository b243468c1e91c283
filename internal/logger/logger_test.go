package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(t *testing.T, cfg *LoggingConfig) (*CentralLogger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	cl, err := newCentralLogger(cfg, &buf)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cl.Close() })
	return cl, &buf
}

func TestConsoleOutputFormat(t *testing.T) {
	t.Parallel()

	cl, buf := newTestLogger(t, &LoggingConfig{
		DefaultLevel: "debug",
		Console:      &ConsoleOutput{Enabled: true, Level: "debug"},
	})

	log := cl.Module("bridge")
	log.Info("Session started", String("session_id", "abc"), Int("attempt", 2))

	out := buf.String()
	assert.Contains(t, out, "level=INFO")
	assert.Contains(t, out, `msg="Session started"`)
	assert.Contains(t, out, "module=bridge")
	assert.Contains(t, out, "session_id=abc")
	assert.Contains(t, out, "attempt=2")
	assert.NotContains(t, out, "time=")
}

func TestModuleLevels(t *testing.T) {
	t.Parallel()

	cl, buf := newTestLogger(t, &LoggingConfig{
		DefaultLevel: "info",
		Console:      &ConsoleOutput{Enabled: true, Level: "trace"},
		ModuleLevels: map[string]string{"mapped": "trace"},
	})

	cl.Module("bridge").Debug("hidden")
	assert.Empty(t, buf.String())

	cl.Module("mapped").Module("telemetry").Trace("visible")
	assert.Contains(t, buf.String(), "level=TRACE")
	assert.Contains(t, buf.String(), "module=mapped.telemetry")
}

func TestWithAndContext(t *testing.T) {
	t.Parallel()

	cl, buf := newTestLogger(t, &LoggingConfig{
		Console: &ConsoleOutput{Enabled: true, Level: "info"},
	})

	base := cl.Module("hub")
	scoped := base.With(String("client", "c1"))
	ctx := WithTraceID(context.Background(), "trace-42")
	scoped.WithContext(ctx).Warn("Slow client", Duration("lag", 1500*time.Millisecond), Float64("ratio", 0.123456))

	out := buf.String()
	assert.Contains(t, out, "client=c1")
	assert.Contains(t, out, "trace_id=trace-42")
	assert.Contains(t, out, "lag=1.5s")
	assert.Contains(t, out, "ratio=0.123")

	buf.Reset()
	base.Info("No client field")
	assert.NotContains(t, buf.String(), "client=")
}

func TestErrorFieldNil(t *testing.T) {
	t.Parallel()

	f := Error(nil)
	assert.Equal(t, "error", f.Key)
	assert.Nil(t, f.Value)
}

func TestFileOutputJSON(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "logs", "bridge.log")
	cl, _ := newTestLogger(t, &LoggingConfig{
		DefaultLevel: "info",
		Timezone:     "UTC",
		Console:      &ConsoleOutput{Enabled: false},
		FileOutput:   &FileOutput{Enabled: true, Path: path, Level: "info"},
	})

	cl.Module("publish").Error("Publish failed", String("transport", "mqtt"))
	require.NoError(t, cl.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	line := strings.TrimSpace(string(data))
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &rec))
	assert.Equal(t, "ERROR", rec["level"])
	assert.Equal(t, "publish", rec["module"])
	assert.Equal(t, "mqtt", rec["transport"])
	ts, ok := rec["time"].(string)
	require.True(t, ok)
	_, err = time.Parse(time.RFC3339, ts)
	assert.NoError(t, err)
}

func TestInvalidConfig(t *testing.T) {
	t.Parallel()

	_, err := NewCentralLogger(nil)
	require.Error(t, err)

	_, err = NewCentralLogger(&LoggingConfig{Timezone: "Not/AZone"})
	require.Error(t, err)
}

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"trace", "TRACE"},
		{"DEBUG", "DEBUG"},
		{"warning", "WARN"},
		{"error", "ERROR"},
		{"bogus", "INFO"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, levelName(parseLogLevel(tt.in)))
		})
	}
}
