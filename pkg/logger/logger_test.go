package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/tradable-universe/pkg/config"
)

// captureLogger writes JSON lines into a buffer at debug level
func captureLogger(t *testing.T) (*Logger, *bytes.Buffer) {
	t.Helper()
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	var buf bytes.Buffer
	return NewWithWriter(&buf, "test"), &buf
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), "log output: %s", buf.String())
	return entry
}

func TestNew_SetsGlobalLevel(t *testing.T) {
	tests := []struct {
		env       string
		level     string
		wantLevel zerolog.Level
	}{
		{"development", "debug", zerolog.DebugLevel},
		{"production", "info", zerolog.InfoLevel},
		{"staging", "warn", zerolog.WarnLevel},
		{"production", "error", zerolog.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			log := New(&config.Config{Env: tt.env, LogLevel: tt.level, LogFormat: "json"})
			require.NotNil(t, log)
			assert.Equal(t, tt.wantLevel, zerolog.GlobalLevel())
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"DEBUG", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"fatal", zerolog.FatalLevel},
		{"panic", zerolog.PanicLevel},
		{"invalid", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLogLevel(tt.input))
		})
	}
}

func TestLoggerLevels(t *testing.T) {
	log, buf := captureLogger(t)

	tests := []struct {
		level string
		emit  func(string)
	}{
		{"debug", log.Debug},
		{"info", log.Info},
		{"warn", log.Warn},
		{"error", log.Error},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			buf.Reset()
			tt.emit("pipeline " + tt.level)

			entry := decodeLine(t, buf)
			assert.Equal(t, tt.level, entry["level"])
			assert.Equal(t, "pipeline "+tt.level, entry["message"])
			assert.Equal(t, ServiceName, entry["service"])
			assert.Equal(t, "test", entry["env"])
		})
	}
}

func TestLevelFiltering(t *testing.T) {
	log, buf := captureLogger(t)

	zerolog.SetGlobalLevel(zerolog.WarnLevel)
	defer zerolog.SetGlobalLevel(zerolog.DebugLevel)

	log.Debug("Pipeline session evaluated")
	log.Info("Universe built")
	assert.Empty(t, buf.String())

	log.Warn("Data quality below threshold")
	assert.NotEmpty(t, buf.String())
}

func TestContextFields(t *testing.T) {
	session := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		build func(*Logger) *Logger
		want  map[string]interface{}
	}{
		{
			name:  "field",
			build: func(l *Logger) *Logger { return l.WithField("job", "universe_snapshot") },
			want:  map[string]interface{}{"job": "universe_snapshot"},
		},
		{
			name: "fields",
			build: func(l *Logger) *Logger {
				return l.WithFields(map[string]interface{}{"total": 3, "tradable": 2})
			},
			want: map[string]interface{}{"total": float64(3), "tradable": float64(2)},
		},
		{
			name:  "error",
			build: func(l *Logger) *Logger { return l.WithError(errors.New("no sessions")) },
			want:  map[string]interface{}{"error": "no sessions"},
		},
		{
			name:  "run id",
			build: func(l *Logger) *Logger { return l.WithRunID("run-1") },
			want:  map[string]interface{}{"run_id": "run-1"},
		},
		{
			name:  "session",
			build: func(l *Logger) *Logger { return l.WithSession(session) },
			want:  map[string]interface{}{"session": "2024-01-02"},
		},
		{
			name: "chained",
			build: func(l *Logger) *Logger {
				return l.WithRunID("run-2").WithSession(session).WithField("passed", 10)
			},
			want: map[string]interface{}{"run_id": "run-2", "session": "2024-01-02", "passed": float64(10)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, buf := captureLogger(t)
			tt.build(log).Info("Universe built")

			entry := decodeLine(t, buf)
			for k, v := range tt.want {
				assert.Equal(t, v, entry[k], k)
			}
		})
	}
}

func TestWithFields_DoesNotMutateParent(t *testing.T) {
	log, buf := captureLogger(t)

	_ = log.WithRunID("run-1")
	log.Info("plain")

	entry := decodeLine(t, buf)
	assert.NotContains(t, entry, "run_id")
}

func TestLogFormats(t *testing.T) {
	for _, format := range []string{"json", "console", "pretty"} {
		t.Run(format, func(t *testing.T) {
			oldStdout := os.Stdout
			r, w, err := os.Pipe()
			require.NoError(t, err)
			os.Stdout = w

			New(&config.Config{Env: "test", LogLevel: "info", LogFormat: format}).Info("universe ready")

			w.Close()
			os.Stdout = oldStdout

			var buf bytes.Buffer
			_, _ = io.Copy(&buf, r)
			assert.Contains(t, buf.String(), "universe ready")
		})
	}
}

func TestNewNop(t *testing.T) {
	log := NewNop()
	require.NotNil(t, log)

	// must not panic
	log.WithSession(time.Now()).WithFields(map[string]interface{}{"sid": 1}).Info("discarded")
	log.WithError(errors.New("boom")).Error("discarded")
}
