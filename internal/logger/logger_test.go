package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterLogger_FormatsCategoryAndLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger(&buf)

	l.Info("matching", "run complete")
	l.LogBilling("create", "period-1", "3 invoices")

	out := buf.String()
	assert.Contains(t, out, "INFO  [MATCHING  ] run complete")
	assert.Contains(t, out, "[BILLING   ] [create] period-1 - 3 invoices")
}

func TestLogger_RespectsMinimumLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger(&buf)
	l.minLevel = WARN

	l.Debug("APP", "hidden")
	l.Info("APP", "hidden too")
	l.Warn("APP", "shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestNilLoggerIsSafe(t *testing.T) {
	var l *Logger
	assert.NotPanics(t, func() {
		l.Info("APP", "nothing")
		l.Close()
	})
}

func TestNewLogger_WritesJSONFile(t *testing.T) {
	dir := t.TempDir()
	l := NewLogger(dir, "debug")
	l.out = &bytes.Buffer{}
	l.Error("DATABASE", "connection lost")
	l.Close()

	files, err := filepath.Glob(filepath.Join(dir, "activity-service-*.log"))
	require.NoError(t, err)
	require.Len(t, files, 1)

	content, err := os.ReadFile(files[0])
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	assert.Contains(t, strings.Join(lines, "\n"), `"category":"DATABASE","message":"connection lost"`)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DEBUG, ParseLevel("debug"))
	assert.Equal(t, WARN, ParseLevel("WARN"))
	assert.Equal(t, ERROR, ParseLevel("error"))
	assert.Equal(t, INFO, ParseLevel("whatever"))
}
