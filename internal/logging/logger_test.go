package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWritesJSONToLogDir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	logger, err := New(context.Background(), WithDir(dir), WithSessionID("abc"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = logger.Close() })

	logger.Logger.Info("kernel started", "port", 5555)
	require.NoError(t, logger.Close())

	assert.Equal(t, dir, filepath.Dir(logger.Path()))
	assert.True(t, strings.HasPrefix(filepath.Base(logger.Path()), "mathics-"))
	assert.True(t, strings.HasSuffix(logger.Path(), "-abc.log"))

	data, err := os.ReadFile(logger.Path())
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	var record map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &record))
	assert.Equal(t, "kernel started", record["msg"])
	assert.Equal(t, "abc", record["session_id"])
	assert.EqualValues(t, 5555, record["port"])
}

func TestNewRejectsCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	dir := t.TempDir()
	_, err := New(ctx, WithDir(dir))
	require.ErrorIs(t, err, context.Canceled)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLevelFiltersRecords(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := NewWriter(&buf, WithLevel("warn"))
	logger.Logger.Info("hidden")
	logger.Logger.Warn("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
}

func TestWithTraceIDRebuildsFields(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := NewWriter(&buf).WithTraceID("trace-1").WithSpanID("span-1")
	logger.Logger.Info("traced")

	var record map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &record))
	assert.Equal(t, "trace-1", record["trace_id"])
	assert.Equal(t, "span-1", record["span_id"])
}

func TestNilLoggerIsSafe(t *testing.T) {
	t.Parallel()

	var logger *RuntimeLogger
	assert.Nil(t, logger.WithSessionID("x"))
	assert.NoError(t, logger.Close())
	assert.Empty(t, logger.Path())
}
