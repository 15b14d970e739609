package runlog

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_FansOutToConsoleAndFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	var console bytes.Buffer

	l, err := Open(dir, "pipeline_Sales_20240501_120000.log", Options{Level: slog.LevelInfo, Console: &console})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "pipeline_Sales_20240501_120000.log"), l.Path())

	l.Run(slog.LevelInfo, "starting extract", "extract", "Sales")
	l.Batch(2, slog.LevelInfo, "fetched 10 rows")
	l.Run(slog.LevelDebug, "hidden")
	Critical(l.Slog(), "run failed")

	require.NoError(t, l.Close())
	require.NoError(t, l.Close(), "second close returns the first result")

	data, err := os.ReadFile(l.Path())
	require.NoError(t, err)
	assert.Equal(t, console.String(), string(data))

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], " - Batch - - INFO - starting extract extract=Sales")
	assert.Contains(t, lines[1], " - Batch 2 - INFO - fetched 10 rows")
	assert.Contains(t, lines[2], " - Batch - - CRITICAL - run failed")
}

func TestOpen_Appends(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 2; i++ {
		l, err := Open(dir, "run.log", Options{Console: &bytes.Buffer{}})
		require.NoError(t, err)
		l.Run(slog.LevelInfo, "hello")
		require.NoError(t, l.Close())
	}
	data, err := os.ReadFile(filepath.Join(dir, "run.log"))
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "hello"))
}

func TestOpen_DirectoryIsFile(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "logs")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	_, err := Open(blocker, "run.log", Options{Console: &bytes.Buffer{}})
	assert.Error(t, err)
}
