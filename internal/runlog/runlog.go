// Package runlog sets up the per-run log: every record goes to the console
// and to a dedicated file in the log directory, both in the same line format.
package runlog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	slogmulti "github.com/samber/slog-multi"
)

// Options configures Open.
type Options struct {
	Level slog.Leveler
	// Console receives the same lines as the file. Nil means os.Stderr.
	Console io.Writer
}

// Log is an open run log.
type Log struct {
	path   string
	file   *os.File
	logger *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

// Open creates dir if needed and opens (appending) the log file name inside it.
func Open(dir, name string, opts Options) (*Log, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("runlog: create log directory %s: %w", dir, err)
	}
	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("runlog: open %s: %w", path, err)
	}

	console := opts.Console
	if console == nil {
		console = os.Stderr
	}

	logger := slog.New(slogmulti.Fanout(
		NewHandler(console, opts.Level),
		NewHandler(f, opts.Level),
	))
	return &Log{path: path, file: f, logger: logger}, nil
}

// Path returns the log file path.
func (l *Log) Path() string { return l.path }

// Slog returns the fan-out logger that components receive.
func (l *Log) Slog() *slog.Logger { return l.logger }

// Batch logs msg tagged with batch sequence seq.
func (l *Log) Batch(seq int, level slog.Level, msg string, args ...any) {
	l.logger.With(slog.Int(BatchKey, seq)).Log(context.Background(), level, msg, args...)
}

// Run logs msg without a batch tag.
func (l *Log) Run(level slog.Level, msg string, args ...any) {
	l.logger.Log(context.Background(), level, msg, args...)
}

// Close syncs and closes the log file. Later calls return the first result.
func (l *Log) Close() error {
	l.closeOnce.Do(func() {
		if err := l.file.Sync(); err != nil {
			l.closeErr = err
		}
		if err := l.file.Close(); err != nil && l.closeErr == nil {
			l.closeErr = err
		}
	})
	return l.closeErr
}

// Critical logs msg at LevelCritical.
func Critical(logger *slog.Logger, msg string, args ...any) {
	logger.Log(context.Background(), LevelCritical, msg, args...)
}

// Nop returns a logger that discards everything.
func Nop() *slog.Logger {
	return slog.New(NewHandler(io.Discard, slog.Level(100)))
}
