// Package cursor pages through the result of a single SQL statement in
// bounded batches. A Cursor is forward-only and cannot be restarted: batch N
// is exactly the Nth contiguous slice of the rows in the order the driver
// returns them.
package cursor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"sqlextract/internal/runlog"
	"sqlextract/internal/schema"
)

// Queryer is the subset of *sql.Conn / *sql.DB a Cursor needs.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Batch is one page of rows. Each row is aligned to Columns. A Batch is never
// mutated after Next returns it.
type Batch struct {
	// Sequence is the 1-based position of the batch within the cursor.
	Sequence int
	Columns  []string
	Rows     [][]any
}

// Len returns the number of rows in the batch.
func (b Batch) Len() int { return len(b.Rows) }

// Cursor streams a result set in batches.
type Cursor struct {
	rows    *sql.Rows
	info    []schema.ColumnInfo
	names   []string
	logger  *slog.Logger
	fetched int
	seq     int
	done    bool
	closed  bool
}

// Open executes text on q. Errors reported by the database when the statement
// is submitted (syntax, permissions, missing objects) are returned as
// *QueryExecutionError.
func Open(ctx context.Context, q Queryer, text string, logger *slog.Logger) (*Cursor, error) {
	if logger == nil {
		logger = slog.Default()
	}

	rows, err := q.QueryContext(ctx, text)
	if err != nil {
		return nil, &QueryExecutionError{Err: err}
	}

	types, err := rows.ColumnTypes()
	if err != nil {
		_ = rows.Close()
		return nil, &QueryExecutionError{Err: fmt.Errorf("column metadata: %w", err)}
	}
	if len(types) == 0 {
		_ = rows.Close()
		return nil, &QueryExecutionError{Err: errors.New("statement returned no result columns")}
	}

	info := make([]schema.ColumnInfo, len(types))
	names := make([]string, len(types))
	for i, ct := range types {
		name := ct.Name()
		if strings.TrimSpace(name) == "" {
			// SQL Server leaves computed columns without an alias unnamed.
			name = fmt.Sprintf("column_%d", i+1)
		}
		names[i] = name
		info[i] = schema.ColumnInfo{
			Name:         name,
			DatabaseType: ct.DatabaseTypeName(),
			ScanType:     ct.ScanType(),
		}
	}

	logger.Debug("statement executed", slog.Int("columns", len(names)))
	return &Cursor{rows: rows, info: info, names: names, logger: logger}, nil
}

// Columns returns the driver's metadata for each result column.
func (c *Cursor) Columns() []schema.ColumnInfo { return c.info }

// Fetched returns the number of rows read so far.
func (c *Cursor) Fetched() int { return c.fetched }

// Next reads up to n rows. It returns io.EOF once the result is exhausted and
// on every call after that. A driver error while iterating is returned as
// *FetchError; the cursor is closed and will not yield further batches.
func (c *Cursor) Next(ctx context.Context, n int) (Batch, error) {
	if n <= 0 {
		return Batch{}, fmt.Errorf("cursor: batch size must be > 0, got %d", n)
	}
	if c.done || c.closed {
		return Batch{}, io.EOF
	}
	if err := ctx.Err(); err != nil {
		return Batch{}, &FetchError{Offset: c.fetched, Err: err}
	}

	width := len(c.names)
	rows := make([][]any, 0, n)
	for len(rows) < n {
		if !c.rows.Next() {
			break
		}
		values := make([]any, width)
		ptrs := make([]any, width)
		for j := range values {
			ptrs[j] = &values[j]
		}
		if err := c.rows.Scan(ptrs...); err != nil {
			c.abort()
			return Batch{}, &FetchError{Offset: c.fetched + len(rows), Err: fmt.Errorf("scan: %w", err)}
		}
		rows = append(rows, values)
	}

	if len(rows) < n {
		// Next returned false: either the end of the result or a failure.
		if err := c.rows.Err(); err != nil {
			c.abort()
			return Batch{}, &FetchError{Offset: c.fetched + len(rows), Err: err}
		}
		c.done = true
	}

	if len(rows) == 0 {
		c.logger.Info("no more rows to fetch", slog.Int("fetched", c.fetched))
		return Batch{}, io.EOF
	}

	c.seq++
	c.fetched += len(rows)
	c.logger.Info(fmt.Sprintf("fetched %d rows", len(rows)),
		slog.Int(runlog.BatchKey, c.seq),
		slog.Int("fetched_total", c.fetched),
	)
	return Batch{Sequence: c.seq, Columns: c.names, Rows: rows}, nil
}

func (c *Cursor) abort() {
	c.done = true
	_ = c.Close()
}

// Close releases the result set. It is safe to call more than once.
func (c *Cursor) Close() error {
	if c == nil || c.closed {
		return nil
	}
	c.closed = true
	return c.rows.Close()
}

// QueryExecutionError reports a statement the database refused to run.
type QueryExecutionError struct {
	Err error
}

func (e *QueryExecutionError) Error() string { return "query execution: " + e.Err.Error() }
func (e *QueryExecutionError) Unwrap() error { return e.Err }

// FetchError reports a failure while reading rows after the statement started.
type FetchError struct {
	// Offset is the number of rows successfully read before the failure.
	Offset int
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch after %d rows: %v", e.Offset, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
