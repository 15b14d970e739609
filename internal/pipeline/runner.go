// Package pipeline runs one extract: it connects to the configured database,
// executes the query, and writes each fetched batch to its own Parquet file.
//
// A run is strictly sequential. Each batch is fully fetched and then fully
// written before the next fetch starts, so memory stays bounded by
// processing.batch_size regardless of the result size.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"

	"sqlextract/internal/config"
	"sqlextract/internal/cursor"
	"sqlextract/internal/metrics"
	"sqlextract/internal/naming"
	"sqlextract/internal/parquetwriter"
	"sqlextract/internal/query"
	"sqlextract/internal/runlog"
	"sqlextract/internal/schema"
	"sqlextract/internal/source"
)

// rowCursor is the part of *cursor.Cursor the runner drives.
type rowCursor interface {
	Columns() []schema.ColumnInfo
	Next(ctx context.Context, n int) (cursor.Batch, error)
	Close() error
}

// batchWriter is the part of *parquetwriter.Writer the runner drives.
type batchWriter interface {
	Write(ctx context.Context, b cursor.Batch, s schema.Schema, path string) (parquetwriter.Result, error)
}

// Function variables used to introduce test seams.
// In production these point to real implementations; tests can override them.
var (
	nowFn = time.Now

	loadQueryFn = query.Load

	openCursorFn = func(ctx context.Context, q cursor.Queryer, text string, logger *slog.Logger) (rowCursor, error) {
		return cursor.Open(ctx, q, text, logger)
	}

	newWriterFn = func(opts parquetwriter.Options) (batchWriter, error) {
		return parquetwriter.New(opts)
	}
)

// RunContext is the state of one run. The Runner owns it while the run is in
// progress; Run returns a copy.
type RunContext struct {
	ID           string
	ExtractName  string
	Started      time.Time
	Timestamp    string
	OutputDir    string
	Codec        parquetwriter.Codec
	RowGroupSize int

	State State
	// Sequence is the number of the last fetched batch.
	Sequence int
	// Rows counts rows committed to artifacts.
	Rows          int
	Schema        schema.Schema
	Artifacts     []parquetwriter.Result
	FailedBatches []int
	LogPath       string
	Elapsed       time.Duration
}

// Options configures a Runner.
type Options struct {
	// Console receives the run log alongside the log file. Nil means stderr.
	Console io.Writer
}

// Runner executes extract runs for one configuration.
type Runner struct {
	cfg  config.Config
	opts Options
}

// NewRunner returns a Runner for cfg. The configuration is validated when Run
// is called.
func NewRunner(cfg config.Config, opts Options) *Runner {
	return &Runner{cfg: cfg, opts: opts}
}

// run carries the per-invocation collaborators.
type run struct {
	cfg    config.Config
	rc     RunContext
	log    *runlog.Log
	logger *slog.Logger
	job    string
}

func (r *run) setState(s State) {
	r.rc.State = s
	r.logger.Debug("state " + s.String())
}

// fail moves the run to Failed and logs the cause at CRITICAL.
func (r *run) fail(stage State, seq int, err error) error {
	r.rc.State = StateFailed
	serr := &StageError{Stage: stage, Sequence: seq, Err: err}
	lg := r.logger
	if seq > 0 {
		lg = lg.With(slog.Int(runlog.BatchKey, seq))
	}
	runlog.Critical(lg, fmt.Sprintf("run failed in %s stage: %v", stage, err))
	return serr
}

// Run executes the extract once. It returns the final RunContext and, when
// the run did not complete cleanly, a *StageError or an error wrapping
// ErrPartialRun. The database session is released on every path.
func (rn *Runner) Run(ctx context.Context) (RunContext, error) {
	cfg := rn.cfg
	rc := RunContext{State: StateIdle}

	issues := config.Validate(cfg)
	if err := config.Err(issues); err != nil {
		rc.State = StateFailed
		return rc, &StageError{Stage: StateIdle, Err: err}
	}
	codec, _ := parquetwriter.ParseCodec(cfg.Output.Compression)
	level, _ := config.ParseLevel(cfg.Logging.Level)

	started := nowFn()
	rc.ID = ulid.Make().String()
	rc.ExtractName = cfg.Output.ExtractName
	rc.Started = started
	rc.Timestamp = naming.Timestamp(started)
	rc.OutputDir = cfg.Output.OutputDirectory
	rc.Codec = codec
	rc.RowGroupSize = cfg.Output.RowGroupSize

	rl, err := runlog.Open(cfg.Logging.Directory, naming.LogName(rc.ExtractName, rc.Timestamp), runlog.Options{
		Level:   level,
		Console: rn.opts.Console,
	})
	if err != nil {
		rc.State = StateFailed
		return rc, &StageError{Stage: StateIdle, Err: err}
	}
	defer func() { _ = rl.Close() }()
	rc.LogPath = rl.Path()

	r := &run{cfg: cfg, rc: rc, log: rl, logger: rl.Slog(), job: rc.ExtractName}
	err = r.execute(ctx, issues, codec)
	r.rc.Elapsed = nowFn().Sub(started)
	return r.rc, err
}

func (r *run) execute(ctx context.Context, issues []config.Issue, codec parquetwriter.Codec) (err error) {
	r.log.Run(slog.LevelInfo, "starting extract "+r.rc.ExtractName,
		slog.String("run_id", r.rc.ID),
		slog.String("timestamp", r.rc.Timestamp),
		slog.String("output", r.rc.OutputDir),
		slog.Int("batch_size", r.cfg.Processing.BatchSize),
	)
	for _, iss := range issues {
		r.log.Run(slog.LevelWarn, iss.Path+": "+iss.Message)
	}

	writer, err := newWriterFn(parquetwriter.Options{
		Codec:        codec,
		RowGroupSize: r.cfg.Output.RowGroupSize,
		Logger:       r.logger,
	})
	if err != nil {
		return r.fail(StateIdle, 0, &config.ConfigError{Path: "output", Err: err})
	}

	// Connecting.
	r.setState(StateConnecting)
	mgr := source.NewManager(r.logger)
	defer func() {
		if cerr := mgr.Close(); cerr != nil {
			r.logger.Warn(fmt.Sprintf("closing connection: %v", cerr))
			if err != nil {
				err = errors.Join(err, cerr)
			}
		}
	}()

	t0 := time.Now()
	conn, err := mgr.Open(ctx, sourceConfig(r.cfg.Database))
	metrics.RecordStep(r.job, "connect", err, time.Since(t0))
	if err != nil {
		return r.fail(StateConnecting, 0, err)
	}

	// Querying.
	r.setState(StateQuerying)
	text, err := loadQueryFn(r.cfg.Query.SQLFilePath)
	if err != nil {
		return r.fail(StateQuerying, 0, err)
	}
	r.logger.Info("executing query from " + r.cfg.Query.SQLFilePath)

	t0 = time.Now()
	cur, err := openCursorFn(ctx, conn, text.String(), r.logger)
	metrics.RecordStep(r.job, "query", err, time.Since(t0))
	if err != nil {
		return r.fail(StateQuerying, 0, err)
	}
	defer func() { _ = cur.Close() }()

	return r.loop(ctx, cur, writer)
}

// loop alternates Fetching and Writing until the cursor is exhausted.
func (r *run) loop(ctx context.Context, cur rowCursor, writer batchWriter) error {
	var (
		batchSize   = r.cfg.Processing.BatchSize
		established bool
		start       = time.Now()
		lastFlushTS = start
	)

	for {
		r.setState(StateFetching)
		t0 := time.Now()
		b, err := cur.Next(ctx, batchSize)
		if errors.Is(err, io.EOF) {
			break
		}
		metrics.RecordStep(r.job, "fetch", err, time.Since(t0))
		if err != nil {
			return r.fail(StateFetching, r.rc.Sequence+1, err)
		}
		r.rc.Sequence = b.Sequence
		metrics.RecordRows(r.job, "fetched", int64(b.Len()))

		if !established {
			s, err := schema.Infer(cur.Columns(), b.Rows)
			if err != nil {
				return r.fail(StateWriting, b.Sequence, err)
			}
			r.rc.Schema = s
			established = true
			r.log.Batch(b.Sequence, slog.LevelInfo, "schema established: "+s.String())
		}

		name, err := naming.ArtifactName(r.rc.ExtractName, r.rc.Timestamp, b.Sequence)
		if err != nil {
			return r.fail(StateWriting, b.Sequence, err)
		}

		r.setState(StateWriting)
		t0 = time.Now()
		res, err := writer.Write(ctx, b, r.rc.Schema, filepath.Join(r.rc.OutputDir, name))
		metrics.RecordStep(r.job, "write", err, time.Since(t0))
		if err != nil {
			if r.cfg.Processing.ContinueOnBatchError && recoverable(err) {
				r.rc.FailedBatches = append(r.rc.FailedBatches, b.Sequence)
				metrics.RecordBatches(r.job, "failed", 1)
				metrics.RecordRows(r.job, "failed", int64(b.Len()))
				r.log.Batch(b.Sequence, slog.LevelError, fmt.Sprintf("batch skipped: %v", err))
				continue
			}
			return r.fail(StateWriting, b.Sequence, err)
		}

		r.rc.Artifacts = append(r.rc.Artifacts, res)
		r.rc.Rows += res.Rows
		metrics.RecordBatches(r.job, "written", 1)
		metrics.RecordRows(r.job, "written", int64(res.Rows))
		metrics.RecordBytes(r.job, res.Bytes)

		// Progress log per successful batch.
		now := time.Now()
		sinceLast := now.Sub(lastFlushTS)
		rps := float64(0)
		if sinceLast > 0 {
			rps = float64(res.Rows) / sinceLast.Seconds()
		}
		r.log.Batch(b.Sequence, slog.LevelInfo,
			fmt.Sprintf("wrote %d rows to %s", res.Rows, filepath.Base(res.Path)),
			slog.Int("total_rows", r.rc.Rows),
			slog.String("rps", fmt.Sprintf("%.0f", rps)),
			slog.Duration("elapsed", now.Sub(start).Truncate(time.Millisecond)),
			slog.Int64("bytes", res.Bytes),
		)
		lastFlushTS = now
	}

	r.log.Run(slog.LevelInfo, fmt.Sprintf("run completed: %d rows in %d batches", r.rc.Rows, len(r.rc.Artifacts)))

	if n := len(r.rc.FailedBatches); n > 0 {
		r.rc.State = StateFailed
		err := fmt.Errorf("%w: %d of %d batches failed %v", ErrPartialRun, n, r.rc.Sequence, r.rc.FailedBatches)
		runlog.Critical(r.logger, err.Error())
		return err
	}
	r.rc.State = StateCompleted
	return nil
}

// recoverable reports whether a batch failure leaves the run able to go on
// with the next batch.
func recoverable(err error) bool {
	var serr *schema.SerializationError
	var ioerr *parquetwriter.IOError
	return errors.As(err, &serr) || errors.As(err, &ioerr)
}

func sourceConfig(d config.Database) source.Config {
	return source.Config{
		Kind:           d.Kind,
		Server:         d.Server,
		Database:       d.Database,
		User:           d.User,
		Password:       d.Password,
		Params:         d.Params,
		DSN:            d.DSN,
		ConnectTimeout: d.ConnectTimeout,
	}
}
