// Package parquetwriter turns one batch of rows into one self-contained
// Parquet file. Files are written under a temporary name in the destination
// directory and renamed into place only after the footer has been flushed and
// synced, so a reader never observes a partial artifact.
package parquetwriter

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/zeebo/xxh3"

	"sqlextract/internal/cursor"
	"sqlextract/internal/runlog"
	"sqlextract/internal/schema"
)

// createdBy is stamped into every file footer in place of the library
// version so identical batches produce identical bytes across upgrades.
const createdBy = "sqlextract"

// Options configures a Writer.
type Options struct {
	Codec        Codec
	RowGroupSize int
	Logger       *slog.Logger
}

// Result describes a committed artifact.
type Result struct {
	Path      string
	Rows      int
	Bytes     int64
	RowGroups int
	// Checksum is the XXH3-64 of the file contents.
	Checksum uint64
}

// Writer serializes batches to Parquet. It holds no per-file state and may be
// reused for every batch of a run.
type Writer struct {
	codec        Codec
	rowGroupSize int
	logger       *slog.Logger
	mem          memory.Allocator
}

// New validates opts and returns a Writer.
func New(opts Options) (*Writer, error) {
	codec, err := ParseCodec(string(opts.Codec))
	if err != nil {
		return nil, err
	}
	if opts.RowGroupSize <= 0 {
		return nil, fmt.Errorf("row group size must be > 0, got %d", opts.RowGroupSize)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		codec:        codec,
		rowGroupSize: opts.RowGroupSize,
		logger:       logger,
		mem:          memory.DefaultAllocator,
	}, nil
}

// Write serializes b under s to path, replacing any file already there.
// Values are coerced to the schema before anything touches the disk; a value
// that does not fit yields *schema.SerializationError and no file. Filesystem
// failures yield *IOError and leave neither the artifact nor the temporary
// file behind.
func (w *Writer) Write(ctx context.Context, b cursor.Batch, s schema.Schema, path string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if err := s.CheckColumns(b.Columns); err != nil {
		return Result{}, err
	}

	as := arrowSchema(s)
	builders := make([]array.Builder, s.Len())
	for i, f := range as.Fields() {
		builders[i] = array.NewBuilder(w.mem, f.Type)
		builders[i].Reserve(len(b.Rows))
	}
	defer func() {
		for _, bld := range builders {
			bld.Release()
		}
	}()

	for r, row := range b.Rows {
		if len(row) != s.Len() {
			return Result{}, &schema.SerializationError{
				Row:    r,
				Reason: fmt.Sprintf("row has %d values, schema has %d columns", len(row), s.Len()),
			}
		}
		for c, v := range row {
			cv, err := s.Coerce(r, c, v)
			if err != nil {
				return Result{}, err
			}
			appendValue(builders[c], cv)
		}
	}

	arrays := make([]arrow.Array, len(builders))
	for i, bld := range builders {
		arrays[i] = bld.NewArray()
	}
	defer func() {
		for _, a := range arrays {
			a.Release()
		}
	}()
	rec := array.NewRecordBatch(as, arrays, int64(len(b.Rows)))
	defer rec.Release()

	w.logger.Info(
		fmt.Sprintf("writing %d records to %s", len(b.Rows), filepath.Base(path)),
		slog.Int(runlog.BatchKey, b.Sequence),
		slog.String("compression", string(w.codec)),
		slog.Int("row_group_size", w.rowGroupSize),
	)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Result{}, &IOError{Op: "mkdir", Path: dir, Err: err}
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return Result{}, &IOError{Op: "create", Path: path, Err: err}
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	hasher := xxh3.New()
	cw := &countingWriter{w: io.MultiWriter(tmp, hasher)}

	props := parquet.NewWriterProperties(
		parquet.WithCompression(w.codec.compression()),
		parquet.WithMaxRowGroupLength(int64(w.rowGroupSize)),
		parquet.WithDictionaryDefault(true),
		parquet.WithCreatedBy(createdBy),
	)
	fw, err := pqarrow.NewFileWriter(as, cw, props, pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema()))
	if err != nil {
		return Result{}, &IOError{Op: "open writer", Path: tmpName, Err: err}
	}
	if err := fw.Write(rec); err != nil {
		_ = fw.Close()
		return Result{}, &IOError{Op: "write", Path: tmpName, Err: err}
	}
	if err := fw.Close(); err != nil {
		return Result{}, &IOError{Op: "finalize", Path: tmpName, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		return Result{}, &IOError{Op: "sync", Path: tmpName, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return Result{}, &IOError{Op: "close", Path: tmpName, Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		return Result{}, &IOError{Op: "rename", Path: path, Err: err}
	}
	committed = true

	res := Result{
		Path:      path,
		Rows:      len(b.Rows),
		Bytes:     cw.n,
		RowGroups: rowGroups(len(b.Rows), w.rowGroupSize),
		Checksum:  hasher.Sum64(),
	}
	w.logger.Debug("artifact committed",
		slog.Int(runlog.BatchKey, b.Sequence),
		slog.String("path", path),
		slog.Int64("bytes", res.Bytes),
		slog.Int("row_groups", res.RowGroups),
		slog.String("xxh3", fmt.Sprintf("%016x", res.Checksum)),
	)
	return res, nil
}

func rowGroups(rows, size int) int {
	if rows == 0 {
		return 0
	}
	return (rows + size - 1) / size
}

// ArrowType returns the Arrow type a Kind is stored as.
func ArrowType(k schema.Kind) arrow.DataType {
	switch k {
	case schema.KindBool:
		return arrow.FixedWidthTypes.Boolean
	case schema.KindInt64:
		return arrow.PrimitiveTypes.Int64
	case schema.KindFloat64:
		return arrow.PrimitiveTypes.Float64
	case schema.KindBytes:
		return arrow.BinaryTypes.Binary
	case schema.KindDate:
		return arrow.FixedWidthTypes.Date32
	case schema.KindTimestamp:
		return arrow.FixedWidthTypes.Timestamp_us
	}
	// Decimal and string both travel as UTF-8 text.
	return arrow.BinaryTypes.String
}

func arrowSchema(s schema.Schema) *arrow.Schema {
	fields := make([]arrow.Field, s.Len())
	for i, c := range s.Columns {
		fields[i] = arrow.Field{Name: c.Name, Type: ArrowType(c.Kind), Nullable: true}
	}
	return arrow.NewSchema(fields, nil)
}

// appendValue appends an already coerced value.
func appendValue(b array.Builder, v any) {
	if v == nil {
		b.AppendNull()
		return
	}
	switch bld := b.(type) {
	case *array.BooleanBuilder:
		bld.Append(v.(bool))
	case *array.Int64Builder:
		bld.Append(v.(int64))
	case *array.Float64Builder:
		bld.Append(v.(float64))
	case *array.StringBuilder:
		bld.Append(v.(string))
	case *array.BinaryBuilder:
		bld.Append(v.([]byte))
	case *array.Date32Builder:
		bld.Append(arrow.Date32FromTime(v.(time.Time)))
	case *array.TimestampBuilder:
		bld.Append(arrow.Timestamp(v.(time.Time).UnixMicro()))
	default:
		b.AppendNull()
	}
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// IOError reports a filesystem failure while producing an artifact.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string { return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err) }
func (e *IOError) Unwrap() error { return e.Err }
