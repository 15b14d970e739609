// Package artifact reads back Parquet files produced by an extract run. It is
// used by the inspect command and by tests that verify round trips.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/parquet-go/parquet-go"
)

// Column describes one column of an artifact as stored in the file.
type Column struct {
	Name     string
	Type     string
	Optional bool
}

// Info is the footer-level description of an artifact.
type Info struct {
	Path      string
	Size      int64
	Rows      int64
	RowGroups int
	CreatedBy string
	Columns   []Column
}

// Describe reads the footer of the Parquet file at path.
func Describe(path string) (Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return Info{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	stat, err := f.Stat()
	if err != nil {
		return Info{}, fmt.Errorf("stat %s: %w", path, err)
	}

	pf, err := parquet.OpenFile(f, stat.Size())
	if err != nil {
		return Info{}, fmt.Errorf("open parquet file %s: %w", path, err)
	}

	fields := pf.Schema().Fields()
	cols := make([]Column, len(fields))
	for i, fld := range fields {
		cols[i] = Column{
			Name:     fld.Name(),
			Type:     fld.Type().String(),
			Optional: fld.Optional(),
		}
	}

	return Info{
		Path:      path,
		Size:      stat.Size(),
		Rows:      pf.NumRows(),
		RowGroups: len(pf.RowGroups()),
		CreatedBy: pf.Metadata().CreatedBy,
		Columns:   cols,
	}, nil
}

// Rows is the decoded content of an artifact.
type Rows struct {
	Columns []string
	Values  [][]any
}

// ReadRows decodes every row of the artifact at path. Values come back as the
// Go types the writer accepts: bool, int64, float64, string, []byte and
// time.Time in UTC, with nil for nulls. limit <= 0 reads all rows.
func ReadRows(ctx context.Context, path string, limit int) (Rows, error) {
	f, err := os.Open(path)
	if err != nil {
		return Rows{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	pr, err := file.NewParquetReader(f)
	if err != nil {
		return Rows{}, fmt.Errorf("open parquet file %s: %w", path, err)
	}
	defer func() { _ = pr.Close() }()

	fr, err := pqarrow.NewFileReader(pr, pqarrow.ArrowReadProperties{BatchSize: 1024}, memory.DefaultAllocator)
	if err != nil {
		return Rows{}, fmt.Errorf("arrow file reader: %w", err)
	}
	sc, err := fr.Schema()
	if err != nil {
		return Rows{}, fmt.Errorf("arrow schema: %w", err)
	}

	out := Rows{Columns: make([]string, len(sc.Fields()))}
	for i, fld := range sc.Fields() {
		out.Columns[i] = fld.Name
	}

	rr, err := fr.GetRecordReader(ctx, nil, nil)
	if err != nil {
		return Rows{}, fmt.Errorf("record reader: %w", err)
	}
	defer rr.Release()

	for limit <= 0 || len(out.Values) < limit {
		rec, err := rr.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return Rows{}, fmt.Errorf("read %s: %w", path, err)
		}
		if rec == nil || rec.NumRows() == 0 {
			break
		}
		for i := 0; i < int(rec.NumRows()); i++ {
			if limit > 0 && len(out.Values) >= limit {
				break
			}
			row := make([]any, rec.NumCols())
			for j := range row {
				row[j] = value(rec.Column(j), i)
			}
			out.Values = append(out.Values, row)
		}
	}
	return out, nil
}

func value(col arrow.Array, i int) any {
	if col.IsNull(i) {
		return nil
	}
	switch c := col.(type) {
	case *array.Boolean:
		return c.Value(i)
	case *array.Int32:
		return int64(c.Value(i))
	case *array.Int64:
		return c.Value(i)
	case *array.Float32:
		return float64(c.Value(i))
	case *array.Float64:
		return c.Value(i)
	case *array.String:
		return strings.Clone(c.Value(i))
	case *array.LargeString:
		return strings.Clone(c.Value(i))
	case *array.Binary:
		return append([]byte(nil), c.Value(i)...)
	case *array.Date32:
		return c.Value(i).ToTime()
	case *array.Timestamp:
		unit := c.DataType().(*arrow.TimestampType).Unit
		return c.Value(i).ToTime(unit).UTC()
	}
	return col.ValueStr(i)
}

