package parquetwriter

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"sqlextract/internal/cursor"
	"sqlextract/internal/runlog"
	"sqlextract/internal/schema"
)

// BenchmarkWrite measures coercion plus Parquet encoding of one full batch,
// including the temp file, fsync and rename.
//
// Run with:
//
//	go test ./internal/parquetwriter -run=^$ -bench ^BenchmarkWrite$ -benchmem -count=1
func BenchmarkWrite(b *testing.B) {
	s := schema.Schema{Columns: []schema.Column{
		{Name: "id", Kind: schema.KindInt64},
		{Name: "customer", Kind: schema.KindString},
		{Name: "amount", Kind: schema.KindDecimal},
		{Name: "created_at", Kind: schema.KindTimestamp},
	}}

	const n = 10000
	rows := make([][]any, n)
	ts := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	for i := range rows {
		rows[i] = []any{int64(i), fmt.Sprintf("customer-%d", i%500), []byte("1234.50"), ts.Add(time.Duration(i) * time.Second)}
	}
	batch := cursor.Batch{Sequence: 1, Columns: s.Names(), Rows: rows}

	for _, codec := range []Codec{CodecNone, CodecSnappy, CodecGzip} {
		b.Run(string(codec), func(b *testing.B) {
			w, err := New(Options{Codec: codec, RowGroupSize: n, Logger: runlog.Nop()})
			if err != nil {
				b.Fatal(err)
			}
			path := filepath.Join(b.TempDir(), "bench.parquet")

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := w.Write(context.Background(), batch, s, path); err != nil {
					b.Fatalf("Write: %v", err)
				}
			}
			b.ReportMetric(float64(n*b.N)/b.Elapsed().Seconds(), "rows/s")
		})
	}
}
