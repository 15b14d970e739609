package parquetwriter

import (
	"fmt"
	"strings"

	"github.com/apache/arrow-go/v18/parquet/compress"
)

// Codec names a Parquet page compression codec.
type Codec string

const (
	CodecNone   Codec = "none"
	CodecSnappy Codec = "snappy"
	CodecGzip   Codec = "gzip"
)

// ParseCodec accepts the compression names understood by output.compression.
func ParseCodec(s string) (Codec, error) {
	switch c := Codec(strings.ToLower(strings.TrimSpace(s))); c {
	case CodecNone, CodecSnappy, CodecGzip:
		return c, nil
	}
	return "", fmt.Errorf("unsupported compression %q (want none, snappy or gzip)", s)
}

func (c Codec) compression() compress.Compression {
	switch c {
	case CodecSnappy:
		return compress.Codecs.Snappy
	case CodecGzip:
		return compress.Codecs.Gzip
	}
	return compress.Codecs.Uncompressed
}
