// Package query loads the SQL statement an extract runs. The text is passed to
// the database verbatim; nothing is parsed or validated locally.
package query

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var (
	// ErrQueryNotFound means the query file does not exist.
	ErrQueryNotFound = errors.New("query file not found")
	// ErrEmptyQuery means the file holds nothing but whitespace.
	ErrEmptyQuery = errors.New("query is empty")
)

// Text is an immutable SQL statement.
type Text string

func (t Text) String() string { return string(t) }

// LoadError wraps a failure to load the query file at Path.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string { return fmt.Sprintf("load query %s: %v", e.Path, e.Err) }
func (e *LoadError) Unwrap() error { return e.Err }

// Load reads the statement at path. Files saved with a UTF-8 or UTF-16 byte
// order mark are decoded; everything else is taken as UTF-8.
func Load(path string) (Text, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", &LoadError{Path: path, Err: ErrQueryNotFound}
		}
		return "", &LoadError{Path: path, Err: err}
	}

	b, err := decode(raw)
	if err != nil {
		return "", &LoadError{Path: path, Err: err}
	}
	if strings.TrimSpace(string(b)) == "" {
		return "", &LoadError{Path: path, Err: ErrEmptyQuery}
	}
	return Text(b), nil
}

func decode(raw []byte) ([]byte, error) {
	if !hasBOM(raw) {
		return raw, nil
	}
	// BOMOverride picks UTF-8 or UTF-16 from the mark and strips it.
	dec := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	out, _, err := transform.Bytes(dec, raw)
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return out, nil
}

func hasBOM(b []byte) bool {
	return bytes.HasPrefix(b, []byte{0xEF, 0xBB, 0xBF}) ||
		bytes.HasPrefix(b, []byte{0xFF, 0xFE}) ||
		bytes.HasPrefix(b, []byte{0xFE, 0xFF})
}
