package query

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func write(t *testing.T, b []byte) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "query.sql")
	require.NoError(t, os.WriteFile(p, b, 0o644))
	return p
}

func TestLoad_Verbatim(t *testing.T) {
	const sql = "SELECT id,\n  name\nFROM dbo.Customers -- all of them\n"
	got, err := Load(write(t, []byte(sql)))
	require.NoError(t, err)
	assert.Equal(t, sql, got.String())
}

func TestLoad_UTF8BOM(t *testing.T) {
	got, err := Load(write(t, append([]byte{0xEF, 0xBB, 0xBF}, "SELECT 1"...)))
	require.NoError(t, err)
	assert.Equal(t, Text("SELECT 1"), got)
}

func TestLoad_UTF16LE(t *testing.T) {
	// "SELECT 'é'" as UTF-16LE with BOM.
	raw := []byte{0xFF, 0xFE}
	for _, r := range "SELECT 'é'" {
		raw = append(raw, byte(r), byte(r>>8))
	}
	got, err := Load(write(t, raw))
	require.NoError(t, err)
	assert.Equal(t, Text("SELECT 'é'"), got)
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.sql"))
	require.True(t, errors.Is(err, ErrQueryNotFound), "got %v", err)

	var lerr *LoadError
	require.ErrorAs(t, err, &lerr)
	assert.Contains(t, lerr.Path, "nope.sql")
}

func TestLoad_Empty(t *testing.T) {
	for _, content := range []string{"", "   \n\t\r\n"} {
		_, err := Load(write(t, []byte(content)))
		assert.ErrorIs(t, err, ErrEmptyQuery, "content %q", content)
	}
}
