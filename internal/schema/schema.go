package schema

import (
	"fmt"
	"reflect"
	"strings"
)

// ColumnInfo is the metadata a driver reports for one result column.
type ColumnInfo struct {
	Name         string
	DatabaseType string
	ScanType     reflect.Type
}

// Column is one named, typed column of a Schema.
type Column struct {
	Name string
	Kind Kind

	// DatabaseType is the driver's type name, kept for logs and file metadata.
	DatabaseType string
}

// Schema is the ordered column layout shared by every batch of a run.
type Schema struct {
	Columns []Column
}

// Len returns the number of columns.
func (s Schema) Len() int { return len(s.Columns) }

// Names returns the column names in order.
func (s Schema) Names() []string {
	out := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		out[i] = c.Name
	}
	return out
}

// String renders the layout as "name:kind, ...", which is what the run log
// records when the schema is established.
func (s Schema) String() string {
	parts := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		parts[i] = c.Name + ":" + c.Kind.String()
	}
	return strings.Join(parts, ", ")
}

// Infer establishes a Schema from driver metadata and the first non-empty
// batch of rows.
//
// Resolution order per column:
//  1. the database type name (exact numerics, DATE, UNIQUEIDENTIFIER),
//  2. the driver's scan type,
//  3. the first non-nil value in rows,
//  4. KindString when the column is all-null and the driver gave no hint.
func Infer(info []ColumnInfo, rows [][]any) (Schema, error) {
	if len(info) == 0 {
		return Schema{}, fmt.Errorf("schema: result has no columns")
	}

	seen := make(map[string]struct{}, len(info))
	cols := make([]Column, len(info))
	for i, ci := range info {
		if _, dup := seen[ci.Name]; dup {
			return Schema{}, fmt.Errorf("schema: duplicate column name %q; alias it in the query", ci.Name)
		}
		seen[ci.Name] = struct{}{}

		k := kindFromDatabaseType(ci.DatabaseType)
		if k == KindUnknown {
			k = kindFromScanType(ci.ScanType)
		}
		if k == KindUnknown {
			for r, row := range rows {
				if i >= len(row) || row[i] == nil {
					continue
				}
				k = KindOf(row[i])
				if k == KindUnknown {
					return Schema{}, &SerializationError{
						Column: ci.Name,
						Row:    r,
						Value:  row[i],
						Reason: fmt.Sprintf("unsupported value type %T", row[i]),
					}
				}
				break
			}
		}
		if k == KindUnknown {
			k = KindString
		}
		cols[i] = Column{Name: ci.Name, Kind: k, DatabaseType: ci.DatabaseType}
	}
	return Schema{Columns: cols}, nil
}

// CheckColumns verifies that names matches the schema's column order exactly.
func (s Schema) CheckColumns(names []string) error {
	if len(names) != len(s.Columns) {
		return &SerializationError{
			Row:    -1,
			Reason: fmt.Sprintf("batch has %d columns, schema has %d", len(names), len(s.Columns)),
		}
	}
	for i, n := range names {
		if n != s.Columns[i].Name {
			return &SerializationError{
				Column: n,
				Row:    -1,
				Reason: fmt.Sprintf("column %d is %q, schema expects %q", i, n, s.Columns[i].Name),
			}
		}
	}
	return nil
}

// Coerce converts value v found at (row, col) to the canonical Go type of the
// column's Kind. A mismatch yields *SerializationError.
func (s Schema) Coerce(row, col int, v any) (any, error) {
	c := s.Columns[col]
	out, err := coerce(c.Kind, v)
	if err != nil {
		return nil, &SerializationError{
			Column: c.Name,
			Row:    row,
			Kind:   c.Kind,
			Value:  v,
			Reason: err.Error(),
		}
	}
	return out, nil
}

// SerializationError reports a value that cannot be represented under the
// established schema.
type SerializationError struct {
	Column string
	// Row is the zero-based row index within the batch, or -1 when the error
	// concerns the batch layout rather than a value.
	Row    int
	Kind   Kind
	Value  any
	Reason string
}

func (e *SerializationError) Error() string {
	var b strings.Builder
	b.WriteString("serialization")
	if e.Column != "" {
		fmt.Fprintf(&b, ": column %q", e.Column)
	}
	if e.Row >= 0 {
		fmt.Fprintf(&b, " row %d", e.Row)
	}
	if e.Kind != KindUnknown {
		fmt.Fprintf(&b, ": cannot store %T as %s", e.Value, e.Kind)
	}
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	return b.String()
}
