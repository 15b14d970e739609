// Package schema models the column layout of an extract: an ordered list of
// columns, each tagged with one value Kind. The layout is established once per
// run and every later batch is coerced to it.
package schema

import (
	"database/sql"
	"reflect"
	"strings"
	"time"
)

// Kind is the logical type tag of a column.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindBool
	KindInt64
	KindFloat64
	// KindDecimal holds exact numerics (DECIMAL, NUMERIC, MONEY) as text so
	// no precision is lost on the way to the file.
	KindDecimal
	KindString
	KindBytes
	KindDate
	KindTimestamp
)

var kindNames = [...]string{
	KindUnknown:   "unknown",
	KindBool:      "bool",
	KindInt64:     "int64",
	KindFloat64:   "float64",
	KindDecimal:   "decimal",
	KindString:    "string",
	KindBytes:     "bytes",
	KindDate:      "date",
	KindTimestamp: "timestamp",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// KindOf reports the Kind a Go value produced by database/sql maps to.
// nil and unsupported values report KindUnknown.
func KindOf(v any) Kind {
	switch v.(type) {
	case bool:
		return KindBool
	case int, int8, int16, int32, int64, uint8, uint16, uint32, uint, uint64:
		return KindInt64
	case float32, float64:
		return KindFloat64
	case string:
		return KindString
	case []byte:
		return KindBytes
	case time.Time:
		return KindTimestamp
	}
	return KindUnknown
}

// kindFromDatabaseType maps driver type names whose Go scan type is not
// specific enough. It is the inverse of the logical → SQL mapping the
// backends use for DDL.
func kindFromDatabaseType(name string) Kind {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DECIMAL", "NUMERIC", "MONEY", "SMALLMONEY":
		return KindDecimal
	case "DATE":
		return KindDate
	case "UNIQUEIDENTIFIER":
		return KindBytes
	}
	return KindUnknown
}

var (
	nullInt64   = reflect.TypeOf(sql.NullInt64{})
	nullInt32   = reflect.TypeOf(sql.NullInt32{})
	nullInt16   = reflect.TypeOf(sql.NullInt16{})
	nullByte    = reflect.TypeOf(sql.NullByte{})
	nullFloat64 = reflect.TypeOf(sql.NullFloat64{})
	nullBool    = reflect.TypeOf(sql.NullBool{})
	nullString  = reflect.TypeOf(sql.NullString{})
	nullTime    = reflect.TypeOf(sql.NullTime{})
	timeType    = reflect.TypeOf(time.Time{})
)

// kindFromScanType maps the Go type a driver suggests for scanning. Interface
// and unrecognized types report KindUnknown so the caller can fall back to
// the values themselves.
func kindFromScanType(t reflect.Type) Kind {
	if t == nil {
		return KindUnknown
	}
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	switch t {
	case nullInt64, nullInt32, nullInt16, nullByte:
		return KindInt64
	case nullFloat64:
		return KindFloat64
	case nullBool:
		return KindBool
	case nullString:
		return KindString
	case nullTime, timeType:
		return KindTimestamp
	}
	switch t.Kind() {
	case reflect.Bool:
		return KindBool
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return KindInt64
	case reflect.Float32, reflect.Float64:
		return KindFloat64
	case reflect.String:
		return KindString
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return KindBytes
		}
	}
	return KindUnknown
}
