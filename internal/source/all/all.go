// Package all enables every built-in source backend. It exists only for its
// side effects:
//
//	import _ "sqlextract/internal/source/all"
//
// makes the kinds "mssql", "postgres" and "sqlite" available to
// source.Manager. Binaries that need fewer backends can import the backend
// packages directly instead.
package all

import (
	_ "sqlextract/internal/source/mssql"
	_ "sqlextract/internal/source/postgres"
	_ "sqlextract/internal/source/sqlite"
)
