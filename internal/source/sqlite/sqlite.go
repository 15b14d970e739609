// Package sqlite registers the SQLite backend ("sqlite") with the source
// registry, using the pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"sqlextract/internal/source"
)

// sqlOpen is a test hook that points to sql.Open by default.
var sqlOpen = sql.Open

func init() {
	source.Register("sqlite", Open)
}

// Open opens the database file named by cfg.DSN, or cfg.Database when no DSN
// is set. ":memory:" is accepted.
func Open(_ context.Context, cfg source.Config) (*sql.DB, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		dsn = strings.TrimSpace(cfg.Database)
	}
	if dsn == "" {
		return nil, fmt.Errorf("sqlite: DSN must not be empty")
	}
	db, err := sqlOpen("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	return db, nil
}
