// Package postgres registers the PostgreSQL backend ("postgres") with the
// source registry, using pgx v5 through its database/sql adapter.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"sqlextract/internal/source"
)

// openDB is a test hook that points to stdlib.OpenDB by default.
var openDB = func(cfg pgx.ConnConfig) *sql.DB { return stdlib.OpenDB(cfg) }

func init() {
	source.Register("postgres", Open)
}

// Open parses the derived connection string and opens a pool.
func Open(_ context.Context, cfg source.Config) (*sql.DB, error) {
	dsn, err := DSN(cfg)
	if err != nil {
		return nil, err
	}
	cc, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres dsn: %w", err)
	}
	if cfg.ConnectTimeout > 0 {
		cc.ConnectTimeout = cfg.ConnectTimeout
	}
	cc.RuntimeParams["application_name"] = "sqlextract"
	return openDB(*cc), nil
}

// DSN builds a postgres:// URL from cfg. Server is "host" or "host:port".
func DSN(cfg source.Config) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}
	host := strings.TrimSpace(cfg.Server)
	if host == "" {
		return "", fmt.Errorf("postgres: server must not be empty")
	}
	q, err := url.ParseQuery(cfg.Params)
	if err != nil {
		return "", fmt.Errorf("postgres: params: %w", err)
	}
	u := &url.URL{
		Scheme:   "postgres",
		Host:     host,
		Path:     "/" + cfg.Database,
		RawQuery: q.Encode(),
	}
	if cfg.User != "" {
		u.User = url.UserPassword(cfg.User, cfg.Password)
	}
	return u.String(), nil
}
