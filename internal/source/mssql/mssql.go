// Package mssql registers the SQL Server backend ("mssql") with the source
// registry, using github.com/microsoft/go-mssqldb.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	_ "github.com/microsoft/go-mssqldb" // registers the "sqlserver" driver
	"github.com/microsoft/go-mssqldb/msdsn"

	"sqlextract/internal/source"
)

const appName = "sqlextract"

// sqlOpen is a test hook that points to sql.Open by default.
var sqlOpen = sql.Open

func init() {
	source.Register("mssql", Open)
}

// Open validates the derived DSN and opens a pool on the "sqlserver" driver.
func Open(_ context.Context, cfg source.Config) (*sql.DB, error) {
	dsn, err := DSN(cfg)
	if err != nil {
		return nil, err
	}
	// Validate DSN early to fail fast on obvious mistakes.
	if _, err := msdsn.Parse(dsn); err != nil {
		return nil, fmt.Errorf("mssql dsn: %w", err)
	}
	db, err := sqlOpen("sqlserver", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	return db, nil
}

// DSN builds a sqlserver:// URL from cfg. Server accepts "host",
// "host\instance", "host:port" and "host,port". Without a user the driver
// falls back to integrated authentication where the platform supports it.
func DSN(cfg source.Config) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}
	server := strings.TrimSpace(cfg.Server)
	if server == "" {
		return "", fmt.Errorf("mssql: server must not be empty")
	}

	host, instance, _ := strings.Cut(server, `\`)
	if h, port, ok := strings.Cut(host, ","); ok {
		host = h + ":" + strings.TrimSpace(port)
	}
	if host == "." || strings.EqualFold(host, "(local)") {
		host = "localhost"
	}

	q, err := url.ParseQuery(cfg.Params)
	if err != nil {
		return "", fmt.Errorf("mssql: params: %w", err)
	}
	if cfg.Database != "" {
		q.Set("database", cfg.Database)
	}
	if q.Get("app name") == "" {
		q.Set("app name", appName)
	}
	if cfg.ConnectTimeout > 0 && q.Get("connection timeout") == "" {
		q.Set("connection timeout", strconv.Itoa(int(cfg.ConnectTimeout.Seconds())))
	}

	u := &url.URL{
		Scheme:   "sqlserver",
		Host:     host,
		Path:     instance,
		RawQuery: q.Encode(),
	}
	if cfg.User != "" {
		u.User = url.UserPassword(cfg.User, cfg.Password)
	}
	return u.String(), nil
}
