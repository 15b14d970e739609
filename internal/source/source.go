// Package source opens and owns the database session an extract reads from.
//
// Backends register an Opener per kind from their init functions; importing
// sqlextract/internal/source/all enables every built-in backend:
//
//	import _ "sqlextract/internal/source/all"
//
//	m := source.NewManager(logger)
//	defer m.Close()
//	conn, err := m.Open(ctx, source.Config{Kind: "mssql", Server: `db01\SALES`, Database: "dw"})
package source

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
)

// DefaultConnectTimeout bounds the initial ping when Config leaves it unset.
const DefaultConnectTimeout = 30 * time.Second

// Config describes one database session.
type Config struct {
	Kind     string
	Server   string
	Database string
	User     string
	Password string
	// Params are extra driver settings in URL query form ("encrypt=disable&...").
	Params string
	// DSN, when set, is handed to the driver as is and the fields above
	// except Kind are ignored.
	DSN            string
	ConnectTimeout time.Duration
}

// Target renders the session target for logs without credentials.
func (c Config) Target() string {
	if c.DSN != "" {
		return c.Kind + " (dsn)"
	}
	if c.Server == "" {
		return fmt.Sprintf("%s %s", c.Kind, c.Database)
	}
	return fmt.Sprintf("%s %s/%s", c.Kind, c.Server, c.Database)
}

// Opener returns a *sql.DB for cfg. It should validate cfg and open the pool
// but need not connect; the Manager pings.
type Opener func(ctx context.Context, cfg Config) (*sql.DB, error)

var (
	mu       sync.RWMutex
	registry = map[string]Opener{}
)

// Register makes a backend available under kind. It panics on a duplicate
// kind or nil opener, which can only happen through a programming error.
func Register(kind string, o Opener) {
	mu.Lock()
	defer mu.Unlock()
	kind = strings.ToLower(strings.TrimSpace(kind))
	if o == nil {
		panic("source: Register opener is nil for " + kind)
	}
	if _, dup := registry[kind]; dup {
		panic("source: Register called twice for " + kind)
	}
	registry[kind] = o
}

// Kinds lists registered backends in sorted order.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func lookup(kind string) (Opener, bool) {
	mu.RLock()
	defer mu.RUnlock()
	o, ok := registry[strings.ToLower(strings.TrimSpace(kind))]
	return o, ok
}

// ErrUnknownKind is wrapped by ConnectionError when no backend is registered
// for the requested kind.
var ErrUnknownKind = errors.New("unknown database kind")

// ConnectionError reports a failure to establish the session.
type ConnectionError struct {
	Target string
	Err    error
}

func (e *ConnectionError) Error() string { return fmt.Sprintf("connect %s: %v", e.Target, e.Err) }
func (e *ConnectionError) Unwrap() error { return e.Err }

// Manager owns one database session. The zero value is usable and Close is
// always safe to call.
type Manager struct {
	logger *slog.Logger
	db     *sql.DB
	conn   *sql.Conn
	closed bool
}

// NewManager returns a Manager that logs to logger.
func NewManager(logger *slog.Logger) *Manager {
	return &Manager{logger: logger}
}

func (m *Manager) log() *slog.Logger {
	if m.logger == nil {
		return slog.Default()
	}
	return m.logger
}

// Open establishes the session described by cfg. A Manager opens at most
// once; call Close before reusing it.
func (m *Manager) Open(ctx context.Context, cfg Config) (*sql.Conn, error) {
	target := cfg.Target()
	if m.conn != nil {
		return nil, &ConnectionError{Target: target, Err: errors.New("session already open")}
	}

	open, ok := lookup(cfg.Kind)
	if !ok {
		return nil, &ConnectionError{
			Target: target,
			Err:    fmt.Errorf("%w %q (registered: %s)", ErrUnknownKind, cfg.Kind, strings.Join(Kinds(), ", ")),
		}
	}

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	m.log().Info("connecting to "+target, slog.Duration("timeout", timeout))

	db, err := open(ctx, cfg)
	if err != nil {
		return nil, &ConnectionError{Target: target, Err: err}
	}
	// One session per run; the pool never needs a second connection.
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, &ConnectionError{Target: target, Err: fmt.Errorf("ping: %w", err)}
	}

	conn, err := db.Conn(ctx)
	if err != nil {
		_ = db.Close()
		return nil, &ConnectionError{Target: target, Err: fmt.Errorf("acquire session: %w", err)}
	}

	m.db, m.conn, m.closed = db, conn, false
	m.log().Info("connection established")
	return conn, nil
}

// Close releases the session and its pool. It is idempotent and safe on a
// Manager whose Open failed or was never called.
func (m *Manager) Close() error {
	if m == nil || m.closed || (m.conn == nil && m.db == nil) {
		return nil
	}
	m.closed = true

	var result *multierror.Error
	if m.conn != nil {
		if err := m.conn.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
			result = multierror.Append(result, fmt.Errorf("close session: %w", err))
		}
	}
	if m.db != nil {
		if err := m.db.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close pool: %w", err))
		}
	}
	m.conn, m.db = nil, nil
	m.log().Info("connection closed")
	return result.ErrorOrNil()
}
