package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/marcboeker/go-duckdb/v2"
	_ "modernc.org/sqlite"
)

type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
	DialectDuckDB   Dialect = "duckdb"
)

// DisplayName is the engine name given to the model in prompts.
func (d Dialect) DisplayName() string {
	switch d {
	case DialectSQLite:
		return "SQLite"
	case DialectPostgres:
		return "PostgreSQL"
	case DialectDuckDB:
		return "DuckDB"
	default:
		return string(d)
	}
}

// Placeholder returns the bind parameter marker for the n-th (1-based) argument.
func (d Dialect) Placeholder(n int) string {
	if d == DialectPostgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

func ParseDialect(raw string) (Dialect, error) {
	switch Dialect(strings.ToLower(strings.TrimSpace(raw))) {
	case DialectSQLite:
		return DialectSQLite, nil
	case DialectPostgres, "postgresql", "pgx":
		return DialectPostgres, nil
	case DialectDuckDB:
		return DialectDuckDB, nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", raw)
	}
}

type DBConfig struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
	PingTimeout     time.Duration
}

// ConnectionError reports that the target database (or another required
// collaborator) could not be reached during setup.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection error: %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

func IsConnectionError(err error) bool {
	var connErr *ConnectionError
	return errors.As(err, &connErr)
}

// Handle is an open, pinged database together with its dialect.
type Handle struct {
	DB      *sql.DB
	Dialect Dialect
}

func (h *Handle) Ping(ctx context.Context) error {
	if h == nil || h.DB == nil {
		return &ConnectionError{Op: "ping", Err: errors.New("database handle is not initialized")}
	}
	if err := h.DB.PingContext(ctx); err != nil {
		return &ConnectionError{Op: "ping", Err: err}
	}
	return nil
}

func (h *Handle) Close() error {
	if h == nil || h.DB == nil {
		return nil
	}
	return h.DB.Close()
}

func Open(ctx context.Context, cfg DBConfig) (*Handle, error) {
	dialect, err := ParseDialect(cfg.Driver)
	if err != nil {
		return nil, &ConnectionError{Op: "open", Err: err}
	}
	if cfg.DSN == "" && dialect != DialectDuckDB {
		return nil, &ConnectionError{Op: "open", Err: errors.New("database dsn is required")}
	}

	db, err := sql.Open(driverName(dialect), dataSource(dialect, cfg.DSN))
	if err != nil {
		return nil, &ConnectionError{Op: "open", Err: err}
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if dialect == DialectSQLite && isMemoryDSN(cfg.DSN) {
		// each connection to a private in-memory database is a new database
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxIdleTime(0)
		db.SetConnMaxLifetime(0)
	}

	timeout := cfg.PingTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, &ConnectionError{Op: "ping", Err: err}
	}

	return &Handle{DB: db, Dialect: dialect}, nil
}

func driverName(dialect Dialect) string {
	switch dialect {
	case DialectPostgres:
		return "pgx"
	case DialectDuckDB:
		return "duckdb"
	default:
		return "sqlite"
	}
}

func dataSource(dialect Dialect, dsn string) string {
	if dialect != DialectSQLite {
		return dsn
	}
	if strings.Contains(dsn, "_pragma=busy_timeout") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=busy_timeout(5000)"
}

func isMemoryDSN(dsn string) bool {
	return strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}
