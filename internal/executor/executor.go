// Package executor runs rendered SQL against a database target.
package executor

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"  // postgres driver
	_ "github.com/marcboeker/go-duckdb" // duckdb driver
	_ "modernc.org/sqlite"              // sqlite driver
)

// Target describes a database connection.
type Target struct {
	Type string `koanf:"type"` // sqlite, postgres or duckdb
	DSN  string `koanf:"dsn"`
}

// Driver maps a target type to a database/sql driver.
type Driver struct {
	Name       string // registered database/sql driver name
	DefaultDSN string // used when the target has no DSN
}

var (
	driversMu sync.RWMutex
	drivers   = map[string]Driver{
		"sqlite":   {Name: "sqlite", DefaultDSN: ":memory:"},
		"postgres": {Name: "pgx"},
		"duckdb":   {Name: "duckdb", DefaultDSN: ""},
	}
)

// Register adds or replaces a target type.
func Register(typ string, d Driver) {
	driversMu.Lock()
	defer driversMu.Unlock()
	drivers[typ] = d
}

// Types returns the registered target types, sorted.
func Types() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()

	types := make([]string, 0, len(drivers))
	for typ := range drivers {
		types = append(types, typ)
	}
	slices.Sort(types)
	return types
}

// UnknownTargetError is returned by Open for unregistered target types.
type UnknownTargetError struct {
	Type string
}

func (e *UnknownTargetError) Error() string {
	return fmt.Sprintf("unknown target type %q (available: %s)", e.Type, strings.Join(Types(), ", "))
}

// Open opens and pings the database described by t.
func Open(ctx context.Context, t Target) (*sql.DB, error) {
	driversMu.RLock()
	d, ok := drivers[t.Type]
	driversMu.RUnlock()
	if !ok {
		return nil, &UnknownTargetError{Type: t.Type}
	}

	dsn := t.DSN
	if dsn == "" {
		dsn = d.DefaultDSN
	}

	db, err := sql.Open(d.Name, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s connection: %w", t.Type, err)
	}
	if t.Type == "sqlite" && strings.Contains(dsn, ":memory:") {
		// every pooled connection would get its own empty database
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping %s: %w", t.Type, err)
	}
	return db, nil
}

// Result holds the rows of a query, or the affected row count of a statement.
type Result struct {
	Columns      []string
	Rows         []map[string]any
	RowsAffected int64
}

// Runner executes SQL on an open database.
type Runner struct {
	ID     string // tags the runner's log records
	db     *sql.DB
	logger *slog.Logger
}

// NewRunner creates a runner over db. If logger is nil, a discard logger is used.
func NewRunner(db *sql.DB, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	id := uuid.NewString()
	return &Runner{ID: id, db: db, logger: logger.With("run_id", id)}
}

// Query runs a statement that returns rows.
func (r *Runner) Query(ctx context.Context, query string, args ...any) (*Result, error) {
	r.logger.Debug("executing query", slog.String("sql", query), slog.Int("args", len(args)))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return Collect(rows)
}

// Exec runs a statement that does not return rows.
func (r *Runner) Exec(ctx context.Context, query string, args ...any) (*Result, error) {
	r.logger.Debug("executing statement", slog.String("sql", query), slog.Int("args", len(args)))

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("exec failed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		// not every driver reports it
		n = -1
	}
	return &Result{RowsAffected: n}, nil
}

// Close closes the underlying database.
func (r *Runner) Close() error {
	return r.db.Close()
}

// Collect reads all rows. Byte slices are converted to strings.
func Collect(rows *sql.Rows) (*Result, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	res := &Result{Columns: cols}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		row := make(map[string]any, len(cols))
		for i, col := range cols {
			val := values[i]
			if b, ok := val.([]byte); ok {
				val = string(b)
			}
			row[col] = val
		}
		res.Rows = append(res.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// IsQuery reports whether the statement is expected to return rows.
func IsQuery(stmt string) bool {
	fields := strings.Fields(stmt)
	if len(fields) == 0 {
		return false
	}
	switch strings.ToUpper(strings.TrimLeft(fields[0], "(")) {
	case "SELECT", "WITH", "SHOW", "VALUES", "EXPLAIN", "PRAGMA", "DESCRIBE", "TABLE":
		return true
	}
	return strings.Contains(strings.ToUpper(stmt), " RETURNING ")
}
