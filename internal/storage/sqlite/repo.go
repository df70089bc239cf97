// Package sqlite implements the SQLite sink using database/sql and the
// pure-Go modernc.org/sqlite driver. SQLite has no bulk-load API like
// Postgres COPY, so a batch is inserted with a prepared statement inside one
// transaction and the acknowledgment is rendered as "COPY n".
package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/cockroachdb/errors"
	_ "modernc.org/sqlite"

	"csvtopg/internal/ddl"
	"csvtopg/internal/storage"
)

var dialect = ddl.Dialect{Name: "sqlite", QuoteIdent: ddl.DoubleQuote}

const textType = "TEXT"

func init() {
	storage.Register("sqlite", Open)
}

// Conn is a SQLite-backed storage.Conn.
type Conn struct {
	db *sql.DB
}

var _ storage.Conn = (*Conn)(nil)

// Open opens the database named by dsn, for example:
//
//	"file:csvtopg.db?_pragma=busy_timeout(5000)"
//	":memory:"
//
// The pool is limited to one connection so that ":memory:" databases are
// shared by every statement of the run.
func Open(ctx context.Context, dsn string) (storage.Conn, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("sqlite: DSN must not be empty")
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite: open")
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "sqlite: ping")
	}
	return &Conn{db: db}, nil
}

// EnsureTable creates the table with one TEXT column per header name.
func (c *Conn) EnsureTable(ctx context.Context, table string, columns []string) error {
	stmt, err := ddl.BuildCreateTableSQL(dialect, ddl.TextTable(table, columns, textType))
	if err != nil {
		return err
	}
	if _, err := c.db.ExecContext(ctx, stmt); err != nil {
		return errors.Wrapf(err, "sqlite: create table %s", table)
	}
	return nil
}

// CopyRows inserts rows in order inside one transaction. Either the whole
// batch commits or none of it does.
func (c *Conn) CopyRows(ctx context.Context, table string, columns []string, rows [][]string) (string, error) {
	if len(columns) == 0 {
		return "", errors.New("sqlite: columns must not be empty")
	}
	if len(rows) == 0 {
		return storage.FormatAck(0), nil
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return "", errors.Wrap(err, "sqlite: begin tx")
	}
	stmt, err := tx.PrepareContext(ctx, insertSQL(table, columns))
	if err != nil {
		_ = tx.Rollback()
		return "", errors.Wrap(err, "sqlite: prepare insert")
	}
	defer stmt.Close()

	args := make([]any, len(columns))
	var inserted int64
	for i, row := range rows {
		if len(row) != len(columns) {
			_ = tx.Rollback()
			return "", errors.Newf("sqlite: row %d has %d fields, want %d", i, len(row), len(columns))
		}
		for j, f := range row {
			args[j] = f
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			_ = tx.Rollback()
			return "", errors.Wrapf(err, "sqlite: insert row %d", i)
		}
		inserted++
	}
	if err := tx.Commit(); err != nil {
		return "", errors.Wrap(err, "sqlite: commit")
	}
	return storage.FormatAck(inserted), nil
}

// Query runs a read query on the underlying database. It exists for
// verification tools and tests.
func (c *Conn) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.db.QueryContext(ctx, query, args...)
}

// Close closes the database.
func (c *Conn) Close(context.Context) error { return c.db.Close() }

func insertSQL(table string, columns []string) string {
	placeholders := make([]string, len(columns))
	for i := range placeholders {
		placeholders[i] = "?"
	}
	return "INSERT INTO " + dialect.QuoteFQN(table) +
		" (" + strings.Join(dialect.QuoteList(columns), ", ") + ") VALUES (" +
		strings.Join(placeholders, ", ") + ")"
}
