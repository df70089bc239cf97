// Package mssql implements the Microsoft SQL Server sink using the
// go-mssqldb bulk copy API. The driver reports the copied row count through
// RowsAffected; it is rendered as a "COPY n" acknowledgment.
package mssql

import (
	"context"
	"database/sql"
	"strings"

	"github.com/cockroachdb/errors"
	mssql "github.com/microsoft/go-mssqldb"
	"github.com/microsoft/go-mssqldb/msdsn"

	"csvtopg/internal/ddl"
	"csvtopg/internal/storage"
)

// dialect renders SQL Server DDL: [bracketed] identifiers and an OBJECT_ID
// guard, since CREATE TABLE has no IF NOT EXISTS form there.
var dialect = ddl.Dialect{
	Name:       "mssql",
	QuoteIdent: msIdent,
	CreateIfAbsent: func(quotedFQN, stmt string) string {
		lit := strings.ReplaceAll(quotedFQN, "'", "''")
		return "IF OBJECT_ID(N'" + lit + "', N'U') IS NULL\n" + stmt
	},
}

const textType = "NVARCHAR(MAX)"

func init() {
	storage.Register("mssql", Open)
}

// Conn is an MSSQL-backed storage.Conn.
type Conn struct {
	db *sql.DB
}

var _ storage.Conn = (*Conn)(nil)

// Open validates dsn, opens the pool and pings the server.
func Open(ctx context.Context, dsn string) (storage.Conn, error) {
	if _, err := msdsn.Parse(dsn); err != nil {
		return nil, errors.Wrap(err, "mssql: dsn")
	}
	db, err := sql.Open("sqlserver", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "mssql: open")
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "mssql: ping")
	}
	return newConn(db), nil
}

func newConn(db *sql.DB) *Conn { return &Conn{db: db} }

// EnsureTable creates the table with one NVARCHAR(MAX) column per header name.
func (c *Conn) EnsureTable(ctx context.Context, table string, columns []string) error {
	stmt, err := ddl.BuildCreateTableSQL(dialect, ddl.TextTable(table, columns, textType))
	if err != nil {
		return err
	}
	if _, err := c.db.ExecContext(ctx, stmt); err != nil {
		return errors.Wrapf(err, "mssql: create table %s", table)
	}
	return nil
}

// CopyRows bulk-copies rows into table inside one transaction.
func (c *Conn) CopyRows(ctx context.Context, table string, columns []string, rows [][]string) (string, error) {
	if len(rows) == 0 {
		return storage.FormatAck(0), nil
	}
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return "", errors.Wrap(err, "mssql: begin tx")
	}
	rollback := func() { _ = tx.Rollback() }

	stmt, err := tx.PrepareContext(ctx, mssql.CopyIn(dialect.QuoteFQN(table), mssql.BulkOptions{}, columns...))
	if err != nil {
		rollback()
		return "", errors.Wrap(err, "mssql: prepare bulk")
	}
	args := make([]any, len(columns))
	for i, row := range rows {
		if len(row) != len(columns) {
			_ = stmt.Close()
			rollback()
			return "", errors.Newf("mssql: row %d has %d fields, want %d", i, len(row), len(columns))
		}
		for j, f := range row {
			args[j] = f
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			_ = stmt.Close()
			rollback()
			return "", errors.Wrapf(err, "mssql: bulk row %d", i)
		}
	}
	res, err := stmt.ExecContext(ctx)
	if cerr := stmt.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		rollback()
		return "", errors.Wrap(err, "mssql: bulk finalize")
	}
	n, err := res.RowsAffected()
	if err != nil {
		rollback()
		return "", errors.Wrap(err, "mssql: rows affected")
	}
	if err := tx.Commit(); err != nil {
		return "", errors.Wrap(err, "mssql: commit")
	}
	return storage.FormatAck(n), nil
}

// Close closes the pool.
func (c *Conn) Close(context.Context) error { return c.db.Close() }

// msIdent safely quotes a SQL Server identifier using [brackets], escaping ].
func msIdent(id string) string { return `[` + strings.ReplaceAll(id, `]`, `]]`) + `]` }
