// Package postgres implements the Postgres sink using pgx v5. Rows are
// bulk-loaded with COPY ... FROM STDIN in text format and the server's
// command tag ("COPY n") is handed back as the acknowledgment.
package postgres

import (
	"bytes"
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"csvtopg/internal/ddl"
	"csvtopg/internal/storage"
)

// dialect renders Postgres DDL: double-quoted identifiers and
// CREATE TABLE IF NOT EXISTS.
var dialect = ddl.Dialect{Name: "postgres", QuoteIdent: ddl.DoubleQuote}

// textType is the column type used for every header column.
const textType = "text"

// connect is a test hook that points to pgx.Connect by default.
var connect = pgx.Connect

func init() {
	storage.Register("postgres", Open)
}

// Conn is a Postgres-backed storage.Conn holding a single connection.
type Conn struct {
	conn *pgx.Conn
}

var _ storage.Conn = (*Conn)(nil)

// Open connects to the server named by dsn. The context bounds the connect.
func Open(ctx context.Context, dsn string) (storage.Conn, error) {
	c, err := connect(ctx, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "postgres: connect")
	}
	return &Conn{conn: c}, nil
}

// EnsureTable creates the table with one text column per header name.
func (c *Conn) EnsureTable(ctx context.Context, table string, columns []string) error {
	sql, err := ddl.BuildCreateTableSQL(dialect, ddl.TextTable(table, columns, textType))
	if err != nil {
		return err
	}
	if _, err := c.conn.Exec(ctx, sql); err != nil {
		return errors.Wrapf(pgDetail(err), "postgres: create table %s", table)
	}
	return nil
}

// CopyRows streams rows through COPY FROM STDIN and returns the command tag.
func (c *Conn) CopyRows(ctx context.Context, table string, columns []string, rows [][]string) (string, error) {
	var buf bytes.Buffer
	for _, row := range rows {
		writeCopyRow(&buf, row)
	}
	tag, err := c.conn.PgConn().CopyFrom(ctx, &buf, copySQL(table, columns))
	if err != nil {
		return "", errors.Wrapf(pgDetail(err), "postgres: copy into %s", table)
	}
	return tag.String(), nil
}

// Close closes the connection.
func (c *Conn) Close(ctx context.Context) error {
	return c.conn.Close(ctx)
}

func copySQL(table string, columns []string) string {
	return "COPY " + dialect.QuoteFQN(table) +
		" (" + strings.Join(dialect.QuoteList(columns), ", ") + ") FROM STDIN"
}

// writeCopyRow appends one row in COPY text format: tab-separated fields,
// newline-terminated, with backslash escapes for the characters that carry
// meaning in that format.
func writeCopyRow(buf *bytes.Buffer, row []string) {
	for i, f := range row {
		if i > 0 {
			buf.WriteByte('\t')
		}
		for j := 0; j < len(f); j++ {
			switch b := f[j]; b {
			case '\\':
				buf.WriteString(`\\`)
			case '\t':
				buf.WriteString(`\t`)
			case '\n':
				buf.WriteString(`\n`)
			case '\r':
				buf.WriteString(`\r`)
			default:
				buf.WriteByte(b)
			}
		}
	}
	buf.WriteByte('\n')
}

// pgDetail folds the server's detail and SQLSTATE into the message when the
// error is a *pgconn.PgError.
func pgDetail(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Detail != "" {
		return errors.Wrapf(err, "%s (%s)", pgErr.Detail, pgErr.SQLState())
	}
	return err
}
