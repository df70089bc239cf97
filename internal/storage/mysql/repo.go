// Package mysql implements the MySQL sink. A batch is streamed to the server
// with LOAD DATA LOCAL INFILE from an in-memory reader registered with the
// driver; the server's affected-row count becomes the "COPY n"
// acknowledgment.
//
// The server must allow local infile (local_infile=1).
package mysql

import (
	"bytes"
	"context"
	"database/sql"
	"io"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"

	"csvtopg/internal/ddl"
	"csvtopg/internal/storage"
)

var dialect = ddl.Dialect{Name: "mysql", QuoteIdent: myIdent}

const textType = "LONGTEXT"

func init() {
	storage.Register("mysql", Open)
}

// myIdent backtick-quotes an identifier, doubling embedded backticks.
func myIdent(id string) string {
	return "`" + strings.ReplaceAll(id, "`", "``") + "`"
}

// Conn is a MySQL-backed storage.Conn.
type Conn struct {
	db *sql.DB
}

var _ storage.Conn = (*Conn)(nil)

// Open parses dsn (go-sql-driver format, e.g.
// "user:pass@tcp(localhost:3306)/db"), opens a pool and pings the server.
func Open(ctx context.Context, dsn string) (storage.Conn, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, errors.Wrap(err, "mysql: dsn")
	}
	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "mysql: connector")
	}
	db := sql.OpenDB(connector)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "mysql: ping")
	}
	return newConn(db), nil
}

func newConn(db *sql.DB) *Conn { return &Conn{db: db} }

// EnsureTable creates the table with one LONGTEXT column per header name.
func (c *Conn) EnsureTable(ctx context.Context, table string, columns []string) error {
	stmt, err := ddl.BuildCreateTableSQL(dialect, ddl.TextTable(table, columns, textType))
	if err != nil {
		return err
	}
	if _, err := c.db.ExecContext(ctx, stmt); err != nil {
		return errors.Wrapf(err, "mysql: create table %s", table)
	}
	return nil
}

// CopyRows loads rows in order inside one transaction.
func (c *Conn) CopyRows(ctx context.Context, table string, columns []string, rows [][]string) (string, error) {
	if len(rows) == 0 {
		return storage.FormatAck(0), nil
	}

	var buf bytes.Buffer
	for _, row := range rows {
		writeRow(&buf, row)
	}
	name := "csvtopg-" + uuid.NewString()
	mysql.RegisterReaderHandler(name, func() io.Reader { return bytes.NewReader(buf.Bytes()) })
	defer mysql.DeregisterReaderHandler(name)

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return "", errors.Wrap(err, "mysql: begin tx")
	}
	res, err := tx.ExecContext(ctx, loadSQL(name, table, columns))
	if err != nil {
		_ = tx.Rollback()
		return "", errors.Wrapf(err, "mysql: load %d rows into %s", len(rows), table)
	}
	n, err := res.RowsAffected()
	if err != nil {
		_ = tx.Rollback()
		return "", errors.Wrap(err, "mysql: rows affected")
	}
	if err := tx.Commit(); err != nil {
		return "", errors.Wrap(err, "mysql: commit")
	}
	return storage.FormatAck(n), nil
}

// Close closes the pool.
func (c *Conn) Close(context.Context) error { return c.db.Close() }

func loadSQL(handler, table string, columns []string) string {
	return "LOAD DATA LOCAL INFILE 'Reader::" + handler + "' INTO TABLE " + dialect.QuoteFQN(table) +
		" CHARACTER SET utf8mb4" +
		` FIELDS TERMINATED BY '\t' ESCAPED BY '\\'` +
		` LINES TERMINATED BY '\n'` +
		" (" + strings.Join(dialect.QuoteList(columns), ", ") + ")"
}

// writeRow appends one tab-separated line, escaping the characters LOAD DATA
// would otherwise interpret.
func writeRow(buf *bytes.Buffer, row []string) {
	for i, f := range row {
		if i > 0 {
			buf.WriteByte('\t')
		}
		for j := 0; j < len(f); j++ {
			switch c := f[j]; c {
			case '\\':
				buf.WriteString(`\\`)
			case '\t':
				buf.WriteString(`\t`)
			case '\n':
				buf.WriteString(`\n`)
			case '\r':
				buf.WriteString(`\r`)
			case 0:
				buf.WriteString(`\0`)
			default:
				buf.WriteByte(c)
			}
		}
	}
	buf.WriteByte('\n')
}
