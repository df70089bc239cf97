// Package ddl defines a small, backend-agnostic model for the DDL the loader
// issues and renders idempotent CREATE TABLE statements from it.
//
// Dialect differences (identifier quoting, how "create if absent" is spelled)
// are supplied by the storage backends through a Dialect value.
package ddl

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// Dialect captures the per-backend rendering rules.
type Dialect struct {
	// Name is used in error messages.
	Name string

	// QuoteIdent quotes a single identifier segment.
	QuoteIdent func(string) string

	// CreateIfAbsent wraps a plain "CREATE TABLE <fqn> (...)" statement so
	// that it is a no-op when the table exists. quotedFQN is the rendered
	// table name. When nil, "IF NOT EXISTS" is inserted after CREATE TABLE.
	CreateIfAbsent func(quotedFQN, createStmt string) string
}

// QuoteFQN quotes a possibly schema-qualified name like "public.users" to
// `"public"."users"` using the dialect's identifier quoting. Empty segments
// are ignored.
func (d Dialect) QuoteFQN(fqn string) string {
	parts := strings.Split(fqn, ".")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		out = append(out, d.QuoteIdent(p))
	}
	return strings.Join(out, ".")
}

// QuoteList quotes every name in cols.
func (d Dialect) QuoteList(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = d.QuoteIdent(c)
	}
	return out
}

// BuildCreateTableSQL renders an idempotent CREATE TABLE statement.
//
// Rules:
//
//   - t.FQN must be non-empty.
//   - Each column must have a non-empty Name and SQLType.
//   - A column is rendered as <quoted name> <SQLType> [NOT NULL].
//   - Column order is preserved.
func BuildCreateTableSQL(d Dialect, t TableDef) (string, error) {
	fqn := strings.TrimSpace(t.FQN)
	if fqn == "" {
		return "", errors.Newf("%s ddl: table FQN must not be empty", d.Name)
	}
	if len(t.Columns) == 0 {
		return "", errors.Newf("%s ddl: at least one column is required", d.Name)
	}
	if d.QuoteIdent == nil {
		return "", errors.Newf("%s ddl: dialect has no identifier quoting", d.Name)
	}

	cols := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		if c.Name == "" {
			return "", errors.Newf("%s ddl: column with empty name in table %s", d.Name, fqn)
		}
		typ := strings.TrimSpace(c.SQLType)
		if typ == "" {
			return "", errors.Newf("%s ddl: column %s missing SQLType", d.Name, c.Name)
		}

		var sb strings.Builder
		sb.WriteString(d.QuoteIdent(c.Name))
		sb.WriteByte(' ')
		sb.WriteString(typ)
		if !c.Nullable {
			sb.WriteString(" NOT NULL")
		}
		cols = append(cols, sb.String())
	}

	quoted := d.QuoteFQN(fqn)
	body := "(\n  " + strings.Join(cols, ",\n  ") + "\n)"
	if d.CreateIfAbsent != nil {
		return d.CreateIfAbsent(quoted, "CREATE TABLE "+quoted+" "+body), nil
	}
	return "CREATE TABLE IF NOT EXISTS " + quoted + " " + body, nil
}

// DoubleQuote quotes an identifier ANSI-style, doubling embedded quotes:
//
//	DoubleQuote(`pcv`)        => `"pcv"`
//	DoubleQuote(`weird"name`) => `"weird""name"`
func DoubleQuote(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}
