package ddl

// ColumnDef describes a single column of a table to create.
//
// Fields:
//   - Name: column name as read from the header (unquoted; quoting happens at render time)
//   - SQLType: target SQL type (e.g. text, NVARCHAR(MAX))
//   - Nullable: whether NULL is allowed
type ColumnDef struct {
	Name     string
	SQLType  string
	Nullable bool
}

// TableDef holds the possibly schema-qualified table name (FQN) and an
// ordered list of columns. The FQN is expected in dotted form
// ("schema.table") and is quoted segment by segment by renderers.
type TableDef struct {
	FQN     string
	Columns []ColumnDef
}

// TextTable builds a table definition in which every column has the same
// unstructured text type. Column order follows names.
func TextTable(fqn string, names []string, textType string) TableDef {
	cols := make([]ColumnDef, len(names))
	for i, n := range names {
		cols[i] = ColumnDef{Name: n, SQLType: textType, Nullable: true}
	}
	return TableDef{FQN: fqn, Columns: cols}
}
