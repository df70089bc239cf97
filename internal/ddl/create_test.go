package ddl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ansi = Dialect{Name: "ansi", QuoteIdent: DoubleQuote}

// TestBuildCreateTableSQL verifies the rendered statements and the errors
// surfaced for invalid definitions.
func TestBuildCreateTableSQL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		dialect     Dialect
		def         TableDef
		wantSQL     string
		errContains string
	}{
		{
			name:        "empty FQN returns error",
			dialect:     ansi,
			def:         TableDef{Columns: []ColumnDef{{Name: "id", SQLType: "text"}}},
			errContains: "table FQN must not be empty",
		},
		{
			name:        "no columns returns error",
			dialect:     ansi,
			def:         TableDef{FQN: "public.t"},
			errContains: "at least one column is required",
		},
		{
			name:        "column with empty name returns error",
			dialect:     ansi,
			def:         TableDef{FQN: "t", Columns: []ColumnDef{{Name: "", SQLType: "text"}}},
			errContains: "column with empty name",
		},
		{
			name:        "column with empty type returns error",
			dialect:     ansi,
			def:         TableDef{FQN: "t", Columns: []ColumnDef{{Name: "id"}}},
			errContains: "missing SQLType",
		},
		{
			name:    "text table keeps header order",
			dialect: ansi,
			def:     TextTable("csv_import", []string{"b", "a"}, "text"),
			wantSQL: "CREATE TABLE IF NOT EXISTS \"csv_import\" (\n  \"b\" text,\n  \"a\" text\n)",
		},
		{
			name:    "schema qualified and hostile names",
			dialect: ansi,
			def: TableDef{FQN: "staging.cars", Columns: []ColumnDef{
				{Name: `we"ird`, SQLType: "text", Nullable: true},
				{Name: "Značka", SQLType: "text"},
			}},
			wantSQL: "CREATE TABLE IF NOT EXISTS \"staging\".\"cars\" (\n  \"we\"\"ird\" text,\n  \"Značka\" text NOT NULL\n)",
		},
		{
			name: "custom create-if-absent wrapper",
			dialect: Dialect{
				Name:       "wrap",
				QuoteIdent: DoubleQuote,
				CreateIfAbsent: func(fqn, stmt string) string {
					return "IF MISSING " + fqn + " " + stmt
				},
			},
			def:     TextTable("t", []string{"x"}, "text"),
			wantSQL: "IF MISSING \"t\" CREATE TABLE \"t\" (\n  \"x\" text\n)",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := BuildCreateTableSQL(tt.dialect, tt.def)
			if tt.errContains != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContains)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, got)
		})
	}
}

func TestDialect_QuoteFQN(t *testing.T) {
	t.Parallel()

	assert.Equal(t, `"t"`, ansi.QuoteFQN("t"))
	assert.Equal(t, `"public"."t"`, ansi.QuoteFQN("public.t"))
	assert.Equal(t, `"a"."b"`, ansi.QuoteFQN("a..b"))
	assert.Equal(t, []string{`"x"`, `"y"`}, ansi.QuoteList([]string{"x", "y"}))
}
