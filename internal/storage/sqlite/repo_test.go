package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"csvtopg/internal/storage"
)

func newMemConn(tb testing.TB) *Conn {
	tb.Helper()
	c, err := Open(context.Background(), ":memory:")
	if err != nil {
		tb.Fatalf("open sqlite :memory:: %v", err)
	}
	tb.Cleanup(func() { _ = c.Close(context.Background()) })
	return c.(*Conn)
}

func readAll(tb testing.TB, c *Conn, query string) [][]string {
	tb.Helper()
	rows, err := c.Query(context.Background(), query)
	require.NoError(tb, err)
	defer rows.Close()
	cols, err := rows.Columns()
	require.NoError(tb, err)

	var out [][]string
	for rows.Next() {
		vals := make([]string, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		require.NoError(tb, rows.Scan(ptrs...))
		out = append(out, vals)
	}
	require.NoError(tb, rows.Err())
	return out
}

func TestEnsureTable_Idempotent(t *testing.T) {
	t.Parallel()

	c := newMemConn(t)
	ctx := context.Background()
	cols := []string{"id", "Značka", `we"ird`}

	require.NoError(t, c.EnsureTable(ctx, "cars", cols))
	require.NoError(t, c.EnsureTable(ctx, "cars", cols), "second create must be a no-op")

	got := readAll(t, c, `SELECT name, type FROM pragma_table_info('cars') ORDER BY cid`)
	assert.Equal(t, [][]string{{"id", "TEXT"}, {"Značka", "TEXT"}, {`we"ird`, "TEXT"}}, got)
}

func TestCopyRows_PreservesOrderAndAcks(t *testing.T) {
	t.Parallel()

	c := newMemConn(t)
	ctx := context.Background()
	cols := []string{"a", "b"}
	require.NoError(t, c.EnsureTable(ctx, "t", cols))

	ack, err := c.CopyRows(ctx, "t", cols, [][]string{{"1", "x"}, {"2", "multi\nline"}})
	require.NoError(t, err)
	assert.Equal(t, "COPY 2", ack)

	ack, err = c.CopyRows(ctx, "t", cols, [][]string{{"3", ""}})
	require.NoError(t, err)
	assert.Equal(t, "COPY 1", ack)

	got := readAll(t, c, `SELECT a, b FROM "t" ORDER BY rowid`)
	assert.Equal(t, [][]string{{"1", "x"}, {"2", "multi\nline"}, {"3", ""}}, got)
}

func TestCopyRows_EmptyBatch(t *testing.T) {
	t.Parallel()

	c := newMemConn(t)
	ack, err := c.CopyRows(context.Background(), "t", []string{"a"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "COPY 0", ack)
}

// TestCopyRows_AtomicBatch verifies that a failing row rolls back the rows
// before it in the same batch.
func TestCopyRows_AtomicBatch(t *testing.T) {
	t.Parallel()

	c := newMemConn(t)
	ctx := context.Background()
	cols := []string{"a", "b"}
	require.NoError(t, c.EnsureTable(ctx, "t", cols))

	_, err := c.CopyRows(ctx, "t", cols, [][]string{{"1", "x"}, {"short"}})
	require.Error(t, err)

	assert.Empty(t, readAll(t, c, `SELECT a, b FROM "t"`))
}

func TestCopyRows_MissingTable(t *testing.T) {
	t.Parallel()

	c := newMemConn(t)
	_, err := c.CopyRows(context.Background(), "nope", []string{"a"}, [][]string{{"1"}})
	require.Error(t, err)
}

func TestOpen_EmptyDSN(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), "  ")
	require.Error(t, err)
}

func TestInsertSQL(t *testing.T) {
	t.Parallel()

	assert.Equal(t, `INSERT INTO "main"."t" ("a", "b") VALUES (?, ?)`, insertSQL("main.t", []string{"a", "b"}))
}

func TestRegistered(t *testing.T) {
	t.Parallel()

	conn, err := storage.Open(context.Background(), "sqlite", ":memory:")
	require.NoError(t, err)
	require.NoError(t, conn.Close(context.Background()))
}
