package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// fakeDB implements Beginner and records every transaction the writer
// opens. An execErrs entry keyed by statement ordinal (1-based) makes
// that chunk's Exec fail.
type fakeDB struct {
	begun     int
	execCalls []execCall
	committed int64
	execErrs  map[int]error
}

type execCall struct {
	sql  string
	args []any
}

func (f *fakeDB) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, fmt.Errorf("unexpected direct Exec")
}

func (f *fakeDB) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	return nil, fmt.Errorf("unexpected direct Query")
}

func (f *fakeDB) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	return nil
}

func (f *fakeDB) Begin(ctx context.Context) (pgx.Tx, error) {
	f.begun++
	return &fakeTx{db: f}, nil
}

// fakeTx embeds pgx.Tx for interface satisfaction; only the methods the
// writer touches are implemented.
type fakeTx struct {
	pgx.Tx
	db     *fakeDB
	failed bool
	done   bool
}

func (t *fakeTx) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	t.db.execCalls = append(t.db.execCalls, execCall{sql: sql, args: args})
	if err := t.db.execErrs[len(t.db.execCalls)]; err != nil {
		t.failed = true
		return pgconn.CommandTag{}, err
	}
	return pgconn.CommandTag{}, nil
}

func (t *fakeTx) Commit(ctx context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	if !t.failed {
		t.db.committed += countRows(t.db.execCalls[len(t.db.execCalls)-1])
	}
	return nil
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	return nil
}

// countRows derives the row count of a recorded chunk from its VALUES
// placeholders and argument list.
func countRows(c execCall) int64 {
	perRow := strings.Count(valuesGroup(c.sql), "$")
	if perRow == 0 {
		return 0
	}
	return int64(len(c.args) / perRow)
}

// valuesGroup returns the first parenthesized VALUES group of the
// statement, e.g. "($1, $2, $3, $4)".
func valuesGroup(sql string) string {
	i := strings.Index(sql, "VALUES (")
	if i < 0 {
		return ""
	}
	rest := sql[i+len("VALUES "):]
	j := strings.IndexByte(rest, ')')
	if j < 0 {
		return ""
	}
	return rest[:j+1]
}

// seriesDataset builds an n-row dataset shaped like the indicator table.
func seriesDataset(n int) *Dataset {
	d := &Dataset{Columns: []string{"code", "date", "field", "value"}}
	for i := 0; i < n; i++ {
		d.Rows = append(d.Rows, []any{"BRL", fmt.Sprintf("2024-01-%02d", i%28+1), "close", float64(i)})
	}
	return d
}

func TestWriteValidation(t *testing.T) {
	tests := []struct {
		name    string
		table   string
		data    *Dataset
		keys    []string
		wantErr string
	}{
		{
			name:    "empty table name",
			table:   "  ",
			data:    seriesDataset(1),
			keys:    []string{"code"},
			wantErr: "validation",
		},
		{
			name:    "nil dataset",
			table:   "indicadores",
			data:    nil,
			keys:    []string{"code"},
			wantErr: "schema",
		},
		{
			name:    "no primary keys",
			table:   "indicadores",
			data:    seriesDataset(1),
			keys:    nil,
			wantErr: "schema",
		},
		{
			name:    "key not in columns",
			table:   "indicadores",
			data:    seriesDataset(1),
			keys:    []string{"ticker"},
			wantErr: "schema",
		},
		{
			name:    "duplicate column",
			table:   "indicadores",
			data:    &Dataset{Columns: []string{"code", "code"}, Rows: [][]any{{"a", "b"}}},
			keys:    []string{"code"},
			wantErr: "schema",
		},
		{
			name:    "unnamed column",
			table:   "indicadores",
			data:    &Dataset{Columns: []string{"code", " "}, Rows: [][]any{{"a", "b"}}},
			keys:    []string{"code"},
			wantErr: "schema",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := &fakeDB{}
			_, err := Write(context.Background(), db, tt.table, tt.data, tt.keys, WriteUpsert)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to mention %q", err, tt.wantErr)
			}
			if db.begun != 0 {
				t.Errorf("opened %d transactions before validation failure, want 0", db.begun)
			}
		})
	}
}

func TestWriteEmptyDatasetIsNoOp(t *testing.T) {
	db := &fakeDB{}
	res, err := Write(context.Background(), db, "indicadores", &Dataset{Columns: []string{"code", "value"}}, []string{"code"}, WriteUpsert)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.RowsWritten != 0 || res.ChunksCommitted != 0 {
		t.Errorf("result = %+v, want zero", res)
	}
	if db.begun != 0 {
		t.Errorf("opened %d transactions for empty dataset, want 0", db.begun)
	}
}

func TestWriteChunkAtomicity(t *testing.T) {
	// 10,000 rows in 1,000-row chunks with a conversion failure injected
	// into chunk 5: chunks 1-4 must stay committed, chunk 5 must roll
	// back, chunks 6-10 must never start.
	prev := MaxChunkRows
	MaxChunkRows = 1000
	defer func() { MaxChunkRows = prev }()

	db := &fakeDB{execErrs: map[int]error{
		5: &pgconn.PgError{Code: "22003", Message: "numeric field overflow"},
	}}

	res, err := Write(context.Background(), db, "indicadores", seriesDataset(10000), []string{"code", "date", "field"}, WriteUpsert)
	if err == nil {
		t.Fatal("expected error from chunk 5, got nil")
	}
	var convErr *TypeConversionError
	if !errors.As(err, &convErr) {
		t.Fatalf("error = %T (%v), want TypeConversionError", err, err)
	}
	if res.ChunksCommitted != 4 {
		t.Errorf("ChunksCommitted = %d, want 4", res.ChunksCommitted)
	}
	if res.RowsWritten != 4000 {
		t.Errorf("RowsWritten = %d, want 4000", res.RowsWritten)
	}
	if db.committed != 4000 {
		t.Errorf("committed rows = %d, want 4000", db.committed)
	}
	if db.begun != 5 {
		t.Errorf("transactions opened = %d, want 5 (chunks after the failure must not run)", db.begun)
	}
}

func TestWriteConversionFailureSkipsTransaction(t *testing.T) {
	// A client-side conversion failure in chunk 2 must leave chunk 1
	// committed and never open a transaction for chunk 2.
	prev := MaxChunkRows
	MaxChunkRows = 2
	defer func() { MaxChunkRows = prev }()

	data := &Dataset{
		Columns: []string{"code", "value"},
		Rows: [][]any{
			{"A", 1.0},
			{"B", 2.0},
			{"C", make(chan int)},
			{"D", 4.0},
		},
	}

	db := &fakeDB{}
	res, err := Write(context.Background(), db, "indicadores", data, []string{"code"}, WriteUpsert)
	var convErr *TypeConversionError
	if !errors.As(err, &convErr) {
		t.Fatalf("error = %T (%v), want TypeConversionError", err, err)
	}
	if convErr.Column != "value" {
		t.Errorf("Column = %q, want %q", convErr.Column, "value")
	}
	if res.ChunksCommitted != 1 || res.RowsWritten != 2 {
		t.Errorf("result = %+v, want 1 chunk / 2 rows", res)
	}
	if db.begun != 1 {
		t.Errorf("transactions opened = %d, want 1", db.begun)
	}
}

func TestWriteAppendCollision(t *testing.T) {
	db := &fakeDB{execErrs: map[int]error{
		1: &pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint", TableName: "indicadores"},
	}}

	res, err := Write(context.Background(), db, "indicadores", seriesDataset(10), []string{"code", "date", "field"}, WriteAppend)
	var intErr *IntegrityError
	if !errors.As(err, &intErr) {
		t.Fatalf("error = %T (%v), want IntegrityError", err, err)
	}
	if intErr.Table != "indicadores" {
		t.Errorf("Table = %q, want %q", intErr.Table, "indicadores")
	}
	if res.RowsWritten != 0 || res.ChunksCommitted != 0 {
		t.Errorf("result = %+v, want nothing committed", res)
	}
	if db.committed != 0 {
		t.Errorf("committed rows = %d, want 0", db.committed)
	}
}

func TestWriteUpsertDedupesKeepLast(t *testing.T) {
	data := &Dataset{
		Columns: []string{"code", "date", "field", "value"},
		Rows: [][]any{
			{"BRL", "2024-01-02", "close", 1.0},
			{"USD", "2024-01-02", "close", 2.0},
			{"BRL", "2024-01-02", "close", 9.0},
		},
	}

	db := &fakeDB{}
	res, err := Write(context.Background(), db, "indicadores", data, []string{"code", "date", "field"}, WriteUpsert)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.RowsWritten != 2 {
		t.Errorf("RowsWritten = %d, want 2 (duplicate key collapses keep-last)", res.RowsWritten)
	}
	if len(db.execCalls) != 1 {
		t.Fatalf("exec calls = %d, want 1", len(db.execCalls))
	}
	args := db.execCalls[0].args
	if len(args) != 8 {
		t.Fatalf("args = %d, want 8 (2 rows x 4 columns)", len(args))
	}
	// First slot keeps the original position, but with the later value.
	if args[3] != 9.0 {
		t.Errorf("kept value = %v, want 9 (last occurrence wins)", args[3])
	}
}

func TestWriteAppendKeepsDuplicates(t *testing.T) {
	data := &Dataset{
		Columns: []string{"code", "value"},
		Rows: [][]any{
			{"BRL", 1.0},
			{"BRL", 2.0},
		},
	}

	db := &fakeDB{}
	res, err := Write(context.Background(), db, "indicadores", data, []string{"code"}, WriteAppend)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.RowsWritten != 2 {
		t.Errorf("RowsWritten = %d, want 2 (append never drops rows)", res.RowsWritten)
	}
}

func TestBuildInsertSQL(t *testing.T) {
	tests := []struct {
		name     string
		columns  []string
		keys     []string
		rowCount int
		mode     WriteMode
		want     string
	}{
		{
			name:     "append two rows",
			columns:  []string{"code", "value"},
			keys:     []string{"code"},
			rowCount: 2,
			mode:     WriteAppend,
			want:     `INSERT INTO "indicadores" ("code", "value") VALUES ($1, $2), ($3, $4)`,
		},
		{
			name:     "upsert updates non-key columns",
			columns:  []string{"code", "date", "field", "value"},
			keys:     []string{"code", "date", "field"},
			rowCount: 1,
			mode:     WriteUpsert,
			want:     `INSERT INTO "indicadores" ("code", "date", "field", "value") VALUES ($1, $2, $3, $4) ON CONFLICT ("code", "date", "field") DO UPDATE SET "value" = EXCLUDED."value"`,
		},
		{
			name:     "upsert with all columns keyed ignores conflicts",
			columns:  []string{"code", "date"},
			keys:     []string{"code", "date"},
			rowCount: 1,
			mode:     WriteUpsert,
			want:     `INSERT INTO "indicadores" ("code", "date") VALUES ($1, $2) ON CONFLICT ("code", "date") DO NOTHING`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := buildInsertSQL("indicadores", tt.columns, tt.keys, tt.rowCount, tt.mode)
			if got != tt.want {
				t.Errorf("buildInsertSQL =\n  %s\nwant\n  %s", got, tt.want)
			}
		})
	}
}

func TestChunkRows(t *testing.T) {
	prev := MaxChunkRows
	MaxChunkRows = 5000
	defer func() { MaxChunkRows = prev }()

	tests := []struct {
		name    string
		columns int
		want    int
	}{
		{name: "narrow table uses full chunk", columns: 4, want: 5000},
		{name: "wide table bounded by parameter limit", columns: 20, want: 3276},
		{name: "degenerate width still admits one row", columns: 70000, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := chunkRows(tt.columns); got != tt.want {
				t.Errorf("chunkRows(%d) = %d, want %d", tt.columns, got, tt.want)
			}
		})
	}
}

func TestQuoteIdentifier(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "plain", input: "indicadores", want: `"indicadores"`},
		{name: "embedded quote doubled", input: `weird"name`, want: `"weird""name"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := QuoteIdentifier(tt.input); got != tt.want {
				t.Errorf("QuoteIdentifier(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}
