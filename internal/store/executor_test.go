package store

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// fakeRows plays back a canned result set through the pgx.Rows interface.
type fakeRows struct {
	pgx.Rows
	columns []string
	rows    [][]any
	pos     int
	rowsErr error
}

func (r *fakeRows) Close() {}

func (r *fakeRows) Err() error { return r.rowsErr }

func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription {
	fields := make([]pgconn.FieldDescription, len(r.columns))
	for i, c := range r.columns {
		fields[i] = pgconn.FieldDescription{Name: c}
	}
	return fields
}

func (r *fakeRows) Next() bool {
	if r.pos >= len(r.rows) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Values() ([]any, error) {
	return r.rows[r.pos-1], nil
}

// fakeQuerier implements DBTX for executor tests.
type fakeQuerier struct {
	rows     *fakeRows
	queryErr error
	execTag  pgconn.CommandTag
	execErr  error
	lastSQL  string
	lastArgs []any
}

func (f *fakeQuerier) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	f.lastSQL = sql
	f.lastArgs = args
	return f.execTag, f.execErr
}

func (f *fakeQuerier) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	f.lastSQL = sql
	f.lastArgs = args
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.rows, nil
}

func (f *fakeQuerier) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	return nil
}

func TestQuery(t *testing.T) {
	db := &fakeQuerier{rows: &fakeRows{
		columns: []string{"code", "value"},
		rows: [][]any{
			{"BRL", 4.95},
			{"USD", 1.0},
		},
	}}

	got, err := Query(context.Background(), db, "SELECT code, value FROM indicadores WHERE field = $1", "close")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.Columns) != 2 || got.Columns[0] != "code" || got.Columns[1] != "value" {
		t.Errorf("columns = %v, want [code value]", got.Columns)
	}
	if got.NumRows() != 2 {
		t.Fatalf("rows = %d, want 2", got.NumRows())
	}
	if got.Rows[1][0] != "USD" {
		t.Errorf("rows[1][0] = %v, want USD", got.Rows[1][0])
	}
	if db.lastArgs[0] != "close" {
		t.Errorf("bound arg = %v, want close", db.lastArgs[0])
	}
}

func TestQueryStatementError(t *testing.T) {
	db := &fakeQuerier{queryErr: &pgconn.PgError{Code: "42601", Message: "syntax error"}}

	_, err := Query(context.Background(), db, "SELEC broken")
	var qe *QueryError
	if !errors.As(err, &qe) {
		t.Fatalf("error = %T (%v), want QueryError", err, err)
	}
}

func TestQueryIterationError(t *testing.T) {
	db := &fakeQuerier{rows: &fakeRows{
		columns: []string{"code"},
		rowsErr: &pgconn.PgError{Code: "08006", Message: "connection reset"},
	}}

	_, err := Query(context.Background(), db, "SELECT code FROM indicadores")
	var ce *ConnectionError
	if !errors.As(err, &ce) {
		t.Fatalf("error = %T (%v), want ConnectionError", err, err)
	}
}

func TestExec(t *testing.T) {
	db := &fakeQuerier{execTag: pgconn.NewCommandTag("UPDATE 5")}

	affected, err := Exec(context.Background(), db, "UPDATE indicadores SET value = 0 WHERE code = $1", "BRL")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if affected != 5 {
		t.Errorf("affected = %d, want 5", affected)
	}
}

func TestExecError(t *testing.T) {
	db := &fakeQuerier{execErr: &pgconn.PgError{Code: "23505"}}

	_, err := Exec(context.Background(), db, "INSERT INTO indicadores VALUES ($1)", "x")
	var ie *IntegrityError
	if !errors.As(err, &ie) {
		t.Fatalf("error = %T (%v), want IntegrityError", err, err)
	}
}

func TestTableColumnIndex(t *testing.T) {
	tbl := &Table{Columns: []string{"code", "date", "value"}}

	tests := []struct {
		name   string
		column string
		want   int
	}{
		{name: "first", column: "code", want: 0},
		{name: "last", column: "value", want: 2},
		{name: "absent", column: "ticker", want: -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tbl.ColumnIndex(tt.column); got != tt.want {
				t.Errorf("ColumnIndex(%q) = %d, want %d", tt.column, got, tt.want)
			}
		})
	}
}
