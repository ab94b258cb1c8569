// Package store implements the data-access core: pooled Postgres
// connections, a generic SQL executor, and a batched upsert writer with
// per-chunk transaction semantics. This package has no HTTP or shaping
// dependencies and can be used by any caller that owns a connection pool.
package store

import (
	"context"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Beginner extends DBTX with the ability to open a transaction.
// Satisfied by *pgxpool.Pool; the writer needs it to scope each chunk.
type Beginner interface {
	DBTX
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Dataset is an ordered-column tabular payload destined for one write.
// Every row must carry exactly one value per column, in column order.
type Dataset struct {
	Columns []string
	Rows    [][]any
}

// NumRows returns the number of rows in the dataset.
func (d *Dataset) NumRows() int {
	if d == nil {
		return 0
	}
	return len(d.Rows)
}

// ColumnIndex returns the position of a column, or -1 if absent.
func (d *Dataset) ColumnIndex(name string) int {
	for i, c := range d.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Table holds query results with columns in store order.
type Table struct {
	Columns []string
	Rows    [][]any
}

// NumRows returns the number of result rows.
func (t *Table) NumRows() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// ColumnIndex returns the position of a result column, or -1 if absent.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// WriteMode selects how the writer resolves primary-key conflicts.
type WriteMode int

const (
	// WriteAppend inserts rows only. A primary-key collision fails the
	// chunk with IntegrityError and rolls it back entirely.
	WriteAppend WriteMode = iota

	// WriteUpsert inserts new rows and overwrites the non-key columns of
	// existing ones, as a single atomic statement per chunk.
	WriteUpsert
)

// String returns the mode name used in logs and API payloads.
func (m WriteMode) String() string {
	switch m {
	case WriteAppend:
		return "append"
	case WriteUpsert:
		return "upsert"
	default:
		return "unknown"
	}
}

// ParseWriteMode maps the wire names "append" and "upsert" to a WriteMode.
func ParseWriteMode(s string) (WriteMode, error) {
	switch s {
	case "append":
		return WriteAppend, nil
	case "upsert":
		return WriteUpsert, nil
	default:
		return 0, &ValidationError{Msg: "write mode must be \"append\" or \"upsert\", got " + strconv.Quote(s)}
	}
}

// WriteResult reports how much of a write landed. On error it reflects
// the chunks that committed before the failing one.
type WriteResult struct {
	RowsWritten     int64
	ChunksCommitted int
}
