package store

// writer.go implements the batched insert/upsert path.
//
// A write is partitioned into bounded chunks, each committed in its own
// transaction. Upserts resolve primary-key conflicts store-side with a
// single INSERT ... ON CONFLICT DO UPDATE statement per chunk, never a
// read-then-write sequence, so concurrent writers cannot interleave
// between the existence check and the write.

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// MaxChunkRows bounds how many rows go into one statement. The ingestion
// feeds were tuned around this size; the effective bound also respects
// the statement parameter limit.
var MaxChunkRows = 5000

// maxStatementParams is the extended-protocol limit on bind parameters
// per statement (uint16).
const maxStatementParams = 65535

// Write stores a dataset into the named table in bounded chunks, one
// transaction per chunk.
//
// In append mode rows are inserted as-is; a primary-key collision fails
// the chunk with IntegrityError. In upsert mode rows carrying the same
// primary-key tuple as an existing row overwrite its non-key columns,
// and duplicate tuples inside the dataset collapse keep-last before
// chunking.
//
// Atomicity is per chunk, not per call: when chunk k fails, chunks
// 1..k-1 stay committed, chunk k rolls back entirely, and later chunks
// are not attempted. The returned WriteResult always reflects what
// actually committed, so callers needing whole-dataset atomicity must
// retry the failed remainder or pre-chunk at the boundary they require.
func Write(ctx context.Context, db Beginner, table string, data *Dataset, primaryKeys []string, mode WriteMode) (WriteResult, error) {
	var res WriteResult

	keyIdx, err := validateWrite(table, data, primaryKeys)
	if err != nil {
		return res, err
	}
	rows := data.Rows
	if len(rows) == 0 {
		return res, nil
	}
	if mode == WriteUpsert {
		rows = dedupeKeepLast(rows, keyIdx)
	}

	chunk := chunkRows(len(data.Columns))
	// The statement text only varies with the row count, which differs at
	// most once (the final short chunk), so build it lazily and reuse.
	var sql string
	var sqlRows int

	for start := 0; start < len(rows); start += chunk {
		end := start + chunk
		if end > len(rows) {
			end = len(rows)
		}
		if sql == "" || sqlRows != end-start {
			sql = buildInsertSQL(table, data.Columns, primaryKeys, end-start, mode)
			sqlRows = end - start
		}
		if err := writeChunk(ctx, db, sql, data.Columns, rows[start:end]); err != nil {
			return res, err
		}
		res.ChunksCommitted++
		res.RowsWritten += int64(end - start)
	}

	return res, nil
}

// writeChunk coerces one chunk and commits it in its own transaction.
// Any failure, client-side or store-side, leaves the table untouched by
// this chunk.
func writeChunk(ctx context.Context, db Beginner, sql string, columns []string, rows [][]any) error {
	args := make([]any, 0, len(rows)*len(columns))
	for _, row := range rows {
		coerced, err := coerceRow(columns, row)
		if err != nil {
			return err
		}
		args = append(args, coerced...)
	}

	tx, err := db.Begin(ctx)
	if err != nil {
		return classify(err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, sql, args...); err != nil {
		return classify(err)
	}
	return classify(tx.Commit(ctx))
}

// validateWrite checks the dataset shape and the primary-key selection,
// returning the key column positions.
func validateWrite(table string, data *Dataset, primaryKeys []string) ([]int, error) {
	if strings.TrimSpace(table) == "" {
		return nil, &ValidationError{Msg: "no target table given"}
	}
	if data == nil || len(data.Columns) == 0 {
		return nil, &SchemaError{Msg: "dataset has no columns"}
	}
	seen := make(map[string]bool, len(data.Columns))
	for _, c := range data.Columns {
		if strings.TrimSpace(c) == "" {
			return nil, &SchemaError{Msg: "dataset has an unnamed column"}
		}
		if seen[c] {
			return nil, &SchemaError{Msg: "duplicate column " + strconv.Quote(c)}
		}
		seen[c] = true
	}
	if len(primaryKeys) == 0 {
		return nil, &SchemaError{Msg: "no primary key columns given"}
	}
	keyIdx := make([]int, 0, len(primaryKeys))
	for _, pk := range primaryKeys {
		i := data.ColumnIndex(pk)
		if i < 0 {
			return nil, &SchemaError{Msg: "primary key column " + strconv.Quote(pk) + " not in dataset"}
		}
		keyIdx = append(keyIdx, i)
	}
	return keyIdx, nil
}

// chunkRows bounds the chunk size so one statement never exceeds the
// parameter limit, and always admits at least one row.
func chunkRows(columns int) int {
	n := MaxChunkRows
	if columns > 0 {
		if byParams := maxStatementParams / columns; byParams < n {
			n = byParams
		}
	}
	if n < 1 {
		n = 1
	}
	return n
}

// dedupeKeepLast drops earlier occurrences of a primary-key tuple so the
// last record wins, mirroring the writer's conflict rule. ON CONFLICT DO
// UPDATE cannot touch the same row twice within one statement, so the
// collapse has to happen before chunking.
func dedupeKeepLast(rows [][]any, keyIdx []int) [][]any {
	seen := make(map[string]int, len(rows))
	out := make([][]any, 0, len(rows))
	for _, row := range rows {
		key := rowKey(row, keyIdx)
		if pos, ok := seen[key]; ok {
			out[pos] = row
			continue
		}
		seen[key] = len(out)
		out = append(out, row)
	}
	return out
}

// rowKey renders a composite key like "PETR4|2024-01-02|close".
func rowKey(row []any, keyIdx []int) string {
	parts := make([]string, len(keyIdx))
	for i, idx := range keyIdx {
		if idx < len(row) {
			parts[i] = fmt.Sprint(row[idx])
		}
	}
	return strings.Join(parts, "|")
}

// buildInsertSQL renders the multi-row INSERT for one chunk. In upsert
// mode it carries an ON CONFLICT clause updating every non-key column
// from EXCLUDED; when every column is part of the key there is nothing
// to update and conflicts are ignored instead.
func buildInsertSQL(table string, columns, primaryKeys []string, rowCount int, mode WriteMode) string {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = QuoteIdentifier(c)
	}

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(QuoteIdentifier(table))
	b.WriteString(" (")
	b.WriteString(strings.Join(quoted, ", "))
	b.WriteString(") VALUES ")

	arg := 1
	for r := 0; r < rowCount; r++ {
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for c := range columns {
			if c > 0 {
				b.WriteString(", ")
			}
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(arg))
			arg++
		}
		b.WriteByte(')')
	}

	if mode == WriteUpsert {
		keys := make([]string, len(primaryKeys))
		for i, pk := range primaryKeys {
			keys[i] = QuoteIdentifier(pk)
		}
		b.WriteString(" ON CONFLICT (")
		b.WriteString(strings.Join(keys, ", "))
		b.WriteString(") DO ")

		updates := updateColumns(columns, primaryKeys)
		if len(updates) == 0 {
			b.WriteString("NOTHING")
		} else {
			b.WriteString("UPDATE SET ")
			b.WriteString(strings.Join(updates, ", "))
		}
	}

	return b.String()
}

// updateColumns renders the `col = EXCLUDED.col` list for every column
// outside the primary key.
func updateColumns(columns, primaryKeys []string) []string {
	isKey := make(map[string]bool, len(primaryKeys))
	for _, pk := range primaryKeys {
		isKey[pk] = true
	}
	out := make([]string, 0, len(columns))
	for _, c := range columns {
		if isKey[c] {
			continue
		}
		out = append(out, QuoteIdentifier(c)+" = EXCLUDED."+QuoteIdentifier(c))
	}
	return out
}

// QuoteIdentifier wraps a table or column name in double quotes,
// escaping any embedded quotes, so dynamic identifiers can never smuggle
// SQL into a statement.
func QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
