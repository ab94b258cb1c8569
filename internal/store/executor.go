package store

import (
	"context"
)

// Query runs a read statement and returns the full result set with
// columns in store order. Cell values are the driver's generic decoding;
// use the As* helpers to read them back as typed values.
func Query(ctx context.Context, db DBTX, sql string, args ...any) (*Table, error) {
	rows, err := db.Query(ctx, sql, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, fd := range fields {
		columns[i] = fd.Name
	}

	t := &Table{Columns: columns}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, classify(err)
		}
		t.Rows = append(t.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}

	return t, nil
}

// Exec runs a write statement inside the connection's current
// transaction scope and reports the number of rows affected.
func Exec(ctx context.Context, db DBTX, sql string, args ...any) (int64, error) {
	tag, err := db.Exec(ctx, sql, args...)
	if err != nil {
		return 0, classify(err)
	}
	return tag.RowsAffected(), nil
}
