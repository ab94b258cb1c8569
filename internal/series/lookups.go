package series

import (
	"context"
	"strings"

	"github.com/atlasquant/marketdata/internal/store"
)

// lookups.go resolves vendor identifiers to internal codes. The provider
// feeds fetch by vendor code and store by internal code, so both maps
// are keyed by the vendor side.

// Codes returns the raw-to-canonical code mapping from the definitions
// table, optionally filtered by source (vendor feed name) and category.
// A raw code defined twice resolves to the last row scanned.
func (s *Service) Codes(ctx context.Context, source, category string) (map[string]string, error) {
	var b strings.Builder
	b.WriteString(`SELECT "raw_code", "code" FROM `)
	b.WriteString(store.QuoteIdentifier(s.tables.Definitions))

	var args []any
	if source != "" {
		args = append(args, source)
		b.WriteString(` WHERE "source" = $1`)
	}
	if category != "" {
		if len(args) == 0 {
			b.WriteString(` WHERE "category" = $1`)
		} else {
			b.WriteString(` AND "category" = $2`)
		}
		args = append(args, category)
	}

	tbl, err := store.Query(ctx, s.db, b.String(), args...)
	if err != nil {
		return nil, err
	}
	return twoColumnMap(tbl, "raw_code", "code")
}

// SecuritiesByExchange maps vendor composite tickers ("PETR4 BZ Equity")
// to internal codes for the active securities of an exchange. An empty
// exchange returns every active security.
func (s *Service) SecuritiesByExchange(ctx context.Context, exchange string) (map[string]string, error) {
	var b strings.Builder
	b.WriteString(`SELECT "code", "code_exchange" FROM `)
	b.WriteString(store.QuoteIdentifier(s.tables.Securities))

	var args []any
	if exchange != "" {
		args = append(args, exchange)
		b.WriteString(` WHERE "code_exchange" = $1`)
	}

	tbl, err := store.Query(ctx, s.db, b.String(), args...)
	if err != nil {
		return nil, err
	}

	iCode := tbl.ColumnIndex("code")
	iExch := tbl.ColumnIndex("code_exchange")
	if iCode < 0 || iExch < 0 {
		return nil, &store.SchemaError{Msg: "securities table missing code or code_exchange"}
	}

	out := make(map[string]string, tbl.NumRows())
	for _, row := range tbl.Rows {
		code, err := store.AsString(row[iCode])
		if err != nil {
			return nil, err
		}
		exch, err := store.AsString(row[iExch])
		if err != nil {
			return nil, err
		}
		out[code+" "+exch+" Equity"] = code
	}
	return out, nil
}

// twoColumnMap folds a two-column result into a key-value map.
func twoColumnMap(tbl *store.Table, keyCol, valCol string) (map[string]string, error) {
	iKey := tbl.ColumnIndex(keyCol)
	iVal := tbl.ColumnIndex(valCol)
	if iKey < 0 || iVal < 0 {
		return nil, &store.SchemaError{Msg: "result missing " + keyCol + " or " + valCol}
	}
	out := make(map[string]string, tbl.NumRows())
	for _, row := range tbl.Rows {
		k, err := store.AsString(row[iKey])
		if err != nil {
			return nil, err
		}
		v, err := store.AsString(row[iVal])
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}
