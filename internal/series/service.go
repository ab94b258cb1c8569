package series

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang-sql/civil"

	"github.com/atlasquant/marketdata/internal/store"
)

// validFields are the measurement fields stored per indicator row.
// Requesting anything else is a schema error, not an empty result.
var validFields = map[string]bool{
	"open":   true,
	"high":   true,
	"low":    true,
	"close":  true,
	"volume": true,
	"value":  true,
}

// DefaultField is used by the series reader when no field is requested.
const DefaultField = "close"

// TableNames points the readers at their long-format source tables.
// The tables are owned outside this service; the readers tolerate extra
// columns but require the long-format core (code, date, field, value).
type TableNames struct {
	Indicators  string
	Descriptors string
	Composition string
	Definitions string
	Securities  string
}

// DefaultTableNames returns the table names the production database uses.
func DefaultTableNames() TableNames {
	return TableNames{
		Indicators:  "indicadores",
		Descriptors: "descriptor_zoo",
		Composition: "b3_index_composition",
		Definitions: "indicadores_definicoes",
		Securities:  "b3_active_securities",
	}
}

// Range bounds a query by an inclusive date window. A nil bound leaves
// that side open.
type Range struct {
	Start *civil.Date
	End   *civil.Date
}

func (r Range) validate() error {
	if r.Start != nil && r.End != nil && r.End.Before(*r.Start) {
		return &store.ValidationError{Msg: fmt.Sprintf("end date %s before start date %s", r.End, r.Start)}
	}
	return nil
}

// Service executes the pivoting readers against the long-format source
// tables. It holds no connection of its own; every call borrows from the
// pool it was built with and releases before returning.
type Service struct {
	db     store.DBTX
	tables TableNames
}

// NewService wires a reader service to a pool and its source tables.
func NewService(db store.DBTX, tables TableNames) *Service {
	return &Service{db: db, tables: tables}
}

// Series returns a wide table of one indicator field, one column per
// requested code, indexed by date over the inclusive window. A single
// requested code yields a single plain column labeled by the code. Codes
// that matched no rows keep their column with every cell absent.
func (s *Service) Series(ctx context.Context, codes []string, field string, window Range) (*WideTable, error) {
	codes, err := cleanKeys("indicator code", codes)
	if err != nil {
		return nil, err
	}
	if field == "" {
		field = DefaultField
	}
	if !validFields[field] {
		return nil, &store.SchemaError{Msg: fmt.Sprintf("unknown series field %q", field)}
	}
	if err := window.validate(); err != nil {
		return nil, err
	}

	sql, args := buildLongSelect(s.tables.Indicators,
		[]string{"code", "date", "value"},
		[]filter{{column: "code", values: codes}, {column: "field", values: []string{field}}},
		window,
		"date, code")
	tbl, err := store.Query(ctx, s.db, sql, args...)
	if err != nil {
		return nil, err
	}

	wt := NewWideTable()
	for _, c := range codes {
		wt.EnsureColumn(ColumnKey{Level0: c})
	}
	if err := pivotLong(wt, tbl, "code", ""); err != nil {
		return nil, err
	}
	return wt, nil
}

// Descriptors returns a wide table of company descriptors with columns
// keyed by (ticker, descriptor). The full ticker x descriptor grid is
// registered up front so requested pairs without data keep an absent
// column. Only when both inputs are singletons does the result collapse
// to one plain column, labeled by the descriptor.
func (s *Service) Descriptors(ctx context.Context, tickers, descriptors []string, window Range) (*WideTable, error) {
	tickers, err := cleanKeys("ticker", tickers)
	if err != nil {
		return nil, err
	}
	descriptors, err = cleanKeys("descriptor", descriptors)
	if err != nil {
		return nil, err
	}
	if err := window.validate(); err != nil {
		return nil, err
	}

	sql, args := buildLongSelect(s.tables.Descriptors,
		[]string{"code", "field", "date", "value"},
		[]filter{{column: "code", values: tickers}, {column: "field", values: descriptors}},
		window,
		"date, code, field")
	tbl, err := store.Query(ctx, s.db, sql, args...)
	if err != nil {
		return nil, err
	}

	wt := NewWideTable()
	for _, tk := range tickers {
		for _, d := range descriptors {
			wt.EnsureColumn(ColumnKey{Level0: tk, Level1: d})
		}
	}
	if err := pivotLong(wt, tbl, "code", "field"); err != nil {
		return nil, err
	}
	if len(tickers) == 1 && len(descriptors) == 1 {
		wt.relabelSingle(descriptors[0])
	}
	return wt, nil
}

// IndexComposition returns index membership as a wide table with columns
// keyed by (index, ticker); the cell value is the member weight. A
// single requested index collapses to plain ticker-labeled columns.
// Member tickers are discovered from the data, so no grid is registered
// up front; an index without rows contributes no columns.
func (s *Service) IndexComposition(ctx context.Context, indexCodes []string, window Range) (*WideTable, error) {
	indexCodes, err := cleanKeys("index code", indexCodes)
	if err != nil {
		return nil, err
	}
	if err := window.validate(); err != nil {
		return nil, err
	}

	sql, args := buildLongSelect(s.tables.Composition,
		[]string{"field", "code", "date", "value"},
		[]filter{{column: "field", values: indexCodes}},
		window,
		"date, field, code")
	tbl, err := store.Query(ctx, s.db, sql, args...)
	if err != nil {
		return nil, err
	}

	wt := NewWideTable()
	if err := pivotLong(wt, tbl, "field", "code"); err != nil {
		return nil, err
	}
	if len(indexCodes) == 1 {
		wt.dropLevel0()
	}
	return wt, nil
}

// filter restricts a query column to a value set.
type filter struct {
	column string
	values []string
}

// buildLongSelect renders the filtered select over a long-format table.
// Value filters use = ANY so the statement shape is stable regardless of
// how many keys are requested; date bounds are inclusive on both ends.
func buildLongSelect(table string, selectCols []string, filters []filter, window Range, orderBy string) (string, []any) {
	cols := make([]string, len(selectCols))
	for i, c := range selectCols {
		cols[i] = store.QuoteIdentifier(c)
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(cols, ", "))
	b.WriteString(" FROM ")
	b.WriteString(store.QuoteIdentifier(table))

	var args []any
	where := func(cond string, arg any) {
		if len(args) == 0 {
			b.WriteString(" WHERE ")
		} else {
			b.WriteString(" AND ")
		}
		args = append(args, arg)
		b.WriteString(fmt.Sprintf(cond, len(args)))
	}

	for _, f := range filters {
		where(store.QuoteIdentifier(f.column)+" = ANY($%d)", f.values)
	}
	if window.Start != nil {
		where(`"date" >= $%d`, window.Start.In(time.UTC))
	}
	if window.End != nil {
		where(`"date" <= $%d`, window.End.In(time.UTC))
	}

	b.WriteString(" ORDER BY ")
	b.WriteString(orderBy)
	return b.String(), args
}

// pivotLong folds long rows into the wide table. A NULL value still
// registers its date and column so the absence is visible in the result;
// a repeated (date, key) cell overwrites, last scanned wins.
func pivotLong(wt *WideTable, tbl *store.Table, level0Col, level1Col string) error {
	i0 := tbl.ColumnIndex(level0Col)
	iDate := tbl.ColumnIndex("date")
	iVal := tbl.ColumnIndex("value")
	if i0 < 0 || iDate < 0 || iVal < 0 {
		return &store.SchemaError{Msg: fmt.Sprintf("result missing long-format columns (%s, date, value)", level0Col)}
	}
	i1 := -1
	if level1Col != "" {
		if i1 = tbl.ColumnIndex(level1Col); i1 < 0 {
			return &store.SchemaError{Msg: fmt.Sprintf("result missing column %s", level1Col)}
		}
	}

	for _, row := range tbl.Rows {
		l0, err := store.AsString(row[i0])
		if err != nil {
			return err
		}
		key := ColumnKey{Level0: l0}
		if i1 >= 0 {
			l1, err := store.AsString(row[i1])
			if err != nil {
				return err
			}
			key.Level1 = l1
		}
		date, err := store.AsDate(row[iDate])
		if err != nil {
			return err
		}
		if row[iVal] == nil {
			wt.EnsureColumn(key)
			wt.EnsureDate(date)
			continue
		}
		val, err := store.AsFloat(row[iVal])
		if err != nil {
			return err
		}
		wt.Set(date, key, val)
	}
	return nil
}

// cleanKeys trims the requested keys and rejects empty selections.
func cleanKeys(kind string, keys []string) ([]string, error) {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" {
			return nil, &store.ValidationError{Msg: "empty " + kind + " in selection"}
		}
		out = append(out, k)
	}
	if len(out) == 0 {
		return nil, &store.ValidationError{Msg: "no " + kind + " given"}
	}
	return out, nil
}
