// Package series turns long-format measurement rows into wide,
// date-indexed tables. It owns the three pivoting readers (indicator
// series, company descriptors, index composition) and the code lookup
// helpers; raw SQL execution is delegated to the store package.
package series

import (
	"slices"
	"strings"

	"github.com/goccy/go-json"
	"github.com/golang-sql/civil"
)

// ColumnKey identifies one value column of a WideTable. Level0 is the
// primary grouping (indicator code, ticker, index code) and Level1 the
// secondary one (descriptor name, member ticker). Level1 is empty for
// single-level keys.
type ColumnKey struct {
	Level0 string
	Level1 string
}

// Label renders the key for display and JSON output, joining composite
// levels with a colon.
func (k ColumnKey) Label() string {
	if k.Level1 == "" {
		return k.Level0
	}
	return k.Level0 + ":" + k.Level1
}

func compareKeys(a, b ColumnKey) int {
	if c := strings.Compare(a.Level0, b.Level0); c != 0 {
		return c
	}
	return strings.Compare(a.Level1, b.Level1)
}

func compareDates(a, b civil.Date) int {
	switch {
	case a.Before(b):
		return -1
	case b.Before(a):
		return 1
	default:
		return 0
	}
}

type cellAddr struct {
	date civil.Date
	key  ColumnKey
}

// WideTable is a date-indexed table with one value column per ColumnKey.
// Dates are unique and sorted ascending, columns sort by key. A missing
// (date, key) cell is explicitly absent, never an error and never zero.
// Setting a cell that already holds a value overwrites it, so duplicated
// source rows resolve last-write-wins, consistent with the upsert
// semantics that maintain the source tables.
type WideTable struct {
	keySet  map[ColumnKey]bool
	dateSet map[civil.Date]bool
	cells   map[cellAddr]float64

	keys  []ColumnKey
	dates []civil.Date
	dirty bool
}

// NewWideTable returns an empty table.
func NewWideTable() *WideTable {
	return &WideTable{
		keySet:  make(map[ColumnKey]bool),
		dateSet: make(map[civil.Date]bool),
		cells:   make(map[cellAddr]float64),
	}
}

// EnsureColumn registers a column even when no cell lands in it, so a
// requested key that matched no rows still shows up, with every cell
// absent.
func (t *WideTable) EnsureColumn(k ColumnKey) {
	if !t.keySet[k] {
		t.keySet[k] = true
		t.dirty = true
	}
}

// EnsureDate registers a date in the index even when every cell on it is
// absent.
func (t *WideTable) EnsureDate(d civil.Date) {
	if !t.dateSet[d] {
		t.dateSet[d] = true
		t.dirty = true
	}
}

// Set stores a cell, registering its date and column. An existing cell
// is overwritten.
func (t *WideTable) Set(d civil.Date, k ColumnKey, v float64) {
	t.EnsureColumn(k)
	t.EnsureDate(d)
	t.cells[cellAddr{date: d, key: k}] = v
}

// Value returns a cell and whether it is present.
func (t *WideTable) Value(d civil.Date, k ColumnKey) (float64, bool) {
	v, ok := t.cells[cellAddr{date: d, key: k}]
	return v, ok
}

// Dates returns the date index in ascending order.
func (t *WideTable) Dates() []civil.Date {
	t.refresh()
	return t.dates
}

// Keys returns the column keys sorted by level.
func (t *WideTable) Keys() []ColumnKey {
	t.refresh()
	return t.keys
}

// Labels returns the rendered column labels in key order.
func (t *WideTable) Labels() []string {
	keys := t.Keys()
	labels := make([]string, len(keys))
	for i, k := range keys {
		labels[i] = k.Label()
	}
	return labels
}

// NumDates returns the size of the date index.
func (t *WideTable) NumDates() int { return len(t.dateSet) }

// NumColumns returns the number of value columns.
func (t *WideTable) NumColumns() int { return len(t.keySet) }

// IsEmpty reports whether the table has neither dates nor columns.
func (t *WideTable) IsEmpty() bool { return len(t.dateSet) == 0 && len(t.keySet) == 0 }

// Row returns the cells of one date in column order; absent cells are
// nil.
func (t *WideTable) Row(d civil.Date) []*float64 {
	keys := t.Keys()
	out := make([]*float64, len(keys))
	for i, k := range keys {
		if v, ok := t.Value(d, k); ok {
			f := v
			out[i] = &f
		}
	}
	return out
}

func (t *WideTable) refresh() {
	if !t.dirty {
		return
	}
	t.keys = make([]ColumnKey, 0, len(t.keySet))
	for k := range t.keySet {
		t.keys = append(t.keys, k)
	}
	slices.SortFunc(t.keys, compareKeys)

	t.dates = make([]civil.Date, 0, len(t.dateSet))
	for d := range t.dateSet {
		t.dates = append(t.dates, d)
	}
	slices.SortFunc(t.dates, compareDates)
	t.dirty = false
}

// dropLevel0 relabels every column by its Level1 part alone. The readers
// call it at the return boundary when a single Level0 value was
// requested and the level carries no information. The caller guarantees
// all keys share one Level0 value, so relabeling cannot collide.
func (t *WideTable) dropLevel0() {
	keySet := make(map[ColumnKey]bool, len(t.keySet))
	cells := make(map[cellAddr]float64, len(t.cells))
	for k := range t.keySet {
		keySet[ColumnKey{Level0: k.Level1}] = true
	}
	for addr, v := range t.cells {
		addr.key = ColumnKey{Level0: addr.key.Level1}
		cells[addr] = v
	}
	t.keySet = keySet
	t.cells = cells
	t.dirty = true
}

// relabelSingle renames the one remaining column to a plain label. The
// caller guarantees the table has exactly one column.
func (t *WideTable) relabelSingle(label string) {
	old := t.Keys()[0]
	k := ColumnKey{Level0: label}
	keySet := map[ColumnKey]bool{k: true}
	cells := make(map[cellAddr]float64, len(t.cells))
	for addr, v := range t.cells {
		if addr.key == old {
			addr.key = k
		}
		cells[addr] = v
	}
	t.keySet = keySet
	t.cells = cells
	t.dirty = true
}

// wideTableJSON is the wire form: a date index, rendered column labels,
// and one row of nullable values per date.
type wideTableJSON struct {
	Dates   []string     `json:"dates"`
	Columns []string     `json:"columns"`
	Rows    [][]*float64 `json:"rows"`
}

// MarshalJSON renders the table with null for absent cells.
func (t *WideTable) MarshalJSON() ([]byte, error) {
	dates := t.Dates()
	out := wideTableJSON{
		Dates:   make([]string, len(dates)),
		Columns: t.Labels(),
		Rows:    make([][]*float64, len(dates)),
	}
	for i, d := range dates {
		out.Dates[i] = d.String()
		out.Rows[i] = t.Row(d)
	}
	return json.Marshal(out)
}
