package schema

import (
	"github.com/atlasquant/marketdata/internal/ingest"
	"github.com/atlasquant/marketdata/internal/store"
)

func init() {
	registerComposition()
}

// registerComposition wires B3 index membership. The field column names
// the index, code the member ticker and value its weight on that date.
func registerComposition() {
	ingest.Register(ingest.DatasetSpec{
		Key:       "composition",
		Label:     "Index Composition",
		Table:     "b3_index_composition",
		Directory: "composition",
		Columns: []ingest.ColumnSpec{
			{Name: "code", Kind: ingest.KindText, Required: true},
			{Name: "date", Kind: ingest.KindDate, Required: true},
			{Name: "field", Kind: ingest.KindText, Required: true},
			{Name: "value", Kind: ingest.KindNumeric, Required: true, AllowEmpty: true},
		},
		PrimaryKeys: []string{"code", "date", "field"},
		Mode:        store.WriteUpsert,
	})
}
