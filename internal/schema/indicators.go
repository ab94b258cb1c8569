// Package schema registers the ingestable dataset layouts with the
// ingest registry. Import this package for its side effects to make
// every dataset available.
package schema

import (
	"github.com/atlasquant/marketdata/internal/ingest"
	"github.com/atlasquant/marketdata/internal/store"
)

func init() {
	registerIndicators()
}

// registerIndicators wires the macro and market indicator series. One
// row is one observation of one field of one code.
func registerIndicators() {
	ingest.Register(ingest.DatasetSpec{
		Key:       "indicators",
		Label:     "Indicator Series",
		Table:     "indicadores",
		Directory: "indicators",
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
