package schema

import (
	"github.com/atlasquant/marketdata/internal/ingest"
	"github.com/atlasquant/marketdata/internal/store"
)

func init() {
	registerDescriptors()
}

// registerDescriptors wires the company descriptor panel. The field
// column names the descriptor (pe_fwd, ev_ebitda, ...) and code the
// ticker it belongs to.
func registerDescriptors() {
	ingest.Register(ingest.DatasetSpec{
		Key:       "descriptors",
		Label:     "Company Descriptors",
		Table:     "descriptor_zoo",
		Directory: "descriptors",
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
