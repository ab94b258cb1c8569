package ingest

import (
	"strings"
	"testing"

	"github.com/atlasquant/marketdata/internal/store"
)

func testSpec(key string) DatasetSpec {
	return DatasetSpec{
		Key:   key,
		Label: strings.ToUpper(key),
		Table: key + "_table",
		Columns: []ColumnSpec{
			{Name: "code", Kind: KindText, Required: true},
			{Name: "date", Kind: KindDate, Required: true},
			{Name: "value", Kind: KindNumeric, Required: true, AllowEmpty: true},
		},
		PrimaryKeys: []string{"code", "date"},
		Mode:        store.WriteUpsert,
	}
}

func TestRegisterAndGet(t *testing.T) {
	Clear()
	t.Cleanup(Clear)

	Register(testSpec("alpha"))
	Register(testSpec("beta"))

	spec, ok := Get("alpha")
	if !ok {
		t.Fatal("registered dataset not found")
	}
	if spec.Table != "alpha_table" {
		t.Errorf("Table = %q, want alpha_table", spec.Table)
	}
	if got := spec.ColumnNames(); strings.Join(got, ",") != "code,date,value" {
		t.Errorf("ColumnNames = %v", got)
	}

	if _, ok := Get("missing"); ok {
		t.Error("Get returned true for unregistered key")
	}
	if DatasetCount() != 2 {
		t.Errorf("DatasetCount = %d, want 2", DatasetCount())
	}
}

func TestAllSortedByKey(t *testing.T) {
	Clear()
	t.Cleanup(Clear)

	Register(testSpec("zulu"))
	Register(testSpec("alpha"))
	Register(testSpec("mike"))

	all := All()
	keys := make([]string, len(all))
	for i, spec := range all {
		keys[i] = spec.Key
	}
	if strings.Join(keys, ",") != "alpha,mike,zulu" {
		t.Errorf("All order = %v", keys)
	}
}

func TestRegisterPanics(t *testing.T) {
	tests := []struct {
		name string
		spec DatasetSpec
		prep func()
	}{
		{
			name: "duplicate key",
			spec: testSpec("dup"),
			prep: func() { Register(testSpec("dup")) },
		},
		{
			name: "empty key",
			spec: DatasetSpec{Table: "t", Columns: []ColumnSpec{{Name: "code"}}},
		},
		{
			name: "no table",
			spec: DatasetSpec{Key: "x", Columns: []ColumnSpec{{Name: "code"}}},
		},
		{
			name: "no columns",
			spec: DatasetSpec{Key: "x", Table: "t"},
		},
		{
			name: "key not in columns",
			spec: DatasetSpec{
				Key:         "x",
				Table:       "t",
				Columns:     []ColumnSpec{{Name: "code"}},
				PrimaryKeys: []string{"id"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Clear()
			t.Cleanup(Clear)
			if tt.prep != nil {
				tt.prep()
			}

			defer func() {
				if recover() == nil {
					t.Error("Register did not panic")
				}
			}()
			Register(tt.spec)
		})
	}
}
