// Package ingest loads external data into the long-format tables. It
// covers two paths: CSV files checked against registered dataset specs
// (uploaded over HTTP or dropped into the watched inbox) and HTTP
// provider feeds fetched on a schedule. Both paths store rows through
// the store writer, so chunking and upsert semantics match direct
// writes.
package ingest

import (
	"fmt"
	"sort"
	"sync"

	"github.com/atlasquant/marketdata/internal/store"
)

// ColumnKind is the coercion target for a dataset column.
type ColumnKind int

const (
	KindText ColumnKind = iota
	KindDate
	KindNumeric
)

// ColumnSpec defines validation rules for a single dataset column.
type ColumnSpec struct {
	Name       string // Column header name (matched case-insensitively)
	Kind       ColumnKind
	Required   bool // Column must exist in the CSV header
	AllowEmpty bool // If true, empty cells store NULL instead of failing the row
}

// DatasetSpec ties a dataset key to its column layout, target table,
// primary keys and write mode.
type DatasetSpec struct {
	Key         string
	Label       string
	Table       string
	Directory   string // Inbox subdirectory watched for file drops
	Columns     []ColumnSpec
	PrimaryKeys []string
	Mode        store.WriteMode
}

// ColumnNames returns the column names in spec order.
func (s DatasetSpec) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

var (
	registry   = make(map[string]DatasetSpec)
	registryMu sync.RWMutex
)

// Register adds a dataset spec to the registry.
// Panics on a duplicate key or a malformed spec; specs are registered
// from init functions, so a bad one is a programming error.
func Register(spec DatasetSpec) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if spec.Key == "" {
		panic("dataset spec with empty key")
	}
	if _, exists := registry[spec.Key]; exists {
		panic(fmt.Sprintf("dataset already registered: %s", spec.Key))
	}
	if spec.Table == "" {
		panic(fmt.Sprintf("dataset %s has no target table", spec.Key))
	}
	if len(spec.Columns) == 0 {
		panic(fmt.Sprintf("dataset %s has no columns", spec.Key))
	}
	names := make(map[string]bool, len(spec.Columns))
	for _, c := range spec.Columns {
		names[c.Name] = true
	}
	for _, pk := range spec.PrimaryKeys {
		if !names[pk] {
			panic(fmt.Sprintf("dataset %s keys on unknown column %s", spec.Key, pk))
		}
	}

	registry[spec.Key] = spec
}

// Get returns a dataset spec by key.
// Returns false if not found.
func Get(key string) (DatasetSpec, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	spec, ok := registry[key]
	return spec, ok
}

// All returns all registered dataset specs.
// Sorted by key for consistent ordering.
func All() []DatasetSpec {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]DatasetSpec, 0, len(registry))
	for _, spec := range registry {
		result = append(result, spec)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Key < result[j].Key
	})

	return result
}

// DatasetCount returns the number of registered datasets.
func DatasetCount() int {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return len(registry)
}

// Clear removes all registered datasets.
// Primarily useful for testing.
func Clear() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = make(map[string]DatasetSpec)
}
