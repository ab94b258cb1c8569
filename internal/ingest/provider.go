package ingest

import (
	"context"
	"errors"

	"github.com/golang-sql/civil"
)

// ErrNoData is returned by a provider when a fetch yielded nothing at
// all. A run that hits it is retried like any other failure.
var ErrNoData = errors.New("no data retrieved")

// RawPoint is one vendor observation, keyed by the vendor's own series
// code. The service maps raw codes to canonical ones before storage.
type RawPoint struct {
	RawCode string
	Date    civil.Date
	Value   float64
}

// Provider fetches raw observations from one vendor feed. Name doubles
// as the source value the definitions table keys raw codes by, so the
// service can resolve the feed's code mapping on its own.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, rawCodes []string) ([]RawPoint, error)
}
