package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/atlasquant/marketdata/internal/store"
)

// DefaultRetryAttempts is how many times a provider run is tried before
// it is recorded as failed.
var DefaultRetryAttempts = 3

// DefaultRetryBackoff is the pause between provider run attempts.
var DefaultRetryBackoff = 5 * time.Second

// DefaultProviderTable is where provider rows land.
const DefaultProviderTable = "indicadores"

// providerField is the field provider observations store under.
const providerField = "close"

// providerKeys identifies a provider row for upsert.
var providerKeys = []string{"code", "date", "field"}

// CodeResolver maps a vendor feed's raw series codes to canonical ones.
// Implemented by the series service over the definitions table.
type CodeResolver interface {
	Codes(ctx context.Context, source, category string) (map[string]string, error)
}

// ServiceOptions tunes a Service. Zero values take the defaults.
type ServiceOptions struct {
	ProviderTable string
	RetryAttempts int
	RetryBackoff  time.Duration
	MaxConcurrent int           // parallel CSV ingestions
	MaxWait       time.Duration // wait for an ingestion slot
	RunLogSize    int
}

// Service runs CSV and provider ingestions against the store writer and
// records every run in its log.
type Service struct {
	db       store.Beginner
	codes    CodeResolver
	table    string
	limiter  *Limiter
	runs     *RunLog
	attempts int
	backoff  time.Duration

	providers map[string]Provider
}

// NewService creates an ingestion service. Providers are registered
// separately so a deployment without vendor credentials can still
// ingest CSVs.
func NewService(db store.Beginner, codes CodeResolver, opts ServiceOptions) *Service {
	if opts.ProviderTable == "" {
		opts.ProviderTable = DefaultProviderTable
	}
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = DefaultRetryAttempts
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = DefaultRetryBackoff
	}

	return &Service{
		db:        db,
		codes:     codes,
		table:     opts.ProviderTable,
		limiter:   NewLimiter(opts.MaxConcurrent, opts.MaxWait),
		runs:      NewRunLog(opts.RunLogSize),
		attempts:  opts.RetryAttempts,
		backoff:   opts.RetryBackoff,
		providers: make(map[string]Provider),
	}
}

// RegisterProvider adds a vendor feed to the service.
// Panics on a duplicate name; providers are wired once at startup.
func (s *Service) RegisterProvider(p Provider) {
	if _, exists := s.providers[p.Name()]; exists {
		panic(fmt.Sprintf("provider already registered: %s", p.Name()))
	}
	s.providers[p.Name()] = p
}

// Providers returns the registered provider names, sorted.
func (s *Service) Providers() []string {
	names := make([]string, 0, len(s.providers))
	for name := range s.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Runs returns the recorded ingestion runs, newest first.
func (s *Service) Runs() []Run {
	return s.runs.List()
}

// ActiveIngests returns how many CSV ingestions are running right now.
func (s *Service) ActiveIngests() int {
	return s.limiter.ActiveCount()
}

// Drain blocks until running ingestions finish or the context ends.
func (s *Service) Drain(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

// IngestCSV parses a CSV payload against a registered dataset spec and
// writes the rows through the store writer. Rows that fail coercion are
// skipped and reported on the run; storage failures fail the run. The
// ingestion counts against the concurrency limit.
func (s *Service) IngestCSV(ctx context.Context, datasetKey, fileName string, data []byte) (Run, error) {
	spec, ok := Get(datasetKey)
	if !ok {
		return Run{}, &store.ValidationError{Msg: fmt.Sprintf("unknown dataset %q", datasetKey)}
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return Run{}, err
	}
	defer s.limiter.Release()

	run := Run{
		ID:        uuid.New().String(),
		Kind:      "csv",
		Source:    spec.Key,
		FileName:  fileName,
		StartedAt: time.Now(),
	}

	parsed, err := ParseCSV(spec, data)
	if err != nil {
		return s.finish(run, 0, nil, err)
	}
	if parsed.Data.NumRows() == 0 && len(parsed.Skipped) == 0 {
		return s.finish(run, 0, nil, &store.ValidationError{Msg: "no data rows after header"})
	}

	res, err := store.Write(ctx, s.db, spec.Table, parsed.Data, spec.PrimaryKeys, spec.Mode)
	return s.finish(run, res.RowsWritten, parsed.Skipped, err)
}

// RunProvider fetches a vendor feed, maps raw codes to canonical ones
// and upserts the observations keyed on (code, date, field). The whole
// attempt, lookup included, is retried with backoff; the run is recorded
// once, with its final outcome.
func (s *Service) RunProvider(ctx context.Context, name string) (Run, error) {
	p, ok := s.providers[name]
	if !ok {
		return Run{}, &store.ValidationError{Msg: fmt.Sprintf("unknown provider %q", name)}
	}

	run := Run{
		ID:        uuid.New().String(),
		Kind:      "provider",
		Source:    name,
		StartedAt: time.Now(),
	}

	var lastErr error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		written, err := s.providerAttempt(ctx, p)
		if err == nil {
			return s.finish(run, written, nil, nil)
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		slog.Warn("provider run attempt failed",
			"provider", name,
			"attempt", attempt,
			"max_attempts", s.attempts,
			"error", err,
		)
		if attempt < s.attempts {
			select {
			case <-ctx.Done():
			case <-time.After(s.backoff):
			}
		}
	}

	return s.finish(run, 0, nil, fmt.Errorf("provider %s failed after %d attempts: %w", name, s.attempts, lastErr))
}

// providerAttempt performs one fetch-map-store cycle.
func (s *Service) providerAttempt(ctx context.Context, p Provider) (int64, error) {
	mapping, err := s.codes.Codes(ctx, p.Name(), "")
	if err != nil {
		return 0, fmt.Errorf("resolve codes: %w", err)
	}
	if len(mapping) == 0 {
		return 0, fmt.Errorf("no raw codes defined for source %s", p.Name())
	}

	rawCodes := make([]string, 0, len(mapping))
	for raw := range mapping {
		rawCodes = append(rawCodes, raw)
	}
	sort.Strings(rawCodes)

	points, err := p.Fetch(ctx, rawCodes)
	if err != nil {
		return 0, err
	}

	data, err := longDataset(points, mapping)
	if err != nil {
		return 0, err
	}
	if data.NumRows() == 0 {
		return 0, ErrNoData
	}

	res, err := store.Write(ctx, s.db, s.table, data, providerKeys, store.WriteUpsert)
	if err != nil {
		return 0, fmt.Errorf("store rows: %w", err)
	}
	return res.RowsWritten, nil
}

// longDataset normalizes raw points into the long-format write shape.
// NaN observations are dropped; an infinite value fails the attempt
// because it means the feed itself is broken.
func longDataset(points []RawPoint, mapping map[string]string) (*store.Dataset, error) {
	sort.Slice(points, func(i, j int) bool {
		if points[i].RawCode != points[j].RawCode {
			return points[i].RawCode < points[j].RawCode
		}
		return points[i].Date.Before(points[j].Date)
	})

	data := &store.Dataset{Columns: []string{"code", "date", "field", "value"}}
	for _, pt := range points {
		code := mapping[pt.RawCode]
		if code == "" {
			continue
		}
		if math.IsNaN(pt.Value) {
			continue
		}
		if math.IsInf(pt.Value, 0) {
			return nil, fmt.Errorf("infinite value for %s at %s", pt.RawCode, pt.Date)
		}
		data.Rows = append(data.Rows, []any{code, pt.Date, providerField, pt.Value})
	}
	return data, nil
}

// finish stamps, records and returns a run.
func (s *Service) finish(run Run, written int64, skipped []RowError, err error) (Run, error) {
	run.FinishedAt = time.Now()
	run.RowsWritten = written
	run.RowsSkipped = len(skipped)
	run.FailedRows = skipped

	switch {
	case err != nil:
		run.Status = RunFailed
		run.Error = err.Error()
	case len(skipped) > 0:
		run.Status = RunPartial
	default:
		run.Status = RunSucceeded
	}

	s.runs.Add(run)

	slog.Info("ingest run finished",
		"run_id", run.ID,
		"kind", run.Kind,
		"source", run.Source,
		"status", run.Status,
		"rows_written", run.RowsWritten,
		"rows_skipped", run.RowsSkipped,
		"duration_ms", run.FinishedAt.Sub(run.StartedAt).Milliseconds(),
	)
	return run, err
}
