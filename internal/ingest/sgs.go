package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-sql/civil"
	"golang.org/x/sync/errgroup"
)

// DefaultSGSBaseURL is the Central Bank of Brazil time-series API.
const DefaultSGSBaseURL = "https://api.bcb.gov.br/dados/serie"

// DefaultFetchConcurrency bounds parallel per-series requests.
const DefaultFetchConcurrency = 4

// SGSProvider fetches Central Bank of Brazil (SGS) series. Every raw
// code is one numbered series fetched with its own request; a series
// that fails is logged and skipped so one broken code does not sink the
// whole run.
type SGSProvider struct {
	BaseURL     string
	Client      *http.Client
	Start       civil.Date // zero leaves the series unbounded on the left
	Concurrency int
}

// NewSGSProvider returns an SGS provider with production defaults.
func NewSGSProvider(start civil.Date) *SGSProvider {
	return &SGSProvider{
		BaseURL:     DefaultSGSBaseURL,
		Client:      &http.Client{Timeout: 30 * time.Second},
		Start:       start,
		Concurrency: DefaultFetchConcurrency,
	}
}

func (p *SGSProvider) Name() string { return "sgs" }

// sgsObservation is the wire form of one SGS data point. Dates are
// dd/MM/yyyy and values decimal strings.
type sgsObservation struct {
	Data  string `json:"data"`
	Valor string `json:"valor"`
}

// Fetch retrieves every requested series in parallel, bounded by
// Concurrency. Returns ErrNoData when no series loaded at all.
func (p *SGSProvider) Fetch(ctx context.Context, rawCodes []string) ([]RawPoint, error) {
	var (
		mu     sync.Mutex
		points []RawPoint
		loaded int
	)

	g, ctx := errgroup.WithContext(ctx)
	limit := p.Concurrency
	if limit <= 0 {
		limit = DefaultFetchConcurrency
	}
	g.SetLimit(limit)

	for _, code := range rawCodes {
		code := code // per-iteration copy; module targets go 1.21
		g.Go(func() error {
			series, err := p.fetchSeries(ctx, code)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				slog.Warn("sgs series failed", "code", code, "error", err)
				return nil
			}
			mu.Lock()
			points = append(points, series...)
			loaded++
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if loaded == 0 {
		return nil, fmt.Errorf("sgs: %w", ErrNoData)
	}
	return points, nil
}

func (p *SGSProvider) fetchSeries(ctx context.Context, code string) ([]RawPoint, error) {
	endpoint := fmt.Sprintf("%s/bcdata.sgs.%s/dados?formato=json", p.BaseURL, url.PathEscape(code))
	if p.Start != (civil.Date{}) {
		endpoint += "&dataInicial=" + p.Start.In(time.UTC).Format("02/01/2006")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %s", resp.Status)
	}

	var observations []sgsObservation
	if err := json.NewDecoder(resp.Body).Decode(&observations); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	points := make([]RawPoint, 0, len(observations))
	for _, o := range observations {
		t, err := time.Parse("02/01/2006", o.Data)
		if err != nil {
			continue
		}
		v, err := strconv.ParseFloat(o.Valor, 64)
		if err != nil {
			continue
		}
		points = append(points, RawPoint{RawCode: code, Date: civil.DateOf(t), Value: v})
	}
	return points, nil
}
