package ingest

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-sql/civil"
)

// DefaultFREDBaseURL is the Federal Reserve Economic Data API.
const DefaultFREDBaseURL = "https://api.stlouisfed.org/fred"

// FREDProvider fetches Federal Reserve Economic Data series. Unlike SGS,
// a single failed series fails the whole fetch; FRED is one vendor
// account and a failure there is usually systemic (bad key, quota).
type FREDProvider struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
	Start   civil.Date
}

// NewFREDProvider returns a FRED provider with production defaults.
func NewFREDProvider(apiKey string, start civil.Date) *FREDProvider {
	return &FREDProvider{
		BaseURL: DefaultFREDBaseURL,
		APIKey:  apiKey,
		Client:  &http.Client{Timeout: 30 * time.Second},
		Start:   start,
	}
}

func (p *FREDProvider) Name() string { return "fred" }

// fredObservation is the wire form of one FRED data point. A value of
// "." marks a missing observation.
type fredObservation struct {
	Date  string `json:"date"`
	Value string `json:"value"`
}

type fredObservationsResponse struct {
	Observations []fredObservation `json:"observations"`
}

// Fetch retrieves every requested series sequentially. Returns ErrNoData
// when the fetch yielded no observations.
func (p *FREDProvider) Fetch(ctx context.Context, rawCodes []string) ([]RawPoint, error) {
	var points []RawPoint
	for _, code := range rawCodes {
		series, err := p.fetchSeries(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("fred series %s: %w", code, err)
		}
		points = append(points, series...)
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("fred: %w", ErrNoData)
	}
	return points, nil
}

func (p *FREDProvider) fetchSeries(ctx context.Context, code string) ([]RawPoint, error) {
	q := url.Values{}
	q.Set("series_id", code)
	q.Set("api_key", p.APIKey)
	q.Set("file_type", "json")
	if p.Start != (civil.Date{}) {
		q.Set("observation_start", p.Start.String())
	}
	endpoint := p.BaseURL + "/series/observations?" + q.Encode()

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

	var payload fredObservationsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	points := make([]RawPoint, 0, len(payload.Observations))
	for _, o := range payload.Observations {
		if o.Value == "." || o.Value == "" {
			continue
		}
		d, err := civil.ParseDate(o.Date)
		if err != nil {
			continue
		}
		v, err := strconv.ParseFloat(o.Value, 64)
		if err != nil {
			continue
		}
		points = append(points, RawPoint{RawCode: code, Date: d, Value: v})
	}
	return points, nil
}
