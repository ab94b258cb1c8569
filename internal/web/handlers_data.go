package web

// handlers_data.go serves the pivoting readers and the lookup maps.
//
// All three readers take comma-separated key lists plus an optional
// inclusive date window and return the wide JSON shape
// {"dates": [...], "columns": [...], "rows": [[...], ...]} with null for
// absent cells.

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-sql/civil"

	"github.com/atlasquant/marketdata/internal/series"
	"github.com/atlasquant/marketdata/internal/store"
)

// parseList splits a comma-separated query parameter into trimmed,
// non-empty values.
func parseList(r *http.Request, name string) []string {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseWindow reads the optional start and end date parameters.
func parseWindow(r *http.Request) (series.Range, error) {
	var window series.Range

	if raw := r.URL.Query().Get("start"); raw != "" {
		d, err := civil.ParseDate(raw)
		if err != nil {
			return window, &store.ValidationError{Msg: fmt.Sprintf("start date %q is not YYYY-MM-DD", raw)}
		}
		window.Start = &d
	}
	if raw := r.URL.Query().Get("end"); raw != "" {
		d, err := civil.ParseDate(raw)
		if err != nil {
			return window, &store.ValidationError{Msg: fmt.Sprintf("end date %q is not YYYY-MM-DD", raw)}
		}
		window.End = &d
	}
	return window, nil
}

// handleSeries returns indicator series pivoted into a wide table,
// one column per code.
func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	window, err := parseWindow(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	table, err := s.series.Series(r.Context(), parseList(r, "codes"), r.URL.Query().Get("field"), window)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, table)
}

// handleDescriptors returns equity descriptors pivoted into a wide table
// keyed by (ticker, descriptor).
func (s *Server) handleDescriptors(w http.ResponseWriter, r *http.Request) {
	window, err := parseWindow(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	table, err := s.series.Descriptors(r.Context(), parseList(r, "tickers"), parseList(r, "descriptors"), window)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, table)
}

// handleComposition returns index membership pivoted into a wide table
// keyed by (index, ticker).
func (s *Server) handleComposition(w http.ResponseWriter, r *http.Request) {
	window, err := parseWindow(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	table, err := s.series.IndexComposition(r.Context(), parseList(r, "indexes"), window)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, table)
}

// handleCodes returns the raw-to-canonical code map, optionally filtered
// by source and category.
func (s *Server) handleCodes(w http.ResponseWriter, r *http.Request) {
	codes, err := s.series.Codes(r.Context(), r.URL.Query().Get("source"), r.URL.Query().Get("category"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"codes": codes})
}

// handleSecurities returns the vendor-ticker map for active securities.
// An empty exchange lists every active security.
func (s *Server) handleSecurities(w http.ResponseWriter, r *http.Request) {
	securities, err := s.series.SecuritiesByExchange(r.Context(), r.URL.Query().Get("exchange"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"securities": securities})
}
