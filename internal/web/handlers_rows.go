package web

// handlers_rows.go serves direct table writes through the batched writer.

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/atlasquant/marketdata/internal/logging"
	"github.com/atlasquant/marketdata/internal/store"
)

// writeRowsRequest is the POST body for /tables/{table}/rows.
type writeRowsRequest struct {
	Columns     []string `json:"columns"`
	Rows        [][]any  `json:"rows"`
	PrimaryKeys []string `json:"primary_keys"`
	Mode        string   `json:"mode"`
}

// writeRowsResponse reports a completed write.
type writeRowsResponse struct {
	Table           string `json:"table"`
	Mode            string `json:"mode"`
	RowsWritten     int64  `json:"rows_written"`
	ChunksCommitted int    `json:"chunks_committed"`
}

// handleWriteRows writes a dataset into the named table. Mode defaults
// to upsert when the body omits it. Writes commit chunk by chunk, so a
// failure can leave earlier chunks in place; the log line records how
// far the write got.
func (s *Server) handleWriteRows(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Ingest.MaxFileSize)
	var req writeRowsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, r, &store.ValidationError{Msg: "malformed JSON body: " + err.Error()})
		return
	}

	mode := store.WriteUpsert
	if req.Mode != "" {
		m, err := store.ParseWriteMode(req.Mode)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		mode = m
	}

	data := &store.Dataset{Columns: req.Columns, Rows: req.Rows}
	result, err := store.Write(r.Context(), s.pool, table, data, req.PrimaryKeys, mode)
	if err != nil {
		if result.ChunksCommitted > 0 {
			logging.FromContext(r.Context()).Warn("partial write",
				"table", table,
				"rows_written", result.RowsWritten,
				"chunks_committed", result.ChunksCommitted,
			)
		}
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, writeRowsResponse{
		Table:           table,
		Mode:            mode.String(),
		RowsWritten:     result.RowsWritten,
		ChunksCommitted: result.ChunksCommitted,
	})
}
