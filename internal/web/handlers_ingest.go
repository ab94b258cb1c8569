package web

// handlers_ingest.go serves CSV uploads, provider runs and the run log.

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/atlasquant/marketdata/internal/ingest"
	"github.com/atlasquant/marketdata/internal/store"
)

// datasetSummary describes one registered dataset for API listings.
type datasetSummary struct {
	Key         string   `json:"key"`
	Label       string   `json:"label"`
	Table       string   `json:"table"`
	Columns     []string `json:"columns"`
	PrimaryKeys []string `json:"primary_keys"`
	Mode        string   `json:"mode"`
}

// handleUpload ingests a multipart CSV into the dataset named in the URL.
// The response is the finished run record; partial runs (some rows
// skipped) still return 200 with the skip details.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	dataset := chi.URLParam(r, "dataset")

	maxSize := s.cfg.Ingest.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)
	if err := r.ParseMultipartForm(maxSize); err != nil {
		s.respondError(w, r, &store.ValidationError{Msg: "file too large or invalid form"})
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, r, &store.ValidationError{Msg: "no file provided"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.respondError(w, r, &store.ValidationError{Msg: "read file: " + err.Error()})
		return
	}

	run, err := s.ingest.IngestCSV(r.Context(), dataset, header.Filename, data)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// handleListDatasets lists the registered datasets.
func (s *Server) handleListDatasets(w http.ResponseWriter, r *http.Request) {
	specs := ingest.All()
	out := make([]datasetSummary, 0, len(specs))
	for _, spec := range specs {
		out = append(out, datasetSummary{
			Key:         spec.Key,
			Label:       spec.Label,
			Table:       spec.Table,
			Columns:     spec.ColumnNames(),
			PrimaryKeys: spec.PrimaryKeys,
			Mode:        spec.Mode.String(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"datasets": out})
}

// handleIngestRuns lists finished runs, newest first.
func (s *Server) handleIngestRuns(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"runs": s.ingest.Runs()})
}

// handleListProviders lists the registered provider names.
func (s *Server) handleListProviders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"providers": s.ingest.Providers()})
}

// handleRunProvider triggers a provider run and waits for it to finish.
// Scheduled runs use the same path through the ingestion service, so a
// manual run shows up in the run log like any other.
func (s *Server) handleRunProvider(w http.ResponseWriter, r *http.Request) {
	run, err := s.ingest.RunProvider(r.Context(), chi.URLParam(r, "provider"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}
