package ingest

import (
	"sync"
	"time"
)

// DefaultRunLogSize is how many finished runs the log retains.
const DefaultRunLogSize = 200

// Run statuses.
const (
	RunSucceeded = "succeeded"
	RunPartial   = "partial"
	RunFailed    = "failed"
)

// Run records one ingestion, either a CSV load or a provider fetch.
type Run struct {
	ID          string     `json:"id"`
	Kind        string     `json:"kind"` // "csv" or "provider"
	Source      string     `json:"source"`
	FileName    string     `json:"file_name,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  time.Time  `json:"finished_at"`
	RowsWritten int64      `json:"rows_written"`
	RowsSkipped int        `json:"rows_skipped"`
	Status      string     `json:"status"`
	Error       string     `json:"error,omitempty"`
	FailedRows  []RowError `json:"failed_rows,omitempty"`
}

// RunLog keeps the most recent ingestion runs in memory, newest first.
// It is a bounded diagnostics window, not durable history; restarting
// the process empties it.
type RunLog struct {
	mu   sync.RWMutex
	runs []Run
	max  int
}

// NewRunLog creates a run log retaining up to max runs.
func NewRunLog(max int) *RunLog {
	if max <= 0 {
		max = DefaultRunLogSize
	}
	return &RunLog{max: max}
}

// Add records a finished run, evicting the oldest once full.
func (l *RunLog) Add(r Run) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.runs = append(l.runs, r)
	if len(l.runs) > l.max {
		l.runs = l.runs[len(l.runs)-l.max:]
	}
}

// List returns the retained runs, newest first.
func (l *RunLog) List() []Run {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Run, len(l.runs))
	for i, r := range l.runs {
		out[len(l.runs)-1-i] = r
	}
	return out
}

// Len returns the number of retained runs.
func (l *RunLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.runs)
}
