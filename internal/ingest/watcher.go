package ingest

// watcher.go ingests CSV files dropped into the inbox directory.
//
// Every dataset spec that names a Directory owns <root>/<Directory>. A
// CSV file appearing there is ingested for that dataset once it has
// settled, then moved to a done/ or failed/ subdirectory so the inbox
// only ever holds work in flight.

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultSettleDelay is how long a new file must sit untouched before
// ingestion, giving slow copies time to finish.
var DefaultSettleDelay = 2 * time.Second

// Watcher feeds inbox file drops into the ingestion service.
type Watcher struct {
	svc    *Service
	root   string
	settle time.Duration
	fw     *fsnotify.Watcher
	dirs   map[string]string // watched directory -> dataset key
}

// NewWatcher creates an inbox watcher rooted at root. The subdirectory
// of every registered dataset is created and watched; datasets without
// a Directory are skipped.
func NewWatcher(svc *Service, root string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		svc:    svc,
		root:   root,
		settle: DefaultSettleDelay,
		fw:     fw,
		dirs:   make(map[string]string),
	}

	for _, spec := range All() {
		if spec.Directory == "" {
			continue
		}
		dir := filepath.Join(root, spec.Directory)
		if err := os.MkdirAll(dir, 0755); err != nil {
			fw.Close()
			return nil, err
		}
		if err := fw.Add(dir); err != nil {
			fw.Close()
			return nil, err
		}
		w.dirs[dir] = spec.Key
	}

	return w, nil
}

// Run watches the inbox until ctx ends. Files already sitting in the
// inbox at startup are ingested first.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fw.Close()

	slog.Info("inbox watcher started", "root", w.root, "datasets", len(w.dirs))
	w.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("inbox watcher stopped")
			return nil
		case event, ok := <-w.fw.Events:
			if !ok {
				return nil
			}
			if !event.Op.Has(fsnotify.Create) {
				continue
			}
			key, watched := w.dirs[filepath.Dir(event.Name)]
			if !watched || !isCSV(event.Name) {
				continue
			}
			go w.ingestWhenSettled(ctx, key, event.Name)
		case err, ok := <-w.fw.Errors:
			if !ok {
				return nil
			}
			slog.Error("inbox watcher error", "error", err)
		}
	}
}

// sweep ingests files that arrived while the watcher was down.
func (w *Watcher) sweep(ctx context.Context) {
	for dir, key := range w.dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			slog.Error("inbox sweep failed", "dir", dir, "error", err)
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() || !isCSV(entry.Name()) {
				continue
			}
			w.ingestFile(ctx, key, filepath.Join(dir, entry.Name()))
		}
	}
}

func (w *Watcher) ingestWhenSettled(ctx context.Context, key, path string) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(w.settle):
	}
	w.ingestFile(ctx, key, path)
}

func (w *Watcher) ingestFile(ctx context.Context, key, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Error("inbox read failed", "file", path, "error", err)
		return
	}

	_, err = w.svc.IngestCSV(ctx, key, filepath.Base(path), data)
	if err != nil {
		slog.Error("inbox ingestion failed", "file", path, "dataset", key, "error", err)
	}
	w.archive(path, err == nil)
}

// archive moves a processed file to done/ or failed/ next to where it
// landed. Archive failures are logged, never fatal.
func (w *Watcher) archive(path string, ok bool) {
	sub := "done"
	if !ok {
		sub = "failed"
	}
	dir := filepath.Join(filepath.Dir(path), sub)
	if err := os.MkdirAll(dir, 0755); err != nil {
		slog.Error("inbox archive failed", "file", path, "error", err)
		return
	}
	if err := os.Rename(path, filepath.Join(dir, filepath.Base(path))); err != nil {
		slog.Error("inbox archive failed", "file", path, "error", err)
	}
}

func isCSV(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".csv")
}
