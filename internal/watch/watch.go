// Package watch indexes files as they appear in an upload directory.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"docqa/internal/loader"
	"docqa/internal/service"
)

// DefaultDebounce is how long a file must stay quiet before it is indexed.
const DefaultDebounce = 500 * time.Millisecond

// Pipeline ingests a single file.
type Pipeline interface {
	IngestFile(ctx context.Context, path string) (service.IngestResult, error)
}

// Watcher runs the pipeline over supported files created or written in dir.
type Watcher struct {
	dir         string
	pipeline    Pipeline
	debounce    time.Duration
	initialScan bool
	onIndexed   func(path string, res service.IngestResult, err error)
	logger      *slog.Logger
}

// Option configures a Watcher.
type Option func(*Watcher)

func WithDebounce(d time.Duration) Option { return func(w *Watcher) { w.debounce = d } }

// WithInitialScan indexes the files already present before watching.
func WithInitialScan(on bool) Option { return func(w *Watcher) { w.initialScan = on } }

// WithOnIndexed registers a callback invoked after every ingest attempt.
func WithOnIndexed(fn func(path string, res service.IngestResult, err error)) Option {
	return func(w *Watcher) { w.onIndexed = fn }
}

func WithLogger(l *slog.Logger) Option { return func(w *Watcher) { w.logger = l } }

func New(dir string, pipeline Pipeline, opts ...Option) *Watcher {
	w := &Watcher{dir: dir, pipeline: pipeline, debounce: DefaultDebounce, logger: slog.Default()}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With("dir", dir)
	return w
}

// Run watches until ctx is done. It returns nil on cancellation.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create watch directory: %w", err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}

	if w.initialScan {
		if err := w.scan(ctx); err != nil {
			return err
		}
	}
	w.logger.Info("watching for documents")

	pending := map[string]struct{}{}
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if path, ok := w.relevant(ev); ok {
				pending[path] = struct{}{}
				timer.Reset(w.debounce)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)
		case <-timer.C:
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			clear(pending)
			sort.Strings(paths)
			for _, p := range paths {
				w.ingest(ctx, p)
			}
		}
	}
}

func (w *Watcher) scan(ctx context.Context) error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("scan %s: %w", w.dir, err)
	}
	for _, e := range entries {
		if ctx.Err() != nil {
			return nil
		}
		if e.IsDir() || isHidden(e.Name()) || !loader.Supported(e.Name()) {
			continue
		}
		w.ingest(ctx, filepath.Join(w.dir, e.Name()))
	}
	return nil
}

// relevant reports whether ev should trigger indexing and of which path.
func (w *Watcher) relevant(ev fsnotify.Event) (string, bool) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return "", false
	}
	name := filepath.Base(ev.Name)
	if isHidden(name) || !loader.Supported(name) {
		return "", false
	}
	info, err := os.Stat(ev.Name)
	if err != nil || !info.Mode().IsRegular() {
		return "", false
	}
	return ev.Name, true
}

func (w *Watcher) ingest(ctx context.Context, path string) {
	res, err := w.pipeline.IngestFile(ctx, path)
	switch {
	case err == nil:
		w.logger.Info("indexed file", "file", filepath.Base(path), "chunks", res.Chunks,
			"documents_added", res.Add.DocumentsAdded)
	case errors.Is(err, context.Canceled):
	default:
		w.logger.Error("failed to index file", "file", filepath.Base(path), "error", err)
	}
	if w.onIndexed != nil {
		w.onIndexed(path, res, err)
	}
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".") || strings.HasPrefix(name, "~$")
}
