package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/service"
)

type recordingPipeline struct {
	mu    sync.Mutex
	paths []string
	fail  string
}

func (p *recordingPipeline) IngestFile(_ context.Context, path string) (service.IngestResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paths = append(p.paths, filepath.Base(path))
	if filepath.Base(path) == p.fail {
		return service.IngestResult{}, errors.New("broken")
	}
	return service.IngestResult{Chunks: 1}, nil
}

func (p *recordingPipeline) seen() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.paths...)
}

func startWatcher(t *testing.T, dir string, p Pipeline, opts ...Option) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	w := New(dir, p, append([]Option{WithDebounce(50 * time.Millisecond)}, opts...)...)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
	})
}

func TestWatcher_IndexesNewSupportedFiles(t *testing.T) {
	dir := t.TempDir()
	p := &recordingPipeline{}
	startWatcher(t, dir, p)

	// give the watcher a moment to register the directory
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hello"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "image.png"), []byte("png"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden.txt"), []byte("x"), 0o644))

	assert.Eventually(t, func() bool {
		return len(p.seen()) == 1
	}, 3*time.Second, 20*time.Millisecond)
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, []string{"notes.txt"}, p.seen())
}

func TestWatcher_InitialScanReportsFailures(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("b"), 0o644))
	p := &recordingPipeline{fail: "b.txt"}

	var mu sync.Mutex
	failed := map[string]bool{}
	startWatcher(t, dir, p, WithInitialScan(true), WithOnIndexed(func(path string, _ service.IngestResult, err error) {
		mu.Lock()
		failed[filepath.Base(path)] = err != nil
		mu.Unlock()
	}))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(failed) == 2
	}, 3*time.Second, 20*time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.False(t, failed["a.txt"])
	assert.True(t, failed["b.txt"])
}

func TestWatcher_Relevant(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "doc.pdf")
	require.NoError(t, os.WriteFile(file, []byte("%PDF"), 0o644))
	sub := filepath.Join(dir, "folder.txt")
	require.NoError(t, os.Mkdir(sub, 0o755))

	w := New(dir, &recordingPipeline{})
	tests := []struct {
		name string
		ev   fsnotify.Event
		want bool
	}{
		{"create", fsnotify.Event{Name: file, Op: fsnotify.Create}, true},
		{"write", fsnotify.Event{Name: file, Op: fsnotify.Write}, true},
		{"chmod", fsnotify.Event{Name: file, Op: fsnotify.Chmod}, false},
		{"remove", fsnotify.Event{Name: filepath.Join(dir, "gone.txt"), Op: fsnotify.Remove}, false},
		{"directory", fsnotify.Event{Name: sub, Op: fsnotify.Create}, false},
		{"office lock file", fsnotify.Event{Name: filepath.Join(dir, "~$doc.docx"), Op: fsnotify.Create}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := w.relevant(tt.ev)
			assert.Equal(t, tt.want, ok)
		})
	}
}
