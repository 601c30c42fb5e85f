// Package loader reads supported files from disk into domain documents.
package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"golang.org/x/text/encoding/charmap"

	"docqa/internal/domain"
)

// DefaultMaxFileSize is the largest file Load accepts unless overridden.
const DefaultMaxFileSize int64 = 50 * 1024 * 1024

// SupportedFormats lists the extensions Load understands.
var SupportedFormats = []string{".pdf", ".txt", ".docx"}

// Loader validates and parses files.
type Loader struct {
	maxFileSize int64
	logger      *slog.Logger
	now         func() time.Time
}

// Option configures a Loader.
type Option func(*Loader)

// WithMaxFileSize sets the size limit in bytes.
func WithMaxFileSize(n int64) Option {
	return func(l *Loader) {
		if n > 0 {
			l.maxFileSize = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) { l.logger = logger }
}

// New creates a loader.
func New(opts ...Option) *Loader {
	l := &Loader{maxFileSize: DefaultMaxFileSize, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Supported reports whether path has a loadable extension.
func Supported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, f := range SupportedFormats {
		if f == ext {
			return true
		}
	}
	return false
}

// Load parses one file. PDFs produce a document per page; other formats
// produce a single document.
func (l *Loader) Load(_ context.Context, path string) ([]domain.Document, error) {
	const op = "loader.load"
	info, err := l.validate(path)
	if err != nil {
		return nil, domain.E(domain.KindInput, op, err)
	}

	var docs []domain.Document
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".pdf":
		docs, err = loadPDF(path)
	case ".txt":
		docs, err = loadText(path)
	case ".docx":
		docs, err = loadDOCX(path)
	}
	if err != nil {
		l.logger.Error("failed to load file", "file", info.Name(), "error", err)
		return nil, domain.E(domain.KindInput, op, fmt.Errorf("%s: %w", info.Name(), err))
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	loadedAt := l.now().Format(time.RFC3339)
	for i := range docs {
		if docs[i].Metadata == nil {
			docs[i].Metadata = domain.Metadata{}
		}
		md := docs[i].Metadata
		md[domain.MetaSourceFile] = info.Name()
		md[domain.MetaFilePath] = abs
		md[domain.MetaFileType] = ext
		md[domain.MetaLoadedAt] = loadedAt
		md[domain.MetaChunkIndex] = i
		md[domain.MetaTotalChunks] = len(docs)
	}

	l.logger.Info("loaded file", "file", info.Name(), "documents", len(docs))
	return docs, nil
}

// LoadDirectory loads every supported file directly inside dir, keyed by file
// name. Files that fail to load are logged and skipped.
func (l *Loader) LoadDirectory(ctx context.Context, dir string) (map[string][]domain.Document, error) {
	const op = "loader.load_directory"
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, domain.E(domain.KindInput, op, fmt.Errorf("not a directory: %s: %w", dir, err))
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !Supported(e.Name()) {
			continue
		}
		files = append(files, e.Name())
	}
	sort.Strings(files)
	l.logger.Info("found supported files", "dir", dir, "count", len(files))

	results := make(map[string][]domain.Document, len(files))
	for _, name := range files {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		docs, err := l.Load(ctx, filepath.Join(dir, name))
		if err != nil {
			l.logger.Warn("skipping file", "file", name, "error", err)
			continue
		}
		results[name] = docs
	}
	l.logger.Info("loaded directory", "loaded", len(results), "found", len(files))
	return results, nil
}

func (l *Loader) validate(path string) (os.FileInfo, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("file not found: %s", path)
	}
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("not a file: %s", path)
	}
	if !Supported(path) {
		return nil, fmt.Errorf("unsupported format: %q (supported: %s)",
			strings.ToLower(filepath.Ext(path)), strings.Join(SupportedFormats, ", "))
	}
	if info.Size() > l.maxFileSize {
		return nil, fmt.Errorf("file too large: %.2fMB (max: %dMB)",
			float64(info.Size())/(1024*1024), l.maxFileSize/(1024*1024))
	}
	return info, nil
}

func loadText(path string) ([]domain.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(data) {
		data, err = charmap.Windows1252.NewDecoder().Bytes(data)
		if err != nil {
			return nil, fmt.Errorf("decode text: %w", err)
		}
	}
	return []domain.Document{{Content: string(data), Metadata: domain.Metadata{}}}, nil
}

func loadPDF(path string) ([]domain.Document, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	var docs []domain.Document
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		docs = append(docs, domain.Document{
			Content:  text,
			Metadata: domain.Metadata{domain.MetaPage: i - 1},
		})
	}
	return docs, nil
}
