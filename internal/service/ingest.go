// Package service wires the configured components together and runs the
// ingest pipeline shared by the CLI, the watcher and the chat UI.
package service

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

	"docqa/internal/chunker"
	"docqa/internal/domain"
	"docqa/internal/index"
	"docqa/internal/loader"
)

// Indexer is the write side of the index manager.
type Indexer interface {
	Add(ctx context.Context, chunks []domain.Chunk, batchSize int) index.AddResult
}

// Pipeline loads files, chunks them and adds the chunks to the index.
type Pipeline struct {
	loader              *loader.Loader
	chunker             domain.Chunker
	indexer             Indexer
	summarizer          domain.Summarizer
	summaryMaxSentences int
	batchSize           int
	qualityTarget       int
	logger              *slog.Logger
}

// PipelineConfig configures NewPipeline. Summarizer may be nil.
type PipelineConfig struct {
	Loader              *loader.Loader
	Chunker             domain.Chunker
	Indexer             Indexer
	Summarizer          domain.Summarizer
	SummaryMaxSentences int
	BatchSize           int
	// QualityTarget is the chunk size the quality report measures against.
	QualityTarget int
	Logger        *slog.Logger
}

// IngestResult reports one run of the pipeline.
type IngestResult struct {
	Files     []string              `json:"files"`
	Skipped   map[string]string     `json:"skipped,omitempty"`
	Documents int                   `json:"documents"`
	Chunks    int                   `json:"chunks"`
	Add       index.AddResult       `json:"add"`
	Quality   chunker.QualityReport `json:"quality"`
	Summary   string                `json:"summary,omitempty"`
	Duration  time.Duration         `json:"duration"`
}

func NewPipeline(cfg PipelineConfig) *Pipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	l := cfg.Loader
	if l == nil {
		l = loader.New(loader.WithLogger(logger))
	}
	return &Pipeline{
		loader:              l,
		chunker:             cfg.Chunker,
		indexer:             cfg.Indexer,
		summarizer:          cfg.Summarizer,
		summaryMaxSentences: cfg.SummaryMaxSentences,
		batchSize:           cfg.BatchSize,
		qualityTarget:       cfg.QualityTarget,
		logger:              logger,
	}
}

// Ingest expands paths (files, directories or glob patterns), loads every
// supported file, chunks the documents and indexes the chunks. Files that fail
// to load are skipped and reported; an input with nothing loadable is an
// input error.
func (p *Pipeline) Ingest(ctx context.Context, paths []string) (IngestResult, error) {
	const op = "service.ingest"
	start := time.Now()
	res := IngestResult{Skipped: map[string]string{}}

	var docs []domain.Document
	for _, path := range expand(paths) {
		info, err := os.Stat(path)
		if err == nil && info.IsDir() {
			byFile, err := p.loader.LoadDirectory(ctx, path)
			if err != nil {
				res.Skipped[path] = err.Error()
				continue
			}
			names := make([]string, 0, len(byFile))
			for name := range byFile {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				res.Files = append(res.Files, filepath.Join(path, name))
				docs = append(docs, byFile[name]...)
			}
			continue
		}
		loaded, err := p.loader.Load(ctx, path)
		if err != nil {
			p.logger.Warn("skipping file", "file", path, "error", err)
			res.Skipped[path] = err.Error()
			continue
		}
		res.Files = append(res.Files, path)
		docs = append(docs, loaded...)
	}
	if len(docs) == 0 {
		res.Duration = time.Since(start)
		return res, domain.E(domain.KindInput, op, domain.ErrNoDocuments)
	}
	res.Documents = len(docs)

	chunks := p.chunker.Process(docs)
	res.Chunks = len(chunks)
	res.Quality = chunker.AnalyzeQuality(chunks, p.qualityTarget)
	if len(chunks) == 0 {
		res.Duration = time.Since(start)
		return res, domain.E(domain.KindInput, op, errors.New("documents produced no chunks"))
	}

	res.Add = p.indexer.Add(ctx, chunks, p.batchSize)
	if !res.Add.Success {
		res.Duration = time.Since(start)
		return res, res.Add.Err
	}

	if p.summarizer != nil {
		var all strings.Builder
		for _, d := range docs {
			all.WriteString("\n")
			all.WriteString(d.Content)
		}
		summary, err := p.summarizer.Summarize(all.String(), p.summaryMaxSentences)
		if err != nil {
			p.logger.Warn("summary failed", "error", err)
		}
		res.Summary = summary
	}

	res.Duration = time.Since(start)
	p.logger.Info("ingest complete",
		"files", len(res.Files),
		"skipped", len(res.Skipped),
		"chunks", res.Chunks,
		"documents_added", res.Add.DocumentsAdded,
		"duration", res.Duration.Round(time.Millisecond),
	)
	return res, nil
}

// IngestFile runs the pipeline over a single file.
func (p *Pipeline) IngestFile(ctx context.Context, path string) (IngestResult, error) {
	res, err := p.Ingest(ctx, []string{path})
	if err != nil {
		if reason, ok := res.Skipped[path]; ok {
			return res, fmt.Errorf("%s: %w", reason, err)
		}
	}
	return res, err
}

// expand resolves glob patterns; a pattern with no match is kept verbatim so
// the loader reports it.
func expand(paths []string) []string {
	var out []string
	for _, p := range paths {
		matches, _ := filepath.Glob(p)
		if matches == nil {
			matches = []string{p}
		}
		out = append(out, matches...)
	}
	return out
}
