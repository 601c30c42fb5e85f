// Package mcp exposes the collection to MCP clients over stdio.
package mcp

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"docqa/internal/domain"
	"docqa/internal/index"
	"docqa/internal/vectorstore"
)

const (
	serverName     = "docqa"
	defaultSearchK = 4
	maxSearchK     = 20
	snippetRunes   = 500
)

// Asker answers questions; it is nil when no language model is configured.
type Asker interface {
	Query(ctx context.Context, question string, returnSources bool) domain.QueryResult
}

// Index is the read side of the index manager.
type Index interface {
	SearchWithScore(ctx context.Context, query string, k int, filter vectorstore.Filter) []domain.ScoredChunk
	Statistics(ctx context.Context) (index.Statistics, error)
}

// Tools implements the MCP tool handlers.
type Tools struct {
	asker  Asker
	index  Index
	logger *slog.Logger
}

func NewTools(asker Asker, idx Index, logger *slog.Logger) *Tools {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tools{asker: asker, index: idx, logger: logger}
}

// AskInput defines input for the ask tool.
type AskInput struct {
	Question       string `json:"question" jsonschema:"Question to answer from the indexed documents"`
	IncludeSources *bool  `json:"include_sources,omitempty" jsonschema:"Return the cited chunks (default true)"`
}

// AskOutput defines output for the ask tool.
type AskOutput struct {
	Answer         string            `json:"answer"`
	Model          string            `json:"model"`
	ProcessingTime float64           `json:"processing_time_seconds"`
	Sources        []domain.Citation `json:"sources,omitempty"`
}

// SearchInput defines input for the search tool.
type SearchInput struct {
	Query      string `json:"query" jsonschema:"Text to search for"`
	K          int    `json:"k,omitempty" jsonschema:"Number of chunks to return (optional, defaults to 4, max 20)"`
	SourceFile string `json:"source_file,omitempty" jsonschema:"Only return chunks from this file name (optional)"`
}

// SearchHit is one chunk returned by the search tool.
type SearchHit struct {
	File    string  `json:"file"`
	ChunkID *int    `json:"chunk_id,omitempty"`
	Page    *int    `json:"page,omitempty"`
	Score   float64 `json:"score"`
	Content string  `json:"content"`
}

// SearchOutput defines output for the search tool.
type SearchOutput struct {
	Query   string      `json:"query"`
	Results []SearchHit `json:"results"`
}

// StatsInput defines input for the stats tool.
type StatsInput struct{}

// Ask answers a question with citations.
func (t *Tools) Ask(ctx context.Context, _ *mcp.CallToolRequest, in AskInput) (*mcp.CallToolResult, AskOutput, error) {
	if t.asker == nil {
		return nil, AskOutput{}, errors.New("no language model configured; set the API key and restart the server")
	}
	withSources := in.IncludeSources == nil || *in.IncludeSources
	res := t.asker.Query(ctx, in.Question, withSources)
	if !res.Success {
		return nil, AskOutput{}, res.Err
	}
	return nil, AskOutput{
		Answer:         res.Answer,
		Model:          res.Model,
		ProcessingTime: res.ProcessingTime.Seconds(),
		Sources:        res.Sources,
	}, nil
}

// Search returns the chunks most similar to the query.
func (t *Tools) Search(ctx context.Context, _ *mcp.CallToolRequest, in SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	if strings.TrimSpace(in.Query) == "" {
		return nil, SearchOutput{}, domain.E(domain.KindInput, "mcp.search", errors.New("query is required"))
	}
	k := in.K
	if k <= 0 || k > maxSearchK {
		k = defaultSearchK
	}
	var filter vectorstore.Filter
	if in.SourceFile != "" {
		filter = vectorstore.Filter{domain.MetaSourceFile: in.SourceFile}
	}

	hits := t.index.SearchWithScore(ctx, in.Query, k, filter)
	out := SearchOutput{Query: in.Query, Results: make([]SearchHit, 0, len(hits))}
	for _, h := range hits {
		hit := SearchHit{
			File:    h.Chunk.SourceFile(),
			Score:   h.Score,
			Content: truncate(h.Chunk.Content, snippetRunes),
		}
		if id, ok := h.Chunk.ChunkID(); ok {
			hit.ChunkID = &id
		}
		if p, ok := h.Chunk.Page(); ok {
			hit.Page = &p
		}
		out.Results = append(out.Results, hit)
	}
	return nil, out, nil
}

// Stats reports collection statistics.
func (t *Tools) Stats(ctx context.Context, _ *mcp.CallToolRequest, _ StatsInput) (*mcp.CallToolResult, index.Statistics, error) {
	stats, err := t.index.Statistics(ctx)
	if err != nil {
		return nil, index.Statistics{}, err
	}
	return nil, stats, nil
}

// NewServer builds an MCP server with the ask, search and stats tools.
func NewServer(version string, tools *Tools) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: serverName, Version: version}, nil)

	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "ask",
			Description: "Answer a question using only the indexed documents. Returns the answer and the cited chunks.",
		},
		tools.Ask,
	)
	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "search",
			Description: "Semantic search over the indexed documents, optionally restricted to one source file.",
		},
		tools.Search,
	)
	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "stats",
			Description: "Report the number of indexed chunks, the source files and the embedding model.",
		},
		tools.Stats,
	)
	return server
}

// Serve runs server over stdin/stdout until ctx ends or the client disconnects.
func Serve(ctx context.Context, server *mcp.Server, logger *slog.Logger) error {
	logger.Info("mcp server ready", "transport", "stdio")
	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
