package cli

import (
	"github.com/spf13/cobra"

	"docqa/internal/chunker"
	"docqa/internal/domain"
	"docqa/internal/service"
	"docqa/internal/vectorstore"
)

var (
	searchK      int
	searchSource string
	searchScores bool
	searchJSON   bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search indexed chunks",
	Long: `Returns the chunks most similar to the query without calling the
language model. Falls back to keyword search when the query has no
embedding signal.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	f := searchCmd.Flags()
	f.IntVarP(&searchK, "k", "k", 4, "number of chunks to return")
	f.StringVar(&searchSource, "source", "", "only search chunks from this file name")
	f.BoolVar(&searchScores, "scores", false, "show similarity scores")
	f.BoolVar(&searchJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(searchCmd)
}

type searchRow struct {
	File    string  `json:"file"`
	ChunkID *int    `json:"chunk_id,omitempty"`
	Page    *int    `json:"page,omitempty"`
	Score   float64 `json:"score"`
	Content string  `json:"content"`
}

func runSearch(cmd *cobra.Command, args []string) error {
	var filter vectorstore.Filter
	if searchSource != "" {
		filter = vectorstore.Filter{domain.MetaSourceFile: searchSource}
	}
	return withApp(cmd, func(app *service.App) error {
		hits := app.Index.SearchWithScore(cmd.Context(), args[0], searchK, filter)
		if searchJSON {
			rows := make([]searchRow, len(hits))
			for i, h := range hits {
				rows[i] = searchRow{File: h.Chunk.SourceFile(), Score: h.Score, Content: h.Chunk.Content}
				if id, ok := h.Chunk.ChunkID(); ok {
					rows[i].ChunkID = &id
				}
				if p, ok := h.Chunk.Page(); ok {
					rows[i].Page = &p
				}
			}
			return printJSON(cmd, rows)
		}
		if len(hits) == 0 {
			cmd.Println("No results found.")
			return nil
		}
		for i, h := range hits {
			if searchScores {
				cmd.Printf("  [%d] %s (%.3f)\n", i+1, h.Chunk.SourceFile(), h.Score)
			} else {
				cmd.Printf("  [%d] %s\n", i+1, h.Chunk.SourceFile())
			}
			cmd.Printf("      %s\n\n", chunker.Preview(h.Chunk.Content, 200))
		}
		return nil
	})
}
