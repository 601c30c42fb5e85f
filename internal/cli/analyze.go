package cli

import (
	"github.com/spf13/cobra"

	"docqa/internal/chunker"
	"docqa/internal/domain"
	"docqa/internal/loader"
	"docqa/internal/service"
)

var (
	analyzeSize    int
	analyzeOverlap int
	analyzeJSON    bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [files...]",
	Short: "Report chunking quality without indexing",
	Long: `Loads and chunks the given files with the configured chunker (or the
--chunk-size and --chunk-overlap overrides) and reports size statistics and
recommendations. Nothing is written to the collection.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	f := analyzeCmd.Flags()
	f.IntVar(&analyzeSize, "chunk-size", 0, "chunk size in characters (default from config)")
	f.IntVar(&analyzeOverlap, "chunk-overlap", -1, "chunk overlap in characters (default from config)")
	f.BoolVar(&analyzeJSON, "json", false, "output the report as JSON")
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cc := cfg.Chunker
	if analyzeSize > 0 {
		cc.ChunkSize = analyzeSize
	}
	if analyzeOverlap >= 0 {
		cc.ChunkOverlap = analyzeOverlap
	}
	ch, target, err := service.NewChunker(cc)
	if err != nil {
		return err
	}

	ld := loader.New(loader.WithMaxFileSize(cfg.Loader.MaxFileSize()), loader.WithLogger(logger))
	var docs []domain.Document
	for _, p := range args {
		loaded, err := ld.Load(cmd.Context(), p)
		if err != nil {
			return err
		}
		docs = append(docs, loaded...)
	}

	report := chunker.AnalyzeQuality(ch.Process(docs), target)
	if analyzeJSON {
		return printJSON(cmd, report)
	}
	cmd.Printf("Documents:     %d\n", len(docs))
	cmd.Printf("Chunks:        %d\n", report.TotalChunks)
	cmd.Printf("Average size:  %d\n", report.AverageSize)
	cmd.Printf("Min / max:     %d / %d\n", report.MinSize, report.MaxSize)
	cmd.Printf("Too small:     %d\n", report.TooSmall)
	cmd.Printf("Too large:     %d\n", report.TooLarge)
	cmd.Printf("Low context:   %d\n", report.LowContext)
	cmd.Println()
	for _, r := range report.Recommendations {
		cmd.Printf("  - %s\n", r)
	}
	return nil
}
