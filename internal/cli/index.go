package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"docqa/internal/service"
)

var (
	indexJSON    bool
	indexSummary bool
)

var indexCmd = &cobra.Command{
	Use:   "index [paths...]",
	Short: "Index documents",
	Long: `Loads the given files, directories or glob patterns, splits them into
overlapping chunks and adds the chunks to the collection. Re-indexing an
unchanged file adds nothing.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().BoolVar(&indexJSON, "json", false, "output the result as JSON")
	indexCmd.Flags().BoolVar(&indexSummary, "summary", true, "print an extractive summary of the indexed text")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(app *service.App) error {
		res, err := app.Pipeline.Ingest(cmd.Context(), args)
		if indexJSON {
			if perr := printJSON(cmd, res); perr != nil {
				return perr
			}
			return err
		}
		for path, reason := range res.Skipped {
			cmd.PrintErrf("skipped %s: %s\n", path, reason)
		}
		if err != nil {
			if res.Add.BatchesCommitted > 0 {
				cmd.PrintErrf("%d batches were committed before the failure; re-run to finish\n", res.Add.BatchesCommitted)
			}
			return fmt.Errorf("indexing failed: %w", err)
		}

		cmd.Printf("Indexed %d file(s): %d document(s), %d chunk(s)\n", len(res.Files), res.Documents, res.Chunks)
		cmd.Printf("Added %d new chunk(s); collection now holds %d (%s)\n",
			res.Add.DocumentsAdded, res.Add.TotalDocuments, res.Duration.Round(time.Millisecond))
		for _, rec := range res.Quality.Recommendations {
			cmd.Printf("  - %s\n", rec)
		}
		if indexSummary && res.Summary != "" {
			cmd.Println()
			cmd.Println("Summary:")
			cmd.Println(res.Summary)
		}
		return nil
	})
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
