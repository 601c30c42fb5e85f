package cli

import (
	"github.com/spf13/cobra"

	"docqa/internal/service"
)

var statsJSON bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show collection statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(app *service.App) error {
			stats, err := app.Index.Statistics(cmd.Context())
			if err != nil {
				return err
			}
			if statsJSON {
				return printJSON(cmd, stats)
			}
			cmd.Printf("Collection:       %s\n", stats.CollectionName)
			cmd.Printf("Location:         %s\n", stats.PersistLocation)
			cmd.Printf("Embedding model:  %s\n", stats.EmbeddingModel)
			cmd.Printf("Chunks:           %d\n", stats.TotalDocuments)
			cmd.Printf("Source files:     %d\n", stats.UniqueSourceFiles)
			for _, f := range stats.SourceFiles {
				cmd.Printf("  %-40s %d\n", f, stats.SourceCounts[f])
			}
			return nil
		})
	},
}

func init() {
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "output as JSON")
	rootCmd.AddCommand(statsCmd)
}
