package cli

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"docqa/internal/service"
	"docqa/internal/session"
	"docqa/internal/tui"
)

var chatNoStream bool

var chatCmd = &cobra.Command{
	Use:   "chat [paths...]",
	Short: "Start an interactive chat over the collection",
	Long: `Opens the chat UI. Paths given on the command line are indexed first and
an extractive summary of their text is shown in the header.`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().BoolVar(&chatNoStream, "no-stream", false, "wait for complete answers instead of streaming")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(app *service.App) error {
		summary := ""
		if len(args) > 0 {
			res, err := app.Pipeline.Ingest(cmd.Context(), args)
			if err != nil {
				return fmt.Errorf("indexing failed: %w", err)
			}
			summary = res.Summary
		}
		if summary == "" {
			summary = collectionSummary(cmd.Context(), app)
		}

		chain, err := app.Chain(0, nil)
		if err != nil {
			return err
		}
		sess := session.New(session.Settings{
			K:            chain.K(),
			Temperature:  app.Config.LLM.Temperature,
			Streaming:    !chatNoStream,
			ChunkSize:    app.Config.Chunker.ChunkSize,
			ChunkOverlap: app.Config.Chunker.ChunkOverlap,
		})
		factory := func(k int, temp float64) (tui.Chain, error) {
			return app.Chain(k, &temp)
		}

		m := tui.New(chain, factory, sess, summary)
		if _, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(cmd.Context())).Run(); err != nil {
			return fmt.Errorf("chat: %w", err)
		}
		return nil
	})
}

// collectionSummary describes the collection for the chat header.
func collectionSummary(ctx context.Context, app *service.App) string {
	stats, err := app.Index.Statistics(ctx)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%d chunks from %d files", stats.TotalDocuments, stats.UniqueSourceFiles)
}
