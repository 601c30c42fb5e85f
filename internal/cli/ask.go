package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"docqa/internal/domain"
	"docqa/internal/rag"
	"docqa/internal/service"
)

var (
	askStream      bool
	askNoSources   bool
	askJSON        bool
	askK           int
	askTemperature float64
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a question from the indexed documents",
	Long: `Retrieves the chunks most similar to the question and asks the language
model to answer from them only. Sources are listed after the answer.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	f := askCmd.Flags()
	f.BoolVarP(&askStream, "stream", "s", false, "print the answer as it is generated")
	f.BoolVar(&askNoSources, "no-sources", false, "do not list the source chunks")
	f.BoolVar(&askJSON, "json", false, "output the result as JSON")
	f.IntVarP(&askK, "k", "k", 0, "number of chunks to retrieve (default from config)")
	f.Float64VarP(&askTemperature, "temperature", "t", 0, "sampling temperature (default from config)")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	question := strings.Join(args, " ")
	return withApp(cmd, func(app *service.App) error {
		chain, err := buildChain(cmd, app, askK)
		if err != nil {
			return err
		}
		if askStream && !askJSON {
			return streamAnswer(cmd, chain, question)
		}

		res := chain.Query(cmd.Context(), question, !askNoSources)
		if askJSON {
			if err := printJSON(cmd, res); err != nil {
				return err
			}
			return res.Err
		}
		if !res.Success {
			return res.Err
		}
		cmd.Println(res.Answer)
		printSources(cmd, res.Sources)
		return nil
	})
}

func streamAnswer(cmd *cobra.Command, chain *rag.Chain, question string) error {
	for frag, err := range chain.StreamQueryErr(cmd.Context(), question) {
		if err != nil {
			cmd.Println()
			return err
		}
		cmd.Print(frag)
	}
	cmd.Println()
	if !askNoSources {
		printSources(cmd, chain.Sources(cmd.Context(), question))
	}
	return nil
}

// buildChain applies the --k and --temperature flags when they were set.
func buildChain(cmd *cobra.Command, app *service.App, k int) (*rag.Chain, error) {
	var temp *float64
	if f := cmd.Flags().Lookup("temperature"); f != nil && f.Changed {
		temp = &askTemperature
	}
	return app.Chain(k, temp)
}

func printSources(cmd *cobra.Command, sources []domain.Citation) {
	if len(sources) == 0 {
		return
	}
	cmd.Println()
	cmd.Println("Sources:")
	for _, s := range sources {
		loc := s.File
		if s.Page != nil {
			loc += fmt.Sprintf(", page %d", *s.Page+1)
		}
		cmd.Printf("  [%d] %s\n", s.Index, loc)
		cmd.Printf("      %s\n", s.Preview)
	}
}
