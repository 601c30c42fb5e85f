package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"docqa/internal/service"
)

var (
	batchJSON      bool
	batchNoSources bool
)

var batchCmd = &cobra.Command{
	Use:   "batch [file]",
	Short: "Answer a list of questions",
	Long: `Reads one question per line from the file (or stdin when the file is "-"
or omitted) and answers them with a single batch call to the language model.
Blank lines are skipped.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBatch,
}

func init() {
	batchCmd.Flags().BoolVar(&batchJSON, "json", false, "output the results as JSON")
	batchCmd.Flags().BoolVar(&batchNoSources, "no-sources", false, "do not include source chunks")
	rootCmd.AddCommand(batchCmd)
}

func runBatch(cmd *cobra.Command, args []string) error {
	in := cmd.InOrStdin()
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open questions: %w", err)
		}
		defer f.Close()
		in = f
	}
	questions, err := readQuestions(in)
	if err != nil {
		return err
	}
	if len(questions) == 0 {
		return fmt.Errorf("no questions provided")
	}

	return withApp(cmd, func(app *service.App) error {
		chain, err := app.Chain(0, nil)
		if err != nil {
			return err
		}
		results := chain.BatchQuery(cmd.Context(), questions, !batchNoSources)
		if batchJSON {
			return printJSON(cmd, results)
		}
		failed := 0
		for i, r := range results {
			cmd.Printf("Q%d: %s\n", i+1, r.Question)
			if r.Success {
				cmd.Printf("A%d: %s\n", i+1, r.Answer)
				for _, s := range r.Sources {
					cmd.Printf("    [%d] %s\n", s.Index, s.File)
				}
			} else {
				failed++
				cmd.Printf("A%d: error: %v\n", i+1, r.Err)
			}
			cmd.Println()
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d questions failed", failed, len(results))
		}
		return nil
	})
}

func readQuestions(r io.Reader) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if q := strings.TrimSpace(sc.Text()); q != "" {
			out = append(out, q)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read questions: %w", err)
	}
	return out, nil
}
