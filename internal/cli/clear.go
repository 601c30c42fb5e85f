package cli

import (
	"bufio"
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"docqa/internal/service"
)

var clearYes bool

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every indexed chunk",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if !clearYes {
			cmd.Print("This deletes the whole collection. Continue? [y/N] ")
			line, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if a := strings.ToLower(strings.TrimSpace(line)); a != "y" && a != "yes" {
				cmd.Println("Aborted.")
				return nil
			}
		}
		return withApp(cmd, func(app *service.App) error {
			if !app.Index.Clear(cmd.Context()) {
				return errors.New("failed to clear the collection")
			}
			cmd.Println("Collection cleared.")
			return nil
		})
	},
}

func init() {
	clearCmd.Flags().BoolVarP(&clearYes, "yes", "y", false, "do not ask for confirmation")
	rootCmd.AddCommand(clearCmd)
}
