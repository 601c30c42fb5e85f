package cli

import (
	"github.com/spf13/cobra"

	"docqa/internal/service"
	"docqa/internal/watch"
)

var watchInitialScan bool

var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Index documents as they are added to a directory",
	Long: `Watches the directory (default: loader.upload_dir from the config) and
indexes supported files when they are created or written. Runs until
interrupted.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := cfg.Loader.UploadDir
		if len(args) == 1 {
			dir = args[0]
		}
		return withApp(cmd, func(app *service.App) error {
			w := watch.New(dir, app.Pipeline,
				watch.WithInitialScan(watchInitialScan),
				watch.WithLogger(logger),
			)
			cmd.Printf("Watching %s (Ctrl+C to stop)\n", dir)
			return w.Run(cmd.Context())
		})
	},
}

func init() {
	watchCmd.Flags().BoolVar(&watchInitialScan, "initial-scan", true, "index files already in the directory first")
	rootCmd.AddCommand(watchCmd)
}
