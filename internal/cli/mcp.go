package cli

import (
	"github.com/spf13/cobra"

	"docqa/internal/mcp"
	"docqa/internal/service"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "MCP server commands",
	Long:  `Commands for the Model Context Protocol (MCP) server integration.`,
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server",
	Long: `Start the Model Context Protocol server over stdio. It exposes three
tools: ask, search and stats. Logs go to stderr.

Client configuration:
  {
    "mcpServers": {
      "docqa": {
        "command": "/path/to/docqa",
        "args": ["mcp", "serve"]
      }
    }
  }`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(app *service.App) error {
			var asker mcp.Asker
			chain, err := app.Chain(0, nil)
			if err != nil {
				// search and stats still work
				logger.Warn("ask tool disabled", "error", err)
			} else {
				asker = chain
			}
			tools := mcp.NewTools(asker, app.Index, logger)
			return mcp.Serve(cmd.Context(), mcp.NewServer(version, tools), logger)
		})
	},
}

func init() {
	mcpCmd.AddCommand(mcpServeCmd)
	rootCmd.AddCommand(mcpCmd)
}
