// Package cli implements the docqa command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"docqa/internal/config"
	"docqa/internal/service"
)

var (
	version = "dev"

	cfgPath string
	verbose bool

	cfg    *config.AppConfig
	logger *slog.Logger

	// openApp assembles the components; tests swap it.
	openApp = service.Open
	// prepareApp runs on every opened app before use; tests install stubs here.
	prepareApp = func(*service.App) {}
)

var rootCmd = &cobra.Command{
	Use:   "docqa",
	Short: "Ask questions about your documents",
	Long: `docqa indexes PDF, DOCX and text files into a local vector collection
and answers questions about them with a language model, citing the passages
each answer is based on.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (YAML or TOML; default ./config.yaml or ~/.config/docqa/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// Execute runs the root command.
func Execute(ctx context.Context, v string) error {
	version = v
	return rootCmd.ExecuteContext(ctx)
}

func setup(cmd *cobra.Command, _ []string) error {
	_ = godotenv.Load()

	var err error
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger = newLogger(cmd.ErrOrStderr(), cfg.Log, verbose)
	slog.SetDefault(logger)
	return nil
}

func newLogger(w io.Writer, lc config.LogConfig, debug bool) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(lc.Level)); err != nil {
		level = slog.LevelInfo
	}
	if debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(lc.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// withApp opens the configured app for the duration of fn.
func withApp(cmd *cobra.Command, fn func(*service.App) error) error {
	app, err := openApp(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := app.Close(); cerr != nil {
			logger.Warn("close failed", "error", cerr)
		}
	}()
	prepareApp(app)
	return fn(app)
}
