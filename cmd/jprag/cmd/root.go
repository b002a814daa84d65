// Package cmd provides the CLI commands for jprag.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/hayakawa-lab/jprag/internal/config"
	"github.com/hayakawa-lab/jprag/internal/logging"
	"github.com/hayakawa-lab/jprag/pkg/version"
)

var (
	flagConfig  string
	flagDataDir string
	flagLog     string
	flagNoColor bool

	loggingCleanup func()
)

// NewRootCmd creates the root command for the jprag CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jprag",
		Short: "Hybrid retrieval and evaluation engine for Japanese technical documents",
		Long: `jprag indexes pre-chunked Japanese technical documents with character
n-gram BM25 and dense embeddings, serves hybrid search fused by weighted
reciprocal rank, and evaluates retrieval quality against gold question sets.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("jprag version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file path (default: ./jprag.yaml if present)")
	cmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "Data directory for index artifacts")
	cmd.PersistentFlags().StringVar(&flagLog, "log-level", "", "Log level: debug, info, warn, error")
	cmd.PersistentFlags().BoolVar(&flagNoColor, "no-color", false, "Disable colored output")

	cmd.PersistentPreRunE = setupLogging
	cmd.PersistentPostRun = func(*cobra.Command, []string) {
		if loggingCleanup != nil {
			loggingCleanup()
		}
	}

	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newEvalCmd())
	cmd.AddCommand(newSweepCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	cmd := NewRootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return err
	}
	return nil
}

func setupLogging(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		// Logging must still come up for the command to report the problem.
		cfg = config.Default()
	}

	logger, cleanup, err := logging.Setup(logging.Config{
		Level:         cfg.LogLevel,
		WriteToStderr: true,
	})
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	slog.SetDefault(logger)
	loggingCleanup = cleanup
	return nil
}

// loadConfig resolves the configuration from file, environment, and flags,
// in ascending precedence.
func loadConfig() (*config.Config, error) {
	path := flagConfig
	if path == "" {
		if _, err := os.Stat("jprag.yaml"); err == nil {
			path = "jprag.yaml"
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if flagDataDir != "" {
		cfg.Paths.DataDir = flagDataDir
	}
	if flagLog != "" {
		cfg.LogLevel = flagLog
	}
	return cfg, nil
}
