// Package cmd defines and implements the CLI commands for the linkmill
// executable.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/linkmill/linkmill/internal/config"
	"github.com/linkmill/linkmill/internal/logging"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "linkmill",
		Short: "A resumable concurrent batch fetcher.",
		Long: `linkmill fetches a list of links concurrently, extracts flat records
from each response and merges them into one CSV. Completed links are
checkpointed so an interrupted run picks up where it left off instead of
starting over.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is linkmill.yaml in the working directory)")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newCollectCmd())

	return cmd
}

// loadConfig reads the configuration file, falling back to defaults and
// LINKMILL_* environment variables when no file is given.
func loadConfig() (config.Config, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat("linkmill.yaml"); err == nil {
			path = "linkmill.yaml"
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func buildLogger(cfg config.Config) (*zap.Logger, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return logger, nil
}

// Execute is the main entry point. It installs signal handling so an
// interrupt stops feeding new links and lets in-flight work finish.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
