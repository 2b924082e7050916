package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/linkmill/linkmill/internal/pipeline"
	"github.com/linkmill/linkmill/internal/shard"
)

// newCollectCmd creates and configures the 'collect' subcommand. It merges
// whatever shards a previous run left behind without fetching anything.
func newCollectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Merges leftover result shards into the final output",
		Long: `Merges the shards a previous run left in the shard directory into the
final CSV and clears the checkpoint, without fetching any links. Useful
after a crash when re-fetching is not wanted.`,
		RunE: runCollectCommand,
	}
	return cmd
}

func runCollectCommand(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := buildLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx := cmd.Context()
	checkpoint, cleanup, err := buildCheckpoint(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	collector := shard.NewCollector(cfg.Output.ShardDir, cfg.Output.Path, logger)
	if err := collector.Collect(ctx); err != nil {
		return fmt.Errorf("collect shards: %w", err)
	}
	if err := checkpoint.Discard(ctx); err != nil {
		return pipeline.Fatal("ledger", err)
	}
	logger.Info("shards collected")
	return nil
}
