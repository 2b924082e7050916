package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/linkmill/linkmill/internal/api"
	"github.com/linkmill/linkmill/internal/clock/system"
	"github.com/linkmill/linkmill/internal/config"
	"github.com/linkmill/linkmill/internal/driver"
	"github.com/linkmill/linkmill/internal/fetch"
	"github.com/linkmill/linkmill/internal/id/uuid"
	"github.com/linkmill/linkmill/internal/input"
	"github.com/linkmill/linkmill/internal/ledger"
	"github.com/linkmill/linkmill/internal/ledger/postgres"
	"github.com/linkmill/linkmill/internal/pool"
	"github.com/linkmill/linkmill/internal/progress"
	"github.com/linkmill/linkmill/internal/progress/sinks"
	"github.com/linkmill/linkmill/internal/recovery"
	"github.com/linkmill/linkmill/internal/runstate"
	"github.com/linkmill/linkmill/internal/shard"
)

// runFlags are the CLI overrides layered on top of the config file.
type runFlags struct {
	input     string
	output    string
	failed    string
	completed string
	shardDir  string
	workers   int
	retries   int
	delayMs   int
	proxy     string
	serve     bool
	port      int
	yes       bool
}

// newRunCmd creates and configures the 'run' subcommand.
func newRunCmd() *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Fetches every link in the input list and merges the results",
		Long: `Reads the link list, fetches each link through the worker pool and
writes one result shard per success. When every link is accounted for the
shards are merged into the final CSV and the checkpoint is cleared.

Press p followed by Enter to pause and resume fetching; an interrupt
(Ctrl-C) stops the run gracefully, keeping the checkpoint so the next run
resumes.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPipeline(cmd, flags)
		},
	}

	cmd.Flags().StringVarP(&flags.input, "input", "i", "", "link list file (.txt or .csv)")
	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "merged output CSV path")
	cmd.Flags().StringVar(&flags.failed, "failed", "", "failed-links list path")
	cmd.Flags().StringVar(&flags.completed, "completed", "", "checkpoint ledger path (file backend)")
	cmd.Flags().StringVar(&flags.shardDir, "shard-dir", "", "shard store directory")
	cmd.Flags().IntVarP(&flags.workers, "workers", "w", 0, "concurrent fetch workers")
	cmd.Flags().IntVarP(&flags.retries, "retries", "r", -1, "retries per link after the first attempt")
	cmd.Flags().IntVar(&flags.delayMs, "delay-ms", -1, "sleep after each success, in milliseconds")
	cmd.Flags().StringVar(&flags.proxy, "proxy", "", "proxy URL for every fetch")
	cmd.Flags().BoolVar(&flags.serve, "serve", false, "serve progress and metrics over HTTP")
	cmd.Flags().IntVar(&flags.port, "port", 0, "status server port")
	cmd.Flags().BoolVarP(&flags.yes, "yes", "y", false, "answer yes to every recovery prompt")

	return cmd
}

func runPipeline(cmd *cobra.Command, flags *runFlags) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyRunFlags(&cfg, cmd, flags)
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Input.Path == "" {
		return errors.New("an input link list is required (--input or input.path)")
	}

	logger, err := buildLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx := cmd.Context()

	links, err := input.Load(cfg.Input.Path)
	if err != nil {
		return err
	}
	if len(links) == 0 {
		logger.Info("input list is empty, nothing to do")
		return nil
	}

	checkpoint, cleanup, err := buildCheckpoint(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	failed, err := ledger.NewFailedFile(cfg.Output.FailedPath)
	if err != nil {
		return err
	}
	ids := uuid.New()
	store, err := shard.NewStore(cfg.Output.ShardDir, ids)
	if err != nil {
		return err
	}
	extractor, err := fetch.New(fetch.Config{
		UserAgent: cfg.Fetch.UserAgent,
		Proxy:     cfg.Fetch.Proxy,
		Timeout:   cfg.FetchTimeout(),
	}, logger)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	progressSinks := []progress.Sink{
		sinks.NewConsoleSink(os.Stderr),
		sinks.NewLogSink(logger),
	}
	if cfg.Server.Enabled {
		promSink, err := sinks.NewPrometheusSink(registry)
		if err != nil {
			return err
		}
		progressSinks = append(progressSinks, promSink)
	}

	var confirm driver.Confirmer
	if flags.yes {
		confirm = driver.AutoConfirmer{}
	} else {
		confirm = &promptConfirmer{in: os.Stdin, out: os.Stderr}
	}

	var server *api.Server
	onStart := func(state *runstate.Coordinator) {
		if cfg.Server.Enabled {
			server = api.NewServer(state, registry, logger)
			server.Start(cfg.Server.Port)
			logger.Info("status server listening", zap.Int("port", cfg.Server.Port))
		}
		go watchPauseKey(ctx, os.Stdin, state, logger)
		fmt.Fprintln(os.Stderr, "press p+Enter to pause/resume")
	}

	d, err := driver.New(driver.Options{
		Links:      links,
		Checkpoint: checkpoint,
		Failed:     failed,
		Store:      store,
		Collector:  shard.NewCollector(store.Dir(), cfg.Output.Path, logger),
		Extractor:  extractor,
		OutputPath: cfg.Output.Path,
		Pool: pool.Config{
			Workers:       cfg.Pool.Workers,
			RetryLimit:    cfg.Pool.RetryLimit,
			ThrottleDelay: cfg.ThrottleDelay(),
		},
		Hub:     progress.Config{Logger: logger},
		Sinks:   progressSinks,
		Confirm: confirm,
		Clock:   system.New(),
		Logger:  logger,
		OnStart: onStart,
	})
	if err != nil {
		return err
	}

	summary, runErr := d.Run(ctx)
	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("status server shutdown failed", zap.Error(err))
		}
		cancel()
	}

	logger.Info("run finished",
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Duration("elapsed", summary.Elapsed),
	)
	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			logger.Info("run interrupted, checkpoint kept for the next invocation")
			return nil
		}
		return runErr
	}
	fmt.Fprintf(os.Stderr, "done: %d succeeded, %d failed in %s\n",
		summary.Succeeded, summary.Failed, summary.Elapsed.Round(time.Millisecond))
	return nil
}

// applyRunFlags overlays changed CLI flags onto the loaded config.
func applyRunFlags(cfg *config.Config, cmd *cobra.Command, flags *runFlags) {
	if flags.input != "" {
		cfg.Input.Path = flags.input
	}
	if flags.output != "" {
		cfg.Output.Path = flags.output
	}
	if flags.failed != "" {
		cfg.Output.FailedPath = flags.failed
	}
	if flags.completed != "" {
		cfg.Ledger.Path = flags.completed
	}
	if flags.shardDir != "" {
		cfg.Output.ShardDir = flags.shardDir
	}
	if flags.workers > 0 {
		cfg.Pool.Workers = flags.workers
	}
	if flags.retries >= 0 {
		cfg.Pool.RetryLimit = flags.retries
	}
	if flags.delayMs >= 0 {
		cfg.Pool.ThrottleDelayMs = flags.delayMs
	}
	if flags.proxy != "" {
		cfg.Fetch.Proxy = flags.proxy
	}
	if cmd.Flags().Changed("serve") {
		cfg.Server.Enabled = flags.serve
	}
	if flags.port > 0 {
		cfg.Server.Port = flags.port
	}
}

// buildCheckpoint selects the ledger backend from config.
func buildCheckpoint(ctx context.Context, cfg config.Config) (driver.Checkpoint, func(), error) {
	switch cfg.Ledger.Backend {
	case "file":
		l, err := ledger.NewFileLedger(cfg.Ledger.Path)
		if err != nil {
			return nil, nil, err
		}
		return l, func() {}, nil
	case "postgres":
		l, err := postgres.New(ctx, postgres.Config{
			DSN:   cfg.Ledger.DSN,
			Table: cfg.Ledger.Table,
		})
		if err != nil {
			return nil, nil, err
		}
		return l, l.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown ledger backend %q", cfg.Ledger.Backend)
	}
}

// watchPauseKey toggles the pause flag whenever the operator types p and
// presses Enter.
func watchPauseKey(ctx context.Context, in io.Reader, state *runstate.Coordinator, logger *zap.Logger) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		if strings.TrimSpace(scanner.Text()) != "p" {
			continue
		}
		if state.TogglePause() {
			logger.Info("run paused, press p+Enter to resume")
		} else {
			logger.Info("run resumed")
		}
	}
}

// promptConfirmer asks the operator on the terminal.
type promptConfirmer struct {
	in  io.Reader
	out io.Writer
}

func (p *promptConfirmer) Resume(signals recovery.Signals) (bool, error) {
	fmt.Fprintln(p.out, "a previous run left a checkpoint behind")
	if signals.OutputExists {
		fmt.Fprintln(p.out, "a partial output exists and will be kept if you resume")
	}
	return p.ask("resume from the checkpoint? [Y/n] ", true)
}

func (p *promptConfirmer) Overwrite(outputPath string) (bool, error) {
	fmt.Fprintf(p.out, "output %s exists but no checkpoint was found\n", outputPath)
	return p.ask("overwrite it? [y/N] ", false)
}

func (p *promptConfirmer) ask(prompt string, def bool) (bool, error) {
	fmt.Fprint(p.out, prompt)
	reader := bufio.NewReader(p.in)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return false, fmt.Errorf("read confirmation: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "":
		return def, nil
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
