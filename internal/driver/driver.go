// Package driver orchestrates one pipeline run: recovery classification,
// checkpoint filtering, the worker pool, the shard merge and the final
// summary.
package driver

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/linkmill/linkmill/internal/pipeline"
	"github.com/linkmill/linkmill/internal/pool"
	"github.com/linkmill/linkmill/internal/progress"
	"github.com/linkmill/linkmill/internal/recovery"
	"github.com/linkmill/linkmill/internal/runstate"
	"github.com/linkmill/linkmill/internal/shard"
)

// ErrAborted is returned when the operator declines to overwrite a stale
// output.
var ErrAborted = errors.New("run aborted by operator")

// Checkpoint is the ledger surface the driver needs beyond appending:
// resume probing and post-merge cleanup.
type Checkpoint interface {
	pipeline.Ledger
	Exists(ctx context.Context) (bool, error)
	Discard(ctx context.Context) error
}

// Confirmer resolves the prompts recovery classification raises. The CLI
// wires a terminal prompt here; tests and unattended runs use
// AutoConfirmer.
type Confirmer interface {
	// Resume reports whether to resume from the surviving checkpoint
	// (true) or discard it and every other leftover (false).
	Resume(signals recovery.Signals) (bool, error)
	// Overwrite reports whether a final output from an unrelated completed
	// run may be overwritten.
	Overwrite(outputPath string) (bool, error)
}

// AutoConfirmer resumes crashes and overwrites stale outputs without
// asking.
type AutoConfirmer struct{}

func (AutoConfirmer) Resume(recovery.Signals) (bool, error) { return true, nil }
func (AutoConfirmer) Overwrite(string) (bool, error)        { return true, nil }

// Options collects the collaborators for one run.
type Options struct {
	Links      []pipeline.Link
	Checkpoint Checkpoint
	Failed     pipeline.FailedSink
	Store      *shard.Store
	Collector  *shard.Collector
	Extractor  pipeline.Extractor
	OutputPath string
	Pool       pool.Config
	Hub        progress.Config
	Sinks      []progress.Sink
	Confirm    Confirmer
	Clock      pipeline.Clock
	Logger     *zap.Logger
	// OnStart runs once the coordinator exists, before the pool starts.
	// The CLI hooks the status server and the pause key here.
	OnStart func(state *runstate.Coordinator)
}

// Driver runs the pipeline end to end.
type Driver struct {
	opts Options
}

// New validates the options and returns a Driver.
func New(opts Options) (*Driver, error) {
	switch {
	case opts.Checkpoint == nil:
		return nil, fmt.Errorf("driver: checkpoint ledger is required")
	case opts.Failed == nil:
		return nil, fmt.Errorf("driver: failed sink is required")
	case opts.Store == nil:
		return nil, fmt.Errorf("driver: shard store is required")
	case opts.Collector == nil:
		return nil, fmt.Errorf("driver: shard collector is required")
	case opts.Extractor == nil:
		return nil, fmt.Errorf("driver: extractor is required")
	case opts.Clock == nil:
		return nil, fmt.Errorf("driver: clock is required")
	case opts.OutputPath == "":
		return nil, fmt.Errorf("driver: output path is required")
	}
	if opts.Confirm == nil {
		opts.Confirm = AutoConfirmer{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Driver{opts: opts}, nil
}

// Run executes a full fetch-and-merge run and reports the summary. The
// summary is valid even when an error is returned.
func (d *Driver) Run(ctx context.Context) (pipeline.RunSummary, error) {
	start := d.opts.Clock.Now()
	summary := pipeline.RunSummary{}

	links := pipeline.Dedupe(d.opts.Links)
	if dropped := len(d.opts.Links) - len(links); dropped > 0 {
		d.opts.Logger.Info("collapsed duplicate input links", zap.Int("dropped", dropped))
	}

	resumed, err := d.prepare(ctx)
	if err != nil {
		return summary, err
	}

	completed := map[string]struct{}{}
	if resumed {
		completed, err = d.opts.Checkpoint.Load(ctx)
		if err != nil {
			return summary, pipeline.Fatal("ledger", err)
		}
	}
	remaining := pipeline.Remaining(links, completed)
	if skipped := len(links) - len(remaining); skipped > 0 {
		d.opts.Logger.Info("skipping links already in the checkpoint",
			zap.Int("skipped", skipped),
			zap.Int("remaining", len(remaining)),
		)
	}

	state := runstate.New(len(remaining))
	if d.opts.OnStart != nil {
		d.opts.OnStart(state)
	}

	hub := progress.NewHub(d.opts.Hub, d.opts.Sinks...)
	hub.Emit(progress.Event{
		TS:    d.opts.Clock.Now(),
		Stage: progress.StageRunStart,
		Total: len(remaining),
	})

	p := pool.New(
		d.opts.Extractor,
		d.opts.Store,
		d.opts.Checkpoint,
		d.opts.Failed,
		state,
		hub,
		d.opts.Clock,
		d.opts.Pool,
		d.opts.Logger,
	)
	runErr := p.Run(ctx, remaining)
	interrupted := ctx.Err() != nil

	snap := state.Snapshot()
	hub.Emit(progress.Event{
		TS:     d.opts.Clock.Now(),
		Stage:  progress.StageRunDone,
		Done:   snap.Done,
		Failed: snap.Failed,
		Total:  snap.Total,
	})
	if err := hub.Close(context.Background()); err != nil {
		d.opts.Logger.Warn("progress hub close failed", zap.Error(err))
	}

	summary = pipeline.RunSummary{
		Succeeded: snap.Succeeded(),
		Failed:    snap.Failed,
		Elapsed:   d.opts.Clock.Now().Sub(start),
	}

	// An interrupted or aborted run keeps its ledger and shards so the next
	// invocation resumes instead of starting over. A shard-store failure
	// additionally skips the merge: the store is left as-is for inspection.
	if interrupted {
		return summary, fmt.Errorf("run interrupted: %w", ctx.Err())
	}
	if runErr != nil {
		if !isShardFatal(runErr) {
			if err := d.collect(ctx); err != nil {
				d.opts.Logger.Warn("merge after aborted run failed", zap.Error(err))
			}
		}
		return summary, runErr
	}

	if err := d.collect(ctx); err != nil {
		return summary, err
	}
	if err := d.opts.Checkpoint.Discard(ctx); err != nil {
		return summary, pipeline.Fatal("ledger", err)
	}
	return summary, nil
}

// CollectOnly merges leftover shards without fetching anything, then
// clears the checkpoint the way a completed run would.
func (d *Driver) CollectOnly(ctx context.Context) error {
	if err := d.collect(ctx); err != nil {
		return err
	}
	if err := d.opts.Checkpoint.Discard(ctx); err != nil {
		return pipeline.Fatal("ledger", err)
	}
	return nil
}

// prepare classifies prior-run leftovers and reports whether this run
// resumes from the checkpoint.
func (d *Driver) prepare(ctx context.Context) (bool, error) {
	ledgerExists, err := d.opts.Checkpoint.Exists(ctx)
	if err != nil {
		return false, pipeline.Fatal("ledger", err)
	}
	signals := recovery.Signals{
		LedgerExists: ledgerExists,
		OutputExists: fileExists(d.opts.OutputPath),
		ShardsExist:  shard.Exists(d.opts.Store.Dir()),
	}

	switch state := recovery.Classify(signals); state {
	case recovery.Clean:
		return false, nil

	case recovery.ResumableCrash:
		resume, err := d.opts.Confirm.Resume(signals)
		if err != nil {
			return false, fmt.Errorf("confirm resume: %w", err)
		}
		if !resume {
			d.opts.Logger.Info("discarding previous run state")
			if err := d.opts.Checkpoint.Discard(ctx); err != nil {
				return false, pipeline.Fatal("ledger", err)
			}
			if err := d.removeLeftovers(signals); err != nil {
				return false, err
			}
			return false, nil
		}
		d.opts.Logger.Info("resuming from checkpoint")
		if signals.OutputExists {
			// A partial output is a merge of earlier shards. Fold it back
			// into the store so this run's merge keeps its rows.
			adopted, err := d.opts.Store.Adopt(d.opts.OutputPath)
			if err != nil {
				return false, pipeline.Fatal("shard", err)
			}
			d.opts.Logger.Info("adopted partial output as shard", zap.String("shard", adopted))
		}
		return true, nil

	case recovery.StaleOutput:
		overwrite, err := d.opts.Confirm.Overwrite(d.opts.OutputPath)
		if err != nil {
			return false, fmt.Errorf("confirm overwrite: %w", err)
		}
		if !overwrite {
			return false, ErrAborted
		}
		if err := os.Remove(d.opts.OutputPath); err != nil {
			return false, pipeline.Fatal("shard", fmt.Errorf("remove stale output %s: %w", d.opts.OutputPath, err))
		}
		return false, nil

	default:
		return false, fmt.Errorf("unhandled recovery state %s", state)
	}
}

func (d *Driver) removeLeftovers(signals recovery.Signals) error {
	if signals.OutputExists {
		if err := os.Remove(d.opts.OutputPath); err != nil && !os.IsNotExist(err) {
			return pipeline.Fatal("shard", fmt.Errorf("remove partial output: %w", err))
		}
	}
	if signals.ShardsExist {
		if err := os.RemoveAll(d.opts.Store.Dir()); err != nil {
			return pipeline.Fatal("shard", fmt.Errorf("remove shard dir: %w", err))
		}
		// Recreate the directory the store was built over.
		if err := os.MkdirAll(d.opts.Store.Dir(), 0o750); err != nil {
			return pipeline.Fatal("shard", fmt.Errorf("recreate shard dir: %w", err))
		}
	}
	return nil
}

func (d *Driver) collect(ctx context.Context) error {
	if err := d.opts.Collector.Collect(ctx); err != nil {
		return fmt.Errorf("collect shards: %w", err)
	}
	return nil
}

func isShardFatal(err error) bool {
	var fe *pipeline.ErrFatal
	return errors.As(err, &fe) && fe.Op == "shard"
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
