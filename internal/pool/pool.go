// Package pool implements the bounded worker pool that drives fetch
// attempts over the link list.
package pool

import (
	"context"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/linkmill/linkmill/internal/pipeline"
	"github.com/linkmill/linkmill/internal/progress"
	"github.com/linkmill/linkmill/internal/runstate"
)

const defaultPausePoll = 100 * time.Millisecond

// Config controls pool behavior.
type Config struct {
	// Workers bounds concurrent fetch attempts; defaults to NumCPU.
	Workers int
	// RetryLimit is the number of retries after the first attempt, so a
	// link is attempted at most RetryLimit+1 times.
	RetryLimit int
	// ThrottleDelay is an optional sleep after each success.
	ThrottleDelay time.Duration
	// PausePoll is how often an idle worker re-checks the pause flag.
	PausePoll time.Duration
}

// Pool executes each link's fetch-transform task exactly once to
// completion. Retries are immediate, with no backoff: acceptable for
// transient network blips, risky against rate-limited APIs.
type Pool struct {
	extractor pipeline.Extractor
	shards    pipeline.ShardWriter
	ledger    pipeline.Ledger
	failed    pipeline.FailedSink
	state     *runstate.Coordinator
	emitter   progress.Emitter
	clock     pipeline.Clock
	cfg       Config
	logger    *zap.Logger

	fatalOnce sync.Once
	fatalMu   sync.Mutex
	fatalErr  error
}

// New constructs a Pool.
func New(
	extractor pipeline.Extractor,
	shards pipeline.ShardWriter,
	ledger pipeline.Ledger,
	failed pipeline.FailedSink,
	state *runstate.Coordinator,
	emitter progress.Emitter,
	clock pipeline.Clock,
	cfg Config,
	logger *zap.Logger,
) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.PausePoll <= 0 {
		cfg.PausePoll = defaultPausePoll
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		extractor: extractor,
		shards:    shards,
		ledger:    ledger,
		failed:    failed,
		state:     state,
		emitter:   emitter,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run drains links through the worker pool and blocks until every worker
// returns. It reports the first fatal ledger/shard error; transient fetch
// failures never surface here.
func (p *Pool) Run(ctx context.Context, links []pipeline.Link) error {
	work := make(chan pipeline.Link)
	var wg sync.WaitGroup
	for i := 0; i < p.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for link := range work {
				if ctx.Err() != nil || p.fatal() != nil {
					continue
				}
				p.processLink(ctx, link)
			}
		}()
	}

feed:
	for _, link := range links {
		select {
		case work <- link:
		case <-ctx.Done():
			break feed
		}
	}
	close(work)
	wg.Wait()
	return p.fatal()
}

// processLink runs the Pending -> Attempting -> {Succeeded, Failed} loop
// for one link.
func (p *Pool) processLink(ctx context.Context, link pipeline.Link) {
	start := p.clock.Now()
	attempts := 0
	succeeded := false
	var (
		rs      pipeline.RecordSet
		lastErr error
	)
	for attempts <= p.cfg.RetryLimit {
		if err := p.waitWhilePaused(ctx); err != nil {
			return
		}
		if p.fatal() != nil {
			return
		}
		attempts++
		rs, lastErr = p.extractor.Extract(ctx, link)
		if lastErr == nil {
			succeeded = true
			break
		}
		p.logger.Warn("fetch attempt failed",
			zap.String("uri", link.URI),
			zap.Int("attempt", attempts),
			zap.Error(lastErr),
		)
		if ctx.Err() != nil {
			// Interrupted, not exhausted: leave the link unaccounted so a
			// resumed run picks it up again.
			return
		}
	}

	if succeeded {
		if _, err := p.shards.Write(ctx, rs); err != nil {
			p.abort(pipeline.Fatal("shard", err))
			return
		}
		if err := p.ledger.Append(ctx, link); err != nil {
			p.abort(pipeline.Fatal("ledger", err))
			return
		}
	}

	p.state.IncrementDone()
	outcome := progress.OutcomeSucceeded
	if !succeeded {
		p.state.IncrementFailed()
		outcome = progress.OutcomeFailed
		if err := p.failed.Append(ctx, link); err != nil {
			p.abort(pipeline.Fatal("ledger", err))
			return
		}
	}
	snap := p.state.Snapshot()
	p.emitter.Emit(progress.Event{
		TS:       p.clock.Now(),
		Stage:    progress.StageLinkDone,
		URI:      link.URI,
		Outcome:  outcome,
		Attempts: attempts,
		Done:     snap.Done,
		Failed:   snap.Failed,
		Total:    snap.Total,
		Dur:      p.clock.Now().Sub(start),
		Err:      errText(lastErr, succeeded),
	})

	if succeeded && p.cfg.ThrottleDelay > 0 {
		p.sleep(ctx, p.cfg.ThrottleDelay)
	}
}

// waitWhilePaused idles between attempts while the run is paused. Pause is
// cooperative: it never interrupts a fetch already in flight.
func (p *Pool) waitWhilePaused(ctx context.Context) error {
	for p.state.IsPaused() {
		if err := p.sleep(ctx, p.cfg.PausePoll); err != nil {
			return err
		}
	}
	return ctx.Err()
}

func (p *Pool) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// abort records the first fatal error; workers drain without processing
// once one is set.
func (p *Pool) abort(err error) {
	p.fatalOnce.Do(func() {
		p.fatalMu.Lock()
		p.fatalErr = err
		p.fatalMu.Unlock()
		p.logger.Error("aborting run", zap.Error(err))
	})
}

func (p *Pool) fatal() error {
	p.fatalMu.Lock()
	defer p.fatalMu.Unlock()
	return p.fatalErr
}

func errText(err error, succeeded bool) string {
	if succeeded || err == nil {
		return ""
	}
	return err.Error()
}
