package sinks

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/linkmill/linkmill/internal/progress"
)

func linkDone(done, failed, total int, outcome progress.Outcome) progress.Event {
	return progress.Event{
		TS:       time.Now(),
		Stage:    progress.StageLinkDone,
		URI:      "https://example.com",
		Outcome:  outcome,
		Attempts: 2,
		Done:     done,
		Failed:   failed,
		Total:    total,
		Dur:      120 * time.Millisecond,
	}
}

func TestConsoleSinkRendersDoneTotal(t *testing.T) {
	t.Parallel()

	var sb strings.Builder
	s := NewConsoleSink(&sb)
	ctx := context.Background()

	require.NoError(t, s.Consume(ctx, linkDone(1, 0, 3, progress.OutcomeSucceeded)))
	require.NoError(t, s.Consume(ctx, progress.Event{
		TS: time.Now(), Stage: progress.StageRunDone, Done: 3, Failed: 1, Total: 3,
	}))
	require.NoError(t, s.Close(ctx))

	out := sb.String()
	require.Contains(t, out, "1/3 done (0 failed)")
	require.Contains(t, out, "3/3 done (1 failed)")
}

func TestPrometheusSinkCountsOutcomes(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	s, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Consume(ctx, progress.Event{
		TS: time.Now(), Stage: progress.StageRunStart, Total: 4,
	}))
	require.NoError(t, s.Consume(ctx, linkDone(1, 0, 4, progress.OutcomeSucceeded)))
	require.NoError(t, s.Consume(ctx, linkDone(2, 1, 4, progress.OutcomeFailed)))

	require.InDelta(t, 1, testutil.ToFloat64(s.linksDone.WithLabelValues("succeeded")), 0.0001)
	require.InDelta(t, 1, testutil.ToFloat64(s.linksDone.WithLabelValues("failed")), 0.0001)
	require.InDelta(t, 2, testutil.ToFloat64(s.linksPending), 0.0001)

	require.NoError(t, s.Consume(ctx, progress.Event{
		TS: time.Now(), Stage: progress.StageRunDone, Done: 4, Total: 4,
	}))
	require.InDelta(t, 0, testutil.ToFloat64(s.linksPending), 0.0001)
}

func TestPrometheusSinkDoubleRegisterFails(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}

func TestLogSinkDoesNotError(t *testing.T) {
	t.Parallel()

	s := NewLogSink(zap.NewNop())
	require.NoError(t, s.Consume(context.Background(), linkDone(1, 0, 1, progress.OutcomeSucceeded)))
	require.NoError(t, s.Close(context.Background()))
}
