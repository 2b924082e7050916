package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/linkmill/linkmill/internal/progress"
)

// PrometheusSink exports run progress via Prometheus collectors.
type PrometheusSink struct {
	linksDone    *prometheus.CounterVec
	linksPending prometheus.Gauge
	attempts     prometheus.Histogram
	linkDuration *prometheus.HistogramVec
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		linksDone: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "linkmill_links_done_total",
			Help: "Finished links partitioned by outcome.",
		}, []string{"outcome"}),
		linksPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "linkmill_links_pending",
			Help: "Links not yet finished in the current run.",
		}),
		attempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "linkmill_link_attempts",
			Help:    "Fetch attempts consumed per finished link.",
			Buckets: []float64{1, 2, 3, 4, 5, 8, 13},
		}),
		linkDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "linkmill_link_duration_seconds",
			Help:    "Wall time per finished link partitioned by outcome.",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"outcome"}),
	}
	for _, collector := range []prometheus.Collector{
		s.linksDone,
		s.linksPending,
		s.attempts,
		s.linkDuration,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from one event.
func (s *PrometheusSink) Consume(_ context.Context, evt progress.Event) error {
	switch evt.Stage {
	case progress.StageRunStart:
		s.linksPending.Set(float64(evt.Total))
	case progress.StageLinkDone:
		s.linksDone.WithLabelValues(string(evt.Outcome)).Inc()
		s.linksPending.Set(float64(evt.Total - evt.Done))
		if evt.Attempts > 0 {
			s.attempts.Observe(float64(evt.Attempts))
		}
		if evt.Dur > 0 {
			s.linkDuration.WithLabelValues(string(evt.Outcome)).Observe(evt.Dur.Seconds())
		}
	case progress.StageRunDone:
		s.linksPending.Set(0)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
