package sinks

import (
	"context"
	"fmt"
	"io"

	"github.com/linkmill/linkmill/internal/progress"
)

// ConsoleSink renders a one-line done/total indicator for the operator
// running the pipeline interactively.
type ConsoleSink struct {
	out io.Writer
}

// NewConsoleSink writes progress lines to out (normally os.Stderr).
func NewConsoleSink(out io.Writer) *ConsoleSink {
	return &ConsoleSink{out: out}
}

// Consume prints link completions and the final summary line.
func (s *ConsoleSink) Consume(_ context.Context, evt progress.Event) error {
	switch evt.Stage {
	case progress.StageLinkDone:
		_, err := fmt.Fprintf(s.out, "\r%d/%d done (%d failed)", evt.Done, evt.Total, evt.Failed)
		return err
	case progress.StageRunDone:
		_, err := fmt.Fprintf(s.out, "\r%d/%d done (%d failed)\n", evt.Done, evt.Total, evt.Failed)
		return err
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *ConsoleSink) Close(context.Context) error {
	return nil
}
