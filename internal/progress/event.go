// Package progress defines the event stream emitted while a run advances.
package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the milestone an Event represents.
type Stage string

// Supported progress stages.
const (
	StageRunStart Stage = "RUN_START"
	StageLinkDone Stage = "LINK_DONE"
	StageRunDone  Stage = "RUN_DONE"
)

// Outcome classifies a finished link.
type Outcome string

// Link outcomes.
const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
)

// Event captures one step of run progress. Done/Failed/Total carry the
// coordinator snapshot taken after the link was accounted for, so any sink
// can render "done/total" without holding the run lock.
type Event struct {
	TS       time.Time
	Stage    Stage
	URI      string
	Outcome  Outcome
	Attempts int
	Done     int
	Failed   int
	Total    int
	Dur      time.Duration
	Err      string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone:
	case StageLinkDone:
		if e.URI == "" {
			return errors.New("link done requires uri")
		}
		if e.Outcome != OutcomeSucceeded && e.Outcome != OutcomeFailed {
			return fmt.Errorf("unknown outcome %q", e.Outcome)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Done < 0 || e.Failed < 0 || e.Total < 0 {
		return errors.New("counts must be >= 0")
	}
	return nil
}
