// Package pipeline defines the domain types and collaborator contracts for
// the batch-fetch pipeline.
package pipeline

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Link is one unit of work: a URI to fetch plus an optional correlation ID
// carried through from the input list. Immutable once read.
type Link struct {
	URI string
	ID  string
}

// Validate rejects links the pool cannot work with.
func (l Link) Validate() error {
	if strings.TrimSpace(l.URI) == "" {
		return errors.New("link uri is required")
	}
	return nil
}

// RecordSet holds the flat records extracted from one successful fetch.
// Columns fixes the field order; every row must have len(Columns) cells.
type RecordSet struct {
	Link    Link
	Columns []string
	Rows    [][]string
}

// Validate checks the rectangular shape of the set.
func (rs RecordSet) Validate() error {
	if len(rs.Columns) == 0 {
		return errors.New("record set has no columns")
	}
	for i, row := range rs.Rows {
		if len(row) != len(rs.Columns) {
			return fmt.Errorf("row %d has %d cells, want %d", i, len(row), len(rs.Columns))
		}
	}
	return nil
}

// RunSummary is reported to the operator when a run finishes.
type RunSummary struct {
	Succeeded int
	Failed    int
	Elapsed   time.Duration
}

// ErrFatal wraps errors that must abort the run (ledger or shard I/O).
// Transient fetch errors are never wrapped with it.
type ErrFatal struct {
	Op  string
	Err error
}

func (e *ErrFatal) Error() string {
	return fmt.Sprintf("fatal %s error: %v", e.Op, e.Err)
}

func (e *ErrFatal) Unwrap() error {
	return e.Err
}

// Fatal marks err as run-aborting.
func Fatal(op string, err error) error {
	if err == nil {
		return nil
	}
	return &ErrFatal{Op: op, Err: err}
}

// IsFatal reports whether err carries an ErrFatal anywhere in its chain.
func IsFatal(err error) bool {
	var fe *ErrFatal
	return errors.As(err, &fe)
}

// Dedupe collapses duplicate URIs preserving first-seen order. Input lists
// are allowed to repeat links; the pool must see each URI once.
func Dedupe(links []Link) []Link {
	seen := make(map[string]struct{}, len(links))
	out := make([]Link, 0, len(links))
	for _, l := range links {
		if _, ok := seen[l.URI]; ok {
			continue
		}
		seen[l.URI] = struct{}{}
		out = append(out, l)
	}
	return out
}

// Remaining returns the links not present in the completed set.
func Remaining(links []Link, completed map[string]struct{}) []Link {
	out := make([]Link, 0, len(links))
	for _, l := range links {
		if _, ok := completed[l.URI]; ok {
			continue
		}
		out = append(out, l)
	}
	return out
}
