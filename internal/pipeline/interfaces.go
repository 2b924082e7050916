package pipeline

import (
	"context"
	"time"
)

// Extractor is the fetch-transform collaborator: one link in, zero or more
// flat records out, or an error. Implementations own the per-fetch timeout.
type Extractor interface {
	Extract(ctx context.Context, link Link) (RecordSet, error)
}

// Ledger is the durable checkpoint of links that have completed
// successfully in any run. Append must be atomic with respect to
// concurrent appenders; entries are never removed during a run.
type Ledger interface {
	Load(ctx context.Context) (map[string]struct{}, error)
	Append(ctx context.Context, link Link) error
}

// FailedSink records links whose retries were exhausted. Write-only during
// a run; read by operators afterward.
type FailedSink interface {
	Append(ctx context.Context, link Link) error
}

// ShardWriter persists one RecordSet as an independently named shard file
// and returns its path. Shards are never mutated after creation.
type ShardWriter interface {
	Write(ctx context.Context, rs RecordSet) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces unique shard and run identifiers.
type IDGenerator interface {
	NewID() (string, error)
}
