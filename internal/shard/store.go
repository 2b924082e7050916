// Package shard implements the write-many/merge-once result store: one
// small CSV file per successful fetch, merged into the final output by the
// Collector.
package shard

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/linkmill/linkmill/internal/pipeline"
)

// LinkColumn carries the source link in every shard row so the Collector
// can de-duplicate records per link across shards.
const LinkColumn = "source_url"

// Store writes shards into a dedicated directory. Each shard is uniquely
// named by the ID generator so concurrent workers never collide.
type Store struct {
	dir string
	ids pipeline.IDGenerator
}

// NewStore creates the shard directory if needed.
func NewStore(dir string, ids pipeline.IDGenerator) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("shard directory is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create shard dir %s: %w", dir, err)
	}
	return &Store{dir: dir, ids: ids}, nil
}

// Dir returns the shard directory path.
func (s *Store) Dir() string {
	return s.dir
}

// Write persists one RecordSet as a new shard and returns its path. The
// file is written in a single WriteFile call and never touched again.
func (s *Store) Write(ctx context.Context, rs pipeline.RecordSet) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("shard write canceled: %w", err)
	}
	if err := rs.Validate(); err != nil {
		return "", fmt.Errorf("invalid record set for %s: %w", rs.Link.URI, err)
	}
	id, err := s.ids.NewID()
	if err != nil {
		return "", fmt.Errorf("name shard: %w", err)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	header := append([]string{LinkColumn}, rs.Columns...)
	if err := w.Write(header); err != nil {
		return "", fmt.Errorf("encode shard header: %w", err)
	}
	for _, row := range rs.Rows {
		if err := w.Write(append([]string{rs.Link.URI}, row...)); err != nil {
			return "", fmt.Errorf("encode shard row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("flush shard: %w", err)
	}

	path := filepath.Join(s.dir, id+".csv")
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		return "", fmt.Errorf("write shard %s: %w", path, err)
	}
	return path, nil
}

// Adopt moves an existing CSV file (a partial final output from a crashed
// run) into the store so the next merge picks it up like any shard.
func (s *Store) Adopt(path string) (string, error) {
	id, err := s.ids.NewID()
	if err != nil {
		return "", fmt.Errorf("name adopted shard: %w", err)
	}
	dest := filepath.Join(s.dir, "recovered-"+id+".csv")
	if err := os.Rename(path, dest); err != nil {
		return "", fmt.Errorf("adopt %s into shard store: %w", path, err)
	}
	return dest, nil
}

// Exists reports whether dir currently holds a shard store.
func Exists(dir string) bool {
	info, err := os.Stat(dir)
	return err == nil && info.IsDir()
}
