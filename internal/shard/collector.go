package shard

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/linkmill/linkmill/internal/pipeline"
)

// Collector merges every shard in a store directory into one final CSV and
// then removes the directory.
//
// Schema policy: the first shard merged fixes the output header; later
// shards are projected onto it by column name, with missing columns left
// blank and extra columns dropped. Callers that need lossless output must
// keep the schema stable across a run.
//
// Duplicate policy: rows are de-duplicated per link across shards. The
// first shard that claims a link owns its rows; a later shard's rows for
// the same link are skipped. This closes the window where a discarded
// ledger plus surviving shards would re-fetch a link and double its
// records in the merge. Rows within a single shard are never dropped.
type Collector struct {
	dir    string
	out    string
	logger *zap.Logger
}

// NewCollector builds a Collector over the shard dir writing to out.
func NewCollector(dir, out string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{dir: dir, out: out, logger: logger}
}

// Collect performs the merge. With no shard directory present it is a
// no-op that leaves any existing output untouched. A read failure on any
// single shard aborts the whole merge and leaves the store intact for
// inspection.
func (c *Collector) Collect(ctx context.Context) error {
	if !Exists(c.dir) {
		c.logger.Debug("no shard store present, nothing to collect", zap.String("dir", c.dir))
		return nil
	}
	paths, err := c.shardPaths()
	if err != nil {
		return pipeline.Fatal("shard", err)
	}
	if len(paths) == 0 {
		if err := os.RemoveAll(c.dir); err != nil {
			return pipeline.Fatal("shard", fmt.Errorf("remove empty shard dir %s: %w", c.dir, err))
		}
		return nil
	}

	var (
		header  []string
		merged  [][]string
		claimed = make(map[string]string)
	)
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("collect canceled: %w", err)
		}
		records, err := readShard(path)
		if err != nil {
			return pipeline.Fatal("shard", err)
		}
		if len(records) == 0 {
			c.logger.Warn("skipping empty shard", zap.String("path", path))
			continue
		}
		if header == nil {
			header = records[0]
		}
		rows := projectRows(header, records[0], records[1:])
		merged = append(merged, dedupeByLink(header, records[0], records[1:], rows, path, claimed, c.logger)...)
	}

	if header == nil {
		// Only empty shards; treat like an empty store.
		if err := os.RemoveAll(c.dir); err != nil {
			return pipeline.Fatal("shard", fmt.Errorf("remove shard dir %s: %w", c.dir, err))
		}
		return nil
	}
	if err := c.writeOutput(header, merged); err != nil {
		return pipeline.Fatal("shard", err)
	}
	if err := os.RemoveAll(c.dir); err != nil {
		return pipeline.Fatal("shard", fmt.Errorf("remove shard dir %s: %w", c.dir, err))
	}
	c.logger.Info("shards collected",
		zap.Int("shards", len(paths)),
		zap.Int("rows", len(merged)),
		zap.String("output", c.out),
	)
	return nil
}

func (c *Collector) shardPaths() ([]string, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, fmt.Errorf("read shard dir %s: %w", c.dir, err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".csv" {
			continue
		}
		paths = append(paths, filepath.Join(c.dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

func readShard(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open shard %s: %w", path, err)
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read shard %s: %w", path, err)
	}
	return records, nil
}

// projectRows maps shard rows onto the output header by column name.
func projectRows(header, shardHeader []string, rows [][]string) [][]string {
	colIdx := make(map[string]int, len(shardHeader))
	for i, name := range shardHeader {
		colIdx[name] = i
	}
	out := make([][]string, 0, len(rows))
	for _, row := range rows {
		projected := make([]string, len(header))
		for i, name := range header {
			if j, ok := colIdx[name]; ok && j < len(row) {
				projected[i] = row[j]
			}
		}
		out = append(out, projected)
	}
	return out
}

// dedupeByLink drops projected rows whose link was already claimed by an
// earlier shard. Shards lacking a link column contribute all their rows.
func dedupeByLink(
	header, shardHeader []string,
	rawRows, projected [][]string,
	shardPath string,
	claimed map[string]string,
	logger *zap.Logger,
) [][]string {
	linkIdx := -1
	for i, name := range shardHeader {
		if name == LinkColumn {
			linkIdx = i
			break
		}
	}
	if linkIdx < 0 {
		return projected
	}
	out := make([][]string, 0, len(projected))
	skipped := 0
	for i, row := range projected {
		link := ""
		if linkIdx < len(rawRows[i]) {
			link = rawRows[i][linkIdx]
		}
		if link != "" {
			owner, ok := claimed[link]
			if ok && owner != shardPath {
				skipped++
				continue
			}
			claimed[link] = shardPath
		}
		out = append(out, row)
	}
	if skipped > 0 {
		logger.Warn("dropped duplicate rows for already-claimed links",
			zap.String("shard", shardPath),
			zap.Int("rows", skipped),
		)
	}
	return out
}

func (c *Collector) writeOutput(header []string, rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(c.out), 0o750); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(c.out), ".merge-*")
	if err != nil {
		return fmt.Errorf("create merge temp file: %w", err)
	}
	tmpName := tmp.Name()
	w := csv.NewWriter(tmp)
	writeErr := w.Write(header)
	for _, row := range rows {
		if writeErr != nil {
			break
		}
		writeErr = w.Write(row)
	}
	if writeErr == nil {
		w.Flush()
		writeErr = w.Error()
	}
	if closeErr := tmp.Close(); writeErr == nil {
		writeErr = closeErr
	}
	if writeErr != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write merged output: %w", writeErr)
	}
	if err := os.Rename(tmpName, c.out); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("finalize output %s: %w", c.out, err)
	}
	return nil
}
