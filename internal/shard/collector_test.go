package shard

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/linkmill/linkmill/internal/pipeline"
)

func writeRawShard(t *testing.T, dir, name, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o750))
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return records
}

// Merging {A: {x,y}, B: {x,z}} with A first yields {x,y} rows for both,
// y blank for B and z dropped.
func TestCollectorSchemaProjection(t *testing.T) {
	t.Parallel()

	tmp := t.TempDir()
	dir := filepath.Join(tmp, "shards")
	out := filepath.Join(tmp, "out.csv")
	writeRawShard(t, dir, "a.csv", "source_url,x,y\nhttps://a,1,2\n")
	writeRawShard(t, dir, "b.csv", "source_url,x,z\nhttps://b,3,9\n")

	c := NewCollector(dir, out, nil)
	require.NoError(t, c.Collect(context.Background()))

	require.Equal(t, [][]string{
		{"source_url", "x", "y"},
		{"https://a", "1", "2"},
		{"https://b", "3", ""},
	}, readCSV(t, out))
	require.False(t, Exists(dir))
}

// Collect-only recovery: three pre-existing shards and no output produce
// the union of their records and remove the store.
func TestCollectorCollectOnlyThreeShards(t *testing.T) {
	t.Parallel()

	tmp := t.TempDir()
	dir := filepath.Join(tmp, "shards")
	out := filepath.Join(tmp, "out.csv")
	writeRawShard(t, dir, "s1.csv", "source_url,v\nhttps://a,1\n")
	writeRawShard(t, dir, "s2.csv", "source_url,v\nhttps://b,2\nhttps://b,22\n")
	writeRawShard(t, dir, "s3.csv", "source_url,v\nhttps://c,3\n")

	require.NoError(t, NewCollector(dir, out, nil).Collect(context.Background()))

	records := readCSV(t, out)
	require.Len(t, records, 5)
	require.Equal(t, []string{"source_url", "v"}, records[0])
	require.False(t, Exists(dir))
}

// Running the collector again once the store is gone must not corrupt the
// existing output.
func TestCollectorIdempotentAfterMerge(t *testing.T) {
	t.Parallel()

	tmp := t.TempDir()
	dir := filepath.Join(tmp, "shards")
	out := filepath.Join(tmp, "out.csv")
	writeRawShard(t, dir, "a.csv", "source_url,x\nhttps://a,1\n")

	c := NewCollector(dir, out, nil)
	require.NoError(t, c.Collect(context.Background()))
	first := readCSV(t, out)

	require.NoError(t, c.Collect(context.Background()))
	require.Equal(t, first, readCSV(t, out))
}

func TestCollectorEmptyStoreIsRemoved(t *testing.T) {
	t.Parallel()

	tmp := t.TempDir()
	dir := filepath.Join(tmp, "shards")
	require.NoError(t, os.MkdirAll(dir, 0o750))
	out := filepath.Join(tmp, "out.csv")

	require.NoError(t, NewCollector(dir, out, nil).Collect(context.Background()))
	require.False(t, Exists(dir))
	require.NoFileExists(t, out)
}

// A link claimed by an earlier shard loses its rows in later shards; rows
// within one shard are kept even when they repeat the link.
func TestCollectorDeduplicatesAcrossShards(t *testing.T) {
	t.Parallel()

	tmp := t.TempDir()
	dir := filepath.Join(tmp, "shards")
	out := filepath.Join(tmp, "out.csv")
	writeRawShard(t, dir, "a.csv", "source_url,x\nhttps://dup,1\nhttps://dup,2\n")
	writeRawShard(t, dir, "b.csv", "source_url,x\nhttps://dup,99\nhttps://other,3\n")

	require.NoError(t, NewCollector(dir, out, nil).Collect(context.Background()))

	require.Equal(t, [][]string{
		{"source_url", "x"},
		{"https://dup", "1"},
		{"https://dup", "2"},
		{"https://other", "3"},
	}, readCSV(t, out))
}

// One unreadable shard aborts the merge and leaves the store for manual
// inspection.
func TestCollectorAbortsOnShardReadFailure(t *testing.T) {
	t.Parallel()

	tmp := t.TempDir()
	dir := filepath.Join(tmp, "shards")
	out := filepath.Join(tmp, "out.csv")
	writeRawShard(t, dir, "good.csv", "source_url,x\nhttps://a,1\n")
	writeRawShard(t, dir, "torn.csv", "source_url,x\n\"unterminated,1\n")

	err := NewCollector(dir, out, nil).Collect(context.Background())
	require.Error(t, err)
	require.True(t, pipeline.IsFatal(err))
	require.True(t, Exists(dir))
	require.NoFileExists(t, out)
}
