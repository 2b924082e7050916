package ledger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/linkmill/linkmill/internal/pipeline"
)

func TestFileLedgerLoadMissingFile(t *testing.T) {
	t.Parallel()

	l, err := NewFileLedger(filepath.Join(t.TempDir(), "completed.txt"))
	require.NoError(t, err)
	exists, err := l.Exists(context.Background())
	require.NoError(t, err)
	require.False(t, exists)

	completed, err := l.Load(context.Background())
	require.NoError(t, err)
	require.Empty(t, completed)
}

func TestFileLedgerAppendAndLoad(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	l, err := NewFileLedger(filepath.Join(t.TempDir(), "completed.txt"))
	require.NoError(t, err)

	require.NoError(t, l.Append(ctx, pipeline.Link{URI: "https://a"}))
	require.NoError(t, l.Append(ctx, pipeline.Link{URI: "https://b"}))
	require.NoError(t, l.Append(ctx, pipeline.Link{URI: "https://a"}))
	exists, err := l.Exists(ctx)
	require.NoError(t, err)
	require.True(t, exists)

	completed, err := l.Load(ctx)
	require.NoError(t, err)
	require.Len(t, completed, 2)
	require.Contains(t, completed, "https://a")
	require.Contains(t, completed, "https://b")
}

func TestFileLedgerDiscard(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	l, err := NewFileLedger(filepath.Join(t.TempDir(), "completed.txt"))
	require.NoError(t, err)
	require.NoError(t, l.Append(ctx, pipeline.Link{URI: "https://a"}))

	require.NoError(t, l.Discard(ctx))
	exists, err := l.Exists(ctx)
	require.NoError(t, err)
	require.False(t, exists)
	// Discarding an absent ledger is a no-op.
	require.NoError(t, l.Discard(ctx))
}

// N workers each append 1000 lines concurrently; the file must end up with
// exactly N*1000 well-formed lines.
func TestFileLedgerConcurrentAppends(t *testing.T) {
	t.Parallel()

	const workers = 8
	const perWorker = 1000

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "completed.txt")
	l, err := NewFileLedger(path)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				uri := fmt.Sprintf("https://example.com/%d/%d", w, i)
				if err := l.Append(ctx, pipeline.Link{URI: uri}); err != nil {
					t.Errorf("append: %v", err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Len(t, lines, workers*perWorker)
	for _, line := range lines {
		require.True(t, strings.HasPrefix(line, "https://example.com/"), "torn line: %q", line)
	}

	completed, err := l.Load(ctx)
	require.NoError(t, err)
	require.Len(t, completed, workers*perWorker)
}

func TestFailedFileTruncatesPreviousRun(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "failed.txt")
	require.NoError(t, os.WriteFile(path, []byte("https://stale\n"), 0o600))

	f, err := NewFailedFile(path)
	require.NoError(t, err)
	require.NoError(t, f.Append(ctx, pipeline.Link{URI: "https://fresh"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "https://fresh\n", string(data))
}

func TestNewFileLedgerRequiresPath(t *testing.T) {
	t.Parallel()

	_, err := NewFileLedger("  ")
	require.Error(t, err)
	_, err = NewFailedFile("")
	require.Error(t, err)
}
