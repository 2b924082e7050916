// Package ledger implements the durable checkpoint of completed links and
// the failed-link sink as line-oriented files.
//
// Every append opens the file with O_APPEND, writes one line in a single
// Write call and closes it again. POSIX append semantics make each line
// atomic with respect to concurrent appenders, so the files never carry
// torn or interleaved entries.
package ledger

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/linkmill/linkmill/internal/pipeline"
)

// FileLedger is the file-backed pipeline.Ledger.
type FileLedger struct {
	path string
}

// NewFileLedger creates a ledger at path. The file is created lazily on
// the first append so a fresh run leaves no empty ledger behind.
func NewFileLedger(path string) (*FileLedger, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("ledger path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}
	return &FileLedger{path: path}, nil
}

// Path returns the backing file location.
func (l *FileLedger) Path() string {
	return l.path
}

// Load reads the ledger into a set of completed URIs. A missing file is an
// empty ledger, not an error. Duplicate lines collapse into the set.
func (l *FileLedger) Load(ctx context.Context) (map[string]struct{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("ledger load canceled: %w", err)
	}
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]struct{}{}, nil
		}
		return nil, fmt.Errorf("open ledger %s: %w", l.path, err)
	}
	defer f.Close()

	completed := make(map[string]struct{})
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		completed[line] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read ledger %s: %w", l.path, err)
	}
	return completed, nil
}

// Append records one completed link. Errors are fatal to the run: a ledger
// the pipeline cannot write to makes the checkpoint worthless.
func (l *FileLedger) Append(ctx context.Context, link pipeline.Link) error {
	return appendLine(ctx, l.path, link.URI)
}

// Discard removes the ledger file. Called after the merge completes a run
// or after explicit operator confirmation; a missing file is fine.
func (l *FileLedger) Discard(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("ledger discard canceled: %w", err)
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("discard ledger %s: %w", l.path, err)
	}
	return nil
}

// Exists reports whether a ledger file from a previous run is present.
func (l *FileLedger) Exists(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("ledger probe canceled: %w", err)
	}
	info, err := os.Stat(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat ledger %s: %w", l.path, err)
	}
	return !info.IsDir(), nil
}

// FailedFile collects the links whose retries were exhausted this run.
type FailedFile struct {
	path string
}

// NewFailedFile truncates any failed list left over from a previous run
// and returns the sink. The failed file is per-run by contract.
func NewFailedFile(path string) (*FailedFile, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("failed-file path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create failed-file dir: %w", err)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("truncate failed file %s: %w", path, err)
	}
	return &FailedFile{path: path}, nil
}

// Path returns the backing file location.
func (f *FailedFile) Path() string {
	return f.path
}

// Append records one exhausted link.
func (f *FailedFile) Append(ctx context.Context, link pipeline.Link) error {
	return appendLine(ctx, f.path, link.URI)
}

func appendLine(ctx context.Context, path, line string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("append canceled: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open %s for append: %w", path, err)
	}
	// One Write call per line so concurrent appends cannot interleave.
	_, werr := f.Write([]byte(line + "\n"))
	cerr := f.Close()
	if werr != nil {
		return fmt.Errorf("append to %s: %w", path, werr)
	}
	if cerr != nil {
		return fmt.Errorf("close %s after append: %w", path, cerr)
	}
	return nil
}
