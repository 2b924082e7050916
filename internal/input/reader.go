// Package input reads the link list the pipeline will process.
package input

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/linkmill/linkmill/internal/pipeline"
)

// Load reads links from path. CSV files use the first column as the URI
// and an optional second column as the correlation ID; anything else is
// treated as plain text, one URI per line, with # comments. Duplicates are
// kept; the driver collapses them.
func Load(path string) ([]pipeline.Link, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input %s: %w", path, err)
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".csv") {
		return readCSV(f, path)
	}
	return readLines(f, path)
}

func readLines(r io.Reader, path string) ([]pipeline.Link, error) {
	var links []pipeline.Link
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		links = append(links, pipeline.Link{URI: line})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read input %s: %w", path, err)
	}
	return links, nil
}

func readCSV(r io.Reader, path string) ([]pipeline.Link, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read input csv %s: %w", path, err)
	}
	var links []pipeline.Link
	for i, rec := range records {
		if len(rec) == 0 {
			continue
		}
		uri := strings.TrimSpace(rec[0])
		if uri == "" {
			continue
		}
		// Tolerate a header row naming the columns.
		if i == 0 && !strings.Contains(uri, "://") {
			continue
		}
		link := pipeline.Link{URI: uri}
		if len(rec) > 1 {
			link.ID = strings.TrimSpace(rec[1])
		}
		links = append(links, link)
	}
	return links, nil
}
