package fetch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/linkmill/linkmill/internal/pipeline"
)

// parseHTMLTable extracts the first <table> in the document. Header cells
// come from <th> elements when present, otherwise the first row; remaining
// rows become records padded or truncated to the header width.
func parseHTMLTable(link pipeline.Link, body []byte) (pipeline.RecordSet, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return pipeline.RecordSet{}, fmt.Errorf("parse html: %w", err)
	}
	table := doc.Find("table").First()
	if table.Length() == 0 {
		return pipeline.RecordSet{}, fmt.Errorf("no table in response")
	}

	var columns []string
	table.Find("th").Each(func(_ int, th *goquery.Selection) {
		columns = append(columns, cellText(th))
	})

	var rows [][]string
	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.Find("td")
		if cells.Length() == 0 {
			return
		}
		row := make([]string, 0, cells.Length())
		cells.Each(func(_ int, td *goquery.Selection) {
			row = append(row, cellText(td))
		})
		rows = append(rows, row)
	})

	if len(columns) == 0 {
		if len(rows) == 0 {
			return pipeline.RecordSet{}, fmt.Errorf("table has no rows")
		}
		columns = rows[0]
		rows = rows[1:]
	}
	if len(columns) == 0 {
		return pipeline.RecordSet{}, fmt.Errorf("table has no header")
	}

	for i, row := range rows {
		rows[i] = fitRow(row, len(columns))
	}
	return pipeline.RecordSet{Link: link, Columns: columns, Rows: rows}, nil
}

// parseJSON accepts a top-level array of flat objects. The column set is
// the sorted union of keys so one run yields a stable schema.
func parseJSON(link pipeline.Link, body []byte) (pipeline.RecordSet, error) {
	var items []map[string]any
	if err := json.Unmarshal(body, &items); err != nil {
		return pipeline.RecordSet{}, fmt.Errorf("parse json array: %w", err)
	}
	if len(items) == 0 {
		return pipeline.RecordSet{}, fmt.Errorf("json array is empty")
	}

	keySet := make(map[string]struct{})
	for _, item := range items {
		for k := range item {
			keySet[k] = struct{}{}
		}
	}
	columns := make([]string, 0, len(keySet))
	for k := range keySet {
		columns = append(columns, k)
	}
	sort.Strings(columns)

	rows := make([][]string, 0, len(items))
	for _, item := range items {
		row := make([]string, len(columns))
		for i, k := range columns {
			if v, ok := item[k]; ok && v != nil {
				row[i] = scalarText(v)
			}
		}
		rows = append(rows, row)
	}
	return pipeline.RecordSet{Link: link, Columns: columns, Rows: rows}, nil
}

func cellText(sel *goquery.Selection) string {
	return strings.Join(strings.Fields(sel.Text()), " ")
}

func fitRow(row []string, width int) []string {
	if len(row) == width {
		return row
	}
	if len(row) > width {
		return row[:width]
	}
	out := make([]string, width)
	copy(out, row)
	return out
}

func scalarText(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		// Trim the trailing .0 json.Unmarshal gives integers.
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%v", t)
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprintf("%v", t)
	}
}
