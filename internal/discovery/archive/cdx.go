package archive

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// Record is one CDX row.
type Record struct {
	Original   string
	MimeType   string
	Timestamp  string // 14-digit YYYYMMDDhhmmss
	StatusCode string
}

var cdxFields = []string{"original", "mimetype", "timestamp", "statuscode"}

// buildQuery renders the CDX request URL for one prefix pattern.
func buildQuery(endpoint, pattern string, mimeTypes []string, limit int) (string, error) {
	base, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parse cdx endpoint: %w", err)
	}
	q := url.Values{}
	q.Set("url", pattern)
	q.Set("output", "json")
	q.Set("fl", strings.Join(cdxFields, ","))
	q.Add("filter", "statuscode:200")
	if len(mimeTypes) > 0 {
		quoted := make([]string, 0, len(mimeTypes))
		for _, m := range mimeTypes {
			quoted = append(quoted, regexp.QuoteMeta(m))
		}
		q.Add("filter", "mimetype:("+strings.Join(quoted, "|")+")")
	}
	q.Set("collapse", "urlkey")
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	base.RawQuery = q.Encode()
	return base.String(), nil
}

// parseRecords decodes CDX JSON output: a header row followed by data rows.
func parseRecords(body []byte) ([]Record, error) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return nil, nil
	}
	var rows [][]string
	if err := json.Unmarshal([]byte(trimmed), &rows); err != nil {
		return nil, fmt.Errorf("decode cdx rows: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	index := make(map[string]int, len(rows[0]))
	for i, name := range rows[0] {
		index[name] = i
	}
	pos, ok := index["original"]
	if !ok {
		return nil, fmt.Errorf("decode cdx rows: header %v lacks original", rows[0])
	}
	field := func(row []string, name string) string {
		i, ok := index[name]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}
	records := make([]Record, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if pos >= len(row) || row[pos] == "" {
			continue
		}
		records = append(records, Record{
			Original:   row[pos],
			MimeType:   field(row, "mimetype"),
			Timestamp:  field(row, "timestamp"),
			StatusCode: field(row, "statuscode"),
		})
	}
	return records, nil
}
