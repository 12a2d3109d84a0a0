// Package source reads the external identifier list that seeds the
// ingestion work queue.
package source

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
)

// Row is one entry of the identifier list. Rows are immutable once
// read; the planner consumes them by index.
type Row struct {
	ID     int64
	Fields map[string]string
}

// ReadRows reads the full key list from a CSV file. The first row is
// the header and must contain an "id" column; remaining columns are
// kept as string fields. Any read, header, or identifier parse failure
// is a startup configuration error.
func ReadRows(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open key list %s: %w", path, err)
	}
	defer f.Close()

	return parseRows(f)
}

func parseRows(r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	headers, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header row: %w", err)
	}

	idCol := -1
	for i, h := range headers {
		if h == "id" {
			idCol = i
			break
		}
	}
	if idCol < 0 {
		return nil, fmt.Errorf("key list has no id column (headers: %v)", headers)
	}

	var rows []Row
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read key list line %d: %w", line, err)
		}
		if idCol >= len(record) {
			return nil, fmt.Errorf("key list line %d: missing id column", line)
		}

		id, err := strconv.ParseInt(record[idCol], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("key list line %d: parse id %q: %w", line, record[idCol], err)
		}

		fields := make(map[string]string, len(headers))
		for i, h := range headers {
			if i < len(record) {
				fields[h] = record[i]
			}
		}
		rows = append(rows, Row{ID: id, Fields: fields})
	}

	return rows, nil
}
