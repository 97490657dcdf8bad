package crm

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
)

// readRows loads a CSV file into one map per row, keyed by the header
// row. Short rows leave trailing columns absent, matching how a dict
// reader treats ragged data.
func readRows(path string) ([]map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s header: %w", path, err)
	}

	var rows []map[string]string
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s row %d: %w", path, len(rows)+2, err)
		}
		row := make(map[string]string, len(header))
		for i, name := range header {
			if i < len(record) {
				row[name] = record[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// countUnique counts distinct non-empty values of one column.
func countUnique(rows []map[string]string, column string) int {
	seen := make(map[string]struct{})
	for _, row := range rows {
		if v := row[column]; v != "" {
			seen[v] = struct{}{}
		}
	}
	return len(seen)
}
