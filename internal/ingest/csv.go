package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/parcelflow-labs/parcelflow-go/internal/domain"
)

// ReadCSV parses a CSV batch with a header row into typed records.
// The whole batch is read eagerly; a malformed row fails the batch with
// a RowError naming the offending row.
func ReadCSV(r io.Reader, schema domain.Schema, opts Options) ([]domain.Record, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i, name := range header {
		header[i] = strings.TrimSpace(name)
	}

	var records []domain.Record
	rowNum := 1
	for {
		cells, err := cr.Read()
		if err == io.EOF {
			break
		}
		rowNum++
		if err != nil {
			return nil, &RowError{Row: rowNum, Err: err}
		}

		row := make(map[string]string, len(header))
		for i, name := range header {
			if i < len(cells) {
				row[name] = cells[i]
			}
		}

		rec, err := buildRecord(schema, opts, row)
		if err != nil {
			return nil, &RowError{Row: rowNum, Err: err}
		}
		records = append(records, rec)
	}
	return records, nil
}
