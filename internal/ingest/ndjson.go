package ingest

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/parcelflow-labs/parcelflow-go/internal/domain"
)

// ReadNDJSON parses newline-delimited JSON objects into typed records.
// Blank lines are skipped. JSON numbers are accepted directly for number
// fields; every other value is rendered to its string form and parsed per
// the declared type, so `"12.5"` and `12.5` ingest the same way.
func ReadNDJSON(r io.Reader, schema domain.Schema, opts Options) ([]domain.Record, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var records []domain.Record
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var obj map[string]any
		if err := json.Unmarshal([]byte(line), &obj); err != nil {
			return nil, &RowError{Row: lineNum, Err: fmt.Errorf("decode: %w", err)}
		}

		row := make(map[string]string, len(obj))
		for name, v := range obj {
			cell, err := cellString(v)
			if err != nil {
				return nil, &RowError{Row: lineNum, Err: fmt.Errorf("field %q: %w", name, err)}
			}
			row[name] = cell
		}

		rec, err := buildRecord(schema, opts, row)
		if err != nil {
			return nil, &RowError{Row: lineNum, Err: err}
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	return records, nil
}

func cellString(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64), nil
	case bool:
		return strconv.FormatBool(t), nil
	default:
		return "", fmt.Errorf("unsupported value type %T", v)
	}
}
