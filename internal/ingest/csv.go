package ingest

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/atlasquant/marketdata/internal/store"
)

// MaxFileSize is the maximum allowed CSV file size (100MB).
var MaxFileSize int64 = 100 * 1024 * 1024

// MaxHeaderSearchRows is the maximum number of rows to scan for the header.
var MaxHeaderSearchRows = 20

// RowError records a data row that was skipped, with its 1-indexed line
// number in the source file.
type RowError struct {
	Line   int    `json:"line"`
	Reason string `json:"reason"`
}

// ParseResult is the outcome of decoding one CSV payload. Rows that fail
// coercion land in Skipped and do not fail the parse; callers decide how
// strict to be about them.
type ParseResult struct {
	Data    *store.Dataset
	Skipped []RowError
}

// headerIndex maps lowercased column names to their position in the CSV
// header row.
type headerIndex map[string]int

// ParseCSV decodes a CSV payload against a dataset spec. The header row
// is located within the first MaxHeaderSearchRows records, since vendor
// exports often lead with title or report-date rows. Cells are coerced
// per column kind and assembled in spec column order.
func ParseCSV(spec DatasetSpec, data []byte) (*ParseResult, error) {
	if int64(len(data)) > MaxFileSize {
		return nil, &store.ValidationError{Msg: fmt.Sprintf("file exceeds %dMB limit", MaxFileSize/(1024*1024))}
	}

	data = sanitizeUTF8(data)

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	records, err := r.ReadAll()
	if err != nil {
		return nil, &store.ValidationError{Msg: fmt.Sprintf("parse CSV: %v", err)}
	}
	if len(records) == 0 {
		return nil, &store.ValidationError{Msg: "empty file"}
	}

	columns := spec.ColumnNames()
	headerRow := findHeaderInRecords(records, columns)
	if headerRow < 0 {
		return nil, &store.SchemaError{Msg: fmt.Sprintf("header not found (expected: %v)", columns)}
	}

	idx := makeHeaderIndex(records[headerRow])
	for _, col := range spec.Columns {
		if _, ok := idx[strings.ToLower(col.Name)]; !ok && col.Required {
			return nil, &store.SchemaError{Msg: fmt.Sprintf("missing required column %q", col.Name)}
		}
	}

	result := &ParseResult{Data: &store.Dataset{Columns: columns}}
	for i, row := range records[headerRow+1:] {
		lineNum := headerRow + i + 2 // 1-indexed, after header
		if isEmptyRow(row) {
			continue
		}
		out, err := coerceCSVRow(spec, idx, row)
		if err != nil {
			result.Skipped = append(result.Skipped, RowError{Line: lineNum, Reason: err.Error()})
			continue
		}
		result.Data.Rows = append(result.Data.Rows, out)
	}

	return result, nil
}

// coerceCSVRow maps one CSV record onto the spec's columns in order.
// Cells missing from a short row or left empty become NULL when the
// column allows it.
func coerceCSVRow(spec DatasetSpec, idx headerIndex, row []string) ([]any, error) {
	out := make([]any, len(spec.Columns))
	for i, col := range spec.Columns {
		pos, ok := idx[strings.ToLower(col.Name)]
		if !ok || pos >= len(row) {
			if col.Required && !col.AllowEmpty {
				return nil, fmt.Errorf("missing value for %q", col.Name)
			}
			continue
		}

		raw := cleanCell(row[pos])
		if raw == "" {
			if col.Required && !col.AllowEmpty {
				return nil, fmt.Errorf("empty required field %q", col.Name)
			}
			continue
		}

		switch col.Kind {
		case KindDate:
			d, err := store.ParseDate(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid date for %q: %q", col.Name, raw)
			}
			out[i] = d
		case KindNumeric:
			f, err := parseNumericCell(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid numeric for %q: %q", col.Name, raw)
			}
			out[i] = f
		default:
			out[i] = raw
		}
	}
	return out, nil
}

// parseNumericCell parses a numeric cell value.
// Handles currency symbols, thousands separators, and accounting format
// (parentheses for negative).
func parseNumericCell(s string) (float64, error) {
	isNegative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		isNegative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, "€", "") // Euro
	s = strings.ReplaceAll(s, "£", "") // Pound
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	if isNegative {
		s = "-" + s
	}

	return strconv.ParseFloat(s, 64)
}

// Helper functions

func sanitizeUTF8(data []byte) []byte {
	if utf8.Valid(data) {
		return data
	}

	var buf bytes.Buffer
	buf.Grow(len(data))

	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r == utf8.RuneError && size == 1 {
			buf.WriteRune('�')
			data = data[1:]
		} else {
			buf.WriteRune(r)
			data = data[size:]
		}
	}

	return buf.Bytes()
}

func makeHeaderIndex(header []string) headerIndex {
	idx := make(headerIndex, len(header))
	for i, h := range header {
		idx[strings.ToLower(cleanCell(h))] = i
	}
	return idx
}

func findHeaderInRecords(records [][]string, required []string) int {
	maxRows := MaxHeaderSearchRows
	if len(records) < maxRows {
		maxRows = len(records)
	}

	for i := 0; i < maxRows; i++ {
		if equalHeaders(records[i], required) {
			return i
		}
	}
	return -1
}

func equalHeaders(a, b []string) bool {
	if len(a) < len(b) {
		return false
	}

	for i := range b {
		if !strings.EqualFold(cleanCell(a[i]), cleanCell(b[i])) {
			return false
		}
	}
	return true
}

func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// cleanCell removes common CSV artifacts from a cell value: surrounding
// whitespace, Excel's leading ="..." wrapper, and stray quotes.
func cleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	s = strings.Trim(s, `"'`)
	return strings.TrimSpace(s)
}
