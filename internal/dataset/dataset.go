package dataset

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// numericThreshold is the share of non-empty cells that must parse as numbers
// for a column to count as numeric.
const numericThreshold = 0.8

// Dataset is a decoded table. It lives for one request and is never persisted.
type Dataset struct {
	Headers     []string
	Rows        [][]string
	NumericCols []int
}

func newDataset(rows [][]string) (*Dataset, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: spreadsheet is empty", ErrInvalidInput)
	}

	headers := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		h = strings.TrimSpace(h)
		if h == "" {
			h = fmt.Sprintf("Column_%d", i+1)
		}
		headers[i] = h
	}

	body := make([][]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if isEmptyRow(row) {
			continue
		}
		body = append(body, row)
	}

	ds := &Dataset{Headers: headers, Rows: body}
	for col := range headers {
		if ds.isColumnNumeric(col) {
			ds.NumericCols = append(ds.NumericCols, col)
		}
	}
	return ds, nil
}

func isEmptyRow(row []string) bool {
	for _, field := range row {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

func (d *Dataset) isColumnNumeric(col int) bool {
	numeric, total := 0, 0
	for _, row := range d.Rows {
		val := cell(row, col)
		if val == "" {
			continue
		}
		total++
		if _, err := parseNumber(val); err == nil {
			numeric++
		}
	}
	if total == 0 {
		return false
	}
	return float64(numeric)/float64(total) >= numericThreshold
}

// Column returns the index of the named column, matching case-insensitively.
func (d *Dataset) Column(name string) (int, bool) {
	name = strings.TrimSpace(name)
	for i, h := range d.Headers {
		if strings.EqualFold(h, name) {
			return i, true
		}
	}
	return -1, false
}

// IsNumeric reports whether the column at index col was detected as numeric.
func (d *Dataset) IsNumeric(col int) bool {
	for _, c := range d.NumericCols {
		if c == col {
			return true
		}
	}
	return false
}

// Value returns the trimmed cell at row, col, or "" when the row is short.
func (d *Dataset) Value(row, col int) string {
	return cell(d.Rows[row], col)
}

// Float parses the cell at row, col as a number.
func (d *Dataset) Float(row, col int) (float64, bool) {
	v, err := parseNumber(d.Value(row, col))
	return v, err == nil
}

func (d *Dataset) Len() int {
	return len(d.Rows)
}

// Summary describes the table for a prompt without sending the whole thing.
type Summary struct {
	RowCount       int        `json:"row_count"`
	Columns        []string   `json:"columns"`
	NumericColumns []string   `json:"numeric_columns"`
	SampleRows     [][]string `json:"sample_rows"`
}

func (d *Dataset) Summary(sampleRows int) Summary {
	s := Summary{
		RowCount: len(d.Rows),
		Columns:  append([]string(nil), d.Headers...),
	}
	for _, c := range d.NumericCols {
		s.NumericColumns = append(s.NumericColumns, d.Headers[c])
	}
	for i := 0; i < len(d.Rows) && i < sampleRows; i++ {
		row := make([]string, len(d.Headers))
		for c := range d.Headers {
			row[c] = d.Value(i, c)
		}
		s.SampleRows = append(s.SampleRows, row)
	}
	return s
}

func cell(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[col])
}

// parseNumber accepts finite numbers only. ParseFloat also takes "inf" and
// "NaN", which are text in a spreadsheet.
func parseNumber(s string) (float64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, fmt.Errorf("%q is not a finite number", s)
	}
	return v, nil
}
