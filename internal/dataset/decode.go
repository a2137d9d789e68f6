package dataset

import (
	"bytes"
	"encoding/base64"
	"encoding/csv"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

var zipMagic = []byte("PK\x03\x04")

// Decode turns spreadsheet bytes into a Dataset. xlsx workbooks are read from
// their first sheet; anything that is not a zip container is tried as CSV.
func Decode(data []byte, name string) (*Dataset, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: spreadsheet is empty", ErrInvalidInput)
	}

	ext := strings.ToLower(filepath.Ext(name))
	switch {
	case ext == ".csv":
		return decodeCSV(data)
	case bytes.HasPrefix(data, zipMagic):
		return decodeExcel(data)
	case ext == ".xlsx" || ext == ".xlsm":
		return nil, fmt.Errorf("%w: %s is not a valid Excel workbook", ErrInvalidInput, name)
	default:
		return decodeCSV(data)
	}
}

func decodeExcel(data []byte) (*Dataset, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read Excel file: %v", ErrInvalidInput, err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, fmt.Errorf("%w: workbook has no sheets", ErrInvalidInput)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read sheet %q: %v", ErrInvalidInput, sheet, err)
	}
	return newDataset(rows)
}

func decodeCSV(data []byte) (*Dataset, error) {
	if !utf8.Valid(data) || bytes.IndexByte(data, 0) >= 0 {
		return nil, fmt.Errorf("%w: unreadable spreadsheet: expected xlsx or csv", ErrInvalidInput)
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read CSV: %v", ErrInvalidInput, err)
	}
	return newDataset(rows)
}

// decodeBase64 accepts padded or raw standard encoding, with or without a
// data URL prefix.
func decodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "data:") {
		if i := strings.Index(s, ","); i >= 0 {
			s = s[i+1:]
		}
	}
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == ' ' || r == '\t' {
			return -1
		}
		return r
	}, s)

	if data, err := base64.StdEncoding.DecodeString(s); err == nil {
		return data, nil
	}
	data, err := base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64 data: %v", ErrInvalidInput, err)
	}
	return data, nil
}
