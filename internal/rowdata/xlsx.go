package rowdata

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ParseXLSX parses the first sheet of a workbook into records. The first
// row is the header; short rows are padded with empty cells because
// spreadsheet libraries drop trailing blanks, unlike CSV where a short row
// is a malformed file.
func ParseXLSX(data []byte) ([]Record, error) {
	wb, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	defer wb.Close()

	sheets := wb.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: workbook has no sheets", ErrMalformedInput)
	}

	rows, err := wb.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: missing header row", ErrMalformedInput)
	}

	header := rows[0]
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], utf8BOM)
	}

	var records []Record
	for i, row := range rows[1:] {
		if len(row) > len(header) {
			return nil, fmt.Errorf("%w: row %d has %d columns, header has %d",
				ErrMalformedInput, i+2, len(row), len(header))
		}
		for len(row) < len(header) {
			row = append(row, "")
		}
		rec, err := NewRecord(header, row)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// CountXLSXRows counts the data rows of the first sheet, header excluded.
func CountXLSXRows(data []byte) (int, error) {
	wb, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	defer wb.Close()

	sheets := wb.GetSheetList()
	if len(sheets) == 0 {
		return 0, fmt.Errorf("%w: workbook has no sheets", ErrMalformedInput)
	}
	rows, err := wb.GetRows(sheets[0])
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return len(rows) - 1, nil
}

func isXLSX(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ".xlsx")
}

// Parse dispatches on the file name extension: .xlsx goes through the
// workbook reader, everything else is treated as CSV.
func Parse(name string, data []byte) ([]Record, error) {
	if isXLSX(name) {
		return ParseXLSX(data)
	}
	return ParseCSV(data)
}

// CountRows reports the number of data rows without materializing records,
// for the credit pre-check. The count never exceeds what Parse would yield
// for the same bytes; tolerant counting may admit input Parse then rejects.
func CountRows(name string, data []byte) (int, error) {
	if isXLSX(name) {
		return CountXLSXRows(data)
	}
	return CountCSVRows(data)
}
