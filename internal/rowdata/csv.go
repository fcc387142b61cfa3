package rowdata

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// utf8BOM is the byte-order mark some spreadsheet exports prepend to CSV.
const utf8BOM = "\ufeff"

// ParseCSV parses UTF-8 delimited text into records. The header row is
// required; a leading byte-order mark is stripped from the first header
// name only. Column order is preserved. A row whose column count differs
// from the header fails the whole parse with ErrMalformedInput.
func ParseCSV(data []byte) ([]Record, error) {
	reader := csv.NewReader(bytes.NewReader(data))

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: missing header row", ErrMalformedInput)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], utf8BOM)
	}

	var records []Record
	for rowNum := 2; ; rowNum++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) && errors.Is(parseErr.Err, csv.ErrFieldCount) {
				return nil, fmt.Errorf("%w: row %d has %d columns, header has %d",
					ErrMalformedInput, rowNum, len(row), len(header))
			}
			return nil, fmt.Errorf("%w: row %d: %v", ErrMalformedInput, rowNum, err)
		}
		rec, err := NewRecord(header, row)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// CountCSVRows counts the data rows of a CSV buffer without materializing
// records, for the credit pre-check. The header row is excluded.
func CountCSVRows(data []byte) (int, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1

	if _, err := reader.Read(); err == io.EOF {
		return 0, nil
	} else if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}

	count := 0
	for {
		if _, err := reader.Read(); err == io.EOF {
			break
		} else if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrMalformedInput, err)
		}
		count++
	}
	return count, nil
}
