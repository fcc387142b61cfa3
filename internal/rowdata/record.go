// Package rowdata parses tabular batch input into ordered records and
// normalizes cell values into the canonical form written into PDF fields.
package rowdata

import (
	"errors"
	"fmt"
	"strings"
)

// FilenameColumn is the reserved header naming each row's output document.
// It is never matched against form fields.
const FilenameColumn = "Filename"

// ErrMalformedInput indicates the byte stream could not be parsed as
// delimited tabular data, or a row's column count disagreed with the header.
var ErrMalformedInput = errors.New("malformed tabular input")

// Record is one row of batch input: an ordered mapping of column name to
// raw cell value. Records are immutable after creation.
type Record struct {
	columns []string
	values  map[string]string
}

// NewRecord builds a record from parallel column and value slices.
func NewRecord(columns, values []string) (Record, error) {
	if len(columns) != len(values) {
		return Record{}, fmt.Errorf("%w: row has %d values for %d columns",
			ErrMalformedInput, len(values), len(columns))
	}
	m := make(map[string]string, len(columns))
	for i, c := range columns {
		m[c] = values[i]
	}
	return Record{columns: columns, values: m}, nil
}

// Columns returns the column names in input order.
func (r Record) Columns() []string { return r.columns }

// Get returns the raw value for a column.
func (r Record) Get(name string) (string, bool) {
	v, ok := r.values[name]
	return v, ok
}

// Filename returns the reserved output-name cell, trimmed, and whether it
// was present and non-empty.
func (r Record) Filename() (string, bool) {
	v, ok := r.values[FilenameColumn]
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

// FieldColumns returns the column names eligible for field matching, i.e.
// everything except the reserved filename column, in input order.
func (r Record) FieldColumns() []string {
	out := make([]string, 0, len(r.columns))
	for _, c := range r.columns {
		if c == FilenameColumn {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Env returns the record as a plain map, for expression evaluation.
func (r Record) Env() map[string]any {
	env := make(map[string]any, len(r.values))
	for k, v := range r.values {
		env[k] = v
	}
	return env
}
