// Package document is the document-model boundary for PDF form filling.
//
// It exposes templates and open documents through a small interface so the
// fill pipeline never touches the PDF library directly. The production
// implementation sits on pdfcpu's low-level context API; a cheap secondary
// reader is used to preflight templates before the full parse.
package document

import (
	"errors"
	"fmt"
	"io"
)

// ErrTemplate indicates a template that cannot be read or parsed.
var ErrTemplate = errors.New("unreadable template")

// Error wraps a failed document operation.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("document: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Widget is the decoded view of one interactive form widget.
type Widget struct {
	Name     string
	Type     FieldType
	Value    string
	Flags    uint32
	FontSize float64
	Page     int // 1-based
}

// FieldType classifies a form field.
type FieldType string

const (
	FieldTypeText      FieldType = "text"
	FieldTypeCheckbox  FieldType = "checkbox"
	FieldTypeRadio     FieldType = "radio"
	FieldTypeSelect    FieldType = "select"
	FieldTypeButton    FieldType = "button"
	FieldTypeSignature FieldType = "signature"
	FieldTypeUnknown   FieldType = "unknown"
)

// Document is an open PDF with read/write access to its form widgets.
//
// Saving writes the document without structural rewriting: no garbage
// collection of unreferenced objects and no object cleanup. Rewritten
// structure has been observed to break some third-party viewers, so a
// minimal diff from the template is a requirement, not an optimization.
type Document interface {
	PageCount() int
	Widgets() ([]Widget, error)
	SetFieldValue(name string, page int, value string) error
	FieldFlags(name string, page int) (uint32, error)
	SetFieldFlags(name string, page int, flags uint32) error
	Save(w io.Writer) error
	Close() error
}
