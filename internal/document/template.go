package document

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Template holds an immutable template's bytes. Each Open parses the bytes
// into a fresh document, so every caller gets an independent structural
// copy and never a reference to a previously opened one.
type Template struct {
	name string
	data []byte
}

// NewTemplate preflights the given bytes and wraps them as a template.
func NewTemplate(name string, data []byte) (*Template, error) {
	if _, err := Preflight(data); err != nil {
		return nil, err
	}
	return &Template{name: name, data: data}, nil
}

// LoadTemplate reads a template from disk.
func LoadTemplate(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Op: "load template", Err: fmt.Errorf("%w: %v", ErrTemplate, err)}
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return NewTemplate(name, data)
}

// Name returns the template's display name.
func (t *Template) Name() string { return t.name }

// Open parses the template into a writable document.
func (t *Template) Open() (Document, error) {
	return Open(t.data)
}

// Preflight cheaply verifies that the bytes look like a readable PDF and
// returns the page count. It runs before the full form-aware parse so an
// unreadable template fails a batch up front.
func Preflight(data []byte) (int, error) {
	if len(data) == 0 {
		return 0, &Error{Op: "preflight", Err: fmt.Errorf("%w: empty file", ErrTemplate)}
	}
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, &Error{Op: "preflight", Err: fmt.Errorf("%w: %v", ErrTemplate, err)}
	}
	pages := r.NumPage()
	if pages < 1 {
		return 0, &Error{Op: "preflight", Err: fmt.Errorf("%w: no pages", ErrTemplate)}
	}
	return pages, nil
}
