package document

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// pdfcpuDocument implements Document on pdfcpu's low-level context API.
type pdfcpuDocument struct {
	ctx    *model.Context
	closed bool

	// widget bookkeeping built once at open time
	widgets []Widget
	refs    map[widgetKey]*widgetRef
}

type widgetKey struct {
	name string
	page int
}

// widgetRef keeps the dictionaries a write needs: the annotation itself and
// the field dictionary carrying the T entry (they coincide for merged
// field/widget objects).
type widgetRef struct {
	annot types.Dict
	field types.Dict
}

// Open parses PDF bytes into a writable document.
func Open(data []byte) (Document, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	ctx, err := api.ReadContext(bytes.NewReader(data), conf)
	if err != nil {
		return nil, &Error{Op: "open", Err: fmt.Errorf("%w: %v", ErrTemplate, err)}
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return nil, &Error{Op: "open", Err: fmt.Errorf("%w: %v", ErrTemplate, err)}
	}

	d := &pdfcpuDocument{
		ctx:  ctx,
		refs: make(map[widgetKey]*widgetRef),
	}
	if err := d.indexWidgets(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *pdfcpuDocument) PageCount() int {
	return d.ctx.PageCount
}

// Widgets returns all form widgets across all pages, in page order.
func (d *pdfcpuDocument) Widgets() ([]Widget, error) {
	if d.closed {
		return nil, &Error{Op: "widgets", Err: fmt.Errorf("document is closed")}
	}
	out := make([]Widget, len(d.widgets))
	copy(out, d.widgets)
	return out, nil
}

// indexWidgets walks every page's Annots array and records each widget
// annotation together with its owning field dictionary.
func (d *pdfcpuDocument) indexWidgets() error {
	for pageNr := 1; pageNr <= d.ctx.PageCount; pageNr++ {
		pageDict, _, _, err := d.ctx.PageDict(pageNr, false)
		if err != nil {
			return &Error{Op: "index widgets", Err: fmt.Errorf("page %d: %w", pageNr, err)}
		}
		if pageDict == nil {
			continue
		}

		annotsObj, found := pageDict.Find("Annots")
		if !found {
			continue
		}
		annots, err := d.ctx.DereferenceArray(annotsObj)
		if err != nil || annots == nil {
			continue
		}

		for _, annotObj := range annots {
			annotDict, err := d.ctx.DereferenceDict(annotObj)
			if err != nil || annotDict == nil {
				continue
			}
			if subtype := d.dictName(annotDict, "Subtype"); subtype != "Widget" {
				continue
			}

			fieldDict := d.owningField(annotDict)
			name := d.qualifiedName(annotDict)
			if name == "" {
				continue
			}

			w := Widget{
				Name:     name,
				Type:     d.fieldType(fieldDict),
				Value:    d.fieldValue(fieldDict),
				Flags:    d.fieldFlags(fieldDict),
				FontSize: d.fontSize(annotDict, fieldDict),
				Page:     pageNr,
			}
			d.widgets = append(d.widgets, w)
			d.refs[widgetKey{name: name, page: pageNr}] = &widgetRef{
				annot: annotDict,
				field: fieldDict,
			}
		}
	}
	return nil
}

// owningField returns the dictionary that carries the field's T entry: the
// annotation itself for merged objects, otherwise the nearest ancestor.
func (d *pdfcpuDocument) owningField(annotDict types.Dict) types.Dict {
	cur := annotDict
	for cur != nil {
		if _, found := cur.Find("T"); found {
			return cur
		}
		parentObj, found := cur.Find("Parent")
		if !found {
			break
		}
		parent, err := d.ctx.DereferenceDict(parentObj)
		if err != nil || parent == nil {
			break
		}
		cur = parent
	}
	return annotDict
}

// qualifiedName assembles the fully qualified field name by joining partial
// names up the Parent chain.
func (d *pdfcpuDocument) qualifiedName(annotDict types.Dict) string {
	var parts []string
	cur := annotDict
	for cur != nil {
		if nameObj, found := cur.Find("T"); found {
			if name, err := d.ctx.DereferenceStringOrHexLiteral(nameObj, model.V10, nil); err == nil && name != "" {
				parts = append([]string{name}, parts...)
			}
		}
		parentObj, found := cur.Find("Parent")
		if !found {
			break
		}
		parent, err := d.ctx.DereferenceDict(parentObj)
		if err != nil || parent == nil {
			break
		}
		cur = parent
	}
	return strings.Join(parts, ".")
}

// fieldType determines the field type from the FT entry, following the
// Parent chain for inherited entries.
func (d *pdfcpuDocument) fieldType(fieldDict types.Dict) FieldType {
	ftObj, found := fieldDict.Find("FT")
	if !found {
		if parentObj, ok := fieldDict.Find("Parent"); ok {
			if parent, err := d.ctx.DereferenceDict(parentObj); err == nil && parent != nil {
				return d.fieldType(parent)
			}
		}
		return FieldTypeUnknown
	}

	ftName, err := d.ctx.DereferenceName(ftObj, model.V10, nil)
	if err != nil {
		return FieldTypeUnknown
	}

	switch ftName {
	case "Tx":
		return FieldTypeText
	case "Ch":
		return FieldTypeSelect
	case "Sig":
		return FieldTypeSignature
	case "Btn":
		flags := d.fieldFlags(fieldDict)
		if flags&(1<<15) != 0 {
			return FieldTypeRadio
		}
		if flags&(1<<16) != 0 {
			return FieldTypeButton
		}
		return FieldTypeCheckbox
	default:
		return FieldTypeUnknown
	}
}

func (d *pdfcpuDocument) fieldValue(fieldDict types.Dict) string {
	valueObj, found := fieldDict.Find("V")
	if !found {
		return ""
	}
	if val, err := d.ctx.DereferenceStringOrHexLiteral(valueObj, model.V10, nil); err == nil {
		return val
	}
	if name, err := d.ctx.DereferenceName(valueObj, model.V10, nil); err == nil {
		return string(name)
	}
	return ""
}

func (d *pdfcpuDocument) fieldFlags(fieldDict types.Dict) uint32 {
	cur := fieldDict
	for cur != nil {
		if flagsObj, found := cur.Find("Ff"); found {
			if flags, err := d.ctx.DereferenceInteger(flagsObj); err == nil && flags != nil {
				return uint32(*flags)
			}
		}
		parentObj, found := cur.Find("Parent")
		if !found {
			break
		}
		parent, err := d.ctx.DereferenceDict(parentObj)
		if err != nil || parent == nil {
			break
		}
		cur = parent
	}
	return 0
}

// fontSize parses the default appearance string for the Tf operator. The
// annotation's DA wins over the field's.
func (d *pdfcpuDocument) fontSize(annotDict, fieldDict types.Dict) float64 {
	for _, dict := range []types.Dict{annotDict, fieldDict} {
		if dict == nil {
			continue
		}
		daObj, found := dict.Find("DA")
		if !found {
			continue
		}
		da, err := d.ctx.DereferenceStringOrHexLiteral(daObj, model.V10, nil)
		if err != nil {
			continue
		}
		if size, ok := parseFontSize(da); ok {
			return size
		}
	}
	return 0
}

// parseFontSize extracts the size operand of a Tf operator from a default
// appearance string like "/Helv 10 Tf 0 g".
func parseFontSize(da string) (float64, bool) {
	parts := strings.Fields(da)
	for i, part := range parts {
		if part == "Tf" && i >= 1 {
			if size, err := strconv.ParseFloat(parts[i-1], 64); err == nil {
				return size, true
			}
		}
	}
	return 0, false
}

func (d *pdfcpuDocument) lookup(name string, page int) (*widgetRef, error) {
	ref, ok := d.refs[widgetKey{name: name, page: page}]
	if !ok {
		return nil, &Error{Op: "lookup", Err: fmt.Errorf("no widget %q on page %d", name, page)}
	}
	return ref, nil
}

// escapedStringLiteral encodes a field value as a PDF string literal.
// Delimiters and backslashes in the value must be escaped, or the literal
// terminates early and corrupts the surrounding object structure.
func escapedStringLiteral(value string) (types.StringLiteral, error) {
	s, err := types.EscapedUTF16String(value)
	if err != nil {
		return "", err
	}
	return types.StringLiteral(*s), nil
}

// SetFieldValue writes a field's V entry and drops the widget's cached
// appearance stream so viewers regenerate it from the new value.
func (d *pdfcpuDocument) SetFieldValue(name string, page int, value string) error {
	if d.closed {
		return &Error{Op: "set value", Err: fmt.Errorf("document is closed")}
	}
	ref, err := d.lookup(name, page)
	if err != nil {
		return err
	}

	lit, err := escapedStringLiteral(value)
	if err != nil {
		return &Error{Op: "set value", Err: err}
	}
	ref.field.Update("V", lit)
	ref.annot.Delete("AP")
	for i := range d.widgets {
		if d.widgets[i].Name == name && d.widgets[i].Page == page {
			d.widgets[i].Value = value
		}
	}
	return d.setNeedAppearances()
}

// FieldFlags reads the raw Ff word of a widget.
func (d *pdfcpuDocument) FieldFlags(name string, page int) (uint32, error) {
	ref, err := d.lookup(name, page)
	if err != nil {
		return 0, err
	}
	return d.fieldFlags(ref.field), nil
}

// SetFieldFlags writes the raw Ff word of a widget.
func (d *pdfcpuDocument) SetFieldFlags(name string, page int, flags uint32) error {
	if d.closed {
		return &Error{Op: "set flags", Err: fmt.Errorf("document is closed")}
	}
	ref, err := d.lookup(name, page)
	if err != nil {
		return err
	}
	ref.field.Update("Ff", types.Integer(int(flags)))
	for i := range d.widgets {
		if d.widgets[i].Name == name && d.widgets[i].Page == page {
			d.widgets[i].Flags = flags
		}
	}
	return nil
}

// setNeedAppearances flags the AcroForm dictionary so conforming viewers
// rebuild field appearances on open.
func (d *pdfcpuDocument) setNeedAppearances() error {
	rootDict, err := d.ctx.Catalog()
	if err != nil {
		return &Error{Op: "set value", Err: err}
	}
	acroFormObj, found := rootDict.Find("AcroForm")
	if !found {
		return nil
	}
	acroFormDict, err := d.ctx.DereferenceDict(acroFormObj)
	if err != nil || acroFormDict == nil {
		return nil
	}
	acroFormDict.Update("NeedAppearances", types.Boolean(true))
	return nil
}

// Save serializes the document. pdfcpu's context writer emits the object
// table as held in memory; untouched objects keep their structure, which is
// the minimal-diff behavior the fill pipeline depends on.
func (d *pdfcpuDocument) Save(w io.Writer) error {
	if d.closed {
		return &Error{Op: "save", Err: fmt.Errorf("document is closed")}
	}
	if err := api.WriteContext(d.ctx, w); err != nil {
		return &Error{Op: "save", Err: err}
	}
	return nil
}

func (d *pdfcpuDocument) Close() error {
	d.closed = true
	d.ctx = nil
	d.refs = nil
	d.widgets = nil
	return nil
}

func (d *pdfcpuDocument) dictName(dict types.Dict, key string) string {
	obj, found := dict.Find(key)
	if !found {
		return ""
	}
	name, err := d.ctx.DereferenceName(obj, model.V10, nil)
	if err != nil {
		return ""
	}
	return string(name)
}
