// Command acrofill_fields inspects and edits the form fields of a PDF
// template: it lists every widget with its decoded behavior flags, and can
// write a modified copy with updated flags for one named field.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/acrofill/acrofill/internal/document"
	"github.com/acrofill/acrofill/internal/fieldflags"
)

var (
	outputFormat = flag.String("format", "text", "Output format: text, json")
	fieldName    = flag.String("field", "", "Field to edit (requires -out)")
	outPath      = flag.String("out", "", "Where to write the modified copy")
	setMultiline = flag.String("multiline", "", "Set multiline on the field: true or false")
	setScroll    = flag.String("scroll", "", "Set scrolling on the field: true or false")
	setSpell     = flag.String("spellcheck", "", "Set spell checking on the field: true or false")
	setReadOnly  = flag.String("readonly", "", "Set read-only on the field: true or false")
	setAlign     = flag.Int("align", -1, "Set text alignment: 0=left, 1=center, 2=right")
	help         = flag.Bool("help", false, "Show help message")
)

func main() {
	flag.Parse()

	if *help {
		printUsage()
		return
	}
	if flag.NArg() == 0 {
		fmt.Fprintf(os.Stderr, "Error: PDF file path required\n\n")
		printUsage()
		os.Exit(1)
	}

	if err := run(flag.Arg(0)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(path string) error {
	tmpl, err := document.LoadTemplate(path)
	if err != nil {
		return err
	}

	doc, err := tmpl.Open()
	if err != nil {
		return err
	}
	defer doc.Close()

	if *fieldName != "" {
		if *outPath == "" {
			return fmt.Errorf("-field requires -out")
		}
		return editField(doc)
	}

	widgets, err := doc.Widgets()
	if err != nil {
		return err
	}
	return printWidgets(widgets)
}

func editField(doc document.Document) error {
	widgets, err := doc.Widgets()
	if err != nil {
		return err
	}

	var target *document.Widget
	for i := range widgets {
		if widgets[i].Name == *fieldName {
			target = &widgets[i]
			break
		}
	}
	if target == nil {
		return fmt.Errorf("field %q not found", *fieldName)
	}

	changes, err := parseChanges()
	if err != nil {
		return err
	}

	raw, err := doc.FieldFlags(target.Name, target.Page)
	if err != nil {
		return err
	}
	if err := doc.SetFieldFlags(target.Name, target.Page, fieldflags.Encode(raw, changes)); err != nil {
		return err
	}

	f, err := os.Create(*outPath)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := doc.Save(f); err != nil {
		os.Remove(*outPath)
		return err
	}
	fmt.Printf("Wrote %s\n", *outPath)
	return nil
}

func parseChanges() (fieldflags.Changes, error) {
	var ch fieldflags.Changes
	for _, opt := range []struct {
		value  string
		target **bool
		invert bool
	}{
		{*setMultiline, &ch.Multiline, false},
		{*setReadOnly, &ch.ReadOnly, false},
		// The CLI asks about the positive behavior; the flag stores the
		// negative ("do not ...") form.
		{*setScroll, &ch.DoNotScroll, true},
		{*setSpell, &ch.DoNotSpellCheck, true},
	} {
		if opt.value == "" {
			continue
		}
		switch opt.value {
		case "true", "false":
			*opt.target = fieldflags.Bool((opt.value == "true") != opt.invert)
		default:
			return ch, fmt.Errorf("flag values must be true or false, got %q", opt.value)
		}
	}
	if *setAlign >= 0 {
		if *setAlign > 2 {
			return ch, fmt.Errorf("alignment must be 0, 1 or 2")
		}
		ch.Alignment = fieldflags.Align(fieldflags.Alignment(*setAlign))
	}
	return ch, nil
}

func printWidgets(widgets []document.Widget) error {
	if *outputFormat == "json" {
		type widgetView struct {
			document.Widget
			Attributes fieldflags.Attributes `json:"attributes"`
		}
		views := make([]widgetView, 0, len(widgets))
		for _, w := range widgets {
			views = append(views, widgetView{Widget: w, Attributes: fieldflags.Decode(w.Flags)})
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(views)
	}

	alignNames := []string{"Left", "Center", "Right"}
	fmt.Printf("Found %d form fields\n\n", len(widgets))
	for i, w := range widgets {
		attrs := fieldflags.Decode(w.Flags)
		align := "Left"
		if int(attrs.Alignment) < len(alignNames) {
			align = alignNames[attrs.Alignment]
		}
		fmt.Printf("%d. %s (%s, page %d)\n", i+1, w.Name, w.Type, w.Page)
		if w.Value != "" {
			fmt.Printf("   Value: %s\n", w.Value)
		}
		fmt.Printf("   Align: %s  Multiline: %v  Scroll: %v  SpellCheck: %v  ReadOnly: %v\n",
			align, attrs.Multiline, !attrs.DoNotScroll, !attrs.DoNotSpellCheck, attrs.ReadOnly)
		if w.FontSize > 0 {
			fmt.Printf("   Font size: %g\n", w.FontSize)
		}
	}
	return nil
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [options] <pdf-file>\n\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "Inspect or edit the form fields of a PDF template.\n\n")
	fmt.Fprintf(os.Stderr, "Options:\n")
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, "\nExamples:\n")
	fmt.Fprintf(os.Stderr, "  %s form.pdf                                      # list fields\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "  %s -format=json form.pdf                         # machine readable\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "  %s -field=Notes -multiline=true -out=new.pdf form.pdf\n", os.Args[0])
}
