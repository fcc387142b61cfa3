package fill

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/acrofill/acrofill/internal/document"
	"github.com/acrofill/acrofill/internal/rowdata"
)

// fakeDoc implements document.Document over an in-memory widget set.
type fakeDoc struct {
	widgets []document.Widget
	values  map[string]string
	closed  bool

	// failSaveOn makes Save fail when this value was written anywhere.
	failSaveOn string
}

func widgetKey(name string, page int) string { return fmt.Sprintf("%s@%d", name, page) }

func (d *fakeDoc) PageCount() int { return 1 }

func (d *fakeDoc) Widgets() ([]document.Widget, error) {
	out := make([]document.Widget, len(d.widgets))
	copy(out, d.widgets)
	return out, nil
}

func (d *fakeDoc) SetFieldValue(name string, page int, value string) error {
	for _, w := range d.widgets {
		if w.Name == name && w.Page == page {
			d.values[widgetKey(name, page)] = value
			return nil
		}
	}
	return fmt.Errorf("no widget %q on page %d", name, page)
}

func (d *fakeDoc) FieldFlags(name string, page int) (uint32, error) {
	for _, w := range d.widgets {
		if w.Name == name && w.Page == page {
			return w.Flags, nil
		}
	}
	return 0, fmt.Errorf("no widget %q on page %d", name, page)
}

func (d *fakeDoc) SetFieldFlags(name string, page int, flags uint32) error {
	return nil
}

func (d *fakeDoc) Save(w io.Writer) error {
	for _, v := range d.values {
		if d.failSaveOn != "" && v == d.failSaveOn {
			return fmt.Errorf("write failure")
		}
	}
	_, err := fmt.Fprintf(w, "%%FAKEPDF %d fields\n", len(d.values))
	return err
}

func (d *fakeDoc) Close() error {
	d.closed = true
	return nil
}

// fakeTemplate hands out fresh fakeDocs, mimicking independent clones.
type fakeTemplate struct {
	name       string
	widgets    []document.Widget
	failSaveOn string
	opened     []*fakeDoc
}

func (t *fakeTemplate) Name() string { return t.name }

func (t *fakeTemplate) Open() (document.Document, error) {
	d := &fakeDoc{
		widgets:    t.widgets,
		values:     make(map[string]string),
		failSaveOn: t.failSaveOn,
	}
	t.opened = append(t.opened, d)
	return d, nil
}

func textWidgets(names ...string) []document.Widget {
	ws := make([]document.Widget, 0, len(names))
	for _, n := range names {
		ws = append(ws, document.Widget{Name: n, Type: document.FieldTypeText, Page: 1})
	}
	return ws
}

func mustRecord(t *testing.T, columns, values []string) rowdata.Record {
	t.Helper()
	rec, err := rowdata.NewRecord(columns, values)
	require.NoError(t, err)
	return rec
}

func TestBuildIndexLastWriterWins(t *testing.T) {
	widgets := []document.Widget{
		{Name: "Name", Page: 1},
		{Name: "Total", Page: 1},
		{Name: "Name", Page: 3},
	}
	index := BuildIndex(widgets)
	assert.Equal(t, map[string]int{"Name": 3, "Total": 1}, index)
}

func TestBuildPlan(t *testing.T) {
	index := map[string]int{"Name": 1, "Amount": 2}

	t.Run("matches normalized in column order", func(t *testing.T) {
		rec := mustRecord(t,
			[]string{"Name", "Amount", "Filename"},
			[]string{" Alice ", "12.0", "out.pdf"})

		plan, err := BuildPlan(index, rec)
		require.NoError(t, err)
		assert.Equal(t, []Update{
			{Field: "Name", Value: "Alice", Page: 1},
			{Field: "Amount", Value: "12", Page: 2},
		}, plan.Updates)
		assert.Empty(t, plan.Unmatched)
	})

	t.Run("unmatched columns reported", func(t *testing.T) {
		rec := mustRecord(t,
			[]string{"Name", "Extra", "Filename"},
			[]string{"Alice", "x", "out.pdf"})

		plan, err := BuildPlan(index, rec)
		require.NoError(t, err)
		assert.Len(t, plan.Updates, 1)
		assert.Equal(t, []string{"Extra"}, plan.Unmatched)
	})

	t.Run("filename column never matched", func(t *testing.T) {
		rec := mustRecord(t,
			[]string{"Filename"}, []string{"out.pdf"})

		_, err := BuildPlan(map[string]int{"Filename": 1}, rec)
		assert.ErrorIs(t, err, ErrNoMatchingFields)
	})

	t.Run("zero matches fails", func(t *testing.T) {
		rec := mustRecord(t,
			[]string{"Nope", "Filename"}, []string{"v", "out.pdf"})

		_, err := BuildPlan(index, rec)
		assert.ErrorIs(t, err, ErrNoMatchingFields)
	})
}

func TestApplyPlanSkipsMissingWidgets(t *testing.T) {
	doc := &fakeDoc{
		widgets: textWidgets("Name"),
		values:  make(map[string]string),
	}
	plan := Plan{Updates: []Update{
		{Field: "Name", Value: "Alice", Page: 1},
		{Field: "Ghost", Value: "x", Page: 2},
	}}

	applied := ApplyPlan(doc, plan, zap.NewNop())
	assert.Equal(t, 1, applied)
	assert.Equal(t, "Alice", doc.values[widgetKey("Name", 1)])
}

func TestEngineRunThreeRowBatch(t *testing.T) {
	workDir := t.TempDir()
	outDir := t.TempDir()

	tmpl := &fakeTemplate{name: "invoice", widgets: textWidgets("Name", "Amount")}
	records := parseRecords(t,
		"Name,Amount,Filename\nAlice,12.0,alice.pdf\nBob,7,bob.pdf\nCara, 3 ,cara.pdf\n")

	var updates []Progress
	engine := NewEngine(workDir, zap.NewNop())
	res, err := engine.Run(context.Background(), tmpl, records, RunOptions{
		SessionID: "sess-1",
		OutputDir: outDir,
		Progress:  func(p Progress) { updates = append(updates, p) },
	})
	require.NoError(t, err)

	assert.Equal(t, 3, res.Total)
	assert.Equal(t, 3, res.Successful)
	assert.Zero(t, res.Failed)
	assert.Empty(t, res.Errors)

	// One archive with all three outputs, intermediates removed.
	assert.Equal(t, filepath.Join(outDir, "filled_invoice_sess-1.zip"), res.ArchivePath)
	assert.Equal(t, []string{"alice.pdf", "bob.pdf", "cara.pdf"}, zipEntryNames(t, res.ArchivePath))
	_, statErr := os.Stat(filepath.Join(workDir, "sess-1"))
	assert.True(t, os.IsNotExist(statErr), "work area should be removed")

	// Progress after every row with a linear remaining-time estimate.
	require.Len(t, updates, 3)
	assert.Equal(t, 1, updates[0].Current)
	assert.Equal(t, 3, updates[0].Total)
	assert.Equal(t, 3, updates[2].Successful)
	assert.Zero(t, updates[2].EstimatedRemaining)

	// Apply-phase documents saw normalized values and were all closed.
	var values []string
	for _, d := range tmpl.opened {
		for k, v := range d.values {
			values = append(values, k+"="+v)
		}
		assert.True(t, d.closed)
	}
	sort.Strings(values)
	assert.Equal(t, []string{
		"Amount@1=12", "Amount@1=3", "Amount@1=7",
		"Name@1=Alice", "Name@1=Bob", "Name@1=Cara",
	}, values)
}

func TestEngineRunRowWithoutMatchesFailsOnly(t *testing.T) {
	tmpl := &fakeTemplate{name: "form", widgets: textWidgets("Name")}
	records := []rowdata.Record{
		mustRecord(t, []string{"Name", "Filename"}, []string{"Alice", "a.pdf"}),
		mustRecord(t, []string{"Name", "Filename"}, []string{"", "b.pdf"}),
	}
	// Second record's only matching cell is empty, which still matches; to
	// get a no-match row, give it foreign columns instead.
	records[1] = mustRecord(t, []string{"Other", "Filename"}, []string{"x", "b.pdf"})

	engine := NewEngine(t.TempDir(), zap.NewNop())
	res, err := engine.Run(context.Background(), tmpl, records, RunOptions{
		SessionID: "sess-2",
		OutputDir: t.TempDir(),
	})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Total)
	assert.Equal(t, 1, res.Successful)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "row 2")
	assert.Equal(t, []string{"a.pdf"}, zipEntryNames(t, res.ArchivePath))
}

func TestEngineRunSaveFailureRecoveredPerRow(t *testing.T) {
	tmpl := &fakeTemplate{
		name:       "form",
		widgets:    textWidgets("Name"),
		failSaveOn: "boom",
	}
	records := parseRecords(t, "Name,Filename\nAlice,a.pdf\nboom,bad.pdf\nCara,c.pdf\n")

	engine := NewEngine(t.TempDir(), zap.NewNop())
	res, err := engine.Run(context.Background(), tmpl, records, RunOptions{
		SessionID: "sess-4",
		OutputDir: t.TempDir(),
	})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Successful)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "row 2")
	assert.Equal(t, []string{"a.pdf", "c.pdf"}, zipEntryNames(t, res.ArchivePath))
}

func TestEngineRunZeroRows(t *testing.T) {
	engine := NewEngine(t.TempDir(), zap.NewNop())
	_, err := engine.Run(context.Background(),
		&fakeTemplate{name: "form", widgets: textWidgets("Name")}, nil, RunOptions{})
	assert.ErrorIs(t, err, ErrNoRows)
}

func TestEngineRunCancelledBeforeFirstRow(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	workDir := t.TempDir()
	tmpl := &fakeTemplate{name: "form", widgets: textWidgets("Name")}
	records := parseRecords(t, "Name,Filename\nAlice,a.pdf\n")

	engine := NewEngine(workDir, zap.NewNop())
	res, err := engine.Run(ctx, tmpl, records, RunOptions{SessionID: "sess-3"})
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, res.Successful)
	assert.Zero(t, res.Failed)

	// Cancellation must not strand the work area or partial outputs.
	_, statErr := os.Stat(filepath.Join(workDir, "sess-3"))
	assert.True(t, os.IsNotExist(statErr), "work area should be removed on cancellation")
}

func TestArchiveName(t *testing.T) {
	assert.Equal(t, "filled_invoice_s1.zip", ArchiveName("s1", "invoice"))
	assert.Equal(t, "filled_s1.zip", ArchiveName("s1", ""))
}

func parseRecords(t *testing.T, csvData string) []rowdata.Record {
	t.Helper()
	records, err := rowdata.ParseCSV([]byte(csvData))
	require.NoError(t, err)
	return records
}

func zipEntryNames(t *testing.T, path string) []string {
	t.Helper()
	zr, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer zr.Close()

	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	return names
}
