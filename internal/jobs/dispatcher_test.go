package jobs

import (
	"context"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/acrofill/acrofill/internal/credits"
	"github.com/acrofill/acrofill/internal/document"
	"github.com/acrofill/acrofill/internal/fill"
	"github.com/acrofill/acrofill/internal/progress"
	"github.com/acrofill/acrofill/internal/rowdata"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// stubDoc is a minimal in-memory document for dispatcher tests.
type stubDoc struct {
	widgets []document.Widget
	values  map[string]string
}

func (d *stubDoc) PageCount() int { return 1 }

func (d *stubDoc) Widgets() ([]document.Widget, error) { return d.widgets, nil }

func (d *stubDoc) SetFieldValue(name string, page int, value string) error {
	for _, w := range d.widgets {
		if w.Name == name && w.Page == page {
			d.values[name] = value
			return nil
		}
	}
	return fmt.Errorf("no widget %q on page %d", name, page)
}

func (d *stubDoc) FieldFlags(string, int) (uint32, error)  { return 0, nil }
func (d *stubDoc) SetFieldFlags(string, int, uint32) error { return nil }

func (d *stubDoc) Save(w io.Writer) error {
	_, err := io.WriteString(w, "%stub\n")
	return err
}

func (d *stubDoc) Close() error { return nil }

type stubTemplate struct {
	widgets []document.Widget
}

func (t *stubTemplate) Name() string { return "stub" }

func (t *stubTemplate) Open() (document.Document, error) {
	return &stubDoc{widgets: t.widgets, values: make(map[string]string)}, nil
}

func newDispatcher(t *testing.T, store credits.Store) (*Dispatcher, *progress.Registry) {
	t.Helper()
	registry := progress.NewRegistry()
	engine := fill.NewEngine(t.TempDir(), zap.NewNop())
	return NewDispatcher(engine, store, registry, 4, zap.NewNop()), registry
}

func textTemplate() *stubTemplate {
	return &stubTemplate{widgets: []document.Widget{
		{Name: "Name", Type: document.FieldTypeText, Page: 1},
		{Name: "Amount", Type: document.FieldTypeText, Page: 1},
	}}
}

func TestDispatcherRunMeteredBatch(t *testing.T) {
	store := credits.NewMemStore(map[string]credits.Balances{
		"u1": {MonthlyUsed: 10},
	})
	d, registry := newDispatcher(t, store)

	out := d.Run(context.Background(), Job{
		UserID:           "u1",
		Template:         textTemplate(),
		DataName:         "batch.csv",
		Data:             []byte("Name,Amount,Filename\nAlice,12.0,a.pdf\nBob,7,b.pdf\n"),
		MonthlyAllowance: 100,
		OutputDir:        t.TempDir(),
	})
	require.NoError(t, out.Err)

	assert.Equal(t, 2, out.Result.Successful)
	assert.Zero(t, out.Result.Failed)
	assert.Equal(t, credits.Split{Subscription: 2}, out.Split)
	assert.NotEmpty(t, out.Result.ArchivePath)

	b, err := store.Balances(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(12), b.MonthlyUsed)
	assert.Equal(t, int64(2), b.LifetimeUsed)
	assert.Equal(t, int64(1), b.JobCount)

	s, ok := registry.Get(out.JobID)
	require.True(t, ok)
	assert.Equal(t, progress.StatusCompleted, s.Status)
	assert.Equal(t, 2, s.Current)
}

func TestDispatcherInsufficientCreditsBlocksBatch(t *testing.T) {
	store := credits.NewMemStore(map[string]credits.Balances{
		"u1": {MonthlyUsed: 95, Rollover: 10, Topup: 5},
	})
	d, registry := newDispatcher(t, store)

	out := d.Run(context.Background(), Job{
		UserID:           "u1",
		Template:         textTemplate(),
		DataName:         "batch.csv",
		Data:             csvRows(t, 20),
		MonthlyAllowance: 100,
		OutputDir:        t.TempDir(),
	})
	require.Error(t, out.Err)
	assert.ErrorIs(t, out.Err, credits.ErrInsufficientCredits)

	// No partial spend and no documents produced.
	b, err := store.Balances(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, credits.Balances{MonthlyUsed: 95, Rollover: 10, Topup: 5}, b)
	assert.Zero(t, out.Result.Total)

	s, ok := registry.Get(out.JobID)
	require.True(t, ok)
	assert.Equal(t, progress.StatusFailed, s.Status)
}

func TestDispatcherPreCheckRunsOnRowCount(t *testing.T) {
	store := credits.NewMemStore(map[string]credits.Balances{
		"u1": {MonthlyUsed: 95, Rollover: 10, Topup: 5},
	})
	d, _ := newDispatcher(t, store)

	// The trailing short row would fail the full parse, but the job is
	// rejected on the cheap row count before any row is materialized.
	data := append(csvRows(t, 20), []byte("short\n")...)

	out := d.Run(context.Background(), Job{
		UserID:           "u1",
		Template:         textTemplate(),
		DataName:         "batch.csv",
		Data:             data,
		MonthlyAllowance: 100,
		OutputDir:        t.TempDir(),
	})
	require.Error(t, out.Err)
	assert.ErrorIs(t, out.Err, credits.ErrInsufficientCredits)
	assert.NotErrorIs(t, out.Err, rowdata.ErrMalformedInput)
}

func TestDispatcherMalformedInput(t *testing.T) {
	store := credits.NewMemStore(map[string]credits.Balances{"u1": {}})
	d, _ := newDispatcher(t, store)

	out := d.Run(context.Background(), Job{
		UserID:           "u1",
		Template:         textTemplate(),
		DataName:         "batch.csv",
		Data:             []byte("Name,Amount,Filename\nAlice,1\n"),
		MonthlyAllowance: 100,
	})
	require.Error(t, out.Err)
	assert.ErrorIs(t, out.Err, rowdata.ErrMalformedInput)
}

func TestDispatcherRunAllIndependentUsers(t *testing.T) {
	store := credits.NewMemStore(map[string]credits.Balances{
		"u1": {}, "u2": {},
	})
	d, _ := newDispatcher(t, store)

	jobs := []Job{
		{
			UserID: "u1", Template: textTemplate(), DataName: "a.csv",
			Data:             []byte("Name,Filename\nAlice,a.pdf\n"),
			MonthlyAllowance: 10, OutputDir: t.TempDir(),
		},
		{
			UserID: "u2", Template: textTemplate(), DataName: "b.csv",
			Data:             []byte("Name,Filename\nBob,b.pdf\n"),
			MonthlyAllowance: 10, OutputDir: t.TempDir(),
		},
		{
			UserID: "u1", Template: textTemplate(), DataName: "c.csv",
			Data:             []byte("Name,Filename\nCara,c.pdf\n"),
			MonthlyAllowance: 10, OutputDir: t.TempDir(),
		},
	}

	outcomes := d.RunAll(context.Background(), jobs)
	require.Len(t, outcomes, 3)
	for i, out := range outcomes {
		assert.NoError(t, out.Err, "job %d", i)
		assert.Equal(t, 1, out.Result.Successful, "job %d", i)
	}

	// u1 ran two serialized jobs, u2 one.
	b1, err := store.Balances(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), b1.MonthlyUsed)
	assert.Equal(t, int64(2), b1.JobCount)

	b2, err := store.Balances(context.Background(), "u2")
	require.NoError(t, err)
	assert.Equal(t, int64(1), b2.MonthlyUsed)
}

func csvRows(t *testing.T, n int) []byte {
	t.Helper()
	data := "Name,Amount,Filename\n"
	for i := 0; i < n; i++ {
		data += fmt.Sprintf("user%d,%d,out%d.pdf\n", i, i, i)
	}
	return []byte(data)
}
