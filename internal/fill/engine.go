package fill

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/acrofill/acrofill/internal/document"
	"github.com/acrofill/acrofill/internal/rowdata"
)

// ErrNoRows indicates a batch was started with an empty record set.
var ErrNoRows = errors.New("no data rows to process")

// Progress is the state reported to the caller after each row.
type Progress struct {
	Current            int
	Total              int
	Successful         int
	Failed             int
	CurrentFile        string
	Elapsed            time.Duration
	EstimatedRemaining time.Duration
}

// ProgressFunc receives a Progress snapshot after every processed row.
type ProgressFunc func(Progress)

// Result is the outcome of one batch. A batch is complete even with
// partial success; per-row failures are listed in Errors.
type Result struct {
	Total       int
	Successful  int
	Failed      int
	Errors      []string
	ArchivePath string
	Elapsed     time.Duration
}

// RunOptions configures a single batch run.
type RunOptions struct {
	// SessionID names the work area and the archive. Generated when empty.
	SessionID string
	// OutputDir receives the final archive.
	OutputDir string
	// Namer resolves output names for rows without a Filename cell.
	Namer *rowdata.NamePattern
	// Progress, when set, is called after each row.
	Progress ProgressFunc
}

// TemplateOpener yields independent parsed copies of one template. Each
// Open call must return a document with no shared mutable state with any
// previously opened one. *document.Template satisfies this.
type TemplateOpener interface {
	Name() string
	Open() (document.Document, error)
}

// Engine processes batches of records against a template, one row at a
// time, in input order.
type Engine struct {
	workDir string
	logger  *zap.Logger
}

// NewEngine returns an engine writing per-row intermediates under workDir.
func NewEngine(workDir string, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{workDir: workDir, logger: logger}
}

// Run fills one output document per record and bundles the successes into a
// single archive. Individual row failures are recorded and never abort the
// batch; only setup problems (unreadable template, zero rows) or a
// cancelled context return an error before completion.
func (e *Engine) Run(ctx context.Context, tmpl TemplateOpener, rows []rowdata.Record, opts RunOptions) (Result, error) {
	var res Result
	if tmpl == nil {
		return res, &document.Error{Op: "run", Err: document.ErrTemplate}
	}
	if len(rows) == 0 {
		return res, ErrNoRows
	}

	sessionID := opts.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	sessionDir := filepath.Join(e.workDir, sessionID)
	if err := os.MkdirAll(sessionDir, 0o750); err != nil {
		return res, fmt.Errorf("creating work area: %w", err)
	}

	res.Total = len(rows)
	start := time.Now()
	var outputs []string

	for i, rec := range rows {
		// Cancellation stops before the next row, never mid-write. A
		// cancelled batch delivers nothing, so its work area goes too.
		if err := ctx.Err(); err != nil {
			res.Elapsed = time.Since(start)
			if rmErr := os.RemoveAll(sessionDir); rmErr != nil {
				e.logger.Warn("failed to remove work area", zap.String("dir", sessionDir), zap.Error(rmErr))
			}
			return res, err
		}

		name, err := e.processRow(tmpl, rec, i+1, sessionDir, opts.Namer)
		if err != nil {
			res.Failed++
			msg := fmt.Sprintf("row %d: %v", i+1, err)
			res.Errors = append(res.Errors, msg)
			e.logger.Error("row failed", zap.Int("row", i+1), zap.Error(err))
		} else {
			res.Successful++
			outputs = append(outputs, name)
			e.logger.Info("row completed",
				zap.Int("row", i+1),
				zap.Int("total", res.Total),
				zap.String("output", name))
		}

		if opts.Progress != nil {
			elapsed := time.Since(start)
			current := i + 1
			opts.Progress(Progress{
				Current:            current,
				Total:              res.Total,
				Successful:         res.Successful,
				Failed:             res.Failed,
				CurrentFile:        name,
				Elapsed:            elapsed,
				EstimatedRemaining: elapsed * time.Duration(res.Total-current) / time.Duration(current),
			})
		}
	}

	res.Elapsed = time.Since(start)

	if res.Successful > 0 {
		archivePath, err := e.bundle(sessionDir, outputs, sessionID, tmpl.Name(), opts.OutputDir)
		if err != nil {
			// Bundling failed but the generated documents are intact, so the
			// work area is kept.
			return res, err
		}
		res.ArchivePath = archivePath
	}

	if err := os.RemoveAll(sessionDir); err != nil {
		e.logger.Warn("failed to remove work area", zap.String("dir", sessionDir), zap.Error(err))
	}
	return res, nil
}

// processRow fills one output document: discover updates against a pristine
// snapshot, apply them to an independent copy, save. Returns the output
// file name. Both documents are released on every exit path.
func (e *Engine) processRow(tmpl TemplateOpener, rec rowdata.Record, rowNum int, sessionDir string, namer *rowdata.NamePattern) (string, error) {
	name, err := namer.OutputName(rec, rowNum)
	if err != nil {
		return "", err
	}

	// Discovery phase: read the widget set from a fresh snapshot. The index
	// is rebuilt per row and never persisted across rows.
	snapshot, err := tmpl.Open()
	if err != nil {
		return name, err
	}
	widgets, err := snapshot.Widgets()
	closeErr := snapshot.Close()
	if err != nil {
		return name, err
	}
	if closeErr != nil {
		e.logger.Warn("snapshot close failed", zap.Error(closeErr))
	}

	plan, err := BuildPlan(BuildIndex(widgets), rec)
	if err != nil {
		return name, err
	}
	if len(plan.Unmatched) > 0 {
		e.logger.Warn("columns without matching fields",
			zap.Int("row", rowNum),
			zap.Strings("columns", plan.Unmatched))
	}

	// Apply phase: an independently opened copy, so widget writes cannot
	// interfere with the snapshot the plan was read from.
	doc, err := tmpl.Open()
	if err != nil {
		return name, err
	}
	defer doc.Close()

	ApplyPlan(doc, plan, e.logger)

	outPath := filepath.Join(sessionDir, name)
	f, err := os.Create(outPath)
	if err != nil {
		return name, fmt.Errorf("creating output: %w", err)
	}
	if err := doc.Save(f); err != nil {
		f.Close()
		os.Remove(outPath)
		return name, fmt.Errorf("saving output: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(outPath)
		return name, fmt.Errorf("closing output: %w", err)
	}
	return name, nil
}
