// Package jobs composes the full metered batch flow: parse input, verify
// credits, fill documents, commit the consumption split.
//
// Independent batches run in parallel; jobs for the same user are
// serialized so the credit waterfall never runs on a stale balance.
package jobs

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/acrofill/acrofill/internal/credits"
	"github.com/acrofill/acrofill/internal/fill"
	"github.com/acrofill/acrofill/internal/progress"
	"github.com/acrofill/acrofill/internal/rowdata"
)

// Job is one metered batch request.
type Job struct {
	UserID   string
	Template fill.TemplateOpener
	// DataName selects the tabular parser by extension; Data is the raw
	// uploaded bytes.
	DataName string
	Data     []byte
	// MonthlyAllowance comes from the user's subscription tier.
	MonthlyAllowance int64
	OutputDir        string
	// NamePattern optionally derives output names for rows without a
	// Filename cell.
	NamePattern string
}

// Outcome is the terminal state of one job.
type Outcome struct {
	JobID  string
	Result fill.Result
	Split  credits.Split
	Err    error
}

// Dispatcher runs jobs with a bounded degree of parallelism.
type Dispatcher struct {
	engine   *fill.Engine
	store    credits.Store
	locker   *credits.Locker
	registry *progress.Registry
	logger   *zap.Logger
	limit    int
}

// NewDispatcher wires the batch engine to the credit store and progress
// registry. limit bounds how many batches run at once; values below one
// mean unbounded.
func NewDispatcher(engine *fill.Engine, store credits.Store, registry *progress.Registry, limit int, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		engine:   engine,
		store:    store,
		locker:   credits.NewLocker(),
		registry: registry,
		logger:   logger,
		limit:    limit,
	}
}

// RunAll executes every job and returns one outcome per job, in input
// order. A failed job never prevents the others from running.
func (d *Dispatcher) RunAll(ctx context.Context, jobs []Job) []Outcome {
	outcomes := make([]Outcome, len(jobs))

	g, ctx := errgroup.WithContext(ctx)
	if d.limit > 0 {
		g.SetLimit(d.limit)
	}
	for i, job := range jobs {
		g.Go(func() error {
			outcomes[i] = d.Run(ctx, job)
			return nil
		})
	}
	_ = g.Wait() // job errors are carried in their outcomes
	return outcomes
}

// Run executes one job end to end. The per-user lock is held from the
// balance read through the final apply, so the check never acts on a stale
// balance.
func (d *Dispatcher) Run(ctx context.Context, job Job) Outcome {
	out := Outcome{JobID: d.registry.Create()}

	// The affordability check charges by row count, so the rows are counted
	// cheaply up front; the full parse runs only for an admitted job.
	count, err := rowdata.CountRows(job.DataName, job.Data)
	if err != nil {
		return d.fail(out, err)
	}
	if count == 0 {
		return d.fail(out, fill.ErrNoRows)
	}
	namer, err := rowdata.CompileNamePattern(job.NamePattern)
	if err != nil {
		return d.fail(out, err)
	}

	required := int64(count)
	ledger := credits.Ledger{MonthlyAllowance: job.MonthlyAllowance}

	unlock := d.locker.Lock(job.UserID)
	defer unlock()

	balances, err := d.store.Balances(ctx, job.UserID)
	if err != nil {
		return d.fail(out, err)
	}
	av := ledger.Check(balances, required)
	if !av.Sufficient {
		return d.fail(out, fmt.Errorf("%w: required %d, available %d",
			credits.ErrInsufficientCredits, required, av.TotalAvailable))
	}

	rows, err := rowdata.Parse(job.DataName, job.Data)
	if err != nil {
		return d.fail(out, err)
	}

	result, err := d.engine.Run(ctx, job.Template, rows, fill.RunOptions{
		SessionID: out.JobID,
		OutputDir: job.OutputDir,
		Namer:     namer,
		Progress: func(p fill.Progress) {
			d.registry.Update(out.JobID, progress.Snapshot{
				Current:            p.Current,
				Total:              p.Total,
				Successful:         p.Successful,
				Failed:             p.Failed,
				CurrentFile:        p.CurrentFile,
				Elapsed:            p.Elapsed,
				EstimatedRemaining: p.EstimatedRemaining,
			})
		},
	})
	out.Result = result
	if err != nil {
		return d.fail(out, err)
	}

	// The job consumed its full row count; the split was verified above, so
	// allocation cannot fail unless the balance changed under the lock.
	split, err := ledger.Allocate(balances, required)
	if err != nil {
		return d.fail(out, err)
	}
	if err := d.store.Apply(ctx, job.UserID, split); err != nil {
		return d.fail(out, err)
	}
	out.Split = split

	d.registry.Complete(out.JobID, progress.StatusCompleted)
	d.logger.Info("job completed",
		zap.String("job_id", out.JobID),
		zap.String("user_id", job.UserID),
		zap.Int("successful", result.Successful),
		zap.Int("failed", result.Failed),
		zap.Int64("credits", required))
	return out
}

func (d *Dispatcher) fail(out Outcome, err error) Outcome {
	out.Err = err
	d.registry.Complete(out.JobID, progress.StatusFailed)
	d.logger.Error("job failed", zap.String("job_id", out.JobID), zap.Error(err))
	return out
}
