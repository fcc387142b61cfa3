// Package credits meters batch jobs against a user's layered balances.
//
// Three sources fund a job, in strict precedence: the monthly subscription
// allowance, rollover credits carried from earlier periods, then top-up
// credits. Check and Allocate are pure; Apply is the only mutation and
// updates every balance field together.
package credits

import (
	"errors"
	"fmt"
)

// ErrInsufficientCredits is returned when a job's cost exceeds the total
// available balance. The batch must not start.
var ErrInsufficientCredits = errors.New("insufficient credits")

// Balances is one user's credit state. All balances are non-negative at
// rest; MonthlyUsed may exceed the tier allowance since it records total
// consumption, overage included, for audit visibility.
type Balances struct {
	MonthlyUsed  int64
	Rollover     int64
	Topup        int64
	LifetimeUsed int64
	JobCount     int64
}

// Availability is Check's breakdown of what a job can draw on.
type Availability struct {
	MonthlyAvailable   int64
	RolloverAvailable  int64
	TopupAvailable     int64
	TotalAvailable     int64
	MonthlyExhausted   bool
	WouldExceedMonthly bool
	Sufficient         bool
}

// Split is the consumption breakdown for one job, by source.
type Split struct {
	Subscription int64
	Rollover     int64
	Topup        int64
}

// Total is the job cost the split covers.
func (s Split) Total() int64 { return s.Subscription + s.Rollover + s.Topup }

// Ledger computes availability and consumption splits against a tier's
// monthly allowance. The zero value is a tier with no allowance.
type Ledger struct {
	MonthlyAllowance int64
}

// Check reports whether required credits are covered and how. When the
// monthly allowance is exhausted, or the job would push usage past it,
// monthly credits are excluded entirely: a job never partially draws on
// the allowance across the boundary.
func (l Ledger) Check(b Balances, required int64) Availability {
	av := Availability{
		RolloverAvailable: b.Rollover,
		TopupAvailable:    b.Topup,
	}
	av.MonthlyAvailable = l.MonthlyAllowance - b.MonthlyUsed
	if av.MonthlyAvailable < 0 {
		av.MonthlyAvailable = 0
	}
	av.MonthlyExhausted = b.MonthlyUsed >= l.MonthlyAllowance
	av.WouldExceedMonthly = b.MonthlyUsed+required > l.MonthlyAllowance

	if av.MonthlyExhausted || av.WouldExceedMonthly {
		av.TotalAvailable = b.Rollover + b.Topup
	} else {
		av.TotalAvailable = av.MonthlyAvailable + b.Rollover + b.Topup
	}
	av.Sufficient = av.TotalAvailable >= required
	return av
}

// Allocate computes the consumption split for a job that Check reported
// sufficient. Monthly funds the whole job when it fits; otherwise rollover
// is drained first and top-up covers the remainder. Pure, no mutation.
func (l Ledger) Allocate(b Balances, required int64) (Split, error) {
	av := l.Check(b, required)
	if !av.Sufficient {
		return Split{}, fmt.Errorf("%w: required %d, available %d (monthly %d, rollover %d, top-up %d)",
			ErrInsufficientCredits, required, av.TotalAvailable,
			av.MonthlyAvailable, av.RolloverAvailable, av.TopupAvailable)
	}

	var split Split
	if av.MonthlyExhausted || av.WouldExceedMonthly {
		split.Rollover = min(required, b.Rollover)
		split.Topup = required - split.Rollover
	} else {
		split.Subscription = required
	}
	return split, nil
}

// Apply commits a consumption split to the balances. MonthlyUsed and
// LifetimeUsed grow by the split total regardless of source; rollover and
// top-up are debited with a floor at zero. All five fields update together;
// callers provide the per-user serialization.
func Apply(b *Balances, split Split) {
	total := split.Total()
	b.MonthlyUsed += total
	b.Rollover -= split.Rollover
	if b.Rollover < 0 {
		b.Rollover = 0
	}
	b.Topup -= split.Topup
	if b.Topup < 0 {
		b.Topup = 0
	}
	b.LifetimeUsed += total
	b.JobCount++
}
