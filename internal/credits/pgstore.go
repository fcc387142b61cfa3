package credits

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore persists balances in a Postgres user_credits table. Apply runs
// inside one transaction with a row lock, which is the database-side
// serialization for deployments with multiple worker processes, where an
// in-process Locker cannot cover concurrent jobs for the same user.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore wraps a connection pool.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) Balances(ctx context.Context, userID string) (Balances, error) {
	var b Balances
	err := s.pool.QueryRow(ctx,
		`SELECT monthly_used, rollover_balance, topup_balance, lifetime_used, job_count
		   FROM user_credits WHERE user_id = $1`, userID,
	).Scan(&b.MonthlyUsed, &b.Rollover, &b.Topup, &b.LifetimeUsed, &b.JobCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return Balances{}, fmt.Errorf("unknown user %q", userID)
	}
	if err != nil {
		return Balances{}, fmt.Errorf("loading balances: %w", err)
	}
	return b, nil
}

// Apply debits the split against the user's row. The row is locked for the
// duration of the transaction; the debit math runs on the freshly locked
// values, not on whatever the caller read earlier.
func (s *PGStore) Apply(ctx context.Context, userID string, split Split) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var b Balances
	err = tx.QueryRow(ctx,
		`SELECT monthly_used, rollover_balance, topup_balance, lifetime_used, job_count
		   FROM user_credits WHERE user_id = $1 FOR UPDATE`, userID,
	).Scan(&b.MonthlyUsed, &b.Rollover, &b.Topup, &b.LifetimeUsed, &b.JobCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("unknown user %q", userID)
	}
	if err != nil {
		return fmt.Errorf("locking balances: %w", err)
	}

	Apply(&b, split)

	if _, err := tx.Exec(ctx,
		`UPDATE user_credits
		    SET monthly_used = $2, rollover_balance = $3, topup_balance = $4,
		        lifetime_used = $5, job_count = $6
		  WHERE user_id = $1`,
		userID, b.MonthlyUsed, b.Rollover, b.Topup, b.LifetimeUsed, b.JobCount,
	); err != nil {
		return fmt.Errorf("updating balances: %w", err)
	}
	return tx.Commit(ctx)
}
