// Package sequence provides the Sequence Allocator backends.
//
// Every backend hands out strictly increasing numbers per counter. Gaps
// are allowed (a number allocated for a commit that later failed is never
// reused); duplicates are not.
package sequence

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"storeledger/internal/core/numerator"
)

// Querier is the subset of pgxpool.Pool the Postgres allocator needs.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres allocates from the sys_sequences table. Each call is its own
// autocommit statement and never joins a movement transaction.
type Postgres struct {
	db Querier
}

// NewPostgres creates the allocator. db should be the pool, not a tx.
func NewPostgres(db Querier) *Postgres {
	return &Postgres{db: db}
}

// Next implements numerator.Allocator.
func (p *Postgres) Next(ctx context.Context, counter string) (int64, error) {
	return p.Reserve(ctx, counter, 1)
}

// Reserve implements numerator.RangeReserver. It returns the last number
// of the reserved range (last-size, last].
func (p *Postgres) Reserve(ctx context.Context, counter string, size int64) (int64, error) {
	if counter == "" {
		return 0, errors.New("counter name is required")
	}
	if size <= 0 {
		return 0, fmt.Errorf("invalid range size %d", size)
	}

	var last int64
	err := p.db.QueryRow(ctx, `
		INSERT INTO sys_sequences (counter, current_val)
		VALUES ($1, $2)
		ON CONFLICT (counter) DO UPDATE SET current_val = sys_sequences.current_val + $2
		RETURNING current_val
	`, counter, size).Scan(&last)
	if err != nil {
		return 0, fmt.Errorf("advance sequence %s: %w", counter, err)
	}
	return last, nil
}

var (
	_ numerator.Allocator     = (*Postgres)(nil)
	_ numerator.RangeReserver = (*Postgres)(nil)
)
