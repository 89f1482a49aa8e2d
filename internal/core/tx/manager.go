// Package tx defines the transaction contract between the reconciliation
// code and the storage backends.
//
// A Transaction is an explicit object passed to every read and write. The
// backends run it with serializable or optimistic semantics: when another
// transaction has changed something this one read, Commit (or the failing
// statement) returns an apperror conflict and nothing is applied.
package tx

import (
	"context"
	"errors"
	"fmt"

	"storeledger/internal/core/entity"
	"storeledger/internal/core/id"
	"storeledger/pkg/logger"
)

// StockScope reads and changes stock counters.
type StockScope interface {
	// GetStock returns the balance and whether a row exists.
	GetStock(ctx context.Context, key entity.StockKey) (entity.StockBalance, bool, error)

	// ListStock returns every balance of a store ordered by product.
	ListStock(ctx context.Context, storeID string) ([]entity.StockBalance, error)

	// ApplyStockDelta adds delta to the counter, creating it at zero first
	// if it does not exist.
	ApplyStockDelta(ctx context.Context, key entity.StockKey, delta int64) error
}

// MovementScope reads and writes movement headers and lines.
type MovementScope interface {
	// GetMovement returns nil when the header does not exist.
	GetMovement(ctx context.Context, ref entity.MovementRef) (*entity.MovementHeader, error)
	GetMovementLines(ctx context.Context, ref entity.MovementRef) ([]entity.MovementLine, error)
	PutMovement(ctx context.Context, header *entity.MovementHeader) error
	PutMovementLine(ctx context.Context, ref entity.MovementRef, line entity.MovementLine) error
	DeleteMovementLine(ctx context.Context, ref entity.MovementRef, productID string) error
}

// CountScope reads and writes inventory count headers and detail records.
type CountScope interface {
	// GetCount returns nil when the header does not exist.
	GetCount(ctx context.Context, countID id.ID) (*entity.CountHeader, error)
	GetCountLines(ctx context.Context, countID id.ID) ([]entity.CountLine, error)
	PutCount(ctx context.Context, header *entity.CountHeader) error

	// ReplaceCountLines swaps the full set of detail records of a count.
	ReplaceCountLines(ctx context.Context, countID id.ID, lines []entity.CountLine) error

	// DeleteCount removes the header and any detail records.
	DeleteCount(ctx context.Context, countID id.ID) error
}

// OutboxScope queues events that become visible only if the transaction
// commits.
type OutboxScope interface {
	Enqueue(ctx context.Context, event entity.OutboxEvent) error
}

// Transaction is one all-or-nothing unit of work.
type Transaction interface {
	StockScope
	MovementScope
	CountScope
	OutboxScope

	// Commit makes every write visible atomically. A lost optimistic race
	// is reported as an apperror conflict.
	Commit(ctx context.Context) error

	// Rollback discards every write. Safe to call after Commit.
	Rollback(ctx context.Context) error
}

// Store begins transactions.
type Store interface {
	Begin(ctx context.Context) (Transaction, error)
}

// Manager runs a function inside a transaction.
// Domain services depend on this interface, not on a concrete backend.
type Manager interface {
	// RunInTransaction commits when fn returns nil and rolls back otherwise.
	// It never retries; retry policy belongs to the caller.
	RunInTransaction(ctx context.Context, fn func(ctx context.Context, txn Transaction) error) error
}

// StoreManager adapts a Store to the Manager interface.
type StoreManager struct {
	store Store
}

// NewManager wraps store.
func NewManager(store Store) *StoreManager {
	return &StoreManager{store: store}
}

// RunInTransaction implements Manager.
func (m *StoreManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context, txn Transaction) error) error {
	return Run(ctx, m.store, fn)
}

// Run begins a transaction on store, runs fn and commits.
func Run(ctx context.Context, store Store, fn func(ctx context.Context, txn Transaction) error) (err error) {
	txn, err := store.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = txn.Rollback(context.Background())
			panic(p)
		}
	}()

	if err := fn(ctx, txn); err != nil {
		// Rollback with a fresh context so a cancelled request still
		// releases the transaction.
		if rbErr := txn.Rollback(context.Background()); rbErr != nil && !errors.Is(rbErr, ErrTxDone) {
			logger.Error(ctx, "rollback failed", "error", rbErr, "original_error", err)
		}
		return err
	}

	return txn.Commit(ctx)
}

// ErrTxDone is returned by backends when a finished transaction is used.
var ErrTxDone = errors.New("transaction already finished")

var _ Manager = (*StoreManager)(nil)
