// Package stock provides the per-store, per-product stock counters.
//
// Counters change only through ApplyDelta inside a transaction. There is
// no way to overwrite a quantity; a counter that does not exist reads as
// zero and is created at zero by its first delta.
package stock

import (
	"context"
	"errors"
	"fmt"

	"storeledger/internal/core/apperror"
	"storeledger/internal/core/entity"
	"storeledger/internal/core/tx"
)

// ErrNoTransaction is returned when ApplyDelta is called without an
// active transaction.
var ErrNoTransaction = errors.New("stock: delta applied outside a transaction")

// Store reads and adjusts stock counters.
type Store struct {
	txs tx.Store
}

// NewStore creates a stock store on top of txs. Reads outside a
// transaction open a short one of their own.
func NewStore(txs tx.Store) *Store {
	return &Store{txs: txs}
}

// Get returns the current quantity, 0 if the counter does not exist.
func (s *Store) Get(ctx context.Context, storeID, productID string) (int64, error) {
	bal, err := s.Balance(ctx, storeID, productID)
	if err != nil {
		return 0, err
	}
	return bal.Quantity, nil
}

// Balance returns the counter with its update time. A missing counter is
// returned with quantity 0 and a zero UpdatedAt.
func (s *Store) Balance(ctx context.Context, storeID, productID string) (entity.StockBalance, error) {
	key, err := newKey(storeID, productID)
	if err != nil {
		return entity.StockBalance{}, err
	}

	var bal entity.StockBalance
	err = s.read(ctx, func(txn tx.Transaction) error {
		var readErr error
		bal, readErr = balance(ctx, txn, key)
		return readErr
	})
	return bal, err
}

// GetTx reads a counter inside txn so the value takes part in the
// transaction's conflict detection.
func (s *Store) GetTx(ctx context.Context, txn tx.StockScope, storeID, productID string) (int64, error) {
	if txn == nil {
		return 0, ErrNoTransaction
	}
	key, err := newKey(storeID, productID)
	if err != nil {
		return 0, err
	}
	bal, err := balance(ctx, txn, key)
	if err != nil {
		return 0, err
	}
	return bal.Quantity, nil
}

// ApplyDelta adds delta to the counter inside txn. A zero delta is a no-op.
func (s *Store) ApplyDelta(ctx context.Context, txn tx.StockScope, storeID, productID string, delta int64) error {
	if txn == nil {
		return ErrNoTransaction
	}
	key, err := newKey(storeID, productID)
	if err != nil {
		return err
	}
	if delta == 0 {
		return nil
	}
	if err := txn.ApplyStockDelta(ctx, key, delta); err != nil {
		return fmt.Errorf("apply delta %d to %s: %w", delta, key, err)
	}
	return nil
}

// List returns every counter of a store ordered by product.
func (s *Store) List(ctx context.Context, storeID string) ([]entity.StockBalance, error) {
	if storeID == "" {
		return nil, apperror.NewValidation("store id is required").WithDetail("field", "storeId")
	}

	var out []entity.StockBalance
	err := s.read(ctx, func(txn tx.Transaction) error {
		var listErr error
		out, listErr = txn.ListStock(ctx, storeID)
		return listErr
	})
	return out, err
}

// read runs fn in a transaction that is always rolled back.
func (s *Store) read(ctx context.Context, fn func(txn tx.Transaction) error) error {
	txn, err := s.txs.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin read: %w", err)
	}
	defer func() { _ = txn.Rollback(context.Background()) }()
	return fn(txn)
}

func balance(ctx context.Context, txn tx.StockScope, key entity.StockKey) (entity.StockBalance, error) {
	bal, ok, err := txn.GetStock(ctx, key)
	if err != nil {
		return entity.StockBalance{}, fmt.Errorf("read stock %s: %w", key, err)
	}
	if !ok {
		return entity.StockBalance{StoreID: key.StoreID, ProductID: key.ProductID}, nil
	}
	return bal, nil
}

func newKey(storeID, productID string) (entity.StockKey, error) {
	if storeID == "" {
		return entity.StockKey{}, apperror.NewValidation("store id is required").WithDetail("field", "storeId")
	}
	if productID == "" {
		return entity.StockKey{}, apperror.NewValidation("product id is required").WithDetail("field", "productId")
	}
	return entity.StockKey{StoreID: storeID, ProductID: productID}, nil
}
