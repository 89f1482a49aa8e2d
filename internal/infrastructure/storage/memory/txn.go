package memory

import (
	"context"
	"sort"
	"strings"

	"storeledger/internal/core/apperror"
	"storeledger/internal/core/entity"
	"storeledger/internal/core/id"
	"storeledger/internal/core/tx"
)

type write struct {
	coll    string
	value   any
	deleted bool
}

// Txn is a buffered optimistic transaction.
type Txn struct {
	store  *Store
	reads  map[string]uint64
	writes map[string]*write
	events []entity.OutboxEvent
	done   bool
}

var _ tx.Transaction = (*Txn)(nil)

func conflict(key string) error {
	return apperror.NewConflict("concurrent modification").
		WithDetail("key", strings.ReplaceAll(key, sep, "/"))
}

// get returns the value visible to the transaction, recording the read.
func (t *Txn) get(key string) (any, bool, error) {
	if t.done {
		return nil, false, tx.ErrTxDone
	}
	if w, ok := t.writes[key]; ok {
		if w.deleted {
			return nil, false, nil
		}
		return w.value, true, nil
	}
	v, version := t.store.snapshot(key)
	t.observe(key, version)
	return v, v != nil, nil
}

// list returns the values of a collection in key order, merged with the
// transaction's own writes.
func (t *Txn) list(coll string) ([]any, error) {
	if t.done {
		return nil, tx.ErrTxDone
	}
	keys, values, version := t.store.scan(coll)
	t.observe(collKey(coll), version)

	merged := make(map[string]any, len(keys))
	for _, k := range keys {
		merged[k] = values[k]
	}
	for k, w := range t.writes {
		if w.coll != coll {
			continue
		}
		if w.deleted {
			delete(merged, k)
		} else {
			merged[k] = w.value
		}
	}

	sorted := make([]string, 0, len(merged))
	for k := range merged {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	out := make([]any, 0, len(sorted))
	for _, k := range sorted {
		out = append(out, merged[k])
	}
	return out, nil
}

// observe keeps the first version seen for key.
func (t *Txn) observe(key string, version uint64) {
	if _, seen := t.reads[key]; !seen {
		t.reads[key] = version
	}
}

func (t *Txn) put(coll, key string, value any) error {
	if t.done {
		return tx.ErrTxDone
	}
	t.writes[key] = &write{coll: coll, value: value}
	return nil
}

func (t *Txn) del(coll, key string) error {
	if t.done {
		return tx.ErrTxDone
	}
	t.writes[key] = &write{coll: coll, deleted: true}
	return nil
}

// --- stock ---

// GetStock implements tx.StockScope.
func (t *Txn) GetStock(_ context.Context, key entity.StockKey) (entity.StockBalance, bool, error) {
	v, ok, err := t.get(stockKey(key))
	if err != nil || !ok {
		return entity.StockBalance{}, false, err
	}
	return v.(entity.StockBalance), true, nil
}

// ListStock implements tx.StockScope.
func (t *Txn) ListStock(_ context.Context, storeID string) ([]entity.StockBalance, error) {
	values, err := t.list(stockColl(storeID))
	if err != nil {
		return nil, err
	}
	out := make([]entity.StockBalance, 0, len(values))
	for _, v := range values {
		out = append(out, v.(entity.StockBalance))
	}
	return out, nil
}

// ApplyStockDelta implements tx.StockScope. The read of the current value
// makes concurrent deltas on the same counter conflict at commit.
func (t *Txn) ApplyStockDelta(ctx context.Context, key entity.StockKey, delta int64) error {
	bal, ok, err := t.GetStock(ctx, key)
	if err != nil {
		return err
	}
	if !ok {
		bal = entity.StockBalance{StoreID: key.StoreID, ProductID: key.ProductID}
	}
	bal.Quantity += delta
	bal.UpdatedAt = t.store.now()
	return t.put(stockColl(key.StoreID), stockKey(key), bal)
}

// --- movements ---

// GetMovement implements tx.MovementScope.
func (t *Txn) GetMovement(_ context.Context, ref entity.MovementRef) (*entity.MovementHeader, error) {
	v, ok, err := t.get(movementKey(ref))
	if err != nil || !ok {
		return nil, err
	}
	h := v.(entity.MovementHeader)
	return &h, nil
}

// GetMovementLines implements tx.MovementScope.
func (t *Txn) GetMovementLines(_ context.Context, ref entity.MovementRef) ([]entity.MovementLine, error) {
	values, err := t.list(lineColl(ref))
	if err != nil {
		return nil, err
	}
	out := make([]entity.MovementLine, 0, len(values))
	for _, v := range values {
		out = append(out, v.(entity.MovementLine))
	}
	return out, nil
}

// PutMovement implements tx.MovementScope.
func (t *Txn) PutMovement(_ context.Context, header *entity.MovementHeader) error {
	ref := header.Ref()
	return t.put(join("mv", string(ref.Kind), ref.StoreID), movementKey(ref), *header)
}

// PutMovementLine implements tx.MovementScope.
func (t *Txn) PutMovementLine(_ context.Context, ref entity.MovementRef, line entity.MovementLine) error {
	coll := lineColl(ref)
	return t.put(coll, join(coll, line.ProductID), line)
}

// DeleteMovementLine implements tx.MovementScope.
func (t *Txn) DeleteMovementLine(_ context.Context, ref entity.MovementRef, productID string) error {
	coll := lineColl(ref)
	return t.del(coll, join(coll, productID))
}

// --- counts ---

// GetCount implements tx.CountScope.
func (t *Txn) GetCount(_ context.Context, countID id.ID) (*entity.CountHeader, error) {
	v, ok, err := t.get(countKey(countID))
	if err != nil || !ok {
		return nil, err
	}
	h := v.(entity.CountHeader)
	return &h, nil
}

// GetCountLines implements tx.CountScope.
func (t *Txn) GetCountLines(_ context.Context, countID id.ID) ([]entity.CountLine, error) {
	values, err := t.list(countLineColl(countID))
	if err != nil {
		return nil, err
	}
	out := make([]entity.CountLine, 0, len(values))
	for _, v := range values {
		out = append(out, v.(entity.CountLine))
	}
	return out, nil
}

// PutCount implements tx.CountScope.
func (t *Txn) PutCount(_ context.Context, header *entity.CountHeader) error {
	return t.put("count", countKey(header.ID), *header)
}

// ReplaceCountLines implements tx.CountScope.
func (t *Txn) ReplaceCountLines(ctx context.Context, countID id.ID, lines []entity.CountLine) error {
	existing, err := t.GetCountLines(ctx, countID)
	if err != nil {
		return err
	}
	coll := countLineColl(countID)
	for _, l := range existing {
		if err := t.del(coll, join(coll, l.ProductID)); err != nil {
			return err
		}
	}
	for _, l := range lines {
		if err := t.put(coll, join(coll, l.ProductID), l); err != nil {
			return err
		}
	}
	return nil
}

// DeleteCount implements tx.CountScope.
func (t *Txn) DeleteCount(ctx context.Context, countID id.ID) error {
	if err := t.ReplaceCountLines(ctx, countID, nil); err != nil {
		return err
	}
	return t.del("count", countKey(countID))
}

// --- outbox ---

// Enqueue implements tx.OutboxScope.
func (t *Txn) Enqueue(_ context.Context, event entity.OutboxEvent) error {
	if t.done {
		return tx.ErrTxDone
	}
	if id.IsNil(event.ID) {
		event.ID = id.New()
	}
	t.events = append(t.events, event)
	return nil
}

// --- lifecycle ---

// Commit implements tx.Transaction.
func (t *Txn) Commit(ctx context.Context) error {
	if t.done {
		return tx.ErrTxDone
	}
	if err := ctx.Err(); err != nil {
		t.done = true
		return err
	}
	t.done = true
	return t.store.commit(t)
}

// Rollback implements tx.Transaction.
func (t *Txn) Rollback(context.Context) error {
	if t.done {
		return tx.ErrTxDone
	}
	t.done = true
	t.writes = nil
	t.events = nil
	return nil
}
