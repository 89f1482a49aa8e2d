package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"storeledger/internal/core/clock"
	"storeledger/internal/core/entity"
	"storeledger/internal/core/id"
	"storeledger/internal/core/tx"
)

const (
	stockBalancesTable   = "stock_balances"
	movementHeadersTable = "movement_headers"
	movementLinesTable   = "movement_lines"
	countHeadersTable    = "count_headers"
	countLinesTable      = "count_lines"
	outboxTable          = "sys_outbox"
)

var (
	stockColumns       = ExtractDBColumns[entity.StockBalance]()
	movementColumns    = ExtractDBColumns[entity.MovementHeader]()
	movementLineCols   = ExtractDBColumns[entity.MovementLine]()
	countColumns       = ExtractDBColumns[entity.CountHeader]()
	countLineColumns   = ExtractDBColumns[entity.CountLine]()
	movementKeyColumns = []string{"kind", "store_id", "movement_number"}
	lineKeyColumns     = []string{"kind", "store_id", "movement_number", "product_id"}
)

// Txn is one serializable transaction. It implements tx.Transaction.
type Txn struct {
	tx      pgx.Tx
	builder squirrel.StatementBuilderType
	audit   *Auditor
	clock   clock.Clock

	span     trace.Span
	spanOnce sync.Once
}

func (t *Txn) fail(op string, err error) error {
	if errors.Is(err, pgx.ErrTxClosed) {
		return tx.ErrTxDone
	}
	return mapError(fmt.Errorf("%s: %w", op, err))
}

func (t *Txn) exec(ctx context.Context, op string, q squirrel.Sqlizer) error {
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build %s: %w", op, err)
	}
	if _, err := t.tx.Exec(ctx, sql, args...); err != nil {
		return t.fail(op, err)
	}
	return nil
}

// --- stock ---

// GetStock implements tx.StockScope.
func (t *Txn) GetStock(ctx context.Context, key entity.StockKey) (entity.StockBalance, bool, error) {
	q := t.builder.Select(stockColumns...).
		From(stockBalancesTable).
		Where(squirrel.Eq{"store_id": key.StoreID, "product_id": key.ProductID})

	sql, args, err := q.ToSql()
	if err != nil {
		return entity.StockBalance{}, false, fmt.Errorf("build query: %w", err)
	}

	var bal entity.StockBalance
	if err := pgxscan.Get(ctx, t.tx, &bal, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return entity.StockBalance{StoreID: key.StoreID, ProductID: key.ProductID}, false, nil
		}
		return entity.StockBalance{}, false, t.fail("get stock", err)
	}
	return bal, true, nil
}

// ListStock implements tx.StockScope.
func (t *Txn) ListStock(ctx context.Context, storeID string) ([]entity.StockBalance, error) {
	q := t.builder.Select(stockColumns...).
		From(stockBalancesTable).
		Where(squirrel.Eq{"store_id": storeID}).
		OrderBy("product_id")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var out []entity.StockBalance
	if err := pgxscan.Select(ctx, t.tx, &out, sql, args...); err != nil {
		return nil, t.fail("list stock", err)
	}
	return out, nil
}

// ApplyStockDelta implements tx.StockScope with a single upsert, so the
// counter row is created at zero plus delta when missing.
func (t *Txn) ApplyStockDelta(ctx context.Context, key entity.StockKey, delta int64) error {
	q := t.builder.Insert(stockBalancesTable).
		Columns("store_id", "product_id", "quantity", "updated_at").
		Values(key.StoreID, key.ProductID, delta, t.clock.Now().UTC()).
		Suffix("ON CONFLICT (store_id, product_id) DO UPDATE SET " +
			"quantity = " + stockBalancesTable + ".quantity + EXCLUDED.quantity, " +
			"updated_at = EXCLUDED.updated_at")
	return t.exec(ctx, "apply stock delta", q)
}

// --- movements ---

func movementWhere(ref entity.MovementRef) squirrel.Eq {
	return squirrel.Eq{"kind": ref.Kind, "store_id": ref.StoreID, "movement_number": ref.Number}
}

// GetMovement implements tx.MovementScope.
func (t *Txn) GetMovement(ctx context.Context, ref entity.MovementRef) (*entity.MovementHeader, error) {
	q := t.builder.Select(movementColumns...).
		From(movementHeadersTable).
		Where(movementWhere(ref))

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var h entity.MovementHeader
	if err := pgxscan.Get(ctx, t.tx, &h, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, nil
		}
		return nil, t.fail("get movement", err)
	}
	return &h, nil
}

// GetMovementLines implements tx.MovementScope.
func (t *Txn) GetMovementLines(ctx context.Context, ref entity.MovementRef) ([]entity.MovementLine, error) {
	q := t.builder.Select(movementLineCols...).
		From(movementLinesTable).
		Where(movementWhere(ref)).
		OrderBy("product_id")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var lines []entity.MovementLine
	if err := pgxscan.Select(ctx, t.tx, &lines, sql, args...); err != nil {
		return nil, t.fail("get movement lines", err)
	}
	return lines, nil
}

// PutMovement implements tx.MovementScope.
func (t *Txn) PutMovement(ctx context.Context, header *entity.MovementHeader) error {
	q := t.builder.Insert(movementHeadersTable).
		SetMap(StructToMap(header)).
		Suffix(upsertSuffix(movementKeyColumns, movementColumns))
	return t.exec(ctx, "put movement", q)
}

// PutMovementLine implements tx.MovementScope.
func (t *Txn) PutMovementLine(ctx context.Context, ref entity.MovementRef, line entity.MovementLine) error {
	data := StructToMap(line)
	data["kind"] = ref.Kind
	data["store_id"] = ref.StoreID
	data["movement_number"] = ref.Number

	q := t.builder.Insert(movementLinesTable).
		SetMap(data).
		Suffix(upsertSuffix(lineKeyColumns, movementLineCols))
	return t.exec(ctx, "put movement line", q)
}

// DeleteMovementLine implements tx.MovementScope.
func (t *Txn) DeleteMovementLine(ctx context.Context, ref entity.MovementRef, productID string) error {
	where := movementWhere(ref)
	where["product_id"] = productID
	return t.exec(ctx, "delete movement line", t.builder.Delete(movementLinesTable).Where(where))
}

// --- inventory counts ---

// GetCount implements tx.CountScope.
func (t *Txn) GetCount(ctx context.Context, countID id.ID) (*entity.CountHeader, error) {
	q := t.builder.Select(countColumns...).
		From(countHeadersTable).
		Where(squirrel.Eq{"id": countID})

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var h entity.CountHeader
	if err := pgxscan.Get(ctx, t.tx, &h, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, nil
		}
		return nil, t.fail("get count", err)
	}
	return &h, nil
}

// GetCountLines implements tx.CountScope.
func (t *Txn) GetCountLines(ctx context.Context, countID id.ID) ([]entity.CountLine, error) {
	q := t.builder.Select(countLineColumns...).
		From(countLinesTable).
		Where(squirrel.Eq{"count_id": countID}).
		OrderBy("product_id")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var lines []entity.CountLine
	if err := pgxscan.Select(ctx, t.tx, &lines, sql, args...); err != nil {
		return nil, t.fail("get count lines", err)
	}
	return lines, nil
}

// PutCount implements tx.CountScope.
func (t *Txn) PutCount(ctx context.Context, header *entity.CountHeader) error {
	q := t.builder.Insert(countHeadersTable).
		SetMap(StructToMap(header)).
		Suffix(upsertSuffix([]string{"id"}, countColumns))
	return t.exec(ctx, "put count", q)
}

// ReplaceCountLines implements tx.CountScope. The new set is written with
// COPY.
func (t *Txn) ReplaceCountLines(ctx context.Context, countID id.ID, lines []entity.CountLine) error {
	if err := t.exec(ctx, "clear count lines", t.builder.Delete(countLinesTable).Where(squirrel.Eq{"count_id": countID})); err != nil {
		return err
	}
	if len(lines) == 0 {
		return nil
	}

	columns := append([]string{"count_id"}, countLineColumns...)
	rows := make([][]any, 0, len(lines))
	for _, l := range lines {
		rows = append(rows, []any{countID, l.ProductID, l.ProductName, l.Stock, l.Quantity, l.CountedAt})
	}
	if _, err := copyFromSlice(ctx, t.tx, countLinesTable, columns, rows); err != nil {
		return t.fail("copy count lines", err)
	}
	return nil
}

// DeleteCount implements tx.CountScope.
func (t *Txn) DeleteCount(ctx context.Context, countID id.ID) error {
	if err := t.exec(ctx, "delete count lines", t.builder.Delete(countLinesTable).Where(squirrel.Eq{"count_id": countID})); err != nil {
		return err
	}
	return t.exec(ctx, "delete count", t.builder.Delete(countHeadersTable).Where(squirrel.Eq{"id": countID}))
}

// --- outbox ---

// Enqueue implements tx.OutboxScope. A commit event is also written to the
// audit trail in the same transaction.
func (t *Txn) Enqueue(ctx context.Context, event entity.OutboxEvent) error {
	if id.IsNil(event.ID) {
		event.ID = id.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = t.clock.Now().UTC()
	}

	q := t.builder.Insert(outboxTable).
		Columns("id", "aggregate_type", "aggregate_id", "event_type", "payload", "status", "created_at").
		Values(event.ID, event.AggregateType, event.AggregateID, event.EventType, event.Payload, entity.OutboxStatusPending, event.CreatedAt)
	if err := t.exec(ctx, "insert outbox message", q); err != nil {
		return err
	}

	if event.EventType == entity.EventMovementCommitted {
		if err := t.audit.Record(ctx, t.tx, auditCommit(event)); err != nil {
			return t.fail("audit commit", err)
		}
	}
	return nil
}

// --- lifecycle ---

// Commit implements tx.Transaction.
func (t *Txn) Commit(ctx context.Context) error {
	err := t.tx.Commit(ctx)
	t.endSpan(err)
	if err != nil {
		return t.fail("commit transaction", err)
	}
	return nil
}

// Rollback implements tx.Transaction.
func (t *Txn) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	t.endSpan(nil)
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("rollback transaction: %w", err)
	}
	return nil
}

func (t *Txn) endSpan(err error) {
	t.spanOnce.Do(func() {
		if err != nil {
			t.span.RecordError(err)
			t.span.SetStatus(codes.Error, err.Error())
		}
		t.span.End()
	})
}

// upsertSuffix builds ON CONFLICT (keys) DO UPDATE SET for every column
// that is not part of the key.
func upsertSuffix(keys, columns []string) string {
	isKey := make(map[string]bool, len(keys))
	for _, k := range keys {
		isKey[k] = true
	}
	sets := make([]string, 0, len(columns))
	for _, c := range columns {
		if !isKey[c] {
			sets = append(sets, c+" = EXCLUDED."+c)
		}
	}
	return "ON CONFLICT (" + strings.Join(keys, ", ") + ") DO UPDATE SET " + strings.Join(sets, ", ")
}

var _ tx.Transaction = (*Txn)(nil)
