// Package inventorycount implements physical inventory counts and their
// two-phase fix/unfix reconciliation into stock.
//
// Starting a count snapshots the theoretical quantities of the store.
// Fixing applies quantity - stock for every counted line; unfixing, only
// on the calendar day of the fix, applies the exact negation of the
// deltas recorded at fix time.
package inventorycount

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"storeledger/internal/core/apperror"
	"storeledger/internal/core/clock"
	"storeledger/internal/core/entity"
	"storeledger/internal/core/id"
	"storeledger/internal/core/tx"
	"storeledger/internal/domain/stock"
	"storeledger/pkg/logger"
)

var tracer = otel.Tracer("storeledger/inventorycount")

// Operation names reported to the Recorder.
const (
	OpStart = "start"
	OpFix   = "fix"
	OpUnfix = "unfix"
)

// Delta is the stock change of one counted line.
type Delta struct {
	ProductID string `json:"productId"`
	Stock     int64  `json:"stock"`
	Quantity  int64  `json:"quantity"`
	Delta     int64  `json:"delta"`
}

// Result is returned by Fix and Unfix.
type Result struct {
	CountID id.ID      `json:"countId"`
	FixedAt *time.Time `json:"fixedAt,omitempty"`
	// Deleted is set when fixing an untouched count removed it instead.
	Deleted bool    `json:"deleted"`
	Deltas  []Delta `json:"deltas"`
	Totals  Totals  `json:"totals"`
}

// Recorder receives count measurements.
type Recorder interface {
	CountObserved(op string, err error)
}

type nopRecorder struct{}

func (nopRecorder) CountObserved(string, error) {}

// Engine runs the count operations.
type Engine struct {
	txm      tx.Manager
	stock    *stock.Store
	clock    clock.Clock
	calendar clock.Calendar
	recorder Recorder
}

// EngineConfig holds the Engine collaborators. Clock defaults to the wall
// clock and Calendar to UTC days.
type EngineConfig struct {
	Tx       tx.Manager
	Stock    *stock.Store
	Clock    clock.Clock
	Calendar clock.Calendar
	Recorder Recorder
}

// NewEngine creates an engine.
func NewEngine(cfg EngineConfig) *Engine {
	e := &Engine{
		txm:      cfg.Tx,
		stock:    cfg.Stock,
		clock:    cfg.Clock,
		calendar: cfg.Calendar,
		recorder: cfg.Recorder,
	}
	if e.clock == nil {
		e.clock = clock.System{}
	}
	if e.recorder == nil {
		e.recorder = nopRecorder{}
	}
	return e
}

// Start snapshots the stock of storeID and persists a new count header.
// A zero date means today.
func (e *Engine) Start(ctx context.Context, storeID string, date time.Time) (c *Count, err error) {
	defer func() { e.recorder.CountObserved(OpStart, err) }()

	if storeID == "" {
		return nil, apperror.NewValidation("store id is required").WithDetail("field", "storeId")
	}
	now := e.clock.Now().UTC()
	if date.IsZero() {
		date = now
	}
	header := entity.CountHeader{
		ID:        id.New(),
		StoreID:   storeID,
		CountDate: e.calendar.Day(date),
		StartedAt: now,
	}

	var lines []entity.CountLine
	err = e.txm.RunInTransaction(ctx, func(ctx context.Context, txn tx.Transaction) error {
		balances, err := txn.ListStock(ctx, storeID)
		if err != nil {
			return fmt.Errorf("list stock: %w", err)
		}
		lines = make([]entity.CountLine, 0, len(balances))
		for _, b := range balances {
			lines = append(lines, entity.CountLine{ProductID: b.ProductID, Stock: b.Quantity})
		}
		return txn.PutCount(ctx, &header)
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "count started", "count_id", header.ID, "store_id", storeID, "lines", len(lines))
	return newCount(header, lines), nil
}

// Load rebuilds a count from storage. Counted quantities that were never
// fixed are not stored and come back uncounted.
func (e *Engine) Load(ctx context.Context, countID id.ID) (*Count, error) {
	var c *Count
	err := e.txm.RunInTransaction(ctx, func(ctx context.Context, txn tx.Transaction) error {
		header, err := txn.GetCount(ctx, countID)
		if err != nil {
			return fmt.Errorf("get count: %w", err)
		}
		if header == nil {
			return apperror.NewNotFound("count", countID)
		}
		lines, err := txn.GetCountLines(ctx, countID)
		if err != nil {
			return fmt.Errorf("get count lines: %w", err)
		}
		c = newCount(*header, lines)
		return nil
	})
	return c, err
}

// Record sets the counted quantity of a product. Products missing from
// the start snapshot are added with their current stock.
func (e *Engine) Record(ctx context.Context, c *Count, productID, productName string, quantity int64) error {
	if err := c.ensureOpen(); err != nil {
		return err
	}
	if productID == "" {
		return apperror.NewValidation("product id is required").WithDetail("field", "productId")
	}
	if quantity < 0 {
		return apperror.NewValidation("quantity must not be negative").
			WithDetail("productId", productID).
			WithDetail("quantity", quantity)
	}

	line, ok := c.lines[productID]
	if !ok {
		current, err := e.stock.Get(ctx, c.header.StoreID, productID)
		if err != nil {
			return err
		}
		line = c.add(entity.CountLine{ProductID: productID, Stock: current})
	}
	if productName != "" {
		line.ProductName = productName
	}
	now := e.clock.Now().UTC()
	line.Quantity = quantity
	line.CountedAt = &now
	return nil
}

// Clear withdraws a recorded quantity.
func (e *Engine) Clear(c *Count, productID string) error {
	if err := c.ensureOpen(); err != nil {
		return err
	}
	line, ok := c.lines[productID]
	if !ok {
		return apperror.NewNotFound("count line", productID)
	}
	line.Quantity = 0
	line.CountedAt = nil
	return nil
}

// Fix applies quantity - stock of every counted line and stamps the
// header. A count with nothing counted is deleted instead, unless detail
// records already exist, which fails with ALREADY_COUNTED.
func (e *Engine) Fix(ctx context.Context, c *Count) (res Result, err error) {
	ctx, span := tracer.Start(ctx, "count.fix")
	defer func() {
		e.recorder.CountObserved(OpFix, err)
		endSpan(span, err)
	}()
	span.SetAttributes(attribute.String("count.id", c.ID().String()))

	if c.Fixed() {
		return Result{}, apperror.NewPrecondition("", "count is already fixed").WithDetail("count_id", c.ID())
	}

	counted := c.Counted()
	deltas := make([]Delta, 0, len(counted))
	for _, l := range counted {
		deltas = append(deltas, Delta{ProductID: l.ProductID, Stock: l.Stock, Quantity: l.Quantity, Delta: l.Variance()})
	}
	totals := ComputeTotals(counted)

	var (
		header  entity.CountHeader
		deleted bool
	)
	err = e.txm.RunInTransaction(ctx, func(ctx context.Context, txn tx.Transaction) error {
		stored, err := e.readHeader(ctx, txn, c.ID())
		if err != nil {
			return err
		}
		if stored.Fixed() {
			return apperror.NewPrecondition("", "count is already fixed").WithDetail("count_id", c.ID())
		}
		existing, err := txn.GetCountLines(ctx, c.ID())
		if err != nil {
			return fmt.Errorf("get count lines: %w", err)
		}

		if len(counted) == 0 {
			if len(existing) > 0 {
				return apperror.NewAlreadyCounted(c.ID())
			}
			deleted = true
			return txn.DeleteCount(ctx, c.ID())
		}

		for _, d := range deltas {
			if err := e.stock.ApplyDelta(ctx, txn, stored.StoreID, d.ProductID, d.Delta); err != nil {
				return err
			}
		}
		if err := txn.ReplaceCountLines(ctx, c.ID(), counted); err != nil {
			return fmt.Errorf("replace count lines: %w", err)
		}

		now := e.clock.Now().UTC()
		header = *stored
		header.FixedAt = &now
		header.TotalVariety = totals.Variety
		header.TotalCounted = totals.Counted
		header.TotalVariance = totals.Variance
		if err := txn.PutCount(ctx, &header); err != nil {
			return fmt.Errorf("put count: %w", err)
		}
		return enqueue(ctx, txn, entity.EventCountFixed, header, deltas)
	})
	if err != nil {
		return Result{}, err
	}

	if deleted {
		logger.Info(ctx, "abandoned count deleted", "count_id", c.ID(), "store_id", c.header.StoreID)
		return Result{CountID: c.ID(), Deleted: true, Deltas: []Delta{}}, nil
	}

	c.header = header
	logger.Info(ctx, "count fixed",
		"count_id", c.ID(),
		"store_id", header.StoreID,
		"counted", totals.Variety,
		"variance", totals.Variance,
	)
	return Result{CountID: c.ID(), FixedAt: header.FixedAt, Deltas: deltas, Totals: totals}, nil
}

// Unfix reverses a fix made on the same calendar day. The deltas are the
// negation of those stored at fix time, not a re-read of current stock.
func (e *Engine) Unfix(ctx context.Context, c *Count) (res Result, err error) {
	ctx, span := tracer.Start(ctx, "count.unfix")
	defer func() {
		e.recorder.CountObserved(OpUnfix, err)
		endSpan(span, err)
	}()
	span.SetAttributes(attribute.String("count.id", c.ID().String()))

	if !c.Fixed() {
		return Result{}, apperror.NewPrecondition("", "count is not fixed").WithDetail("count_id", c.ID())
	}
	if err := e.sameDay(*c.header.FixedAt); err != nil {
		return Result{}, err
	}

	var (
		header entity.CountHeader
		deltas []Delta
	)
	err = e.txm.RunInTransaction(ctx, func(ctx context.Context, txn tx.Transaction) error {
		stored, err := e.readHeader(ctx, txn, c.ID())
		if err != nil {
			return err
		}
		if !stored.Fixed() {
			return apperror.NewPrecondition("", "count is not fixed").WithDetail("count_id", c.ID())
		}
		if err := e.sameDay(*stored.FixedAt); err != nil {
			return err
		}
		lines, err := txn.GetCountLines(ctx, c.ID())
		if err != nil {
			return fmt.Errorf("get count lines: %w", err)
		}

		deltas = make([]Delta, 0, len(lines))
		for _, l := range lines {
			d := Delta{ProductID: l.ProductID, Stock: l.Stock, Quantity: l.Quantity, Delta: -l.Variance()}
			if err := e.stock.ApplyDelta(ctx, txn, stored.StoreID, d.ProductID, d.Delta); err != nil {
				return err
			}
			deltas = append(deltas, d)
		}

		header = *stored
		header.FixedAt = nil
		if err := txn.PutCount(ctx, &header); err != nil {
			return fmt.Errorf("put count: %w", err)
		}
		return enqueue(ctx, txn, entity.EventCountUnfixed, header, deltas)
	})
	if err != nil {
		return Result{}, err
	}

	c.header = header
	logger.Info(ctx, "count unfixed", "count_id", c.ID(), "store_id", header.StoreID, "lines", len(deltas))
	return Result{CountID: c.ID(), Deltas: deltas, Totals: ComputeTotals(c.Lines())}, nil
}

func (e *Engine) sameDay(fixedAt time.Time) error {
	if !e.calendar.SameDay(fixedAt, e.clock.Now()) {
		return apperror.NewPrecondition("", "a count can only be unfixed on the day it was fixed").
			WithDetail("fixed_at", fixedAt)
	}
	return nil
}

func (e *Engine) readHeader(ctx context.Context, txn tx.CountScope, countID id.ID) (*entity.CountHeader, error) {
	h, err := txn.GetCount(ctx, countID)
	if err != nil {
		return nil, fmt.Errorf("get count: %w", err)
	}
	if h == nil {
		return nil, apperror.NewNotFound("count", countID)
	}
	return h, nil
}

type countEvent struct {
	CountID id.ID      `json:"countId"`
	StoreID string     `json:"storeId"`
	FixedAt *time.Time `json:"fixedAt,omitempty"`
	Deltas  []Delta    `json:"deltas"`
}

func enqueue(ctx context.Context, txn tx.OutboxScope, eventType string, h entity.CountHeader, deltas []Delta) error {
	payload, err := json.Marshal(countEvent{CountID: h.ID, StoreID: h.StoreID, FixedAt: h.FixedAt, Deltas: deltas})
	if err != nil {
		return fmt.Errorf("marshal %s: %w", eventType, err)
	}
	return txn.Enqueue(ctx, entity.OutboxEvent{
		ID:            id.New(),
		AggregateType: "count",
		AggregateID:   h.ID.String(),
		EventType:     eventType,
		Payload:       payload,
	})
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
