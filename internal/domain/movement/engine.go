// Package movement implements the movement document lifecycle and the
// reconciliation engine that applies incremental stock deltas on commit.
package movement

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
	"storeledger/internal/core/numerator"
	"storeledger/internal/core/tx"
	"storeledger/internal/domain/stock"
	"storeledger/pkg/logger"
)

var tracer = otel.Tracer("storeledger/movement")

// Result is returned by a successful commit.
type Result struct {
	Ref            entity.MovementRef `json:"ref"`
	MovementNumber int64              `json:"movementNumber"`
	Totals         entity.Totals      `json:"totals"`
	Deltas         []Delta            `json:"deltas"`
	Summary        any                `json:"summary,omitempty"`
}

// CommittedEvent is the outbox payload of a commit.
type CommittedEvent struct {
	Ref         entity.MovementRef `json:"ref"`
	DraftID     id.ID              `json:"draftId"`
	Counterpart string             `json:"counterpartyCode"`
	Totals      entity.Totals      `json:"totals"`
	Deltas      []Delta            `json:"deltas"`
	CommittedAt time.Time          `json:"committedAt"`
}

// Engine commits movement documents.
type Engine struct {
	txm      tx.Manager
	stock    *stock.Store
	alloc    numerator.Allocator
	clock    clock.Clock
	recorder Recorder
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithClock sets the time source for dates and commit timestamps.
func WithClock(c clock.Clock) EngineOption {
	return func(e *Engine) { e.clock = c }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) EngineOption {
	return func(e *Engine) { e.recorder = r }
}

// NewEngine creates an engine.
func NewEngine(txm tx.Manager, stockStore *stock.Store, alloc numerator.Allocator, opts ...EngineOption) *Engine {
	e := &Engine{
		txm:      txm,
		stock:    stockStore,
		alloc:    alloc,
		clock:    clock.System{},
		recorder: NopRecorder{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CreateDraft returns an unnumbered document dated today.
func (e *Engine) CreateDraft(kind entity.MovementKind, storeID, counterpartyCode string) (*Handle, error) {
	if _, err := SpecFor(kind); err != nil {
		return nil, err
	}
	if storeID == "" {
		return nil, apperror.NewValidation("store id is required").WithDetail("field", "storeId")
	}
	return newHandle(entity.MovementHeader{
		Kind:             kind,
		StoreID:          storeID,
		MovementNumber:   entity.DraftNumber,
		CounterpartyCode: counterpartyCode,
		Date:             e.clock.Now(),
	}), nil
}

// CreateAssigned returns a draft that will be committed under a number
// allocated elsewhere. The first commit fails with a precondition error if
// a document with that number already exists.
func (e *Engine) CreateAssigned(kind entity.MovementKind, storeID, counterpartyCode string, number int64) (*Handle, error) {
	h, err := e.CreateDraft(kind, storeID, counterpartyCode)
	if err != nil {
		return nil, err
	}
	if number <= 0 {
		return nil, apperror.NewValidation("movement number must be positive").WithDetail("movementNumber", number)
	}
	h.header.MovementNumber = number
	h.assigned = true
	return h, nil
}

// Open loads a committed document as a handle in state committed.
func (e *Engine) Open(ctx context.Context, ref entity.MovementRef) (*Handle, error) {
	if _, err := SpecFor(ref.Kind); err != nil {
		return nil, err
	}

	var (
		header *entity.MovementHeader
		lines  []entity.MovementLine
	)
	err := e.txm.RunInTransaction(ctx, func(ctx context.Context, txn tx.Transaction) error {
		var err error
		if header, err = txn.GetMovement(ctx, ref); err != nil {
			return fmt.Errorf("get movement: %w", err)
		}
		if header == nil {
			return apperror.NewNotFound("movement", ref.String())
		}
		if lines, err = txn.GetMovementLines(ctx, ref); err != nil {
			return fmt.Errorf("get movement lines: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	header.Fixed = true
	h := newHandle(*header)
	h.persisted = true
	for i := range lines {
		line := lines[i]
		line.Fixed = true
		line.Removed = false
		h.lines[line.ProductID] = &line
		h.order = append(h.order, line.ProductID)
	}
	return h, nil
}

// Reopen makes a committed document editable again. It touches neither
// stock nor storage.
func (e *Engine) Reopen(h *Handle) error {
	return h.reopen()
}

// Validate checks the header fields required before a commit.
func Validate(h *Handle) error {
	hdr := h.header
	if _, err := SpecFor(hdr.Kind); err != nil {
		return err
	}
	if hdr.StoreID == "" {
		return apperror.NewValidation("store id is required").WithDetail("field", "storeId")
	}
	if hdr.CounterpartyCode == "" {
		return apperror.NewValidation("counterparty is required").WithDetail("field", "counterpartyCode")
	}
	if hdr.Date.IsZero() {
		return apperror.NewValidation("date is required").WithDetail("field", "date")
	}
	for _, line := range h.lines {
		if line.Quantity < 0 {
			return apperror.NewValidation("quantity must not be negative").WithDetail("productId", line.ProductID)
		}
	}
	return nil
}

// Commit reconciles every unfixed line into stock and persists the
// document in one transaction.
//
// The movement number is allocated before the transaction starts and
// cached on the handle at once, so re-running Commit after a conflict
// never allocates twice. The handle is otherwise left unchanged unless
// the transaction commits. Nothing is retried here.
func (e *Engine) Commit(ctx context.Context, h *Handle) (res Result, err error) {
	ctx, span := tracer.Start(ctx, "movement.commit", trace.WithAttributes(
		attribute.String("movement.kind", string(h.header.Kind)),
		attribute.String("movement.store_id", h.header.StoreID),
	))
	started := time.Now()
	defer func() {
		e.recorder.CommitObserved(h.header.Kind, err, time.Since(started))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if h.State() == StateCommitted && len(h.Unfixed()) == 0 {
		return e.currentResult(h), nil
	}

	if err := e.AssignNumber(ctx, h); err != nil {
		return Result{}, err
	}
	spec, err := SpecFor(h.header.Kind)
	if err != nil {
		return Result{}, err
	}

	ref := h.Ref()
	span.SetAttributes(attribute.Int64("movement.number", ref.Number))

	unfixed := h.Unfixed()
	var (
		deltas []Delta
		header entity.MovementHeader
	)

	err = e.txm.RunInTransaction(ctx, func(ctx context.Context, txn tx.Transaction) error {
		// Read phase.
		existing, err := txn.GetMovement(ctx, ref)
		if err != nil {
			return fmt.Errorf("get movement: %w", err)
		}
		if err := e.guardNumber(h, spec, existing); err != nil {
			return err
		}
		var persisted []entity.MovementLine
		if existing != nil {
			if persisted, err = txn.GetMovementLines(ctx, ref); err != nil {
				return fmt.Errorf("get movement lines: %w", err)
			}
		}

		deltas = ComputeDeltas(spec.Sign, unfixed, PriorQuantities(persisted))

		// Write phase.
		for i, d := range deltas {
			if err := e.stock.ApplyDelta(ctx, txn, ref.StoreID, d.ProductID, d.Delta); err != nil {
				return err
			}
			line := unfixed[i]
			if line.Quantity == 0 {
				if err := txn.DeleteMovementLine(ctx, ref, line.ProductID); err != nil {
					return fmt.Errorf("delete line %s: %w", line.ProductID, err)
				}
				continue
			}
			line.Fixed = true
			line.Removed = false
			if err := txn.PutMovementLine(ctx, ref, line); err != nil {
				return fmt.Errorf("put line %s: %w", line.ProductID, err)
			}
		}

		now := e.clock.Now().UTC()
		header = h.header
		header.Fixed = true
		header.Totals = h.Totals()
		header.CommittedAt = &now
		if existing != nil && !id.IsNil(existing.DraftID) {
			header.DraftID = existing.DraftID
		} else {
			header.DraftID = h.id
		}
		if err := txn.PutMovement(ctx, &header); err != nil {
			return fmt.Errorf("put movement: %w", err)
		}

		return e.enqueue(ctx, txn, header, deltas, now)
	})
	if err != nil {
		return Result{}, err
	}

	h.markCommitted(header)
	for _, d := range deltas {
		e.recorder.DeltaApplied(ref.Kind, d.Delta)
	}

	logger.Info(ctx, "movement committed",
		"kind", ref.Kind,
		"store_id", ref.StoreID,
		"movement_number", ref.Number,
		"applied", len(deltas),
		"net_delta", NetDelta(deltas),
	)

	return Result{
		Ref:            ref,
		MovementNumber: ref.Number,
		Totals:         header.Totals,
		Deltas:         deltas,
	}, nil
}

// AssignNumber validates h and allocates its movement number if it has
// none yet. The number is cached on the handle immediately; callers that
// keep handles outside memory should save the handle before committing.
func (e *Engine) AssignNumber(ctx context.Context, h *Handle) error {
	if err := Validate(h); err != nil {
		return err
	}
	if h.header.Numbered() {
		return nil
	}
	spec, err := SpecFor(h.header.Kind)
	if err != nil {
		return err
	}
	n, err := e.alloc.Next(ctx, spec.Counter)
	if err != nil {
		return apperror.NewSequence(spec.Counter, err)
	}
	if n <= 0 {
		return apperror.NewSequence(spec.Counter, fmt.Errorf("allocator returned %d", n))
	}
	h.header.MovementNumber = n
	return nil
}

// guardNumber rejects a first commit whose number already belongs to
// another document.
func (e *Engine) guardNumber(h *Handle, spec KindSpec, existing *entity.MovementHeader) error {
	if h.persisted || existing == nil || existing.DraftID == h.id {
		return nil
	}
	if h.assigned {
		return apperror.NewPrecondition("", "a document with this movement number already exists").
			WithDetail("ref", h.Ref().String())
	}
	return apperror.NewSequence(spec.Counter, fmt.Errorf("movement number %d already in use", h.header.MovementNumber))
}

func (e *Engine) enqueue(ctx context.Context, txn tx.OutboxScope, header entity.MovementHeader, deltas []Delta, now time.Time) error {
	payload, err := json.Marshal(CommittedEvent{
		Ref:         header.Ref(),
		DraftID:     header.DraftID,
		Counterpart: header.CounterpartyCode,
		Totals:      header.Totals,
		Deltas:      deltas,
		CommittedAt: now,
	})
	if err != nil {
		return fmt.Errorf("marshal commit event: %w", err)
	}
	return txn.Enqueue(ctx, entity.OutboxEvent{
		ID:            id.New(),
		AggregateType: "movement",
		AggregateID:   header.Ref().String(),
		EventType:     entity.EventMovementCommitted,
		Payload:       payload,
		CreatedAt:     now,
	})
}

func (e *Engine) currentResult(h *Handle) Result {
	return Result{
		Ref:            h.Ref(),
		MovementNumber: h.header.MovementNumber,
		Totals:         h.header.Totals,
		Deltas:         []Delta{},
	}
}
