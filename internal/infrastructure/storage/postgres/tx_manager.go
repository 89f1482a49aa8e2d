package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"storeledger/internal/core/clock"
	"storeledger/internal/core/tx"
)

var tracer = otel.Tracer("storeledger/tx")

// TxOptions configures transaction behavior.
type TxOptions struct {
	// IsolationLevel: pgx.Serializable, pgx.RepeatableRead, pgx.ReadCommitted
	IsolationLevel pgx.TxIsoLevel

	// AccessMode: pgx.ReadWrite, pgx.ReadOnly
	AccessMode pgx.TxAccessMode

	// StatementTimeout protects against long-running queries (default 30s)
	StatementTimeout time.Duration
}

// SerializableTxOptions is what every reconciliation transaction runs with.
// A lost race surfaces as SQLSTATE 40001 and is mapped to a conflict.
func SerializableTxOptions() TxOptions {
	return TxOptions{
		IsolationLevel:   pgx.Serializable,
		AccessMode:       pgx.ReadWrite,
		StatementTimeout: 30 * time.Second,
	}
}

// Store begins serializable transactions on a pool.
type Store struct {
	pool    *pgxpool.Pool
	opts    TxOptions
	builder squirrel.StatementBuilderType
	audit   *Auditor
	clock   clock.Clock
}

// Option configures a Store.
type Option func(*Store)

// WithTxOptions overrides SerializableTxOptions.
func WithTxOptions(opts TxOptions) Option {
	return func(s *Store) { s.opts = opts }
}

// WithClock sets the time source for updated_at and created_at columns.
func WithClock(c clock.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// NewStore creates the backend.
func NewStore(pool *pgxpool.Pool, opts ...Option) (*Store, error) {
	audit, err := NewAuditor()
	if err != nil {
		return nil, err
	}
	s := &Store{
		pool:    pool,
		opts:    SerializableTxOptions(),
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		audit:   audit,
		clock:   clock.System{},
	}
	for _, opt := range opts {
		opt(s)
	}
	audit.clock = s.clock
	return s, nil
}

// Begin implements tx.Store.
func (s *Store) Begin(ctx context.Context) (tx.Transaction, error) {
	ctx, span := tracer.Start(ctx, "transaction",
		trace.WithAttributes(
			attribute.String("tx.isolation", string(s.opts.IsolationLevel)),
		))

	pgTx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   s.opts.IsolationLevel,
		AccessMode: s.opts.AccessMode,
	})
	if err != nil {
		span.End()
		return nil, fmt.Errorf("begin transaction: %w", err)
	}

	if s.opts.StatementTimeout > 0 {
		_, err = pgTx.Exec(ctx, fmt.Sprintf("SET LOCAL statement_timeout = '%dms'", s.opts.StatementTimeout.Milliseconds()))
		if err != nil {
			_ = pgTx.Rollback(context.Background())
			span.End()
			return nil, fmt.Errorf("set statement_timeout: %w", err)
		}
	}

	return &Txn{tx: pgTx, builder: s.builder, audit: s.audit, clock: s.clock, span: span}, nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Pool returns the underlying pool for queries outside transactions.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// Close closes the pool.
func (s *Store) Close() {
	s.pool.Close()
}

var _ tx.Store = (*Store)(nil)
