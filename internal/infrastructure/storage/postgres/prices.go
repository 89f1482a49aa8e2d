package postgres

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"storeledger/internal/core/clock"
	"storeledger/internal/core/types"
	"storeledger/internal/domain/pricing"
)

const pricesTable = "prices"

type priceRow struct {
	UnitCost *types.Money `db:"unit_cost"`
	TaxRate  types.Money  `db:"tax_rate"`
	NoReturn bool         `db:"no_return"`
}

type queryExecer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// PriceTable is the prices table as a pricing.Table. Lookups run outside
// the reconciliation transaction.
type PriceTable struct {
	db      queryExecer
	builder squirrel.StatementBuilderType
	clock   clock.Clock
}

// NewPriceTable reads and writes prices through the store's pool.
func NewPriceTable(s *Store) *PriceTable {
	return &PriceTable{db: s.pool, builder: s.builder, clock: s.clock}
}

// lookupQuery selects the most specific row for q: the full key, then
// store and product, then product alone.
func (p *PriceTable) lookupQuery(q pricing.Query) squirrel.SelectBuilder {
	return p.builder.Select("unit_cost", "tax_rate", "no_return").
		From(pricesTable).
		Where(squirrel.Eq{"product_id": q.ProductID}).
		Where(squirrel.Or{
			squirrel.Eq{"store_id": q.StoreID, "supplier_id": q.SupplierID},
			squirrel.Eq{"store_id": q.StoreID, "supplier_id": ""},
			squirrel.Eq{"store_id": "", "supplier_id": ""},
		}).
		OrderBy("(supplier_id <> '') DESC", "(store_id <> '') DESC").
		Limit(1)
}

// Lookup implements pricing.Resolver.
func (p *PriceTable) Lookup(ctx context.Context, q pricing.Query) (pricing.Quote, bool, error) {
	sql, args, err := p.lookupQuery(q).ToSql()
	if err != nil {
		return pricing.Quote{}, false, fmt.Errorf("build query: %w", err)
	}

	var row priceRow
	if err := pgxscan.Get(ctx, p.db, &row, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return pricing.Quote{}, false, nil
		}
		return pricing.Quote{}, false, mapError(fmt.Errorf("lookup price: %w", err))
	}
	return pricing.Quote{UnitCost: row.UnitCost, TaxRate: row.TaxRate, NoReturn: row.NoReturn}, true, nil
}

// Put implements pricing.Writer.
func (p *PriceTable) Put(ctx context.Context, q pricing.Query, quote pricing.Quote) error {
	stmt := p.builder.Insert(pricesTable).
		Columns("store_id", "product_id", "supplier_id", "unit_cost", "tax_rate", "no_return", "updated_at").
		Values(q.StoreID, q.ProductID, q.SupplierID, quote.UnitCost, quote.TaxRate, quote.NoReturn, p.clock.Now().UTC()).
		Suffix(upsertSuffix(
			[]string{"store_id", "product_id", "supplier_id"},
			[]string{"unit_cost", "tax_rate", "no_return", "updated_at"},
		))

	sql, args, err := stmt.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	if _, err := p.db.Exec(ctx, sql, args...); err != nil {
		return mapError(fmt.Errorf("put price: %w", err))
	}
	return nil
}

var _ pricing.Table = (*PriceTable)(nil)
