package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// copyer is the part of pgx.Tx used for bulk inserts.
type copyer interface {
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// copyFromSlice bulk inserts rows with the COPY protocol.
func copyFromSlice(ctx context.Context, c copyer, table string, columns []string, rows [][]any) (int64, error) {
	return c.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows))
}
