package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storeledger/internal/config"
	"storeledger/internal/core/entity"
	"storeledger/internal/domain/movement"
	"storeledger/internal/infrastructure/metrics"
	"storeledger/pkg/logger"
)

func TestBuild_SeededPricesReachAdapters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prices.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"productId":"BREAD","unitCost":"1.20"},
		{"productId":"BREAD","supplierId":"BAKERY","storeId":"S1","unitCost":"1.10","noReturn":true}
	]`), 0o600))
	t.Setenv("STORELEDGER_PRICE_FILE", path)

	cfg, err := config.Load()
	require.NoError(t, err)

	ctx := context.Background()
	a, err := build(ctx, cfg, metrics.New(), logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(a.Close)

	view, err := a.Movements.CreateDraft(ctx, movement.CreateDraftInput{
		Kind:             entity.KindRejection,
		StoreID:          "S1",
		CounterpartyCode: "BAKERY",
	})
	require.NoError(t, err)

	view, err = a.Movements.UpsertLine(ctx, view.ID, movement.LineInput{ProductID: "BREAD", Quantity: 2})
	require.NoError(t, err)
	require.Len(t, view.Lines, 1)
	assert.Equal(t, entity.RejectWaste, view.Lines[0].RejectType)

	// Another store falls back to the product-wide price, which takes goods back.
	other, err := a.Movements.CreateDraft(ctx, movement.CreateDraftInput{
		Kind:             entity.KindRejection,
		StoreID:          "S2",
		CounterpartyCode: "BAKERY",
	})
	require.NoError(t, err)
	other, err = a.Movements.UpsertLine(ctx, other.ID, movement.LineInput{ProductID: "BREAD", Quantity: 1})
	require.NoError(t, err)
	assert.Equal(t, entity.RejectReturn, other.Lines[0].RejectType)

	purchase, err := a.Movements.CreateDraft(ctx, movement.CreateDraftInput{
		Kind:             entity.KindPurchase,
		StoreID:          "S1",
		CounterpartyCode: "BAKERY",
	})
	require.NoError(t, err)
	purchase, err = a.Movements.UpsertLine(ctx, purchase.ID, movement.LineInput{ProductID: "BREAD", Quantity: 5})
	require.NoError(t, err)
	require.NotNil(t, purchase.Lines[0].UnitCost)
	assert.Equal(t, "1.1", purchase.Lines[0].UnitCost.String())
}

func TestBuild_BadPriceFileFails(t *testing.T) {
	t.Setenv("STORELEDGER_PRICE_FILE", filepath.Join(t.TempDir(), "missing.json"))
	cfg, err := config.Load()
	require.NoError(t, err)

	_, err = build(context.Background(), cfg, metrics.New(), logger.NewNop())
	assert.Error(t, err)
}
