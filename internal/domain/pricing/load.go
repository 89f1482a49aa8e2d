package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"storeledger/internal/core/types"
)

// Entry is one row of a price seed file.
type Entry struct {
	StoreID    string       `json:"storeId"`
	ProductID  string       `json:"productId"`
	SupplierID string       `json:"supplierId"`
	UnitCost   *types.Money `json:"unitCost"`
	TaxRate    types.Money  `json:"taxRate"`
	NoReturn   bool         `json:"noReturn"`
}

// Query returns the lookup key of the entry.
func (e Entry) Query() Query {
	return Query{StoreID: e.StoreID, ProductID: e.ProductID, SupplierID: e.SupplierID}
}

// Quote returns the price data of the entry.
func (e Entry) Quote() Quote {
	return Quote{UnitCost: e.UnitCost, TaxRate: e.TaxRate, NoReturn: e.NoReturn}
}

// Load reads a JSON array of entries from r into w and returns how many
// were written. Nothing is written when any entry lacks a product.
func Load(ctx context.Context, r io.Reader, w Writer) (int, error) {
	var entries []Entry
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return 0, fmt.Errorf("decode prices: %w", err)
	}
	for i, e := range entries {
		if e.ProductID == "" {
			return 0, fmt.Errorf("price entry %d: productId is required", i)
		}
	}
	for i, e := range entries {
		if err := w.Put(ctx, e.Query(), e.Quote()); err != nil {
			return i, fmt.Errorf("store price %s: %w", e.ProductID, err)
		}
	}
	return len(entries), nil
}

// LoadFile is Load over the file at path.
func LoadFile(ctx context.Context, path string, w Writer) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open price file: %w", err)
	}
	defer f.Close()
	return Load(ctx, f, w)
}
