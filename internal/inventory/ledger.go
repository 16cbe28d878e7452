package inventory

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-purchasing/internal/shared"
)

// Store is the transaction-scoped write port of the ledger. Both methods are
// atomic upsert-increments so concurrent orders touching the same key are safe.
type Store interface {
	AddStock(ctx context.Context, productID, warehouseID int64, delta decimal.Decimal) error
	AddSupplierStock(ctx context.Context, productID, warehouseID, supplierID int64, delta decimal.Decimal, price decimal.NullDecimal) error
}

// Aggregate sums GOOD lines per product in first-seen order. LastPrice is the
// latest non-null unit price of the product within the batch.
func Aggregate(lines []Line) []ProductDelta {
	index := make(map[int64]int, len(lines))
	var out []ProductDelta
	for _, line := range lines {
		if line.Class != ClassGood || line.ProductID == 0 || line.Quantity.IsZero() {
			continue
		}
		i, ok := index[line.ProductID]
		if !ok {
			i = len(out)
			index[line.ProductID] = i
			out = append(out, ProductDelta{ProductID: line.ProductID, Quantity: decimal.Zero})
		}
		out[i].Quantity = out[i].Quantity.Add(line.Quantity)
		if line.UnitPrice.Valid {
			out[i].LastPrice = line.UnitPrice
		}
	}
	return out
}

// HasGoods reports whether any line moves the ledger.
func HasGoods(lines []Line) bool {
	for _, line := range lines {
		if line.Class == ClassGood {
			return true
		}
	}
	return false
}

// ApplyDelta writes sign × quantity for every aggregated product into both the
// warehouse balance and the supplier-attributed balance. It must run inside the
// transaction that mutates the triggering order. It returns the number of
// distinct products touched.
func ApplyDelta(ctx context.Context, store Store, warehouseID, supplierID int64, lines []Line, sign Sign) (int, error) {
	if sign != Apply && sign != Revert {
		return 0, ErrInvalidSign
	}
	deltas := Aggregate(lines)
	if len(deltas) == 0 {
		return 0, nil
	}
	if warehouseID == 0 {
		return 0, fmt.Errorf("%w: %w", shared.ErrValidation, ErrWarehouseRequired)
	}
	if supplierID == 0 {
		return 0, fmt.Errorf("%w: %w", shared.ErrValidation, ErrSupplierRequired)
	}
	factor := decimal.NewFromInt(int64(sign))
	for _, d := range deltas {
		qty := d.Quantity.Mul(factor)
		if err := store.AddStock(ctx, d.ProductID, warehouseID, qty); err != nil {
			return 0, fmt.Errorf("inventory: stock balance %d/%d: %w", d.ProductID, warehouseID, err)
		}
		if err := store.AddSupplierStock(ctx, d.ProductID, warehouseID, supplierID, qty, d.LastPrice); err != nil {
			return 0, fmt.Errorf("inventory: supplier inventory %d/%d/%d: %w", d.ProductID, warehouseID, supplierID, err)
		}
	}
	return len(deltas), nil
}
