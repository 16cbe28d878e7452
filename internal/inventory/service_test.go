package inventory

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-purchasing/internal/shared"
)

type supplierRow struct {
	qty   decimal.Decimal
	price decimal.NullDecimal
}

type memoryStore struct {
	stock    map[string]decimal.Decimal
	supplier map[string]supplierRow
	failOn   int64
}

func newMemoryStore() *memoryStore {
	return &memoryStore{stock: make(map[string]decimal.Decimal), supplier: make(map[string]supplierRow)}
}

func key(parts ...int64) string {
	return fmt.Sprint(parts)
}

func (s *memoryStore) AddStock(ctx context.Context, productID, warehouseID int64, delta decimal.Decimal) error {
	if productID == s.failOn {
		return errors.New("boom")
	}
	k := key(productID, warehouseID)
	s.stock[k] = s.stock[k].Add(delta)
	return nil
}

func (s *memoryStore) AddSupplierStock(ctx context.Context, productID, warehouseID, supplierID int64, delta decimal.Decimal, price decimal.NullDecimal) error {
	k := key(productID, warehouseID, supplierID)
	row := s.supplier[k]
	row.qty = row.qty.Add(delta)
	if price.Valid {
		row.price = price
	}
	s.supplier[k] = row
	return nil
}

func qty(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func price(v string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(v))
}

func TestAggregateSumsGoodsAndKeepsLatestPrice(t *testing.T) {
	lines := []Line{
		{ProductID: 1, Class: ClassGood, Quantity: qty(2), UnitPrice: price("5")},
		{ProductID: 2, Class: ClassSupply, Quantity: qty(9), UnitPrice: price("1")},
		{ProductID: 1, Class: ClassGood, Quantity: qty(3), UnitPrice: price("6")},
		{ProductID: 1, Class: ClassGood, Quantity: qty(1)},
		{ProductID: 3, Class: ClassGood, Quantity: qty(4)},
	}
	got := Aggregate(lines)
	require.Len(t, got, 2)
	require.Equal(t, int64(1), got[0].ProductID)
	require.True(t, got[0].Quantity.Equal(qty(6)))
	require.True(t, got[0].LastPrice.Valid)
	require.True(t, got[0].LastPrice.Decimal.Equal(decimal.NewFromInt(6)))
	require.Equal(t, int64(3), got[1].ProductID)
	require.False(t, got[1].LastPrice.Valid)
}

func TestApplyDeltaIsInvertible(t *testing.T) {
	store := newMemoryStore()
	ctx := context.Background()
	store.stock[key(1, 10)] = qty(7)

	lines := []Line{
		{ProductID: 1, Class: ClassGood, Quantity: decimal.RequireFromString("2.5"), UnitPrice: price("5")},
		{ProductID: 2, Class: ClassGood, Quantity: qty(4), UnitPrice: price("3")},
		{ProductID: 1, Class: ClassGood, Quantity: qty(1)},
	}
	n, err := ApplyDelta(ctx, store, 10, 20, lines, Apply)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.True(t, store.stock[key(1, 10)].Equal(decimal.RequireFromString("10.5")))
	require.True(t, store.supplier[key(1, 10, 20)].price.Decimal.Equal(decimal.NewFromInt(5)))

	_, err = ApplyDelta(ctx, store, 10, 20, lines, Revert)
	require.NoError(t, err)
	require.True(t, store.stock[key(1, 10)].Equal(qty(7)))
	require.True(t, store.stock[key(2, 10)].IsZero())
	require.True(t, store.supplier[key(1, 10, 20)].qty.IsZero())
}

func TestApplyDeltaRetainsPriceWhenBatchHasNone(t *testing.T) {
	store := newMemoryStore()
	ctx := context.Background()
	_, err := ApplyDelta(ctx, store, 1, 2, []Line{{ProductID: 5, Class: ClassGood, Quantity: qty(2), UnitPrice: price("5")}}, Apply)
	require.NoError(t, err)
	_, err = ApplyDelta(ctx, store, 1, 2, []Line{{ProductID: 5, Class: ClassGood, Quantity: qty(1)}}, Revert)
	require.NoError(t, err)

	row := store.supplier[key(5, 1, 2)]
	require.True(t, row.qty.Equal(qty(1)))
	require.True(t, row.price.Valid)
	require.True(t, row.price.Decimal.Equal(decimal.NewFromInt(5)))
}

func TestApplyDeltaIgnoresSuppliesWithoutWarehouse(t *testing.T) {
	store := newMemoryStore()
	n, err := ApplyDelta(context.Background(), store, 0, 2, []Line{{ProductID: 5, Class: ClassSupply, Quantity: qty(2)}}, Apply)
	require.NoError(t, err)
	require.Zero(t, n)
	require.Empty(t, store.stock)
}

func TestApplyDeltaValidation(t *testing.T) {
	store := newMemoryStore()
	ctx := context.Background()
	goods := []Line{{ProductID: 5, Class: ClassGood, Quantity: qty(2)}}

	_, err := ApplyDelta(ctx, store, 1, 2, goods, Sign(2))
	require.ErrorIs(t, err, ErrInvalidSign)

	_, err = ApplyDelta(ctx, store, 0, 2, goods, Apply)
	require.ErrorIs(t, err, ErrWarehouseRequired)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = ApplyDelta(ctx, store, 1, 0, goods, Apply)
	require.ErrorIs(t, err, ErrSupplierRequired)
	require.Empty(t, store.stock)
}

func TestApplyDeltaPropagatesStoreFailure(t *testing.T) {
	store := newMemoryStore()
	store.failOn = 5
	_, err := ApplyDelta(context.Background(), store, 1, 2, []Line{{ProductID: 5, Class: ClassGood, Quantity: qty(2)}}, Apply)
	require.Error(t, err)
	require.Contains(t, err.Error(), "stock balance 5/1")
}

type memoryRepo struct {
	balances map[string]Balance
}

func (r *memoryRepo) GetBalance(ctx context.Context, productID, warehouseID int64) (Balance, error) {
	if bal, ok := r.balances[key(productID, warehouseID)]; ok {
		return bal, nil
	}
	return Balance{ProductID: productID, WarehouseID: warehouseID}, nil
}

func (r *memoryRepo) StockByWarehouse(ctx context.Context, productID int64) ([]WarehouseStock, error) {
	return nil, errors.New("connection reset")
}

func (r *memoryRepo) SupplierBalances(ctx context.Context, productID, warehouseID int64) ([]SupplierBalance, error) {
	return []SupplierBalance{{ProductID: productID, WarehouseID: 1, SupplierID: 2, Quantity: qty(3)}}, nil
}

func TestServiceReads(t *testing.T) {
	repo := &memoryRepo{balances: map[string]Balance{key(1, 2): {ProductID: 1, WarehouseID: 2, Quantity: qty(4)}}}
	svc := NewService(repo)
	ctx := context.Background()

	bal, err := svc.Balance(ctx, 1, 2)
	require.NoError(t, err)
	require.True(t, bal.Quantity.Equal(qty(4)))

	_, err = svc.Balance(ctx, 0, 2)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.StockByWarehouse(ctx, 1)
	require.ErrorIs(t, err, shared.ErrStorage)

	rows, err := svc.SupplierBalances(ctx, 1, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}
