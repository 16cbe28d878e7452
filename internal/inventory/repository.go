package inventory

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// TxStore implements Store on an open transaction.
type TxStore struct {
	tx pgx.Tx
}

// NewTxStore binds the ledger to tx.
func NewTxStore(tx pgx.Tx) *TxStore {
	return &TxStore{tx: tx}
}

// AddStock upserts stock_balances.quantity += delta.
func (s *TxStore) AddStock(ctx context.Context, productID, warehouseID int64, delta decimal.Decimal) error {
	_, err := s.tx.Exec(ctx, `INSERT INTO stock_balances (product_id, warehouse_id, quantity)
VALUES ($1, $2, $3)
ON CONFLICT (product_id, warehouse_id) DO UPDATE SET quantity = stock_balances.quantity + EXCLUDED.quantity`,
		productID, warehouseID, delta)
	return err
}

// AddSupplierStock upserts supplier_inventory.quantity += delta and keeps the
// previous last_purchase_price when price is null.
func (s *TxStore) AddSupplierStock(ctx context.Context, productID, warehouseID, supplierID int64, delta decimal.Decimal, price decimal.NullDecimal) error {
	_, err := s.tx.Exec(ctx, `INSERT INTO supplier_inventory (product_id, warehouse_id, supplier_id, quantity, last_purchase_price, updated_at)
VALUES ($1, $2, $3, $4, $5, NOW())
ON CONFLICT (product_id, warehouse_id, supplier_id) DO UPDATE SET
    quantity = supplier_inventory.quantity + EXCLUDED.quantity,
    last_purchase_price = COALESCE(EXCLUDED.last_purchase_price, supplier_inventory.last_purchase_price),
    updated_at = NOW()`,
		productID, warehouseID, supplierID, delta, price)
	return err
}

// Repository serves ledger reads from the pool.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetBalance returns the balance or a zero balance when the row was never touched.
func (r *Repository) GetBalance(ctx context.Context, productID, warehouseID int64) (Balance, error) {
	bal := Balance{ProductID: productID, WarehouseID: warehouseID, Quantity: decimal.Zero}
	err := r.pool.QueryRow(ctx, `SELECT quantity FROM stock_balances WHERE product_id=$1 AND warehouse_id=$2`, productID, warehouseID).Scan(&bal.Quantity)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return Balance{}, err
	}
	return bal, nil
}

// StockByWarehouse lists every warehouse with the product's quantity, zero included.
func (r *Repository) StockByWarehouse(ctx context.Context, productID int64) ([]WarehouseStock, error) {
	rows, err := r.pool.Query(ctx, `SELECT w.id, w.name, COALESCE(sb.quantity, 0)
FROM warehouses w
LEFT JOIN stock_balances sb ON sb.warehouse_id = w.id AND sb.product_id = $1
ORDER BY w.name`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []WarehouseStock
	for rows.Next() {
		var ws WarehouseStock
		if err := rows.Scan(&ws.WarehouseID, &ws.WarehouseName, &ws.Quantity); err != nil {
			return nil, err
		}
		out = append(out, ws)
	}
	return out, rows.Err()
}

// SupplierBalances lists supplier-attributed rows for a product, optionally
// narrowed to one warehouse.
func (r *Repository) SupplierBalances(ctx context.Context, productID, warehouseID int64) ([]SupplierBalance, error) {
	rows, err := r.pool.Query(ctx, `SELECT product_id, warehouse_id, supplier_id, quantity, last_purchase_price, updated_at
FROM supplier_inventory
WHERE product_id = $1 AND ($2::bigint = 0 OR warehouse_id = $2)
ORDER BY warehouse_id, supplier_id`, productID, warehouseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SupplierBalance
	for rows.Next() {
		var sb SupplierBalance
		if err := rows.Scan(&sb.ProductID, &sb.WarehouseID, &sb.SupplierID, &sb.Quantity, &sb.LastPurchasePrice, &sb.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, sb)
	}
	return out, rows.Err()
}
