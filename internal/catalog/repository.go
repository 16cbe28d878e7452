package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-purchasing/internal/inventory"
	"github.com/odyssey-erp/odyssey-purchasing/internal/shared"
)

// Repository persists supplier prices and serves catalog reads.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const priceColumns = `sp.id, sp.product_id, sp.supplier_id, s.name, sp.purchase_price, sp.sale_price, sp.effective_at`

func scanPrice(row pgx.Row) (SupplierPrice, error) {
	var p SupplierPrice
	err := row.Scan(&p.ID, &p.ProductID, &p.SupplierID, &p.SupplierName, &p.PurchasePrice, &p.SalePrice, &p.EffectiveAt)
	return p, err
}

// CurrentPrice returns the row with the greatest effective_at.
func (r *Repository) CurrentPrice(ctx context.Context, productID, supplierID int64) (SupplierPrice, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+priceColumns+`
FROM supplier_prices sp
JOIN suppliers s ON s.id = sp.supplier_id
WHERE sp.product_id = $1 AND sp.supplier_id = $2
ORDER BY sp.effective_at DESC, sp.id DESC
LIMIT 1`, productID, supplierID)
	p, err := scanPrice(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return SupplierPrice{}, shared.ErrNotFound
	}
	return p, err
}

// GetPrice returns a single history row.
func (r *Repository) GetPrice(ctx context.Context, id int64) (SupplierPrice, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+priceColumns+`
FROM supplier_prices sp
JOIN suppliers s ON s.id = sp.supplier_id
WHERE sp.id = $1`, id)
	p, err := scanPrice(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return SupplierPrice{}, shared.Missing("supplier price", id)
	}
	return p, err
}

// InsertPrice appends a history row.
func (r *Repository) InsertPrice(ctx context.Context, p SupplierPrice) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO supplier_prices (product_id, supplier_id, purchase_price, sale_price, effective_at)
VALUES ($1, $2, $3, $4, $5) RETURNING id`, p.ProductID, p.SupplierID, p.PurchasePrice, p.SalePrice, p.EffectiveAt).Scan(&id)
	return id, err
}

// UpdatePrice rewrites an existing history row.
func (r *Repository) UpdatePrice(ctx context.Context, id int64, purchase decimal.Decimal, sale decimal.NullDecimal, effectiveAt time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE supplier_prices SET purchase_price=$2, sale_price=$3, effective_at=$4 WHERE id=$1`, id, purchase, sale, effectiveAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.Missing("supplier price", id)
	}
	return nil
}

// DeletePrice removes a history row.
func (r *Repository) DeletePrice(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM supplier_prices WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.Missing("supplier price", id)
	}
	return nil
}

// PriceHistory lists every row for a product by supplier name then newest first.
func (r *Repository) PriceHistory(ctx context.Context, productID int64) ([]SupplierPrice, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+priceColumns+`
FROM supplier_prices sp
JOIN suppliers s ON s.id = sp.supplier_id
WHERE sp.product_id = $1
ORDER BY s.name, sp.effective_at DESC, sp.id DESC`, productID)
	if err != nil {
		return nil, err
	}
	return collectPrices(rows)
}

// LatestPrices returns the current row per supplier for a product.
func (r *Repository) LatestPrices(ctx context.Context, productID int64) ([]SupplierPrice, error) {
	rows, err := r.pool.Query(ctx, `SELECT x.id, x.product_id, x.supplier_id, s.name, x.purchase_price, x.sale_price, x.effective_at
FROM (
    SELECT sp.*, ROW_NUMBER() OVER (
        PARTITION BY sp.product_id, sp.supplier_id
        ORDER BY sp.effective_at DESC, sp.id DESC
    ) AS rn
    FROM supplier_prices sp
    WHERE sp.product_id = $1
) x
JOIN suppliers s ON s.id = x.supplier_id
WHERE x.rn = 1
ORDER BY s.name`, productID)
	if err != nil {
		return nil, err
	}
	return collectPrices(rows)
}

func collectPrices(rows pgx.Rows) ([]SupplierPrice, error) {
	defer rows.Close()
	var out []SupplierPrice
	for rows.Next() {
		p, err := scanPrice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SearchItems lists products of one class ordered by name. GOOD items carry the
// supplier's current price and the summed stock; SUPPLY items carry neither.
func (r *Repository) SearchItems(ctx context.Context, f SearchFilter) ([]Item, error) {
	normalized := NormalizeSearch(f.Text)
	var searchPattern, rawPattern string
	if normalized != "" {
		searchPattern = likePattern(normalized)
		rawPattern = likePattern(f.Text)
	}
	rows, err := r.pool.Query(ctx, `SELECT p.id, p.name, p.image_url, p.class, cp.purchase_price, COALESCE(st.qty, 0)
FROM products p
LEFT JOIN LATERAL (
    SELECT sp.purchase_price
    FROM supplier_prices sp
    WHERE sp.product_id = p.id AND sp.supplier_id = $1
    ORDER BY sp.effective_at DESC, sp.id DESC
    LIMIT 1
) cp ON p.class = 'GOOD'
LEFT JOIN LATERAL (
    SELECT SUM(sb.quantity) AS qty
    FROM stock_balances sb
    WHERE sb.product_id = p.id AND ($2::bigint = 0 OR sb.warehouse_id = $2)
) st ON p.class = 'GOOD'
WHERE p.class = $3
  AND ($4::text = '' OR p.search_name LIKE $4 OR p.name ILIKE $5)
ORDER BY p.name ASC
LIMIT $6`, f.SupplierID, f.WarehouseID, string(f.Class), searchPattern, rawPattern, f.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Item
	for rows.Next() {
		var it Item
		var class string
		if err := rows.Scan(&it.ItemID, &it.Name, &it.ImageURL, &class, &it.Price, &it.Stock); err != nil {
			return nil, err
		}
		it.Class = inventory.ItemClass(class)
		out = append(out, it)
	}
	return out, rows.Err()
}

// GetProduct returns the product reference.
func (r *Repository) GetProduct(ctx context.Context, id int64) (Product, error) {
	var p Product
	var class string
	err := r.pool.QueryRow(ctx, `SELECT id, name, class FROM products WHERE id=$1`, id).Scan(&p.ID, &p.Name, &class)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, shared.Missing("product", id)
	}
	p.Class = inventory.ItemClass(class)
	return p, err
}

// SupplierExists reports whether the supplier row exists.
func (r *Repository) SupplierExists(ctx context.Context, id int64) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM suppliers WHERE id=$1)`, id).Scan(&ok)
	return ok, err
}

// ProductsAfter pages through products by id.
func (r *Repository) ProductsAfter(ctx context.Context, afterID int64, limit int) ([]Product, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, class FROM products WHERE id > $1 ORDER BY id LIMIT $2`, afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Product
	for rows.Next() {
		var p Product
		var class string
		if err := rows.Scan(&p.ID, &p.Name, &class); err != nil {
			return nil, err
		}
		p.Class = inventory.ItemClass(class)
		out = append(out, p)
	}
	return out, rows.Err()
}

// SetSearchName stores the normalized name when it differs.
func (r *Repository) SetSearchName(ctx context.Context, id int64, searchName string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE products SET search_name=$2 WHERE id=$1 AND search_name IS DISTINCT FROM $2`, id, searchName)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
