package procurement

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-purchasing/internal/inventory"
	"github.com/odyssey-erp/odyssey-purchasing/internal/platform/db"
	"github.com/odyssey-erp/odyssey-purchasing/internal/shared"
)

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
	q    queries
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, q: queries{db: pool}}
}

// TxRepository exposes transactional operations. Every method runs on the
// same transaction; LockOrder takes the row lock that serializes writers of
// one order.
type TxRepository interface {
	LockOrder(ctx context.Context, id int64) (PurchaseOrder, error)
	InsertOrder(ctx context.Context, order PurchaseOrder) (int64, error)
	UpdateOrder(ctx context.Context, order PurchaseOrder) error
	ReplaceLines(ctx context.Context, orderID int64, lines []OrderLine) error
	UpdateStatus(ctx context.Context, id int64, status Status, actorID int64) error
	InsertInvoice(ctx context.Context, inv Invoice) (int64, error)
	InsertReturn(ctx context.Context, ret Return) (int64, error)
	ReturnedQuantities(ctx context.Context, orderID int64) (map[int64]decimal.Decimal, error)
	SupplierExists(ctx context.Context, id int64) (bool, error)
	WarehouseExists(ctx context.Context, id int64) (bool, error)
	ProductClasses(ctx context.Context, ids []int64) (map[int64]inventory.ItemClass, error)
	Ledger() inventory.Store
}

type txRepo struct {
	tx pgx.Tx
	q  queries
}

// WithTx runs fn inside one read-committed transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx, q: queries{db: tx}})
	})
}

// GetOrder returns the order with its lines.
func (r *Repository) GetOrder(ctx context.Context, id int64) (PurchaseOrder, error) {
	return r.q.order(ctx, id, false)
}

// ListOrders returns order headers newest first plus the total match count.
func (r *Repository) ListOrders(ctx context.Context, f ListFilters) ([]PurchaseOrder, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		args = append(args, statuses)
		where += ` AND o.status = ANY($` + strconv.Itoa(len(args)) + `)`
	}
	if f.SupplierID > 0 {
		args = append(args, f.SupplierID)
		where += ` AND o.supplier_id = $` + strconv.Itoa(len(args))
	}
	if f.Lifecycle != "" {
		args = append(args, string(f.Lifecycle))
		where += ` AND o.lifecycle = $` + strconv.Itoa(len(args))
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM purchase_orders o`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page := shared.NewPagination(f.Page, f.PerPage, total)
	args = append(args, page.PerPage, page.Offset())
	rows, err := r.pool.Query(ctx, `SELECT `+orderColumns+` FROM purchase_orders o`+where+
		` ORDER BY o.id DESC LIMIT $`+strconv.Itoa(len(args)-1)+` OFFSET $`+strconv.Itoa(len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []PurchaseOrder
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, o)
	}
	return out, total, rows.Err()
}

// ReturnedQuantities sums returned quantities per product for an order.
func (r *Repository) ReturnedQuantities(ctx context.Context, orderID int64) (map[int64]decimal.Decimal, error) {
	return r.q.returned(ctx, orderID)
}

// GetInvoice returns an invoice by id.
func (r *Repository) GetInvoice(ctx context.Context, id int64) (Invoice, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id=$1`, id)
	inv, err := scanInvoice(row)
	if db.IsNoRows(err) {
		return Invoice{}, shared.Missing("invoice", id)
	}
	return inv, err
}

// ListInvoices returns invoices newest first.
func (r *Repository) ListInvoices(ctx context.Context, f DocFilters) ([]Invoice, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM invoices WHERE ($1::bigint = 0 OR order_id = $1)`, f.OrderID).Scan(&total); err != nil {
		return nil, 0, err
	}
	page := shared.NewPagination(f.Page, f.PerPage, total)
	rows, err := r.pool.Query(ctx, `SELECT `+invoiceColumns+` FROM invoices
WHERE ($1::bigint = 0 OR order_id = $1)
ORDER BY id DESC LIMIT $2 OFFSET $3`, f.OrderID, page.PerPage, page.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, inv)
	}
	return out, total, rows.Err()
}

// GetReturn returns a return with its lines.
func (r *Repository) GetReturn(ctx context.Context, id int64) (Return, error) {
	var ret Return
	err := r.pool.QueryRow(ctx, `SELECT id, order_id, notes, created_by, created_at FROM returns WHERE id=$1`, id).
		Scan(&ret.ID, &ret.OrderID, &ret.Notes, &ret.CreatedBy, &ret.CreatedAt)
	if db.IsNoRows(err) {
		return Return{}, shared.Missing("return", id)
	}
	if err != nil {
		return Return{}, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, product_id, quantity, reason FROM return_lines WHERE return_id=$1 ORDER BY id`, id)
	if err != nil {
		return Return{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var l ReturnLine
		if err := rows.Scan(&l.ID, &l.ProductID, &l.Quantity, &l.Reason); err != nil {
			return Return{}, err
		}
		ret.Lines = append(ret.Lines, l)
	}
	return ret, rows.Err()
}

// ListReturns returns headers newest first.
func (r *Repository) ListReturns(ctx context.Context, f DocFilters) ([]Return, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM returns WHERE ($1::bigint = 0 OR order_id = $1)`, f.OrderID).Scan(&total); err != nil {
		return nil, 0, err
	}
	page := shared.NewPagination(f.Page, f.PerPage, total)
	rows, err := r.pool.Query(ctx, `SELECT id, order_id, notes, created_by, created_at FROM returns
WHERE ($1::bigint = 0 OR order_id = $1)
ORDER BY id DESC LIMIT $2 OFFSET $3`, f.OrderID, page.PerPage, page.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Return
	for rows.Next() {
		var ret Return
		if err := rows.Scan(&ret.ID, &ret.OrderID, &ret.Notes, &ret.CreatedBy, &ret.CreatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, ret)
	}
	return out, total, rows.Err()
}

// Transaction scoped operations

func (tx *txRepo) LockOrder(ctx context.Context, id int64) (PurchaseOrder, error) {
	return tx.q.order(ctx, id, true)
}

func (tx *txRepo) InsertOrder(ctx context.Context, o PurchaseOrder) (int64, error) {
	var id int64
	err := tx.tx.QueryRow(ctx, `INSERT INTO purchase_orders
    (supplier_id, warehouse_id, lifecycle, order_date, total, status, notes, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id`, o.SupplierID, nullableID(o.WarehouseID), string(o.Lifecycle), o.OrderDate, o.Total,
		string(o.Status), o.Notes, o.CreatedBy).Scan(&id)
	if err != nil {
		return 0, err
	}
	if err := tx.insertLines(ctx, id, o.Lines); err != nil {
		return 0, err
	}
	return id, nil
}

func (tx *txRepo) UpdateOrder(ctx context.Context, o PurchaseOrder) error {
	_, err := tx.tx.Exec(ctx, `UPDATE purchase_orders
SET supplier_id=$2, warehouse_id=$3, order_date=$4, total=$5, notes=$6, modified_by=$7, updated_at=NOW()
WHERE id=$1`, o.ID, o.SupplierID, nullableID(o.WarehouseID), o.OrderDate, o.Total, o.Notes, nullableID(o.ModifiedBy))
	return err
}

func (tx *txRepo) ReplaceLines(ctx context.Context, orderID int64, lines []OrderLine) error {
	if _, err := tx.tx.Exec(ctx, `DELETE FROM purchase_order_lines WHERE order_id=$1`, orderID); err != nil {
		return err
	}
	return tx.insertLines(ctx, orderID, lines)
}

func (tx *txRepo) insertLines(ctx context.Context, orderID int64, lines []OrderLine) error {
	batch := &pgx.Batch{}
	for _, l := range lines {
		batch.Queue(`INSERT INTO purchase_order_lines (order_id, item_id, item_class, quantity, unit_price) VALUES ($1, $2, $3, $4, $5)`,
			orderID, l.ItemID, string(l.ItemClass), l.Quantity, l.UnitPrice)
	}
	return tx.tx.SendBatch(ctx, batch).Close()
}

func (tx *txRepo) UpdateStatus(ctx context.Context, id int64, status Status, actorID int64) error {
	_, err := tx.tx.Exec(ctx, `UPDATE purchase_orders SET status=$2, modified_by=$3, updated_at=NOW() WHERE id=$1`,
		id, string(status), nullableID(actorID))
	return err
}

func (tx *txRepo) InsertInvoice(ctx context.Context, inv Invoice) (int64, error) {
	var id int64
	err := tx.tx.QueryRow(ctx, `INSERT INTO invoices
    (order_id, invoice_number, payment_method_id, payment_terms_id, doc_type_id, attachment_ref, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id`, inv.OrderID, inv.InvoiceNumber, nullableID(inv.PaymentMethodID), nullableID(inv.PaymentTermsID),
		nullableID(inv.DocTypeID), inv.AttachmentRef, inv.CreatedBy).Scan(&id)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return 0, fmt.Errorf("%w: order %d already has an invoice", shared.ErrInvalidState, inv.OrderID)
	}
	return id, err
}

func (tx *txRepo) InsertReturn(ctx context.Context, ret Return) (int64, error) {
	var id int64
	err := tx.tx.QueryRow(ctx, `INSERT INTO returns (order_id, notes, created_by) VALUES ($1, $2, $3) RETURNING id`,
		ret.OrderID, ret.Notes, ret.CreatedBy).Scan(&id)
	if err != nil {
		return 0, err
	}
	batch := &pgx.Batch{}
	for _, l := range ret.Lines {
		batch.Queue(`INSERT INTO return_lines (return_id, product_id, quantity, reason) VALUES ($1, $2, $3, $4)`,
			id, l.ProductID, l.Quantity, l.Reason)
	}
	if err := tx.tx.SendBatch(ctx, batch).Close(); err != nil {
		return 0, err
	}
	return id, nil
}

func (tx *txRepo) ReturnedQuantities(ctx context.Context, orderID int64) (map[int64]decimal.Decimal, error) {
	return tx.q.returned(ctx, orderID)
}

func (tx *txRepo) SupplierExists(ctx context.Context, id int64) (bool, error) {
	return tx.q.exists(ctx, `SELECT EXISTS (SELECT 1 FROM suppliers WHERE id=$1)`, id)
}

func (tx *txRepo) WarehouseExists(ctx context.Context, id int64) (bool, error) {
	return tx.q.exists(ctx, `SELECT EXISTS (SELECT 1 FROM warehouses WHERE id=$1)`, id)
}

func (tx *txRepo) ProductClasses(ctx context.Context, ids []int64) (map[int64]inventory.ItemClass, error) {
	rows, err := tx.tx.Query(ctx, `SELECT id, class FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64]inventory.ItemClass, len(ids))
	for rows.Next() {
		var id int64
		var class string
		if err := rows.Scan(&id, &class); err != nil {
			return nil, err
		}
		out[id] = inventory.ItemClass(class)
	}
	return out, rows.Err()
}

func (tx *txRepo) Ledger() inventory.Store {
	return inventory.NewTxStore(tx.tx)
}

// queries holds reads shared by the pool and the transaction.
type queries struct {
	db DBTX
}

const orderColumns = `o.id, o.supplier_id, COALESCE(o.warehouse_id, 0), o.lifecycle, o.order_date, o.total,
o.status, o.notes, o.created_by, COALESCE(o.modified_by, 0), o.created_at, o.updated_at`

func scanOrder(row pgx.Row) (PurchaseOrder, error) {
	var o PurchaseOrder
	var lifecycle, status string
	err := row.Scan(&o.ID, &o.SupplierID, &o.WarehouseID, &lifecycle, &o.OrderDate, &o.Total,
		&status, &o.Notes, &o.CreatedBy, &o.ModifiedBy, &o.CreatedAt, &o.UpdatedAt)
	o.Lifecycle = Lifecycle(lifecycle)
	o.Status = Status(status)
	return o, err
}

func (q queries) order(ctx context.Context, id int64, forUpdate bool) (PurchaseOrder, error) {
	sql := `SELECT ` + orderColumns + ` FROM purchase_orders o WHERE o.id=$1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	o, err := scanOrder(q.db.QueryRow(ctx, sql, id))
	if db.IsNoRows(err) {
		return PurchaseOrder{}, shared.Missing("purchase order", id)
	}
	if err != nil {
		return PurchaseOrder{}, err
	}
	rows, err := q.db.Query(ctx, `SELECT id, item_id, item_class, quantity, unit_price
FROM purchase_order_lines WHERE order_id=$1 ORDER BY id`, id)
	if err != nil {
		return PurchaseOrder{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var l OrderLine
		var class string
		if err := rows.Scan(&l.ID, &l.ItemID, &class, &l.Quantity, &l.UnitPrice); err != nil {
			return PurchaseOrder{}, err
		}
		l.ItemClass = inventory.ItemClass(class)
		o.Lines = append(o.Lines, l)
	}
	return o, rows.Err()
}

func (q queries) returned(ctx context.Context, orderID int64) (map[int64]decimal.Decimal, error) {
	rows, err := q.db.Query(ctx, `SELECT rl.product_id, SUM(rl.quantity)
FROM return_lines rl
JOIN returns r ON r.id = rl.return_id
WHERE r.order_id=$1
GROUP BY rl.product_id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64]decimal.Decimal)
	for rows.Next() {
		var id int64
		var qty decimal.Decimal
		if err := rows.Scan(&id, &qty); err != nil {
			return nil, err
		}
		out[id] = qty
	}
	return out, rows.Err()
}

func (q queries) exists(ctx context.Context, sql string, id int64) (bool, error) {
	var ok bool
	err := q.db.QueryRow(ctx, sql, id).Scan(&ok)
	return ok, err
}

const invoiceColumns = `id, order_id, invoice_number, COALESCE(payment_method_id, 0), COALESCE(payment_terms_id, 0),
COALESCE(doc_type_id, 0), attachment_ref, created_by, created_at`

func scanInvoice(row pgx.Row) (Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.OrderID, &inv.InvoiceNumber, &inv.PaymentMethodID, &inv.PaymentTermsID,
		&inv.DocTypeID, &inv.AttachmentRef, &inv.CreatedBy, &inv.CreatedAt)
	return inv, err
}

// nullableID maps the zero id to SQL NULL.
func nullableID(id int64) *int64 {
	if id == 0 {
		return nil
	}
	return &id
}
