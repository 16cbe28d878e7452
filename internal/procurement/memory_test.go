package procurement

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-purchasing/internal/inventory"
	"github.com/odyssey-erp/odyssey-purchasing/internal/shared"
)

type supplierKey struct {
	product, warehouse, supplier int64
}

type supplierRow struct {
	qty   decimal.Decimal
	price decimal.NullDecimal
}

// memState is everything a transaction may touch; WithTx restores a copy on error.
type memState struct {
	orders   map[int64]PurchaseOrder
	invoices map[int64]Invoice
	returns  map[int64]Return
	stock    map[[2]int64]decimal.Decimal
	supplier map[supplierKey]supplierRow
	nextID   int64
}

func (s memState) clone() memState {
	out := memState{
		orders:   make(map[int64]PurchaseOrder, len(s.orders)),
		invoices: make(map[int64]Invoice, len(s.invoices)),
		returns:  make(map[int64]Return, len(s.returns)),
		stock:    make(map[[2]int64]decimal.Decimal, len(s.stock)),
		supplier: make(map[supplierKey]supplierRow, len(s.supplier)),
		nextID:   s.nextID,
	}
	for k, v := range s.orders {
		out.orders[k] = v
	}
	for k, v := range s.invoices {
		out.invoices[k] = v
	}
	for k, v := range s.returns {
		out.returns[k] = v
	}
	for k, v := range s.stock {
		out.stock[k] = v
	}
	for k, v := range s.supplier {
		out.supplier[k] = v
	}
	return out
}

// memoryProcRepo serializes transactions on one mutex, which stands in for the
// order row lock.
type memoryProcRepo struct {
	mu         sync.Mutex
	state      memState
	suppliers  map[int64]bool
	warehouses map[int64]bool
	products   map[int64]inventory.ItemClass
	failLedger bool
}

type memoryProcTx struct {
	repo *memoryProcRepo
}

func newMemoryProcRepo() *memoryProcRepo {
	return &memoryProcRepo{
		state: memState{
			orders:   make(map[int64]PurchaseOrder),
			invoices: make(map[int64]Invoice),
			returns:  make(map[int64]Return),
			stock:    make(map[[2]int64]decimal.Decimal),
			supplier: make(map[supplierKey]supplierRow),
		},
		suppliers:  map[int64]bool{supplierS: true, 8: true},
		warehouses: map[int64]bool{warehouseW: true, 4: true},
		products:   map[int64]inventory.ItemClass{productP: inventory.ClassGood, 2: inventory.ClassGood, 5: inventory.ClassSupply},
	}
}

func (r *memoryProcRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	snapshot := r.state.clone()
	if err := fn(ctx, &memoryProcTx{repo: r}); err != nil {
		r.state = snapshot
		return err
	}
	return nil
}

func (r *memoryProcRepo) GetOrder(ctx context.Context, id int64) (PurchaseOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.state.orders[id]
	if !ok {
		return PurchaseOrder{}, shared.Missing("purchase order", id)
	}
	return o, nil
}

func (r *memoryProcRepo) ListOrders(ctx context.Context, f ListFilters) ([]PurchaseOrder, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []PurchaseOrder
	for _, o := range r.state.orders {
		if len(f.Statuses) > 0 && !containsStatus(f.Statuses, o.Status) {
			continue
		}
		if f.SupplierID > 0 && o.SupplierID != f.SupplierID {
			continue
		}
		if f.Lifecycle != "" && o.Lifecycle != f.Lifecycle {
			continue
		}
		o.Lines = nil
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, len(out), nil
}

func containsStatus(list []Status, s Status) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (r *memoryProcRepo) ReturnedQuantities(ctx context.Context, orderID int64) (map[int64]decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.returned(orderID), nil
}

func (s memState) returned(orderID int64) map[int64]decimal.Decimal {
	out := make(map[int64]decimal.Decimal)
	for _, ret := range s.returns {
		if ret.OrderID != orderID {
			continue
		}
		for _, l := range ret.Lines {
			out[l.ProductID] = out[l.ProductID].Add(l.Quantity)
		}
	}
	return out
}

func (r *memoryProcRepo) GetInvoice(ctx context.Context, id int64) (Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.state.invoices[id]
	if !ok {
		return Invoice{}, shared.Missing("invoice", id)
	}
	return inv, nil
}

func (r *memoryProcRepo) ListInvoices(ctx context.Context, f DocFilters) ([]Invoice, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Invoice
	for _, inv := range r.state.invoices {
		if f.OrderID == 0 || inv.OrderID == f.OrderID {
			out = append(out, inv)
		}
	}
	return out, len(out), nil
}

func (r *memoryProcRepo) GetReturn(ctx context.Context, id int64) (Return, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ret, ok := r.state.returns[id]
	if !ok {
		return Return{}, shared.Missing("return", id)
	}
	return ret, nil
}

func (r *memoryProcRepo) ListReturns(ctx context.Context, f DocFilters) ([]Return, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Return
	for _, ret := range r.state.returns {
		if f.OrderID == 0 || ret.OrderID == f.OrderID {
			out = append(out, ret)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, len(out), nil
}

// stockOf reads a balance outside any transaction.
func (r *memoryProcRepo) stockOf(product, warehouse int64) decimal.Decimal {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.stock[[2]int64{product, warehouse}]
}

func (r *memoryProcRepo) supplierOf(product, warehouse, supplier int64) supplierRow {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.supplier[supplierKey{product, warehouse, supplier}]
}

func (r *memoryProcRepo) invoiceCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.state.invoices)
}

func (tx *memoryProcTx) nextID() int64 {
	tx.repo.state.nextID++
	return tx.repo.state.nextID
}

func (tx *memoryProcTx) LockOrder(ctx context.Context, id int64) (PurchaseOrder, error) {
	o, ok := tx.repo.state.orders[id]
	if !ok {
		return PurchaseOrder{}, shared.Missing("purchase order", id)
	}
	return o, nil
}

func (tx *memoryProcTx) InsertOrder(ctx context.Context, o PurchaseOrder) (int64, error) {
	o.ID = tx.nextID()
	tx.repo.state.orders[o.ID] = o
	return o.ID, nil
}

func (tx *memoryProcTx) UpdateOrder(ctx context.Context, o PurchaseOrder) error {
	cur := tx.repo.state.orders[o.ID]
	cur.SupplierID = o.SupplierID
	cur.WarehouseID = o.WarehouseID
	cur.OrderDate = o.OrderDate
	cur.Total = o.Total
	cur.Notes = o.Notes
	cur.ModifiedBy = o.ModifiedBy
	tx.repo.state.orders[o.ID] = cur
	return nil
}

func (tx *memoryProcTx) ReplaceLines(ctx context.Context, orderID int64, lines []OrderLine) error {
	o := tx.repo.state.orders[orderID]
	o.Lines = append([]OrderLine(nil), lines...)
	tx.repo.state.orders[orderID] = o
	return nil
}

func (tx *memoryProcTx) UpdateStatus(ctx context.Context, id int64, status Status, actorID int64) error {
	o := tx.repo.state.orders[id]
	o.Status = status
	o.ModifiedBy = actorID
	tx.repo.state.orders[id] = o
	return nil
}

func (tx *memoryProcTx) InsertInvoice(ctx context.Context, inv Invoice) (int64, error) {
	for _, existing := range tx.repo.state.invoices {
		if existing.OrderID == inv.OrderID {
			return 0, shared.ErrInvalidState
		}
	}
	inv.ID = tx.nextID()
	tx.repo.state.invoices[inv.ID] = inv
	return inv.ID, nil
}

func (tx *memoryProcTx) InsertReturn(ctx context.Context, ret Return) (int64, error) {
	ret.ID = tx.nextID()
	tx.repo.state.returns[ret.ID] = ret
	return ret.ID, nil
}

func (tx *memoryProcTx) ReturnedQuantities(ctx context.Context, orderID int64) (map[int64]decimal.Decimal, error) {
	return tx.repo.state.returned(orderID), nil
}

func (tx *memoryProcTx) SupplierExists(ctx context.Context, id int64) (bool, error) {
	return tx.repo.suppliers[id], nil
}

func (tx *memoryProcTx) WarehouseExists(ctx context.Context, id int64) (bool, error) {
	return tx.repo.warehouses[id], nil
}

func (tx *memoryProcTx) ProductClasses(ctx context.Context, ids []int64) (map[int64]inventory.ItemClass, error) {
	out := make(map[int64]inventory.ItemClass)
	for _, id := range ids {
		if class, ok := tx.repo.products[id]; ok {
			out[id] = class
		}
	}
	return out, nil
}

func (tx *memoryProcTx) Ledger() inventory.Store {
	return tx
}

func (tx *memoryProcTx) AddStock(ctx context.Context, productID, warehouseID int64, delta decimal.Decimal) error {
	if tx.repo.failLedger {
		return errLedgerDown
	}
	k := [2]int64{productID, warehouseID}
	tx.repo.state.stock[k] = tx.repo.state.stock[k].Add(delta)
	return nil
}

func (tx *memoryProcTx) AddSupplierStock(ctx context.Context, productID, warehouseID, supplierID int64, delta decimal.Decimal, price decimal.NullDecimal) error {
	k := supplierKey{productID, warehouseID, supplierID}
	row := tx.repo.state.supplier[k]
	row.qty = row.qty.Add(delta)
	if price.Valid {
		row.price = price
	}
	tx.repo.state.supplier[k] = row
	return nil
}

type memoryIdem struct {
	mu   sync.Mutex
	keys map[string]string
}

func newMemoryIdem() *memoryIdem {
	return &memoryIdem{keys: make(map[string]string)}
}

func (m *memoryIdem) CheckAndInsert(ctx context.Context, key, module string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[key]; ok {
		return shared.ErrIdempotencyConflict
	}
	m.keys[key] = module
	return nil
}

func (m *memoryIdem) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}

type recorder struct {
	mu          sync.Mutex
	deltas      map[string]int
	transitions []string
	bumps       int
}

func newRecorder() *recorder {
	return &recorder{deltas: make(map[string]int)}
}

func (r *recorder) RecordLedgerDelta(direction string, products int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deltas[direction] += products
}

func (r *recorder) RecordTransition(lifecycle, from, to string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, lifecycle+":"+from+">"+to)
}

func (r *recorder) Invalidate(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bumps++
}

type auditSink struct {
	mu      sync.Mutex
	actions []string
}

func (a *auditSink) Record(ctx context.Context, log shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.actions = append(a.actions, log.Action)
	return nil
}
