package procurement

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-purchasing/internal/inventory"
)

// Status is the purchase order status.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusApproved  Status = "APPROVED"
	StatusCompleted Status = "COMPLETED"
	StatusDenied    Status = "DENIED"
	StatusVoid      Status = "VOID"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusCompleted, StatusDenied, StatusVoid:
		return true
	}
	return false
}

// Terminal statuses accept no further edits or transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusVoid
}

// Lifecycle selects when an order moves stock.
type Lifecycle string

const (
	// LifecycleDirect moves stock on approval and reverses it on exit from APPROVED.
	LifecycleDirect Lifecycle = "DIRECT"
	// LifecycleDeferred moves stock once, when the invoice completes the order.
	LifecycleDeferred Lifecycle = "DEFERRED"
)

// Valid reports whether l is a known lifecycle.
func (l Lifecycle) Valid() bool {
	return l == LifecycleDirect || l == LifecycleDeferred
}

// PurchaseOrder is the order header plus its owned lines.
type PurchaseOrder struct {
	ID          int64           `json:"id"`
	SupplierID  int64           `json:"supplier_id"`
	WarehouseID int64           `json:"warehouse_id,omitempty"`
	Lifecycle   Lifecycle       `json:"lifecycle"`
	OrderDate   time.Time       `json:"order_date"`
	Total       decimal.Decimal `json:"total"`
	Status      Status          `json:"status"`
	Notes       string          `json:"notes"`
	CreatedBy   int64           `json:"created_by"`
	ModifiedBy  int64           `json:"modified_by,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	Lines       []OrderLine     `json:"lines,omitempty"`
}

// OrderLine is one purchased item.
type OrderLine struct {
	ID        int64               `json:"id,omitempty"`
	ItemID    int64               `json:"item_id"`
	ItemClass inventory.ItemClass `json:"item_class"`
	Quantity  decimal.Decimal     `json:"quantity"`
	UnitPrice decimal.Decimal     `json:"unit_price"`
}

// Subtotal is quantity × unit price.
func (l OrderLine) Subtotal() decimal.Decimal {
	return l.Quantity.Mul(l.UnitPrice)
}

// OrderTotal sums the line subtotals.
func OrderTotal(lines []OrderLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

// ledgerLines converts order lines into ledger input. Every line carries its
// unit price so the supplier balance records the last purchase price.
func ledgerLines(lines []OrderLine) []inventory.Line {
	out := make([]inventory.Line, 0, len(lines))
	for _, l := range lines {
		out = append(out, inventory.Line{
			ProductID: l.ItemID,
			Class:     l.ItemClass,
			Quantity:  l.Quantity,
			UnitPrice: decimal.NewNullDecimal(l.UnitPrice),
		})
	}
	return out
}

// purchasedGoods sums GOOD quantities per product.
func purchasedGoods(lines []OrderLine) map[int64]decimal.Decimal {
	out := make(map[int64]decimal.Decimal)
	for _, l := range lines {
		if l.ItemClass != inventory.ClassGood {
			continue
		}
		out[l.ItemID] = out[l.ItemID].Add(l.Quantity)
	}
	return out
}

// Invoice binds supplier invoice metadata to an order.
type Invoice struct {
	ID              int64     `json:"id"`
	OrderID         int64     `json:"order_id"`
	InvoiceNumber   string    `json:"invoice_number"`
	PaymentMethodID int64     `json:"payment_method_id,omitempty"`
	PaymentTermsID  int64     `json:"payment_terms_id,omitempty"`
	DocTypeID       int64     `json:"doc_type_id,omitempty"`
	AttachmentRef   string    `json:"attachment_ref,omitempty"`
	CreatedBy       int64     `json:"created_by"`
	CreatedAt       time.Time `json:"created_at"`
}

// Return is a partial return against a completed order.
type Return struct {
	ID        int64        `json:"id"`
	OrderID   int64        `json:"order_id"`
	Notes     string       `json:"notes"`
	CreatedBy int64        `json:"created_by"`
	CreatedAt time.Time    `json:"created_at"`
	Lines     []ReturnLine `json:"lines,omitempty"`
}

// ReturnLine is one returned product.
type ReturnLine struct {
	ID        int64           `json:"id,omitempty"`
	ProductID int64           `json:"product_id"`
	Quantity  decimal.Decimal `json:"quantity"`
	Reason    string          `json:"reason"`
}

// ReturnableLine reports how much of a product can still be returned.
type ReturnableLine struct {
	ProductID int64           `json:"product_id"`
	Purchased decimal.Decimal `json:"purchased"`
	Returned  decimal.Decimal `json:"returned"`
	Remaining decimal.Decimal `json:"remaining"`
}

// ListFilters narrows ListOrders.
type ListFilters struct {
	Statuses   []Status
	SupplierID int64
	Lifecycle  Lifecycle
	Page       int
	PerPage    int
}

// DocFilters narrows invoice and return listings.
type DocFilters struct {
	OrderID int64
	Page    int
	PerPage int
}
