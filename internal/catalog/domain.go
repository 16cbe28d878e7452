package catalog

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-purchasing/internal/inventory"
)

// Search caps; zero-stock items are never filtered out.
const (
	DefaultSearchLimit = 200
	MaxSearchLimit     = 300
)

// SupplierPrice is one append-only row of a (product, supplier) price history.
type SupplierPrice struct {
	ID            int64               `json:"id"`
	ProductID     int64               `json:"product_id"`
	SupplierID    int64               `json:"supplier_id"`
	SupplierName  string              `json:"supplier_name,omitempty"`
	PurchasePrice decimal.Decimal     `json:"purchase_price"`
	SalePrice     decimal.NullDecimal `json:"sale_price"`
	EffectiveAt   time.Time           `json:"effective_at"`
}

// Item is a catalog search result with resolved price and stock.
type Item struct {
	ItemID   int64               `json:"item_id"`
	Name     string              `json:"name"`
	ImageURL string              `json:"image_url"`
	Class    inventory.ItemClass `json:"class"`
	Price    decimal.NullDecimal `json:"price"`
	Stock    decimal.Decimal     `json:"stock"`
}

// SearchFilter narrows ResolveCatalogItems.
type SearchFilter struct {
	Text        string
	Class       inventory.ItemClass
	SupplierID  int64
	WarehouseID int64
	Limit       int
}

// ProductInventory is the per-product stock and price overview.
type ProductInventory struct {
	ProductID int64                      `json:"product_id"`
	Name      string                     `json:"name"`
	Class     inventory.ItemClass        `json:"class"`
	Stocks    []inventory.WarehouseStock `json:"stocks"`
	History   []SupplierPrice            `json:"history"`
	Latest    []SupplierPrice            `json:"latest"`
}

// Product is the read-only product reference.
type Product struct {
	ID    int64
	Name  string
	Class inventory.ItemClass
}

// RecordPriceInput appends a price row. A zero EffectiveAt means now.
type RecordPriceInput struct {
	ProductID     int64               `json:"product_id" validate:"required,gt=0"`
	SupplierID    int64               `json:"supplier_id" validate:"required,gt=0"`
	PurchasePrice decimal.Decimal     `json:"purchase_price"`
	SalePrice     decimal.NullDecimal `json:"sale_price"`
	EffectiveAt   time.Time           `json:"effective_at"`
}

// CorrectPriceInput rewrites a history row. Ledger rows are never touched.
type CorrectPriceInput struct {
	ID            int64               `json:"-"`
	PurchasePrice decimal.Decimal     `json:"purchase_price"`
	SalePrice     decimal.NullDecimal `json:"sale_price"`
	EffectiveAt   time.Time           `json:"effective_at" validate:"required"`
}
