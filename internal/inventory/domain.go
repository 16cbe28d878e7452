package inventory

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ItemClass distinguishes stocked goods from ledger-exempt supplies.
type ItemClass string

const (
	// ClassGood is a stocked physical product; it moves the ledger.
	ClassGood ItemClass = "GOOD"
	// ClassSupply is a non-stock consumable; the ledger ignores it.
	ClassSupply ItemClass = "SUPPLY"
)

// Valid reports whether c is a known class.
func (c ItemClass) Valid() bool {
	return c == ClassGood || c == ClassSupply
}

// Sign is the direction of a ledger delta.
type Sign int

const (
	// Apply adds quantities to the ledger.
	Apply Sign = 1
	// Revert subtracts previously applied quantities.
	Revert Sign = -1
)

func (s Sign) String() string {
	switch s {
	case Apply:
		return "apply"
	case Revert:
		return "revert"
	default:
		return "invalid"
	}
}

// Line is one movement candidate handed to the ledger.
type Line struct {
	ProductID int64
	Class     ItemClass
	Quantity  decimal.Decimal
	UnitPrice decimal.NullDecimal
}

// ProductDelta is the aggregated movement for one product.
type ProductDelta struct {
	ProductID int64
	Quantity  decimal.Decimal
	LastPrice decimal.NullDecimal
}

// Balance is the on-hand quantity of a product in a warehouse.
type Balance struct {
	ProductID   int64           `json:"product_id"`
	WarehouseID int64           `json:"warehouse_id"`
	Quantity    decimal.Decimal `json:"quantity"`
}

// WarehouseStock is a Balance annotated with the warehouse name.
type WarehouseStock struct {
	WarehouseID   int64           `json:"warehouse_id"`
	WarehouseName string          `json:"warehouse_name"`
	Quantity      decimal.Decimal `json:"quantity"`
}

// SupplierBalance is the supplier-attributed view of stock.
type SupplierBalance struct {
	ProductID         int64               `json:"product_id"`
	WarehouseID       int64               `json:"warehouse_id"`
	SupplierID        int64               `json:"supplier_id"`
	Quantity          decimal.Decimal     `json:"quantity"`
	LastPurchasePrice decimal.NullDecimal `json:"last_purchase_price"`
	UpdatedAt         time.Time           `json:"updated_at"`
}

var (
	// ErrInvalidSign indicates a sign other than Apply or Revert.
	ErrInvalidSign = errors.New("inventory: sign must be +1 or -1")
	// ErrWarehouseRequired indicates GOOD lines without a warehouse.
	ErrWarehouseRequired = errors.New("inventory: warehouse required for GOOD lines")
	// ErrSupplierRequired indicates a delta without supplier attribution.
	ErrSupplierRequired = errors.New("inventory: supplier required")
)
