package inventory

import (
	"context"
	"fmt"

	"github.com/odyssey-erp/odyssey-purchasing/internal/shared"
)

// RepositoryPort abstracts ledger reads for the service.
type RepositoryPort interface {
	GetBalance(ctx context.Context, productID, warehouseID int64) (Balance, error)
	StockByWarehouse(ctx context.Context, productID int64) ([]WarehouseStock, error)
	SupplierBalances(ctx context.Context, productID, warehouseID int64) ([]SupplierBalance, error)
}

// Service exposes read-committed ledger lookups. Writes go through ApplyDelta
// inside the caller's transaction.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// Balance returns the quantity of a product in a warehouse.
func (s *Service) Balance(ctx context.Context, productID, warehouseID int64) (Balance, error) {
	if productID <= 0 || warehouseID <= 0 {
		return Balance{}, shared.Invalid("product_id/warehouse_id", "required")
	}
	bal, err := s.repo.GetBalance(ctx, productID, warehouseID)
	if err != nil {
		return Balance{}, fmt.Errorf("inventory: balance: %w", shared.Storage("get balance", err))
	}
	return bal, nil
}

// StockByWarehouse returns the product quantity in every warehouse.
func (s *Service) StockByWarehouse(ctx context.Context, productID int64) ([]WarehouseStock, error) {
	if productID <= 0 {
		return nil, shared.Invalid("product_id", "required")
	}
	stocks, err := s.repo.StockByWarehouse(ctx, productID)
	if err != nil {
		return nil, shared.Storage("stock by warehouse", err)
	}
	return stocks, nil
}

// SupplierBalances returns the supplier-attributed view for a product.
func (s *Service) SupplierBalances(ctx context.Context, productID, warehouseID int64) ([]SupplierBalance, error) {
	if productID <= 0 {
		return nil, shared.Invalid("product_id", "required")
	}
	rows, err := s.repo.SupplierBalances(ctx, productID, warehouseID)
	if err != nil {
		return nil, shared.Storage("supplier balances", err)
	}
	return rows, nil
}
