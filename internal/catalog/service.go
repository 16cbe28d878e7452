package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/odyssey-purchasing/internal/inventory"
	"github.com/odyssey-erp/odyssey-purchasing/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	CurrentPrice(ctx context.Context, productID, supplierID int64) (SupplierPrice, error)
	GetPrice(ctx context.Context, id int64) (SupplierPrice, error)
	InsertPrice(ctx context.Context, p SupplierPrice) (int64, error)
	UpdatePrice(ctx context.Context, id int64, purchase decimal.Decimal, sale decimal.NullDecimal, effectiveAt time.Time) error
	DeletePrice(ctx context.Context, id int64) error
	PriceHistory(ctx context.Context, productID int64) ([]SupplierPrice, error)
	LatestPrices(ctx context.Context, productID int64) ([]SupplierPrice, error)
	SearchItems(ctx context.Context, f SearchFilter) ([]Item, error)
	GetProduct(ctx context.Context, id int64) (Product, error)
	SupplierExists(ctx context.Context, id int64) (bool, error)
	ProductsAfter(ctx context.Context, afterID int64, limit int) ([]Product, error)
	SetSearchName(ctx context.Context, id int64, searchName string) (bool, error)
}

// StockPort provides per-warehouse stock for the inventory view.
type StockPort interface {
	StockByWarehouse(ctx context.Context, productID int64) ([]inventory.WarehouseStock, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service resolves prices and catalog lookups.
type Service struct {
	repo   RepositoryPort
	stock  StockPort
	cache  *Cache
	audit  AuditPort
	logger *slog.Logger
	group  singleflight.Group
	now    func() time.Time
}

// NewService constructs the catalog service. cache and audit may be nil.
func NewService(repo RepositoryPort, stock StockPort, cache *Cache, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, stock: stock, cache: cache, audit: audit, logger: logger, now: time.Now}
}

// ResolveCurrentPrice returns the latest price row, or found=false when the
// pair has no history.
func (s *Service) ResolveCurrentPrice(ctx context.Context, productID, supplierID int64) (SupplierPrice, bool, error) {
	if productID <= 0 || supplierID <= 0 {
		return SupplierPrice{}, false, shared.Invalid("product_id/supplier_id", "required")
	}
	p, err := s.repo.CurrentPrice(ctx, productID, supplierID)
	if errors.Is(err, shared.ErrNotFound) {
		return SupplierPrice{}, false, nil
	}
	if err != nil {
		return SupplierPrice{}, false, shared.Storage("current price", err)
	}
	return p, true, nil
}

// RecordPrice appends a price row; history is never rewritten here.
func (s *Service) RecordPrice(ctx context.Context, input RecordPriceInput) (SupplierPrice, error) {
	actor, err := shared.RequireIdentity(ctx)
	if err != nil {
		return SupplierPrice{}, err
	}
	if err := validatePrices(input.PurchasePrice, input.SalePrice); err != nil {
		return SupplierPrice{}, err
	}
	if input.ProductID <= 0 {
		return SupplierPrice{}, shared.Invalid("product_id", "required")
	}
	if input.SupplierID <= 0 {
		return SupplierPrice{}, shared.Invalid("supplier_id", "required")
	}
	if _, err := s.repo.GetProduct(ctx, input.ProductID); err != nil {
		return SupplierPrice{}, shared.Storage("get product", err)
	}
	ok, err := s.repo.SupplierExists(ctx, input.SupplierID)
	if err != nil {
		return SupplierPrice{}, shared.Storage("supplier exists", err)
	}
	if !ok {
		return SupplierPrice{}, shared.Missing("supplier", input.SupplierID)
	}
	effective := input.EffectiveAt
	if effective.IsZero() {
		effective = s.now()
	}
	row := SupplierPrice{
		ProductID:     input.ProductID,
		SupplierID:    input.SupplierID,
		PurchasePrice: input.PurchasePrice,
		SalePrice:     input.SalePrice,
		EffectiveAt:   effective.UTC(),
	}
	id, err := s.repo.InsertPrice(ctx, row)
	if err != nil {
		return SupplierPrice{}, shared.Storage("insert price", err)
	}
	row.ID = id
	s.invalidate(ctx)
	s.recordAudit(ctx, actor.UserID, "PRICE_RECORD", id, map[string]any{
		"product_id":     row.ProductID,
		"supplier_id":    row.SupplierID,
		"purchase_price": row.PurchasePrice.String(),
	})
	return row, nil
}

// CorrectPrice rewrites one history row. Admin only; the ledger keeps the
// prices it already recorded.
func (s *Service) CorrectPrice(ctx context.Context, input CorrectPriceInput) (SupplierPrice, error) {
	actor, err := shared.RequireAdmin(ctx)
	if err != nil {
		return SupplierPrice{}, err
	}
	if err := validatePrices(input.PurchasePrice, input.SalePrice); err != nil {
		return SupplierPrice{}, err
	}
	if input.EffectiveAt.IsZero() {
		return SupplierPrice{}, shared.Invalid("effective_at", "required")
	}
	if err := s.repo.UpdatePrice(ctx, input.ID, input.PurchasePrice, input.SalePrice, input.EffectiveAt.UTC()); err != nil {
		return SupplierPrice{}, shared.Storage("update price", err)
	}
	updated, err := s.repo.GetPrice(ctx, input.ID)
	if err != nil {
		return SupplierPrice{}, shared.Storage("get price", err)
	}
	s.invalidate(ctx)
	s.recordAudit(ctx, actor.UserID, "PRICE_CORRECT", input.ID, map[string]any{"purchase_price": input.PurchasePrice.String()})
	return updated, nil
}

// DeletePrice removes one history row. Admin only.
func (s *Service) DeletePrice(ctx context.Context, id int64) error {
	actor, err := shared.RequireAdmin(ctx)
	if err != nil {
		return err
	}
	if err := s.repo.DeletePrice(ctx, id); err != nil {
		return shared.Storage("delete price", err)
	}
	s.invalidate(ctx)
	s.recordAudit(ctx, actor.UserID, "PRICE_DELETE", id, nil)
	return nil
}

type searchResult struct {
	Items []Item `json:"items"`
}

// ResolveCatalogItems searches the catalog. Identical concurrent lookups share
// one database round trip, and results are cached until the next bump.
func (s *Service) ResolveCatalogItems(ctx context.Context, f SearchFilter) ([]Item, error) {
	if f.Class == "" {
		f.Class = inventory.ClassGood
	}
	if !f.Class.Valid() {
		return nil, shared.Invalid("class", "must be GOOD or SUPPLY")
	}
	if f.Limit <= 0 {
		f.Limit = DefaultSearchLimit
	}
	if f.Limit > MaxSearchLimit {
		f.Limit = MaxSearchLimit
	}
	key, err := s.cache.BuildKey(ctx, "items", string(f.Class), NormalizeSearch(f.Text),
		strconv.FormatInt(f.SupplierID, 10), strconv.FormatInt(f.WarehouseID, 10), strconv.Itoa(f.Limit))
	cached := err == nil
	if !cached {
		s.logger.Warn("catalog cache key", slog.Any("error", err))
		key = fmt.Sprintf("direct:%s:%s:%d:%d:%d", f.Class, f.Text, f.SupplierID, f.WarehouseID, f.Limit)
	}
	// the shared load must outlive a cancelled first caller
	loadCtx := context.WithoutCancel(ctx)
	v, err, _ := s.group.Do(key, func() (any, error) {
		ctx := loadCtx
		if !cached {
			return s.repo.SearchItems(ctx, f)
		}
		var res searchResult
		loader := func(ctx context.Context) (any, error) {
			items, err := s.repo.SearchItems(ctx, f)
			if err != nil {
				return nil, err
			}
			return searchResult{Items: items}, nil
		}
		if err := s.cache.FetchJSON(ctx, key, &res, loader); err != nil {
			return nil, err
		}
		return res.Items, nil
	})
	if err != nil {
		return nil, shared.Storage("search items", err)
	}
	items, _ := v.([]Item)
	if items == nil {
		items = []Item{}
	}
	return items, nil
}

// ProductInventory returns stock per warehouse, the full price history and the
// latest price per supplier.
func (s *Service) ProductInventory(ctx context.Context, productID int64) (ProductInventory, error) {
	product, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return ProductInventory{}, shared.Storage("get product", err)
	}
	view := ProductInventory{ProductID: product.ID, Name: product.Name, Class: product.Class}
	if s.stock != nil {
		if view.Stocks, err = s.stock.StockByWarehouse(ctx, productID); err != nil {
			return ProductInventory{}, shared.Storage("stock by warehouse", err)
		}
	}
	if view.History, err = s.repo.PriceHistory(ctx, productID); err != nil {
		return ProductInventory{}, shared.Storage("price history", err)
	}
	if view.Latest, err = s.repo.LatestPrices(ctx, productID); err != nil {
		return ProductInventory{}, shared.Storage("latest prices", err)
	}
	return view, nil
}

// ReindexSearchNames refreshes products.search_name in batches and returns the
// number of rows changed.
func (s *Service) ReindexSearchNames(ctx context.Context, batch int) (int, error) {
	if batch <= 0 {
		batch = 500
	}
	var afterID int64
	changed := 0
	for {
		products, err := s.repo.ProductsAfter(ctx, afterID, batch)
		if err != nil {
			return changed, shared.Storage("products after", err)
		}
		for _, p := range products {
			ok, err := s.repo.SetSearchName(ctx, p.ID, NormalizeSearch(p.Name))
			if err != nil {
				return changed, shared.Storage("set search name", err)
			}
			if ok {
				changed++
			}
			afterID = p.ID
		}
		if len(products) < batch {
			break
		}
	}
	if changed > 0 {
		s.invalidate(ctx)
	}
	return changed, nil
}

// Invalidate drops every cached catalog read. Called after ledger movements.
func (s *Service) Invalidate(ctx context.Context) {
	s.invalidate(ctx)
}

func (s *Service) invalidate(ctx context.Context) {
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("catalog cache bump", slog.Any("error", err))
	}
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: "supplier_price", EntityID: shared.EntityRef(id), Meta: meta}); err != nil {
		s.logger.Warn("catalog audit", slog.String("action", action), slog.Any("error", err))
	}
}

func validatePrices(purchase decimal.Decimal, sale decimal.NullDecimal) error {
	if purchase.IsNegative() {
		return shared.Invalid("purchase_price", "must be >= 0")
	}
	if sale.Valid && sale.Decimal.IsNegative() {
		return shared.Invalid("sale_price", "must be >= 0")
	}
	if err := shared.CheckScale("purchase_price", purchase); err != nil {
		return err
	}
	if sale.Valid {
		return shared.CheckScale("sale_price", sale.Decimal)
	}
	return nil
}
