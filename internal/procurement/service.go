package procurement

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-purchasing/internal/inventory"
	"github.com/odyssey-erp/odyssey-purchasing/internal/platform/storage"
	"github.com/odyssey-erp/odyssey-purchasing/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetOrder(ctx context.Context, id int64) (PurchaseOrder, error)
	ListOrders(ctx context.Context, f ListFilters) ([]PurchaseOrder, int, error)
	ReturnedQuantities(ctx context.Context, orderID int64) (map[int64]decimal.Decimal, error)
	GetInvoice(ctx context.Context, id int64) (Invoice, error)
	ListInvoices(ctx context.Context, f DocFilters) ([]Invoice, int, error)
	GetReturn(ctx context.Context, id int64) (Return, error)
	ListReturns(ctx context.Context, f DocFilters) ([]Return, int, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort claims request keys.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// CacheInvalidator drops cached catalog reads after stock moved.
type CacheInvalidator interface {
	Invalidate(ctx context.Context)
}

// MetricsRecorder observes committed ledger movements and transitions.
type MetricsRecorder interface {
	RecordLedgerDelta(direction string, products int)
	RecordTransition(lifecycle, from, to string)
}

// Deps carries the optional collaborators of Service.
type Deps struct {
	Audit              AuditPort
	Idempotency        IdempotencyPort
	Attachments        storage.Store
	Catalog            CacheInvalidator
	Metrics            MetricsRecorder
	Logger             *slog.Logger
	AttachmentMaxBytes int64
}

// Service orchestrates the purchase order lifecycle and its ledger effects.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency IdempotencyPort
	attachments storage.Store
	catalog     CacheInvalidator
	metrics     MetricsRecorder
	logger      *slog.Logger
	maxBytes    int64
	now         func() time.Time
}

// NewService constructs procurement service.
func NewService(repo RepositoryPort, deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxBytes := deps.AttachmentMaxBytes
	if maxBytes <= 0 {
		maxBytes = storage.DefaultMaxBytes
	}
	return &Service{
		repo:        repo,
		audit:       deps.Audit,
		idempotency: deps.Idempotency,
		attachments: deps.Attachments,
		catalog:     deps.Catalog,
		metrics:     deps.Metrics,
		logger:      logger,
		maxBytes:    maxBytes,
		now:         time.Now,
	}
}

// LineInput is one normalized order line from the boundary. An empty class is
// resolved from the product.
type LineInput struct {
	ItemID    int64
	ItemClass inventory.ItemClass
	Quantity  decimal.Decimal
	UnitPrice decimal.Decimal
}

// CreateOrderInput describes a new order.
type CreateOrderInput struct {
	SupplierID     int64
	WarehouseID    int64
	Lifecycle      Lifecycle
	OrderDate      time.Time
	Notes          string
	Lines          []LineInput
	IdempotencyKey string
}

// EditOrderInput replaces the header fields and the whole line set.
type EditOrderInput struct {
	ID          int64
	SupplierID  int64
	WarehouseID int64
	OrderDate   time.Time
	Notes       string
	Lines       []LineInput
}

// CreateOrder persists a PENDING order. The ledger is not touched.
func (s *Service) CreateOrder(ctx context.Context, input CreateOrderInput) (PurchaseOrder, error) {
	actor, err := shared.RequireIdentity(ctx)
	if err != nil {
		return PurchaseOrder{}, err
	}
	if input.Lifecycle == "" {
		input.Lifecycle = LifecycleDeferred
	}
	if !input.Lifecycle.Valid() {
		return PurchaseOrder{}, shared.Invalid("lifecycle", "must be DIRECT or DEFERRED")
	}
	if err := validateHeader(input.SupplierID, input.WarehouseID, input.Lines); err != nil {
		return PurchaseOrder{}, err
	}
	release, err := s.claimKey(ctx, input.IdempotencyKey, shared.IdemModuleOrderCreate)
	if err != nil {
		return PurchaseOrder{}, err
	}

	var created PurchaseOrder
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		lines, err := resolveLines(ctx, tx, input.SupplierID, input.WarehouseID, input.Lines)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		order := PurchaseOrder{
			SupplierID:  input.SupplierID,
			WarehouseID: input.WarehouseID,
			Lifecycle:   input.Lifecycle,
			OrderDate:   dateOr(input.OrderDate, now),
			Total:       OrderTotal(lines),
			Status:      StatusPending,
			Notes:       strings.TrimSpace(input.Notes),
			CreatedBy:   actor.UserID,
			CreatedAt:   now,
			UpdatedAt:   now,
			Lines:       lines,
		}
		id, err := tx.InsertOrder(ctx, order)
		if err != nil {
			return err
		}
		order.ID = id
		created = order
		return nil
	})
	if err != nil {
		release()
		return PurchaseOrder{}, shared.Storage("create order", err)
	}
	s.recordAudit(ctx, actor.UserID, "ORDER_CREATE", "purchase_order", created.ID, map[string]any{
		"supplier_id": created.SupplierID,
		"lifecycle":   created.Lifecycle,
		"total":       created.Total.String(),
	})
	return created, nil
}

// EditOrder replaces the line set. When the order currently has its lines in
// the ledger, the old lines are reverted against the old warehouse and supplier
// and the new ones applied against the new pair, inside the same transaction.
// Orders past PENDING may only be edited by an admin.
func (s *Service) EditOrder(ctx context.Context, input EditOrderInput) (PurchaseOrder, error) {
	actor, err := shared.RequireIdentity(ctx)
	if err != nil {
		return PurchaseOrder{}, err
	}
	if err := validateHeader(input.SupplierID, input.WarehouseID, input.Lines); err != nil {
		return PurchaseOrder{}, err
	}

	var updated PurchaseOrder
	fx := effects{}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.LockOrder(ctx, input.ID)
		if err != nil {
			return err
		}
		if order.Status.Terminal() {
			return fmt.Errorf("%w: %s order %d cannot be edited", shared.ErrInvalidState, order.Status, order.ID)
		}
		if order.Status != StatusPending && !actor.Admin {
			return shared.ErrPermission
		}
		lines, err := resolveLines(ctx, tx, input.SupplierID, input.WarehouseID, input.Lines)
		if err != nil {
			return err
		}
		fx.lifecycle = order.Lifecycle
		active := order.Lifecycle.LedgerActive(order.Status)
		if active {
			n, err := inventory.ApplyDelta(ctx, tx.Ledger(), order.WarehouseID, order.SupplierID, ledgerLines(order.Lines), inventory.Revert)
			if err != nil {
				return err
			}
			fx.ledger(inventory.Revert, n)
		}
		if err := tx.ReplaceLines(ctx, order.ID, lines); err != nil {
			return err
		}
		order.SupplierID = input.SupplierID
		order.WarehouseID = input.WarehouseID
		order.OrderDate = dateOr(input.OrderDate, order.OrderDate)
		order.Notes = strings.TrimSpace(input.Notes)
		order.Lines = lines
		order.Total = OrderTotal(lines)
		order.ModifiedBy = actor.UserID
		order.UpdatedAt = s.now().UTC()
		if err := tx.UpdateOrder(ctx, order); err != nil {
			return err
		}
		if active {
			n, err := inventory.ApplyDelta(ctx, tx.Ledger(), order.WarehouseID, order.SupplierID, ledgerLines(order.Lines), inventory.Apply)
			if err != nil {
				return err
			}
			fx.ledger(inventory.Apply, n)
		}
		updated = order
		return nil
	})
	if err != nil {
		return PurchaseOrder{}, shared.Storage("edit order", err)
	}
	s.publish(ctx, fx)
	s.recordAudit(ctx, actor.UserID, "ORDER_EDIT", "purchase_order", updated.ID, map[string]any{
		"status": updated.Status,
		"total":  updated.Total.String(),
	})
	return updated, nil
}

// GetOrder returns an order with its lines.
func (s *Service) GetOrder(ctx context.Context, id int64) (PurchaseOrder, error) {
	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return PurchaseOrder{}, shared.Storage("get order", err)
	}
	return order, nil
}

// ListOrders returns order headers newest first.
func (s *Service) ListOrders(ctx context.Context, f ListFilters) ([]PurchaseOrder, shared.Pagination, error) {
	for _, st := range f.Statuses {
		if !st.Valid() {
			return nil, shared.Pagination{}, shared.Invalid("status", fmt.Sprintf("unknown status %q", st))
		}
	}
	if f.Lifecycle != "" && !f.Lifecycle.Valid() {
		return nil, shared.Pagination{}, shared.Invalid("lifecycle", "must be DIRECT or DEFERRED")
	}
	orders, total, err := s.repo.ListOrders(ctx, f)
	if err != nil {
		return nil, shared.Pagination{}, shared.Storage("list orders", err)
	}
	if orders == nil {
		orders = []PurchaseOrder{}
	}
	return orders, shared.NewPagination(f.Page, f.PerPage, total), nil
}

// SetOrderStatus moves an order along its lifecycle and applies or reverts the
// ledger for exactly the edge crossed. Admin only. COMPLETED is reachable only
// through RegisterInvoice.
func (s *Service) SetOrderStatus(ctx context.Context, id int64, target Status) (PurchaseOrder, error) {
	actor, err := shared.RequireAdmin(ctx)
	if err != nil {
		return PurchaseOrder{}, err
	}
	if !target.Valid() {
		return PurchaseOrder{}, shared.Invalid("status", fmt.Sprintf("unknown status %q", target))
	}
	if target == StatusCompleted {
		return PurchaseOrder{}, fmt.Errorf("%w: orders complete only through invoice registration", shared.ErrInvalidState)
	}

	var order PurchaseOrder
	var from Status
	fx := effects{}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		order, err = tx.LockOrder(ctx, id)
		if err != nil {
			return err
		}
		from = order.Status
		return s.transition(ctx, tx, &order, target, actor.UserID, &fx)
	})
	if err != nil {
		return PurchaseOrder{}, shared.Storage("set order status", err)
	}
	s.publish(ctx, fx)
	if from != target {
		s.recordAudit(ctx, actor.UserID, "ORDER_STATUS", "purchase_order", order.ID, map[string]any{
			"from": from,
			"to":   target,
		})
	}
	return order, nil
}

// ApproveOrder moves the order to APPROVED. Approving an approved order is a no-op.
func (s *Service) ApproveOrder(ctx context.Context, id int64) (PurchaseOrder, error) {
	return s.SetOrderStatus(ctx, id, StatusApproved)
}

// ReturnableBalance reports purchased, returned and remaining quantity per
// GOOD product of an order.
func (s *Service) ReturnableBalance(ctx context.Context, orderID int64) ([]ReturnableLine, error) {
	if _, err := shared.RequireAdmin(ctx); err != nil {
		return nil, err
	}
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, shared.Storage("get order", err)
	}
	returned, err := s.repo.ReturnedQuantities(ctx, orderID)
	if err != nil {
		return nil, shared.Storage("returned quantities", err)
	}
	return returnable(order.Lines, returned), nil
}

func returnable(lines []OrderLine, returned map[int64]decimal.Decimal) []ReturnableLine {
	purchased := purchasedGoods(lines)
	seen := make(map[int64]bool, len(purchased))
	out := make([]ReturnableLine, 0, len(purchased))
	for _, l := range lines {
		if l.ItemClass != inventory.ClassGood || seen[l.ItemID] {
			continue
		}
		seen[l.ItemID] = true
		out = append(out, ReturnableLine{
			ProductID: l.ItemID,
			Purchased: purchased[l.ItemID],
			Returned:  returned[l.ItemID],
			Remaining: purchased[l.ItemID].Sub(returned[l.ItemID]),
		})
	}
	return out
}

// transition is the single ledger-aware state machine step. The caller must
// hold the order row lock. Moving to the current status is a no-op, which makes
// repeated completion apply the ledger at most once.
func (s *Service) transition(ctx context.Context, tx TxRepository, order *PurchaseOrder, target Status, actorID int64, fx *effects) error {
	from := order.Status
	if from == target {
		return nil
	}
	if !order.Lifecycle.CanTransition(from, target) {
		return invalidTransition(order.Lifecycle, from, target)
	}
	fx.lifecycle = order.Lifecycle
	if sign, moves := order.Lifecycle.Edge(from, target); moves {
		n, err := inventory.ApplyDelta(ctx, tx.Ledger(), order.WarehouseID, order.SupplierID, ledgerLines(order.Lines), sign)
		if err != nil {
			return err
		}
		fx.ledger(sign, n)
	}
	if err := tx.UpdateStatus(ctx, order.ID, target, actorID); err != nil {
		return err
	}
	order.Status = target
	order.ModifiedBy = actorID
	order.UpdatedAt = s.now().UTC()
	fx.edges = append(fx.edges, [2]Status{from, target})
	return nil
}

type ledgerMove struct {
	sign     inventory.Sign
	products int
}

// effects collects what a transaction did so it can be reported after commit.
type effects struct {
	lifecycle Lifecycle
	moves     []ledgerMove
	edges     [][2]Status
}

func (fx *effects) ledger(sign inventory.Sign, products int) {
	if products > 0 {
		fx.moves = append(fx.moves, ledgerMove{sign: sign, products: products})
	}
}

func (s *Service) publish(ctx context.Context, fx effects) {
	if s.metrics != nil {
		for _, m := range fx.moves {
			s.metrics.RecordLedgerDelta(m.sign.String(), m.products)
		}
		for _, e := range fx.edges {
			s.metrics.RecordTransition(string(fx.lifecycle), string(e[0]), string(e[1]))
		}
	}
	if len(fx.moves) > 0 && s.catalog != nil {
		s.catalog.Invalidate(ctx)
	}
}

// claimKey reserves an idempotency key and returns its release func for the
// failure path.
func (s *Service) claimKey(ctx context.Context, key, module string) (func(), error) {
	key = strings.TrimSpace(key)
	if key == "" || s.idempotency == nil {
		return func() {}, nil
	}
	scoped := module + ":" + key
	if err := s.idempotency.CheckAndInsert(ctx, scoped, module); err != nil {
		return nil, err
	}
	return func() {
		if err := s.idempotency.Delete(context.WithoutCancel(ctx), scoped); err != nil {
			s.logger.Warn("release idempotency key", slog.String("key", scoped), slog.Any("error", err))
		}
	}, nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action, entity string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: entity, EntityID: shared.EntityRef(entityID), Meta: meta})
	if err != nil {
		s.logger.Warn("procurement audit", slog.String("action", action), slog.Any("error", err))
	}
}

func validateHeader(supplierID, warehouseID int64, lines []LineInput) error {
	if supplierID <= 0 {
		return shared.Invalid("supplier_id", "required")
	}
	if warehouseID < 0 {
		return shared.Invalid("warehouse_id", "must be positive")
	}
	if len(lines) == 0 {
		return shared.Invalid("lines", "at least one line is required")
	}
	for i, l := range lines {
		field := fmt.Sprintf("lines[%d]", i)
		switch {
		case l.ItemID <= 0:
			return shared.Invalid(field+".item_id", "required")
		case l.ItemClass != "" && !l.ItemClass.Valid():
			return shared.Invalid(field+".item_class", "must be GOOD or SUPPLY")
		case !l.Quantity.IsPositive():
			return shared.Invalid(field+".quantity", "must be > 0")
		case l.UnitPrice.IsNegative():
			return shared.Invalid(field+".unit_price", "must be >= 0")
		case !shared.FitsScale(l.Quantity):
			return shared.CheckScale(field+".quantity", l.Quantity)
		case !shared.FitsScale(l.UnitPrice):
			return shared.CheckScale(field+".unit_price", l.UnitPrice)
		case l.ItemClass == inventory.ClassGood && warehouseID == 0:
			return shared.Invalid("warehouse_id", "required when any line is GOOD")
		}
	}
	return nil
}

// resolveLines checks the referenced supplier, warehouse and products exist
// and fixes every line's class from the product record.
func resolveLines(ctx context.Context, tx TxRepository, supplierID, warehouseID int64, input []LineInput) ([]OrderLine, error) {
	ok, err := tx.SupplierExists(ctx, supplierID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, shared.Missing("supplier", supplierID)
	}
	if warehouseID > 0 {
		if ok, err = tx.WarehouseExists(ctx, warehouseID); err != nil {
			return nil, err
		}
		if !ok {
			return nil, shared.Missing("warehouse", warehouseID)
		}
	}
	ids := make([]int64, 0, len(input))
	for _, l := range input {
		ids = append(ids, l.ItemID)
	}
	classes, err := tx.ProductClasses(ctx, ids)
	if err != nil {
		return nil, err
	}
	lines := make([]OrderLine, 0, len(input))
	for i, l := range input {
		class, found := classes[l.ItemID]
		if !found {
			return nil, shared.Missing("product", l.ItemID)
		}
		if l.ItemClass != "" && l.ItemClass != class {
			return nil, shared.Invalid(fmt.Sprintf("lines[%d].item_class", i), fmt.Sprintf("product %d is %s", l.ItemID, class))
		}
		if class == inventory.ClassGood && warehouseID == 0 {
			return nil, shared.Invalid("warehouse_id", "required when any line is GOOD")
		}
		lines = append(lines, OrderLine{ItemID: l.ItemID, ItemClass: class, Quantity: l.Quantity, UnitPrice: l.UnitPrice})
	}
	return lines, nil
}

func dateOr(v, fallback time.Time) time.Time {
	if v.IsZero() {
		return fallback
	}
	return v
}
