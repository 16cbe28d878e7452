package procurement

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-purchasing/internal/inventory"
	"github.com/odyssey-erp/odyssey-purchasing/internal/shared"
)

// ReturnLineInput is one requested return line.
type ReturnLineInput struct {
	ProductID int64
	Quantity  decimal.Decimal
	Reason    string
}

// CreateReturnInput describes a partial return.
type CreateReturnInput struct {
	OrderID        int64
	Notes          string
	Lines          []ReturnLineInput
	IdempotencyKey string
}

// CreateReturn records a return against a completed order and reverts the
// returned quantities from the ledger. The remaining check and the insert run
// under the order row lock, so two concurrent returns cannot both pass against
// the same balance. Any offending line aborts the whole batch.
func (s *Service) CreateReturn(ctx context.Context, input CreateReturnInput) (Return, error) {
	actor, err := shared.RequireAdmin(ctx)
	if err != nil {
		return Return{}, err
	}
	if len(input.Lines) == 0 {
		return Return{}, shared.Invalid("lines", "at least one line is required")
	}
	for i, l := range input.Lines {
		if l.ProductID <= 0 {
			return Return{}, shared.Invalid(fmt.Sprintf("lines[%d].product_id", i), "required")
		}
		if err := shared.CheckScale(fmt.Sprintf("lines[%d].quantity", i), l.Quantity); err != nil {
			return Return{}, err
		}
	}
	release, err := s.claimKey(ctx, input.IdempotencyKey, shared.IdemModuleReturnCreate)
	if err != nil {
		return Return{}, err
	}

	var created Return
	fx := effects{}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.LockOrder(ctx, input.OrderID)
		if err != nil {
			return err
		}
		if order.Status != StatusCompleted {
			return fmt.Errorf("%w: returns need a COMPLETED order, order %d is %s", shared.ErrInvalidState, order.ID, order.Status)
		}
		returned, err := tx.ReturnedQuantities(ctx, order.ID)
		if err != nil {
			return err
		}
		if err := checkReturnable(order.Lines, returned, input.Lines); err != nil {
			return err
		}

		ret := Return{OrderID: order.ID, Notes: strings.TrimSpace(input.Notes), CreatedBy: actor.UserID, CreatedAt: s.now().UTC()}
		ledger := make([]inventory.Line, 0, len(input.Lines))
		for _, l := range input.Lines {
			ret.Lines = append(ret.Lines, ReturnLine{ProductID: l.ProductID, Quantity: l.Quantity, Reason: strings.TrimSpace(l.Reason)})
			ledger = append(ledger, inventory.Line{ProductID: l.ProductID, Class: inventory.ClassGood, Quantity: l.Quantity})
		}
		if ret.ID, err = tx.InsertReturn(ctx, ret); err != nil {
			return err
		}
		n, err := inventory.ApplyDelta(ctx, tx.Ledger(), order.WarehouseID, order.SupplierID, ledger, inventory.Revert)
		if err != nil {
			return err
		}
		fx.lifecycle = order.Lifecycle
		fx.ledger(inventory.Revert, n)
		created = ret
		return nil
	})
	if err != nil {
		release()
		return Return{}, shared.Storage("create return", err)
	}
	s.publish(ctx, fx)
	s.recordAudit(ctx, actor.UserID, "RETURN_CREATE", "return", created.ID, map[string]any{
		"order_id": created.OrderID,
		"lines":    len(created.Lines),
	})
	return created, nil
}

// checkReturnable validates every requested line against purchased minus
// already returned, counting earlier lines of the same batch.
func checkReturnable(lines []OrderLine, returned map[int64]decimal.Decimal, requested []ReturnLineInput) error {
	purchased := purchasedGoods(lines)
	pending := make(map[int64]decimal.Decimal, len(requested))
	for _, l := range requested {
		remaining := purchased[l.ProductID].Sub(returned[l.ProductID]).Sub(pending[l.ProductID])
		if !l.Quantity.IsPositive() || l.Quantity.GreaterThan(remaining) {
			return &shared.QuantityExceededError{ProductID: l.ProductID, Requested: l.Quantity, Remaining: remaining}
		}
		pending[l.ProductID] = pending[l.ProductID].Add(l.Quantity)
	}
	return nil
}

// GetReturn returns one return with its lines.
func (s *Service) GetReturn(ctx context.Context, id int64) (Return, error) {
	ret, err := s.repo.GetReturn(ctx, id)
	if err != nil {
		return Return{}, shared.Storage("get return", err)
	}
	return ret, nil
}

// ListReturns returns headers newest first, optionally for one order.
func (s *Service) ListReturns(ctx context.Context, f DocFilters) ([]Return, shared.Pagination, error) {
	items, total, err := s.repo.ListReturns(ctx, f)
	if err != nil {
		return nil, shared.Pagination{}, shared.Storage("list returns", err)
	}
	if items == nil {
		items = []Return{}
	}
	return items, shared.NewPagination(f.Page, f.PerPage, total), nil
}
