package procurement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/odyssey-erp/odyssey-purchasing/internal/platform/storage"
	"github.com/odyssey-erp/odyssey-purchasing/internal/shared"
)

// ErrAttachmentStoreMissing indicates an attachment arrived but no store is wired.
var ErrAttachmentStoreMissing = errors.New("procurement: attachment store not configured")

// Attachment is the raw invoice document.
type Attachment struct {
	Filename string
	Body     []byte
}

// RegisterInvoiceInput binds an invoice to an order.
type RegisterInvoiceInput struct {
	OrderID         int64
	InvoiceNumber   string
	PaymentMethodID int64
	PaymentTermsID  int64
	DocTypeID       int64
	Attachment      *Attachment
	IdempotencyKey  string
}

func alreadyCompleted(id int64) error {
	return fmt.Errorf("%w: order %d is already completed", shared.ErrInvalidState, id)
}

// RegisterInvoice records the invoice and completes the order in the same
// transaction. Completion goes through the state machine, so a deferred order
// applies its lines to the ledger here, exactly once. Concurrent registrations
// serialize on the order row lock and the loser sees COMPLETED.
func (s *Service) RegisterInvoice(ctx context.Context, input RegisterInvoiceInput) (Invoice, error) {
	actor, err := shared.RequireAdmin(ctx)
	if err != nil {
		return Invoice{}, err
	}
	input.InvoiceNumber = strings.TrimSpace(input.InvoiceNumber)
	if input.InvoiceNumber == "" {
		return Invoice{}, shared.Invalid("invoice_number", "required")
	}
	var contentType, ext string
	if input.Attachment != nil {
		if contentType, ext, err = storage.DetectAllowed(input.Attachment.Body, s.maxBytes); err != nil {
			return Invoice{}, err
		}
		if s.attachments == nil {
			return Invoice{}, ErrAttachmentStoreMissing
		}
	}
	current, err := s.repo.GetOrder(ctx, input.OrderID)
	if err != nil {
		return Invoice{}, shared.Storage("get order", err)
	}
	if current.Status == StatusCompleted {
		return Invoice{}, alreadyCompleted(current.ID)
	}
	release, err := s.claimKey(ctx, input.IdempotencyKey, shared.IdemModuleInvoice)
	if err != nil {
		return Invoice{}, err
	}

	// The object is written before the transaction and deleted on every error
	// path. A process crash between Put and commit leaves it unreferenced by
	// invoices.attachment_ref.
	var ref string
	if input.Attachment != nil {
		key := storage.ObjectKey(fmt.Sprintf("invoices/%d", input.OrderID), ext, s.now())
		if ref, err = s.attachments.Put(ctx, key, input.Attachment.Body, contentType); err != nil {
			release()
			return Invoice{}, shared.Storage("store attachment", err)
		}
	}

	var inv Invoice
	fx := effects{}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.LockOrder(ctx, input.OrderID)
		if err != nil {
			return err
		}
		if order.Status == StatusCompleted {
			return alreadyCompleted(order.ID)
		}
		inv = Invoice{
			OrderID:         order.ID,
			InvoiceNumber:   input.InvoiceNumber,
			PaymentMethodID: input.PaymentMethodID,
			PaymentTermsID:  input.PaymentTermsID,
			DocTypeID:       input.DocTypeID,
			AttachmentRef:   ref,
			CreatedBy:       actor.UserID,
			CreatedAt:       s.now().UTC(),
		}
		if inv.ID, err = tx.InsertInvoice(ctx, inv); err != nil {
			return err
		}
		return s.transition(ctx, tx, &order, StatusCompleted, actor.UserID, &fx)
	})
	if err != nil {
		release()
		if ref != "" {
			if derr := s.attachments.Delete(context.WithoutCancel(ctx), ref); derr != nil {
				s.logger.Warn("drop orphaned attachment", slog.String("ref", ref), slog.Any("error", derr))
			}
		}
		return Invoice{}, shared.Storage("register invoice", err)
	}
	s.publish(ctx, fx)
	s.recordAudit(ctx, actor.UserID, "INVOICE_REGISTER", "invoice", inv.ID, map[string]any{
		"order_id":       inv.OrderID,
		"invoice_number": inv.InvoiceNumber,
		"attachment":     ref != "",
	})
	return inv, nil
}

// GetInvoice returns one invoice.
func (s *Service) GetInvoice(ctx context.Context, id int64) (Invoice, error) {
	inv, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		return Invoice{}, shared.Storage("get invoice", err)
	}
	return inv, nil
}

// ListInvoices returns invoices newest first, optionally for one order.
func (s *Service) ListInvoices(ctx context.Context, f DocFilters) ([]Invoice, shared.Pagination, error) {
	items, total, err := s.repo.ListInvoices(ctx, f)
	if err != nil {
		return nil, shared.Pagination{}, shared.Storage("list invoices", err)
	}
	if items == nil {
		items = []Invoice{}
	}
	return items, shared.NewPagination(f.Page, f.PerPage, total), nil
}
