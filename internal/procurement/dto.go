package procurement

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-purchasing/internal/inventory"
)

// orderPayload is the create/edit request body. Line items arrive either as a
// JSON array or as an object keyed by index ({"0": {...}, "1": {...}}), the
// shape produced by form serializers.
type orderPayload struct {
	SupplierID  looseID   `json:"supplier_id" validate:"gt=0"`
	WarehouseID looseID   `json:"warehouse_id" validate:"gte=0"`
	Lifecycle   string    `json:"lifecycle"`
	OrderDate   flexDate  `json:"order_date"`
	Notes       string    `json:"notes" validate:"max=2000"`
	Items       lineItems `json:"items" validate:"min=1,dive"`
}

type linePayload struct {
	ItemID    looseID         `json:"item_id" validate:"gt=0"`
	ItemClass string          `json:"item_class"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type lineItems []linePayload

func (l *lineItems) UnmarshalJSON(data []byte) error {
	items, err := decodeSeq[linePayload](data)
	*l = items
	return err
}

type returnPayload struct {
	Notes string      `json:"notes" validate:"max=2000"`
	Items returnItems `json:"items" validate:"min=1,dive"`
}

type returnLinePayload struct {
	ProductID looseID         `json:"product_id" validate:"gt=0"`
	Quantity  decimal.Decimal `json:"quantity"`
	Reason    string          `json:"reason" validate:"max=500"`
}

type returnItems []returnLinePayload

func (l *returnItems) UnmarshalJSON(data []byte) error {
	items, err := decodeSeq[returnLinePayload](data)
	*l = items
	return err
}

type statusPayload struct {
	Status string `json:"status" validate:"required"`
}

// decodeSeq accepts an array or an index-keyed object and returns the elements
// in index order. Non-numeric keys sort after numeric ones.
func decodeSeq[T any](data []byte) ([]T, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}
	switch data[0] {
	case '[':
		var out []T
		err := json.Unmarshal(data, &out)
		return out, err
	case '{':
		var keyed map[string]T
		if err := json.Unmarshal(data, &keyed); err != nil {
			return nil, err
		}
		keys := make([]string, 0, len(keyed))
		for k := range keyed {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool {
			a, errA := strconv.Atoi(keys[i])
			b, errB := strconv.Atoi(keys[j])
			switch {
			case errA == nil && errB == nil:
				return a < b
			case errA == nil:
				return true
			case errB == nil:
				return false
			}
			return keys[i] < keys[j]
		})
		out := make([]T, 0, len(keys))
		for _, k := range keys {
			out = append(out, keyed[k])
		}
		return out, nil
	}
	return nil, errors.New("items must be an array or an object")
}

// looseID accepts 12, "12" or "" (zero).
type looseID int64

func (id *looseID) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(strings.Trim(string(bytes.TrimSpace(data)), `"`))
	if raw == "" || raw == "null" {
		*id = 0
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid id %q", raw)
	}
	*id = looseID(v)
	return nil
}

// flexDate accepts a plain date or an RFC 3339 timestamp.
type flexDate struct {
	time.Time
}

func (d *flexDate) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(strings.Trim(string(bytes.TrimSpace(data)), `"`))
	if raw == "" || raw == "null" {
		d.Time = time.Time{}
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			d.Time = t
			return nil
		}
	}
	return fmt.Errorf("invalid date %q", raw)
}

func (p orderPayload) lines() []LineInput {
	out := make([]LineInput, 0, len(p.Items))
	for _, it := range p.Items {
		out = append(out, LineInput{
			ItemID:    int64(it.ItemID),
			ItemClass: inventory.ItemClass(strings.ToUpper(strings.TrimSpace(it.ItemClass))),
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		})
	}
	return out
}

func (p orderPayload) createInput(idemKey string) CreateOrderInput {
	return CreateOrderInput{
		SupplierID:     int64(p.SupplierID),
		WarehouseID:    int64(p.WarehouseID),
		Lifecycle:      Lifecycle(strings.ToUpper(strings.TrimSpace(p.Lifecycle))),
		OrderDate:      p.OrderDate.Time,
		Notes:          p.Notes,
		Lines:          p.lines(),
		IdempotencyKey: idemKey,
	}
}

func (p orderPayload) editInput(id int64) EditOrderInput {
	return EditOrderInput{
		ID:          id,
		SupplierID:  int64(p.SupplierID),
		WarehouseID: int64(p.WarehouseID),
		OrderDate:   p.OrderDate.Time,
		Notes:       p.Notes,
		Lines:       p.lines(),
	}
}

func (p returnPayload) input(orderID int64, idemKey string) CreateReturnInput {
	lines := make([]ReturnLineInput, 0, len(p.Items))
	for _, it := range p.Items {
		lines = append(lines, ReturnLineInput{ProductID: int64(it.ProductID), Quantity: it.Quantity, Reason: it.Reason})
	}
	return CreateReturnInput{OrderID: orderID, Notes: p.Notes, Lines: lines, IdempotencyKey: idemKey}
}

// statusList splits repeated or comma separated status query values.
func statusList(values []string) []Status {
	var out []Status
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.ToUpper(strings.TrimSpace(part)); part != "" {
				out = append(out, Status(part))
			}
		}
	}
	return out
}
