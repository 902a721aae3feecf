package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the kitchen-facing lifecycle state of an order.
type Status string

const (
	StatusPending   Status = "pending"
	StatusPreparing Status = "preparing"
	StatusReady     Status = "ready"
	StatusFinished  Status = "finished"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusPreparing, StatusReady, StatusFinished:
		return true
	}
	return false
}

// AllowedTransition reports whether advancing from -> to is permitted.
// Forward flow is pending -> preparing -> ready; preparing may be reverted
// to pending when staff started the wrong card. Any non-finished order can
// be archived to finished. There is no path out of finished, and ready
// cannot go back to preparing.
func AllowedTransition(from, to Status) bool {
	if from == StatusFinished {
		return false
	}
	if to == StatusFinished {
		return true
	}
	switch from {
	case StatusPending:
		return to == StatusPreparing
	case StatusPreparing:
		return to == StatusReady || to == StatusPending
	}
	return false
}

// LineItem is one position on an order. Identity is positional within the
// order; there is no standalone line-item entity.
type LineItem struct {
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Qty         int             `json:"qty"`
	Observation string          `json:"observation,omitempty"`
}

// Order mirrors the store record. ID and CreatedAt are store-assigned;
// Number is the short spoken pickup number and is not unique. A nil
// CashierName marks a self-service kiosk order.
type Order struct {
	ID            int64           `json:"id"`
	Number        string          `json:"order_number"`
	CustomerName  string          `json:"customer_name"`
	Items         []LineItem      `json:"items"`
	Total         decimal.Decimal `json:"total"`
	Status        Status          `json:"status"`
	CashierName   *string         `json:"cashier_name"`
	PaymentMethod *string         `json:"payment_method"`
	Observation   *string         `json:"observation"`
	CreatedAt     time.Time       `json:"created_at"`
}

// ItemsTotal recomputes the total from line items. Displays and the receipt
// encoder derive totals from here, never from the stored Total, which is
// only trusted at creation time.
func (o Order) ItemsTotal() decimal.Decimal {
	sum := decimal.Zero
	for _, it := range o.Items {
		sum = sum.Add(it.Price.Mul(decimal.NewFromInt(int64(it.Qty))))
	}
	return sum
}
