package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	ErrNoItems       = errors.New("order has no items")
)

func init() {
	// Prices go over the wire as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

// Order is a persisted purchase record. It is immutable once written.
type Order struct {
	InvoiceID  int64           `json:"invoice_id"`
	UserID     int64           `json:"user_id"`
	Timestamp  string          `json:"timestamp"`
	OrderPrice decimal.Decimal `json:"order_price"`
	Items      []OrderItem     `json:"order_items"`
}

type OrderItem struct {
	OrderItemID  int             `json:"order_item_id"`
	ProductID    string          `json:"product_id"`
	Amount       int             `json:"amount"`
	ProductPrice decimal.Decimal `json:"product_price"`
	ProductName  string          `json:"product_name"`
	TotalPrice   decimal.Decimal `json:"total_price"`
}

// NewOrder builds an order ready to be written. Item totals are always
// derived from amount and unit price; any client supplied total is ignored.
func NewOrder(userID int64, timestamp string, orderPrice decimal.Decimal, items []OrderItem) Order {
	out := make([]OrderItem, len(items))
	for i, item := range items {
		item.TotalPrice = LineTotal(item.Amount, item.ProductPrice)
		out[i] = item
	}
	return Order{
		UserID:     userID,
		Timestamp:  timestamp,
		OrderPrice: orderPrice,
		Items:      out,
	}
}

func LineTotal(amount int, unitPrice decimal.Decimal) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt(int64(amount)))
}

// ItemsTotal sums the derived item totals.
func (o Order) ItemsTotal() decimal.Decimal {
	sum := decimal.Zero
	for _, item := range o.Items {
		sum = sum.Add(item.TotalPrice)
	}
	return sum
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
}

// ParseTimestamp accepts RFC 3339 and zone-less ISO-8601 timestamps.
func ParseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}
