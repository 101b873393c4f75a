package application

import (
	"context"

	"github.com/dmehra2102/order-invoicing/internal/order/domain"
)

type OrderRepository interface {
	// Create writes the order header, its items and, when ev is non-nil, an
	// outbox row in one transaction and returns the generated invoice id.
	Create(ctx context.Context, o domain.Order, ev *OutboxEvent) (int64, error)
	List(ctx context.Context) ([]domain.Order, error)
	Get(ctx context.Context, invoiceID int64) (domain.Order, error)
}

// OutboxEvent is enqueued atomically with the order. The payload is built
// once the invoice id is known.
type OutboxEvent struct {
	Type        string
	Headers     map[string]string
	Traceparent string
	Payload     func(invoiceID int64) ([]byte, error)
}

// InvoiceDispatcher renders and mails the invoice of a committed order.
type InvoiceDispatcher interface {
	Dispatch(ctx context.Context, invoiceID, userID int64) error
}
