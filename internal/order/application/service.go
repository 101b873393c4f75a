package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dmehra2102/order-invoicing/internal/order/domain"
	"github.com/dmehra2102/order-invoicing/pkg/metrics"
)

var ErrDispatchFailed = errors.New("invoice dispatch failed")

type Service struct {
	log        *slog.Logger
	repo       OrderRepository
	dispatcher InvoiceDispatcher
	enqueue    bool
}

// NewService wires the order use cases. With enqueue set, invoice dispatch is
// handed to the outbox in the order's own transaction; otherwise dispatcher
// runs inline once the order has committed.
func NewService(log *slog.Logger, repo OrderRepository, dispatcher InvoiceDispatcher, enqueue bool) *Service {
	return &Service{log: log, repo: repo, dispatcher: dispatcher, enqueue: enqueue}
}

type Meta struct {
	Headers     map[string]string
	Traceparent string
}

// CreateOrder persists o and triggers invoice dispatch. A non-zero id is
// returned whenever the order committed, even if dispatch then failed.
func (s *Service) CreateOrder(ctx context.Context, o domain.Order, meta Meta) (int64, error) {
	if len(o.Items) == 0 {
		return 0, domain.ErrNoItems
	}
	if declared, derived := o.OrderPrice, o.ItemsTotal(); !declared.Equal(derived) {
		s.log.Warn("declared order price differs from item totals",
			"user_id", o.UserID, "declared", declared.String(), "derived", derived.String())
	}

	var ev *OutboxEvent
	if s.enqueue {
		ev = &OutboxEvent{
			Type:        domain.EventInvoiceRequested,
			Headers:     meta.Headers,
			Traceparent: meta.Traceparent,
			Payload: func(invoiceID int64) ([]byte, error) {
				return json.Marshal(domain.InvoiceRequested{InvoiceID: invoiceID, UserID: o.UserID})
			},
		}
	}

	id, err := s.repo.Create(ctx, o, ev)
	if err != nil {
		return 0, fmt.Errorf("create order: %w", err)
	}
	metrics.OrdersCreatedTotal.Inc()
	s.log.Info("order created", "invoice_id", id, "user_id", o.UserID, "items", len(o.Items))

	if s.enqueue || s.dispatcher == nil {
		return id, nil
	}
	if err := s.dispatcher.Dispatch(ctx, id, o.UserID); err != nil {
		return id, fmt.Errorf("%w for invoice %d: %w", ErrDispatchFailed, id, err)
	}
	return id, nil
}

func (s *Service) ListOrders(ctx context.Context) ([]domain.Order, error) {
	return s.repo.List(ctx)
}

func (s *Service) GetOrder(ctx context.Context, invoiceID int64) (domain.Order, error) {
	return s.repo.Get(ctx, invoiceID)
}

// SendInvoice re-runs dispatch for an existing order.
func (s *Service) SendInvoice(ctx context.Context, invoiceID int64) error {
	if s.dispatcher == nil {
		return fmt.Errorf("%w: no dispatcher configured", ErrDispatchFailed)
	}
	o, err := s.repo.Get(ctx, invoiceID)
	if err != nil {
		return err
	}
	if err := s.dispatcher.Dispatch(ctx, o.InvoiceID, o.UserID); err != nil {
		return fmt.Errorf("%w for invoice %d: %w", ErrDispatchFailed, invoiceID, err)
	}
	return nil
}
