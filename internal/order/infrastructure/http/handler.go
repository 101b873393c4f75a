package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/order-invoicing/internal/order/application"
	"github.com/dmehra2102/order-invoicing/internal/order/domain"
	"github.com/dmehra2102/order-invoicing/pkg/apperr"
	"github.com/dmehra2102/order-invoicing/pkg/httpx"
	"github.com/dmehra2102/order-invoicing/pkg/tracing"
)

type OrderService interface {
	CreateOrder(ctx context.Context, o domain.Order, meta application.Meta) (int64, error)
	ListOrders(ctx context.Context) ([]domain.Order, error)
	GetOrder(ctx context.Context, invoiceID int64) (domain.Order, error)
	SendInvoice(ctx context.Context, invoiceID int64) error
}

type InvoiceRenderer interface {
	Render(ctx context.Context, invoiceID int64) ([]byte, error)
}

type Handler struct {
	log      *slog.Logger
	service  OrderService
	renderer InvoiceRenderer
	tracer   trace.Tracer
}

func NewHandler(log *slog.Logger, service OrderService, renderer InvoiceRenderer) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		renderer: renderer,
		tracer:   otel.Tracer("order-http"),
	}
}

type orderItemReq struct {
	OrderItemID  int              `json:"order_item_id" validate:"gte=0"`
	ProductID    string           `json:"product_id" validate:"required"`
	Amount       int              `json:"amount" validate:"gt=0"`
	ProductPrice *decimal.Decimal `json:"product_price" validate:"required"`
	ProductName  string           `json:"product_name" validate:"required"`
}

type createOrderReq struct {
	UserID     int64            `json:"user_id" validate:"required,gt=0"`
	Timestamp  string           `json:"timestamp" validate:"required"`
	OrderPrice *decimal.Decimal `json:"order_price" validate:"required"`
	Items      []orderItemReq   `json:"order_items" validate:"required,min=1,dive"`
}

// priceScale is the number of fractional digits prices are stored with.
const priceScale = 2

// checkPrice rejects negative prices and prices finer than priceScale, so a
// derived total always equals amount times the stored unit price.
func checkPrice(field string, p decimal.Decimal) error {
	if p.IsNegative() {
		return fmt.Errorf("%s: must not be negative", field)
	}
	if !p.Equal(p.Truncate(priceScale)) {
		return fmt.Errorf("%s: at most %d decimal places", field, priceScale)
	}
	return nil
}

func (req createOrderReq) order() (domain.Order, error) {
	if _, err := domain.ParseTimestamp(req.Timestamp); err != nil {
		return domain.Order{}, apperr.Validation("validation failed", err)
	}
	if err := checkPrice("order_price", *req.OrderPrice); err != nil {
		return domain.Order{}, apperr.Validation("validation failed", err)
	}
	items := make([]domain.OrderItem, 0, len(req.Items))
	for i, it := range req.Items {
		if err := checkPrice(fmt.Sprintf("order_items[%d].product_price", i), *it.ProductPrice); err != nil {
			return domain.Order{}, apperr.Validation("validation failed", err)
		}
		items = append(items, domain.OrderItem{
			OrderItemID:  it.OrderItemID,
			ProductID:    it.ProductID,
			Amount:       it.Amount,
			ProductPrice: *it.ProductPrice,
			ProductName:  it.ProductName,
		})
	}
	return domain.NewOrder(req.UserID, req.Timestamp, *req.OrderPrice, items), nil
}

// Mount registers the order and invoice routes on r. Mutating routes and
// invoice downloads go through protect.
func (h *Handler) Mount(r chi.Router, protect ...func(http.Handler) http.Handler) {
	r.Get("/orders", h.listOrders)
	r.Get("/orders/{id}", h.getOrder)

	r.Group(func(r chi.Router) {
		r.Use(protect...)
		r.Post("/orders", h.createOrder)
		r.Get("/invoices/{id}/pdf", h.invoicePDF)
		r.Post("/invoices/{id}/send", h.sendInvoice)
	})
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CreateOrder")
	defer span.End()

	var req createOrderReq
	if err := httpx.Decode(r, &req); err != nil {
		apperr.Write(w, err)
		return
	}
	o, err := req.order()
	if err != nil {
		apperr.Write(w, err)
		return
	}

	meta := application.Meta{
		Headers:     map[string]string{"source": "order-service", "request_id": httpx.RequestID(ctx)},
		Traceparent: tracing.Traceparent(ctx),
	}
	id, err := h.service.CreateOrder(ctx, o, meta)
	switch {
	case errors.Is(err, domain.ErrNoItems):
		apperr.Write(w, apperr.Validation("validation failed", err))
		return
	case err != nil:
		span.RecordError(err)
		apperr.Write(w, apperr.Internal(err))
		return
	}
	span.SetAttributes(attribute.Int64("invoice_id", id))

	httpx.JSON(w, http.StatusCreated, map[string]any{
		"message":    "Order created successfully",
		"invoice_id": id,
	})
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ListOrders")
	defer span.End()

	orders, err := h.service.ListOrders(ctx)
	if err != nil {
		apperr.Write(w, apperr.Internal(err))
		return
	}
	httpx.JSON(w, http.StatusOK, orders)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "GetOrder")
	defer span.End()

	id, err := invoiceID(r)
	if err != nil {
		apperr.Write(w, err)
		return
	}
	o, err := h.service.GetOrder(ctx, id)
	if err != nil {
		apperr.Write(w, notFoundOrInternal(err))
		return
	}
	httpx.JSON(w, http.StatusOK, o)
}

func (h *Handler) invoicePDF(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "RenderInvoice")
	defer span.End()

	id, err := invoiceID(r)
	if err != nil {
		apperr.Write(w, err)
		return
	}
	pdf, err := h.renderer.Render(ctx, id)
	if err != nil {
		span.RecordError(err)
		h.log.Error("invoice render failed", "invoice_id", id, "err", err)
		apperr.Write(w, notFoundOrInternal(err))
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`inline; filename="invoice-%d.pdf"`, id))
	w.Header().Set("Content-Length", strconv.Itoa(len(pdf)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

func (h *Handler) sendInvoice(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "SendInvoice")
	defer span.End()

	id, err := invoiceID(r)
	if err != nil {
		apperr.Write(w, err)
		return
	}
	if err := h.service.SendInvoice(ctx, id); err != nil {
		span.RecordError(err)
		apperr.Write(w, notFoundOrInternal(err))
		return
	}
	httpx.JSON(w, http.StatusAccepted, map[string]any{
		"message":    "Invoice sent",
		"invoice_id": id,
	})
}

func invoiceID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("invalid invoice id", err)
	}
	return id, nil
}

func notFoundOrInternal(err error) error {
	if errors.Is(err, domain.ErrOrderNotFound) {
		return apperr.NotFound("invoice not found", err)
	}
	return apperr.Internal(err)
}
