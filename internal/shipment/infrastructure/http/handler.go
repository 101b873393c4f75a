package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/order-invoicing/internal/shipment/domain"
	"github.com/dmehra2102/order-invoicing/pkg/apperr"
	"github.com/dmehra2102/order-invoicing/pkg/httpx"
)

type ShipmentService interface {
	CreateShipment(ctx context.Context, s domain.Shipment) (domain.Shipment, error)
	ListShipments(ctx context.Context) ([]domain.Shipment, error)
}

type Handler struct {
	log     *slog.Logger
	service ShipmentService
	tracer  trace.Tracer
}

func NewHandler(log *slog.Logger, service ShipmentService) *Handler {
	return &Handler{
		log:     log,
		service: service,
		tracer:  otel.Tracer("shipment-http"),
	}
}

type createShipmentReq struct {
	InvoiceID      int64      `json:"invoice_id" validate:"required,gt=0"`
	Carrier        string     `json:"carrier" validate:"required,max=64"`
	TrackingNumber string     `json:"tracking_number" validate:"required,max=128"`
	Status         string     `json:"status" validate:"omitempty,oneof=pending shipped delivered returned"`
	ShippedAt      *time.Time `json:"shipped_at"`
}

// Mount registers the shipment routes on r.
func (h *Handler) Mount(r chi.Router) {
	r.Get("/shipments", h.listShipments)
	r.Post("/shipments", h.createShipment)
}

func (h *Handler) listShipments(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ListShipments")
	defer span.End()

	shipments, err := h.service.ListShipments(ctx)
	if err != nil {
		apperr.Write(w, apperr.Internal(err))
		return
	}
	httpx.JSON(w, http.StatusOK, shipments)
}

func (h *Handler) createShipment(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CreateShipment")
	defer span.End()

	var req createShipmentReq
	if err := httpx.Decode(r, &req); err != nil {
		apperr.Write(w, err)
		return
	}

	s, err := h.service.CreateShipment(ctx, domain.Shipment{
		InvoiceID:      req.InvoiceID,
		Carrier:        req.Carrier,
		TrackingNumber: req.TrackingNumber,
		Status:         domain.Status(req.Status),
		ShippedAt:      req.ShippedAt,
	})
	switch {
	case errors.Is(err, domain.ErrUnknownInvoice):
		apperr.Write(w, apperr.NotFound("invoice not found", err))
		return
	case err != nil:
		apperr.Write(w, apperr.Internal(err))
		return
	}

	httpx.JSON(w, http.StatusCreated, map[string]any{
		"message": "Shipment created successfully",
		"data":    s,
	})
}
