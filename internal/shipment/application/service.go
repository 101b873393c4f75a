package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dmehra2102/order-invoicing/internal/shipment/domain"
)

type ShipmentRepository interface {
	Create(ctx context.Context, s domain.Shipment) (domain.Shipment, error)
	List(ctx context.Context) ([]domain.Shipment, error)
}

type Service struct {
	log  *slog.Logger
	repo ShipmentRepository
}

func NewService(log *slog.Logger, repo ShipmentRepository) *Service {
	return &Service{log: log, repo: repo}
}

// CreateShipment stores s. An empty status defaults to pending.
func (s *Service) CreateShipment(ctx context.Context, sh domain.Shipment) (domain.Shipment, error) {
	if sh.Status == "" {
		sh.Status = domain.StatusPending
	}
	out, err := s.repo.Create(ctx, sh)
	if err != nil {
		return domain.Shipment{}, fmt.Errorf("create shipment: %w", err)
	}
	s.log.Info("shipment created", "shipment_id", out.ShipmentID, "invoice_id", out.InvoiceID, "carrier", out.Carrier)
	return out, nil
}

func (s *Service) ListShipments(ctx context.Context) ([]domain.Shipment, error) {
	return s.repo.List(ctx)
}
