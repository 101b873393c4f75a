package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmehra2102/order-invoicing/internal/shipment/domain"
	"github.com/dmehra2102/order-invoicing/pkg/pgstore"
)

const (
	insertShipmentSQL = `INSERT INTO shipments (invoice_id, carrier, tracking_number, status, shipped_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING shipment_id`

	listShipmentsSQL = `SELECT shipment_id, invoice_id, carrier, tracking_number, status, shipped_at
		FROM shipments
		ORDER BY shipment_id`

	foreignKeyViolation = "23503"
)

type Repository struct {
	db pgstore.DB
}

func NewRepository(db pgstore.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, s domain.Shipment) (domain.Shipment, error) {
	err := r.db.QueryRow(ctx, insertShipmentSQL,
		s.InvoiceID, s.Carrier, s.TrackingNumber, string(s.Status), s.ShippedAt,
	).Scan(&s.ShipmentID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
			return domain.Shipment{}, fmt.Errorf("invoice %d: %w", s.InvoiceID, domain.ErrUnknownInvoice)
		}
		return domain.Shipment{}, fmt.Errorf("insert shipment: %w", err)
	}
	return s, nil
}

func (r *Repository) List(ctx context.Context) ([]domain.Shipment, error) {
	rows, err := r.db.Query(ctx, listShipmentsSQL)
	if err != nil {
		return nil, fmt.Errorf("list shipments: %w", err)
	}
	defer rows.Close()

	shipments := []domain.Shipment{}
	for rows.Next() {
		var (
			s      domain.Shipment
			status string
		)
		if err := rows.Scan(&s.ShipmentID, &s.InvoiceID, &s.Carrier, &s.TrackingNumber, &status, &s.ShippedAt); err != nil {
			return nil, fmt.Errorf("scan shipment: %w", err)
		}
		s.Status = domain.Status(status)
		shipments = append(shipments, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list shipments: %w", err)
	}
	return shipments, nil
}
