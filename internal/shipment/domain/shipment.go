package domain

import (
	"errors"
	"time"
)

var ErrUnknownInvoice = errors.New("shipment references an unknown invoice")

type Status string

const (
	StatusPending   Status = "pending"
	StatusShipped   Status = "shipped"
	StatusDelivered Status = "delivered"
	StatusReturned  Status = "returned"
)

// Shipment tracks the delivery of one invoiced order.
type Shipment struct {
	ShipmentID     int64      `json:"shipment_id"`
	InvoiceID      int64      `json:"invoice_id"`
	Carrier        string     `json:"carrier"`
	TrackingNumber string     `json:"tracking_number"`
	Status         Status     `json:"status"`
	ShippedAt      *time.Time `json:"shipped_at"`
}
