package domain

const EventInvoiceRequested = "InvoiceRequested"

// InvoiceRequested asks the dispatcher to render and mail the invoice of a
// committed order.
type InvoiceRequested struct {
	InvoiceID int64 `json:"invoice_id"`
	UserID    int64 `json:"user_id"`
}
