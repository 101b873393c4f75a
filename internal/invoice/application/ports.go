package application

import (
	"context"

	"github.com/dmehra2102/order-invoicing/internal/invoice/domain"
	orderdomain "github.com/dmehra2102/order-invoicing/internal/order/domain"
	userdomain "github.com/dmehra2102/order-invoicing/internal/user/domain"
)

type OrderReader interface {
	Get(ctx context.Context, invoiceID int64) (orderdomain.Order, error)
}

type UserFetcher interface {
	FetchUser(ctx context.Context, userID int64) (userdomain.Profile, error)
}

// PDFEngine converts a complete HTML document into PDF bytes.
type PDFEngine interface {
	Render(ctx context.Context, html []byte) ([]byte, error)
}

type Mailer interface {
	Send(ctx context.Context, msg domain.Message) error
}
