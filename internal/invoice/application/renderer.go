package application

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"strings"
	"time"

	"github.com/dmehra2102/order-invoicing/internal/invoice/domain"
	orderdomain "github.com/dmehra2102/order-invoicing/internal/order/domain"
	userdomain "github.com/dmehra2102/order-invoicing/internal/user/domain"
	"github.com/dmehra2102/order-invoicing/pkg/metrics"
)

//go:embed templates/*.html.tmpl
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html.tmpl"))

// Issuer is the seller identity printed on every invoice.
type Issuer struct {
	Name    string
	Address string
	Email   string
	VATID   string
}

func (i Issuer) party() domain.Party {
	var lines []string
	for _, l := range strings.Split(i.Address, ",") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return domain.Party{Name: i.Name, Email: i.Email, Lines: lines, VATID: i.VATID}
}

type Renderer struct {
	log      *slog.Logger
	orders   OrderReader
	users    UserFetcher
	engine   PDFEngine
	issuer   Issuer
	currency string
}

// NewRenderer builds an invoice renderer. users may be nil, in which case the
// buyer is identified by user id only.
func NewRenderer(log *slog.Logger, orders OrderReader, users UserFetcher, engine PDFEngine, issuer Issuer, currency string) *Renderer {
	return &Renderer{
		log:      log,
		orders:   orders,
		users:    users,
		engine:   engine,
		issuer:   issuer,
		currency: currency,
	}
}

// Render returns the PDF invoice of invoiceID. A missing order yields an
// error wrapping orderdomain.ErrOrderNotFound.
func (r *Renderer) Render(ctx context.Context, invoiceID int64) ([]byte, error) {
	o, err := r.orders.Get(ctx, invoiceID)
	if err != nil {
		return nil, err
	}

	var buyer userdomain.Profile
	if r.users != nil {
		if buyer, err = r.users.FetchUser(ctx, o.UserID); err != nil {
			return nil, fmt.Errorf("fetch buyer %d for invoice %d: %w", o.UserID, invoiceID, err)
		}
	} else {
		buyer.UserID = o.UserID
	}
	return r.RenderOrder(ctx, o, buyer)
}

// RenderOrder renders an already loaded order for buyer.
func (r *Renderer) RenderOrder(ctx context.Context, o orderdomain.Order, buyer userdomain.Profile) ([]byte, error) {
	start := time.Now()

	view, err := r.View(o, buyer)
	if err != nil {
		return nil, err
	}
	html, err := r.HTML(view)
	if err != nil {
		return nil, err
	}
	pdf, err := r.engine.Render(ctx, html)
	if err != nil {
		return nil, fmt.Errorf("render pdf for invoice %d: %w", o.InvoiceID, err)
	}

	metrics.InvoiceRenderDuration.Observe(time.Since(start).Seconds())
	r.log.Debug("invoice rendered", "invoice_id", o.InvoiceID, "bytes", len(pdf))
	return pdf, nil
}

// View maps an order and its buyer to the invoice view model. The grand total
// is the order's stored price.
func (r *Renderer) View(o orderdomain.Order, buyer userdomain.Profile) (domain.View, error) {
	ts, err := orderdomain.ParseTimestamp(o.Timestamp)
	if err != nil {
		return domain.View{}, fmt.Errorf("invoice %d: %w", o.InvoiceID, err)
	}

	name := buyer.Name
	if name == "" {
		name = fmt.Sprintf("Customer #%d", o.UserID)
	}

	lines := make([]domain.Line, 0, len(o.Items))
	for _, item := range o.Items {
		lines = append(lines, domain.Line{
			Quantity:  item.Amount,
			Name:      item.ProductName,
			UnitPrice: item.ProductPrice.StringFixed(2),
			Total:     item.TotalPrice.StringFixed(2),
		})
	}

	return domain.View{
		Number:   o.InvoiceID,
		Date:     ts.Format(domain.DateLayout),
		Currency: r.currency,
		Issuer:   r.issuer.party(),
		Buyer: domain.Party{
			Name:  name,
			Email: buyer.Email,
			Lines: buyer.AddressLines(),
		},
		Lines:      lines,
		GrandTotal: o.OrderPrice.StringFixed(2),
	}, nil
}

// HTML executes the invoice template. Every field is escaped.
func (r *Renderer) HTML(v domain.View) ([]byte, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, "invoice.html.tmpl", v); err != nil {
		return nil, fmt.Errorf("execute invoice template: %w", err)
	}
	return buf.Bytes(), nil
}
