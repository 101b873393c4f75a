package application

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dmehra2102/order-invoicing/internal/invoice/domain"
	"github.com/dmehra2102/order-invoicing/pkg/metrics"
)

var ErrNoRecipient = errors.New("user profile has no email address")

type Dispatcher struct {
	log      *slog.Logger
	orders   OrderReader
	users    UserFetcher
	renderer *Renderer
	mailer   Mailer
	sender   string
}

func NewDispatcher(log *slog.Logger, orders OrderReader, users UserFetcher, renderer *Renderer, mailer Mailer, sender string) *Dispatcher {
	return &Dispatcher{
		log:      log,
		orders:   orders,
		users:    users,
		renderer: renderer,
		mailer:   mailer,
		sender:   sender,
	}
}

type greeting struct {
	Name      string
	InvoiceID int64
	Issuer    string
}

// Dispatch renders the invoice of invoiceID and mails it to userID. The
// profile is fetched once and used both as the invoice buyer and as the
// recipient.
func (d *Dispatcher) Dispatch(ctx context.Context, invoiceID, userID int64) error {
	err := d.dispatch(ctx, invoiceID, userID)
	if err != nil {
		metrics.InvoiceDispatchTotal.WithLabelValues("failed").Inc()
		d.log.Error("invoice dispatch failed", "invoice_id", invoiceID, "user_id", userID, "err", err)
		return err
	}
	metrics.InvoiceDispatchTotal.WithLabelValues("sent").Inc()
	d.log.Info("invoice dispatched", "invoice_id", invoiceID, "user_id", userID)
	return nil
}

func (d *Dispatcher) dispatch(ctx context.Context, invoiceID, userID int64) error {
	o, err := d.orders.Get(ctx, invoiceID)
	if err != nil {
		return err
	}
	profile, err := d.users.FetchUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("fetch user %d: %w", userID, err)
	}
	if profile.Email == "" {
		return fmt.Errorf("user %d: %w", userID, ErrNoRecipient)
	}

	pdf, err := d.renderer.RenderOrder(ctx, o, profile)
	if err != nil {
		return err
	}

	body, err := d.body(greeting{Name: profile.Name, InvoiceID: invoiceID, Issuer: d.sender})
	if err != nil {
		return err
	}
	msg := domain.Message{
		To:        profile.Email,
		Subject:   domain.Subject(invoiceID),
		Body:      body,
		PDFBase64: domain.PDFDataURI(base64.StdEncoding.EncodeToString(pdf)),
	}
	if err := d.mailer.Send(ctx, msg); err != nil {
		return fmt.Errorf("send invoice %d: %w", invoiceID, err)
	}
	return nil
}

func (d *Dispatcher) body(g greeting) (string, error) {
	if g.Name == "" {
		g.Name = "customer"
	}
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, "email.html.tmpl", g); err != nil {
		return "", fmt.Errorf("execute email template: %w", err)
	}
	return buf.String(), nil
}
