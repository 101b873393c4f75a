package application

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/order-invoicing/internal/invoice/domain"
	orderdomain "github.com/dmehra2102/order-invoicing/internal/order/domain"
	userdomain "github.com/dmehra2102/order-invoicing/internal/user/domain"
)

type fakeOrders map[int64]orderdomain.Order

func (f fakeOrders) Get(_ context.Context, id int64) (orderdomain.Order, error) {
	o, ok := f[id]
	if !ok {
		return orderdomain.Order{}, orderdomain.ErrOrderNotFound
	}
	return o, nil
}

type fakeUsers struct {
	profiles map[int64]userdomain.Profile
	err      error
	calls    int
}

func (f *fakeUsers) FetchUser(_ context.Context, id int64) (userdomain.Profile, error) {
	f.calls++
	if f.err != nil {
		return userdomain.Profile{}, f.err
	}
	return f.profiles[id], nil
}

type fakeEngine struct {
	html []byte
	err  error
}

func (f *fakeEngine) Render(_ context.Context, html []byte) ([]byte, error) {
	f.html = html
	if f.err != nil {
		return nil, f.err
	}
	return []byte("%PDF-1.4 fake"), nil
}

type fakeMailer struct {
	sent []domain.Message
	err  error
}

func (f *fakeMailer) Send(_ context.Context, msg domain.Message) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func sampleOrder() orderdomain.Order {
	o := orderdomain.NewOrder(7, "2024-01-01T10:00:00", decimal.RequireFromString("19.98"), []orderdomain.OrderItem{
		{OrderItemID: 1, ProductID: "p1", Amount: 2, ProductPrice: decimal.RequireFromString("9.99"), ProductName: "Ale"},
	})
	o.InvoiceID = 42
	return o
}

var issuer = Issuer{Name: "Brew & Co", Address: "Main St 1, 00100 Helsinki", Email: "billing@brew.example", VATID: "FI123"}

func fixture() (fakeOrders, *fakeUsers, *fakeEngine, *Renderer) {
	orders := fakeOrders{42: sampleOrder()}
	users := &fakeUsers{profiles: map[int64]userdomain.Profile{
		7: {UserID: 7, Name: "Aino", Email: "aino@example.com", City: "Tampere"},
	}}
	engine := &fakeEngine{}
	r := NewRenderer(testLogger(), orders, users, engine, issuer, "EUR")
	return orders, users, engine, r
}

func TestRenderer_View(t *testing.T) {
	_, _, _, r := fixture()

	v, err := r.View(sampleOrder(), userdomain.Profile{Name: "Aino", Email: "aino@example.com"})
	require.NoError(t, err)
	assert.Equal(t, int64(42), v.Number)
	assert.Equal(t, "2024-01-01 10:00", v.Date)
	assert.Equal(t, "19.98", v.GrandTotal)
	assert.Equal(t, []string{"Main St 1", "00100 Helsinki"}, v.Issuer.Lines)
	require.Len(t, v.Lines, 1)
	assert.Equal(t, domain.Line{Quantity: 2, Name: "Ale", UnitPrice: "9.99", Total: "19.98"}, v.Lines[0])
}

func TestRenderer_ViewUsesStoredPrice(t *testing.T) {
	_, _, _, r := fixture()
	o := sampleOrder()
	o.OrderPrice = decimal.RequireFromString("25")

	v, err := r.View(o, userdomain.Profile{})
	require.NoError(t, err)
	assert.Equal(t, "25.00", v.GrandTotal)
	assert.Equal(t, "Customer #7", v.Buyer.Name)
}

func TestRenderer_ViewRejectsBadTimestamp(t *testing.T) {
	_, _, _, r := fixture()
	o := sampleOrder()
	o.Timestamp = "yesterday"

	_, err := r.View(o, userdomain.Profile{})
	assert.Error(t, err)
}

func TestRenderer_Render(t *testing.T) {
	_, users, engine, r := fixture()

	pdf, err := r.Render(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.4 fake"), pdf)
	assert.Equal(t, 1, users.calls)

	html := string(engine.html)
	assert.Contains(t, html, "Invoice #42")
	assert.Contains(t, html, "2024-01-01 10:00")
	assert.Contains(t, html, "Aino")
	assert.Contains(t, html, "aino@example.com")
	assert.Contains(t, html, "2 &times; Ale")
	assert.Contains(t, html, "19.98 EUR")
	assert.Contains(t, html, "Brew &amp; Co")
}

func TestRenderer_EscapesUserFields(t *testing.T) {
	orders, users, engine, r := fixture()
	o := sampleOrder()
	o.Items[0].ProductName = `<script>alert("x")</script>`
	orders[42] = o
	users.profiles[7] = userdomain.Profile{Name: "<b>Mallory</b>", Email: "m@example.com"}

	_, err := r.Render(context.Background(), 42)
	require.NoError(t, err)

	html := string(engine.html)
	assert.NotContains(t, html, "<script>")
	assert.NotContains(t, html, "<b>Mallory</b>")
	assert.Contains(t, html, "&lt;script&gt;")
}

func TestRenderer_RenderNotFound(t *testing.T) {
	_, _, _, r := fixture()

	_, err := r.Render(context.Background(), 999)
	assert.ErrorIs(t, err, orderdomain.ErrOrderNotFound)
}

func TestRenderer_RenderPropagatesFailures(t *testing.T) {
	_, users, engine, r := fixture()

	users.err = errors.New("user service down")
	_, err := r.Render(context.Background(), 42)
	assert.ErrorContains(t, err, "user service down")

	users.err = nil
	engine.err = errors.New("wkhtmltopdf crashed")
	_, err = r.Render(context.Background(), 42)
	assert.ErrorContains(t, err, "wkhtmltopdf crashed")
}

func TestRenderer_WithoutUserFetcher(t *testing.T) {
	engine := &fakeEngine{}
	r := NewRenderer(testLogger(), fakeOrders{42: sampleOrder()}, nil, engine, issuer, "EUR")

	_, err := r.Render(context.Background(), 42)
	require.NoError(t, err)
	assert.Contains(t, string(engine.html), "Customer #7")
}

func TestDispatcher_Dispatch(t *testing.T) {
	orders, users, _, r := fixture()
	mailer := &fakeMailer{}
	d := NewDispatcher(testLogger(), orders, users, r, mailer, issuer.Name)

	require.NoError(t, d.Dispatch(context.Background(), 42, 7))
	assert.Equal(t, 1, users.calls, "profile is fetched once")
	require.Len(t, mailer.sent, 1)

	msg := mailer.sent[0]
	assert.Equal(t, "aino@example.com", msg.To)
	assert.Equal(t, "Invoice #42", msg.Subject)
	assert.Contains(t, msg.Body, "Hello Aino")
	assert.Contains(t, msg.Body, "#42")

	require.True(t, strings.HasPrefix(msg.PDFBase64, "data:application/pdf;base64,"))
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(msg.PDFBase64, "data:application/pdf;base64,"))
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 fake", string(raw))
}

func TestDispatcher_Failures(t *testing.T) {
	tests := []struct {
		name    string
		arrange func(*fakeUsers, *fakeEngine, *fakeMailer)
		id      int64
		want    error
	}{
		{name: "missing order", id: 999, want: orderdomain.ErrOrderNotFound},
		{
			name:    "no email",
			id:      42,
			arrange: func(u *fakeUsers, _ *fakeEngine, _ *fakeMailer) { u.profiles[7] = userdomain.Profile{Name: "Aino"} },
			want:    ErrNoRecipient,
		},
		{
			name:    "email service down",
			id:      42,
			arrange: func(_ *fakeUsers, _ *fakeEngine, m *fakeMailer) { m.err = errors.New("503") },
		},
		{
			name:    "render failure",
			id:      42,
			arrange: func(_ *fakeUsers, e *fakeEngine, _ *fakeMailer) { e.err = errors.New("boom") },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orders, users, engine, r := fixture()
			mailer := &fakeMailer{}
			if tt.arrange != nil {
				tt.arrange(users, engine, mailer)
			}
			d := NewDispatcher(testLogger(), orders, users, r, mailer, issuer.Name)

			err := d.Dispatch(context.Background(), tt.id, 7)
			require.Error(t, err)
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
			}
			assert.Empty(t, mailer.sent)
		})
	}
}
