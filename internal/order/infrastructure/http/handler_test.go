package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/order-invoicing/internal/order/application"
	"github.com/dmehra2102/order-invoicing/internal/order/domain"
	"github.com/dmehra2102/order-invoicing/pkg/auth"
)

const secret = "handler-secret"

type memRepo struct {
	orders []domain.Order
	err    error
}

func (m *memRepo) Create(_ context.Context, o domain.Order, ev *application.OutboxEvent) (int64, error) {
	if m.err != nil {
		return 0, m.err
	}
	o.InvoiceID = int64(len(m.orders) + 41)
	if o.Items == nil {
		o.Items = []domain.OrderItem{}
	}
	m.orders = append(m.orders, o)
	return o.InvoiceID, nil
}

func (m *memRepo) List(context.Context) ([]domain.Order, error) {
	if m.err != nil {
		return nil, m.err
	}
	return append([]domain.Order{}, m.orders...), nil
}

func (m *memRepo) Get(_ context.Context, id int64) (domain.Order, error) {
	for _, o := range m.orders {
		if o.InvoiceID == id {
			return o, nil
		}
	}
	return domain.Order{}, fmt.Errorf("invoice %d: %w", id, domain.ErrOrderNotFound)
}

type stubDispatcher struct{ err error }

func (d stubDispatcher) Dispatch(context.Context, int64, int64) error { return d.err }

type stubRenderer struct {
	repo *memRepo
	err  error
}

func (s stubRenderer) Render(ctx context.Context, id int64) ([]byte, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, err
	}
	if s.err != nil {
		return nil, s.err
	}
	return []byte("%PDF-1.4"), nil
}

type env struct {
	repo   *memRepo
	router http.Handler
}

func newEnv(t *testing.T, dispatcher application.InvoiceDispatcher, enqueue bool, renderErr error) env {
	t.Helper()
	log := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	repo := &memRepo{}
	svc := application.NewService(log, repo, dispatcher, enqueue)

	r := chi.NewRouter()
	NewHandler(log, svc, stubRenderer{repo: repo, err: renderErr}).Mount(r, auth.NewVerifier(secret, "HS256").Middleware)
	return env{repo: repo, router: r}
}

func bearer(t *testing.T, exp time.Time, key string) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "1", "exp": exp.Unix()}).SignedString([]byte(key))
	require.NoError(t, err)
	return "Bearer " + tok
}

func (e env) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

const scenarioBody = `{"user_id":7,"timestamp":"2024-01-01T10:00:00","order_price":19.98,"order_id":1,
	"order_items":[{"order_item_id":1,"product_id":"p1","amount":2,"product_price":9.99,"product_name":"Ale"}]}`

func TestCreateThenListOrders(t *testing.T) {
	e := newEnv(t, nil, true, nil)
	token := bearer(t, time.Now().Add(time.Hour), secret)

	rec := e.do(t, http.MethodPost, "/orders", token, scenarioBody)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created struct {
		Message   string `json:"message"`
		InvoiceID int64  `json:"invoice_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "Order created successfully", created.Message)
	assert.Equal(t, int64(41), created.InvoiceID)

	rec = e.do(t, http.MethodGet, "/orders", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var orders []struct {
		InvoiceID  int64   `json:"invoice_id"`
		OrderPrice float64 `json:"order_price"`
		Items      []struct {
			TotalPrice float64 `json:"total_price"`
		} `json:"order_items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &orders))
	require.Len(t, orders, 1)
	assert.Equal(t, created.InvoiceID, orders[0].InvoiceID)
	require.Len(t, orders[0].Items, 1)
	assert.Equal(t, 19.98, orders[0].Items[0].TotalPrice)

	again := e.do(t, http.MethodGet, "/orders", "", "")
	assert.Equal(t, rec.Body.String(), again.Body.String())
}

func TestCreateOrder_IgnoresClientTotals(t *testing.T) {
	e := newEnv(t, nil, true, nil)
	body := `{"user_id":7,"timestamp":"2024-01-01T10:00:00Z","order_price":30,
		"order_items":[{"order_item_id":1,"product_id":"p1","amount":3,"product_price":10,"product_name":"Ale","total_price":1}]}`

	rec := e.do(t, http.MethodPost, "/orders", bearer(t, time.Now().Add(time.Hour), secret), body)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "30", e.repo.orders[0].Items[0].TotalPrice.String())
}

func TestCreateOrder_Auth(t *testing.T) {
	e := newEnv(t, nil, true, nil)

	tests := []struct {
		name    string
		token   string
		message string
	}{
		{"missing", "", "missing bearer token"},
		{"expired", bearer(t, time.Now().Add(-time.Minute), secret), "token expired"},
		{"bad signature", bearer(t, time.Now().Add(time.Hour), "other"), "invalid token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := e.do(t, http.MethodPost, "/orders", tt.token, scenarioBody)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.message)
		})
	}
	assert.Empty(t, e.repo.orders)
}

func TestCreateOrder_Validation(t *testing.T) {
	e := newEnv(t, nil, true, nil)
	token := bearer(t, time.Now().Add(time.Hour), secret)
	const ale = `{"order_item_id":1,"product_id":"p1","amount":1,"product_price":1,"product_name":"Ale"}`

	bodies := map[string]string{
		"malformed":         `{"user_id":`,
		"missing user":      `{"timestamp":"2024-01-01T10:00:00","order_price":1,"order_items":[` + ale + `]}`,
		"missing price":     `{"user_id":7,"timestamp":"2024-01-01T10:00:00","order_items":[` + ale + `]}`,
		"bad timestamp":     `{"user_id":7,"timestamp":"soon","order_price":1,"order_items":[` + ale + `]}`,
		"zero amount":       `{"user_id":7,"timestamp":"2024-01-01T10:00:00","order_price":1,"order_items":[{"product_id":"p","amount":0,"product_price":1,"product_name":"x"}]}`,
		"negative price":    `{"user_id":7,"timestamp":"2024-01-01T10:00:00","order_price":1,"order_items":[{"product_id":"p","amount":1,"product_price":-1,"product_name":"x"}]}`,
		"negative total":    `{"user_id":7,"timestamp":"2024-01-01T10:00:00","order_price":-5,"order_items":[` + ale + `]}`,
		"missing product":   `{"user_id":7,"timestamp":"2024-01-01T10:00:00","order_price":1,"order_items":[{"amount":1,"product_price":1,"product_name":"x"}]}`,
		"missing items":     `{"user_id":7,"timestamp":"2024-01-01T10:00:00","order_price":0}`,
		"empty items":       `{"user_id":7,"timestamp":"2024-01-01T10:00:00","order_price":0,"order_items":[]}`,
		"sub-cent price":    `{"user_id":7,"timestamp":"2024-01-01T10:00:00","order_price":0.015,"order_items":[{"product_id":"p","amount":3,"product_price":0.005,"product_name":"x"}]}`,
		"sub-cent declared": `{"user_id":7,"timestamp":"2024-01-01T10:00:00","order_price":1.001,"order_items":[` + ale + `]}`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			rec := e.do(t, http.MethodPost, "/orders", token, body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
	assert.Empty(t, e.repo.orders)
}

func TestCreateOrder_SubCentPriceIsReported(t *testing.T) {
	e := newEnv(t, nil, true, nil)

	rec := e.do(t, http.MethodPost, "/orders", bearer(t, time.Now().Add(time.Hour), secret),
		`{"user_id":7,"timestamp":"2024-01-01T10:00:00","order_price":0.03,"order_items":[{"product_id":"p","amount":3,"product_price":0.005,"product_name":"x"}]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "order_items[0].product_price: at most 2 decimal places")
}

func TestCreateOrder_TotalsMatchStoredScale(t *testing.T) {
	e := newEnv(t, nil, true, nil)

	rec := e.do(t, http.MethodPost, "/orders", bearer(t, time.Now().Add(time.Hour), secret),
		`{"user_id":7,"timestamp":"2024-01-01T10:00:00","order_price":0.30,"order_items":[{"product_id":"p","amount":3,"product_price":0.10,"product_name":"x"}]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	item := e.repo.orders[0].Items[0]
	assert.True(t, item.TotalPrice.Equal(item.TotalPrice.Round(2)))
	assert.True(t, item.TotalPrice.Equal(item.ProductPrice.Round(2).Mul(decimal.NewFromInt(3))))
}

func TestGetOrder_ZeroItemOrderReadsAsEmptyArray(t *testing.T) {
	e := newEnv(t, nil, true, nil)
	e.repo.orders = append(e.repo.orders, domain.Order{InvoiceID: 41, UserID: 7, Timestamp: "2024-01-01T10:00:00", Items: []domain.OrderItem{}})

	rec := e.do(t, http.MethodGet, "/orders/41", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"order_items":[]`)
}

func TestCreateOrder_InlineDispatchFailureKeepsOrder(t *testing.T) {
	e := newEnv(t, stubDispatcher{err: errors.New("email service unavailable")}, false, nil)

	rec := e.do(t, http.MethodPost, "/orders", bearer(t, time.Now().Add(time.Hour), secret), scenarioBody)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "invoice dispatch failed for invoice 41")
	assert.Len(t, e.repo.orders, 1)
}

func TestCreateOrder_StoreFailure(t *testing.T) {
	e := newEnv(t, nil, true, nil)
	e.repo.err = errors.New("connection refused")

	rec := e.do(t, http.MethodPost, "/orders", bearer(t, time.Now().Add(time.Hour), secret), scenarioBody)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}

func TestGetOrder(t *testing.T) {
	e := newEnv(t, nil, true, nil)
	e.do(t, http.MethodPost, "/orders", bearer(t, time.Now().Add(time.Hour), secret), scenarioBody)

	assert.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/orders/41", "", "").Code)
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodGet, "/orders/99", "", "").Code)
	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodGet, "/orders/abc", "", "").Code)
}

func TestInvoicePDF(t *testing.T) {
	e := newEnv(t, nil, true, nil)
	token := bearer(t, time.Now().Add(time.Hour), secret)
	e.do(t, http.MethodPost, "/orders", token, scenarioBody)

	rec := e.do(t, http.MethodGet, "/invoices/41/pdf", token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Equal(t, "%PDF-1.4", rec.Body.String())

	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodGet, "/invoices/99/pdf", token, "").Code)
	assert.Equal(t, http.StatusUnauthorized, e.do(t, http.MethodGet, "/invoices/41/pdf", "", "").Code)
}

func TestInvoicePDF_RenderFailure(t *testing.T) {
	e := newEnv(t, nil, true, errors.New("wkhtmltopdf not found"))
	token := bearer(t, time.Now().Add(time.Hour), secret)
	e.do(t, http.MethodPost, "/orders", token, scenarioBody)

	rec := e.do(t, http.MethodGet, "/invoices/41/pdf", token, "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "wkhtmltopdf not found")
}

func TestSendInvoice(t *testing.T) {
	e := newEnv(t, stubDispatcher{}, true, nil)
	token := bearer(t, time.Now().Add(time.Hour), secret)
	e.do(t, http.MethodPost, "/orders", token, scenarioBody)

	assert.Equal(t, http.StatusAccepted, e.do(t, http.MethodPost, "/invoices/41/send", token, "").Code)
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodPost, "/invoices/99/send", token, "").Code)
}
