package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/jackc/pgx/v5"

	"github.com/dmehra2102/order-invoicing/internal/order/application"
	"github.com/dmehra2102/order-invoicing/internal/order/domain"
	"github.com/dmehra2102/order-invoicing/pkg/outbox"
	"github.com/dmehra2102/order-invoicing/pkg/pgstore"
)

const (
	insertOrderSQL = `INSERT INTO orders (user_id, "timestamp", order_price)
		VALUES ($1, $2, $3)
		RETURNING invoice_id`

	insertItemSQL = `INSERT INTO order_items (invoice_id, order_item_id, product_id, amount, product_price, product_name, total_price)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	insertOutboxSQL = `INSERT INTO outbox (aggregate_type, aggregate_id, type, payload, headers, traceparent, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	// Orders without items aggregate to an empty array, never NULL.
	listOrdersSQL = `SELECT o.invoice_id, o.user_id, o."timestamp", o.order_price,
			COALESCE(
				json_agg(json_build_object(
					'order_item_id', i.order_item_id,
					'product_id', i.product_id,
					'amount', i.amount,
					'product_price', i.product_price,
					'product_name', i.product_name,
					'total_price', i.total_price
				) ORDER BY i.order_item_id) FILTER (WHERE i.invoice_id IS NOT NULL),
				'[]'::json
			) AS order_items
		FROM orders o
		LEFT JOIN order_items i ON i.invoice_id = o.invoice_id
		GROUP BY o.invoice_id
		ORDER BY o.invoice_id`

	getOrderSQL = `SELECT invoice_id, user_id, "timestamp", order_price FROM orders WHERE invoice_id = $1`

	getItemsSQL = `SELECT order_item_id, product_id, amount, product_price, product_name, total_price
		FROM order_items
		WHERE invoice_id = $1
		ORDER BY order_item_id`
)

type Repository struct {
	log *slog.Logger
	db  pgstore.DB
}

func NewRepository(log *slog.Logger, db pgstore.DB) *Repository {
	return &Repository{log: log, db: db}
}

func (r *Repository) Create(ctx context.Context, o domain.Order, ev *application.OutboxEvent) (int64, error) {
	var invoiceID int64
	err := pgstore.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, insertOrderSQL, o.UserID, o.Timestamp, o.OrderPrice).Scan(&invoiceID); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		for _, item := range o.Items {
			_, err := tx.Exec(ctx, insertItemSQL,
				invoiceID, item.OrderItemID, item.ProductID, item.Amount, item.ProductPrice, item.ProductName, item.TotalPrice)
			if err != nil {
				return fmt.Errorf("insert order item %d: %w", item.OrderItemID, err)
			}
		}
		if ev == nil {
			return nil
		}
		payload, err := ev.Payload(invoiceID)
		if err != nil {
			return fmt.Errorf("build %s payload: %w", ev.Type, err)
		}
		headers := ev.Headers
		if headers == nil {
			headers = map[string]string{}
		}
		if _, err := tx.Exec(ctx, insertOutboxSQL,
			"order", strconv.FormatInt(invoiceID, 10), ev.Type, payload, headers, ev.Traceparent, string(outbox.StatusPending)); err != nil {
			return fmt.Errorf("insert outbox: %w", err)
		}
		return nil
	})
	if err != nil {
		r.log.Error("order write rolled back", "user_id", o.UserID, "err", err)
		return 0, err
	}
	return invoiceID, nil
}

func (r *Repository) List(ctx context.Context) ([]domain.Order, error) {
	rows, err := r.db.Query(ctx, listOrdersSQL)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := []domain.Order{}
	for rows.Next() {
		var o domain.Order
		var items []byte
		if err := rows.Scan(&o.InvoiceID, &o.UserID, &o.Timestamp, &o.OrderPrice, &items); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		if err := json.Unmarshal(items, &o.Items); err != nil {
			return nil, fmt.Errorf("decode items of order %d: %w", o.InvoiceID, err)
		}
		if o.Items == nil {
			o.Items = []domain.OrderItem{}
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

func (r *Repository) Get(ctx context.Context, invoiceID int64) (domain.Order, error) {
	var o domain.Order
	err := r.db.QueryRow(ctx, getOrderSQL, invoiceID).Scan(&o.InvoiceID, &o.UserID, &o.Timestamp, &o.OrderPrice)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, fmt.Errorf("invoice %d: %w", invoiceID, domain.ErrOrderNotFound)
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("get order %d: %w", invoiceID, err)
	}

	rows, err := r.db.Query(ctx, getItemsSQL, invoiceID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("get items of order %d: %w", invoiceID, err)
	}
	defer rows.Close()

	o.Items = []domain.OrderItem{}
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.OrderItemID, &item.ProductID, &item.Amount, &item.ProductPrice, &item.ProductName, &item.TotalPrice); err != nil {
			return domain.Order{}, fmt.Errorf("scan item: %w", err)
		}
		o.Items = append(o.Items, item)
	}
	if err := rows.Err(); err != nil {
		return domain.Order{}, fmt.Errorf("get items of order %d: %w", invoiceID, err)
	}
	return o, nil
}
