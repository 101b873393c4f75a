package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dmehra2102/order-invoicing/pkg/outbox"
	"github.com/dmehra2102/order-invoicing/pkg/pgstore"
)

type OutboxStore struct {
	log *slog.Logger
	db  pgstore.DB
}

func NewOutboxStore(log *slog.Logger, db pgstore.DB) *OutboxStore {
	return &OutboxStore{log: log, db: db}
}

func (s *OutboxStore) LockBatch(ctx context.Context, relayID string, batchSize int, lease time.Duration) ([]outbox.Event, error) {
	var events []outbox.Event
	err := pgstore.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT id, aggregate_type, aggregate_id, type, payload, headers, traceparent, created_at, retry_count
			FROM outbox
			WHERE status = $1
			   OR (status = $2 AND lease_until < now())
			ORDER BY id
			FOR UPDATE SKIP LOCKED
			LIMIT $3`, string(outbox.StatusPending), string(outbox.StatusInProgress), batchSize)
		if err != nil {
			return err
		}
		for rows.Next() {
			var ev outbox.Event
			if err := rows.Scan(&ev.ID, &ev.AggregateType, &ev.AggregateID, &ev.Type, &ev.Payload, &ev.Headers, &ev.Traceparent, &ev.CreatedAt, &ev.RetryCount); err != nil {
				rows.Close()
				return err
			}
			events = append(events, ev)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		if len(events) == 0 {
			return nil
		}

		ids := make([]int64, 0, len(events))
		for _, ev := range events {
			ids = append(ids, ev.ID)
		}
		_, err = tx.Exec(ctx, `
			UPDATE outbox
			SET status = $1, relay_id = $2, lease_until = now() + $3::interval
			WHERE id = ANY($4)`, string(outbox.StatusInProgress), relayID, lease.String(), ids)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("lock outbox batch: %w", err)
	}
	return events, nil
}

func (s *OutboxStore) MarkSent(ctx context.Context, ids []int64) error {
	ct, err := s.db.Exec(ctx, `UPDATE outbox SET status = $1, lease_until = NULL WHERE id = ANY($2)`, string(outbox.StatusSent), ids)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("mark sent: no rows updated for %v", ids)
	}
	return nil
}

func (s *OutboxStore) MarkFailed(ctx context.Context, id int64, errMsg string, maxRetries int) error {
	_, err := s.db.Exec(ctx, `
		UPDATE outbox
		SET status = CASE WHEN retry_count + 1 >= $3 THEN $4::text ELSE $5::text END,
		    last_error = $2,
		    retry_count = retry_count + 1,
		    relay_id = NULL,
		    lease_until = NULL
		WHERE id = $1`, id, errMsg, maxRetries, string(outbox.StatusFailed), string(outbox.StatusPending))
	if err != nil {
		return err
	}
	s.log.Warn("outbox event publish failed", "event_id", id, "err", errMsg)
	return nil
}
