package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/dmehra2102/order-invoicing/pkg/metrics"
)

type Store interface {
	// LockBatch claims up to batchSize pending events, or in-progress events
	// whose lease has expired, for relayID.
	LockBatch(ctx context.Context, relayID string, batchSize int, lease time.Duration) ([]Event, error)
	MarkSent(ctx context.Context, ids []int64) error
	// MarkFailed records a failed publish. The event returns to pending until
	// it has failed maxRetries times.
	MarkFailed(ctx context.Context, id int64, errMsg string, maxRetries int) error
}

type Relay struct {
	log        *slog.Logger
	store      Store
	dispatch   *Dispatcher
	relayID    string
	batchSize  int
	interval   time.Duration
	lease      time.Duration
	maxRetries int
}

type Option func(*Relay)

func WithBatchSize(n int) Option { return func(r *Relay) { r.batchSize = n } }
func WithInterval(d time.Duration) Option { return func(r *Relay) { r.interval = d } }
func WithLease(d time.Duration) Option { return func(r *Relay) { r.lease = d } }
func WithMaxRetries(n int) Option { return func(r *Relay) { r.maxRetries = n } }

func NewRelay(log *slog.Logger, store Store, dispatch *Dispatcher, relayID string, opts ...Option) *Relay {
	r := &Relay{
		log:        log,
		store:      store,
		dispatch:   dispatch,
		relayID:    relayID,
		batchSize:  100,
		interval:   500 * time.Millisecond,
		lease:      30 * time.Second,
		maxRetries: 10,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Relay) Run(ctx context.Context) error {
	t := time.NewTicker(r.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info("relay stopping", "relay_id", r.relayID)
			return nil
		case <-t.C:
			if _, err := r.Tick(ctx); err != nil {
				r.log.Error("relay tick failed", "relay_id", r.relayID, "err", err)
			}
		}
	}
}

// Tick relays one batch and reports how many events were published.
func (r *Relay) Tick(ctx context.Context) (int, error) {
	events, err := r.store.LockBatch(ctx, r.relayID, r.batchSize, r.lease)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}

	ids := make([]int64, 0, len(events))
	for _, e := range events {
		if err := r.dispatch.Dispatch(ctx, e); err != nil {
			metrics.OutboxEventsTotal.WithLabelValues("failed").Inc()
			if mErr := r.store.MarkFailed(ctx, e.ID, err.Error(), r.maxRetries); mErr != nil {
				r.log.Error("relay mark failed error", "event_id", e.ID, "err", mErr)
			}
			continue
		}
		metrics.OutboxEventsTotal.WithLabelValues("sent").Inc()
		ids = append(ids, e.ID)
	}
	if len(ids) > 0 {
		if err := r.store.MarkSent(ctx, ids); err != nil {
			return len(ids), err
		}
	}
	return len(ids), nil
}
