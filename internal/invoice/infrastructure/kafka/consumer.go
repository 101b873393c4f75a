package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/order-invoicing/internal/invoice/application"
	orderdomain "github.com/dmehra2102/order-invoicing/internal/order/domain"
	"github.com/dmehra2102/order-invoicing/pkg/outbox"
	"github.com/dmehra2102/order-invoicing/pkg/tracing"
)

type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type InvoiceDispatcher interface {
	Dispatch(ctx context.Context, invoiceID, userID int64) error
}

// Deduper records events whose invoice has been mailed so redeliveries are
// skipped.
type Deduper interface {
	Key(eventID string) string
	Done(ctx context.Context, key string) (bool, error)
	MarkDone(ctx context.Context, key string) error
}

func NewReader(brokers []string, topic, group string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: group,
	})
}

type Consumer struct {
	log         *slog.Logger
	reader      MessageReader
	dispatcher  InvoiceDispatcher
	dedup       Deduper
	tracer      trace.Tracer
	maxAttempts int
	backoff     time.Duration
}

func NewConsumer(log *slog.Logger, reader MessageReader, dispatcher InvoiceDispatcher, dedup Deduper, maxAttempts int) *Consumer {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Consumer{
		log:         log,
		reader:      reader,
		dispatcher:  dispatcher,
		dedup:       dedup,
		tracer:      otel.Tracer("invoice-consumer"),
		maxAttempts: maxAttempts,
		backoff:     time.Second,
	}
}

// Run consumes until ctx is cancelled. A message is committed once it has
// been dispatched, skipped, or has exhausted its attempts.
func (c *Consumer) Run(ctx context.Context) error {
	defer c.reader.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			return err
		}
		if err := c.handle(ctx, msg); err != nil {
			return err
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.log.Error("commit failed", "offset", msg.Offset, "err", err)
		}
	}
}

// handle only returns an error when ctx ends mid-dispatch; the message must
// then stay uncommitted.
func (c *Consumer) handle(ctx context.Context, msg kafka.Message) error {
	if t := tracing.HeaderValue(msg.Headers, outbox.HeaderEventType); t != orderdomain.EventInvoiceRequested {
		c.log.Debug("ignoring event", "type", t, "offset", msg.Offset)
		return nil
	}

	var event orderdomain.InvoiceRequested
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		c.log.Error("unmarshal failed", "offset", msg.Offset, "err", err)
		return nil
	}

	eventID := tracing.HeaderValue(msg.Headers, outbox.HeaderEventID)
	if eventID == "" {
		eventID = fmt.Sprintf("%s-%d-%d", msg.Topic, msg.Partition, msg.Offset)
	}
	key := c.dedup.Key(eventID)
	done, err := c.dedup.Done(ctx, key)
	switch {
	case err != nil:
		c.log.Warn("idempotency check failed, dispatching anyway", "event_id", eventID, "err", err)
	case done:
		c.log.Info("duplicate event skipped", "event_id", eventID, "invoice_id", event.InvoiceID)
		return nil
	}

	msgCtx := tracing.ExtractKafkaHeaders(ctx, msg.Headers)
	msgCtx, span := c.tracer.Start(msgCtx, "ConsumeInvoiceRequested")
	span.SetAttributes(attribute.Int64("invoice_id", event.InvoiceID), attribute.String("event_id", eventID))
	defer span.End()

	err = c.dispatch(msgCtx, event)
	if err == nil {
		// A crash before this point redelivers the event and mails it again.
		if merr := c.dedup.MarkDone(context.WithoutCancel(ctx), key); merr != nil {
			c.log.Warn("idempotency record failed", "event_id", eventID, "err", merr)
		}
		return nil
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	if ctx.Err() != nil {
		return ctx.Err()
	}
	c.log.Error("invoice dispatch abandoned", "event_id", eventID, "invoice_id", event.InvoiceID, "attempts", c.maxAttempts, "err", err)
	return nil
}

func (c *Consumer) dispatch(ctx context.Context, event orderdomain.InvoiceRequested) error {
	var err error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err = c.dispatcher.Dispatch(ctx, event.InvoiceID, event.UserID); err == nil {
			return nil
		}
		if permanent(err) || attempt == c.maxAttempts {
			return err
		}
		c.log.Warn("invoice dispatch failed, retrying", "invoice_id", event.InvoiceID, "attempt", attempt, "err", err)

		t := time.NewTimer(c.backoff * time.Duration(attempt))
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	return err
}

func permanent(err error) bool {
	return errors.Is(err, orderdomain.ErrOrderNotFound) || errors.Is(err, application.ErrNoRecipient)
}
