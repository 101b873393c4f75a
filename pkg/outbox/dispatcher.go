package outbox

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/segmentio/kafka-go"

	"github.com/dmehra2102/order-invoicing/pkg/tracing"
)

type Producer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type Dispatcher struct {
	log      *slog.Logger
	producer Producer
	topic    string
}

func NewDispatcher(log *slog.Logger, producer Producer, topic string) *Dispatcher {
	return &Dispatcher{log: log, producer: producer, topic: topic}
}

// Message builds the kafka message for event. Messages are keyed by aggregate
// so all events of one order land on the same partition.
func (d *Dispatcher) Message(event Event) kafka.Message {
	headers := make([]kafka.Header, 0, len(event.Headers)+3)
	for k, v := range event.Headers {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	headers = append(headers,
		kafka.Header{Key: HeaderEventID, Value: []byte(strconv.FormatInt(event.ID, 10))},
		kafka.Header{Key: HeaderEventType, Value: []byte(event.Type)},
	)
	if event.Traceparent != "" {
		headers = append(headers, kafka.Header{Key: tracing.TraceparentHeader, Value: []byte(event.Traceparent)})
	}
	return kafka.Message{
		Topic:   d.topic,
		Key:     []byte(event.AggregateID),
		Value:   event.Payload,
		Headers: headers,
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, event Event) error {
	if err := d.producer.WriteMessages(ctx, d.Message(event)); err != nil {
		d.log.Error("outbox dispatch failed", "event_id", event.ID, "err", err)
		return err
	}
	d.log.Info("outbox dispatched", "event_id", event.ID, "type", event.Type)
	return nil
}
