package kafka

import (
	"time"

	"github.com/segmentio/kafka-go"
)

// NewWriter returns the producer the outbox relay publishes invoice events
// with. Writes are bounded by writeTimeout.
func NewWriter(brokers []string, writeTimeout time.Duration) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		BatchTimeout:           10 * time.Millisecond,
		WriteTimeout:           writeTimeout,
	}
}
