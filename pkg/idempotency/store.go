package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store remembers which outbox events a consumer group has finished
// handling. An event is recorded only once its work has succeeded.
type Store struct {
	rdb    redis.Cmdable
	ttl    time.Duration
	prefix string
}

func NewStore(rdb redis.Cmdable, group string, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl, prefix: "idem:" + group}
}

func (s *Store) Key(eventID string) string {
	return fmt.Sprintf("%s:%s", s.prefix, eventID)
}

// Done reports whether key has been marked done.
func (s *Store) Done(ctx context.Context, key string) (bool, error) {
	n, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkDone records key as handled for the store's TTL.
func (s *Store) MarkDone(ctx context.Context, key string) error {
	return s.rdb.Set(ctx, key, time.Now().UTC().Format(time.RFC3339), s.ttl).Err()
}
