package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "idem:"

// RedisStore shares idempotency state between instances. Reservations use
// SET NX so exactly one caller wins a key.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Reserve(ctx context.Context, scope, fingerprint string, ttl time.Duration) (Record, bool, error) {
	rec := Record{Fingerprint: fingerprint}
	payload, err := json.Marshal(rec)
	if err != nil {
		return Record{}, false, fmt.Errorf("encode reservation: %w", err)
	}
	ok, err := s.client.SetNX(ctx, keyPrefix+scope, payload, ttl).Result()
	if err != nil {
		return Record{}, false, fmt.Errorf("reserve idempotency key: %w", err)
	}
	if ok {
		return rec, true, nil
	}

	raw, err := s.client.Get(ctx, keyPrefix+scope).Bytes()
	if errors.Is(err, redis.Nil) {
		// Expired between SETNX and GET; treat as a fresh attempt.
		return s.Reserve(ctx, scope, fingerprint, ttl)
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("load idempotency key: %w", err)
	}
	var existing Record
	if err := json.Unmarshal(raw, &existing); err != nil {
		return Record{}, false, fmt.Errorf("decode idempotency record: %w", err)
	}
	return existing, false, nil
}

func (s *RedisStore) Complete(ctx context.Context, scope string, rec Record, ttl time.Duration) error {
	rec.Completed = true
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode idempotency record: %w", err)
	}
	ok, err := s.client.SetXX(ctx, keyPrefix+scope, payload, ttl).Result()
	if err != nil {
		return fmt.Errorf("complete idempotency key: %w", err)
	}
	if !ok {
		return ErrNotReserved
	}
	return nil
}

func (s *RedisStore) Release(ctx context.Context, scope string) error {
	return s.client.Del(ctx, keyPrefix+scope).Err()
}
