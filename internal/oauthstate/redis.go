package oauthstate

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "didlink:oauth:state:"

// RedisNonceStore keeps reserved nonces in Redis with a TTL.
type RedisNonceStore struct {
	client redis.Cmdable
}

// NewRedisNonceStore returns a NonceStore backed by client.
func NewRedisNonceStore(client redis.Cmdable) *RedisNonceStore {
	return &RedisNonceStore{client: client}
}

// Reserve stores nonce until ttl elapses. Reserving an existing nonce fails.
func (s *RedisNonceStore) Reserve(ctx context.Context, nonce string, ttl time.Duration) error {
	ok, err := s.client.SetNX(ctx, keyPrefix+nonce, "1", ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("oauthstate: nonce collision")
	}
	return nil
}

// Consume deletes the nonce atomically with GETDEL; only the first caller sees it.
func (s *RedisNonceStore) Consume(ctx context.Context, nonce string) (bool, error) {
	err := s.client.GetDel(ctx, keyPrefix+nonce).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
