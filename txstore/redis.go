package txstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisTxStore runs attempts as WATCH / GET / MULTI SET EXEC on the primary.
// Optionally a TTL is applied to every committed value.
type RedisTxStore struct {
	rdb         redis.UniversalClient
	ttl         time.Duration // 0 disables expiry
	closeClient bool
}

var _ TxStore = (*RedisTxStore)(nil)

type RedisConfig struct {
	Client      redis.UniversalClient
	TTL         time.Duration // <= 0 => keys do not expire
	CloseClient bool          // set true only if this store exclusively owns the client
}

// NewRedisTxStore creates a Redis-backed store without TTL on a shared client.
func NewRedisTxStore(client redis.UniversalClient) *RedisTxStore {
	return NewRedisTxStoreWithConfig(RedisConfig{Client: client})
}

// NewRedisTxStoreWithTTL creates a Redis-backed store with TTL on a shared client.
func NewRedisTxStoreWithTTL(client redis.UniversalClient, ttl time.Duration) *RedisTxStore {
	return NewRedisTxStoreWithConfig(RedisConfig{Client: client, TTL: ttl})
}

func NewRedisTxStoreWithConfig(cfg RedisConfig) *RedisTxStore {
	if cfg.TTL < 0 {
		cfg.TTL = 0
	}
	return &RedisTxStore{rdb: cfg.Client, ttl: cfg.TTL, closeClient: cfg.CloseClient}
}

// Attempt maps an aborted EXEC (redis.TxFailedErr) to ErrConflict.
func (s *RedisTxStore) Attempt(ctx context.Context, key string, next func(string) (string, error)) (string, string, error) {
	var old, nv string
	err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		v, err := tx.Get(ctx, key).Result()
		if err != nil && err != redis.Nil {
			return err
		}
		old = v
		nv, err = next(v)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, nv, s.ttl)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return old, nv, fmt.Errorf("%w: %w", ErrConflict, err)
	}
	return old, nv, err
}

// Close closes the client only when the store owns it.
func (s *RedisTxStore) Close(context.Context) error {
	if !s.closeClient {
		return nil
	}
	return s.rdb.Close()
}
