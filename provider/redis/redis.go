package redis

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	pr "github.com/unkn0wn-root/cascheck/provider"
)

var ErrNilClient = errors.New("redis provider: nil client")

// Redis persists results on a Redis deployment so that a later process can
// read them back (cascheck report --run).
type Redis struct {
	rdb         goredis.UniversalClient
	prefix      string
	defaultTTL  time.Duration
	closeClient bool
}

var (
	_ pr.Provider = (*Redis)(nil)
	_ pr.Keyed    = (*Redis)(nil)
)

type Config struct {
	Client      goredis.UniversalClient
	Prefix      string        // prepended as "<prefix>:"; "" => none
	DefaultTTL  time.Duration // used when Set gets ttl <= 0; 0 => no expiry
	CloseClient bool          // set true only if this provider exclusively owns the client
}

func New(cfg Config) (*Redis, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	return &Redis{
		rdb:         cfg.Client,
		prefix:      cfg.Prefix,
		defaultTTL:  cfg.DefaultTTL,
		closeClient: cfg.CloseClient,
	}, nil
}

func (p *Redis) key(k string) string {
	if p.prefix == "" {
		return k
	}
	return p.prefix + ":" + k
}

// StorageKey returns key with the configured prefix applied.
func (p *Redis) StorageKey(key string) string { return p.key(key) }

func (p *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := p.rdb.Get(ctx, p.key(key)).Bytes()
	if err == goredis.Nil {
		return nil, false, nil // miss
	}
	if err != nil {
		return nil, false, err // transport/server error
	}
	return b, true, nil
}

func (p *Redis) Set(ctx context.Context, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = p.defaultTTL
	}
	if err := p.rdb.Set(ctx, p.key(key), value, ttl).Err(); err != nil {
		return false, err
	}
	return true, nil
}

func (p *Redis) Del(ctx context.Context, key string) error {
	return p.rdb.Del(ctx, p.key(key)).Err()
}

// Close releases the underlying redis client only when this provider owns it.
// Safe to call multiple times; repeated calls become no-ops.
func (p *Redis) Close(context.Context) error {
	if p.closeClient {
		if err := p.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return err
		}
	}
	return nil
}
