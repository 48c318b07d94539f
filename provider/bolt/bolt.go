// Package bolt persists results in a local BoltDB file so that a later
// "cascheck report" can read a run back without any server.
package bolt

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/boltdb/bolt"

	pr "github.com/unkn0wn-root/cascheck/provider"
)

var bucketName = []byte("results")

// Provider stores each value behind an 8-byte big-endian expiry (unix nanos,
// 0 = none). Expired entries are dropped lazily on Get.
type Provider struct {
	db  *bolt.DB
	now func() time.Time
}

var _ pr.Provider = (*Provider)(nil)

type Config struct {
	Path        string        // required
	OpenTimeout time.Duration // wait for the file lock; 0 => 1s
}

func New(cfg Config) (*Provider, error) {
	if cfg.Path == "" {
		return nil, errors.New("bolt provider: path is required")
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = time.Second
	}
	db, err := bolt.Open(cfg.Path, 0600, &bolt.Options{Timeout: cfg.OpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create bucket: %w", err)
	}
	return &Provider{db: db, now: time.Now}, nil
}

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	var (
		out     []byte
		found   bool
		expired bool
	)
	err := p.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketName).Get([]byte(key))
		if raw == nil {
			return nil
		}
		if len(raw) < 8 {
			expired = true // unreadable; treat like an expired entry
			return nil
		}
		if exp := int64(binary.BigEndian.Uint64(raw[:8])); exp != 0 && p.now().UnixNano() >= exp {
			expired = true
			return nil
		}
		// raw is only valid inside the transaction
		out = append([]byte{}, raw[8:]...)
		found = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if expired {
		_ = p.Del(context.Background(), key)
		return nil, false, nil
	}
	return out, found, nil
}

func (p *Provider) Set(_ context.Context, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	buf := make([]byte, 8+len(value))
	if ttl > 0 {
		binary.BigEndian.PutUint64(buf[:8], uint64(p.now().Add(ttl).UnixNano()))
	}
	copy(buf[8:], value)
	err := p.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put([]byte(key), buf)
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func (p *Provider) Del(_ context.Context, key string) error {
	return p.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Delete([]byte(key))
	})
}

func (p *Provider) Close(_ context.Context) error {
	return p.db.Close()
}
