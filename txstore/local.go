package txstore

import (
	"context"
	"sync"
)

type localEntry struct {
	Val string
	Ver uint64
}

// LocalTxStore keeps versioned values in-process.
// A commit succeeds only if the version read at the start of the attempt is
// still current.
type LocalTxStore struct {
	mu   sync.RWMutex
	vals map[string]localEntry
}

var _ TxStore = (*LocalTxStore)(nil)

func NewLocalTxStore() *LocalTxStore {
	return &LocalTxStore{vals: make(map[string]localEntry)}
}

// Get returns the current value; missing => ("", false).
func (s *LocalTxStore) Get(_ context.Context, k string) (string, bool) {
	s.mu.RLock()
	e, ok := s.vals[k]
	s.mu.RUnlock()
	return e.Val, ok
}

// Set writes unconditionally and bumps the version, failing any attempt that
// read the key before.
func (s *LocalTxStore) Set(_ context.Context, k, v string) {
	s.mu.Lock()
	e := s.vals[k]
	e.Val = v
	e.Ver++
	s.vals[k] = e
	s.mu.Unlock()
}

// Attempt calls next outside the lock so concurrent attempts genuinely race.
func (s *LocalTxStore) Attempt(ctx context.Context, k string, next func(string) (string, error)) (string, string, error) {
	if err := ctx.Err(); err != nil {
		return "", "", err
	}
	s.mu.RLock()
	seen := s.vals[k]
	s.mu.RUnlock()

	nv, err := next(seen.Val)
	if err != nil {
		return seen.Val, "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.vals[k]
	if cur.Ver != seen.Ver {
		return seen.Val, nv, ErrConflict
	}
	s.vals[k] = localEntry{Val: nv, Ver: cur.Ver + 1}
	return seen.Val, nv, nil
}

func (s *LocalTxStore) Close(_ context.Context) error { return nil }
