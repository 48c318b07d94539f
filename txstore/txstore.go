package txstore

import (
	"context"
	"errors"
)

// ErrConflict means the watched key changed between the read and the
// conditional commit; the attempt was discarded.
var ErrConflict = errors.New("txstore: watched key modified, commit aborted")

// TxStore runs optimistic read-modify-write attempts on single keys.
// Use RedisTxStore against a live primary; LocalTxStore is the in-process
// double for tests.
type TxStore interface {
	// Attempt watches key, reads it (missing => ""), computes next(old) and
	// commits only if key was not modified in between. A lost race returns an
	// error matching ErrConflict; next's own error aborts the attempt.
	Attempt(ctx context.Context, key string, next func(old string) (string, error)) (old, new string, err error)
	// Close releases what the store owns; a shared client stays open.
	Close(context.Context) error
}
