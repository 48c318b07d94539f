package cascheck

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	tx "github.com/unkn0wn-root/cascheck/txstore"
)

// ReplicationVerifier checks that writes applied on the primary become
// observable on the replica.
type ReplicationVerifier interface {
	// Verify applies write on the primary, waits per settle and reads back
	// on the replica. A nil error with Match == false is an inconsistency.
	Verify(ctx context.Context, write, read Operation, settle Settle) (VerificationResult, error)
	// Check skips the write and compares the replica against expected.
	Check(ctx context.Context, expected Value, read Operation, settle Settle) (VerificationResult, error)
}

// TxnRunner runs bounded optimistic transactions on a single key.
type TxnRunner interface {
	// Run returns the committing attempt, or *ConflictExhausted once
	// maxAttempts attempts conflicted. maxAttempts <= 0 uses the runner default.
	Run(ctx context.Context, key string, next NextFunc, maxAttempts int) (TransactionAttempt, error)
}

var (
	_ ReplicationVerifier = (*Verifier)(nil)
	_ TxnRunner           = (*Runner)(nil)
)

// VerifierOptions configure a Verifier.
// Primary and Replica are required; others have sensible defaults.
type VerifierOptions struct {
	// Required
	Primary redis.Cmdable
	Replica redis.Cmdable

	Settle Settle    // zero => fixed 2s
	Sleep  SleepFunc // nil => Sleep (real timer)
	Logger Logger    // if nil, NopLogger is used
	Hooks  Hooks     // if nil, NopHooks is used
}

// RunnerOptions configure a Runner.
// Only Store is required.
type RunnerOptions struct {
	// Required
	Store tx.TxStore

	MaxAttempts int              // 0 => 32
	IsConflict  func(error) bool // nil => errors.Is(err, txstore.ErrConflict)
	Logger      Logger           // if nil, NopLogger is used
	Hooks       Hooks            // if nil, NopHooks is used
}

// VerificationResult is the outcome of one replica read-back.
type VerificationResult struct {
	Op       string
	Key      string
	Expected Value
	Observed Value
	Elapsed  time.Duration // settle time spent before the last replica read
	Polls    int           // replica reads performed
	Match    bool
}

// Err returns a *ConsistencyMismatch when the replica did not match.
func (r VerificationResult) Err() error {
	if r.Match {
		return nil
	}
	return &ConsistencyMismatch{Op: r.Op, Key: r.Key, Expected: r.Expected, Observed: r.Observed}
}
