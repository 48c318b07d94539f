package cascheck

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	tx "github.com/unkn0wn-root/cascheck/txstore"
)

// NextFunc computes the value to commit from the value read under watch.
// old is "" when the key is missing. It may run once per attempt.
type NextFunc func(old string) (string, error)

// IncrBy adds n to a decimal counter; a missing key counts as 0.
func IncrBy(n int64) NextFunc {
	return func(old string) (string, error) {
		var cur int64
		if old != "" {
			v, err := strconv.ParseInt(old, 10, 64)
			if err != nil {
				return "", fmt.Errorf("counter value %q: %w", old, err)
			}
			cur = v
		}
		return strconv.FormatInt(cur+n, 10), nil
	}
}

// Outcome is how a transaction attempt ended.
type Outcome uint8

const (
	Committed Outcome = iota + 1
	ConflictRetry
)

func (o Outcome) String() string {
	switch o {
	case Committed:
		return "committed"
	case ConflictRetry:
		return "conflict-retry"
	default:
		return "pending"
	}
}

// TransactionAttempt records one pass through the watch/read/compute/commit loop.
type TransactionAttempt struct {
	Key     string
	Number  int // 1-based
	Read    string
	Next    string
	Outcome Outcome
}

// Runner is a bounded compare-and-swap loop over a TxStore.
type Runner struct {
	store       tx.TxStore
	maxAttempts int
	isConflict  func(error) bool
	log         Logger
	hooks       Hooks
}

func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("cascheck: txstore is required")
	}
	r := &Runner{
		store:       opts.Store,
		maxAttempts: coalesce(opts.MaxAttempts, defaultMaxAttempts),
		isConflict:  opts.IsConflict,
	}
	if r.isConflict == nil {
		r.isConflict = func(err error) bool { return errors.Is(err, tx.ErrConflict) }
	}
	r.log = coalesce[Logger](opts.Logger, NopLogger{})
	r.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	return r, nil
}

func (r *Runner) Run(ctx context.Context, key string, next NextFunc, maxAttempts int) (TransactionAttempt, error) {
	if maxAttempts <= 0 {
		maxAttempts = r.maxAttempts
	}
	var (
		last    TransactionAttempt
		lastErr error
	)
	for n := 1; n <= maxAttempts; n++ {
		if err := ctx.Err(); err != nil {
			return last, err
		}
		old, nw, err := r.store.Attempt(ctx, key, next)
		last = TransactionAttempt{Key: key, Number: n, Read: old, Next: nw}
		if err == nil {
			last.Outcome = Committed
			r.log.Debug("transaction committed", Fields{"key": key, "attempt": n, "read": old, "next": nw})
			return last, nil
		}
		if !r.isConflict(err) {
			return last, Classify(RolePrimary, "txn "+key, err)
		}
		last.Outcome = ConflictRetry
		lastErr = err
		r.hooks.TxnConflict(key, n)
		r.log.Debug("transaction conflict, retrying", Fields{"key": key, "attempt": n})
	}
	r.hooks.TxnExhausted(key, maxAttempts)
	r.log.Warn("transaction gave up", Fields{"key": key, "attempts": maxAttempts})
	return last, &ConflictExhausted{Key: key, Attempts: maxAttempts, Last: lastErr}
}
