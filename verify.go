package cascheck

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Verifier holds explicit primary and replica handles; it keeps no other state
// and is safe for concurrent use when the handles are.
type Verifier struct {
	primary redis.Cmdable
	replica redis.Cmdable
	settle  Settle
	sleep   SleepFunc
	log     Logger
	hooks   Hooks
}

func NewVerifier(opts VerifierOptions) (*Verifier, error) {
	if opts.Primary == nil {
		return nil, fmt.Errorf("cascheck: primary handle is required")
	}
	if opts.Replica == nil {
		return nil, fmt.Errorf("cascheck: replica handle is required")
	}
	v := &Verifier{
		primary: opts.Primary,
		replica: opts.Replica,
		settle:  opts.Settle.withDefaults(Settle{}),
		sleep:   Sleep,
	}
	if opts.Sleep != nil {
		v.sleep = opts.Sleep
	}
	v.log = coalesce[Logger](opts.Logger, NopLogger{})
	v.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	return v, nil
}

// Policy returns the verifier's default settle policy.
func (v *Verifier) Policy() Settle { return v.settle }

func (v *Verifier) Verify(ctx context.Context, write, read Operation, settle Settle) (VerificationResult, error) {
	implied, err := write.Apply(ctx, v.primary)
	if err != nil {
		err = Classify(RolePrimary, write.String(), err)
		v.failed(write, err)
		return VerificationResult{Op: write.Name, Key: write.Key}, err
	}
	return v.Check(ctx, read.Expect(implied), read, settle)
}

func (v *Verifier) Check(ctx context.Context, expected Value, read Operation, settle Settle) (VerificationResult, error) {
	s := settle.withDefaults(v.settle)
	res := VerificationResult{Op: read.Name, Key: read.Key, Expected: expected}

	sleep := func(ctx context.Context, d time.Duration) error {
		if err := v.sleep(ctx, d); err != nil {
			return err
		}
		res.Elapsed += d
		return nil
	}
	observe := func(ctx context.Context) (bool, error) {
		got, err := read.Apply(ctx, v.replica)
		if err != nil {
			return false, Classify(RoleReplica, read.String(), err)
		}
		res.Observed = got
		res.Match = read.Matches(expected, got)
		return res.Match, nil
	}

	var err error
	switch s.Mode {
	case SettleNone:
		res.Polls = 1
		_, err = observe(ctx)
	case SettlePoll:
		res.Polls, err = WaitFor(ctx, sleep, s.Timeout, s.PollEvery, observe)
		if errors.Is(err, ErrWaitTimeout) {
			err = nil // res.Match is false
		}
	default:
		if err = sleep(ctx, s.Interval); err != nil {
			return res, fmt.Errorf("settle %s: %w", read, err)
		}
		res.Polls = 1
		_, err = observe(ctx)
	}
	if err != nil {
		v.failed(read, err)
		return res, err
	}

	v.hooks.SettleWaited(read.Name, res.Elapsed, res.Polls)
	if !res.Match {
		v.hooks.ReplicaMismatch(read.Name, read.Key)
		v.log.Warn("replica mismatch", Fields{
			"op": read.Name, "key": read.Key, "mode": s.Mode.String(),
			"expected": res.Expected.String(), "observed": res.Observed.String(),
			"waited": res.Elapsed, "polls": res.Polls,
		})
		return res, nil
	}
	v.log.Debug("replica converged", Fields{
		"op": read.Name, "key": read.Key, "mode": s.Mode.String(),
		"waited": res.Elapsed, "polls": res.Polls,
	})
	return res, nil
}

func (v *Verifier) failed(op Operation, err error) {
	var ce *ConnectivityError
	if errors.As(err, &ce) {
		v.hooks.ConnectivityFailure(ce.Role, op.Name, ce.Err)
		v.log.Warn("endpoint unreachable", Fields{"role": string(ce.Role), "op": op.Name, "key": op.Key, "err": ce.Err})
		return
	}
	v.log.Error("operation failed", Fields{"op": op.Name, "key": op.Key, "err": err})
}
