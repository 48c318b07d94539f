package cascheck

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// SettleMode selects how the verifier waits between write and read.
type SettleMode uint8

const (
	SettleDefault SettleMode = iota // use the verifier's configured policy
	SettleFixed                     // sleep Interval, read once
	SettlePoll                      // read every PollEvery until match or Timeout
	SettleNone                      // read immediately
)

func (m SettleMode) String() string {
	switch m {
	case SettleFixed:
		return "fixed"
	case SettlePoll:
		return "poll"
	case SettleNone:
		return "none"
	default:
		return "default"
	}
}

// ParseSettleMode accepts "fixed", "poll" and "none"; "" maps to SettleDefault.
func ParseSettleMode(s string) (SettleMode, error) {
	switch s {
	case "":
		return SettleDefault, nil
	case "fixed":
		return SettleFixed, nil
	case "poll":
		return SettlePoll, nil
	case "none":
		return SettleNone, nil
	}
	return SettleDefault, fmt.Errorf("unknown settle mode %q", s)
}

// Settle is the wait inserted between a write and its verifying read.
// Zero fields fall back to the verifier's policy, then to the package defaults.
type Settle struct {
	Mode      SettleMode
	Interval  time.Duration // SettleFixed
	Timeout   time.Duration // SettlePoll upper bound
	PollEvery time.Duration // SettlePoll period
}

// NoSettle reads immediately after the write.
var NoSettle = Settle{Mode: SettleNone}

func (s Settle) withDefaults(def Settle) Settle {
	if s.Mode == SettleDefault {
		s.Mode = def.Mode
	}
	s.Mode = coalesce(s.Mode, SettleFixed)
	s.Interval = coalesce(s.Interval, coalesce(def.Interval, DefaultSettleInterval))
	s.Timeout = coalesce(s.Timeout, coalesce(def.Timeout, DefaultSettleTimeout))
	s.PollEvery = coalesce(s.PollEvery, coalesce(def.PollEvery, DefaultPollEvery))
	return s
}

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the default SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ErrWaitTimeout is returned by WaitFor when cond never held.
var ErrWaitTimeout = errors.New("cascheck: condition not met before timeout")

// WaitFor evaluates cond immediately and then every `every` until it returns
// true, returns an error, or timeout has elapsed. It returns the number of
// evaluations. Time is measured with the sleeps performed, so a fake SleepFunc
// makes the loop deterministic.
func WaitFor(ctx context.Context, sleep SleepFunc, timeout, every time.Duration, cond func(context.Context) (bool, error)) (int, error) {
	if sleep == nil {
		sleep = Sleep
	}
	every = coalesce(every, DefaultPollEvery)
	var waited time.Duration
	for polls := 1; ; polls++ {
		ok, err := cond(ctx)
		if err != nil {
			return polls, err
		}
		if ok {
			return polls, nil
		}
		if waited >= timeout {
			return polls, ErrWaitTimeout
		}
		step := min(every, timeout-waited)
		if err := sleep(ctx, step); err != nil {
			return polls, err
		}
		waited += step
	}
}
