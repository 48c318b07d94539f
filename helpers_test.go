package cascheck

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// fakeClock records sleeps instead of blocking; onSleep runs after each one.
type fakeClock struct {
	mu      sync.Mutex
	slept   []time.Duration
	total   time.Duration
	onSleep func(n int, d time.Duration)
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.slept = append(c.slept, d)
	c.total += d
	n := len(c.slept)
	fn := c.onSleep
	c.mu.Unlock()
	if fn != nil {
		fn(n, d)
	}
	return nil
}

func (c *fakeClock) Total() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

// recHooks counts events.
type recHooks struct {
	NopHooks
	mu         sync.Mutex
	mismatches []string
	conns      []Role
	conflicts  int
	exhausted  int
	settles    []int
}

func (h *recHooks) ReplicaMismatch(op, _ string) {
	h.mu.Lock()
	h.mismatches = append(h.mismatches, op)
	h.mu.Unlock()
}

func (h *recHooks) ConnectivityFailure(r Role, _ string, _ error) {
	h.mu.Lock()
	h.conns = append(h.conns, r)
	h.mu.Unlock()
}

func (h *recHooks) TxnConflict(string, int) {
	h.mu.Lock()
	h.conflicts++
	h.mu.Unlock()
}

func (h *recHooks) TxnExhausted(string, int) {
	h.mu.Lock()
	h.exhausted++
	h.mu.Unlock()
}

func (h *recHooks) SettleWaited(_ string, _ time.Duration, polls int) {
	h.mu.Lock()
	h.settles = append(h.settles, polls)
	h.mu.Unlock()
}

func newServer(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = c.Close() })
	return mr, c
}

// newVerifier wires a verifier whose fake clock fast-forwards mr, so TTLs
// elapse as the settle policy "sleeps".
func newVerifier(t *testing.T, primary, replica redis.Cmdable, mr *miniredis.Miniredis, opts VerifierOptions) (*Verifier, *fakeClock) {
	t.Helper()
	clk := &fakeClock{}
	if mr != nil {
		clk.onSleep = func(_ int, d time.Duration) { mr.FastForward(d) }
	}
	opts.Primary, opts.Replica = primary, replica
	if opts.Sleep == nil {
		opts.Sleep = clk.Sleep
	}
	v, err := NewVerifier(opts)
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	return v, clk
}
