// usage:
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{
//	    ConflictEvery: 10, // sample logs: ~every 10th txn conflict
//	})
//
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	v, _ := cascheck.NewVerifier(cascheck.VerifierOptions{
//	    Primary: primary,
//	    Replica: replica,
//	    Hooks:   hooks, // or `raw` if you don't want async
//	})
package asynchook

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/cascheck"
)

// Hooks forwards events to inner on a bounded queue; events are dropped
// when the queue is full so callers never block.
type Hooks struct {
	inner   cascheck.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	dropped atomic.Uint64
	closed  atomic.Bool
}

var _ cascheck.Hooks = (*Hooks)(nil)

func New(inner cascheck.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains queued events and stops the workers. Events sent after Close
// are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.closed.Store(true)
		close(h.q)
		h.wg.Wait()
	})
}

// Dropped reports how many events were discarded on a full queue or after Close.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	if h.closed.Load() {
		h.dropped.Add(1)
		return
	}
	defer func() {
		// lost the race with Close: send on closed channel
		if recover() != nil {
			h.dropped.Add(1)
		}
	}()
	select {
	case h.q <- f:
	default: // drop
		h.dropped.Add(1)
	}
}

func (h *Hooks) SettleWaited(op string, d time.Duration, polls int) {
	h.try(func() { h.inner.SettleWaited(op, d, polls) })
}
func (h *Hooks) ReplicaMismatch(op, key string) { h.try(func() { h.inner.ReplicaMismatch(op, key) }) }
func (h *Hooks) ConnectivityFailure(r cascheck.Role, op string, err error) {
	h.try(func() { h.inner.ConnectivityFailure(r, op, err) })
}
func (h *Hooks) TxnConflict(key string, n int)  { h.try(func() { h.inner.TxnConflict(key, n) }) }
func (h *Hooks) TxnExhausted(key string, n int) { h.try(func() { h.inner.TxnExhausted(key, n) }) }
func (h *Hooks) ScenarioFinished(name, status string, took time.Duration) {
	h.try(func() { h.inner.ScenarioFinished(name, status, took) })
}
func (h *Hooks) ResultRejected(k string) { h.try(func() { h.inner.ResultRejected(k) }) }
