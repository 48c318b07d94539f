package cascheck

import "time"

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
type Hooks interface {
	// The verifier finished waiting for the replica.
	// polls is 1 for fixed and none modes.
	SettleWaited(op string, waited time.Duration, polls int)

	// The replica did not converge to the expected value.
	ReplicaMismatch(op, key string)

	// An endpoint was unreachable or timed out.
	ConnectivityFailure(role Role, op string, err error)

	// A transaction attempt lost its conditional commit and will be retried.
	TxnConflict(key string, attempt int)

	// A transaction gave up after attempts conflicts.
	TxnExhausted(key string, attempts int)

	// A scenario completed; status ∈ {"pass", "fail", "inconclusive", "error"}.
	ScenarioFinished(name, status string, took time.Duration)

	// The results store rejected a record (backpressure/eviction).
	ResultRejected(storageKey string)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) SettleWaited(string, time.Duration, int)        {}
func (NopHooks) ReplicaMismatch(string, string)                 {}
func (NopHooks) ConnectivityFailure(Role, string, error)        {}
func (NopHooks) TxnConflict(string, int)                        {}
func (NopHooks) TxnExhausted(string, int)                       {}
func (NopHooks) ScenarioFinished(string, string, time.Duration) {}
func (NopHooks) ResultRejected(string)                          {}

// MultiHooks fans every event out to each member in order.
type MultiHooks []Hooks

var _ Hooks = MultiHooks(nil)

func (m MultiHooks) SettleWaited(op string, waited time.Duration, polls int) {
	for _, h := range m {
		h.SettleWaited(op, waited, polls)
	}
}

func (m MultiHooks) ReplicaMismatch(op, key string) {
	for _, h := range m {
		h.ReplicaMismatch(op, key)
	}
}

func (m MultiHooks) ConnectivityFailure(role Role, op string, err error) {
	for _, h := range m {
		h.ConnectivityFailure(role, op, err)
	}
}

func (m MultiHooks) TxnConflict(key string, attempt int) {
	for _, h := range m {
		h.TxnConflict(key, attempt)
	}
}

func (m MultiHooks) TxnExhausted(key string, attempts int) {
	for _, h := range m {
		h.TxnExhausted(key, attempts)
	}
}

func (m MultiHooks) ScenarioFinished(name, status string, took time.Duration) {
	for _, h := range m {
		h.ScenarioFinished(name, status, took)
	}
}

func (m MultiHooks) ResultRejected(storageKey string) {
	for _, h := range m {
		h.ResultRejected(storageKey)
	}
}
