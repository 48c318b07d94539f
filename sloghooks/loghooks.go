package sloghooks

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/cascheck"
)

type Options struct {
	// Sampling to avoid floods under contention; 0/1 = log all.
	ConflictEvery uint64
	SettleEvery   uint64
	// Optional key redactor. Defaults to identity; keys are namespaced test keys.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	conflictCtr atomic.Uint64
	settleCtr   atomic.Uint64
}

var _ cascheck.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

// HashKeys redacts keys to a SHA-256 prefix.
func HashKeys(k string) string {
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	return k
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) SettleWaited(op string, waited time.Duration, polls int) {
	if h.l == nil || !sample(h.opts.SettleEvery, &h.settleCtr) {
		return
	}
	h.l.Debug("cascheck.settle_waited",
		"op", op,
		"waited", waited,
		"polls", polls)
}

func (h *Hooks) ReplicaMismatch(op, key string) {
	if h.l == nil {
		return
	}
	h.l.Warn("cascheck.replica_mismatch",
		"op", op,
		"key", h.redact(key))
}

func (h *Hooks) ConnectivityFailure(role cascheck.Role, op string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("cascheck.connectivity_failure",
		"role", string(role),
		"op", op,
		"err", err)
}

func (h *Hooks) TxnConflict(key string, attempt int) {
	if h.l == nil || !sample(h.opts.ConflictEvery, &h.conflictCtr) {
		return
	}
	h.l.Debug("cascheck.txn_conflict",
		"key", h.redact(key),
		"attempt", attempt)
}

func (h *Hooks) TxnExhausted(key string, attempts int) {
	if h.l == nil {
		return
	}
	h.l.Error("cascheck.txn_exhausted",
		"key", h.redact(key),
		"attempts", attempts)
}

func (h *Hooks) ScenarioFinished(name, status string, took time.Duration) {
	if h.l == nil {
		return
	}
	lvl := slog.LevelInfo
	if status != "pass" {
		lvl = slog.LevelWarn
	}
	h.l.Log(context.Background(), lvl, "cascheck.scenario_finished",
		"scenario", name,
		"status", status,
		"took", took)
}

func (h *Hooks) ResultRejected(storageKey string) {
	if h.l == nil {
		return
	}
	h.l.Warn("cascheck.result_rejected",
		"key", storageKey)
}
