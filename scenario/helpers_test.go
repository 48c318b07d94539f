package scenario

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/cascheck"
	"github.com/unkn0wn-root/cascheck/txstore"
)

var smallSizes = Sizes{
	BulkKeys:          20,
	PayloadFields:     16,
	PayloadFieldBytes: 64,
	Players:           25,
	Top:               5,
	Visitors:          300,
	MaxVisits:         3,
}

// newEnv points primary and replica at one miniredis; settle sleeps fast
// forward the server so TTLs elapse without waiting.
func newEnv(t *testing.T) (Env, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	sleep := func(ctx context.Context, d time.Duration) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		mr.FastForward(d)
		return nil
	}
	v, err := cascheck.NewVerifier(cascheck.VerifierOptions{Primary: rdb, Replica: rdb, Sleep: sleep})
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	r, err := cascheck.NewRunner(cascheck.RunnerOptions{Store: txstore.NewRedisTxStore(rdb)})
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	return Env{
		Primary:       rdb,
		Replica:       rdb,
		Verifier:      v,
		Runner:        r,
		Sizes:         smallSizes,
		PubSubTimeout: 2 * time.Second,
		Contention:    4,
		Rand:          rand.New(rand.NewSource(7)),
	}, mr
}

// finished records ScenarioFinished events.
type finished struct {
	cascheck.NopHooks
	mu     sync.Mutex
	names  []string
	status []string
}

func (h *finished) ScenarioFinished(name, status string, _ time.Duration) {
	h.mu.Lock()
	h.names = append(h.names, name)
	h.status = append(h.status, status)
	h.mu.Unlock()
}
