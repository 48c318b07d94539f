// Package scenario holds the smoke-test catalogue and the driver that runs it
// against a primary/replica pair.
package scenario

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/cascheck"
	"github.com/unkn0wn-root/cascheck/codec"
	"github.com/unkn0wn-root/cascheck/internal/util"
)

// Sizes scales the data-heavy scenarios.
type Sizes struct {
	BulkKeys          int // bulk and pipeline
	PayloadFields     int // large_payload
	PayloadFieldBytes int
	Players           int // leaderboard
	Top               int
	Visitors          int // hyperloglog
	MaxVisits         int
}

// DefaultSizes are the full-size smoke suite.
func DefaultSizes() Sizes {
	return Sizes{
		BulkKeys:          100,
		PayloadFields:     1000,
		PayloadFieldBytes: 1000,
		Players:           100,
		Top:               10,
		Visitors:          10000,
		MaxVisits:         5,
	}
}

// Env is what a scenario runs against. The driver hands every scenario its
// own copy with the key scope set.
type Env struct {
	// Required
	Primary  redis.UniversalClient
	Replica  redis.UniversalClient
	Verifier cascheck.ReplicationVerifier
	Runner   cascheck.TxnRunner

	Settle        cascheck.Settle             // zero => verifier policy
	Payload       codec.Codec[codec.Document] // nil => json
	Sizes         Sizes                       // zero fields => DefaultSizes
	PubSubTimeout time.Duration               // 0 => 5s
	Contention    int                         // 0 => 8 concurrent runners
	MaxAttempts   int                         // 0 => runner default
	Rand          *rand.Rand                  // nil => time seeded
	Logger        cascheck.Logger             // if nil, NopLogger is used

	namespace string
	scenario  string
}

func (e *Env) withDefaults() error {
	switch {
	case e.Primary == nil:
		return fmt.Errorf("scenario: primary handle is required")
	case e.Replica == nil:
		return fmt.Errorf("scenario: replica handle is required")
	case e.Verifier == nil:
		return fmt.Errorf("scenario: verifier is required")
	case e.Runner == nil:
		return fmt.Errorf("scenario: transaction runner is required")
	}
	if e.Payload == nil {
		e.Payload = codec.JSON[codec.Document]{}
	}
	def := DefaultSizes()
	e.Sizes.BulkKeys = coalesce(e.Sizes.BulkKeys, def.BulkKeys)
	e.Sizes.PayloadFields = coalesce(e.Sizes.PayloadFields, def.PayloadFields)
	e.Sizes.PayloadFieldBytes = coalesce(e.Sizes.PayloadFieldBytes, def.PayloadFieldBytes)
	e.Sizes.Players = coalesce(e.Sizes.Players, def.Players)
	e.Sizes.Top = coalesce(e.Sizes.Top, def.Top)
	e.Sizes.Visitors = coalesce(e.Sizes.Visitors, def.Visitors)
	e.Sizes.MaxVisits = coalesce(e.Sizes.MaxVisits, def.MaxVisits)
	e.PubSubTimeout = coalesce(e.PubSubTimeout, 5*time.Second)
	e.Contention = coalesce(e.Contention, 8)
	if e.Rand == nil {
		e.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	e.Logger = coalesce[cascheck.Logger](e.Logger, cascheck.NopLogger{})
	return nil
}

// Key scopes k to the run namespace and the running scenario.
func (e *Env) Key(k string) string { return util.Scope(e.namespace, e.scenario, k) }

// Scope is the prefix every key of the running scenario shares.
func (e *Env) Scope() string { return util.Scope(e.namespace, e.scenario) }

// Write applies op on the primary without verifying it.
func (e *Env) Write(ctx context.Context, op cascheck.Operation) (cascheck.Value, error) {
	v, err := op.Apply(ctx, e.Primary)
	return v, cascheck.Classify(cascheck.RolePrimary, op.String(), err)
}

const letters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// RandomString returns n ASCII letters.
func (e *Env) RandomString(n int) string {
	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		b.WriteByte(letters[e.Rand.Intn(len(letters))])
	}
	return b.String()
}

// T collects what one scenario observed.
type T struct {
	checks   []cascheck.VerificationResult
	notes    []string
	attempts int
}

// Expect records a verification and turns a mismatch into an error.
func (t *T) Expect(res cascheck.VerificationResult, err error) error {
	if err != nil {
		return err
	}
	t.checks = append(t.checks, res)
	return res.Err()
}

func (t *T) Notef(format string, args ...any) {
	t.notes = append(t.notes, fmt.Sprintf(format, args...))
}

// Attempts records how many transaction attempts the scenario used.
func (t *T) Attempts(n int) { t.attempts += n }

func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
