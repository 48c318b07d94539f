package scenario

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/unkn0wn-root/cascheck"
)

func runTransaction(ctx context.Context, env *Env, t *T) error {
	k := env.Key("counter")
	if _, err := env.Write(ctx, cascheck.Set(k, "0", 0)); err != nil {
		return err
	}
	att, err := env.Runner.Run(ctx, k, cascheck.IncrBy(1), env.MaxAttempts)
	t.Attempts(att.Number)
	if err != nil {
		return err
	}
	t.Notef("committed %s -> %s on attempt %d", att.Read, att.Next, att.Number)
	return t.Expect(env.Verifier.Check(ctx, cascheck.IntValue(1), cascheck.GetInt(k), env.Settle))
}

// runContention fans out env.Contention runners on one counter; the replica
// must end exactly env.Contention above the initial value.
func runContention(ctx context.Context, env *Env, t *T) error {
	k := env.Key("counter")
	if _, err := env.Write(ctx, cascheck.Set(k, "0", 0)); err != nil {
		return err
	}

	var attempts atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < env.Contention; i++ {
		g.Go(func() error {
			att, err := env.Runner.Run(gctx, k, cascheck.IncrBy(1), env.MaxAttempts)
			attempts.Add(int64(att.Number))
			return err
		})
	}
	err := g.Wait()
	t.Attempts(int(attempts.Load()))
	if err != nil {
		return err
	}
	t.Notef("%d runners, %d attempts", env.Contention, attempts.Load())
	return t.Expect(env.Verifier.Check(ctx, cascheck.IntValue(int64(env.Contention)), cascheck.GetInt(k), env.Settle))
}
