package scenario

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/cascheck"
)

func pingOp() cascheck.Operation {
	return cascheck.Custom("ping", "", func(ctx context.Context, h redis.Cmdable) (cascheck.Value, error) {
		s, err := h.Ping(ctx).Result()
		if err != nil {
			return cascheck.Value{}, err
		}
		return cascheck.StringValue(s), nil
	})
}

func runPing(ctx context.Context, env *Env, t *T) error {
	start := time.Now()
	if err := t.Expect(env.Verifier.Verify(ctx, pingOp(), pingOp(), cascheck.NoSettle)); err != nil {
		return err
	}
	t.Notef("round trip %s", time.Since(start).Round(time.Millisecond))
	return nil
}

const greeting = "Hello, OCI Cache!"

func runString(ctx context.Context, env *Env, t *T) error {
	k := env.Key("test_key")
	res, err := env.Verifier.Verify(ctx, cascheck.Set(k, greeting, 0), cascheck.Get(k), env.Settle)
	if err := t.Expect(res, err); err != nil {
		return err
	}
	// a second read with no intervening write must see the same value
	return t.Expect(env.Verifier.Check(ctx, res.Observed, cascheck.Get(k), cascheck.NoSettle))
}

func runCounter(ctx context.Context, env *Env, t *T) error {
	k := env.Key("counter")
	ops := []cascheck.Operation{cascheck.Set(k, "0", 0)}
	for i := 0; i < 5; i++ {
		ops = append(ops, cascheck.Incr(k))
	}
	implied, err := env.Write(ctx, cascheck.Sequence("set+incr", ops...))
	if err != nil {
		return err
	}
	if !implied.Equal(cascheck.IntValue(5), 0) {
		t.Notef("primary replied %s to the fifth INCR", implied)
	}
	return t.Expect(env.Verifier.Check(ctx, cascheck.IntValue(5), cascheck.GetInt(k), env.Settle))
}

func runSet(ctx context.Context, env *Env, t *T) error {
	k := env.Key("fruits")
	return t.Expect(env.Verifier.Verify(ctx,
		cascheck.SAdd(k, "apple", "banana", "orange"), cascheck.SMembers(k), env.Settle))
}

func runList(ctx context.Context, env *Env, t *T) error {
	k := env.Key("tasks")
	return t.Expect(env.Verifier.Verify(ctx,
		cascheck.RPush(k, "task_1", "task_2", "task_3"), cascheck.LRange(k), env.Settle))
}

func runHash(ctx context.Context, env *Env, t *T) error {
	k := env.Key("user:1")
	fields := map[string]string{"name": "John", "age": "30", "city": "New York"}
	return t.Expect(env.Verifier.Verify(ctx, cascheck.HSet(k, fields), cascheck.HGetAll(k), env.Settle))
}

const expiryTTL = 5 * time.Second

func runExpiry(ctx context.Context, env *Env, t *T) error {
	k := env.Key("temporary_key")
	write := cascheck.Sequence("set+expire",
		cascheck.Set(k, "Expires in 5 seconds", 0),
		cascheck.Expire(k, expiryTTL))
	if err := t.Expect(env.Verifier.Verify(ctx, write, cascheck.TTL(k, expiryTTL), env.Settle)); err != nil {
		return err
	}
	after := cascheck.Settle{Mode: cascheck.SettleFixed, Interval: expiryTTL + time.Second}
	return t.Expect(env.Verifier.Check(ctx, cascheck.NilValue(), cascheck.Get(k), after))
}
