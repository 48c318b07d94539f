package scenario

import (
	"context"
	"strconv"

	"github.com/unkn0wn-root/cascheck"
)

var multiply = cascheck.NewScript("multiply", `
local value = tonumber(redis.call("GET", KEYS[1])) * tonumber(ARGV[1])
redis.call("SET", KEYS[1], value)
return value
`)

const factor = 2

func runScript(ctx context.Context, env *Env, t *T) error {
	k := env.Key("counter")
	seed := int64(1 + env.Rand.Intn(1000))
	if _, err := env.Write(ctx, cascheck.Set(k, strconv.FormatInt(seed, 10), 0)); err != nil {
		return err
	}
	want := func() (int64, bool) { return seed * factor, true }
	t.Notef("%d x %d", seed, factor)
	return t.Expect(env.Verifier.Verify(ctx,
		cascheck.Eval(multiply, []string{k}, []any{factor}, want), cascheck.GetInt(k), env.Settle))
}
