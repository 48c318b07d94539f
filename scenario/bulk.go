package scenario

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/unkn0wn-root/cascheck"
	"github.com/unkn0wn-root/cascheck/internal/util"
)

func bulkData(env *Env) (map[string]string, []string) {
	kv := make(map[string]string, env.Sizes.BulkKeys)
	keys := make([]string, 0, env.Sizes.BulkKeys)
	for i := 0; i < env.Sizes.BulkKeys; i++ {
		k := env.Key(fmt.Sprintf("key_%d", i))
		kv[k] = env.RandomString(10)
		keys = append(keys, k)
	}
	return kv, keys
}

func runBulk(ctx context.Context, env *Env, t *T) error {
	kv, keys := bulkData(env)
	t.Notef("%d keys, digest %s", len(keys), util.Digest(keys))
	return t.Expect(env.Verifier.Verify(ctx,
		cascheck.BulkSet(kv, false), cascheck.BulkGet(keys, false), env.Settle))
}

func runPipeline(ctx context.Context, env *Env, t *T) error {
	kv, keys := bulkData(env)
	t.Notef("%d keys, digest %s", len(keys), util.Digest(keys))
	return t.Expect(env.Verifier.Verify(ctx,
		cascheck.BulkSet(kv, true), cascheck.BulkGet(keys, true), env.Settle))
}

func runLargePayload(ctx context.Context, env *Env, t *T) error {
	k := env.Key("large_data")
	doc := make(map[string]string, env.Sizes.PayloadFields)
	for i := 0; i < env.Sizes.PayloadFields; i++ {
		doc[fmt.Sprintf("field_%d", i)] = env.RandomString(env.Sizes.PayloadFieldBytes)
	}
	b, err := env.Payload.Encode(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	t.Notef("%d fields, %s encoded", len(doc), humanize.Bytes(uint64(len(b))))
	return t.Expect(env.Verifier.Verify(ctx,
		cascheck.SetDocument(k, doc, env.Payload), cascheck.GetDocument(k, env.Payload), env.Settle))
}

func runLeaderboard(ctx context.Context, env *Env, t *T) error {
	k := env.Key("leaderboard")
	ms := make([]cascheck.Member, env.Sizes.Players)
	for i := range ms {
		ms[i] = cascheck.Member{Name: fmt.Sprintf("user_%d", i), Score: float64(env.Rand.Intn(1001))}
	}
	return t.Expect(env.Verifier.Verify(ctx,
		cascheck.ZAdd(k, ms...), cascheck.ZTop(k, env.Sizes.Top), env.Settle))
}

func runHyperLogLog(ctx context.Context, env *Env, t *T) error {
	k := env.Key("unique_users")
	els := make([]string, 0, env.Sizes.Visitors*(env.Sizes.MaxVisits+1)/2)
	for i := 0; i < env.Sizes.Visitors; i++ {
		u := fmt.Sprintf("user_%d", i)
		for n := 1 + env.Rand.Intn(env.Sizes.MaxVisits); n > 0; n-- {
			els = append(els, u)
		}
	}
	t.Notef("%s visits from %s users", humanize.Comma(int64(len(els))), humanize.Comma(int64(env.Sizes.Visitors)))
	return t.Expect(env.Verifier.Verify(ctx,
		cascheck.PFAdd(k, els, 500), cascheck.PFCount(k), env.Settle))
}
