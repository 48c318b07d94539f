package scenario

import (
	"context"
	"fmt"
)

// Scenario is one named smoke test.
type Scenario struct {
	Name        string
	Description string
	Run         func(ctx context.Context, env *Env, t *T) error
}

// Catalogue returns every scenario in run order.
func Catalogue() []Scenario {
	return []Scenario{
		{"ping", "both endpoints answer PING", runPing},
		{"string", "SET/GET read-after-write and idempotent read-back", runString},
		{"counter", "five INCRs on a fresh counter read back as 5", runCounter},
		{"set", "SADD members read back as the same set", runSet},
		{"list", "RPUSH keeps order on the replica", runList},
		{"hash", "HSET fields read back with HGETALL", runHash},
		{"expiry", "a 5s TTL is visible and the key disappears after it", runExpiry},
		{"bulk", "many keys written with single SETs", runBulk},
		{"pipeline", "many keys written and read through pipelines", runPipeline},
		{"large_payload", "a large encoded document survives replication", runLargePayload},
		{"leaderboard", "ZADD scores; replica top-N matches the local ranking", runLeaderboard},
		{"pubsub", "a message published on the primary reaches a replica subscriber", runPubSub},
		{"transaction", "WATCH/MULTI/EXEC increment replicates", runTransaction},
		{"geo", "GEOADD cities; every GEODIST matches the haversine distance", runGeo},
		{"script", "Lua multiply returns and replicates the product", runScript},
		{"hyperloglog", "PFCOUNT on the replica is within 2% of the distinct adds", runHyperLogLog},
		{"contention", "concurrent optimistic increments lose no updates", runContention},
	}
}

// Names lists the catalogue in run order.
func Names() []string {
	cat := Catalogue()
	out := make([]string, len(cat))
	for i, s := range cat {
		out[i] = s.Name
	}
	return out
}

// Select returns the scenarios named in only (all when empty) minus skip,
// keeping catalogue order. Unknown names are an error.
func Select(cat []Scenario, only, skip []string) ([]Scenario, error) {
	known := make(map[string]bool, len(cat))
	for _, s := range cat {
		known[s.Name] = true
	}
	want := make(map[string]bool, len(only))
	for _, n := range only {
		if !known[n] {
			return nil, fmt.Errorf("scenario: unknown scenario %q", n)
		}
		want[n] = true
	}
	drop := make(map[string]bool, len(skip))
	for _, n := range skip {
		if !known[n] {
			return nil, fmt.Errorf("scenario: unknown scenario %q", n)
		}
		drop[n] = true
	}
	out := make([]Scenario, 0, len(cat))
	for _, s := range cat {
		if drop[s.Name] || (len(want) > 0 && !want[s.Name]) {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}
