// Package cascheck verifies read-after-write replication on a managed Redis
// deployment reachable through a primary and a read-only replica endpoint.
//
// Components:
//   - Verifier: applies a write Operation on the primary handle, waits per a
//     Settle policy, applies a read Operation on the replica handle and compares
//     the observed Value with the one implied by the write.
//   - Runner: bounded optimistic transaction loop (WATCH / GET / compute /
//     MULTI-EXEC) over a txstore.TxStore, retrying on conflict.
//   - Operation: value object naming a command, its key and arguments.
//
// Equality rules:
//
//	string, int  - exact
//	list         - ordered sequence
//	set          - set equality
//	hash         - field map equality
//	ranked       - score order; members sharing a score compare as a set
//	float        - relative tolerance (e.g. GEODIST)
//
// Verify pattern:
//
//	v, err := cascheck.NewVerifier(cascheck.VerifierOptions{Primary: p, Replica: r})
//	if err != nil { ... }
//	res, err := v.Verify(ctx, cascheck.Set(k, "x", 0), cascheck.Get(k), cascheck.Settle{})
//	// err != nil      -> inconclusive (connectivity) or operation failure
//	// !res.Match      -> replica is inconsistent; res.Err() is a *ConsistencyMismatch
package cascheck
