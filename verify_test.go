package cascheck

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewVerifierRequiresBothHandles(t *testing.T) {
	_, rdb := newServer(t)

	_, err := NewVerifier(VerifierOptions{Replica: rdb})
	require.Error(t, err)
	_, err = NewVerifier(VerifierOptions{Primary: rdb})
	require.Error(t, err)

	v, err := NewVerifier(VerifierOptions{Primary: rdb, Replica: rdb})
	require.NoError(t, err)
	p := v.Policy()
	assert.Equal(t, SettleFixed, p.Mode)
	assert.Equal(t, DefaultSettleInterval, p.Interval)
}

func TestVerifySameServerMatchesAfterFixedSettle(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newServer(t)
	hooks := &recHooks{}
	v, clk := newVerifier(t, rdb, rdb, mr, VerifierOptions{Hooks: hooks})

	res, err := v.Verify(ctx, Set("greeting", "Hello, Redis!", 0), Get("greeting"), Settle{})
	require.NoError(t, err)
	assert.True(t, res.Match)
	assert.Equal(t, StringValue("Hello, Redis!"), res.Observed)
	assert.Equal(t, 2*time.Second, res.Elapsed)
	assert.Equal(t, 1, res.Polls)
	assert.Equal(t, 2*time.Second, clk.Total())
	assert.Nil(t, res.Err())
	assert.Equal(t, []int{1}, hooks.settles)
	assert.Empty(t, hooks.mismatches)
}

// lagging returns a primary/replica pair where the replica receives key's
// value only after lag sleeps of the verifier's clock.
func lagging(t *testing.T, key string, lag int) (primary, replica *redis.Client, clk *fakeClock, prim *miniredis.Miniredis) {
	t.Helper()
	pm, p := newServer(t)
	rm, r := newServer(t)
	clk = &fakeClock{}
	clk.onSleep = func(n int, _ time.Duration) {
		if n < lag {
			return
		}
		if s, err := pm.Get(key); err == nil {
			_ = rm.Set(key, s)
		}
	}
	return p, r, clk, pm
}

func TestVerifyPollConvergesOnLaggingReplica(t *testing.T) {
	ctx := context.Background()
	p, r, clk, _ := lagging(t, "k", 3)
	v, err := NewVerifier(VerifierOptions{Primary: p, Replica: r, Sleep: clk.Sleep})
	require.NoError(t, err)

	settle := Settle{Mode: SettlePoll, PollEvery: 50 * time.Millisecond, Timeout: time.Second}
	res, err := v.Verify(ctx, Set("k", "v1", 0), Get("k"), settle)
	require.NoError(t, err)
	assert.True(t, res.Match)
	assert.Equal(t, 4, res.Polls)
	assert.Equal(t, 150*time.Millisecond, res.Elapsed)
}

func TestVerifyFixedSettleReportsMismatch(t *testing.T) {
	ctx := context.Background()
	p, r, clk, _ := lagging(t, "k", 5)
	hooks := &recHooks{}
	v, err := NewVerifier(VerifierOptions{Primary: p, Replica: r, Sleep: clk.Sleep, Hooks: hooks})
	require.NoError(t, err)

	res, err := v.Verify(ctx, Set("k", "v1", 0), Get("k"), Settle{Mode: SettleFixed, Interval: time.Second})
	require.NoError(t, err, "a mismatch is a result, not an error")
	assert.False(t, res.Match)
	assert.Equal(t, NilValue(), res.Observed)

	var cm *ConsistencyMismatch
	require.ErrorAs(t, res.Err(), &cm)
	assert.Equal(t, "k", cm.Key)
	assert.Equal(t, StringValue("v1"), cm.Expected)
	assert.Equal(t, []string{"get"}, hooks.mismatches)
}

func TestVerifyPollTimesOutAsMismatch(t *testing.T) {
	ctx := context.Background()
	p, r, clk, _ := lagging(t, "k", 1000)
	v, err := NewVerifier(VerifierOptions{Primary: p, Replica: r, Sleep: clk.Sleep})
	require.NoError(t, err)

	res, err := v.Verify(ctx, Set("k", "v1", 0), Get("k"),
		Settle{Mode: SettlePoll, PollEvery: 100 * time.Millisecond, Timeout: 300 * time.Millisecond})
	require.NoError(t, err)
	assert.False(t, res.Match)
	assert.Equal(t, 4, res.Polls)
	assert.Equal(t, 300*time.Millisecond, res.Elapsed)
}

func TestVerifyNoSettleReadsImmediately(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newServer(t)
	v, clk := newVerifier(t, rdb, rdb, mr, VerifierOptions{})

	res, err := v.Verify(ctx, Incr("hits"), GetInt("hits"), NoSettle)
	require.NoError(t, err)
	assert.True(t, res.Match)
	assert.Equal(t, 1, res.Polls)
	assert.Zero(t, res.Elapsed)
	assert.Zero(t, clk.Total())
}

func TestVerifyReplicaDownIsConnectivityNotMismatch(t *testing.T) {
	ctx := context.Background()
	_, p := newServer(t)
	rm, r := newServer(t)
	hooks := &recHooks{}
	v, _ := newVerifier(t, p, r, nil, VerifierOptions{Hooks: hooks})
	rm.Close()

	_, err := v.Verify(ctx, Set("k", "v", 0), Get("k"), Settle{})
	require.Error(t, err)

	var ce *ConnectivityError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, RoleReplica, ce.Role)
	var cm *ConsistencyMismatch
	assert.False(t, errors.As(err, &cm))
	assert.Equal(t, []Role{RoleReplica}, hooks.conns)
	assert.Empty(t, hooks.mismatches)
}

func TestVerifyPrimaryDownSkipsReplica(t *testing.T) {
	ctx := context.Background()
	pm, p := newServer(t)
	_, r := newServer(t)
	v, clk := newVerifier(t, p, r, nil, VerifierOptions{})
	pm.Close()

	_, err := v.Verify(ctx, Set("k", "v", 0), Get("k"), Settle{})
	var ce *ConnectivityError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, RolePrimary, ce.Role)
	assert.Zero(t, clk.Total(), "no settle after a failed write")
}

func TestVerifyCancelledDuringSettle(t *testing.T) {
	mr, rdb := newServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	clk := &fakeClock{}
	clk.onSleep = func(int, time.Duration) { cancel() }
	v, _ := newVerifier(t, rdb, rdb, mr, VerifierOptions{Sleep: func(ctx context.Context, d time.Duration) error {
		_ = clk.Sleep(ctx, d)
		return ctx.Err()
	}})

	_, err := v.Verify(ctx, Set("k", "v", 0), Get("k"), Settle{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestVerifyIssuesCommandsToTheRightEndpoint(t *testing.T) {
	ctx := context.Background()
	pdb, pmock := redismock.NewClientMock()
	rdb, rmock := redismock.NewClientMock()

	pmock.ExpectSet("k", "v", 0).SetVal("OK")
	rmock.ExpectGet("k").SetVal("v")

	v, _ := newVerifier(t, pdb, rdb, nil, VerifierOptions{})
	res, err := v.Verify(ctx, Set("k", "v", 0), Get("k"), NoSettle)
	require.NoError(t, err)
	assert.True(t, res.Match)
	require.NoError(t, pmock.ExpectationsWereMet())
	require.NoError(t, rmock.ExpectationsWereMet())
}

func TestExpiredKeyIsGoneOnReplica(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newServer(t)
	v, _ := newVerifier(t, rdb, rdb, mr, VerifierOptions{})

	write := Sequence("set+expire", Set("temp_key", "Expires in 5 seconds", 0), Expire("temp_key", 5*time.Second))
	res, err := v.Verify(ctx, write, TTL("temp_key", 5*time.Second), NoSettle)
	require.NoError(t, err)
	assert.True(t, res.Match, "observed %s", res.Observed)

	res, err = v.Check(ctx, NilValue(), Get("temp_key"), Settle{Mode: SettleFixed, Interval: 6 * time.Second})
	require.NoError(t, err)
	assert.True(t, res.Match, "observed %s", res.Observed)
	assert.False(t, mr.Exists("temp_key"))
}

func TestCheckComparesWithoutWriting(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newServer(t)
	require.NoError(t, mr.Set("k", "already"))
	v, _ := newVerifier(t, rdb, rdb, mr, VerifierOptions{})

	res, err := v.Check(ctx, StringValue("already"), Get("k"), NoSettle)
	require.NoError(t, err)
	assert.True(t, res.Match)

	res, err = v.Check(ctx, StringValue("other"), Get("k"), NoSettle)
	require.NoError(t, err)
	assert.False(t, res.Match)
}
