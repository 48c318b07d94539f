package cascheck

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/cascheck/codec"
)

func TestOperationsImplyWhatTheyReadBack(t *testing.T) {
	ctx := context.Background()
	_, rdb := newServer(t)

	cases := []struct {
		name  string
		write Operation
		read  Operation
	}{
		{"string", Set("s", "Hello, OCI Cache!", 0), Get("s")},
		{"counter", Sequence("reset+incr", Set("c", "0", 0), Incr("c"), Incr("c")), GetInt("c")},
		{"set", SAdd("fruits", "apple", "banana", "orange", "apple"), SMembers("fruits")},
		{"list", RPush("tasks", "task_1", "task_2", "task_3"), LRange("tasks")},
		{"hash", HSet("user:1", map[string]string{"name": "John", "age": "30", "city": "New York"}), HGetAll("user:1")},
		{"ranked", ZAdd("lb", Member{"a", 1}, Member{"b", 3}, Member{"c", 2}), ZTop("lb", 2)},
		{"bulk", BulkSet(map[string]string{"k1": "v1", "k2": "v2"}, false), BulkGet([]string{"k1", "k2"}, false)},
		{"pipeline", BulkSet(map[string]string{"p1": "v1", "p2": "v2"}, true), BulkGet([]string{"p1", "p2", "p3"}, true)},
		{"document", SetDocument("doc", map[string]string{"field_0": "x"}, codec.JSON[codec.Document]{}), GetDocument("doc", codec.JSON[codec.Document]{})},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			implied, err := tc.write.Apply(ctx, rdb)
			require.NoError(t, err)
			observed, err := tc.read.Apply(ctx, rdb)
			require.NoError(t, err)
			expected := tc.read.Expect(implied)
			assert.True(t, tc.read.Matches(expected, observed), "expected %s observed %s", expected, observed)
		})
	}
}

func TestGetMissingIsNil(t *testing.T) {
	_, rdb := newServer(t)
	v, err := Get("absent").Apply(context.Background(), rdb)
	require.NoError(t, err)
	assert.Equal(t, KindNil, v.Kind)
}

func TestGetIntOnNonNumericSurfacesAsMismatch(t *testing.T) {
	mr, rdb := newServer(t)
	require.NoError(t, mr.Set("c", "five"))
	op := GetInt("c")
	v, err := op.Apply(context.Background(), rdb)
	require.NoError(t, err)
	assert.False(t, op.Matches(IntValue(5), v))
}

func TestTTLMatchesPositiveWithinBound(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newServer(t)
	op := TTL("tmp", 5*time.Second)

	_, err := Sequence("set+expire", Set("tmp", "Expires in 5 seconds", 0), Expire("tmp", 5*time.Second)).Apply(ctx, rdb)
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)
	v, err := op.Apply(ctx, rdb)
	require.NoError(t, err)
	assert.Equal(t, int64(3), v.Int)
	assert.True(t, op.Matches(op.Expect(NilValue()), v))

	// no expiry (-1) and missing (-2) never match
	require.NoError(t, mr.Set("forever", "x"))
	v, err = TTL("forever", 5*time.Second).Apply(ctx, rdb)
	require.NoError(t, err)
	assert.False(t, op.Matches(op.Expect(NilValue()), v))

	mr.FastForward(10 * time.Second)
	v, err = op.Apply(ctx, rdb)
	require.NoError(t, err)
	assert.False(t, op.Matches(op.Expect(NilValue()), v))
}

func TestExpireOnMissingKeyImpliesNil(t *testing.T) {
	_, rdb := newServer(t)
	v, err := Expire("absent", time.Second).Apply(context.Background(), rdb)
	require.NoError(t, err)
	assert.Equal(t, KindNil, v.Kind)
}

func TestZTopProjectionKeepsHighestScores(t *testing.T) {
	implied := RankedValue(Member{"a", 1}, Member{"b", 3}, Member{"c", 2})
	got := ZTop("lb", 2).Expect(implied)
	require.Len(t, got.Ranked, 2)
	assert.Equal(t, Member{"b", 3}, got.Ranked[0])
	assert.Equal(t, Member{"c", 2}, got.Ranked[1])
}

func TestHaversineKnownDistances(t *testing.T) {
	sydney := Position{Lon: 151.2093, Lat: -33.8688}
	melbourne := Position{Lon: 144.9631, Lat: -37.8136}
	d := Haversine(sydney, melbourne) / 1000
	if d < 710 || d > 716 {
		t.Fatalf("Sydney-Melbourne=%.1fkm want ~713", d)
	}
	if Haversine(sydney, sydney) != 0 {
		t.Fatal("distance to self must be zero")
	}
}

func TestGeoDistAgainstServer(t *testing.T) {
	ctx := context.Background()
	_, rdb := newServer(t)
	cities := map[string]Position{
		"Sydney":    {Lon: 151.2093, Lat: -33.8688},
		"Perth":     {Lon: 115.8605, Lat: -31.9505},
		"Hobart":    {Lon: 147.3272, Lat: -42.8821},
		"Newcastle": {Lon: 151.7765, Lat: -32.9267},
	}
	implied, err := GeoAdd("cities", cities).Apply(ctx, rdb)
	require.NoError(t, err)

	for _, pair := range [][2]string{{"Sydney", "Perth"}, {"Hobart", "Newcastle"}} {
		op := GeoDist("cities", pair[0], pair[1])
		got, err := op.Apply(ctx, rdb)
		require.NoError(t, err)
		want := op.Expect(implied)
		assert.True(t, op.Matches(want, got), "%v: server %s haversine %s", pair, got, want)
	}

	got, err := GeoDist("cities", "Sydney", "Atlantis").Apply(ctx, rdb)
	require.NoError(t, err)
	assert.Equal(t, KindNil, got.Kind)
}

const multiplySrc = `
local value = redis.call("GET", KEYS[1])
value = tonumber(value) * ARGV[1]
redis.call("SET", KEYS[1], value)
return value
`

func TestEvalMultiply(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newServer(t)
	require.NoError(t, mr.Set("counter", "21"))

	s := NewScript("multiply", multiplySrc)
	v, err := Eval(s, []string{"counter"}, []any{2}, func() (int64, bool) { return 42, true }).Apply(ctx, rdb)
	require.NoError(t, err)
	assert.Equal(t, IntValue(42), v)

	got, err := mr.Get("counter")
	require.NoError(t, err)
	assert.Equal(t, "42", got)
}

func TestEvalWrongReplyIsScriptError(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newServer(t)
	require.NoError(t, mr.Set("counter", "3"))

	_, err := Eval(NewScript("multiply", multiplySrc), []string{"counter"}, []any{2},
		func() (int64, bool) { return 7, true }).Apply(ctx, rdb)
	var se *ScriptExecutionError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "multiply", se.Script)
	assert.Contains(t, se.Output, "reply 6, want 7")

	_, err = Eval(NewScript("greet", `return "hi"`), nil, nil, nil).Apply(ctx, rdb)
	require.ErrorAs(t, err, &se)
	assert.Contains(t, se.Output, "string(hi)")
}

func TestEvalServerErrorCarriesOutput(t *testing.T) {
	ctx := context.Background()
	_, rdb := newServer(t)

	// GET on a missing key yields false; tonumber(false) is nil and the multiply errors
	_, err := Eval(NewScript("multiply", multiplySrc), []string{"missing"}, []any{2}, nil).Apply(ctx, rdb)
	var se *ScriptExecutionError
	require.ErrorAs(t, err, &se)
	assert.NotEmpty(t, se.Output)
	assert.NotNil(t, se.Err)
}

// serverErr satisfies redis.Error so go-redis treats it as a server reply.
type serverErr string

func (e serverErr) Error() string { return string(e) }
func (serverErr) RedisError()     {}

func TestEvalFallsBackToEvalOnNoScript(t *testing.T) {
	ctx := context.Background()
	db, mock := redismock.NewClientMock()
	s := NewScript("one", "return 1")

	mock.ExpectEvalSha(s.s.Hash(), []string{"k"}).SetErr(serverErr("NOSCRIPT No matching script. Please use EVAL."))
	mock.ExpectEval("return 1", []string{"k"}).SetVal(int64(1))

	v, err := Eval(s, []string{"k"}, nil, nil).Apply(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, IntValue(1), v)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPFAddAndCountWithinTolerance(t *testing.T) {
	ctx := context.Background()
	_, rdb := newServer(t)

	els := make([]string, 0, 3000)
	for i := 0; i < 1000; i++ {
		u := fmt.Sprintf("user_%d", i)
		els = append(els, u, u) // every user visits twice
		if i%2 == 0 {
			els = append(els, u)
		}
	}
	implied, err := PFAdd("uu", els, 256).Apply(ctx, rdb)
	require.NoError(t, err)
	assert.Equal(t, IntValue(1000), implied)

	op := PFCount("uu")
	got, err := op.Apply(ctx, rdb)
	require.NoError(t, err)
	assert.True(t, op.Matches(implied, got), "estimate %s", got)
	assert.LessOrEqual(t, math.Abs(float64(got.Int-1000)), 20.0)
}

func TestBulkGetPipelinedSkipsMissing(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newServer(t)
	require.NoError(t, mr.Set("a", "1"))

	v, err := BulkGet([]string{"a", "b"}, true).Apply(ctx, rdb)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1"}, v.Hash)
}

func TestBulkSetPipelinedIssuesOneSetPerKey(t *testing.T) {
	ctx := context.Background()
	db, mock := redismock.NewClientMock()
	mock.ExpectSet("k1", "v1", 0).SetVal("OK")
	mock.ExpectSet("k2", "v2", 0).SetVal("OK")

	_, err := BulkSet(map[string]string{"k2": "v2", "k1": "v1"}, true).Apply(ctx, db)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetDocumentUndecodableIsMismatch(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newServer(t)
	require.NoError(t, mr.Set("doc", "not json"))

	op := GetDocument("doc", codec.JSON[codec.Document]{})
	v, err := op.Apply(ctx, rdb)
	require.NoError(t, err)
	assert.False(t, op.Matches(HashValue(map[string]string{"a": "b"}), v))
}

func TestCustomWithoutApplyFails(t *testing.T) {
	_, err := Operation{Name: "noop"}.Apply(context.Background(), nil)
	require.Error(t, err)
}
