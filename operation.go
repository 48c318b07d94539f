package cascheck

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	c "github.com/unkn0wn-root/cascheck/codec"
)

// ApplyFunc runs a command against one endpoint and returns the resulting Value.
// For writes the Value is the state the write implies; for reads it is the
// observed state.
type ApplyFunc func(ctx context.Context, h redis.Cmdable) (Value, error)

// Operation is a named command plus its arguments. The zero value is not usable;
// build one with the constructors below or Custom.
type Operation struct {
	Name      string
	Key       string
	Args      []any
	Tolerance float64 // relative; used for float and approximate int reads

	apply   ApplyFunc
	project func(implied Value) Value
	match   func(expected, observed Value) bool
}

var errNoApply = errors.New("cascheck: operation has no apply func")

// Custom builds an Operation from an arbitrary apply function.
func Custom(name, key string, apply ApplyFunc) Operation {
	return Operation{Name: name, Key: key, apply: apply}
}

// Apply runs the operation against h.
func (op Operation) Apply(ctx context.Context, h redis.Cmdable) (Value, error) {
	if op.apply == nil {
		return Value{}, errNoApply
	}
	return op.apply(ctx, h)
}

// Expect maps the value implied by a write onto what this read should observe.
func (op Operation) Expect(implied Value) Value {
	if op.project == nil {
		return implied
	}
	return op.project(implied)
}

// Matches applies the operation's equality rule.
func (op Operation) Matches(expected, observed Value) bool {
	if op.match != nil {
		return op.match(expected, observed)
	}
	return expected.Equal(observed, op.Tolerance)
}

// WithTolerance returns a copy with the relative tolerance set.
func (op Operation) WithTolerance(tol float64) Operation {
	op.Tolerance = tol
	return op
}

func (op Operation) String() string {
	if op.Key == "" {
		return op.Name
	}
	return op.Name + " " + op.Key
}

// ==============================
// Strings and counters
// ==============================

// Set writes value under key. ttl <= 0 means no expiry.
func Set(key, value string, ttl time.Duration) Operation {
	if ttl < 0 {
		ttl = 0
	}
	return Operation{
		Name: "set", Key: key, Args: []any{value, ttl},
		apply: func(ctx context.Context, h redis.Cmdable) (Value, error) {
			if err := h.Set(ctx, key, value, ttl).Err(); err != nil {
				return Value{}, err
			}
			return StringValue(value), nil
		},
	}
}

// Get reads a string; a missing key yields NilValue.
func Get(key string) Operation {
	return Operation{
		Name: "get", Key: key,
		apply: func(ctx context.Context, h redis.Cmdable) (Value, error) {
			s, err := h.Get(ctx, key).Result()
			if err == redis.Nil {
				return NilValue(), nil
			}
			if err != nil {
				return Value{}, err
			}
			return StringValue(s), nil
		},
	}
}

// GetInt reads a counter; a missing key yields NilValue.
func GetInt(key string) Operation {
	return Operation{
		Name: "get", Key: key,
		apply: func(ctx context.Context, h redis.Cmdable) (Value, error) {
			s, err := h.Get(ctx, key).Result()
			if err == redis.Nil {
				return NilValue(), nil
			}
			if err != nil {
				return Value{}, err
			}
			n, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return StringValue(s), nil // surfaces as a kind mismatch
			}
			return IntValue(n), nil
		},
		project: func(implied Value) Value {
			if implied.Kind == KindString {
				if n, err := strconv.ParseInt(implied.Str, 10, 64); err == nil {
					return IntValue(n)
				}
			}
			return implied
		},
	}
}

// Expire sets a relative expiry on an existing key; implies the TTL in seconds.
func Expire(key string, ttl time.Duration) Operation {
	return Operation{
		Name: "expire", Key: key, Args: []any{ttl},
		apply: func(ctx context.Context, h redis.Cmdable) (Value, error) {
			ok, err := h.Expire(ctx, key, ttl).Result()
			if err != nil {
				return Value{}, err
			}
			if !ok {
				return NilValue(), nil
			}
			return IntValue(int64(math.Ceil(ttl.Seconds()))), nil
		},
	}
}

// Incr increments a counter by one; implies the server's reply.
func Incr(key string) Operation {
	return Operation{
		Name: "incr", Key: key,
		apply: func(ctx context.Context, h redis.Cmdable) (Value, error) {
			n, err := h.Incr(ctx, key).Result()
			if err != nil {
				return Value{}, err
			}
			return IntValue(n), nil
		},
	}
}

// TTL reads the remaining time to live in whole seconds. It matches any
// positive value not above max, regardless of the implied value.
func TTL(key string, max time.Duration) Operation {
	limit := int64(math.Ceil(max.Seconds()))
	return Operation{
		Name: "ttl", Key: key,
		apply: func(ctx context.Context, h redis.Cmdable) (Value, error) {
			d, err := h.TTL(ctx, key).Result()
			if err != nil {
				return Value{}, err
			}
			// -1 (no expiry) and -2 (missing) come back as negative durations.
			if d < 0 {
				return IntValue(int64(d)), nil
			}
			return IntValue(int64(math.Ceil(d.Seconds()))), nil
		},
		project: func(Value) Value { return IntValue(limit) },
		match: func(expected, observed Value) bool {
			return observed.Kind == KindInt && observed.Int > 0 && observed.Int <= expected.Int
		},
	}
}

// Sequence applies ops in order against the same handle and implies the value
// implied by the last one.
func Sequence(name string, ops ...Operation) Operation {
	key := ""
	if len(ops) > 0 {
		key = ops[0].Key
	}
	return Operation{
		Name: name, Key: key,
		apply: func(ctx context.Context, h redis.Cmdable) (Value, error) {
			last := NilValue()
			for _, op := range ops {
				v, err := op.Apply(ctx, h)
				if err != nil {
					return Value{}, fmt.Errorf("%s: %w", op, err)
				}
				last = v
			}
			return last, nil
		},
	}
}

// ==============================
// Collections
// ==============================

// RPush appends values to a list. The caller resets the key beforehand, so the
// implied list is exactly values.
func RPush(key string, values ...string) Operation {
	vs := append([]string(nil), values...)
	return Operation{
		Name: "rpush", Key: key, Args: toAny(vs),
		apply: func(ctx context.Context, h redis.Cmdable) (Value, error) {
			if err := h.RPush(ctx, key, toAny(vs)...).Err(); err != nil {
				return Value{}, err
			}
			return ListValue(vs...), nil
		},
	}
}

// LRange reads the whole list.
func LRange(key string) Operation {
	return Operation{
		Name: "lrange", Key: key,
		apply: func(ctx context.Context, h redis.Cmdable) (Value, error) {
			xs, err := h.LRange(ctx, key, 0, -1).Result()
			if err != nil {
				return Value{}, err
			}
			return ListValue(xs...), nil
		},
	}
}

// SAdd adds members to a set.
func SAdd(key string, members ...string) Operation {
	ms := uniq(members)
	return Operation{
		Name: "sadd", Key: key, Args: toAny(ms),
		apply: func(ctx context.Context, h redis.Cmdable) (Value, error) {
			if err := h.SAdd(ctx, key, toAny(ms)...).Err(); err != nil {
				return Value{}, err
			}
			return SetValue(ms...), nil
		},
	}
}

// SMembers reads a set.
func SMembers(key string) Operation {
	return Operation{
		Name: "smembers", Key: key,
		apply: func(ctx context.Context, h redis.Cmdable) (Value, error) {
			xs, err := h.SMembers(ctx, key).Result()
			if err != nil {
				return Value{}, err
			}
			return SetValue(xs...), nil
		},
	}
}

// HSet writes hash fields.
func HSet(key string, fields map[string]string) Operation {
	m := copyMap(fields)
	return Operation{
		Name: "hset", Key: key, Args: pairs(m),
		apply: func(ctx context.Context, h redis.Cmdable) (Value, error) {
			if err := h.HSet(ctx, key, pairs(m)...).Err(); err != nil {
				return Value{}, err
			}
			return HashValue(copyMap(m)), nil
		},
	}
}

// HGetAll reads every hash field.
func HGetAll(key string) Operation {
	return Operation{
		Name: "hgetall", Key: key,
		apply: func(ctx context.Context, h redis.Cmdable) (Value, error) {
			m, err := h.HGetAll(ctx, key).Result()
			if err != nil {
				return Value{}, err
			}
			return HashValue(m), nil
		},
	}
}

// ZAdd adds scored members; implies the full ranking.
func ZAdd(key string, members ...Member) Operation {
	ms := append([]Member(nil), members...)
	return Operation{
		Name: "zadd", Key: key,
		apply: func(ctx context.Context, h redis.Cmdable) (Value, error) {
			zs := make([]redis.Z, len(ms))
			for i, m := range ms {
				zs[i] = redis.Z{Score: m.Score, Member: m.Name}
			}
			if err := h.ZAdd(ctx, key, zs...).Err(); err != nil {
				return Value{}, err
			}
			return RankedValue(rank(ms)...), nil
		},
	}
}

// ZTop reads the n highest-scored members with their scores.
func ZTop(key string, n int) Operation {
	return Operation{
		Name: "zrevrange", Key: key, Args: []any{0, n - 1},
		apply: func(ctx context.Context, h redis.Cmdable) (Value, error) {
			zs, err := h.ZRevRangeWithScores(ctx, key, 0, int64(n-1)).Result()
			if err != nil {
				return Value{}, err
			}
			out := make([]Member, len(zs))
			for i, z := range zs {
				out[i] = Member{Name: fmt.Sprint(z.Member), Score: z.Score}
			}
			return RankedValue(out...), nil
		},
		project: func(implied Value) Value {
			r := rank(implied.Ranked)
			if len(r) > n {
				r = r[:n]
			}
			return RankedValue(r...)
		},
	}
}

// ==============================
// Geo, scripting, HyperLogLog
// ==============================

// GeoAdd indexes named positions.
func GeoAdd(key string, locs map[string]Position) Operation {
	names := make([]string, 0, len(locs))
	for n := range locs {
		names = append(names, n)
	}
	sort.Strings(names)
	cp := make(map[string]Position, len(locs))
	for n, p := range locs {
		cp[n] = p
	}
	return Operation{
		Name: "geoadd", Key: key,
		apply: func(ctx context.Context, h redis.Cmdable) (Value, error) {
			gl := make([]*redis.GeoLocation, 0, len(names))
			for _, n := range names {
				p := cp[n]
				gl = append(gl, &redis.GeoLocation{Name: n, Longitude: p.Lon, Latitude: p.Lat})
			}
			if err := h.GeoAdd(ctx, key, gl...).Err(); err != nil {
				return Value{}, err
			}
			return GeoValue(cp), nil
		},
	}
}

const geoTolerance = 1e-3

// GeoDist reads the distance in kilometres between two members and compares it
// with the haversine distance implied by their indexed positions.
func GeoDist(key, a, b string) Operation {
	return Operation{
		Name: "geodist", Key: key, Args: []any{a, b, "km"}, Tolerance: geoTolerance,
		apply: func(ctx context.Context, h redis.Cmdable) (Value, error) {
			d, err := h.GeoDist(ctx, key, a, b, "km").Result()
			if err == redis.Nil {
				return NilValue(), nil
			}
			if err != nil {
				return Value{}, err
			}
			return FloatValue(d), nil
		},
		project: func(implied Value) Value {
			pa, okA := implied.Geo[a]
			pb, okB := implied.Geo[b]
			if !okA || !okB {
				return NilValue()
			}
			return FloatValue(Haversine(pa, pb) / 1000)
		},
	}
}

// earthRadius matches the constant the server uses for GEODIST.
const earthRadius = 6372797.560856

// Haversine returns the great-circle distance in metres.
func Haversine(a, b Position) float64 {
	lat1, lon1 := a.Lat*math.Pi/180, a.Lon*math.Pi/180
	lat2, lon2 := b.Lat*math.Pi/180, b.Lon*math.Pi/180
	u := math.Sin((lat2 - lat1) / 2)
	v := math.Sin((lon2 - lon1) / 2)
	return 2 * earthRadius * math.Asin(math.Sqrt(u*u+math.Cos(lat1)*math.Cos(lat2)*v*v))
}

// Script is a named server-side Lua script, run with EVALSHA and falling back
// to EVAL when the server has not cached it.
type Script struct {
	Name string
	s    *redis.Script
}

func NewScript(name, src string) *Script {
	return &Script{Name: name, s: redis.NewScript(src)}
}

// Eval runs script with keys and args; the script must reply with an integer.
// want, when non-nil, computes the reply the script should produce.
func Eval(script *Script, keys []string, args []any, want func() (int64, bool)) Operation {
	key := ""
	if len(keys) > 0 {
		key = keys[0]
	}
	return Operation{
		Name: "eval:" + script.Name, Key: key, Args: args,
		apply: func(ctx context.Context, h redis.Cmdable) (Value, error) {
			reply, err := script.s.Run(ctx, h, keys, args...).Result()
			if err != nil {
				if IsConnectivity(err) {
					return Value{}, err
				}
				return Value{}, &ScriptExecutionError{Script: script.Name, Output: err.Error(), Err: err}
			}
			n, ok := reply.(int64)
			if !ok {
				return Value{}, &ScriptExecutionError{Script: script.Name, Output: fmt.Sprintf("%T(%v)", reply, reply)}
			}
			if want != nil {
				if w, ok := want(); ok && w != n {
					return Value{}, &ScriptExecutionError{
						Script: script.Name,
						Output: fmt.Sprintf("reply %d, want %d", n, w),
					}
				}
			}
			return IntValue(n), nil
		},
	}
}

// PFAdd feeds elements (duplicates allowed) into a HyperLogLog, batch elements
// per pipelined PFADD. It implies the exact distinct count.
func PFAdd(key string, elements []string, batch int) Operation {
	if batch <= 0 {
		batch = 500
	}
	els := append([]string(nil), elements...)
	return Operation{
		Name: "pfadd", Key: key,
		apply: func(ctx context.Context, h redis.Cmdable) (Value, error) {
			_, err := h.Pipelined(ctx, func(p redis.Pipeliner) error {
				for i := 0; i < len(els); i += batch {
					end := min(i+batch, len(els))
					p.PFAdd(ctx, key, toAny(els[i:end])...)
				}
				return nil
			})
			if err != nil {
				return Value{}, err
			}
			return IntValue(int64(len(uniq(els)))), nil
		},
	}
}

const hllTolerance = 0.02

// PFCount reads the cardinality estimate; compared with a relative tolerance.
func PFCount(key string) Operation {
	return Operation{
		Name: "pfcount", Key: key, Tolerance: hllTolerance,
		apply: func(ctx context.Context, h redis.Cmdable) (Value, error) {
			n, err := h.PFCount(ctx, key).Result()
			if err != nil {
				return Value{}, err
			}
			return IntValue(n), nil
		},
	}
}

// ==============================
// Bulk, pipelines, documents
// ==============================

// BulkSet writes every pair, one round-trip per key or pipelined.
func BulkSet(kv map[string]string, pipelined bool) Operation {
	m := copyMap(kv)
	keys := sortedKeys(m)
	name := "bulk-set"
	if pipelined {
		name = "pipeline-set"
	}
	return Operation{
		Name: name, Key: firstOf(keys),
		apply: func(ctx context.Context, h redis.Cmdable) (Value, error) {
			if pipelined {
				_, err := h.Pipelined(ctx, func(p redis.Pipeliner) error {
					for _, k := range keys {
						p.Set(ctx, k, m[k], 0)
					}
					return nil
				})
				if err != nil {
					return Value{}, err
				}
			} else {
				for _, k := range keys {
					if err := h.Set(ctx, k, m[k], 0).Err(); err != nil {
						return Value{}, fmt.Errorf("set %s: %w", k, err)
					}
				}
			}
			return HashValue(copyMap(m)), nil
		},
	}
}

// BulkGet reads keys into a key -> value hash; missing keys are left out.
func BulkGet(keys []string, pipelined bool) Operation {
	ks := append([]string(nil), keys...)
	name := "bulk-get"
	if pipelined {
		name = "pipeline-get"
	}
	return Operation{
		Name: name, Key: firstOf(ks),
		apply: func(ctx context.Context, h redis.Cmdable) (Value, error) {
			out := make(map[string]string, len(ks))
			if !pipelined {
				for _, k := range ks {
					s, err := h.Get(ctx, k).Result()
					if err == redis.Nil {
						continue
					}
					if err != nil {
						return Value{}, fmt.Errorf("get %s: %w", k, err)
					}
					out[k] = s
				}
				return HashValue(out), nil
			}
			cmds := make([]*redis.StringCmd, len(ks))
			_, err := h.Pipelined(ctx, func(p redis.Pipeliner) error {
				for i, k := range ks {
					cmds[i] = p.Get(ctx, k)
				}
				return nil
			})
			if err != nil && err != redis.Nil {
				return Value{}, err
			}
			for i, cmd := range cmds {
				s, err := cmd.Result()
				if err == redis.Nil {
					continue
				}
				if err != nil {
					return Value{}, fmt.Errorf("get %s: %w", ks[i], err)
				}
				out[ks[i]] = s
			}
			return HashValue(out), nil
		},
	}
}

// SetDocument encodes doc with codec and stores it under key.
func SetDocument(key string, doc map[string]string, codec c.Codec[map[string]string]) Operation {
	m := copyMap(doc)
	return Operation{
		Name: "set-document", Key: key,
		apply: func(ctx context.Context, h redis.Cmdable) (Value, error) {
			b, err := codec.Encode(m)
			if err != nil {
				return Value{}, fmt.Errorf("encode document: %w", err)
			}
			if err := h.Set(ctx, key, b, 0).Err(); err != nil {
				return Value{}, err
			}
			return HashValue(copyMap(m)), nil
		},
	}
}

// GetDocument reads and decodes a document stored by SetDocument. A payload
// that fails to decode is reported as its raw string so the check fails.
func GetDocument(key string, codec c.Codec[map[string]string]) Operation {
	return Operation{
		Name: "get-document", Key: key,
		apply: func(ctx context.Context, h redis.Cmdable) (Value, error) {
			b, err := h.Get(ctx, key).Bytes()
			if err == redis.Nil {
				return NilValue(), nil
			}
			if err != nil {
				return Value{}, err
			}
			m, err := codec.Decode(b)
			if err != nil {
				return StringValue(string(b)), nil
			}
			return HashValue(m), nil
		},
	}
}

// ==============================
// helpers
// ==============================

func toAny(xs []string) []any {
	out := make([]any, len(xs))
	for i, x := range xs {
		out[i] = x
	}
	return out
}

func uniq(xs []string) []string {
	seen := make(map[string]struct{}, len(xs))
	out := make([]string, 0, len(xs))
	for _, x := range xs {
		if _, ok := seen[x]; ok {
			continue
		}
		seen[x] = struct{}{}
		out = append(out, x)
	}
	return out
}

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// pairs flattens m into field, value, field, value... in field order.
func pairs(m map[string]string) []any {
	keys := sortedKeys(m)
	out := make([]any, 0, 2*len(keys))
	for _, k := range keys {
		out = append(out, k, m[k])
	}
	return out
}

func firstOf(xs []string) string {
	if len(xs) == 0 {
		return ""
	}
	return xs[0]
}
