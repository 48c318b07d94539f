package cascheck

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Kind tags the shape held by a Value.
type Kind uint8

const (
	KindNil Kind = iota // key absent
	KindString
	KindInt
	KindFloat
	KindList   // ordered
	KindSet    // unordered, unique
	KindHash   // field -> value
	KindRanked // members with scores, highest first
	KindGeo    // member -> position
)

func (k Kind) String() string {
	switch k {
	case KindNil:
		return "nil"
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindList:
		return "list"
	case KindSet:
		return "set"
	case KindHash:
		return "hash"
	case KindRanked:
		return "ranked"
	case KindGeo:
		return "geo"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Member is a sorted-set entry.
type Member struct {
	Name  string
	Score float64
}

// Position is a geospatial point in degrees.
type Position struct {
	Lon float64
	Lat float64
}

// Value is the observable state of one key (or one logical group of keys).
type Value struct {
	Kind   Kind
	Str    string
	Int    int64
	Float  float64
	List   []string          // KindList, KindSet
	Hash   map[string]string // KindHash
	Ranked []Member          // KindRanked
	Geo    map[string]Position
}

func NilValue() Value              { return Value{Kind: KindNil} }
func StringValue(s string) Value   { return Value{Kind: KindString, Str: s} }
func IntValue(n int64) Value       { return Value{Kind: KindInt, Int: n} }
func FloatValue(f float64) Value   { return Value{Kind: KindFloat, Float: f} }
func ListValue(xs ...string) Value { return Value{Kind: KindList, List: xs} }
func SetValue(xs ...string) Value  { return Value{Kind: KindSet, List: xs} }
func HashValue(m map[string]string) Value {
	return Value{Kind: KindHash, Hash: m}
}
func RankedValue(ms ...Member) Value { return Value{Kind: KindRanked, Ranked: ms} }
func GeoValue(locs map[string]Position) Value {
	return Value{Kind: KindGeo, Geo: locs}
}

// Equal compares v (expected) with o (observed) using the rule for v.Kind.
// tol is a relative tolerance applied to KindFloat and, when > 0, to KindInt.
func (v Value) Equal(o Value, tol float64) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindNil:
		return true
	case KindString:
		return v.Str == o.Str
	case KindInt:
		if tol > 0 {
			return within(float64(v.Int), float64(o.Int), tol)
		}
		return v.Int == o.Int
	case KindFloat:
		return within(v.Float, o.Float, tol)
	case KindList:
		if len(v.List) != len(o.List) {
			return false
		}
		for i := range v.List {
			if v.List[i] != o.List[i] {
				return false
			}
		}
		return true
	case KindSet:
		return sameSet(v.List, o.List)
	case KindHash:
		if len(v.Hash) != len(o.Hash) {
			return false
		}
		for k, a := range v.Hash {
			if b, ok := o.Hash[k]; !ok || a != b {
				return false
			}
		}
		return true
	case KindRanked:
		return sameRanking(v.Ranked, o.Ranked)
	case KindGeo:
		if len(v.Geo) != len(o.Geo) {
			return false
		}
		for k, a := range v.Geo {
			b, ok := o.Geo[k]
			if !ok || !within(a.Lon, b.Lon, tol) || !within(a.Lat, b.Lat, tol) {
				return false
			}
		}
		return true
	}
	return false
}

func within(want, got, tol float64) bool {
	if want == got {
		return true
	}
	diff := math.Abs(want - got)
	scale := math.Max(math.Abs(want), math.Abs(got))
	return diff <= tol*scale
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]int, len(a))
	for _, x := range a {
		seen[x]++
	}
	for _, x := range b {
		if seen[x] == 0 {
			return false
		}
		seen[x]--
	}
	return true
}

// sameRanking requires identical score sequences; members sharing a score
// are compared as sets since the server orders ties lexicographically.
func sameRanking(a, b []Member) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); {
		if a[i].Score != b[i].Score {
			return false
		}
		j := i + 1
		for j < len(a) && a[j].Score == a[i].Score {
			if b[j].Score != a[i].Score {
				return false
			}
			j++
		}
		x := make([]string, 0, j-i)
		y := make([]string, 0, j-i)
		for k := i; k < j; k++ {
			x = append(x, a[k].Name)
			y = append(y, b[k].Name)
		}
		if !sameSet(x, y) {
			return false
		}
		i = j
	}
	return true
}

// rank orders members the way ZREVRANGE does: score descending, ties by
// member descending.
func rank(ms []Member) []Member {
	out := make([]Member, len(ms))
	copy(out, ms)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Name > out[j].Name
	})
	return out
}

const maxShown = 64

func (v Value) String() string {
	switch v.Kind {
	case KindNil:
		return "(nil)"
	case KindString:
		return strconv.Quote(clip(v.Str))
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindFloat:
		return strconv.FormatFloat(v.Float, 'f', 4, 64)
	case KindList:
		return "[" + clip(strings.Join(v.List, " ")) + "]"
	case KindSet:
		s := append([]string(nil), v.List...)
		sort.Strings(s)
		return "{" + clip(strings.Join(s, " ")) + "}"
	case KindHash:
		keys := make([]string, 0, len(v.Hash))
		for k := range v.Hash {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+"="+v.Hash[k])
		}
		return fmt.Sprintf("hash(%d){%s}", len(keys), clip(strings.Join(parts, " ")))
	case KindRanked:
		parts := make([]string, 0, len(v.Ranked))
		for _, m := range v.Ranked {
			parts = append(parts, m.Name+":"+strconv.FormatFloat(m.Score, 'f', -1, 64))
		}
		return "ranked[" + clip(strings.Join(parts, " ")) + "]"
	case KindGeo:
		return fmt.Sprintf("geo(%d)", len(v.Geo))
	}
	return v.Kind.String()
}

func clip(s string) string {
	if len(s) <= maxShown {
		return s
	}
	return fmt.Sprintf("%s...(%d bytes)", s[:maxShown], len(s))
}
