package report

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/unkn0wn-root/cascheck"
	c "github.com/unkn0wn-root/cascheck/codec"
	"github.com/unkn0wn-root/cascheck/internal/wire"
	pr "github.com/unkn0wn-root/cascheck/provider"
)

var (
	// ErrRejected means the store refused a record under pressure.
	ErrRejected = errors.New("report: result store rejected the record")
	// ErrUnknownRun means no index exists for the run.
	ErrUnknownRun = errors.New("report: unknown run")
)

// Options configure a Recorder.
// Only Provider is required.
type Options struct {
	// Required
	Provider pr.Provider

	Codec  c.Codec[Entry]  // nil => msgpack
	TTL    time.Duration   // 0 => provider default
	Logger cascheck.Logger // if nil, NopLogger is used
	Hooks  cascheck.Hooks  // if nil, NopHooks is used
}

// Recorder persists entries under "result:<run>:<seq>" and keeps a per-run
// index under "result:<run>:index". It is safe for concurrent use.
type Recorder struct {
	p     pr.Provider
	codec c.Codec[Entry]
	ttl   time.Duration
	log   cascheck.Logger
	hooks cascheck.Hooks

	mu sync.Mutex // serializes index read-modify-write
}

func NewRecorder(opts Options) (*Recorder, error) {
	if opts.Provider == nil {
		return nil, errors.New("report: provider is required")
	}
	r := &Recorder{p: opts.Provider, codec: opts.Codec, ttl: opts.TTL}
	if r.codec == nil {
		r.codec = c.Msgpack[Entry]{}
	}
	r.log = opts.Logger
	if r.log == nil {
		r.log = cascheck.NopLogger{}
	}
	r.hooks = opts.Hooks
	if r.hooks == nil {
		r.hooks = cascheck.NopHooks{}
	}
	return r, nil
}

func RecordKey(run string, seq uint32) string {
	return "result:" + run + ":" + strconv.FormatUint(uint64(seq), 10)
}

func IndexKey(run string) string { return "result:" + run + ":index" }

// Keyspace is the prefix every stored result key starts with in the
// provider's backing keyspace, or "" when the provider keeps its keys
// private (in-process stores, bolt).
func (r *Recorder) Keyspace() string {
	if k, ok := r.p.(pr.Keyed); ok {
		return k.StorageKey("result:")
	}
	return ""
}

// Record stores e and adds it to the run index. A rejected write returns
// ErrRejected and leaves the index untouched.
func (r *Recorder) Record(ctx context.Context, e Entry) error {
	if e.Run == "" || e.Scenario == "" {
		return fmt.Errorf("report: entry needs run and scenario")
	}
	if !e.Status.valid() {
		return fmt.Errorf("report: entry %s has invalid status %d", e.Scenario, e.Status)
	}
	payload, err := r.codec.Encode(e)
	if err != nil {
		return fmt.Errorf("encode %s: %w", e.Scenario, err)
	}
	key := RecordKey(e.Run, e.Seq)
	rec := wire.EncodeRecord(byte(e.Status), e.Seq, payload)
	ok, err := r.p.Set(ctx, key, rec, int64(len(rec)), r.ttl)
	if err != nil {
		return fmt.Errorf("store %s: %w", key, err)
	}
	if !ok {
		r.hooks.ResultRejected(key)
		r.log.Warn("result rejected", cascheck.Fields{"key": key, "bytes": len(rec)})
		return ErrRejected
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	items, err := r.index(ctx, e.Run)
	if err != nil && !errors.Is(err, ErrUnknownRun) {
		return err
	}
	items = upsert(items, wire.IndexItem{Name: e.Scenario, Seq: e.Seq, Status: byte(e.Status)})
	b, err := wire.EncodeIndex(items)
	if err != nil {
		return err
	}
	ikey := IndexKey(e.Run)
	ok, err = r.p.Set(ctx, ikey, b, int64(len(b)), r.ttl)
	if err != nil {
		return fmt.Errorf("store %s: %w", ikey, err)
	}
	if !ok {
		r.hooks.ResultRejected(ikey)
		r.log.Warn("result index rejected", cascheck.Fields{"key": ikey, "items": len(items)})
		return ErrRejected
	}
	return nil
}

// index returns the decoded run index. A corrupt index is deleted and
// reported as ErrUnknownRun.
func (r *Recorder) index(ctx context.Context, run string) ([]wire.IndexItem, error) {
	ikey := IndexKey(run)
	raw, ok, err := r.p.Get(ctx, ikey)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", ikey, err)
	}
	if !ok {
		return nil, ErrUnknownRun
	}
	items, err := wire.DecodeIndex(raw)
	if err != nil {
		_ = r.p.Del(ctx, ikey) // self-heal corrupt
		r.log.Warn("dropped corrupt result index", cascheck.Fields{"key": ikey})
		return nil, ErrUnknownRun
	}
	return items, nil
}

// Collect reads every entry of run in sequence order. Records that are
// missing (evicted, expired) are skipped; corrupt ones are deleted.
func (r *Recorder) Collect(ctx context.Context, run string) ([]Entry, error) {
	r.mu.Lock()
	items, err := r.index(ctx, run)
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}

	out := make([]Entry, 0, len(items))
	for _, it := range items {
		key := RecordKey(run, it.Seq)
		raw, ok, err := r.p.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", key, err)
		}
		if !ok {
			r.log.Debug("result missing", cascheck.Fields{"key": key, "scenario": it.Name})
			continue
		}
		status, seq, payload, err := wire.DecodeRecord(raw)
		if err != nil || seq != it.Seq {
			_ = r.p.Del(ctx, key) // self-heal corrupt
			r.log.Warn("dropped corrupt result", cascheck.Fields{"key": key})
			continue
		}
		e, err := r.codec.Decode(payload)
		if err != nil || e.Scenario != it.Name || byte(e.Status) != status {
			_ = r.p.Del(ctx, key) // self-heal
			r.log.Warn("dropped undecodable result", cascheck.Fields{"key": key})
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func upsert(items []wire.IndexItem, it wire.IndexItem) []wire.IndexItem {
	for i := range items {
		if items[i].Seq == it.Seq {
			items[i] = it
			return items
		}
	}
	return append(items, it)
}
