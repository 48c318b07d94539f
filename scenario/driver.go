package scenario

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/unkn0wn-root/cascheck"
	"github.com/unkn0wn-root/cascheck/internal/util"
	"github.com/unkn0wn-root/cascheck/report"
)

// Phase is where the driver is in its sequential run.
type Phase uint8

const (
	NotStarted Phase = iota
	Running
	Complete
)

func (p Phase) String() string {
	switch p {
	case Running:
		return "running"
	case Complete:
		return "complete"
	default:
		return "not-started"
	}
}

// State is the driver's progress: Index is the position of Name in the
// selected list.
type State struct {
	Phase Phase
	Index int
	Name  string
}

// Options configure a Driver.
type Options struct {
	Namespace string   // "" => cascheck:<run id>
	Only      []string // "" => whole catalogue
	Skip      []string
	KeepKeys  bool             // skip the final namespace cleanup
	Recorder  *report.Recorder // nil => entries are only returned
	Logger    cascheck.Logger  // if nil, NopLogger is used
	Hooks     cascheck.Hooks   // if nil, NopHooks is used
}

// Driver runs the selected scenarios one after another. A failing or
// panicking scenario never stops the next one.
type Driver struct {
	env       Env
	scenarios []Scenario
	opts      Options
	log       cascheck.Logger
	hooks     cascheck.Hooks
	keep      string // recorder keyspace; clear never deletes under it

	mu    sync.Mutex
	state State
}

func NewDriver(env Env, catalogue []Scenario, opts Options) (*Driver, error) {
	if err := env.withDefaults(); err != nil {
		return nil, err
	}
	sel, err := Select(catalogue, opts.Only, opts.Skip)
	if err != nil {
		return nil, err
	}
	if len(sel) == 0 {
		return nil, errors.New("scenario: nothing selected")
	}
	d := &Driver{env: env, scenarios: sel, opts: opts}
	d.log = coalesce[cascheck.Logger](opts.Logger, env.Logger)
	d.hooks = coalesce[cascheck.Hooks](opts.Hooks, cascheck.NopHooks{})
	if opts.Recorder != nil {
		d.keep = opts.Recorder.Keyspace()
	}
	return d, nil
}

// NewRunID returns a fresh run identifier.
func NewRunID() string { return uuid.NewString() }

// Scenarios returns the selected scenarios in run order.
func (d *Driver) Scenarios() []Scenario { return append([]Scenario(nil), d.scenarios...) }

func (d *Driver) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Driver) setState(s State) {
	d.mu.Lock()
	d.state = s
	d.mu.Unlock()
}

// Run executes every selected scenario under run and returns one entry per
// scenario that started. The returned error is only set when ctx ended the
// run early; scenario failures are reported through the entries.
func (d *Driver) Run(ctx context.Context, run string) ([]report.Entry, error) {
	if run == "" {
		run = NewRunID()
	}
	ns := d.opts.Namespace
	if ns == "" {
		ns = util.Scope("cascheck", run)
	}
	d.log.Info("run started", cascheck.Fields{"run": run, "namespace": ns, "scenarios": len(d.scenarios)})

	entries := make([]report.Entry, 0, len(d.scenarios))
	var runErr error
	for i, sc := range d.scenarios {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		d.setState(State{Phase: Running, Index: i, Name: sc.Name})
		e := d.runOne(ctx, run, ns, uint32(i+1), sc)
		entries = append(entries, e)
		d.record(ctx, e)
		d.hooks.ScenarioFinished(sc.Name, e.Status.String(), e.Duration)
		d.setState(State{Phase: Complete, Index: i, Name: sc.Name})
	}

	if !d.opts.KeepKeys {
		// cleanup must run even when ctx was cancelled
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		n, err := d.clear(cctx, ns)
		cancel()
		if err != nil {
			d.log.Warn("cleanup failed", cascheck.Fields{"namespace": ns, "err": err})
		} else {
			d.log.Debug("cleanup done", cascheck.Fields{"namespace": ns, "deleted": n})
		}
	}

	s := report.Summarize(run, entries)
	d.log.Info("run finished", cascheck.Fields{
		"run":          run,
		"pass":         s.ByStatus[report.StatusPass],
		"fail":         s.ByStatus[report.StatusFail],
		"inconclusive": s.ByStatus[report.StatusInconclusive],
		"error":        s.ByStatus[report.StatusError],
	})
	return entries, runErr
}

func (d *Driver) runOne(ctx context.Context, run, ns string, seq uint32, sc Scenario) (e report.Entry) {
	log := cascheck.WithFields(d.log, cascheck.Fields{"run": run, "scenario": sc.Name})
	env := d.env
	env.namespace, env.scenario = ns, sc.Name
	env.Logger = log
	t := &T{}
	e = report.Entry{Run: run, Scenario: sc.Name, Seq: seq, Started: time.Now()}

	err := d.reset(ctx, &env)
	if err == nil {
		err = protect(ctx, sc, &env, t)
	}
	e.Duration = time.Since(e.Started)
	e.Status = Classify(err)
	e.Attempts = t.attempts
	e.Notes = t.notes
	for _, r := range t.checks {
		e.Checks = append(e.Checks, report.CheckOf(r))
	}
	if err != nil {
		e.Err = err.Error()
	}

	f := cascheck.Fields{"status": e.Status.String(), "took": e.Duration, "checks": len(e.Checks)}
	switch e.Status {
	case report.StatusPass:
		log.Info("scenario passed", f)
	case report.StatusInconclusive:
		f["err"] = err
		log.Warn("scenario inconclusive", f)
	default:
		f["err"] = err
		log.Error("scenario failed", f)
	}
	return e
}

// protect turns a panic in sc into an error.
func protect(ctx context.Context, sc Scenario, env *Env, t *T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			env.Logger.Error("scenario panicked", cascheck.Fields{"panic": r, "stack": string(debug.Stack())})
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return sc.Run(ctx, env, t)
}

// reset deletes whatever a previous run left in the scenario's scope.
func (d *Driver) reset(ctx context.Context, env *Env) error {
	n, err := d.clear(ctx, env.Scope())
	if err != nil {
		return err
	}
	if n > 0 {
		env.Logger.Debug("scope reset", cascheck.Fields{"scope": env.Scope(), "deleted": n})
	}
	return nil
}

const scanBatch = 500

// clear deletes every key under ns on the primary.
func (d *Driver) clear(ctx context.Context, ns string) (int, error) {
	var (
		deleted int
		batch   = make([]string, 0, scanBatch)
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := d.env.Primary.Del(ctx, batch...).Err(); err != nil {
			return cascheck.Classify(cascheck.RolePrimary, "del "+ns, err)
		}
		deleted += len(batch)
		batch = batch[:0]
		return nil
	}
	iter := d.env.Primary.Scan(ctx, 0, util.Pattern(ns), scanBatch).Iterator()
	for iter.Next(ctx) {
		if d.keep != "" && strings.HasPrefix(iter.Val(), d.keep) {
			continue
		}
		batch = append(batch, iter.Val())
		if len(batch) == scanBatch {
			if err := flush(); err != nil {
				return deleted, err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return deleted, cascheck.Classify(cascheck.RolePrimary, "scan "+ns, err)
	}
	return deleted, flush()
}

func (d *Driver) record(ctx context.Context, e report.Entry) {
	if d.opts.Recorder == nil {
		return
	}
	if err := d.opts.Recorder.Record(context.WithoutCancel(ctx), e); err != nil {
		d.log.Warn("result not recorded", cascheck.Fields{"scenario": e.Scenario, "err": err})
	}
}

// Classify maps a scenario error onto its status.
func Classify(err error) report.Status {
	if err == nil {
		return report.StatusPass
	}
	var (
		ce *cascheck.ConnectivityError
		cm *cascheck.ConsistencyMismatch
		cx *cascheck.ConflictExhausted
		se *cascheck.ScriptExecutionError
	)
	switch {
	case errors.As(err, &cm), errors.As(err, &cx), errors.As(err, &se):
		return report.StatusFail
	case errors.As(err, &ce), cascheck.IsConnectivity(err):
		return report.StatusInconclusive
	default:
		return report.StatusError
	}
}
