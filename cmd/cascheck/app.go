package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	stdslog "log/slog"
	"math/rand"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/cascheck"
	"github.com/unkn0wn-root/cascheck/codec"
	"github.com/unkn0wn-root/cascheck/endpoint"
	asynchook "github.com/unkn0wn-root/cascheck/hooks/async"
	"github.com/unkn0wn-root/cascheck/hooks/prom"
	"github.com/unkn0wn-root/cascheck/internal/config"
	"github.com/unkn0wn-root/cascheck/internal/server"
	logrusadapter "github.com/unkn0wn-root/cascheck/log/logrus"
	slogadapter "github.com/unkn0wn-root/cascheck/log/slog"
	zapadapter "github.com/unkn0wn-root/cascheck/log/zap"
	pr "github.com/unkn0wn-root/cascheck/provider"
	"github.com/unkn0wn-root/cascheck/provider/bigcache"
	"github.com/unkn0wn-root/cascheck/provider/bolt"
	"github.com/unkn0wn-root/cascheck/provider/redis"
	"github.com/unkn0wn-root/cascheck/provider/ristretto"
	"github.com/unkn0wn-root/cascheck/report"
	"github.com/unkn0wn-root/cascheck/scenario"
	"github.com/unkn0wn-root/cascheck/sloghooks"
	"github.com/unkn0wn-root/cascheck/txstore"
)

// errNotPassed means the run finished but at least one scenario did not pass.
var errNotPassed = errors.New("not every scenario passed")

// exitCode is 1 when the run did not pass or was interrupted, 2 for
// configuration and setup errors.
func exitCode(err error) int {
	switch {
	case errors.Is(err, errNotPassed),
		errors.Is(err, context.Canceled),
		cascheck.IsConnectivity(err):
		return 1
	}
	return 2
}

type runFlags struct {
	only, skip  []string
	runID       string
	metricsAddr string
	keepKeys    bool
}

func (f runFlags) apply(cfg *config.Config) error {
	if len(f.only) > 0 {
		cfg.Scenarios.Only = f.only
	}
	if len(f.skip) > 0 {
		cfg.Scenarios.Skip = f.skip
	}
	if f.metricsAddr != "" {
		cfg.Metrics.Enabled, cfg.Metrics.Addr = true, f.metricsAddr
	}
	if f.keepKeys {
		cfg.Scenarios.KeepKeys = true
	}
	return cfg.Validate()
}

// newLogger builds the configured backend. The *slog.Logger is non-nil only
// for the slog backend and feeds sloghooks.
func newLogger(cfg config.LoggingConfig, w io.Writer) (cascheck.Logger, *stdslog.Logger, func(), error) {
	switch strings.ToLower(cfg.Backend) {
	case "logrus":
		return logrusadapter.New(w, cfg.Level), nil, func() {}, nil
	case "slog":
		l := slogadapter.New(w, cfg.Level, cfg.Format)
		return l, l.L, func() {}, nil
	default:
		z, err := zapadapter.New(cfg.Level, cfg.Format)
		if err != nil {
			return nil, nil, nil, err
		}
		return z, nil, func() { _ = z.Sync() }, nil
	}
}

// newProvider opens the configured results store; nil means results are not
// recorded.
func newProvider(cfg config.ReportConfig, primary goredis.UniversalClient) (pr.Provider, error) {
	switch cfg.Store {
	case "none":
		return nil, nil
	case "bigcache":
		return bigcache.New(bigcache.Config{LifeWindow: cfg.TTL})
	case "redis":
		if primary == nil {
			return nil, errors.New("redis result store needs the primary endpoint")
		}
		return redis.New(redis.Config{Client: primary, Prefix: cfg.Prefix, DefaultTTL: cfg.TTL})
	case "bolt":
		return bolt.New(bolt.Config{Path: cfg.Path})
	default:
		return ristretto.New(ristretto.Config{})
	}
}

func newRecorder(cfg config.ReportConfig, p pr.Provider, log cascheck.Logger, hooks cascheck.Hooks) (*report.Recorder, error) {
	if p == nil {
		return nil, nil
	}
	cd, err := report.CodecFor(cfg.Codec)
	if err != nil {
		return nil, err
	}
	return report.NewRecorder(report.Options{Provider: p, Codec: cd, TTL: cfg.TTL, Logger: log, Hooks: hooks})
}

func run(ctx context.Context, path string, f runFlags, out io.Writer) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if err := f.apply(cfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	log, slogger, sync, err := newLogger(cfg.Logging, os.Stderr)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer sync()

	log.Info("connecting", cascheck.Fields{"primary": cfg.Primary.String(), "replica": cfg.Replica.String()})
	primary, err := endpoint.Dial(ctx, cfg.Primary)
	if err != nil {
		return err
	}
	defer primary.Close()
	replica, err := endpoint.Dial(ctx, cfg.Replica)
	if err != nil {
		return err
	}
	defer replica.Close()

	metrics := prom.New(prometheus.NewRegistry())
	fan := cascheck.MultiHooks{metrics}
	if slogger != nil {
		fan = append(fan, sloghooks.New(slogger, sloghooks.Options{ConflictEvery: 10}))
	}
	hooks := asynchook.New(fan, 2, 1024)
	defer func() {
		hooks.Close()
		if n := hooks.Dropped(); n > 0 {
			log.Warn("hook events dropped", cascheck.Fields{"dropped": n})
		}
	}()

	store, err := newProvider(cfg.Report, primary)
	if err != nil {
		return fmt.Errorf("result store: %w", err)
	}
	if store != nil {
		defer store.Close(context.WithoutCancel(ctx))
	}
	rec, err := newRecorder(cfg.Report, store, log, hooks)
	if err != nil {
		return err
	}

	verifier, err := cascheck.NewVerifier(cascheck.VerifierOptions{
		Primary: primary, Replica: replica, Settle: cfg.SettlePolicy(), Logger: log, Hooks: hooks,
	})
	if err != nil {
		return err
	}
	txs := txstore.NewRedisTxStore(primary) // shared: Close leaves primary open
	defer txs.Close(context.WithoutCancel(ctx))
	runner, err := cascheck.NewRunner(cascheck.RunnerOptions{
		Store: txs, MaxAttempts: cfg.Transaction.MaxAttempts, Logger: log, Hooks: hooks,
	})
	if err != nil {
		return err
	}
	payload, err := codec.ForDocument(cfg.Scenarios.PayloadCodec, cfg.Scenarios.MaxPayloadBytes)
	if err != nil {
		return err
	}
	seed := cfg.Scenarios.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	env := scenario.Env{
		Primary:       primary,
		Replica:       replica,
		Verifier:      verifier,
		Runner:        runner,
		Settle:        cfg.SettlePolicy(),
		Payload:       payload,
		PubSubTimeout: cfg.Scenarios.PubSubTimeout,
		Contention:    cfg.Scenarios.Contention,
		MaxAttempts:   cfg.Transaction.MaxAttempts,
		Rand:          rand.New(rand.NewSource(seed)),
		Logger:        log,
	}
	d, err := scenario.NewDriver(env, scenario.Catalogue(), scenario.Options{
		Namespace: cfg.Scenarios.Namespace,
		Only:      cfg.Scenarios.Only,
		Skip:      cfg.Scenarios.Skip,
		KeepKeys:  cfg.Scenarios.KeepKeys,
		Recorder:  rec,
		Logger:    log,
		Hooks:     hooks,
	})
	if err != nil {
		return err
	}

	if cfg.Metrics.Enabled {
		opts := server.Options{
			Addr: cfg.Metrics.Addr, MetricsPath: cfg.Metrics.Path,
			Metrics: metrics.Handler(), State: d.State, Logger: log,
		}
		if rec != nil {
			opts.Results = rec
		}
		srv := server.New(opts)
		srv.Start()
		defer func() {
			sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
	}

	runID := f.runID
	if runID == "" {
		runID = scenario.NewRunID()
	}
	entries, runErr := d.Run(ctx, runID)
	if err := report.WriteText(out, runID, entries); err != nil {
		return err
	}
	if runErr != nil {
		return runErr
	}
	if !report.Summarize(runID, entries).OK() {
		return errNotPassed
	}
	return nil
}

func list(out io.Writer) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, s := range scenario.Catalogue() {
		fmt.Fprintf(tw, "%s\t%s\n", s.Name, s.Description)
	}
	return tw.Flush()
}

func printReport(ctx context.Context, path, runID string, out io.Writer) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if !cfg.Durable() {
		return fmt.Errorf("report.store %q does not outlive a run; use redis or bolt", cfg.Report.Store)
	}
	log, _, sync, err := newLogger(cfg.Logging, os.Stderr)
	if err != nil {
		return err
	}
	defer sync()

	var primary goredis.UniversalClient
	if cfg.Report.Store == "redis" {
		c, err := endpoint.Dial(ctx, cfg.Primary)
		if err != nil {
			return err
		}
		defer c.Close()
		primary = c
	}
	store, err := newProvider(cfg.Report, primary)
	if err != nil {
		return err
	}
	defer store.Close(context.WithoutCancel(ctx))
	rec, err := newRecorder(cfg.Report, store, log, nil)
	if err != nil {
		return err
	}
	entries, err := rec.Collect(ctx, runID)
	if err != nil {
		return err
	}
	if err := report.WriteText(out, runID, entries); err != nil {
		return err
	}
	if !report.Summarize(runID, entries).OK() {
		return errNotPassed
	}
	return nil
}
