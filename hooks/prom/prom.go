// Package prom exports harness events as Prometheus metrics.
package prom

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/unkn0wn-root/cascheck"
)

type Hooks struct {
	reg prometheus.Gatherer

	settleSeconds   *prometheus.HistogramVec
	settlePolls     *prometheus.HistogramVec
	mismatches      *prometheus.CounterVec
	connectivity    *prometheus.CounterVec
	txnConflicts    prometheus.Counter
	txnExhausted    prometheus.Counter
	scenarios       *prometheus.CounterVec
	scenarioSeconds *prometheus.HistogramVec
	resultsRejected prometheus.Counter
}

var _ cascheck.Hooks = (*Hooks)(nil)

// New registers the metrics on reg. Passing nil uses a fresh registry so
// repeated construction (tests) never collides.
func New(reg *prometheus.Registry) *Hooks {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Hooks{
		reg: reg,
		settleSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cascheck_settle_seconds",
			Help:    "Time spent waiting for the replica before the last read",
			Buckets: []float64{0, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"op"}),
		settlePolls: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cascheck_settle_polls",
			Help:    "Replica reads performed per verification",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100},
		}, []string{"op"}),
		mismatches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cascheck_replica_mismatches_total",
			Help: "Verifications where the replica did not converge",
		}, []string{"op"}),
		connectivity: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cascheck_connectivity_failures_total",
			Help: "Requests that failed because an endpoint was unreachable",
		}, []string{"role", "op"}),
		txnConflicts: f.NewCounter(prometheus.CounterOpts{
			Name: "cascheck_txn_conflicts_total",
			Help: "Optimistic transaction attempts that lost the conditional commit",
		}),
		txnExhausted: f.NewCounter(prometheus.CounterOpts{
			Name: "cascheck_txn_exhausted_total",
			Help: "Optimistic transactions that ran out of attempts",
		}),
		scenarios: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cascheck_scenarios_total",
			Help: "Finished scenarios by status",
		}, []string{"scenario", "status"}),
		scenarioSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cascheck_scenario_duration_seconds",
			Help:    "Scenario wall time",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"scenario"}),
		resultsRejected: f.NewCounter(prometheus.CounterOpts{
			Name: "cascheck_results_rejected_total",
			Help: "Result records the results store refused",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (h *Hooks) Handler() http.Handler {
	return promhttp.HandlerFor(h.reg, promhttp.HandlerOpts{})
}

func (h *Hooks) SettleWaited(op string, waited time.Duration, polls int) {
	h.settleSeconds.WithLabelValues(op).Observe(waited.Seconds())
	h.settlePolls.WithLabelValues(op).Observe(float64(polls))
}

func (h *Hooks) ReplicaMismatch(op, _ string) { h.mismatches.WithLabelValues(op).Inc() }

func (h *Hooks) ConnectivityFailure(role cascheck.Role, op string, _ error) {
	h.connectivity.WithLabelValues(string(role), op).Inc()
}

func (h *Hooks) TxnConflict(string, int)  { h.txnConflicts.Inc() }
func (h *Hooks) TxnExhausted(string, int) { h.txnExhausted.Inc() }

func (h *Hooks) ScenarioFinished(name, status string, took time.Duration) {
	h.scenarios.WithLabelValues(name, status).Inc()
	h.scenarioSeconds.WithLabelValues(name).Observe(took.Seconds())
}

func (h *Hooks) ResultRejected(string) { h.resultsRejected.Inc() }
