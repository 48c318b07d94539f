package prom

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/cascheck"
)

func TestCountersFollowEvents(t *testing.T) {
	h := New(prometheus.NewRegistry())

	h.TxnConflict("k", 1)
	h.TxnConflict("k", 2)
	h.TxnExhausted("k", 2)
	h.ReplicaMismatch("smembers", "fruits")
	h.ConnectivityFailure(cascheck.RoleReplica, "get", nil)
	h.ScenarioFinished("set", "fail", time.Second)
	h.ScenarioFinished("string", "pass", time.Second)
	h.ResultRejected("result:r:0")

	require.Equal(t, 2.0, testutil.ToFloat64(h.txnConflicts))
	require.Equal(t, 1.0, testutil.ToFloat64(h.txnExhausted))
	require.Equal(t, 1.0, testutil.ToFloat64(h.mismatches.WithLabelValues("smembers")))
	require.Equal(t, 1.0, testutil.ToFloat64(h.connectivity.WithLabelValues("replica", "get")))
	require.Equal(t, 1.0, testutil.ToFloat64(h.scenarios.WithLabelValues("set", "fail")))
	require.Equal(t, 1.0, testutil.ToFloat64(h.resultsRejected))
}

func TestHandlerExposesMetrics(t *testing.T) {
	h := New(nil)
	h.SettleWaited("get", 2*time.Second, 1)

	rr := httptest.NewRecorder()
	h.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rr.Body)
	require.NoError(t, err)
	require.True(t, strings.Contains(string(body), `cascheck_settle_seconds_count{op="get"} 1`), string(body))
}
